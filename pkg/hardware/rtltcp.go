package hardware

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/bemasher/rtltcp"
	"github.com/dougsko/sdrgain/pkg/logging"
)

// RTLTCPDevice talks to an rtl_tcp server that has the dongle attached
type RTLTCPDevice struct {
	addr string
	sdr  rtltcp.SDR

	closeOnce sync.Once
	closeErr  error
}

// OpenRTLTCP connects to the rtl_tcp server at addr
func OpenRTLTCP(addr string) (*RTLTCPDevice, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve rtl_tcp address %s: %w", addr, err)
	}

	d := &RTLTCPDevice{addr: addr}
	if err := d.sdr.Connect(tcpAddr); err != nil {
		return nil, fmt.Errorf("connect to rtl_tcp at %s: %w", addr, err)
	}

	logging.Infof("rtl_tcp", "Connected to %s", addr)
	return d, nil
}

// RTLTCPOpener returns an Opener dialing addr for every session
func RTLTCPOpener(addr string) Opener {
	return func() (Device, error) {
		return OpenRTLTCP(addr)
	}
}

func (d *RTLTCPDevice) SetSampleRate(hz uint32) error {
	return d.sdr.SetSampleRate(hz)
}

func (d *RTLTCPDevice) SetCenterFrequency(hz uint32) error {
	return d.sdr.SetCenterFreq(hz)
}

func (d *RTLTCPDevice) SetTunerGain(tenthsDB int) error {
	if tenthsDB < 0 {
		return fmt.Errorf("negative tuner gain %d", tenthsDB)
	}
	if err := d.sdr.SetGainMode(true); err != nil {
		return err
	}
	return d.sdr.SetGain(uint32(tenthsDB))
}

func (d *RTLTCPDevice) SetAGC(enabled bool) error {
	return d.sdr.SetAGCMode(enabled)
}

// ReadBlock reads exactly len(buf) bytes from the sample stream. Closing
// the device unblocks a pending read with an error.
func (d *RTLTCPDevice) ReadBlock(buf []byte) error {
	if _, err := io.ReadFull(d.sdr, buf); err != nil {
		return fmt.Errorf("read from rtl_tcp %s: %w", d.addr, err)
	}
	return nil
}

func (d *RTLTCPDevice) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.sdr.Close()
		logging.Debugf("rtl_tcp", "Disconnected from %s", d.addr)
	})
	return d.closeErr
}
