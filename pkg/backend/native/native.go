// Package native acquires raw IQ from a receiver and measures power with
// the in-process DSP pipeline.
package native

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dougsko/sdrgain/pkg/backend"
	"github.com/dougsko/sdrgain/pkg/dsp"
	"github.com/dougsko/sdrgain/pkg/hardware"
	"github.com/dougsko/sdrgain/pkg/logging"
)

// BlockInterval paces acquisition at roughly ten blocks per second
const BlockInterval = 100 * time.Millisecond

// Backend opens a device per session through its Opener
type Backend struct {
	open      hardware.Opener
	publisher backend.Publisher
	interval  time.Duration
}

// New returns a native backend publishing into p
func New(open hardware.Opener, p backend.Publisher) *Backend {
	return &Backend{open: open, publisher: p, interval: BlockInterval}
}

// WithInterval overrides the block pacing, mainly for tests
func (b *Backend) WithInterval(d time.Duration) *Backend {
	b.interval = d
	return b
}

func (b *Backend) Name() string { return "native" }

// Open configures a fresh device for khz and starts the DSP worker
func (b *Backend) Open(khz uint32, gain int) (backend.Session, error) {
	dev, err := b.open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrDeviceUnavailable, err)
	}

	center := dsp.TunedCenterHz(khz)
	if err := configure(dev, center, gain); err != nil {
		dev.Close()
		return nil, fmt.Errorf("%w: %d Hz: %v", backend.ErrTuneFailed, center, err)
	}

	s := &Session{
		frequency: khz,
		device:    dev,
		publisher: b.publisher,
		interval:  b.interval,
		analyzer:  dsp.NewAnalyzer(),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.run()

	logging.Infof("native", "Session opened at %.3f MHz (hardware center %.3f MHz, gain %d)",
		float64(khz)/1000, float64(center)/1e6, gain)
	return s, nil
}

func configure(dev hardware.Device, centerHz uint32, gain int) error {
	if err := dev.SetSampleRate(dsp.SampleRate); err != nil {
		return fmt.Errorf("sample rate: %w", err)
	}
	if err := dev.SetCenterFrequency(centerHz); err != nil {
		return fmt.Errorf("center frequency: %w", err)
	}
	if err := dev.SetAGC(false); err != nil {
		return fmt.Errorf("agc: %w", err)
	}
	if err := dev.SetTunerGain(gain); err != nil {
		return fmt.Errorf("tuner gain: %w", err)
	}
	return nil
}

// Session owns one device and the worker reading from it
type Session struct {
	frequency uint32
	device    hardware.Device
	publisher backend.Publisher
	interval  time.Duration
	analyzer  *dsp.Analyzer

	stopping  atomic.Bool
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (s *Session) Frequency() uint32 { return s.frequency }

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run() {
	defer close(s.done)
	logging.Debug("native", "DSP worker started")

	block := make([]byte, dsp.BlockBytes)
	for !s.stopping.Load() {
		if err := s.device.ReadBlock(block); err != nil {
			if s.stopping.Load() {
				break
			}
			// Transient, retried in place
			logging.Warnf("native", "Reading samples failed, continuing: %v", err)
			continue
		}

		peak, err := s.analyzer.Process(block)
		if err != nil {
			logging.Warnf("native", "Dropping block: %v", err)
			continue
		}
		s.publisher.PublishPower(peak)

		select {
		case <-s.stopCh:
		case <-time.After(s.interval):
		}
	}

	logging.Debug("native", "DSP worker stopped")
}

// Close stops the worker, aborts a pending read by closing the device and
// waits for the worker to return
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.stopping.Store(true)
		close(s.stopCh)
		s.closeErr = s.device.Close()
		<-s.done
		logging.Infof("native", "Session at %.3f MHz closed", float64(s.frequency)/1000)
	})
	return s.closeErr
}
