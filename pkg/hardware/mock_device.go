package hardware

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/dougsko/sdrgain/pkg/dsp"
	"github.com/dougsko/sdrgain/pkg/logging"
)

// ErrMockRead is returned by injected read failures
var ErrMockRead = errors.New("mock read failure")

// MockConfig describes the signal a MockDevice receives
type MockConfig struct {
	SignalHz  uint32  // absolute frequency of the synthetic carrier
	Amplitude float64 // fraction of full scale
	Noise     float64 // standard deviation of added gaussian noise
}

// MockDevice synthesises IQ blocks holding a single carrier. It stands in
// for a dongle in tests and in hardware-less runs.
type MockDevice struct {
	config MockConfig
	mutex  sync.Mutex

	sampleRate uint32
	centerHz   uint32
	gain       int
	agc        bool
	closed     bool

	position  int64
	reads     int
	failReads int
	calls     []string
	rng       *rand.Rand
}

// NewMockDevice creates a mock receiver with the given carrier
func NewMockDevice(config MockConfig) *MockDevice {
	return &MockDevice{
		config: config,
		rng:    rand.New(rand.NewSource(1)),
	}
}

// MockOpener returns an Opener producing a new MockDevice per session
func MockOpener(config MockConfig) Opener {
	return func() (Device, error) {
		return NewMockDevice(config), nil
	}
}

func (m *MockDevice) record(format string, args ...interface{}) error {
	if m.closed {
		return ErrDeviceClosed
	}
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
	return nil
}

func (m *MockDevice) SetSampleRate(hz uint32) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.record("sample_rate=%d", hz); err != nil {
		return err
	}
	m.sampleRate = hz
	return nil
}

func (m *MockDevice) SetCenterFrequency(hz uint32) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.record("center=%d", hz); err != nil {
		return err
	}
	m.centerHz = hz
	logging.Debugf("mock", "Tuned to %.3f MHz", float64(hz)/1e6)
	return nil
}

func (m *MockDevice) SetTunerGain(tenthsDB int) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.record("gain=%d", tenthsDB); err != nil {
		return err
	}
	m.gain = tenthsDB
	return nil
}

func (m *MockDevice) SetAGC(enabled bool) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.record("agc=%t", enabled); err != nil {
		return err
	}
	m.agc = enabled
	return nil
}

// FailReads makes the next n reads return ErrMockRead
func (m *MockDevice) FailReads(n int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failReads = n
}

func (m *MockDevice) ReadBlock(buf []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return ErrDeviceClosed
	}
	m.reads++
	if m.failReads > 0 {
		m.failReads--
		return ErrMockRead
	}

	offset := float64(m.config.SignalHz) - float64(m.centerHz)
	var noise func() float64
	if m.config.Noise > 0 {
		noise = func() float64 { return m.rng.NormFloat64() * m.config.Noise }
	}
	dsp.FillTone(buf, offset, m.config.Amplitude, m.position, noise)
	m.position += int64(len(buf) / 2)
	return nil
}

func (m *MockDevice) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = true
	return nil
}

// CenterFrequency returns the last tuned center in Hz
func (m *MockDevice) CenterFrequency() uint32 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.centerHz
}

// Settings returns sample rate, gain and AGC as last configured
func (m *MockDevice) Settings() (sampleRate uint32, gain int, agc bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.sampleRate, m.gain, m.agc
}

// Reads returns how many ReadBlock calls were made, failed ones included
func (m *MockDevice) Reads() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.reads
}

// Calls returns the configuration calls in order
func (m *MockDevice) Calls() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]string(nil), m.calls...)
}

// IsClosed reports whether Close was called
func (m *MockDevice) IsClosed() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.closed
}
