package hardware

import (
	"errors"
	"testing"

	"github.com/dougsko/sdrgain/pkg/dsp"
)

func TestMockDeviceConfiguration(t *testing.T) {
	m := NewMockDevice(MockConfig{SignalHz: 145_000_000, Amplitude: 0.5})

	if err := m.SetSampleRate(dsp.SampleRate); err != nil {
		t.Fatalf("SetSampleRate failed: %v", err)
	}
	if err := m.SetTunerGain(280); err != nil {
		t.Fatalf("SetTunerGain failed: %v", err)
	}
	if err := m.SetAGC(false); err != nil {
		t.Fatalf("SetAGC failed: %v", err)
	}
	if err := m.SetCenterFrequency(dsp.TunedCenterHz(145_000)); err != nil {
		t.Fatalf("SetCenterFrequency failed: %v", err)
	}

	rate, gain, agc := m.Settings()
	if rate != dsp.SampleRate || gain != 280 || agc {
		t.Errorf("Expected (%d, 280, false), got (%d, %d, %t)", dsp.SampleRate, rate, gain, agc)
	}
	if m.CenterFrequency() != 145_128_000 {
		t.Errorf("Expected center 145128000, got %d", m.CenterFrequency())
	}

	calls := m.Calls()
	expected := []string{"sample_rate=1024000", "gain=280", "agc=false", "center=145128000"}
	if len(calls) != len(expected) {
		t.Fatalf("Expected %d calls, got %v", len(expected), calls)
	}
	for i := range expected {
		if calls[i] != expected[i] {
			t.Errorf("Expected call %d to be %s, got %s", i, expected[i], calls[i])
		}
	}
}

func TestMockDeviceProducesTone(t *testing.T) {
	m := NewMockDevice(MockConfig{SignalHz: 433_920_000, Amplitude: 0.5, Noise: 0.01})
	m.SetCenterFrequency(dsp.TunedCenterHz(433_920))

	buf := make([]byte, dsp.BlockBytes)
	if err := m.ReadBlock(buf); err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}

	peak, err := dsp.NewAnalyzer().Process(buf)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if peak < -14 || peak > -10 {
		t.Errorf("Expected about -12 dBFS for a half scale tone, got %.2f", peak)
	}
}

func TestMockDeviceReadFailures(t *testing.T) {
	m := NewMockDevice(MockConfig{})
	m.FailReads(2)

	buf := make([]byte, dsp.BlockBytes)
	for i := 0; i < 2; i++ {
		if err := m.ReadBlock(buf); !errors.Is(err, ErrMockRead) {
			t.Errorf("Expected injected failure on read %d, got %v", i, err)
		}
	}
	if err := m.ReadBlock(buf); err != nil {
		t.Errorf("Expected read to recover, got %v", err)
	}
	if m.Reads() != 3 {
		t.Errorf("Expected 3 reads, got %d", m.Reads())
	}
}

func TestMockDeviceClose(t *testing.T) {
	m := NewMockDevice(MockConfig{})
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !m.IsClosed() {
		t.Error("Expected device to report closed")
	}
	if err := m.ReadBlock(make([]byte, dsp.BlockBytes)); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("Expected ErrDeviceClosed, got %v", err)
	}
	if err := m.SetCenterFrequency(1); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("Expected ErrDeviceClosed, got %v", err)
	}
}

func TestMockOpener(t *testing.T) {
	open := MockOpener(MockConfig{SignalHz: 1})
	a, err := open()
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	b, _ := open()
	if a == b {
		t.Error("Expected a fresh device per open")
	}
}
