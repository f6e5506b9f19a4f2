package dsp

import (
	"errors"
	"math"
	"testing"
)

func TestHannWindow(t *testing.T) {
	w := NewAnalyzer().Window()
	if len(w) != FFTSize {
		t.Fatalf("Expected window length %d, got %d", FFTSize, len(w))
	}

	const eps = 1e-5
	if math.Abs(w[0]) > eps || math.Abs(w[len(w)-1]) > eps {
		t.Errorf("Expected endpoints near 0, got %g and %g", w[0], w[len(w)-1])
	}
	// M is even so the peak straddles the two middle samples
	mid := w[len(w)/2]
	if math.Abs(mid-1) > eps {
		t.Errorf("Expected middle near 1, got %g", mid)
	}
	for i := 0; i < len(w)/2; i++ {
		if math.Abs(w[i]-w[len(w)-1-i]) > 1e-12 {
			t.Fatalf("Window not symmetric at %d", i)
		}
	}
}

func TestConstants(t *testing.T) {
	if BinWidthHz != 1000 {
		t.Errorf("Expected 1000 Hz bins, got %d", BinWidthHz)
	}
	lo, hi := SubBand()
	if lo != 369 || hi != 399 {
		t.Errorf("Expected sub-band [369,399), got [%d,%d)", lo, hi)
	}
	if got := TunedCenterHz(145_000); got != 145_128_000 {
		t.Errorf("Expected tuned center 145128000, got %d", got)
	}
}

func TestToneDetection(t *testing.T) {
	const khz = 145_000
	center := TunedCenterHz(khz)

	tests := []struct {
		name      string
		signalHz  float64
		amplitude float64
	}{
		{"On Frequency", 145_000_000, 0.5},
		{"Between Bins", 145_003_400, 0.5},
		{"Sub-band Edge", 145_013_000, 0.25},
		{"Weak", 144_990_000, 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := make([]byte, BlockBytes)
			FillTone(block, tt.signalHz-float64(center), tt.amplitude, 0, nil)

			a := NewAnalyzer()
			spectrum, err := a.Spectrum(block)
			if err != nil {
				t.Fatalf("Spectrum failed: %v", err)
			}
			bin, peak := PeakBin(spectrum)

			got := BinFrequencyHz(bin, center)
			if math.Abs(got-tt.signalHz) > BinWidthHz {
				t.Errorf("Expected peak within one bin of %.0f Hz, got %.0f Hz (bin %d)", tt.signalHz, got, bin)
			}
			if peak <= FloorDBFS || peak > 0 {
				t.Errorf("Expected power in (-120, 0], got %f", peak)
			}

			// Hann coherent gain is 0.5, so a full bin sees A^2/4
			expected := 20*math.Log10(tt.amplitude) - 6.02
			if math.Abs(peak-expected) > 1.6 {
				t.Errorf("Expected about %.2f dBFS, got %.2f", expected, peak)
			}

			processed, err := a.Process(block)
			if err != nil {
				t.Fatalf("Process failed: %v", err)
			}
			if processed != peak {
				t.Errorf("Expected Process to return the peak %f, got %f", peak, processed)
			}
		})
	}
}

func TestToneOutsideSubBand(t *testing.T) {
	center := TunedCenterHz(145_000)
	block := make([]byte, BlockBytes)
	// 100 kHz above the wanted frequency is far outside the 15 kHz half-width
	FillTone(block, 145_100_000-float64(center), 0.5, 0, nil)

	peak, err := NewAnalyzer().Process(block)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if peak > -40 {
		t.Errorf("Expected a tone outside the sub-band to be suppressed, got %.2f dBFS", peak)
	}
}

func TestSilence(t *testing.T) {
	block := make([]byte, BlockBytes)
	for i := range block {
		block[i] = 127
	}
	peak, err := NewAnalyzer().Process(block)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if peak != FloorDBFS {
		t.Errorf("Expected floor %f for a zero signal, got %f", FloorDBFS, peak)
	}
}

func TestFullScaleClamped(t *testing.T) {
	block := make([]byte, BlockBytes)
	for i := range block {
		block[i] = 255
	}
	spectrum, err := NewAnalyzer().Spectrum(block)
	if err != nil {
		t.Fatalf("Spectrum failed: %v", err)
	}
	for i, v := range spectrum {
		if v > 0 {
			t.Fatalf("Expected bin %d clamped at 0 dBFS, got %f", i, v)
		}
	}
}

func TestBlockSize(t *testing.T) {
	a := NewAnalyzer()
	for _, n := range []int{0, BlockBytes - 1, BlockBytes + 2} {
		if _, err := a.Process(make([]byte, n)); !errors.Is(err, ErrBlockSize) {
			t.Errorf("Expected ErrBlockSize for %d bytes, got %v", n, err)
		}
	}
}

func TestFillToneContinuity(t *testing.T) {
	whole := make([]byte, 2*BlockBytes)
	FillTone(whole, -128_000, 0.3, 0, nil)

	second := make([]byte, BlockBytes)
	FillTone(second, -128_000, 0.3, FFTSize, nil)

	for i := range second {
		if second[i] != whole[BlockBytes+i] {
			t.Fatalf("Expected phase continuity at byte %d", i)
		}
	}
}
