// Package dsp turns raw 8-bit IQ blocks from the receiver into a single
// narrowband power figure in dBFS.
package dsp

import (
	"errors"
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	FFTSize    = 1024
	SampleRate = 1_024_000
	BinWidthHz = SampleRate / FFTSize

	// The receiver is tuned this far above the wanted frequency so the
	// DC spike at the hardware center stays out of the measured sub-band.
	TuningOffsetHz = SampleRate / 8

	SubBandHalfWidthHz = 15_000

	// BlockBytes is one block of interleaved I/Q bytes
	BlockBytes = 2 * FFTSize

	FloorDBFS = -120.0

	minNormalizedPower = 1e-12
)

// ErrBlockSize is returned for blocks that are not exactly BlockBytes long
var ErrBlockSize = errors.New("unexpected IQ block size")

// TunedCenterHz is the hardware center frequency for a wanted frequency
func TunedCenterHz(khz uint32) uint32 {
	return khz*1000 + TuningOffsetHz
}

// BinFrequencyHz maps a shifted spectrum bin back to an absolute frequency
func BinFrequencyHz(bin int, tunedCenterHz uint32) float64 {
	return float64(tunedCenterHz) + float64(bin-FFTSize/2)*BinWidthHz
}

// SubBand returns the half open bin range [lo, hi) searched for the peak.
// It is centered at 3/8 of the shifted spectrum, where the wanted
// frequency lands after the tuning offset.
func SubBand() (lo, hi int) {
	center := FFTSize / 8 * 3
	half := (SubBandHalfWidthHz + BinWidthHz - 1) / BinWidthHz
	return center - half, center + half
}

// Analyzer holds the window and scratch buffers for one acquisition
// worker. It is not safe for concurrent use.
type Analyzer struct {
	window   []float64
	samples  []complex128
	spectrum []float64
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{
		window:   window.Hann(FFTSize),
		samples:  make([]complex128, FFTSize),
		spectrum: make([]float64, FFTSize),
	}
}

// Window returns the Hann coefficients applied to every block
func (a *Analyzer) Window() []float64 {
	return a.window
}

// Spectrum converts a block into its shifted power spectrum in dBFS. The
// returned slice is reused by the next call.
func (a *Analyzer) Spectrum(iq []byte) ([]float64, error) {
	if len(iq) != BlockBytes {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrBlockSize, len(iq), BlockBytes)
	}

	for n := 0; n < FFTSize; n++ {
		re := (float64(iq[2*n]) - 127) / 127
		im := (float64(iq[2*n+1]) - 127) / 127
		a.samples[n] = complex(re*a.window[n], im*a.window[n])
	}

	bins := fft.FFT(a.samples)

	const scale = float64(FFTSize) * float64(FFTSize)
	for i, c := range bins {
		power := (real(c)*real(c) + imag(c)*imag(c)) / scale
		logmag := math.Min(math.Log10(math.Max(power, minNormalizedPower)), 0)
		a.spectrum[(i+FFTSize/2)%FFTSize] = 10 * logmag
	}
	return a.spectrum, nil
}

// PeakBin returns the strongest bin of the sub-band and its power. A
// spectrum quieter than FloorDBFS reports the first bin at FloorDBFS.
func PeakBin(spectrum []float64) (int, float64) {
	lo, hi := SubBand()
	bin, peak := lo, FloorDBFS
	for i := lo; i < hi; i++ {
		if spectrum[i] > peak {
			bin, peak = i, spectrum[i]
		}
	}
	return bin, peak
}

// Process reduces one IQ block to the sub-band peak in dBFS
func (a *Analyzer) Process(iq []byte) (float64, error) {
	spectrum, err := a.Spectrum(iq)
	if err != nil {
		return 0, err
	}
	_, peak := PeakBin(spectrum)
	return peak, nil
}
