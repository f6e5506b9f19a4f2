package dsp

import "math"

// FillTone writes a complex tone into buf as interleaved unsigned 8-bit
// I/Q, the same layout an RTL2832 delivers. offsetHz is relative to the
// tuned center, amplitude is a fraction of full scale and start is the
// sample index of buf[0], so consecutive blocks stay phase continuous.
// noise, if not nil, is added to each component before quantization.
func FillTone(buf []byte, offsetHz, amplitude float64, start int64, noise func() float64) {
	step := 2 * math.Pi * offsetHz / SampleRate
	for n := 0; n+1 < len(buf); n += 2 {
		phase := step * float64(start+int64(n/2))
		i := amplitude * math.Cos(phase)
		q := amplitude * math.Sin(phase)
		if noise != nil {
			i += noise()
			q += noise()
		}
		buf[n] = quantize(i)
		buf[n+1] = quantize(q)
	}
}

func quantize(v float64) byte {
	raw := math.Round(127 + 127*v)
	switch {
	case raw < 0:
		return 0
	case raw > 255:
		return 255
	}
	return byte(raw)
}
