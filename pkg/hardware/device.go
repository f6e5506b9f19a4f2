// Package hardware wraps the receivers an acquisition session can own.
package hardware

import "errors"

// ErrDeviceClosed is returned by operations on a closed device
var ErrDeviceClosed = errors.New("device closed")

// Device is an IQ receiver. A device is owned by exactly one session;
// Close may be called from another goroutine to abort a pending ReadBlock.
type Device interface {
	SetSampleRate(hz uint32) error
	SetCenterFrequency(hz uint32) error
	// SetTunerGain selects manual gain in tenths of a dB
	SetTunerGain(tenthsDB int) error
	SetAGC(enabled bool) error
	// ReadBlock fills buf completely with interleaved 8-bit I/Q
	ReadBlock(buf []byte) error
	Close() error
}

// Opener opens a fresh device for a new session
type Opener func() (Device, error)
