package rxdata

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Accepted tuning range in kHz, both ends inclusive
const (
	MinFrequencyKHz uint32 = 50_000
	MaxFrequencyKHz uint32 = 1_500_000
)

var (
	ErrInvalidFrequency    = errors.New("invalid frequency")
	ErrFrequencyOutOfRange = errors.New("frequency out of range")
)

// ValidateFrequency rejects values outside [MinFrequencyKHz, MaxFrequencyKHz]
func ValidateFrequency(khz uint32) error {
	if khz < MinFrequencyKHz || khz > MaxFrequencyKHz {
		return fmt.Errorf("%w: %d kHz not within %d-%d kHz",
			ErrFrequencyOutOfRange, khz, MinFrequencyKHz, MaxFrequencyKHz)
	}
	return nil
}

// ParseFrequency turns a decimal kHz string into a validated value
func ParseFrequency(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: %s kHz", ErrFrequencyOutOfRange, s)
		}
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
	}
	khz := uint32(v)
	if err := ValidateFrequency(khz); err != nil {
		return 0, err
	}
	return khz, nil
}
