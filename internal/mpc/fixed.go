package mpc

import (
	"errors"
	"math"
)

// ErrFixedRange is returned when a value does not fit Q16.16.
var ErrFixedRange = errors.New("mpc: value out of Q16.16 range")

const q16One = 1 << 16

// ToQ16 converts f to signed Q16.16 fixed point, rounding to nearest.
func ToQ16(f float64) (int32, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrFixedRange
	}
	v := math.Round(f * q16One)
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, ErrFixedRange
	}
	return int32(v), nil
}

func FromQ16(v int32) float64 {
	return float64(v) / q16One
}
