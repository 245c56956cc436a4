package anemometer

import (
	"errors"
	"fmt"
)

// MeasureMax is the number of windows averaged into one reading.
const MeasureMax = 10

var (
	// ErrIndexOutOfRange is returned for a sample index or count beyond MeasureMax.
	ErrIndexOutOfRange = errors.New("anemometer: sample index out of range")

	// ErrNoSamples is returned when an average over zero samples is requested.
	ErrNoSamples = errors.New("anemometer: average over zero samples")
)

// SampleBuffer holds up to MeasureMax physical readings. The fill level is
// managed by the caller; slots keep their value until overwritten or cleared.
type SampleBuffer [MeasureMax]float64

// Set stores v at index.
func (b *SampleBuffer) Set(index int, v float64) error {
	if index < 0 || index >= MeasureMax {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	b[index] = v
	return nil
}

// Clear zeroes the first n slots.
func (b *SampleBuffer) Clear(n int) error {
	if n < 0 || n > MeasureMax {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, n)
	}
	for i := 0; i < n; i++ {
		b[i] = 0
	}
	return nil
}

// Mean returns the arithmetic mean of the first n slots.
func (b *SampleBuffer) Mean(n int) (float64, error) {
	if n == 0 {
		return 0, ErrNoSamples
	}
	if n < 0 || n > MeasureMax {
		return 0, fmt.Errorf("%w: %d", ErrIndexOutOfRange, n)
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += b[i]
	}
	return sum / float64(n), nil
}
