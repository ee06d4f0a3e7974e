package logic

import (
	"errors"

	"github.com/sweeney/soil-controller/internal/mathx"
)

// DefaultFilterSize is the default moving-average window.
const DefaultFilterSize = 8

// ErrDegenerateCalibration is returned when the dry and wet bounds are equal.
var ErrDegenerateCalibration = errors.New("calibration bounds are equal (dry == wet)")

// AdcToPct converts a raw ADC reading to a moisture percentage by linear
// interpolation between the dry (0%) and wet (100%) bounds, clamped to [0,100].
// Raw values outside the calibration range are clamped, not rejected.
func AdcToPct(raw, dry, wet int) (float64, error) {
	if dry == wet {
		return 0, ErrDegenerateCalibration
	}
	pct := 100 * float64(dry-raw) / float64(dry-wet)
	return mathx.Clamp(pct, 0, 100), nil
}

// Filter is a fixed-size moving average over converted readings.
type Filter struct {
	settings *Settings
	history  []float64
	index    int
	filled   bool
	last     float64
}

// NewFilter creates a filter of the given capacity that converts raw samples
// using the calibration currently held in settings.
func NewFilter(capacity int, settings *Settings) *Filter {
	if capacity <= 0 {
		capacity = DefaultFilterSize
	}
	return &Filter{
		settings: settings,
		history:  make([]float64, capacity),
	}
}

// Sample converts raw, records it and returns the new smoothed value.
// With degenerate calibration the history is left untouched and the previous
// smoothed value is returned together with ErrDegenerateCalibration.
func (f *Filter) Sample(raw int) (float64, error) {
	dry, wet := f.settings.Calibration()
	pct, err := AdcToPct(raw, dry, wet)
	if err != nil {
		return f.last, err
	}

	f.history[f.index] = pct
	f.index++
	if f.index >= len(f.history) {
		f.index = 0
		f.filled = true
	}

	f.last = f.average()
	return f.last, nil
}

func (f *Filter) average() float64 {
	n := f.Len()
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += f.history[i]
	}
	return sum / float64(n)
}

// Average returns the current smoothed value (0 before the first sample).
func (f *Filter) Average() float64 { return f.last }

// Len returns the number of valid entries in the window.
func (f *Filter) Len() int {
	if f.filled {
		return len(f.history)
	}
	return f.index
}

// Cap returns the window size.
func (f *Filter) Cap() int { return len(f.history) }
