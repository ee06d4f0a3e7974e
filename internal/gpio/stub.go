//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns an error on non-Linux platforms.
func NewRealOutput(chipName string, pin int, activeLow bool) (*RealOutput, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (o *RealOutput) Set(on bool) error { return errUnsupported }

// Close is not implemented on non-Linux platforms.
func (o *RealOutput) Close() error { return nil }

// RealMatrix is not available on non-Linux platforms.
type RealMatrix struct{}

// NewRealMatrix returns an error on non-Linux platforms.
func NewRealMatrix(chipName string, rowPins, colPins []int) (*RealMatrix, error) {
	return nil, errUnsupported
}

// Scan is not implemented on non-Linux platforms.
func (m *RealMatrix) Scan() (int, int, bool, error) { return 0, 0, false, errUnsupported }

// Close is not implemented on non-Linux platforms.
func (m *RealMatrix) Close() error { return nil }
