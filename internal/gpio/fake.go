package gpio

import (
	"errors"

	"github.com/sweeney/soil-controller/internal/logic"
)

// FakeOutput is a test double recording every level driven.
type FakeOutput struct {
	// Levels contains every value passed to Set.
	Levels []bool

	// SetError, if set, will be returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// Set records on.
func (f *FakeOutput) Set(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Levels = append(f.Levels, on)
	return nil
}

// On returns the last level driven.
func (f *FakeOutput) On() bool {
	return len(f.Levels) > 0 && f.Levels[len(f.Levels)-1]
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.Closed = true
	return nil
}

// FakeMatrix is a test double returning scripted keypad states.
type FakeMatrix struct {
	// Keys contains the key held down during each scan (KeyNone for none).
	// Each call to Scan consumes the next entry; the last one repeats.
	Keys []logic.Key

	index int

	// ScanError, if set, will be returned by Scan.
	ScanError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeMatrix creates a FakeMatrix from a string of keypad symbols where
// '.' means no key down, e.g. "..11.2".
func NewFakeMatrix(script string) *FakeMatrix {
	f := &FakeMatrix{}
	for i := 0; i < len(script); i++ {
		if script[i] == '.' {
			f.Keys = append(f.Keys, logic.KeyNone)
			continue
		}
		f.Keys = append(f.Keys, logic.Key(script[i]))
	}
	return f
}

// Scan returns the next scripted state.
func (f *FakeMatrix) Scan() (int, int, bool, error) {
	if f.ScanError != nil {
		return 0, 0, false, f.ScanError
	}
	if len(f.Keys) == 0 {
		return 0, 0, false, errors.New("no scans configured")
	}

	k := f.Keys[f.index]
	if f.index < len(f.Keys)-1 {
		f.index++
	}
	if k == logic.KeyNone {
		return 0, 0, false, nil
	}
	row, col, ok := Locate(k)
	if !ok {
		return 0, 0, false, errors.New("key not on keypad: " + k.String())
	}
	return row, col, true, nil
}

// Close marks the matrix as closed.
func (f *FakeMatrix) Close() error {
	f.Closed = true
	return nil
}
