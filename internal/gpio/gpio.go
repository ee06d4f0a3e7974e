// Package gpio drives the pump output line and scans the 4x4 keypad matrix.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"github.com/rs/zerolog/log"

	"github.com/sweeney/soil-controller/internal/logic"
)

// Output drives a single digital line.
type Output interface {
	// Set drives the line to its logical on/off level.
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Matrix scans a keypad matrix.
type Matrix interface {
	// Scan returns the row and column of the pressed key. ok is false when no
	// key is down. If several keys are down the first one found is returned.
	Scan() (row, col int, ok bool, err error)

	// Close releases GPIO resources.
	Close() error
}

// Default chip and pins (BCM numbering).
const (
	DefaultChip = "gpiochip0"
	PinPump     = 17
)

// Default keypad wiring (BCM numbering).
var (
	DefaultRowPins = []int{5, 6, 13, 19}
	DefaultColPins = []int{12, 16, 20, 21}
)

// Keypad turns raw matrix scans into key presses. A press is reported once,
// after it has been seen on debounce consecutive scans, and not again until
// the key is released. It implements the scheduler's key input.
type Keypad struct {
	m        Matrix
	debounce int

	candidate logic.Key
	seen      int
	held      logic.Key
	failing   bool
}

// NewKeypad wraps m. debounce < 1 is treated as 1.
func NewKeypad(m Matrix, debounce int) *Keypad {
	if debounce < 1 {
		debounce = 1
	}
	return &Keypad{m: m, debounce: debounce}
}

// Poll scans the matrix once and returns a newly pressed key.
func (k *Keypad) Poll() (logic.Key, bool) {
	row, col, ok, err := k.m.Scan()
	if err != nil {
		if !k.failing {
			log.Warn().Err(err).Msg("keypad scan failed")
		}
		k.failing = true
		return logic.KeyNone, false
	}
	if k.failing {
		log.Info().Msg("keypad scan recovered")
		k.failing = false
	}

	key := logic.KeyNone
	if ok {
		key = KeyAt(row, col)
	}

	if key != k.candidate {
		k.candidate = key
		k.seen = 0
	}
	if k.seen < k.debounce {
		k.seen++
	}
	if k.seen < k.debounce || key == k.held {
		return logic.KeyNone, false
	}

	k.held = key
	if key == logic.KeyNone {
		return logic.KeyNone, false
	}
	return key, true
}

// Close releases the matrix.
func (k *Keypad) Close() error {
	return k.m.Close()
}

// KeyAt maps a matrix position to its key, KeyNone when out of range.
func KeyAt(row, col int) logic.Key {
	if row < 0 || row >= len(logic.KeypadLayout) || col < 0 || col >= len(logic.KeypadLayout[row]) {
		return logic.KeyNone
	}
	return logic.KeypadLayout[row][col]
}

// Locate returns the matrix position of k.
func Locate(k logic.Key) (row, col int, ok bool) {
	for r, keys := range logic.KeypadLayout {
		for c, key := range keys {
			if key == k {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}
