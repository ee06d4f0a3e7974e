// Package keypad provides key inputs that are not wired to a matrix: a
// bounded queue fed by other goroutines and a poller over several inputs.
package keypad

import (
	"errors"

	"github.com/sweeney/soil-controller/internal/logic"
)

// DefaultQueueSize is the number of unread virtual key presses kept.
const DefaultQueueSize = 16

var (
	// ErrQueueFull is returned by Press when the loop is not keeping up.
	ErrQueueFull = errors.New("keypad queue full")
	// ErrInvalidKey is returned for symbols not on the keypad.
	ErrInvalidKey = errors.New("invalid key")
)

// Input is polled once per loop iteration.
type Input interface {
	Poll() (logic.Key, bool)
}

// Queue is a virtual keypad. Press may be called from any goroutine; Poll is
// called by the control loop.
type Queue struct {
	ch chan logic.Key
}

// NewQueue creates a queue holding up to size presses.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan logic.Key, size)}
}

// Press queues k without blocking.
func (q *Queue) Press(k logic.Key) error {
	if !k.Valid() {
		return ErrInvalidKey
	}
	select {
	case q.ch <- k:
		return nil
	default:
		return ErrQueueFull
	}
}

// PressSymbols queues every key of s, e.g. "*B80#". It stops at the first
// failure and returns the number of keys queued.
func (q *Queue) PressSymbols(s string) (int, error) {
	for i := 0; i < len(s); i++ {
		k, ok := logic.ParseKey(s[i : i+1])
		if !ok {
			return i, ErrInvalidKey
		}
		if err := q.Press(k); err != nil {
			return i, err
		}
	}
	return len(s), nil
}

// Poll returns the next queued key.
func (q *Queue) Poll() (logic.Key, bool) {
	select {
	case k := <-q.ch:
		return k, true
	default:
		return logic.KeyNone, false
	}
}

// Pending returns the number of queued keys.
func (q *Queue) Pending() int { return len(q.ch) }

// Multi polls its inputs in order and returns the first key found. At most
// one key is consumed per Poll.
type Multi []Input

// Poll implements Input.
func (m Multi) Poll() (logic.Key, bool) {
	for _, in := range m {
		if in == nil {
			continue
		}
		if k, ok := in.Poll(); ok {
			return k, true
		}
	}
	return logic.KeyNone, false
}

// None never returns a key.
type None struct{}

// Poll implements Input.
func (None) Poll() (logic.Key, bool) { return logic.KeyNone, false }
