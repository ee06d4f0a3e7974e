package scheduler

import "github.com/sweeney/soil-controller/internal/logic"

// FakeKeys is a KeyInput returning queued keys one per Poll.
type FakeKeys struct {
	Queue []logic.Key
}

// Press queues keys given as keypad symbols, e.g. "*B80#".
func (f *FakeKeys) Press(symbols string) {
	for i := 0; i < len(symbols); i++ {
		f.Queue = append(f.Queue, logic.Key(symbols[i]))
	}
}

// Poll pops the next queued key.
func (f *FakeKeys) Poll() (logic.Key, bool) {
	if len(f.Queue) == 0 {
		return logic.KeyNone, false
	}
	k := f.Queue[0]
	f.Queue = f.Queue[1:]
	return k, true
}

// Frame is one recorded redraw.
type Frame struct {
	Screen logic.Screen
	View   logic.View
}

// FakeRenderer records every Render call.
type FakeRenderer struct {
	Frames []Frame
}

// Render records the frame.
func (f *FakeRenderer) Render(screen logic.Screen, v logic.View) {
	f.Frames = append(f.Frames, Frame{Screen: screen, View: v})
}

// Last returns the most recent frame.
func (f *FakeRenderer) Last() (Frame, bool) {
	if len(f.Frames) == 0 {
		return Frame{}, false
	}
	return f.Frames[len(f.Frames)-1], true
}
