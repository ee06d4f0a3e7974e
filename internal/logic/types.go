// Package logic contains the pure control core of the irrigation controller:
// the moisture filter, the runtime settings, the keypad menu state machine and
// the threshold control law.
// This package has NO hardware, network or OS dependencies and never sleeps.
// Hardware is reached only through the small interfaces declared here.
package logic

import (
	"fmt"
	"time"
)

// Key is one of the 16 symbols of the 4x4 matrix keypad.
type Key byte

const (
	Key0    Key = '0'
	Key1    Key = '1'
	Key2    Key = '2'
	Key3    Key = '3'
	Key4    Key = '4'
	Key5    Key = '5'
	Key6    Key = '6'
	Key7    Key = '7'
	Key8    Key = '8'
	Key9    Key = '9'
	KeyA    Key = 'A'
	KeyB    Key = 'B'
	KeyC    Key = 'C'
	KeyD    Key = 'D'
	KeyStar Key = '*'
	KeyHash Key = '#'
	KeyNone Key = 0
)

// KeypadLayout is the physical row-major layout of the matrix keypad.
var KeypadLayout = [4][4]Key{
	{Key1, Key2, Key3, KeyA},
	{Key4, Key5, Key6, KeyB},
	{Key7, Key8, Key9, KeyC},
	{KeyStar, Key0, KeyHash, KeyD},
}

// ParseKey converts a keypad symbol (e.g. "7", "*", "b") to a Key.
func ParseKey(s string) (Key, bool) {
	if len(s) != 1 {
		return KeyNone, false
	}
	c := s[0]
	if c >= 'a' && c <= 'd' {
		c -= 'a' - 'A'
	}
	k := Key(c)
	if !k.Valid() {
		return KeyNone, false
	}
	return k, true
}

// Valid reports whether k is one of the 16 keypad symbols.
func (k Key) Valid() bool {
	switch {
	case k.IsDigit():
		return true
	case k >= KeyA && k <= KeyD:
		return true
	case k == KeyStar || k == KeyHash:
		return true
	}
	return false
}

// IsDigit reports whether k is 0-9.
func (k Key) IsDigit() bool {
	return k >= Key0 && k <= Key9
}

func (k Key) String() string {
	if k == KeyNone {
		return "NONE"
	}
	return string(rune(k))
}

// Screen identifies one menu/display mode.
type Screen int

const (
	ScreenMain Screen = iota
	ScreenConfigMenu
	ScreenSetpointInput
	ScreenIntervalInput
	ScreenCalibDry
	ScreenCalibWet
)

var screenNames = map[Screen]string{
	ScreenMain:          "MAIN",
	ScreenConfigMenu:    "CONFIG_MENU",
	ScreenSetpointInput: "SETPOINT_INPUT",
	ScreenIntervalInput: "INTERVAL_INPUT",
	ScreenCalibDry:      "CALIB_DRY",
	ScreenCalibWet:      "CALIB_WET",
}

func (s Screen) String() string {
	if n, ok := screenNames[s]; ok {
		return n
	}
	return fmt.Sprintf("SCREEN(%d)", int(s))
}

// Action is the output of the control law.
type Action int

const (
	TurnOff Action = iota
	TurnOn
)

func (a Action) String() string {
	if a == TurnOn {
		return "TURN_ON"
	}
	return "TURN_OFF"
}

// PumpState is the logical actuator state.
type PumpState string

const (
	PumpOn  PumpState = "ON"
	PumpOff PumpState = "OFF"
)

// StateOf converts an on/off flag to a PumpState.
func StateOf(on bool) PumpState {
	if on {
		return PumpOn
	}
	return PumpOff
}

// PumpEvent records a pump transition to be published and logged.
type PumpEvent struct {
	Timestamp time.Time
	State     PumpState
	Moisture  float64
	Target    float64
}

// Counts tracks activity since startup.
type Counts struct {
	PumpOn         int
	PumpOff        int
	Samples        int
	Reports        int
	ReportFailures int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}

// View is the value snapshot handed to the renderer on every redraw.
// It never carries hardware handles.
type View struct {
	Moisture        float64
	Target          float64
	PumpOn          bool
	Buffer          string
	CalibDry        int
	CalibWet        int
	IntervalSeconds uint32
	// LastRaw is the most recent raw ADC reading. Calibration screens read
	// it live when drawn.
	LastRaw int
}

// RawSource reads one unconverted ADC sample.
type RawSource interface {
	Read() (int, error)
}

// Switch drives the pump output. Implementations need not be idempotent;
// Pump only calls Set on a state change.
type Switch interface {
	Set(on bool) error
}
