package logic

import (
	"fmt"
	"strconv"
)

// Input buffer limits per screen.
const (
	maxSetpointDigits = 3
	maxIntervalDigits = 4
)

// Change names the setting committed by a key press.
type Change string

const (
	ChangeNone     Change = ""
	ChangeTarget   Change = "TARGET"
	ChangeInterval Change = "INTERVAL"
	ChangeCalibDry Change = "CALIB_DRY"
	ChangeCalibWet Change = "CALIB_WET"
)

// Outcome describes what a single key press did.
type Outcome struct {
	Key  Key
	From Screen
	To   Screen
	// Accepted is false when the key has no meaning on the current screen;
	// state and buffer are then unchanged.
	Accepted bool
	Change   Change
	// Rejected is set when '#' confirmed a value that failed validation
	// (empty, unparsable or out of range). The buffer is discarded.
	Rejected bool
	// Err carries the validation or sensor error behind Rejected or a failed
	// calibration capture.
	Err error
}

// Menu is the keypad-driven configuration state machine. It is the only
// writer of Settings.
type Menu struct {
	settings *Settings
	sensor   RawSource
	screen   Screen
	buf      []byte
}

// NewMenu creates a menu on the Main screen. sensor is read when a
// calibration point is captured.
func NewMenu(settings *Settings, sensor RawSource) *Menu {
	return &Menu{
		settings: settings,
		sensor:   sensor,
		screen:   ScreenMain,
		buf:      make([]byte, 0, maxIntervalDigits),
	}
}

// Screen returns the current screen.
func (m *Menu) Screen() Screen { return m.screen }

// Buffer returns the digits typed so far on an input screen.
func (m *Menu) Buffer() string { return string(m.buf) }

// HandleKey applies one key press to the state machine.
func (m *Menu) HandleKey(k Key) Outcome {
	out := Outcome{Key: k, From: m.screen, To: m.screen}

	switch m.screen {
	case ScreenMain:
		if k == KeyStar {
			m.enter(ScreenConfigMenu, false)
			out.Accepted = true
		}

	case ScreenConfigMenu:
		switch k {
		case KeyA:
			m.enter(ScreenCalibDry, false)
			out.Accepted = true
		case KeyB:
			m.enter(ScreenSetpointInput, true)
			out.Accepted = true
		case KeyC:
			m.enter(ScreenIntervalInput, true)
			out.Accepted = true
		case KeyStar:
			m.enter(ScreenMain, false)
			out.Accepted = true
		}

	case ScreenSetpointInput:
		out.Accepted = m.handleInput(k, maxSetpointDigits, &out, m.commitSetpoint)

	case ScreenIntervalInput:
		out.Accepted = m.handleInput(k, maxIntervalDigits, &out, m.commitInterval)

	case ScreenCalibDry:
		switch k {
		case KeyHash:
			out.Accepted = true
			raw, err := m.sensor.Read()
			if err != nil {
				out.Err = fmt.Errorf("capture dry point: %w", err)
				break
			}
			m.settings.SetCalibDry(raw)
			out.Change = ChangeCalibDry
			m.enter(ScreenCalibWet, false)
		case KeyStar:
			out.Accepted = true
			m.enter(ScreenConfigMenu, false)
		}

	case ScreenCalibWet:
		switch k {
		case KeyHash:
			out.Accepted = true
			raw, err := m.sensor.Read()
			if err != nil {
				out.Err = fmt.Errorf("capture wet point: %w", err)
				break
			}
			m.settings.SetCalibWet(raw)
			out.Change = ChangeCalibWet
			m.enter(ScreenConfigMenu, false)
		case KeyStar:
			out.Accepted = true
			m.enter(ScreenConfigMenu, false)
		}
	}

	out.To = m.screen
	return out
}

// handleInput runs the shared digit/confirm/cancel logic of the two numeric
// input screens.
func (m *Menu) handleInput(k Key, maxDigits int, out *Outcome, commit func(string) (Change, error)) bool {
	switch {
	case k.IsDigit():
		if len(m.buf) < maxDigits {
			m.buf = append(m.buf, byte(k))
		}
		return true
	case k == KeyHash:
		change, err := commit(string(m.buf))
		if err != nil {
			out.Rejected = true
			out.Err = err
		}
		out.Change = change
		m.enter(ScreenConfigMenu, true)
		return true
	case k == KeyStar:
		m.enter(ScreenConfigMenu, true)
		return true
	}
	return false
}

func (m *Menu) commitSetpoint(buf string) (Change, error) {
	v, ok := parseSetpoint(buf)
	if !ok {
		return ChangeNone, fmt.Errorf("invalid setpoint %q", buf)
	}
	if err := m.settings.SetTarget(v); err != nil {
		return ChangeNone, fmt.Errorf("setpoint %q: %w", buf, err)
	}
	return ChangeTarget, nil
}

func (m *Menu) commitInterval(buf string) (Change, error) {
	v, ok := parseInterval(buf)
	if !ok {
		return ChangeNone, fmt.Errorf("invalid interval %q", buf)
	}
	if err := m.settings.SetReportIntervalSeconds(v); err != nil {
		return ChangeNone, fmt.Errorf("interval %q: %w", buf, err)
	}
	return ChangeInterval, nil
}

func (m *Menu) enter(s Screen, clearBuf bool) {
	m.screen = s
	if clearBuf {
		m.buf = m.buf[:0]
	}
}

// parseSetpoint parses a digit buffer as a percentage. An empty buffer is not
// a value.
func parseSetpoint(buf string) (float64, bool) {
	if buf == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(buf, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseInterval parses a digit buffer as whole seconds.
func parseInterval(buf string) (uint32, bool) {
	if buf == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(buf, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}
