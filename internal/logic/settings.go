package logic

import (
	"errors"
	"time"

	"github.com/sweeney/soil-controller/internal/mathx"
)

// Factory calibration and cadence.
const (
	DefaultTarget           = 50.0
	DefaultCalibDry         = 3000
	DefaultCalibWet         = 1200
	DefaultReportIntervalMs = 10000
	MinReportIntervalMs     = 1000
)

var (
	ErrTargetOutOfRange = errors.New("target must be within 0-100%")
	ErrIntervalTooShort = errors.New("report interval must be at least 1s")
)

// Settings is the runtime configuration edited from the keypad.
// It has a single writer (the Menu) and is read by the control law and the
// scheduler on the same goroutine, so it carries no lock.
type Settings struct {
	targetPct        float64
	calibDryRaw      int
	calibWetRaw      int
	reportIntervalMs uint32
}

// SettingsSnapshot is a point-in-time copy of Settings.
type SettingsSnapshot struct {
	TargetPct        float64
	CalibDryRaw      int
	CalibWetRaw      int
	ReportIntervalMs uint32
}

// NewSettings returns Settings with the factory defaults.
func NewSettings() *Settings {
	return &Settings{
		targetPct:        DefaultTarget,
		calibDryRaw:      DefaultCalibDry,
		calibWetRaw:      DefaultCalibWet,
		reportIntervalMs: DefaultReportIntervalMs,
	}
}

// NewSettingsFrom builds Settings from boot-time values, applying the same
// validation as the keypad setters. Invalid values keep the defaults and the
// first validation error is returned.
func NewSettingsFrom(s SettingsSnapshot) (*Settings, error) {
	out := NewSettings()
	out.calibDryRaw = s.CalibDryRaw
	out.calibWetRaw = s.CalibWetRaw
	var errs []error
	if err := out.SetTarget(s.TargetPct); err != nil {
		errs = append(errs, err)
	}
	if s.ReportIntervalMs < MinReportIntervalMs {
		errs = append(errs, ErrIntervalTooShort)
	} else {
		out.reportIntervalMs = s.ReportIntervalMs
	}
	return out, errors.Join(errs...)
}

// SetTarget sets the moisture target. Values outside [0,100] are rejected and
// leave the target unchanged.
func (s *Settings) SetTarget(v float64) error {
	if !mathx.Between(v, 0, 100) {
		return ErrTargetOutOfRange
	}
	s.targetPct = v
	return nil
}

// SetReportIntervalSeconds sets the telemetry cadence in whole seconds.
func (s *Settings) SetReportIntervalSeconds(sec uint32) error {
	if sec < 1 {
		return ErrIntervalTooShort
	}
	s.reportIntervalMs = sec * 1000
	return nil
}

// SetCalibDry captures the raw reading that represents 0% moisture.
func (s *Settings) SetCalibDry(raw int) { s.calibDryRaw = raw }

// SetCalibWet captures the raw reading that represents 100% moisture.
func (s *Settings) SetCalibWet(raw int) { s.calibWetRaw = raw }

// Target returns the moisture target in percent.
func (s *Settings) Target() float64 { return s.targetPct }

// Calibration returns the dry and wet raw bounds.
func (s *Settings) Calibration() (dry, wet int) { return s.calibDryRaw, s.calibWetRaw }

// Degenerate reports whether the calibration bounds are equal and therefore
// unusable for conversion.
func (s *Settings) Degenerate() bool { return s.calibDryRaw == s.calibWetRaw }

// ReportInterval returns the current telemetry cadence.
func (s *Settings) ReportInterval() time.Duration {
	return time.Duration(s.reportIntervalMs) * time.Millisecond
}

// ReportIntervalSeconds returns the cadence in whole seconds, as shown on screen.
func (s *Settings) ReportIntervalSeconds() uint32 { return s.reportIntervalMs / 1000 }

// Snapshot returns a copy of the current values.
func (s *Settings) Snapshot() SettingsSnapshot {
	return SettingsSnapshot{
		TargetPct:        s.targetPct,
		CalibDryRaw:      s.calibDryRaw,
		CalibWetRaw:      s.calibWetRaw,
		ReportIntervalMs: s.reportIntervalMs,
	}
}
