// Package status provides a thread-safe status tracker for the soil
// controller. The control loop writes it; HTTP handlers and MQTT system events
// read snapshots of it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/soil-controller/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	SamplePeriodMs int64
	LoopDelayMs    int64
	HeartbeatMs    int64
	Broker         string
	HTTPAddr       string
	CollectorURL   string
	Sensor         string
	Keypad         string
	Pump           string
}

// Report is the outcome of the last telemetry attempt.
type Report struct {
	Timestamp time.Time
	Moisture  float64
	Status    int
	Error     string
}

// OK reports whether the attempt was delivered.
func (r Report) OK() bool { return r.Error == "" }

// Snapshot is a point-in-time view of daemon state.
// It is a value type: safe to use after the lock is released.
type Snapshot struct {
	Moisture      float64
	HasReading    bool
	PumpOn        bool
	Screen        string
	Display       []string
	Settings      logic.SettingsSnapshot
	Counts        logic.Counts
	LastReport    *Report
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Screen:    logic.ScreenMain.String(),
		},
	}
}

// Update sets the control state. Called from runLoop on every tick.
func (t *Tracker) Update(moisture float64, hasReading, pumpOn bool, settings logic.SettingsSnapshot, counts logic.Counts) {
	t.mu.Lock()
	t.snap.Moisture = moisture
	t.snap.HasReading = hasReading
	t.snap.PumpOn = pumpOn
	t.snap.Settings = settings
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetDisplay stores the lines currently shown on the panel.
func (t *Tracker) SetDisplay(screen string, lines []string) {
	cp := append([]string(nil), lines...)
	t.mu.Lock()
	t.snap.Screen = screen
	t.snap.Display = cp
	t.mu.Unlock()
}

// SetLastReport records the latest telemetry attempt.
func (t *Tracker) SetLastReport(r Report) {
	t.mu.Lock()
	t.snap.LastReport = &r
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Display = append([]string(nil), t.snap.Display...)
	if t.snap.LastReport != nil {
		r := *t.snap.LastReport
		s.LastReport = &r
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
