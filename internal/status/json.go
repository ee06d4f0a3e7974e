package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/soil-controller/internal/logic"
	"github.com/sweeney/soil-controller/internal/mathx"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Moisture      *float64     `json:"moisture_pct"`
	Target        float64      `json:"target_pct"`
	Pump          string       `json:"pump"`
	Screen        string       `json:"screen"`
	Display       []string     `json:"display"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Settings      SettingsJSON `json:"settings"`
	Counts        CountsJSON   `json:"counts"`
	LastReport    *ReportJSON  `json:"last_report,omitempty"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// SettingsJSON is the JSON representation of the runtime settings.
type SettingsJSON struct {
	TargetPct        float64 `json:"target_pct"`
	ReportIntervalMs uint32  `json:"report_interval_ms"`
	CalibDryRaw      int     `json:"calib_dry_raw"`
	CalibWetRaw      int     `json:"calib_wet_raw"`
}

// CountsJSON is the JSON representation of activity counts.
type CountsJSON struct {
	PumpOn         int `json:"pump_on"`
	PumpOff        int `json:"pump_off"`
	Samples        int `json:"samples"`
	Reports        int `json:"reports"`
	ReportFailures int `json:"report_failures"`
}

// ReportJSON is the JSON representation of the last telemetry attempt.
type ReportJSON struct {
	Timestamp string  `json:"timestamp"`
	Moisture  float64 `json:"moisture_pct"`
	OK        bool    `json:"ok"`
	Status    int     `json:"status,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SamplePeriodMs int64  `json:"sample_period_ms"`
	LoopDelayMs    int64  `json:"loop_delay_ms"`
	HeartbeatMs    int64  `json:"heartbeat_ms"`
	Broker         string `json:"broker"`
	HTTPAddr       string `json:"http_addr"`
	CollectorURL   string `json:"collector_url"`
	Sensor         string `json:"sensor"`
	Keypad         string `json:"keypad"`
	Pump           string `json:"pump"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Target:        snap.Settings.TargetPct,
		Pump:          string(logic.StateOf(snap.PumpOn)),
		Screen:        snap.Screen,
		Display:       snap.Display,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Settings: SettingsJSON{
			TargetPct:        snap.Settings.TargetPct,
			ReportIntervalMs: snap.Settings.ReportIntervalMs,
			CalibDryRaw:      snap.Settings.CalibDryRaw,
			CalibWetRaw:      snap.Settings.CalibWetRaw,
		},
		Counts: CountsJSON{
			PumpOn:         snap.Counts.PumpOn,
			PumpOff:        snap.Counts.PumpOff,
			Samples:        snap.Counts.Samples,
			Reports:        snap.Counts.Reports,
			ReportFailures: snap.Counts.ReportFailures,
		},
		Config: ConfigJSON{
			SamplePeriodMs: snap.Config.SamplePeriodMs,
			LoopDelayMs:    snap.Config.LoopDelayMs,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			Broker:         snap.Config.Broker,
			HTTPAddr:       snap.Config.HTTPAddr,
			CollectorURL:   snap.Config.CollectorURL,
			Sensor:         snap.Config.Sensor,
			Keypad:         snap.Config.Keypad,
			Pump:           snap.Config.Pump,
		},
	}
	if inner.Display == nil {
		inner.Display = []string{}
	}
	if snap.HasReading {
		m := mathx.Round2(snap.Moisture)
		inner.Moisture = &m
	}
	if r := snap.LastReport; r != nil {
		inner.LastReport = &ReportJSON{
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
			Moisture:  mathx.Round2(r.Moisture),
			OK:        r.OK(),
			Status:    r.Status,
			Error:     r.Error,
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
