// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/soil-controller/internal/logic"
	"github.com/sweeney/soil-controller/internal/mathx"
)

// Topic is the MQTT topic for pump events.
const Topic = "irrigation/soil/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "irrigation/soil/system"

// System event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventReconnected = "RECONNECTED"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishPump sends a pump transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishPump(event logic.PumpEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Pump PumpPayload `json:"pump"`
}

// PumpPayload contains the pump event details.
type PumpPayload struct {
	Timestamp string  `json:"timestamp"`
	Event     string  `json:"event"`
	State     string  `json:"state"`
	Moisture  float64 `json:"moisture_pct"`
	Target    float64 `json:"target_pct"`
}

// EventName returns PUMP_ON or PUMP_OFF.
func EventName(state logic.PumpState) string {
	return "PUMP_" + string(state)
}

// FormatPayload creates the JSON payload for a pump event.
func FormatPayload(event logic.PumpEvent) ([]byte, error) {
	payload := Payload{
		Pump: PumpPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     EventName(event.State),
			State:     string(event.State),
			Moisture:  mathx.Round2(event.Moisture),
			Target:    mathx.Round2(event.Target),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
