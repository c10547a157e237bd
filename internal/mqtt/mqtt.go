// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/ledrig-monitor/internal/logic"
)

// TopicFaults is the MQTT topic for newly logged faults.
const TopicFaults = "ledrig/monitor/faults"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "ledrig/monitor/system"

// System event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventLiveness    = "LIVENESS"
	EventReconnected = "RECONNECTED"
	EventOffline     = "OFFLINE"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishFault sends one new fault history entry to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishFault(entry logic.HistoryEntry) error

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
	Event      string // e.g., "STARTUP", "SHUTDOWN", "LIVENESS"
	Reason     string // e.g., "SIGTERM", "DOWN"
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// FaultPayload is the MQTT message payload for a logged fault.
type FaultPayload struct {
	Fault FaultPayloadInner `json:"fault"`
}

// FaultPayloadInner contains the fault details.
type FaultPayloadInner struct {
	OccurredAt  string `json:"occurredAt"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// FormatFaultPayload creates the JSON payload for a fault history entry.
func FormatFaultPayload(entry logic.HistoryEntry) ([]byte, error) {
	payload := FaultPayload{
		Fault: FaultPayloadInner{
			OccurredAt:  entry.OccurredAt.UTC().Format(time.RFC3339),
			Name:        entry.Name,
			Description: entry.Description,
			Category:    string(entry.Category),
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

// willPayload is registered with the broker as the last will. It has no
// timestamp since it is composed at connect time, not when it fires.
func willPayload() []byte {
	data, _ := json.Marshal(SystemPayload{
		System: SystemPayloadInner{Event: EventOffline, Reason: "connection lost"},
	})
	return data
}

// Nop is a Publisher that drops everything. Used when no broker is configured.
type Nop struct{}

// PublishFault does nothing.
func (Nop) PublishFault(logic.HistoryEntry) error { return nil }

// PublishSystem does nothing.
func (Nop) PublishSystem(SystemEvent) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

// IsConnected always reports false.
func (Nop) IsConnected() bool { return false }
