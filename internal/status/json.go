package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/ledrig-monitor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Liveness      string          `json:"liveness"`
	Ready         bool            `json:"ready"`
	LastPoll      string          `json:"last_poll,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	Faults        []FaultJSON     `json:"faults"`
	LEDs          map[string]bool `json:"leds"`
	FaultMode     *FaultModeJSON  `json:"fault_mode,omitempty"`
	OperationMode string          `json:"operation_mode,omitempty"`
	DutyCycles    map[string]int  `json:"duty_cycles,omitempty"`
	History       HistoryJSON     `json:"history"`
	Suppressed    int64           `json:"suppressed_polls"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	MQTT          MQTTStatus      `json:"mqtt"`
	Network       *NetworkJSON    `json:"network,omitempty"`
	Config        ConfigJSON      `json:"config"`
}

// FaultJSON is the JSON representation of an active fault record.
type FaultJSON struct {
	Key         string `json:"key,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// FaultModeJSON names the armed simulation mode.
type FaultModeJSON struct {
	ID          string `json:"id,omitempty"`
	Description string `json:"description"`
}

// HistoryJSON summarises the history store.
type HistoryJSON struct {
	Count    int  `json:"count"`
	Degraded bool `json:"degraded"`
	Active   int  `json:"active"`
	Raised   int  `json:"raised"`
	Cleared  int  `json:"cleared"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
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
	PollMs         int64  `json:"poll_ms"`
	HeartbeatMs    int64  `json:"heartbeat_ms"`
	DeviceURL      string `json:"device_url"`
	Broker         string `json:"broker"`
	HTTPAddr       string `json:"http_addr"`
	HistoryBackend string `json:"history_backend"`
}

// Faults converts fault records to their JSON form. Never returns nil.
func Faults(records []logic.FaultRecord) []FaultJSON {
	out := make([]FaultJSON, 0, len(records))
	for _, r := range records {
		out = append(out, FaultJSON{
			Key:         r.Key,
			Name:        r.Name,
			Description: r.Description,
			Category:    string(r.Category),
		})
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	live := string(snap.Liveness)
	if live == "" {
		live = "UNKNOWN"
	}

	inner := StatusInner{
		Liveness:      live,
		Ready:         snap.Polled,
		LastError:     snap.LastError,
		Faults:        Faults(snap.Faults),
		LEDs:          snap.LEDs,
		OperationMode: string(snap.OperationMode()),
		History: HistoryJSON{
			Count:    snap.History.Count,
			Degraded: snap.History.Degraded,
			Active:   snap.History.Active,
			Raised:   snap.History.Counts.Raised,
			Cleared:  snap.History.Counts.Cleared,
		},
		Suppressed:    snap.Suppressed,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:         snap.Config.PollMs,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			DeviceURL:      snap.Config.DeviceURL,
			Broker:         snap.Config.Broker,
			HTTPAddr:       snap.Config.HTTPAddr,
			HistoryBackend: snap.Config.HistoryBackend,
		},
	}
	if inner.LEDs == nil {
		inner.LEDs = logic.DeriveLEDs(nil)
	}
	if !snap.LastPoll.IsZero() {
		inner.LastPoll = snap.LastPoll.UTC().Format(time.RFC3339)
	}
	if snap.Device != nil {
		inner.DutyCycles = snap.Device.DutyCycles
		if snap.Device.FaultMode != "" {
			inner.FaultMode = &FaultModeJSON{
				ID:          logic.FaultModeID(snap.Device.FaultMode),
				Description: snap.Device.FaultMode,
			}
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
