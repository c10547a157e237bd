// Package logic contains the pure fault and LED classification rules for the rig monitor.
// This package has NO external dependencies (no HTTP, MQTT, storage, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Liveness reports whether the last poll of the rig succeeded.
type Liveness string

const (
	LivenessUp   Liveness = "UP"
	LivenessDown Liveness = "DOWN"
)

// Category classifies a fault record.
type Category string

const (
	CategoryActual       Category = "Actual"
	CategoryConnectivity Category = "Connectivity"
)

// Channel names reported by the rig.
const (
	ChannelPIR  = "PIR"
	ChannelIR   = "IR"
	ChannelTCS  = "TCS"
	ChannelLED1 = "LED1"
	ChannelLED2 = "LED2"
	ChannelLED3 = "LED3"
)

// AuxChannel is the one channel reported as a plain boolean rather than a duty cycle.
const AuxChannel = ChannelLED2

// Channels lists every known channel in display order.
var Channels = []string{ChannelPIR, ChannelIR, ChannelTCS, ChannelLED1, ChannelLED2, ChannelLED3}

// IsChannel reports whether name is a known channel.
func IsChannel(name string) bool {
	for _, c := range Channels {
		if c == name {
			return true
		}
	}
	return false
}

// Snapshot is one polled report of device state.
// Treat it as immutable once built; the poller replaces it wholesale.
type Snapshot struct {
	// DutyCycles maps channel name to PWM duty cycle percent (0-100).
	DutyCycles map[string]int
	// AuxState is the boolean state of AuxChannel; nil when not reported.
	AuxState *bool
	// FaultFlags maps raw fault key to whether it is currently raised.
	FaultFlags map[string]bool
	// FaultMode is the description of the armed simulation mode.
	FaultMode string
}

// Clone returns a deep copy so callers cannot mutate shared maps.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		DutyCycles: make(map[string]int, len(s.DutyCycles)),
		FaultFlags: make(map[string]bool, len(s.FaultFlags)),
		FaultMode:  s.FaultMode,
	}
	for k, v := range s.DutyCycles {
		out.DutyCycles[k] = v
	}
	for k, v := range s.FaultFlags {
		out.FaultFlags[k] = v
	}
	if s.AuxState != nil {
		v := *s.AuxState
		out.AuxState = &v
	}
	return out
}

// FaultRecord is a user-facing description of one active problem.
type FaultRecord struct {
	Key         string
	Name        string
	Description string
	Category    Category
}

// Identity is the deduplication key of a fault: (name, category).
type Identity struct {
	Name     string
	Category Category
}

// Identity returns the deduplication key of the record.
func (r FaultRecord) Identity() Identity {
	return Identity{Name: r.Name, Category: r.Category}
}

// HistoryEntry is one logged fault occurrence. Immutable once written.
type HistoryEntry struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// LedStateMap maps channel name to on/off.
type LedStateMap map[string]bool

// OperationMode is the lighting regime inferred from the TCS duty cycle.
type OperationMode string

const (
	ModeDay      OperationMode = "Day Mode"
	ModeNight    OperationMode = "Night Mode"
	ModeModerate OperationMode = "Moderate Light Mode"
)
