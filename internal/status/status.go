// Package status provides a thread-safe status tracker for the rig monitor.
// It is written by the run loop and read by HTTP handlers and MQTT events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/ledrig-monitor/internal/logic"
	"github.com/sweeney/ledrig-monitor/internal/poller"
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
	PollMs         int64
	HeartbeatMs    int64
	DeviceURL      string
	Broker         string
	HTTPAddr       string
	HistoryBackend string
}

// History summarises the fault history store.
type History struct {
	Count    int
	Degraded bool
	Active   int
	Counts   logic.FaultCounts
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Polled    bool
	Liveness  logic.Liveness
	LastPoll  time.Time
	LastError string
	Device    *logic.Snapshot
	Faults    []logic.FaultRecord
	LEDs      logic.LedStateMap

	History    History
	Suppressed int64

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

// FaultMode returns the armed simulation mode description, empty while DOWN.
func (s Snapshot) FaultMode() string {
	if s.Device == nil {
		return ""
	}
	return s.Device.FaultMode
}

// OperationMode returns the lighting regime for the current device snapshot.
func (s Snapshot) OperationMode() logic.OperationMode {
	return logic.OperationModeFor(s.Device)
}

type override struct {
	on  bool
	gen uint64
}

// Tracker holds mutable daemon state behind an RWMutex.
// It also holds optimistic LED overrides until the next poll replaces them.
type Tracker struct {
	mu        sync.RWMutex
	snap      Snapshot
	overrides map[string]override
	gen       uint64
}

// NewTracker creates a Tracker with the given start time and config.
// Liveness is UP and every LED is off until the first poll.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Liveness:  logic.LivenessUp,
			LEDs:      logic.DeriveLEDs(nil),
			StartTime: startTime,
			Config:    cfg,
		},
		overrides: make(map[string]override),
	}
}

// Update stores a poll result. Called from the run loop for every result.
// Optimistic LED overrides are discarded: the rig's report wins.
func (t *Tracker) Update(r poller.Result) {
	t.mu.Lock()
	t.snap.Polled = true
	t.snap.Liveness = r.Liveness
	t.snap.LastPoll = r.At
	t.snap.LastError = ""
	if r.Err != nil {
		t.snap.LastError = r.Err.Error()
	}
	t.snap.Device = r.Snapshot.Clone()
	t.snap.Faults = append([]logic.FaultRecord(nil), r.Faults...)
	t.snap.LEDs = copyLEDs(r.LEDs)
	t.overrides = make(map[string]override)
	t.gen++
	t.mu.Unlock()
}

// SetHistory sets the history summary.
func (t *Tracker) SetHistory(h History) {
	t.mu.Lock()
	t.snap.History = h
	t.mu.Unlock()
}

// SetSuppressed sets the number of skipped polls.
func (t *Tracker) SetSuppressed(n int64) {
	t.mu.Lock()
	t.snap.Suppressed = n
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

// LED returns the displayed state of channel, including any override.
func (t *Tracker) LED(channel string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if o, ok := t.overrides[channel]; ok {
		return o.on
	}
	return t.snap.LEDs[channel]
}

// Override shows channel as on/off until the next poll. The returned func
// restores the previous display unless a poll or a later override has
// replaced this one in the meantime.
func (t *Tracker) Override(channel string, on bool) func() {
	t.mu.Lock()
	t.gen++
	mine := t.gen
	prev, had := t.overrides[channel]
	t.overrides[channel] = override{on: on, gen: mine}
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		cur, ok := t.overrides[channel]
		if !ok || cur.gen != mine {
			return
		}
		if had {
			t.overrides[channel] = prev
		} else {
			delete(t.overrides, channel)
		}
	}
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Device = t.snap.Device.Clone()
	s.Faults = append([]logic.FaultRecord(nil), t.snap.Faults...)
	s.LEDs = copyLEDs(t.snap.LEDs)
	for ch, o := range t.overrides {
		s.LEDs[ch] = o.on
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

func copyLEDs(m logic.LedStateMap) logic.LedStateMap {
	out := make(logic.LedStateMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
