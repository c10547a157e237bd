package logic

import "time"

// FaultCounts tracks transitions seen since startup.
type FaultCounts struct {
	Raised  int
	Cleared int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    FaultCounts
	Active    int
}

// Detector tracks which faults are currently active and reports the ones
// that just appeared. Identity is (name, category); the poll timestamp plays
// no part in it, so an unchanged fault set is never reported twice.
type Detector struct {
	active        map[Identity]bool
	counts        FaultCounts
	startTime     time.Time
	lastHeartbeat time.Time
}

// NewDetector creates a detector with nothing active.
// The startTime is used for calculating uptime in heartbeat events.
func NewDetector(startTime time.Time) *Detector {
	return &Detector{
		active:        make(map[Identity]bool),
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process compares faults with the currently tracked set and returns one
// history entry per newly active fault, stamped with at. The tracked set is
// then replaced by faults.
func (d *Detector) Process(faults []FaultRecord, at time.Time) []HistoryEntry {
	next := make(map[Identity]bool, len(faults))
	var entries []HistoryEntry

	for _, f := range faults {
		id := f.Identity()
		if next[id] {
			// Same identity twice in one poll
			continue
		}
		next[id] = true
		if d.active[id] {
			continue
		}
		entries = append(entries, HistoryEntry{
			Name:        f.Name,
			Description: f.Description,
			Category:    f.Category,
			OccurredAt:  at,
		})
	}

	for id := range d.active {
		if !next[id] {
			d.counts.Cleared++
		}
	}
	d.counts.Raised += len(entries)
	d.active = next

	return entries
}

// IsActive reports whether a fault with the given identity is tracked as active.
func (d *Detector) IsActive(id Identity) bool {
	return d.active[id]
}

// ActiveCount returns the number of tracked active faults.
func (d *Detector) ActiveCount() int {
	return len(d.active)
}

// Counts returns a copy of the transition counters.
func (d *Detector) Counts() FaultCounts {
	return d.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.counts,
		Active:    len(d.active),
	}
}
