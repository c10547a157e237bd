package logic

import (
	"testing"
	"time"
)

var pirFault = FaultRecord{Key: "PIR_Sensor_Failure", Name: "PIR Sensor", Description: "PIR Sensor Failure Detected.", Category: CategoryActual}

var backendFault = FaultRecord{Name: BackendFaultName, Description: BackendFaultDescription, Category: CategoryConnectivity}

func TestNewDetector(t *testing.T) {
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(startTime)
	if d == nil {
		t.Fatal("NewDetector returned nil")
	}
	if d.ActiveCount() != 0 {
		t.Errorf("expected no active faults, got %d", d.ActiveCount())
	}
	if !d.startTime.Equal(startTime) {
		t.Errorf("expected startTime %v, got %v", startTime, d.startTime)
	}
	if !d.lastHeartbeat.Equal(startTime) {
		t.Errorf("expected lastHeartbeat %v, got %v", startTime, d.lastHeartbeat)
	}
}

func TestProcessNewFault(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(now)

	entries := d.Process([]FaultRecord{pirFault}, now)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Name != "PIR Sensor" {
		t.Errorf("Name: got %q, want PIR Sensor", e.Name)
	}
	if e.Category != CategoryActual {
		t.Errorf("Category: got %q, want Actual", e.Category)
	}
	if !e.OccurredAt.Equal(now) {
		t.Errorf("OccurredAt: got %v, want %v", e.OccurredAt, now)
	}
	if !d.IsActive(pirFault.Identity()) {
		t.Error("PIR fault should be tracked as active")
	}
}

func TestProcessRepeatedFaultIsIdempotent(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(now)

	d.Process([]FaultRecord{pirFault}, now)
	for i := 1; i <= 10; i++ {
		entries := d.Process([]FaultRecord{pirFault}, now.Add(time.Duration(i)*5*time.Second))
		if len(entries) != 0 {
			t.Errorf("poll %d: expected no entries for unchanged fault, got %d", i, len(entries))
		}
	}
}

func TestProcessFaultReappears(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(t0)

	first := d.Process([]FaultRecord{pirFault}, t0)
	cleared := d.Process(nil, t0.Add(5*time.Second))
	second := d.Process([]FaultRecord{pirFault}, t0.Add(10*time.Second))

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one entry per appearance, got %d and %d", len(first), len(second))
	}
	if len(cleared) != 0 {
		t.Errorf("clearing should not produce entries, got %d", len(cleared))
	}
	if first[0].OccurredAt.Equal(second[0].OccurredAt) {
		t.Error("reappearance should carry its own timestamp")
	}

	c := d.Counts()
	if c.Raised != 2 || c.Cleared != 1 {
		t.Errorf("counts: got %+v, want Raised=2 Cleared=1", c)
	}
}

func TestProcessIdentityIgnoresDescription(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(now)

	d.Process([]FaultRecord{pirFault}, now)
	reworded := pirFault
	reworded.Description = "something else"
	if entries := d.Process([]FaultRecord{reworded}, now.Add(time.Second)); len(entries) != 0 {
		t.Errorf("same (name, category) should not be re-logged, got %d entries", len(entries))
	}
}

func TestProcessIdentityIncludesCategory(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(now)

	d.Process([]FaultRecord{pirFault}, now)
	other := pirFault
	other.Category = CategoryConnectivity
	entries := d.Process([]FaultRecord{pirFault, other}, now.Add(time.Second))
	if len(entries) != 1 {
		t.Fatalf("expected the new category to be logged, got %d entries", len(entries))
	}
	if entries[0].Category != CategoryConnectivity {
		t.Errorf("Category: got %q, want Connectivity", entries[0].Category)
	}
}

func TestProcessDuplicateWithinPoll(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(now)

	entries := d.Process([]FaultRecord{pirFault, pirFault}, now)
	if len(entries) != 1 {
		t.Errorf("expected duplicates within one poll to collapse, got %d", len(entries))
	}
}

func TestProcessBackendOutage(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(now)

	d.Process([]FaultRecord{pirFault}, now)

	// Rig unreachable: PIR no longer reported, backend fault appears.
	entries := d.Process([]FaultRecord{backendFault}, now.Add(5*time.Second))
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Name != BackendFaultName {
		t.Errorf("expected backend fault, got %q", entries[0].Name)
	}
	if d.IsActive(pirFault.Identity()) {
		t.Error("PIR fault should no longer be active while the rig is down")
	}

	// Rig back with no faults.
	if entries := d.Process(nil, now.Add(10*time.Second)); len(entries) != 0 {
		t.Errorf("expected no entries on recovery, got %d", len(entries))
	}
	if d.ActiveCount() != 0 {
		t.Errorf("expected nothing active, got %d", d.ActiveCount())
	}
}

func TestHeartbeatDisabled(t *testing.T) {
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(startTime)

	for _, interval := range []time.Duration{0, -time.Second} {
		if hb := d.CheckHeartbeat(startTime.Add(time.Hour), interval); hb != nil {
			t.Errorf("interval %v: expected nil heartbeat", interval)
		}
	}
}

func TestHeartbeatInterval(t *testing.T) {
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(startTime)
	interval := 15 * time.Minute

	if hb := d.CheckHeartbeat(startTime.Add(14*time.Minute), interval); hb != nil {
		t.Error("expected no heartbeat before interval")
	}

	d.Process([]FaultRecord{pirFault}, startTime.Add(time.Minute))

	hb := d.CheckHeartbeat(startTime.Add(15*time.Minute), interval)
	if hb == nil {
		t.Fatal("expected heartbeat at interval")
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", hb.Uptime)
	}
	if hb.Counts.Raised != 1 {
		t.Errorf("Counts.Raised: got %d, want 1", hb.Counts.Raised)
	}
	if hb.Active != 1 {
		t.Errorf("Active: got %d, want 1", hb.Active)
	}

	if hb := d.CheckHeartbeat(startTime.Add(20*time.Minute), interval); hb != nil {
		t.Error("expected no heartbeat until the next interval elapses")
	}
	if hb := d.CheckHeartbeat(startTime.Add(30*time.Minute), interval); hb == nil {
		t.Error("expected second heartbeat")
	}
}
