package logic

import (
	"testing"
)

func boolPtr(b bool) *bool { return &b }

func TestLookupFaultKnown(t *testing.T) {
	d, ok := LookupFault("I2C_Communication_Failure")
	if !ok {
		t.Fatal("expected I2C key to be known")
	}
	if d.Name != "I2C Communication" {
		t.Errorf("Name: got %q", d.Name)
	}
	if d.Description != "I2C Communication Failure Detected." {
		t.Errorf("Description: got %q", d.Description)
	}
}

func TestLookupFaultUnknown(t *testing.T) {
	d, ok := LookupFault("Flux_Capacitor_Failure")
	if ok {
		t.Error("expected unknown key")
	}
	if d.Name != "Flux_Capacitor_Failure" {
		t.Errorf("Name: got %q, want the raw key", d.Name)
	}
	if d.Description != UnknownFaultDescription {
		t.Errorf("Description: got %q, want %q", d.Description, UnknownFaultDescription)
	}
}

func TestCatalogCoversChannelFaults(t *testing.T) {
	for _, c := range []string{ChannelLED1, ChannelLED2, ChannelLED3} {
		d, ok := LookupFault(ChannelFaultKey(c))
		if !ok {
			t.Errorf("%s: channel fault missing from catalog", c)
			continue
		}
		if d.Name != c {
			t.Errorf("%s: Name got %q", c, d.Name)
		}
	}
}

func TestExtractNoFlagsUp(t *testing.T) {
	snap := &Snapshot{FaultFlags: map[string]bool{}}
	for _, key := range FaultKeys() {
		snap.FaultFlags[key] = false
	}
	if got := ExtractFaults(snap, LivenessUp); len(got) != 0 {
		t.Errorf("expected no faults, got %+v", got)
	}
}

func TestExtractNilSnapshotUp(t *testing.T) {
	if got := ExtractFaults(nil, LivenessUp); len(got) != 0 {
		t.Errorf("expected no faults before the first poll, got %+v", got)
	}
}

func TestExtractDownAlwaysFirst(t *testing.T) {
	tests := []struct {
		name string
		snap *Snapshot
		want int
	}{
		{"nil snapshot", nil, 1},
		{"no flags", &Snapshot{}, 1},
		{"two flags", &Snapshot{FaultFlags: map[string]bool{"LED3_Failure": true, "PIR_Sensor_Failure": true}}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractFaults(tt.snap, LivenessDown)
			if len(got) != tt.want {
				t.Fatalf("expected %d records, got %d", tt.want, len(got))
			}
			if got[0].Category != CategoryConnectivity || got[0].Name != BackendFaultName {
				t.Errorf("first record: got %+v, want backend connectivity fault", got[0])
			}
			n := 0
			for _, r := range got {
				if r.Category == CategoryConnectivity {
					n++
				}
			}
			if n != 1 {
				t.Errorf("expected exactly one connectivity record, got %d", n)
			}
		})
	}
}

func TestExtractCatalogOrder(t *testing.T) {
	snap := &Snapshot{FaultFlags: map[string]bool{
		"Zeta_Failure":       true,
		"LED3_Failure":       true,
		"Alpha_Failure":      true,
		"Sensor_CrossTalk":   true,
		"PIR_Sensor_Failure": true,
		"IR_Sensor_Failure":  false,
	}}

	// Run several times: map iteration order must not leak into the output.
	for i := 0; i < 20; i++ {
		got := ExtractFaults(snap, LivenessUp)
		want := []string{"PIR Sensor", "Sensor Cross-Talk", "LED3", "Alpha_Failure", "Zeta_Failure"}
		if len(got) != len(want) {
			t.Fatalf("expected %d records, got %d", len(want), len(got))
		}
		for j, name := range want {
			if got[j].Name != name {
				t.Errorf("record %d: got %q, want %q", j, got[j].Name, name)
			}
			if got[j].Category != CategoryActual {
				t.Errorf("record %d: got category %q, want Actual", j, got[j].Category)
			}
		}
	}
}

func TestExtractUnknownKeyDescription(t *testing.T) {
	got := ExtractFaults(&Snapshot{FaultFlags: map[string]bool{"New_Firmware_Fault": true}}, LivenessUp)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Description != UnknownFaultDescription {
		t.Errorf("Description: got %q", got[0].Description)
	}
	if got[0].Key != "New_Firmware_Fault" {
		t.Errorf("Key: got %q", got[0].Key)
	}
}

func TestHasChannelFault(t *testing.T) {
	snap := &Snapshot{FaultFlags: map[string]bool{"LED1_Failure": true}}
	if !HasChannelFault(snap, ChannelLED1) {
		t.Error("expected LED1 fault")
	}
	if HasChannelFault(snap, ChannelLED2) {
		t.Error("unexpected LED2 fault")
	}
	if HasChannelFault(nil, ChannelLED1) {
		t.Error("nil snapshot has no channel faults")
	}
}

func TestSnapshotClone(t *testing.T) {
	orig := &Snapshot{
		DutyCycles: map[string]int{"LED1": 50},
		AuxState:   boolPtr(true),
		FaultFlags: map[string]bool{"LED1_Failure": true},
		FaultMode:  "Normal Operation",
	}
	c := orig.Clone()
	c.DutyCycles["LED1"] = 0
	c.FaultFlags["LED1_Failure"] = false
	*c.AuxState = false

	if orig.DutyCycles["LED1"] != 50 {
		t.Error("clone shares DutyCycles")
	}
	if !orig.FaultFlags["LED1_Failure"] {
		t.Error("clone shares FaultFlags")
	}
	if !*orig.AuxState {
		t.Error("clone shares AuxState")
	}
	if (*Snapshot)(nil).Clone() != nil {
		t.Error("clone of nil should be nil")
	}
}
