package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/sweeney/ledrig-monitor/internal/logic"
)

// statusPayload is the JSON body of GET /status.
// Fields the monitor does not use (detection timestamps) are ignored.
type statusPayload struct {
	CurrentDuty map[string]float64 `json:"current_duty"`
	LED2State   *bool              `json:"LED2_state"`
	Faults      map[string]bool    `json:"faults"`
	FaultMode   *string            `json:"fault_mode"`
}

// setLEDRequest is the JSON body of POST /set_led.
type setLEDRequest struct {
	LED   string `json:"led"`
	State bool   `json:"state"`
}

// setFaultModeRequest is the JSON body of POST /set_fault_mode.
type setFaultModeRequest struct {
	Mode string `json:"mode"`
}

// commandResponse covers both the success and the error shape of command replies.
type commandResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// DecodeStatus parses a /status body into a snapshot.
// Duty cycles are rounded to whole percent and clamped to 0-100.
func DecodeStatus(data []byte) (*logic.Snapshot, error) {
	var p statusPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.CurrentDuty == nil {
		return nil, errors.New("missing current_duty")
	}
	if p.Faults == nil {
		return nil, errors.New("missing faults")
	}

	snap := &logic.Snapshot{
		DutyCycles: make(map[string]int, len(p.CurrentDuty)),
		FaultFlags: make(map[string]bool, len(p.Faults)),
		AuxState:   p.LED2State,
	}
	for ch, duty := range p.CurrentDuty {
		if math.IsNaN(duty) {
			return nil, fmt.Errorf("duty cycle for %s is not a number", ch)
		}
		snap.DutyCycles[ch] = clampPercent(duty)
	}
	for k, v := range p.Faults {
		snap.FaultFlags[k] = v
	}
	if p.FaultMode != nil {
		snap.FaultMode = *p.FaultMode
	}
	return snap, nil
}

// EncodeStatus renders a snapshot in the rig's wire format. Used by fakes
// and tests that stand up a rig.
func EncodeStatus(snap *logic.Snapshot) ([]byte, error) {
	p := statusPayload{
		CurrentDuty: make(map[string]float64, len(snap.DutyCycles)),
		Faults:      snap.FaultFlags,
		LED2State:   snap.AuxState,
		FaultMode:   &snap.FaultMode,
	}
	if p.Faults == nil {
		p.Faults = map[string]bool{}
	}
	for ch, duty := range snap.DutyCycles {
		p.CurrentDuty[ch] = float64(duty)
	}
	return json.Marshal(p)
}

func clampPercent(v float64) int {
	r := int(math.Round(v))
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}
