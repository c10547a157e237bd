package logic

// FaultMode is one device-side simulation setting.
type FaultMode struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// ModeNormal is the fault mode id for normal operation.
const ModeNormal = "1"

var faultModes = []FaultMode{
	{"1", "Normal Operation"},
	{"2", "Simulate PIR Sensor Failure"},
	{"3", "Simulate IR Sensor Failure"},
	{"4", "Simulate TCS Sensor Failure"},
	{"5", "Simulate I2C Communication Failure"},
	{"6", "Simulate GPIO Output Failure"},
	{"7", "Simulate Power Issues"},
	{"8", "Simulate Delayed Response"},
	{"9", "Simulate Sensor Cross-Talk"},
	{"10", "Simulate LED1 Failure"},
	{"11", "Simulate LED2 Failure"},
	{"12", "Simulate LED3 Failure"},
}

// FaultModes returns the fixed simulation modes in id order.
func FaultModes() []FaultMode {
	out := make([]FaultMode, len(faultModes))
	copy(out, faultModes)
	return out
}

// IsFaultMode reports whether id is a known simulation mode.
func IsFaultMode(id string) bool {
	for _, m := range faultModes {
		if m.ID == id {
			return true
		}
	}
	return false
}

// FaultModeID maps the description reported in the status payload back to
// its id. Returns "" if the description is unknown.
func FaultModeID(description string) string {
	for _, m := range faultModes {
		if m.Description == description {
			return m.ID
		}
	}
	return ""
}
