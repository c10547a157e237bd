package logic

// UnknownFaultDescription is used for fault keys missing from the catalog.
const UnknownFaultDescription = "Unknown fault detected."

// Backend connectivity fault, synthesized when the rig does not answer.
const (
	BackendFaultName        = "Backend Server"
	BackendFaultDescription = "Backend server is not responding."
)

// FaultDescriptor is the human description of a raw fault key.
type FaultDescriptor struct {
	Name        string
	Description string
}

type catalogEntry struct {
	key string
	FaultDescriptor
}

// catalog is the single source of truth for fault naming. Order matters:
// ExtractFaults emits records in this order.
var catalog = []catalogEntry{
	{"PIR_Sensor_Failure", FaultDescriptor{"PIR Sensor", "PIR Sensor Failure Detected."}},
	{"IR_Sensor_Failure", FaultDescriptor{"IR Sensor", "IR Sensor Failure Detected."}},
	{"TCS_Sensor_Failure", FaultDescriptor{"TCS Sensor", "TCS Sensor Failure Detected."}},
	{"I2C_Communication_Failure", FaultDescriptor{"I2C Communication", "I2C Communication Failure Detected."}},
	{"Sensor_CrossTalk", FaultDescriptor{"Sensor Cross-Talk", "Sensor Cross-Talk Detected."}},
	{"PIR_LED_Failure", FaultDescriptor{"PIR LED", "PIR LED Failure Detected."}},
	{"IR_LED_Failure", FaultDescriptor{"IR LED", "IR LED Failure Detected."}},
	{"TCS_LED_Failure", FaultDescriptor{"TCS LED", "TCS LED Failure Detected."}},
	{"LED1_Failure", FaultDescriptor{"LED1", "LED1 Failure Detected."}},
	{"LED2_Failure", FaultDescriptor{"LED2", "LED2 Failure Detected."}},
	{"LED3_Failure", FaultDescriptor{"LED3", "LED3 Failure Detected."}},
	{"GPIO_Output_Failure", FaultDescriptor{"GPIO Output", "GPIO Output Failure Detected."}},
	{"Power_Issues", FaultDescriptor{"Power Issues", "Power Issues Detected."}},
	{"Delayed_Response", FaultDescriptor{"Delayed Response", "Delayed Response Detected."}},
}

var catalogIndex = func() map[string]int {
	m := make(map[string]int, len(catalog))
	for i, e := range catalog {
		m[e.key] = i
	}
	return m
}()

// LookupFault returns the descriptor for key. Unknown keys degrade to the
// key itself with a generic description; ok reports whether key was known.
func LookupFault(key string) (d FaultDescriptor, ok bool) {
	i, ok := catalogIndex[key]
	if !ok {
		return FaultDescriptor{Name: key, Description: UnknownFaultDescription}, false
	}
	return catalog[i].FaultDescriptor, true
}

// FaultKeys returns the catalog keys in catalog order.
func FaultKeys() []string {
	keys := make([]string, len(catalog))
	for i, e := range catalog {
		keys[i] = e.key
	}
	return keys
}

// ChannelFaultKey returns the fault key raised when channel itself fails.
func ChannelFaultKey(channel string) string {
	return channel + "_Failure"
}
