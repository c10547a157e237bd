package logic

// DeriveLEDs computes the on/off state of every known channel.
// Duty-cycle channels are on when their duty is above zero; the aux channel
// is taken verbatim. A nil snapshot (rig unreachable) forces everything off.
func DeriveLEDs(snap *Snapshot) LedStateMap {
	out := make(LedStateMap, len(Channels))
	for _, c := range Channels {
		out[c] = false
	}
	if snap == nil {
		return out
	}

	for c, duty := range snap.DutyCycles {
		out[c] = duty > 0
	}
	if snap.AuxState != nil {
		out[AuxChannel] = *snap.AuxState
	} else {
		out[AuxChannel] = false
	}
	return out
}

// Thresholds on the TCS duty cycle for OperationModeFor.
const (
	dayDutyAbove   = 80
	nightDutyBelow = 20
)

// OperationModeFor infers the lighting regime from the TCS duty cycle.
// Returns "" when the snapshot is nil.
func OperationModeFor(snap *Snapshot) OperationMode {
	if snap == nil {
		return ""
	}
	tcs := snap.DutyCycles[ChannelTCS]
	switch {
	case tcs > dayDutyAbove:
		return ModeDay
	case tcs < nightDutyBelow:
		return ModeNight
	default:
		return ModeModerate
	}
}
