package logic

import "sort"

// ExtractFaults returns the active fault records for a snapshot.
// A DOWN rig contributes a single connectivity record, always first.
// Flags are emitted in catalog order; keys unknown to the catalog follow in
// lexical order so the output is reproducible.
func ExtractFaults(snap *Snapshot, live Liveness) []FaultRecord {
	var out []FaultRecord

	if live == LivenessDown {
		out = append(out, FaultRecord{
			Name:        BackendFaultName,
			Description: BackendFaultDescription,
			Category:    CategoryConnectivity,
		})
	}

	if snap == nil {
		return out
	}

	for _, e := range catalog {
		if snap.FaultFlags[e.key] {
			out = append(out, FaultRecord{
				Key:         e.key,
				Name:        e.Name,
				Description: e.Description,
				Category:    CategoryActual,
			})
		}
	}

	var unknown []string
	for key, raised := range snap.FaultFlags {
		if !raised {
			continue
		}
		if _, known := catalogIndex[key]; !known {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		d, _ := LookupFault(key)
		out = append(out, FaultRecord{
			Key:         key,
			Name:        d.Name,
			Description: d.Description,
			Category:    CategoryActual,
		})
	}

	return out
}

// HasChannelFault reports whether the snapshot flags channel as failed.
func HasChannelFault(snap *Snapshot, channel string) bool {
	if snap == nil {
		return false
	}
	return snap.FaultFlags[ChannelFaultKey(channel)]
}
