package track

// violationSet tracks the device identities currently under an active
// boundary violation. Mutated only by notification/clear events from the
// live channel; fully decoupled from position and status updates, and a
// flag persists until an explicit clear. Not safe for concurrent use on its
// own — the engine guards it with its lock.
type violationSet struct {
	flagged map[string]struct{}
}

func newViolationSet() *violationSet {
	return &violationSet{flagged: make(map[string]struct{})}
}

// set flags or clears a device and reports whether the membership changed.
func (v *violationSet) set(deviceID string, violating bool) bool {
	_, had := v.flagged[deviceID]
	if violating {
		v.flagged[deviceID] = struct{}{}
	} else {
		delete(v.flagged, deviceID)
	}
	return had != violating
}

func (v *violationSet) has(deviceID string) bool {
	_, ok := v.flagged[deviceID]
	return ok
}

func (v *violationSet) len() int {
	return len(v.flagged)
}
