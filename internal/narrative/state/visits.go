package state

// Visits counts traversals per element or condition id. Counters start at
// their initial value, only ever grow, and are 64-bit.
type Visits struct {
	counts map[string]uint64
}

// NewVisits creates a table seeded with a copy of initial.
func NewVisits(initial map[string]uint64) *Visits {
	v := &Visits{counts: make(map[string]uint64, len(initial))}
	for id, n := range initial {
		v.counts[id] = n
	}
	return v
}

// Increment adds one visit to id and returns the new count.
func (v *Visits) Increment(id string) uint64 {
	v.counts[id]++
	return v.counts[id]
}

// Count returns the visits recorded for id; unknown ids have zero.
func (v *Visits) Count(id string) uint64 {
	return v.counts[id]
}

// Snapshot returns a copy of all counters.
func (v *Visits) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, len(v.counts))
	for id, n := range v.counts {
		out[id] = n
	}
	return out
}
