// Package trace provides execution-trace recording for determinism analysis.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// ExecutionRecord captures a single executed event.
type ExecutionRecord struct {
	Time   int64
	LinkID uint32
	Seqnum uint64
	Rank   int
	Thread int
	Kind   string // payload type name
}

// Less orders records the way the kernel orders events: time → link ID → seqnum.
func (r ExecutionRecord) Less(o ExecutionRecord) bool {
	if r.Time != o.Time {
		return r.Time < o.Time
	}
	if r.LinkID != o.LinkID {
		return r.LinkID < o.LinkID
	}
	return r.Seqnum < o.Seqnum
}
