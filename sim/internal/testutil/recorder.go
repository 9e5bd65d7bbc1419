// Package testutil provides shared test infrastructure for the kernel.
// It consolidates recording handlers and ordering assertions used across
// sim/ and its sub-package tests.
package testutil

import (
	"sync"
	"testing"

	"github.com/macrosim/macrosim/sim"
)

// Delivery is one event observed by a Recorder.
type Delivery struct {
	Name    string
	Time    int64
	LinkID  uint32
	Seqnum  uint64
	Payload any
}

// Recorder collects deliveries from any number of handlers, possibly
// running on different worker goroutines.
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
}

// Handler returns a sim.Handler that records under name and then calls
// next, if not nil.
func (r *Recorder) Handler(name string, next func(ev *sim.Event)) sim.Handler {
	return sim.HandlerFunc(func(ev *sim.Event) {
		r.mu.Lock()
		r.deliveries = append(r.deliveries, Delivery{
			Name:    name,
			Time:    ev.Time(),
			LinkID:  ev.LinkID(),
			Seqnum:  ev.Seqnum(),
			Payload: ev.Payload(),
		})
		r.mu.Unlock()
		if next != nil {
			next(ev)
		}
	})
}

// Deliveries returns a copy of everything recorded so far.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivery, len(r.deliveries))
	copy(out, r.deliveries)
	return out
}

// For returns the deliveries recorded under name, in delivery order.
func (r *Recorder) For(name string) []Delivery {
	var out []Delivery
	for _, d := range r.Deliveries() {
		if d.Name == name {
			out = append(out, d)
		}
	}
	return out
}

// AssertEventOrder fails t unless ds is ordered by (time, link ID, seqnum).
func AssertEventOrder(t *testing.T, ds []Delivery) {
	t.Helper()
	for i := 1; i < len(ds); i++ {
		a, b := ds[i-1], ds[i]
		if a.Time > b.Time ||
			(a.Time == b.Time && a.LinkID > b.LinkID) ||
			(a.Time == b.Time && a.LinkID == b.LinkID && a.Seqnum >= b.Seqnum) {
			t.Errorf("delivery %d (t=%d link=%d seq=%d) not after delivery %d (t=%d link=%d seq=%d)",
				i, b.Time, b.LinkID, b.Seqnum, i-1, a.Time, a.LinkID, a.Seqnum)
		}
	}
}

// Times extracts the delivery times of ds.
func Times(ds []Delivery) []int64 {
	out := make([]int64, len(ds))
	for i, d := range ds {
		out[i] = d.Time
	}
	return out
}
