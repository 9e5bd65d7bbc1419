package sim

import (
	"context"
	"fmt"
	"sync"
)

// Vote is the value contributed by each worker to the round collective.
// Time, Final and Lookahead reduce with min, Stop with logical or.
type Vote struct {
	Time      int64 // earliest event that may still execute on the worker
	Final     int64 // simulation stop time
	Lookahead int64 // smallest cross-worker link latency
	Stop      bool
}

// Merge folds o into v.
func (v Vote) Merge(o Vote) Vote {
	return Vote{
		Time:      min(v.Time, o.Time),
		Final:     min(v.Final, o.Final),
		Lookahead: min(v.Lookahead, o.Lookahead),
		Stop:      v.Stop || o.Stop,
	}
}

// ParallelRuntime is the physical transport between ranks.
//
// Send buffers an encoded envelope for dstRank; the bytes are delivered to
// that rank by the next Vote collective. Vote blocks until every rank has
// voted and returns the reduced vote together with the envelopes addressed
// to this rank during the round that just closed. Abort unblocks every rank
// waiting in a collective with the given error.
type ParallelRuntime interface {
	Rank() int
	NProc() int
	Send(dstRank int, data []byte) error
	Vote(ctx context.Context, v Vote) (Vote, [][]byte, error)
	Abort(err error)
}

// SerialRuntime is the runtime of a single-rank simulation.
type SerialRuntime struct {
	mu      sync.Mutex
	aborted error
}

// NewSerialRuntime creates a single-rank runtime.
func NewSerialRuntime() *SerialRuntime {
	return &SerialRuntime{}
}

// Rank implements ParallelRuntime.
func (r *SerialRuntime) Rank() int { return 0 }

// NProc implements ParallelRuntime.
func (r *SerialRuntime) NProc() int { return 1 }

// Send implements ParallelRuntime. A single rank has no peers.
func (r *SerialRuntime) Send(dstRank int, data []byte) error {
	return fmt.Errorf("serial runtime cannot send to rank %d", dstRank)
}

// Vote implements ParallelRuntime; with one rank the local vote is global.
func (r *SerialRuntime) Vote(ctx context.Context, v Vote) (Vote, [][]byte, error) {
	if err := ctx.Err(); err != nil {
		return Vote{}, nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aborted != nil {
		return Vote{}, nil, &AbortError{Cause: r.aborted}
	}
	return v, nil, nil
}

// Abort implements ParallelRuntime.
func (r *SerialRuntime) Abort(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aborted == nil {
		r.aborted = err
	}
}
