// Package transport provides ParallelRuntime implementations.
//
// Fabric connects N in-process ranks: every rank runs its own sim.Simulation
// (usually in its own goroutine) and exchanges encoded envelopes through the
// fabric exactly as separate OS processes would through a message-passing
// library. Only bytes cross the fabric, never pointers.
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/macrosim/macrosim/sim"
)

// roundState is one generation of the vote collective.
type roundState struct {
	done      chan struct{}
	result    sim.Vote
	delivered [][][]byte // per destination rank
}

func newRoundState() *roundState {
	return &roundState{done: make(chan struct{})}
}

// Fabric is an in-process interconnect between nproc ranks.
type Fabric struct {
	nproc int

	mu       sync.Mutex
	inbox    [][][]byte // envelopes sent during the open round, per destination rank
	arrived  int
	acc      sim.Vote
	round    *roundState
	rounds   int64
	abortErr error
	abortCh  chan struct{}
}

// NewFabric creates a fabric for nproc ranks.
func NewFabric(nproc int) *Fabric {
	if nproc < 1 {
		panic(fmt.Sprintf("NewFabric: nproc must be >= 1, got %d", nproc))
	}
	return &Fabric{
		nproc:   nproc,
		inbox:   make([][][]byte, nproc),
		round:   newRoundState(),
		abortCh: make(chan struct{}),
	}
}

// NProc returns the number of ranks.
func (f *Fabric) NProc() int { return f.nproc }

// Rounds returns the number of completed collectives.
func (f *Fabric) Rounds() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rounds
}

// Endpoint returns the runtime seen by rank.
func (f *Fabric) Endpoint(rank int) *Endpoint {
	if rank < 0 || rank >= f.nproc {
		panic(fmt.Sprintf("Fabric.Endpoint: rank %d out of range [0,%d)", rank, f.nproc))
	}
	return &Endpoint{fabric: f, rank: rank}
}

func (f *Fabric) send(src, dst int, data []byte) error {
	if dst < 0 || dst >= f.nproc {
		return fmt.Errorf("rank %d: destination rank %d out of range [0,%d)", src, dst, f.nproc)
	}
	if dst == src {
		return fmt.Errorf("rank %d: cannot send to itself", src)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.abortErr != nil {
		return &sim.AbortError{Cause: f.abortErr}
	}
	f.inbox[dst] = append(f.inbox[dst], data)
	return nil
}

func (f *Fabric) vote(ctx context.Context, rank int, v sim.Vote) (sim.Vote, [][]byte, error) {
	f.mu.Lock()
	if f.abortErr != nil {
		err := f.abortErr
		f.mu.Unlock()
		return sim.Vote{}, nil, &sim.AbortError{Cause: err}
	}
	rs := f.round
	if f.arrived == 0 {
		f.acc = v
	} else {
		f.acc = f.acc.Merge(v)
	}
	f.arrived++
	if f.arrived == f.nproc {
		// Close the round: freeze what was sent so far, open the next one.
		rs.result = f.acc
		rs.delivered = f.inbox
		f.inbox = make([][][]byte, f.nproc)
		f.arrived = 0
		f.rounds++
		f.round = newRoundState()
		close(rs.done)
		logrus.Tracef("fabric: round %d closed, vote=%+v", f.rounds, rs.result)
	}
	f.mu.Unlock()

	select {
	case <-rs.done:
		return rs.result, rs.delivered[rank], nil
	case <-f.abortCh:
		f.mu.Lock()
		err := f.abortErr
		f.mu.Unlock()
		return sim.Vote{}, nil, &sim.AbortError{Cause: err}
	case <-ctx.Done():
		f.abort(ctx.Err())
		return sim.Vote{}, nil, ctx.Err()
	}
}

func (f *Fabric) abort(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.abortErr != nil {
		return
	}
	f.abortErr = err
	close(f.abortCh)
}

// Endpoint is the sim.ParallelRuntime of one rank on a Fabric.
type Endpoint struct {
	fabric *Fabric
	rank   int
}

// Rank implements sim.ParallelRuntime.
func (e *Endpoint) Rank() int { return e.rank }

// NProc implements sim.ParallelRuntime.
func (e *Endpoint) NProc() int { return e.fabric.nproc }

// Send implements sim.ParallelRuntime.
func (e *Endpoint) Send(dstRank int, data []byte) error {
	return e.fabric.send(e.rank, dstRank, data)
}

// Vote implements sim.ParallelRuntime.
func (e *Endpoint) Vote(ctx context.Context, v sim.Vote) (sim.Vote, [][]byte, error) {
	return e.fabric.vote(ctx, e.rank, v)
}

// Abort implements sim.ParallelRuntime.
func (e *Endpoint) Abort(err error) {
	e.fabric.abort(err)
}
