package sim

import (
	"context"
	"fmt"
	"sync"
)

// workerGroup is the round barrier shared by the worker threads of one rank.
// The last thread to arrive reduces the votes, runs the runtime collective
// on behalf of the rank and routes the delivered envelopes to each thread's
// inbox before releasing everybody.
type workerGroup struct {
	mu      sync.Mutex
	cond    *sync.Cond
	size    int
	arrived int
	gen     uint64
	acc     Vote
	result  Vote
	err     error

	rt       ParallelRuntime
	managers []*EventManager
}

func newWorkerGroup(size int, rt ParallelRuntime, managers []*EventManager) *workerGroup {
	g := &workerGroup{size: size, rt: rt, managers: managers}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// vote blocks until every thread of the rank has voted for the round and
// returns the global vote.
func (g *workerGroup) vote(ctx context.Context, v Vote) (Vote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return Vote{}, g.err
	}
	if g.arrived == 0 {
		g.acc = v
	} else {
		g.acc = g.acc.Merge(v)
	}
	g.arrived++
	gen := g.gen

	if g.arrived == g.size {
		// Every thread is parked in cond.Wait, so holding the lock across
		// the collective blocks nobody.
		global, msgs, err := g.rt.Vote(ctx, g.acc)
		if err == nil {
			err = g.route(msgs)
		}
		g.arrived = 0
		g.gen++
		g.result = global
		if err != nil {
			g.err = err
		}
		g.cond.Broadcast()
		return global, err
	}

	for gen == g.gen && g.err == nil {
		g.cond.Wait()
	}
	if gen == g.gen {
		return Vote{}, g.err
	}
	return g.result, g.err
}

// route hands each delivered envelope to the inbox of its destination thread.
func (g *workerGroup) route(msgs [][]byte) error {
	for _, buf := range msgs {
		rank, thread, err := PeekDestination(buf)
		if err != nil {
			return &EnvelopeError{Rank: g.rt.Rank(), Err: err}
		}
		if rank != g.rt.Rank() || thread < 0 || thread >= len(g.managers) {
			return &EnvelopeError{Rank: g.rt.Rank(), Err: fmt.Errorf("envelope for rank %d thread %d delivered to rank %d", rank, thread, g.rt.Rank())}
		}
		m := g.managers[thread]
		m.ipcInbox = append(m.ipcInbox, buf)
	}
	return nil
}

// abort releases every waiting thread with err.
func (g *workerGroup) abort(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err == nil {
		g.err = &AbortError{Cause: err}
	}
	g.cond.Broadcast()
}
