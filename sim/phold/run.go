package phold

import (
	"context"
	"sync"

	"github.com/macrosim/macrosim/sim"
	"github.com/macrosim/macrosim/sim/trace"
	"github.com/macrosim/macrosim/sim/transport"
)

// Result gathers what every rank of a PHOLD run produced.
type Result struct {
	Ranks    []sim.Stats
	Received int64
	Trace    *trace.SimulationTrace // nil unless the kernel traced events
}

// EventsExecuted sums executed events over all ranks.
func (r *Result) EventsExecuted() int64 {
	var n int64
	for _, s := range r.Ranks {
		n += s.EventsExecuted
	}
	return n
}

// FinalClock is the latest clock reached by any worker.
func (r *Result) FinalClock() int64 {
	var t int64
	for _, s := range r.Ranks {
		t = max(t, s.FinalClock)
	}
	return t
}

// Run builds and runs the model on nproc in-process ranks, each with
// kernel.Threads worker threads, using a block partition.
func Run(ctx context.Context, kernel sim.Config, cfg Config, nproc int) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	threads := max(kernel.Threads, 1)
	res := &Result{Ranks: make([]sim.Stats, nproc)}
	var (
		mu     sync.Mutex
		traces []*trace.SimulationTrace
	)
	runRank := func(rank int, rt sim.ParallelRuntime) error {
		s, err := sim.NewSimulation(kernel, rt, sim.BlockPartition(cfg.Components, nproc, threads))
		if err != nil {
			return err
		}
		model, err := Build(s.Context(), cfg)
		if err != nil {
			return err
		}
		if err := s.Run(ctx); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		res.Ranks[rank] = s.Stats()
		res.Received += model.Received()
		for _, m := range s.Context().Managers() {
			if m.Trace() != nil {
				traces = append(traces, m.Trace())
			}
		}
		return nil
	}

	var err error
	if nproc == 1 {
		err = runRank(0, sim.NewSerialRuntime())
	} else {
		err = transport.RunRanks(transport.NewFabric(nproc), runRank)
	}
	if err != nil {
		return nil, err
	}
	if len(traces) > 0 {
		res.Trace = trace.Merge(traces...)
	}
	return res, nil
}
