package sim_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macrosim/macrosim/sim"
	"github.com/macrosim/macrosim/sim/internal/testutil"
	"github.com/macrosim/macrosim/sim/transport"
)

// note is a payload that can cross ranks.
type note string

func (n note) MarshalBinary() ([]byte, error) { return []byte(n), nil }
func (n note) PayloadKind() string            { return "test.note" }

func decodeNote(data []byte) (any, error) { return note(data), nil }

// layout is a partition shape: ranks x threads.
type layout struct {
	name    string
	nproc   int
	threads int
}

var layouts = []layout{
	{"serial", 1, 1},
	{"threads", 1, 3},
	{"ranks", 3, 1},
	{"ranks and threads", 2, 2},
}

// runOn builds and runs one simulation per rank of l with build, and returns
// the per-rank stats.
func runOn(t *testing.T, l layout, cfg sim.Config, n int, build func(c *sim.Context) error) ([]sim.Stats, error) {
	t.Helper()
	cfg.Threads = l.threads
	stats := make([]sim.Stats, l.nproc)
	runRank := func(rank int, rt sim.ParallelRuntime) error {
		s, err := sim.NewSimulation(cfg, rt, sim.BlockPartition(n, l.nproc, l.threads))
		if err != nil {
			return err
		}
		if err := s.Context().Payloads().Register("test.note", decodeNote); err != nil {
			return err
		}
		if err := build(s.Context()); err != nil {
			return err
		}
		err = s.Run(context.Background())
		stats[rank] = s.Stats()
		return err
	}
	if l.nproc == 1 {
		return stats, runRank(0, sim.NewSerialRuntime())
	}
	return stats, transport.RunRanks(transport.NewFabric(l.nproc), runRank)
}

// buildTriangle wires A->C (latency 1), A->B (5) and B->C (5). A fires once
// at time 0 on both of its links and B forwards whatever it gets.
func buildTriangle(rec *testutil.Recorder) func(c *sim.Context) error {
	return func(c *sim.Context) error {
		local := make(map[sim.ComponentID]*sim.Component)
		for id := sim.ComponentID(0); id < 3; id++ {
			if pl, _ := c.Partition().Lookup(id); pl.Rank != c.Rank() {
				continue
			}
			comp, err := sim.NewComponent(c, id)
			if err != nil {
				return err
			}
			local[id] = comp
		}
		var bToC sim.Link
		if b := local[1]; b != nil {
			if err := b.RegisterPort(0, rec.Handler("B", func(*sim.Event) { bToC.Send(0, note("b")) })); err != nil {
				return err
			}
		}
		if comp := local[2]; comp != nil {
			if err := comp.RegisterPort(0, rec.Handler("C", nil)); err != nil {
				return err
			}
		}
		if b := local[1]; b != nil {
			var err error
			if bToC, err = b.Connect(2, 0, 5); err != nil {
				return err
			}
		}
		if a := local[0]; a != nil {
			toC, err := a.Connect(2, 0, 1)
			if err != nil {
				return err
			}
			toB, err := a.Connect(1, 0, 5)
			if err != nil {
				return err
			}
			a.SendExecutionEvent(0, rec.Handler("A", func(*sim.Event) {
				toC.Send(0, note("a"))
				toB.Send(0, note("a"))
			}), nil)
		}
		return nil
	}
}

func TestSimulation_TriangleDeliversInTimeOrder(t *testing.T) {
	for _, l := range layouts {
		t.Run(l.name, func(t *testing.T) {
			// GIVEN A->C(1), A->B(5), B->C(5)
			rec := &testutil.Recorder{}

			// WHEN the simulation runs
			stats, err := runOn(t, l, sim.Config{}, 3, buildTriangle(rec))
			require.NoError(t, err)

			// THEN C receives A's note at 1 and B's at 10
			c := rec.For("C")
			require.Len(t, c, 2)
			assert.Equal(t, []int64{1, 10}, testutil.Times(c))
			assert.Equal(t, note("a"), c[0].Payload)
			assert.Equal(t, note("b"), c[1].Payload)
			assert.Equal(t, []int64{5}, testutil.Times(rec.For("B")))
			testutil.AssertEventOrder(t, c)

			var executed int64
			for _, s := range stats {
				executed += s.EventsExecuted
			}
			assert.Equal(t, int64(4), executed)
		})
	}
}

// buildFaulty places on component 0 a handler that schedules into the past,
// and keeps every other component busy with a ticker.
func buildFaulty(c *sim.Context) error {
	for _, id := range c.Partition().Local(c.Rank()) {
		comp, err := sim.NewComponent(c, id)
		if err != nil {
			return err
		}
		if id == 0 {
			comp.SendExecutionEvent(3, sim.HandlerFunc(func(*sim.Event) {
				comp.SendExecutionEvent(comp.Now()-1, sim.HandlerFunc(func(*sim.Event) {}), nil)
			}), nil)
			continue
		}
		var tick sim.HandlerFunc
		tick = func(*sim.Event) { comp.SendSelfEvent(1, tick, nil) }
		comp.SendExecutionEvent(0, tick, nil)
	}
	return nil
}

func TestSimulation_CausalityViolationAbortsEveryWorker(t *testing.T) {
	for _, l := range layouts {
		t.Run(l.name, func(t *testing.T) {
			// WHEN a handler schedules an event before now
			_, err := runOn(t, l, sim.Config{FinalTime: 1000}, 4, buildFaulty)

			// THEN the run fails with the causality error, not a secondary abort
			var causality *sim.CausalityError
			require.True(t, errors.As(err, &causality), "got %v", err)
			assert.Equal(t, int64(3), causality.Now)
			assert.Equal(t, int64(2), causality.Event)
		})
	}
}

func TestSimulation_NonSerializablePayloadAcrossRanks(t *testing.T) {
	// GIVEN A on rank 0 sending an int to B on rank 1
	build := func(c *sim.Context) error {
		local := c.Partition().Local(c.Rank())
		comp, err := sim.NewComponent(c, local[0])
		if err != nil {
			return err
		}
		if comp.ID() == 1 {
			return comp.RegisterPort(0, sim.HandlerFunc(func(*sim.Event) {}))
		}
		link, err := comp.Connect(1, 0, 2)
		if err != nil {
			return err
		}
		comp.SendExecutionEvent(0, sim.HandlerFunc(func(*sim.Event) { link.Send(0, 42) }), nil)
		return nil
	}

	// WHEN the simulation runs
	_, err := runOn(t, layout{"ranks", 2, 1}, sim.Config{}, 2, build)

	// THEN the send fails the run with an envelope error
	var envErr *sim.EnvelopeError
	assert.True(t, errors.As(err, &envErr), "got %v", err)
}

// buildRing connects the components in a ring with latency 10, which gives
// every layout a finite lookahead, and starts a ticker with the given period
// on each of them. Component 0 stops the run when its ticker reaches stopAt.
func buildRing(rec *testutil.Recorder, n int, period, stopAt int64) func(c *sim.Context) error {
	return func(c *sim.Context) error {
		var local []*sim.Component
		for _, id := range c.Partition().Local(c.Rank()) {
			comp, err := sim.NewComponent(c, id)
			if err != nil {
				return err
			}
			if err := comp.RegisterPort(0, sim.HandlerFunc(func(*sim.Event) {})); err != nil {
				return err
			}
			local = append(local, comp)
		}
		for _, comp := range local {
			if _, err := comp.Connect((comp.ID()+1)%sim.ComponentID(n), 0, 10); err != nil {
				return err
			}
			var tick sim.Handler
			tick = rec.Handler(fmt.Sprintf("tick%d", comp.ID()), func(ev *sim.Event) {
				if comp.ID() == 0 && ev.Time() == stopAt {
					comp.Manager().Stop()
					return
				}
				comp.SendSelfEvent(period, tick, nil)
			})
			comp.SendExecutionEvent(0, tick, nil)
		}
		return nil
	}
}

func TestSimulation_StopEndsTheRun(t *testing.T) {
	for _, l := range layouts {
		t.Run(l.name, func(t *testing.T) {
			// GIVEN tickers everywhere; component 0 stops the run at 50
			rec := &testutil.Recorder{}

			// WHEN run with no final time
			_, err := runOn(t, l, sim.Config{}, 4, buildRing(rec, 4, 10, 50))

			// THEN it terminates and component 0 ticked up to 50
			require.NoError(t, err)
			assert.Equal(t, []int64{0, 10, 20, 30, 40, 50}, testutil.Times(rec.For("tick0")))
		})
	}
}

func TestSimulation_FinalTime(t *testing.T) {
	for _, l := range layouts {
		t.Run(l.name, func(t *testing.T) {
			rec := &testutil.Recorder{}
			build := func(c *sim.Context) error {
				for _, id := range c.Partition().Local(c.Rank()) {
					comp, err := sim.NewComponent(c, id)
					if err != nil {
						return err
					}
					var tick sim.Handler
					tick = rec.Handler("tick", func(*sim.Event) { comp.SendSelfEvent(7, tick, nil) })
					comp.SendExecutionEvent(0, tick, nil)
				}
				return nil
			}

			stats, err := runOn(t, l, sim.Config{FinalTime: 100}, 4, build)

			require.NoError(t, err)
			for _, d := range rec.Deliveries() {
				assert.LessOrEqual(t, d.Time, int64(100))
			}
			// 4 tickers, each at 0, 7, ..., 98
			assert.Len(t, rec.Deliveries(), 4*15)
			var dropped int64
			for _, s := range stats {
				dropped += s.EventsDropped
			}
			assert.Equal(t, int64(4), dropped)
		})
	}
}

func TestSimulation_Cancelled(t *testing.T) {
	for _, threads := range []int{1, 2} {
		s, err := sim.NewSimulation(sim.Config{Threads: threads}, sim.NewSerialRuntime(), sim.BlockPartition(1, 1, threads))
		require.NoError(t, err)
		comp, err := sim.NewComponent(s.Context(), 0)
		require.NoError(t, err)
		var tick sim.HandlerFunc
		tick = func(*sim.Event) { comp.SendSelfEvent(1, tick, nil) }
		comp.SendExecutionEvent(0, tick, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err = s.Run(ctx)

		assert.ErrorIs(t, err, context.Canceled, "threads=%d", threads)
	}
}

func TestSimulation_NullManagerExecutesNothing(t *testing.T) {
	rec := &testutil.Recorder{}
	s, err := sim.NewSimulation(sim.Config{Manager: "null"}, sim.NewSerialRuntime(), sim.BlockPartition(1, 1, 1))
	require.NoError(t, err)
	comp, err := sim.NewComponent(s.Context(), 0)
	require.NoError(t, err)
	comp.SendExecutionEvent(5, rec.Handler("x", nil), nil)

	require.NoError(t, s.Run(context.Background()))

	assert.Empty(t, rec.Deliveries())
	assert.Equal(t, int64(0), s.Stats().EventsExecuted)
	assert.Equal(t, int64(1), s.Stats().EventsDropped)
}

func TestSimulation_RunTwicePanics(t *testing.T) {
	s, err := sim.NewSimulation(sim.Config{}, sim.NewSerialRuntime(), sim.BlockPartition(1, 1, 1))
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))
	assert.Panics(t, func() { _ = s.Run(context.Background()) })
}

func TestNewSimulation_Errors(t *testing.T) {
	rt := sim.NewSerialRuntime()
	tests := []struct {
		name      string
		cfg       sim.Config
		partition *sim.Partition
	}{
		{"invalid config", sim.Config{Threads: -1}, sim.BlockPartition(1, 1, 1)},
		{"thread count mismatch", sim.Config{Threads: 1}, sim.BlockPartition(2, 1, 2)},
		{"rank count mismatch", sim.Config{}, sim.BlockPartition(2, 2, 1)},
		{"serial manager with threads", sim.Config{Threads: 2, Manager: "serial"}, sim.BlockPartition(2, 1, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.NewSimulation(tt.cfg, rt, tt.partition)
			assert.Error(t, err)
		})
	}
}

func TestSimulation_TraceIsInEventOrder(t *testing.T) {
	s, err := sim.NewSimulation(sim.Config{Trace: "events"}, sim.NewSerialRuntime(), sim.BlockPartition(3, 1, 1))
	require.NoError(t, err)
	require.NoError(t, s.Context().Payloads().Register("test.note", decodeNote))
	rec := &testutil.Recorder{}
	require.NoError(t, buildTriangle(rec)(s.Context()))

	require.NoError(t, s.Run(context.Background()))

	tr := s.Context().Manager(0).Trace()
	require.NotNil(t, tr)
	require.Len(t, tr.Executions, 4)
	for i := 1; i < len(tr.Executions); i++ {
		assert.False(t, tr.Executions[i].Less(tr.Executions[i-1]), "record %d out of order", i)
	}
	assert.Equal(t, "sim_test.note", tr.Executions[1].Kind)
}
