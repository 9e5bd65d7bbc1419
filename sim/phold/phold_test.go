package phold

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macrosim/macrosim/sim"
	"github.com/macrosim/macrosim/sim/trace"
	"github.com/macrosim/macrosim/sim/transport"
)

// eventKey is an execution record without the worker that ran it.
type eventKey struct {
	Time   int64
	LinkID uint32
	Seqnum uint64
	Kind   string
}

func keys(st *trace.SimulationTrace) []eventKey {
	out := make([]eventKey, len(st.Executions))
	for i, r := range st.Executions {
		out[i] = eventKey{Time: r.Time, LinkID: r.LinkID, Seqnum: r.Seqnum, Kind: r.Kind}
	}
	return out
}

func testModel() Config {
	return Config{
		Components: 12,
		Tokens:     3,
		Latency:    7,
		MeanDelay:  15,
		Remote:     0.6,
		Seed:       2024,
	}
}

func TestRun_SameTraceUnderEveryPartitioning(t *testing.T) {
	// GIVEN one model and a serial reference run
	cfg := testModel()
	kernel := sim.Config{FinalTime: 1500, Trace: "events"}
	ref, err := Run(context.Background(), kernel, cfg, 1)
	require.NoError(t, err)
	require.NotNil(t, ref.Trace)
	require.NotEmpty(t, ref.Trace.Executions)

	tests := []struct {
		name    string
		nproc   int
		threads int
		queue   string
	}{
		{"threads", 1, 4, ""},
		{"ranks", 3, 1, ""},
		{"ranks and threads", 2, 3, ""},
		{"sorted queue", 2, 2, "sorted"},
		{"more workers than processes", 4, 4, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := kernel
			k.Threads = tt.threads
			k.Queue = tt.queue

			// WHEN the model runs partitioned
			got, err := Run(context.Background(), k, cfg, tt.nproc)
			require.NoError(t, err)

			// THEN the merged trace matches the serial one event for event
			assert.Equal(t, keys(ref.Trace), keys(got.Trace))
			assert.Equal(t, ref.Received, got.Received)
			assert.Equal(t, ref.EventsExecuted(), got.EventsExecuted())
			assert.Zero(t, trace.Summarize(got.Trace).OutOfOrder)
		})
	}
}

func TestRun_ExercisesCrossWorkerLinks(t *testing.T) {
	// GIVEN a model spread over 2 ranks x 2 threads
	kernel := sim.Config{Threads: 2, FinalTime: 1000}

	// WHEN it runs
	res, err := Run(context.Background(), kernel, testModel(), 2)
	require.NoError(t, err)

	// THEN both cross-thread and cross-rank sends happened
	var threadSends, ipcSends int64
	for _, s := range res.Ranks {
		threadSends += s.ThreadSends
		ipcSends += s.IPCSends
	}
	assert.Positive(t, threadSends, "cross-thread sends")
	assert.Positive(t, ipcSends, "cross-rank sends")
}

func TestRun_TokensAreConserved(t *testing.T) {
	// GIVEN a run stopped at a final time while tokens are in flight
	cfg := testModel()
	for _, nproc := range []int{1, 3} {
		res, err := Run(context.Background(), sim.Config{Threads: 2, FinalTime: 800}, cfg, nproc)
		require.NoError(t, err)

		// THEN every token is still pending exactly once
		var dropped int64
		for _, s := range res.Ranks {
			dropped += s.EventsDropped
		}
		assert.Equal(t, int64(cfg.Components*cfg.Tokens), dropped, "nproc=%d", nproc)
		assert.LessOrEqual(t, res.FinalClock(), int64(800))
	}
}

func TestRun_NoRemoteTraffic(t *testing.T) {
	// GIVEN remote probability 0
	cfg := testModel()
	cfg.Remote = 0

	// WHEN run on 2 ranks
	res, err := Run(context.Background(), sim.Config{FinalTime: 500}, cfg, 2)
	require.NoError(t, err)

	// THEN nothing crossed a worker boundary
	for _, s := range res.Ranks {
		assert.Zero(t, s.ThreadSends)
		assert.Zero(t, s.IPCSends)
	}
	assert.Positive(t, res.Received)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testModel()
	cfg.Latency = 0
	_, err := Run(context.Background(), sim.Config{}, cfg, 1)
	assert.Error(t, err)
}

func TestBuild_LinkIDsIndependentOfPartition(t *testing.T) {
	// GIVEN the same model built whole on one rank and split over two
	cfg := testModel()
	whole, err := sim.NewSimulation(sim.Config{}, sim.NewSerialRuntime(), sim.BlockPartition(cfg.Components, 1, 1))
	require.NoError(t, err)
	wm, err := Build(whole.Context(), cfg)
	require.NoError(t, err)

	fabric := transport.NewFabric(2)
	half, err := sim.NewSimulation(sim.Config{}, fabric.Endpoint(1), sim.BlockPartition(cfg.Components, 2, 1))
	require.NoError(t, err)
	hm, err := Build(half.Context(), cfg)
	require.NoError(t, err)

	// THEN rank 1 owns the second half
	require.Len(t, hm.Processes(), cfg.Components/2)

	// THEN every link of a process it owns has the same ID as in the whole model
	for _, p := range hm.Processes() {
		q := wm.Processes()[p.ID()]
		require.Equal(t, q.ID(), p.ID())
		for j := range p.peers {
			if p.peers[j] == nil {
				continue
			}
			assert.Equal(t, q.peers[j].ID(), p.peers[j].ID(), "process %d -> %d", p.ID(), j)
		}
	}
}

func TestToken_Wire(t *testing.T) {
	// GIVEN a token
	tok := &Token{ID: 1<<40 + 3, Origin: 9, Hops: 17}

	// WHEN it is marshalled and decoded
	data, err := tok.MarshalBinary()
	require.NoError(t, err)
	got, err := DecodeToken(data)
	require.NoError(t, err)

	// THEN the decoded token is equal but not the same pointer
	assert.Equal(t, tok, got)
	assert.NotSame(t, tok, got)
	assert.Equal(t, TokenKind, tok.PayloadKind())

	// AND truncated input is rejected
	_, err = DecodeToken(data[:5])
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"no components", func(c *Config) { c.Components = 0 }, true},
		{"negative tokens", func(c *Config) { c.Tokens = -1 }, true},
		{"zero latency", func(c *Config) { c.Latency = 0 }, true},
		{"negative delay", func(c *Config) { c.MeanDelay = -1 }, true},
		{"remote above one", func(c *Config) { c.Remote = 1.5 }, true},
		{"single process", func(c *Config) { c.Components = 1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
