package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCommand returns a fresh command carrying the scenario flags,
// parsed from args.
func newTestCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	addScenarioFlags(c)
	require.NoError(t, c.ParseFlags(args))
	return c
}

func TestApplyFlags_OnlyChangedFlagsOverride(t *testing.T) {
	// GIVEN a scenario from a file with 3 threads and 32 processes
	sc := DefaultScenario()
	sc.Kernel.Threads = 3
	sc.PHOLD.Components = 32

	// WHEN only --ranks and --seed are given on the command line
	c := newTestCommand(t, "--ranks=4", "--seed=7")
	applyFlags(c, &sc)

	// THEN those two override and flag defaults leave the file values alone
	assert.Equal(t, 4, sc.Ranks)
	assert.Equal(t, int64(7), sc.PHOLD.Seed)
	assert.Equal(t, 3, sc.Kernel.Threads)
	assert.Equal(t, 32, sc.PHOLD.Components)
}

func TestApplyFlags_AllKernelFlags(t *testing.T) {
	sc := DefaultScenario()
	c := newTestCommand(t, "--threads=2", "--final-time=900", "--queue=sorted", "--manager=lockstep", "--trace=events")
	applyFlags(c, &sc)

	assert.Equal(t, 2, sc.Kernel.Threads)
	assert.Equal(t, int64(900), sc.Kernel.FinalTime)
	assert.Equal(t, "sorted", sc.Kernel.Queue)
	assert.Equal(t, "lockstep", sc.Kernel.Manager)
	assert.Equal(t, "events", sc.Kernel.Trace)
	assert.NoError(t, sc.Validate())
}

func TestRunScenario_PrintsReport(t *testing.T) {
	// GIVEN a small traced scenario on 2 ranks x 2 threads
	sc := DefaultScenario()
	sc.Ranks = 2
	sc.Kernel.Threads = 2
	sc.Kernel.FinalTime = 2000
	sc.Kernel.Trace = "events"
	sc.PHOLD.Components = 8

	// WHEN it runs
	var out bytes.Buffer
	require.NoError(t, runScenario(context.Background(), sc, &out))

	// THEN the metrics header and a JSON report are printed
	text := out.String()
	assert.Contains(t, text, "=== Simulation Metrics ===")
	idx := strings.Index(text, "{")
	require.GreaterOrEqual(t, idx, 0, "no JSON in output")
	var r report
	require.NoError(t, json.Unmarshal([]byte(text[idx:]), &r))
	assert.Positive(t, r.EventsExecuted)
	assert.Len(t, r.Workers, 4)
	require.NotNil(t, r.Trace)
	assert.Equal(t, int(r.EventsExecuted), r.Trace.Executions)
	assert.Zero(t, r.Trace.OutOfOrder)
}
