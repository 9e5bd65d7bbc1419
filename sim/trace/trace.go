package trace

import "sort"

// TraceLevel controls the verbosity of execution tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEvents records every executed event.
	TraceLevelEvents TraceLevel = "events"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelEvents: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects execution records of one worker.
// Not safe for concurrent use; each worker owns its own trace.
type SimulationTrace struct {
	Config     TraceConfig
	Executions []ExecutionRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:     config,
		Executions: make([]ExecutionRecord, 0),
	}
}

// RecordExecution appends an execution record.
func (st *SimulationTrace) RecordExecution(record ExecutionRecord) {
	st.Executions = append(st.Executions, record)
}

// Merge combines per-worker traces into one trace in global event order.
// Nil traces are skipped.
func Merge(traces ...*SimulationTrace) *SimulationTrace {
	merged := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents})
	for _, st := range traces {
		if st == nil {
			continue
		}
		merged.Executions = append(merged.Executions, st.Executions...)
	}
	sort.SliceStable(merged.Executions, func(i, j int) bool {
		return merged.Executions[i].Less(merged.Executions[j])
	})
	return merged
}
