package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalExecutions int
	FirstTime       int64
	LastTime        int64
	UniqueLinks     int
	OutOfOrder      int            // adjacent records that violate event order
	KindCounts      map[string]int // payload type → executions
	WorkerCounts    map[[2]int]int // (rank, thread) → executions
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		KindCounts:   make(map[string]int),
		WorkerCounts: make(map[[2]int]int),
	}
	if st == nil || len(st.Executions) == 0 {
		return summary
	}

	links := make(map[uint32]bool)
	summary.TotalExecutions = len(st.Executions)
	summary.FirstTime = st.Executions[0].Time
	summary.LastTime = st.Executions[len(st.Executions)-1].Time
	for i, r := range st.Executions {
		links[r.LinkID] = true
		summary.KindCounts[r.Kind]++
		summary.WorkerCounts[[2]int{r.Rank, r.Thread}]++
		if i > 0 && r.Less(st.Executions[i-1]) {
			summary.OutOfOrder++
		}
	}
	summary.UniqueLinks = len(links)

	return summary
}
