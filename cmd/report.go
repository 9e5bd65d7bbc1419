package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/macrosim/macrosim/sim/phold"
	"github.com/macrosim/macrosim/sim/trace"
)

// workerReport is the per-worker section of the printed report.
type workerReport struct {
	Rank           int   `json:"rank"`
	Thread         int   `json:"thread"`
	EventsExecuted int64 `json:"events_executed"`
	EventsDropped  int64 `json:"events_dropped"`
	Rounds         int64 `json:"rounds"`
	ThreadSends    int64 `json:"thread_sends"`
	IPCSends       int64 `json:"ipc_sends"`
	IPCReceived    int64 `json:"ipc_received"`
	FinalClock     int64 `json:"final_clock"`
}

// report is what `run` prints once the simulation completes.
type report struct {
	EventsExecuted int64          `json:"events_executed"`
	TokensReceived int64          `json:"tokens_received"`
	FinalClock     int64          `json:"final_clock"`
	WallTimeMs     int64          `json:"wall_time_ms"`
	EventsPerSec   float64        `json:"events_per_sec"`
	Workers        []workerReport `json:"workers"`
	Trace          *traceReport   `json:"trace,omitempty"`
}

type traceReport struct {
	Executions  int            `json:"executions"`
	UniqueLinks int            `json:"unique_links"`
	OutOfOrder  int            `json:"out_of_order"`
	Kinds       map[string]int `json:"kinds"`
}

func buildReport(res *phold.Result, wall time.Duration) report {
	r := report{
		EventsExecuted: res.EventsExecuted(),
		TokensReceived: res.Received,
		FinalClock:     res.FinalClock(),
		WallTimeMs:     wall.Milliseconds(),
	}
	if secs := wall.Seconds(); secs > 0 {
		r.EventsPerSec = float64(r.EventsExecuted) / secs
	}
	for _, rank := range res.Ranks {
		for _, w := range rank.Workers {
			r.Workers = append(r.Workers, workerReport{
				Rank:           w.Rank,
				Thread:         w.Thread,
				EventsExecuted: w.EventsExecuted,
				EventsDropped:  w.EventsDropped,
				Rounds:         w.Rounds,
				ThreadSends:    w.ThreadSends,
				IPCSends:       w.IPCSends,
				IPCReceived:    w.IPCReceived,
				FinalClock:     w.FinalClock,
			})
		}
	}
	if res.Trace != nil {
		s := trace.Summarize(res.Trace)
		r.Trace = &traceReport{
			Executions:  s.TotalExecutions,
			UniqueLinks: s.UniqueLinks,
			OutOfOrder:  s.OutOfOrder,
			Kinds:       s.KindCounts,
		}
	}
	return r
}

// printReport writes the human header and the JSON report to w.
func printReport(w io.Writer, r report) error {
	fmt.Fprintln(w, "=== Simulation Metrics ===")
	fmt.Fprintf(w, "Events executed      : %d\n", r.EventsExecuted)
	fmt.Fprintf(w, "Final clock          : %d ticks\n", r.FinalClock)
	fmt.Fprintf(w, "Wall time            : %d ms\n", r.WallTimeMs)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
