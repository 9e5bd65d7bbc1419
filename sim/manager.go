// sim/manager.go
package sim

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/macrosim/macrosim/sim/trace"
)

// ManagerState is the lifecycle state of an EventManager.
type ManagerState int

const (
	// StateRunning: executing events up to the current horizon.
	StateRunning ManagerState = iota
	// StateAwaitingSync: horizon reached, waiting for the round to close.
	StateAwaitingSync
	// StateComplete: final time reached or stop issued. Terminal.
	StateComplete
)

func (s ManagerState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateAwaitingSync:
		return "awaiting-sync"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("ManagerState(%d)", int(s))
	}
}

// WorkerStats counts what one manager did during a run.
type WorkerStats struct {
	Rank           int
	Thread         int
	EventsExecuted int64
	EventsDropped  int64 // still queued when the manager completed
	Rounds         int64
	ThreadSends    int64
	IPCSends       int64
	IPCReceived    int64
	FinalClock     int64
}

// EventManager drives simulated time for one worker. It exclusively owns its
// event queue; other workers reach it only through the pending slot buffers
// (same rank) or the runtime (other ranks), both drained in RegisterPending.
type EventManager struct {
	ctx     *Context
	rank    int
	thread  int
	nthread int
	nproc   int

	queue      EventQueue
	now        int64
	finalTime  int64
	minIPCTime int64
	horizon    int64
	lookahead  int64
	state      ManagerState
	stopped    bool

	// pending[slot][srcThread] holds events sent by srcThread during the
	// round whose number is congruent to slot. Only srcThread appends to its
	// row, and only this manager drains, after the round's collective.
	pending  [][][]*Event
	round    uint64
	ipcInbox [][]byte

	trace *trace.SimulationTrace
	stats WorkerStats
	log   *logrus.Entry
}

func newEventManager(c *Context, thread int, queue EventQueue) *EventManager {
	nthread := c.cfg.Threads
	pending := make([][][]*Event, c.cfg.PendingSlots)
	for slot := range pending {
		pending[slot] = make([][]*Event, nthread)
	}
	m := &EventManager{
		ctx:        c,
		rank:       c.rt.Rank(),
		thread:     thread,
		nthread:    nthread,
		nproc:      c.rt.NProc(),
		queue:      queue,
		finalTime:  c.cfg.FinalTime,
		minIPCTime: NoEventsLeft,
		horizon:    NoEventsLeft,
		lookahead:  NoEventsLeft,
		pending:    pending,
		stats:      WorkerStats{Rank: c.rt.Rank(), Thread: thread},
		log:        c.log.WithField("thread", thread),
	}
	if trace.TraceLevel(c.cfg.Trace) == trace.TraceLevelEvents {
		m.trace = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelEvents})
	}
	return m
}

// Now returns the current simulated time. It never decreases.
func (m *EventManager) Now() int64 { return m.now }

// Rank returns the rank of this manager.
func (m *EventManager) Rank() int { return m.rank }

// Thread returns the worker thread index of this manager within its rank.
func (m *EventManager) Thread() int { return m.thread }

// NThread returns the number of worker threads per rank.
func (m *EventManager) NThread() int { return m.nthread }

// NProc returns the number of ranks.
func (m *EventManager) NProc() int { return m.nproc }

// NWorker returns the total number of workers across all ranks.
func (m *EventManager) NWorker() int { return m.nproc * m.nthread }

// FinalTime returns the simulation stop time.
func (m *EventManager) FinalTime() int64 { return m.finalTime }

// Horizon returns the inclusive time bound of the current round.
func (m *EventManager) Horizon() int64 { return m.horizon }

// State returns the lifecycle state.
func (m *EventManager) State() ManagerState { return m.state }

// IsComplete reports whether the manager reached its terminal state.
func (m *EventManager) IsComplete() bool { return m.state == StateComplete }

// PendingSlot returns the slot cross-thread sends target during this round.
func (m *EventManager) PendingSlot() int { return int(m.round % uint64(len(m.pending))) }

// Round returns the number of synchronization rounds closed so far.
func (m *EventManager) Round() uint64 { return m.round }

// Stats returns the manager's counters.
func (m *EventManager) Stats() WorkerStats {
	s := m.stats
	s.FinalClock = m.now
	return s
}

// Trace returns the execution trace, or nil when tracing is off.
func (m *EventManager) Trace() *trace.SimulationTrace { return m.trace }

// Len returns the number of events in the local queue.
func (m *EventManager) Len() int { return m.queue.Len() }

// MinEventTime returns the time of the earliest queued event, or NoEventsLeft.
func (m *EventManager) MinEventTime() int64 {
	if ev := m.queue.Peek(); ev != nil {
		return ev.time
	}
	return NoEventsLeft
}

// MinIPCTime returns the lower bound on cross-worker events sent this round.
func (m *EventManager) MinIPCTime() int64 { return m.minIPCTime }

// SetMinIPCTime lowers the bound on undelivered cross-worker events.
func (m *EventManager) SetMinIPCTime(t int64) {
	m.minIPCTime = min(m.minIPCTime, t)
}

// SafeHorizon is the earliest time any event could still appear on this
// worker: the local queue minimum, undelivered cross-worker sends, and the
// other workers' minimum (the collective vote).
func (m *EventManager) SafeHorizon(globalVote int64) int64 {
	return min(m.MinEventTime(), m.minIPCTime, globalVote)
}

// Schedule inserts an event addressed to this manager. Scheduling earlier
// than Now is a causality violation and aborts the run.
func (m *EventManager) Schedule(ev *Event) {
	if ev.time < m.now {
		panic(&CausalityError{Rank: m.rank, Thread: m.thread, Now: m.now, Event: ev.time, LinkID: ev.linkID})
	}
	m.queue.Push(ev)
}

// MultithreadSchedule parks an event sent by srcThread during the round
// mapped to slot. Called from the sending worker's goroutine.
func (m *EventManager) MultithreadSchedule(slot, srcThread int, ev *Event) {
	m.pending[slot][srcThread] = append(m.pending[slot][srcThread], ev)
}

// Stop ends the simulation at the next round boundary. Called from a handler
// it also stops the current RunEvents after the running event.
func (m *EventManager) Stop() {
	m.stopped = true
}

// ScheduleStop lowers the simulation stop time to until. Called from a
// handler it takes effect on this worker before the next event; the other
// workers see it when the round closes.
func (m *EventManager) ScheduleStop(until int64) {
	m.finalTime = min(m.finalTime, until)
}

// RunEvents executes, in order, every queued event with time ≤ horizon and
// none beyond it. Events after the final time are left in the queue and
// never executed. It returns the next pending time or NoEventsLeft.
func (m *EventManager) RunEvents(horizon int64) int64 {
	if m.state == StateComplete {
		return m.MinEventTime()
	}
	m.state = StateRunning
	for !m.stopped {
		// a handler may lower finalTime through ScheduleStop
		ev := m.queue.Peek()
		if ev == nil || ev.time > min(horizon, m.finalTime) {
			break
		}
		m.queue.PopMin()
		if ev.time < m.now {
			panic(&CausalityError{Rank: m.rank, Thread: m.thread, Now: m.now, Event: ev.time, LinkID: ev.linkID})
		}
		m.now = ev.time
		m.stats.EventsExecuted++
		if m.trace != nil {
			m.trace.RecordExecution(trace.ExecutionRecord{
				Time:   ev.time,
				LinkID: ev.linkID,
				Seqnum: ev.seqnum,
				Rank:   m.rank,
				Thread: m.thread,
				Kind:   fmt.Sprintf("%T", ev.payload),
			})
		}
		if m.log.Logger.IsLevelEnabled(logrus.TraceLevel) {
			m.log.Tracef("[tick %07d] executing %v", m.now, ev)
		}
		ev.Execute()
	}
	m.state = StateAwaitingSync
	return m.MinEventTime()
}

// RegisterPending closes the current synchronization round. Every worker of
// every rank must call it before any of them runs past the previous horizon.
//
// It votes min(local minimum, undelivered sends) through the worker group
// and the runtime collective, drains the closed round's pending slot and IPC
// inbox into the local queue, and either computes the next horizon or moves
// the manager to StateComplete.
func (m *EventManager) RegisterPending(ctx context.Context) error {
	if m.state == StateComplete {
		return nil
	}
	m.state = StateAwaitingSync
	local := Vote{
		Time:      min(m.MinEventTime(), m.minIPCTime),
		Final:     m.finalTime,
		Lookahead: m.ctx.Lookahead(),
		Stop:      m.stopped,
	}
	global, err := m.ctx.group.vote(ctx, local)
	if err != nil {
		return err
	}
	m.drainPending()
	m.drainIPC()
	m.minIPCTime = NoEventsLeft
	m.round++
	m.stats.Rounds++

	m.finalTime = global.Final
	m.lookahead = global.Lookahead
	if global.Stop || global.Time == NoEventsLeft || global.Time > m.finalTime {
		m.complete()
		return nil
	}
	m.horizon = min(addSaturating(m.SafeHorizon(global.Time), m.lookahead-1), m.finalTime)
	m.state = StateRunning
	return nil
}

// drainPending moves the closed round's cross-thread events into the queue.
func (m *EventManager) drainPending() {
	slot := m.PendingSlot()
	for src, events := range m.pending[slot] {
		for _, ev := range events {
			m.Schedule(ev)
		}
		clear(events)
		m.pending[slot][src] = events[:0]
	}
}

// drainIPC decodes the envelopes delivered to this worker and schedules a
// fresh event for each. A malformed envelope aborts the run.
func (m *EventManager) drainIPC() {
	for _, buf := range m.ipcInbox {
		env, err := DecodeEnvelope(buf)
		if err != nil {
			panic(&EnvelopeError{Rank: m.rank, Err: err})
		}
		payload, err := decodePayload(m.ctx.payloads, env)
		if err != nil {
			panic(&EnvelopeError{Rank: m.rank, Err: err})
		}
		h, ok := m.ctx.handler(env.Dst, env.Port)
		if !ok {
			panic(&EnvelopeError{Rank: m.rank, Err: fmt.Errorf("no handler for component %d port %d", env.Dst, env.Port)})
		}
		m.stats.IPCReceived++
		m.Schedule(NewEvent(env.Time, env.LinkID, env.Seqnum, h, payload))
	}
	m.ipcInbox = m.ipcInbox[:0]
}

// discard drops every queued event up to horizon without executing it.
func (m *EventManager) discard(horizon int64) int64 {
	bound := min(horizon, m.finalTime)
	for {
		ev := m.queue.Peek()
		if ev == nil || ev.time > bound {
			break
		}
		m.queue.PopMin()
		m.stats.EventsDropped++
	}
	m.state = StateAwaitingSync
	return m.MinEventTime()
}

func (m *EventManager) complete() {
	m.state = StateComplete
	m.stats.EventsDropped += int64(m.queue.Len())
	m.log.Debugf("complete at %d after %d rounds, %d events executed", m.now, m.stats.Rounds, m.stats.EventsExecuted)
}

// addSaturating returns a+b clamped to NoEventsLeft.
func addSaturating(a, b int64) int64 {
	if b > 0 && a > NoEventsLeft-b {
		return NoEventsLeft
	}
	return a + b
}
