package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Stats aggregates the worker counters of one rank.
type Stats struct {
	Workers        []WorkerStats
	EventsExecuted int64
	EventsDropped  int64
	Rounds         int64
	ThreadSends    int64
	IPCSends       int64
	FinalClock     int64
	WallTime       time.Duration
}

// Simulation owns the Context of one rank and drives its workers.
type Simulation struct {
	ctx    *Context
	driver driver
	hasRun bool
	wall   time.Duration
}

// NewSimulation validates cfg and builds the context and one event manager
// per worker thread of this rank. Devices are then constructed against
// Context() before Run is called.
func NewSimulation(cfg Config, rt ParallelRuntime, partition *Partition) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	c, err := newContext(cfg, rt, partition)
	if err != nil {
		return nil, err
	}
	d, err := ManagerKinds[cfg.Manager](cfg, rt)
	if err != nil {
		return nil, err
	}
	return &Simulation{ctx: c, driver: d}, nil
}

// Context returns the simulation context devices are built against.
func (s *Simulation) Context() *Context { return s.ctx }

// Run executes the simulation until every worker is complete. A causality
// violation or malformed envelope on any worker aborts all of them and is
// returned. Panics if called more than once.
func (s *Simulation) Run(ctx context.Context) error {
	if s.hasRun {
		panic("Simulation.Run() called more than once")
	}
	s.hasRun = true
	start := time.Now()
	defer func() { s.wall = time.Since(start) }()

	s.ctx.log.Infof("starting %s run: %d rank(s) x %d thread(s), lookahead=%d",
		s.driver.name(), s.ctx.rt.NProc(), len(s.ctx.managers), s.ctx.Lookahead())
	err := s.driver.run(ctx, s.ctx)
	if err != nil {
		s.ctx.log.Errorf("run aborted: %v", err)
		return err
	}
	s.ctx.log.Infof("run complete at t=%d", s.Stats().FinalClock)
	return nil
}

// Stats aggregates the counters of every worker of this rank.
func (s *Simulation) Stats() Stats {
	st := Stats{WallTime: s.wall}
	for _, m := range s.ctx.managers {
		ws := m.Stats()
		st.Workers = append(st.Workers, ws)
		st.EventsExecuted += ws.EventsExecuted
		st.EventsDropped += ws.EventsDropped
		st.ThreadSends += ws.ThreadSends
		st.IPCSends += ws.IPCSends
		st.Rounds = max(st.Rounds, ws.Rounds)
		st.FinalClock = max(st.FinalClock, ws.FinalClock)
	}
	return st
}

// driver runs the workers of one rank.
type driver interface {
	name() string
	run(ctx context.Context, c *Context) error
}

type driverFactory func(cfg Config, rt ParallelRuntime) (driver, error)

func newAutoDriver(cfg Config, rt ParallelRuntime) (driver, error) {
	if cfg.Threads == 1 && rt.NProc() == 1 {
		return serialDriver{}, nil
	}
	return lockstepDriver{}, nil
}

func newSerialDriver(cfg Config, rt ParallelRuntime) (driver, error) {
	if cfg.Threads != 1 || rt.NProc() != 1 {
		return nil, fmt.Errorf("serial manager needs exactly 1 rank and 1 thread, got %d x %d", rt.NProc(), cfg.Threads)
	}
	return serialDriver{}, nil
}

func newLockstepDriver(Config, ParallelRuntime) (driver, error) {
	return lockstepDriver{}, nil
}

func newNullDriver(Config, ParallelRuntime) (driver, error) {
	return nullDriver{}, nil
}

// serialDriver runs a lone worker straight to the final time; there is
// nobody to synchronize with.
type serialDriver struct{}

func (serialDriver) name() string { return "serial" }

func (serialDriver) run(ctx context.Context, c *Context) (err error) {
	m := c.managers[0]
	defer func() {
		if r := recover(); r != nil {
			err = kernelFault(r)
		}
	}()
	for !m.stopped {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Drain in chunks so cancellation is noticed on long runs.
		next := m.MinEventTime()
		if next == NoEventsLeft || next > m.finalTime {
			break
		}
		m.RunEvents(addSaturating(next, serialChunk))
	}
	m.complete()
	return nil
}

// serialChunk bounds how much simulated time a serial run covers between
// cancellation checks.
const serialChunk int64 = 1 << 20

// lockstepDriver runs one goroutine per worker in bulk-synchronous rounds.
type lockstepDriver struct{}

func (lockstepDriver) name() string { return "lockstep" }

func (lockstepDriver) run(ctx context.Context, c *Context) error {
	return runWorkers(ctx, c, (*EventManager).RunEvents)
}

// nullDriver executes nothing. Its workers still close every round so that
// ranks hosting devices are not left waiting, and drop whatever reaches them.
type nullDriver struct{}

func (nullDriver) name() string { return "null" }

func (nullDriver) run(ctx context.Context, c *Context) error {
	return runWorkers(ctx, c, (*EventManager).discard)
}

// runWorkers runs step on every manager in its own goroutine between rounds.
func runWorkers(ctx context.Context, c *Context, step func(*EventManager, int64) int64) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, m := range c.managers {
		wg.Add(1)
		go func(m *EventManager) {
			defer wg.Done()
			if err := runWorker(ctx, c, m, step); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(m)
	}
	wg.Wait()
	return firstCause(errs)
}

// runWorker alternates RegisterPending and step until the manager is
// complete. Kernel faults are recovered here and abort the whole rank and,
// through the runtime, every other rank.
func runWorker(ctx context.Context, c *Context, m *EventManager, step func(*EventManager, int64) int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = kernelFault(r)
		}
		if err != nil {
			var aborted *AbortError
			if !errors.As(err, &aborted) {
				c.group.abort(err)
				c.rt.Abort(err)
			}
		}
	}()
	for {
		if err := m.RegisterPending(ctx); err != nil {
			return err
		}
		if m.IsComplete() {
			return nil
		}
		step(m, m.Horizon())
	}
}

// firstCause prefers the error that started an abort over the AbortErrors
// it caused on other workers.
func firstCause(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs {
		var aborted *AbortError
		if !errors.As(err, &aborted) {
			return err
		}
	}
	return errs[0]
}
