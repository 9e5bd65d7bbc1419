package sim

import (
	"fmt"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

type portKey struct {
	component ComponentID
	port      uint16
}

// Context is the state shared by every manager, component and link of one
// simulation instance on one rank. It replaces a process-wide manager
// singleton: everything is handed its Context at construction, so several
// independent simulations can live in the same process.
type Context struct {
	cfg       Config
	runID     xid.ID
	rt        ParallelRuntime
	partition *Partition
	payloads  *PayloadRegistry
	managers  []*EventManager
	group     *workerGroup
	log       *logrus.Entry

	mu               sync.Mutex
	nextLinkID       uint32
	minThreadLatency int64
	minRemoteLatency int64
	handlers         map[portKey]Handler
	components       map[ComponentID]*Component
}

func newContext(cfg Config, rt ParallelRuntime, partition *Partition) (*Context, error) {
	if partition.NProc() != rt.NProc() {
		return nil, fmt.Errorf("partition spans %d ranks but runtime has %d", partition.NProc(), rt.NProc())
	}
	if partition.NThread() != cfg.Threads {
		return nil, fmt.Errorf("partition spans %d threads but config has %d", partition.NThread(), cfg.Threads)
	}
	runID := xid.New()
	c := &Context{
		cfg:              cfg,
		runID:            runID,
		rt:               rt,
		partition:        partition,
		payloads:         NewPayloadRegistry(),
		minThreadLatency: NoEventsLeft,
		minRemoteLatency: NoEventsLeft,
		handlers:         make(map[portKey]Handler),
		components:       make(map[ComponentID]*Component),
		log: logrus.WithFields(logrus.Fields{
			"run":  runID.String(),
			"rank": rt.Rank(),
		}),
	}
	newQueue := QueueKinds[cfg.Queue]
	c.managers = make([]*EventManager, cfg.Threads)
	for thr := range c.managers {
		c.managers[thr] = newEventManager(c, thr, newQueue())
	}
	c.group = newWorkerGroup(cfg.Threads, rt, c.managers)
	return c, nil
}

// RunID returns the unique identifier of this simulation run.
func (c *Context) RunID() xid.ID { return c.runID }

// Logger returns the context's structured logger.
func (c *Context) Logger() *logrus.Entry { return c.log }

// Rank returns the rank this context runs on.
func (c *Context) Rank() int { return c.rt.Rank() }

// Runtime returns the parallel runtime.
func (c *Context) Runtime() ParallelRuntime { return c.rt }

// Partition returns the component placement.
func (c *Context) Partition() *Partition { return c.partition }

// Payloads returns the registry used to decode IPC payloads.
func (c *Context) Payloads() *PayloadRegistry { return c.payloads }

// Manager returns the event manager of a worker thread on this rank.
func (c *Context) Manager(thread int) *EventManager { return c.managers[thread] }

// Managers returns every event manager on this rank.
func (c *Context) Managers() []*EventManager { return c.managers }

// Component returns a locally constructed component.
func (c *Context) Component(id ComponentID) (*Component, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	comp, ok := c.components[id]
	return comp, ok
}

// Lookahead is the smallest latency of any cross-worker link created on this
// rank, or NoEventsLeft if there is none.
func (c *Context) Lookahead() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return min(c.minThreadLatency, c.minRemoteLatency)
}

// allocateLinkID hands out link identifiers in creation order.
func (c *Context) allocateLinkID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextLinkID
	c.nextLinkID++
	return id
}

// SkipLinkIDs advances the link ID counter by n without creating links.
// A rank that builds only its share of a topology calls it for every link
// and component it does not own, so that link IDs, and with them event
// order, do not depend on how the topology is partitioned.
func (c *Context) SkipLinkIDs(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextLinkID += uint32(n)
}

func (c *Context) addComponent(comp *Component) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.components[comp.id]; exists {
		return fmt.Errorf("component %d already exists", comp.id)
	}
	c.components[comp.id] = comp
	return nil
}

func (c *Context) registerHandler(id ComponentID, port uint16, h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := portKey{component: id, port: port}
	if _, exists := c.handlers[key]; exists {
		return fmt.Errorf("component %d port %d already has a handler", id, port)
	}
	c.handlers[key] = h
	return nil
}

func (c *Context) handler(id ComponentID, port uint16) (Handler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handlers[portKey{component: id, port: port}]
	return h, ok
}

// Connect builds the link from src to port of dst. The variant follows the
// placement of dst: same worker gives a LocalLink, same rank a
// MultithreadLink, any other rank an IpcLink.
func (c *Context) Connect(src *Component, dst ComponentID, port uint16, latency int64) (Link, error) {
	pl, ok := c.partition.Lookup(dst)
	if !ok {
		return nil, fmt.Errorf("link %d->%d: %w", src.id, dst, ErrUnknownComponent)
	}
	var (
		link Link
		err  error
	)
	switch {
	case pl.Rank != c.Rank():
		link, err = NewIpcLink(c, src.mgr, src.id, dst, port, pl, latency)
	default:
		h, found := c.handler(dst, port)
		if !found {
			return nil, fmt.Errorf("link %d->%d port %d: %w", src.id, dst, port, ErrUnknownComponent)
		}
		if pl.Thread == src.mgr.Thread() {
			link, err = NewLocalLink(c, src.mgr, h, latency)
		} else {
			link, err = NewMultithreadLink(c, src.mgr, c.managers[pl.Thread], h, latency)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("link %d->%d: %w", src.id, dst, err)
	}
	return link, nil
}
