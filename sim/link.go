package sim

import "fmt"

// Link is a directed channel with a fixed latency. A device causes future
// work only by sending on one of its links: the payload is delivered to the
// peer at sender.Now() + delay + Latency().
//
// The variants differ only in how the event reaches the destination queue,
// never in ordering: every event carries the link's ID and a per-link seqnum.
type Link interface {
	Send(delay int64, payload any)
	ID() uint32
	Latency() int64
}

type linkBase struct {
	id      uint32
	latency int64
	seqnum  uint64
	mgr     *EventManager // sending side
}

func newLinkBase(c *Context, mgr *EventManager, latency int64) (linkBase, error) {
	if latency < 0 {
		return linkBase{}, fmt.Errorf("latency %d: %w", latency, ErrNegativeLatency)
	}
	return linkBase{id: c.allocateLinkID(), latency: latency, mgr: mgr}, nil
}

// ID returns the link's unique identifier.
func (l *linkBase) ID() uint32 { return l.id }

// Latency returns the link's fixed latency in ticks.
func (l *linkBase) Latency() int64 { return l.latency }

// arrival computes the delivery time of a send and claims the next seqnum.
// A negative delay is rejected on the sender; a delay too large to represent
// lands at NoEventsLeft, past any final time.
func (l *linkBase) arrival(delay int64) (int64, uint64) {
	if delay < 0 {
		panic(&SendError{Rank: l.mgr.Rank(), Thread: l.mgr.Thread(), LinkID: l.id, Delay: delay, Err: ErrNegativeDelay})
	}
	t := addSaturating(addSaturating(l.mgr.Now(), delay), l.latency)
	seq := l.seqnum
	l.seqnum++
	return t, seq
}

// LocalLink targets a handler owned by the sending manager.
type LocalLink struct {
	linkBase
	handler Handler
}

// NewLocalLink creates a link whose destination lives on the sender's worker.
func NewLocalLink(c *Context, mgr *EventManager, handler Handler, latency int64) (*LocalLink, error) {
	base, err := newLinkBase(c, mgr, latency)
	if err != nil {
		return nil, err
	}
	return &LocalLink{linkBase: base, handler: handler}, nil
}

// Send inserts the event directly into the sender's queue.
func (l *LocalLink) Send(delay int64, payload any) {
	t, seq := l.arrival(delay)
	l.mgr.Schedule(NewEvent(t, l.id, seq, l.handler, payload))
}

// MultithreadLink targets a handler owned by another worker of this rank.
type MultithreadLink struct {
	linkBase
	handler Handler
	dst     *EventManager
}

// NewMultithreadLink creates a link to a handler on the worker of dst.
// The latency must be positive: it bounds the lookahead of every round.
func NewMultithreadLink(c *Context, mgr, dst *EventManager, handler Handler, latency int64) (*MultithreadLink, error) {
	if latency == 0 {
		return nil, fmt.Errorf("thread %d->%d: %w", mgr.Thread(), dst.Thread(), ErrZeroLookahead)
	}
	base, err := newLinkBase(c, mgr, latency)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.minThreadLatency = min(c.minThreadLatency, latency)
	c.mu.Unlock()
	return &MultithreadLink{linkBase: base, handler: handler, dst: dst}, nil
}

// Send parks the event in the destination's buffer for the sender's current
// round. The destination drains it in its next RegisterPending.
func (l *MultithreadLink) Send(delay int64, payload any) {
	t, seq := l.arrival(delay)
	l.mgr.SetMinIPCTime(t)
	l.mgr.stats.ThreadSends++
	l.dst.MultithreadSchedule(l.mgr.PendingSlot(), l.mgr.Thread(), NewEvent(t, l.id, seq, l.handler, payload))
}

// IpcLink targets a component on another rank. Payloads must implement
// Serializable; the destination rebuilds a fresh event from the envelope.
type IpcLink struct {
	linkBase
	rt   ParallelRuntime
	src  ComponentID
	dst  ComponentID
	port uint16
	to   Placement
}

// NewIpcLink creates a link to port of component dst placed at to.
func NewIpcLink(c *Context, mgr *EventManager, src, dst ComponentID, port uint16, to Placement, latency int64) (*IpcLink, error) {
	if latency == 0 {
		return nil, fmt.Errorf("rank %d->%d: %w", c.Rank(), to.Rank, ErrZeroLookahead)
	}
	base, err := newLinkBase(c, mgr, latency)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.minRemoteLatency = min(c.minRemoteLatency, latency)
	c.mu.Unlock()
	return &IpcLink{linkBase: base, rt: c.rt, src: src, dst: dst, port: port, to: to}, nil
}

// Send serializes the payload into an envelope and hands it to the runtime.
// The sender keeps no reference to the payload afterwards.
func (l *IpcLink) Send(delay int64, payload any) {
	t, seq := l.arrival(delay)
	kind, data, err := encodePayload(payload)
	if err != nil {
		panic(&EnvelopeError{Rank: l.mgr.Rank(), Err: fmt.Errorf("IpcLink %d: %w", l.id, err)})
	}
	l.mgr.SetMinIPCTime(t)
	l.mgr.stats.IPCSends++
	buf := EncodeEnvelope(&Envelope{
		Time:    t,
		Src:     l.src,
		Dst:     l.dst,
		Port:    l.port,
		LinkID:  l.id,
		Seqnum:  seq,
		Rank:    int32(l.to.Rank),
		Thread:  int32(l.to.Thread),
		Kind:    kind,
		Payload: data,
	})
	if err := l.rt.Send(l.to.Rank, buf); err != nil {
		panic(&EnvelopeError{Rank: l.mgr.Rank(), Err: fmt.Errorf("IpcLink %d send to rank %d: %w", l.id, l.to.Rank, err)})
	}
}
