package sim

import (
	"fmt"
	"math"
)

// NoEventsLeft is the sentinel time returned when a queue has been drained.
// It compares greater than every real timestamp, so it composes with min().
const NoEventsLeft int64 = math.MaxInt64

// Handler is implemented by anything that can receive a delivered event,
// typically a Component port.
type Handler interface {
	HandleEvent(ev *Event)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ev *Event)

// HandleEvent calls f(ev).
func (f HandlerFunc) HandleEvent(ev *Event) { f(ev) }

// Event is a timestamped unit of work addressed to a Handler.
// The payload is opaque to the kernel.
//
// Events are totally ordered by (time, linkID, seqnum); see Less.
type Event struct {
	time    int64  // global simulated time of delivery (in ticks)
	linkID  uint32 // link (or scheduler self link) that produced the event
	seqnum  uint64 // per-link counter, strictly increasing at send time
	handler Handler
	payload any
}

// NewEvent creates an event. Most callers should go through a Link or a
// Component rather than building events by hand.
func NewEvent(time int64, linkID uint32, seqnum uint64, handler Handler, payload any) *Event {
	return &Event{
		time:    time,
		linkID:  linkID,
		seqnum:  seqnum,
		handler: handler,
		payload: payload,
	}
}

// Time returns the delivery time of the event.
func (e *Event) Time() int64 { return e.time }

// LinkID returns the identifier of the link that produced the event.
func (e *Event) LinkID() uint32 { return e.linkID }

// Seqnum returns the per-link sequence number of the event.
func (e *Event) Seqnum() uint64 { return e.seqnum }

// Payload returns the opaque payload carried by the event.
func (e *Event) Payload() any { return e.payload }

// Handler returns the target of the event.
func (e *Event) Handler() Handler { return e.handler }

// Execute delivers the event to its handler.
func (e *Event) Execute() {
	if e.handler == nil {
		panic(fmt.Sprintf("event at %d (link %d, seq %d) has no handler", e.time, e.linkID, e.seqnum))
	}
	e.handler.HandleEvent(e)
}

func (e *Event) String() string {
	return fmt.Sprintf("Event{t=%d link=%d seq=%d %T}", e.time, e.linkID, e.seqnum, e.payload)
}

// Less reports whether a must be executed before b.
// Order by: time → link ID → seqnum. Timestamps alone do not disambiguate
// simultaneous events; the link ID and seqnum make the order independent of
// thread scheduling, as long as links are created in a deterministic order.
func Less(a, b *Event) bool {
	if a.time != b.time {
		return a.time < b.time
	}
	if a.linkID != b.linkID {
		return a.linkID < b.linkID
	}
	return a.seqnum < b.seqnum
}
