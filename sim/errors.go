package sim

import (
	"errors"
	"fmt"
)

// Configuration errors, returned at construction time.
var (
	// ErrNegativeLatency is returned when a link is built with latency < 0.
	ErrNegativeLatency = errors.New("link latency must be non-negative")
	// ErrZeroLookahead is returned when a cross-worker link has zero latency;
	// conservative synchronization cannot compute a horizon without lookahead.
	ErrZeroLookahead = errors.New("cross-worker link latency must be positive")
	// ErrUnknownComponent is returned when a link targets an unregistered component.
	ErrUnknownComponent = errors.New("unknown component")
	// ErrNegativeDelay is wrapped by SendError when a link send asks for a
	// delay below zero.
	ErrNegativeDelay = errors.New("send delay must be non-negative")
)

// CausalityError reports an attempt to schedule an event earlier than the
// manager's current time. It is raised with panic and is never recoverable
// by the simulation itself; Simulation.Run converts it into a returned error.
type CausalityError struct {
	Rank   int
	Thread int
	Now    int64
	Event  int64
	LinkID uint32
}

func (e *CausalityError) Error() string {
	return fmt.Sprintf("causality violation on rank %d thread %d: event at %d (link %d) scheduled at now=%d",
		e.Rank, e.Thread, e.Event, e.LinkID, e.Now)
}

// SendError reports a send rejected on the sending worker. Like
// CausalityError it is raised with panic and aborts the run.
type SendError struct {
	Rank   int
	Thread int
	LinkID uint32
	Delay  int64
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send on link %d from rank %d thread %d with delay %d: %v",
		e.LinkID, e.Rank, e.Thread, e.Delay, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// EnvelopeError reports a cross-rank envelope that failed to decode or could
// not be handed to the transport. Like CausalityError it aborts the run.
type EnvelopeError struct {
	Rank int
	Err  error
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("malformed envelope on rank %d: %v", e.Rank, e.Err)
}

func (e *EnvelopeError) Unwrap() error { return e.Err }

// AbortError is reported by workers that were stopped because another
// worker (or rank) hit a fatal error.
type AbortError struct {
	Cause error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("simulation aborted: %v", e.Cause)
}

func (e *AbortError) Unwrap() error { return e.Cause }

// kernelFault converts a recovered panic value into a kernel error.
// Panics that are not kernel errors are re-raised untouched.
func kernelFault(r any) error {
	switch err := r.(type) {
	case *CausalityError:
		return err
	case *EnvelopeError:
		return err
	case *SendError:
		return err
	case *AbortError:
		return err
	default:
		panic(r)
	}
}
