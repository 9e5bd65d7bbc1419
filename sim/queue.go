package sim

import (
	"container/heap"
	"sort"
)

// EventQueue is an ordered container of events realizing Less.
// A queue is owned and mutated by exactly one EventManager; implementations
// are not safe for concurrent use.
type EventQueue interface {
	// Push inserts an event.
	Push(ev *Event)
	// PopMin removes and returns the minimum event, or nil if empty.
	PopMin() *Event
	// Peek returns the minimum event without removing it, or nil if empty.
	Peek() *Event
	// Len returns the number of queued events.
	Len() int
}

// eventHeap implements heap.Interface over Less.
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type eventHeap []*Event

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return Less(h[i], h[j]) }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[0 : n-1]
	return item
}

// HeapQueue is a binary min-heap EventQueue: O(log n) push and extract-min.
type HeapQueue struct {
	events eventHeap
}

// NewHeapQueue creates an empty heap-backed queue.
func NewHeapQueue() *HeapQueue {
	q := &HeapQueue{events: make(eventHeap, 0)}
	heap.Init(&q.events)
	return q
}

// Push implements EventQueue.
func (q *HeapQueue) Push(ev *Event) {
	heap.Push(&q.events, ev)
}

// PopMin implements EventQueue.
func (q *HeapQueue) PopMin() *Event {
	if q.events.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.events).(*Event)
}

// Peek implements EventQueue.
func (q *HeapQueue) Peek() *Event {
	if q.events.Len() == 0 {
		return nil
	}
	return q.events[0]
}

// Len implements EventQueue.
func (q *HeapQueue) Len() int {
	return q.events.Len()
}

// SortedQueue keeps events in descending order so the minimum sits at the
// tail: extract-min is O(1), insertion is a binary search plus a copy.
// It suits workloads where most events are scheduled close to now.
type SortedQueue struct {
	events []*Event
}

// NewSortedQueue creates an empty sorted-slice queue.
func NewSortedQueue() *SortedQueue {
	return &SortedQueue{events: make([]*Event, 0)}
}

// Push implements EventQueue.
func (q *SortedQueue) Push(ev *Event) {
	// first index whose event sorts before ev; ev goes right in front of it
	i := sort.Search(len(q.events), func(i int) bool { return Less(q.events[i], ev) })
	q.events = append(q.events, nil)
	copy(q.events[i+1:], q.events[i:])
	q.events[i] = ev
}

// PopMin implements EventQueue.
func (q *SortedQueue) PopMin() *Event {
	n := len(q.events)
	if n == 0 {
		return nil
	}
	ev := q.events[n-1]
	q.events[n-1] = nil
	q.events = q.events[:n-1]
	return ev
}

// Peek implements EventQueue.
func (q *SortedQueue) Peek() *Event {
	if len(q.events) == 0 {
		return nil
	}
	return q.events[len(q.events)-1]
}

// Len implements EventQueue.
func (q *SortedQueue) Len() int {
	return len(q.events)
}
