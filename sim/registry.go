package sim

import "sort"

// QueueFactory builds an empty EventQueue.
type QueueFactory func() EventQueue

// QueueKinds maps the `queue` config key to its factory.
// The empty key selects the default.
var QueueKinds = map[string]QueueFactory{
	"":       func() EventQueue { return NewHeapQueue() },
	"heap":   func() EventQueue { return NewHeapQueue() },
	"sorted": func() EventQueue { return NewSortedQueue() },
}

// ManagerKinds maps the `manager` config key to the driver that runs the
// workers of a rank. The empty key selects "auto".
var ManagerKinds = map[string]driverFactory{
	"":         newAutoDriver,
	"auto":     newAutoDriver,
	"serial":   newSerialDriver,
	"lockstep": newLockstepDriver,
	"null":     newNullDriver,
}

// KindNames returns the non-empty keys of a registry, sorted, for help text.
func KindNames[V any](registry map[string]V) []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		if k != "" {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}
