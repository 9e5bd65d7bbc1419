package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
)

// SimulationKey identifies a reproducible run. Two runs with the same key and
// configuration produce identical event traces regardless of how many ranks
// or threads they use.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// SubsystemSetup is the stream used while a topology is being built, before
// any component executes.
const SubsystemSetup = "setup"

// SubsystemComponent returns the subsystem name owning the stream of one
// component. Components draw only from their own stream, so the sequence a
// component sees depends on its own event order and nothing else.
func SubsystemComponent(id ComponentID) string {
	return fmt.Sprintf("component_%d", id)
}

// PartitionedRNG hands out deterministic, isolated random streams per
// subsystem. The seed of a subsystem is masterSeed XOR fnv1a64(name).
//
// Lookup is safe for concurrent use. A returned *rand.Rand is not, and must
// only be used by the worker owning the subsystem.
type PartitionedRNG struct {
	key        SimulationKey
	mu         sync.Mutex
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the stream for name, creating it on first use.
// The same name always returns the same instance. Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// ForComponent is shorthand for ForSubsystem(SubsystemComponent(id)).
func (p *PartitionedRNG) ForComponent(id ComponentID) *rand.Rand {
	return p.ForSubsystem(SubsystemComponent(id))
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
