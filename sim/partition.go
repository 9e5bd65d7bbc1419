package sim

import (
	"fmt"
	"sort"
)

// ComponentID identifies a simulated device across all ranks.
type ComponentID uint32

// Placement is the worker that owns a component.
type Placement struct {
	Rank   int
	Thread int
}

// Partition maps every component of the simulation to its worker.
// Every rank must be given the same partition.
type Partition struct {
	nproc      int
	nthread    int
	placements map[ComponentID]Placement
}

// NewPartition creates an empty partition over nproc ranks with nthread
// worker threads each.
func NewPartition(nproc, nthread int) *Partition {
	if nproc < 1 || nthread < 1 {
		panic(fmt.Sprintf("NewPartition: need at least one rank and one thread, got %d x %d", nproc, nthread))
	}
	return &Partition{
		nproc:      nproc,
		nthread:    nthread,
		placements: make(map[ComponentID]Placement),
	}
}

// BlockPartition places components 0..n-1 in contiguous blocks, filling the
// threads of rank 0 first, then rank 1, and so on.
func BlockPartition(n, nproc, nthread int) *Partition {
	p := NewPartition(nproc, nthread)
	workers := nproc * nthread
	for i := 0; i < n; i++ {
		w := i * workers / n
		p.placements[ComponentID(i)] = Placement{Rank: w / nthread, Thread: w % nthread}
	}
	return p
}

// Assign places a component on a worker.
func (p *Partition) Assign(id ComponentID, rank, thread int) error {
	if rank < 0 || rank >= p.nproc {
		return fmt.Errorf("component %d: rank %d out of range [0,%d)", id, rank, p.nproc)
	}
	if thread < 0 || thread >= p.nthread {
		return fmt.Errorf("component %d: thread %d out of range [0,%d)", id, thread, p.nthread)
	}
	p.placements[id] = Placement{Rank: rank, Thread: thread}
	return nil
}

// Lookup returns the placement of a component.
func (p *Partition) Lookup(id ComponentID) (Placement, bool) {
	pl, ok := p.placements[id]
	return pl, ok
}

// NProc returns the number of ranks.
func (p *Partition) NProc() int { return p.nproc }

// NThread returns the number of worker threads per rank.
func (p *Partition) NThread() int { return p.nthread }

// Local returns the IDs placed on rank, in ascending order.
func (p *Partition) Local(rank int) []ComponentID {
	ids := make([]ComponentID, 0)
	for id, pl := range p.placements {
		if pl.Rank == rank {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
