// Package phold implements the PHOLD benchmark on top of the sim kernel.
//
// PHOLD is the standard synthetic workload for parallel discrete-event
// simulators: a fixed population of tokens hops between logical processes
// with random hold times. Every rank builds the full topology in the same
// order, creating only what it owns, so link IDs and therefore the event
// trace are identical however the model is partitioned.
package phold

import (
	"fmt"

	"github.com/macrosim/macrosim/sim"
)

// Model is the part of a PHOLD model that lives on one rank.
type Model struct {
	cfg       Config
	processes []*Process
}

// Build creates the processes the partition places on c's rank, connects
// every process to every other one, and schedules the initial tokens.
func Build(c *sim.Context, cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := c.Payloads().Register(TokenKind, DecodeToken); err != nil {
		return nil, err
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	n := cfg.Components
	m := &Model{cfg: cfg}
	local := make([]*Process, n)

	for i := 0; i < n; i++ {
		id := sim.ComponentID(i)
		pl, ok := c.Partition().Lookup(id)
		if !ok {
			return nil, fmt.Errorf("phold: process %d: %w", i, sim.ErrUnknownComponent)
		}
		if pl.Rank != c.Rank() {
			c.SkipLinkIDs(1)
			continue
		}
		comp, err := sim.NewComponent(c, id)
		if err != nil {
			return nil, err
		}
		p := &Process{comp: comp, rng: rng.ForComponent(id), cfg: cfg, peers: make([]sim.Link, n)}
		if err := comp.RegisterPort(Port, p); err != nil {
			return nil, err
		}
		local[i] = p
		m.processes = append(m.processes, p)
	}

	for i, p := range local {
		if p == nil {
			c.SkipLinkIDs(n - 1)
			continue
		}
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			link, err := p.comp.Connect(sim.ComponentID(j), Port, cfg.Latency)
			if err != nil {
				return nil, err
			}
			p.peers[j] = link
		}
	}

	for _, p := range m.processes {
		for k := 0; k < cfg.Tokens; k++ {
			tok := &Token{ID: uint64(p.ID())*uint64(cfg.Tokens) + uint64(k), Origin: p.ID()}
			p.comp.SendSelfEvent(p.hold(), p, tok)
		}
	}
	c.Logger().Debugf("phold: built %d of %d processes, %d tokens each", len(m.processes), n, cfg.Tokens)
	return m, nil
}

// Processes returns the processes of this rank in ID order.
func (m *Model) Processes() []*Process { return m.processes }

// Received returns the tokens handled by this rank's processes.
func (m *Model) Received() int64 {
	var total int64
	for _, p := range m.processes {
		total += p.received
	}
	return total
}
