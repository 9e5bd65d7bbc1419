package phold

import (
	"math/rand"

	"github.com/macrosim/macrosim/sim"
)

// Port is the single input port of a process.
const Port uint16 = 0

// Process is one PHOLD logical process. On every token it receives it holds
// the token for an exponential time and passes it on, either to itself or,
// with probability Remote, to another process chosen uniformly.
type Process struct {
	comp  *sim.Component
	rng   *rand.Rand
	cfg   Config
	peers []sim.Link // indexed by destination ID; nil for self

	received int64
	sent     int64
}

// ID returns the process's component ID.
func (p *Process) ID() sim.ComponentID { return p.comp.ID() }

// Received returns the number of tokens handled so far.
func (p *Process) Received() int64 { return p.received }

// Sent returns the number of tokens passed to another process.
func (p *Process) Sent() int64 { return p.sent }

// HandleEvent implements sim.Handler.
func (p *Process) HandleEvent(ev *sim.Event) {
	tok := ev.Payload().(*Token)
	p.received++
	p.forward(&Token{ID: tok.ID, Origin: tok.Origin, Hops: tok.Hops + 1})
}

func (p *Process) hold() int64 {
	return int64(p.rng.ExpFloat64() * p.cfg.MeanDelay)
}

func (p *Process) forward(tok *Token) {
	delay := p.hold()
	if p.cfg.Components > 1 && p.rng.Float64() < p.cfg.Remote {
		dst := p.rng.Intn(p.cfg.Components - 1)
		if dst >= int(p.comp.ID()) {
			dst++
		}
		p.sent++
		p.peers[dst].Send(delay, tok)
		return
	}
	// Self hops pay the link latency too, so moving a process between
	// workers does not change when its tokens arrive.
	p.comp.SendSelfEvent(delay+p.cfg.Latency, p, tok)
}
