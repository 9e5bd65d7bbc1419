package sim

import "fmt"

// Component is the base of every simulated device. It owns the device's
// outbound links and a self link used for events the device schedules on
// itself. A component never keeps a clock of its own; Now reads the clock of
// the manager that owns it.
type Component struct {
	id         ComponentID
	ctx        *Context
	mgr        *EventManager
	selfLinkID uint32
	seqnum     uint64
	links      []Link
}

// NewComponent creates the component id on the worker the partition assigns
// it to. The component must be placed on this context's rank.
func NewComponent(c *Context, id ComponentID) (*Component, error) {
	pl, ok := c.partition.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("component %d: %w", id, ErrUnknownComponent)
	}
	if pl.Rank != c.Rank() {
		return nil, fmt.Errorf("component %d is placed on rank %d, not %d", id, pl.Rank, c.Rank())
	}
	comp := &Component{
		id:         id,
		ctx:        c,
		mgr:        c.managers[pl.Thread],
		selfLinkID: c.allocateLinkID(),
	}
	if err := c.addComponent(comp); err != nil {
		return nil, err
	}
	return comp, nil
}

// ID returns the component's identifier.
func (c *Component) ID() ComponentID { return c.id }

// Now returns the current simulated time of the owning manager.
func (c *Component) Now() int64 { return c.mgr.Now() }

// Manager returns the owning event manager.
func (c *Component) Manager() *EventManager { return c.mgr }

// Context returns the simulation context.
func (c *Component) Context() *Context { return c.ctx }

// Links returns the outbound links in creation order.
func (c *Component) Links() []Link { return c.links }

// RegisterPort makes h the receiver of events sent to port of this component.
// Ports must be registered before peers connect to them.
func (c *Component) RegisterPort(port uint16, h Handler) error {
	return c.ctx.registerHandler(c.id, port, h)
}

// Connect creates and keeps an outbound link to port of dst.
func (c *Component) Connect(dst ComponentID, port uint16, latency int64) (Link, error) {
	link, err := c.ctx.Connect(c, dst, port, latency)
	if err != nil {
		return nil, err
	}
	c.links = append(c.links, link)
	return link, nil
}

// SendExecutionEvent schedules payload for h at the absolute time arrival,
// stamping the event with the component's self link ID and next seqnum.
func (c *Component) SendExecutionEvent(arrival int64, h Handler, payload any) {
	seq := c.seqnum
	c.seqnum++
	c.mgr.Schedule(NewEvent(arrival, c.selfLinkID, seq, h, payload))
}

// SendSelfEvent schedules payload for h after delay.
func (c *Component) SendSelfEvent(delay int64, h Handler, payload any) {
	c.SendExecutionEvent(c.mgr.Now()+delay, h, payload)
}
