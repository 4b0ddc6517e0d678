package advanced

import (
	"matchbook/domain/orderbook"
	"matchbook/event"
)

// Controller supervises composite order groups. It subscribes to the
// dispatcher's internal handler slots, so it observes every book event
// before the embedding application does, and it reaches the book only
// through Submit/Cancel/AmendStop — directly when called at the top of
// an operation, deferred on the command queue when reacting to an event
// mid-delivery.
type Controller struct {
	book *orderbook.OrderBook
	disp *event.Dispatcher

	groups   map[uint64]*Group
	byOrder  map[uint64]uint64 // primitive order id -> group id
	trailing map[uint64]*Group // groups with a live trailing stop leg
	nextID   uint64
}

func NewController(book *orderbook.OrderBook, disp *event.Dispatcher) *Controller {
	c := &Controller{
		book:     book,
		disp:     disp,
		groups:   make(map[uint64]*Group),
		byOrder:  make(map[uint64]uint64),
		trailing: make(map[uint64]*Group),
	}
	disp.SubscribeInternal(event.Fill, c.onFill)
	disp.SubscribeInternal(event.Cancel, c.onCancel)
	disp.SubscribeInternal(event.StopTriggered, c.onStopTriggered)
	disp.SubscribeInternal(event.Reject, c.onReject)
	return c
}

// Groups returns the number of live composite groups.
func (c *Controller) Groups() int {
	return len(c.groups)
}

// State returns the state of a live group. Terminal groups are
// destroyed, so a false result means unknown or already terminal.
func (c *Controller) State(groupID uint64) (State, bool) {
	g, ok := c.groups[groupID]
	if !ok {
		return 0, false
	}
	return g.State, true
}

// CancelGroup cancels every live leg and terminates the group.
// Cancelling an unknown or already-terminal group reports
// orderbook.ErrNotFound; that is a no-op, not a failure.
func (c *Controller) CancelGroup(groupID uint64) error {
	g, ok := c.groups[groupID]
	if !ok {
		return orderbook.ErrNotFound
	}
	for _, id := range g.legs {
		if _, live := c.byOrder[id]; live {
			c.deferCancel(id)
		}
	}
	c.finish(g, StateCancelled)
	return nil
}

// ---- event handlers ----

func (c *Controller) onFill(ev event.Event) {
	// Every trade price feeds the trailing ratchets, whether or not the
	// filled order belongs to a group.
	c.adjustTrailing(ev.Price)

	g := c.groupOf(ev.OrderID)
	if g == nil {
		return
	}
	g.anyFilled = true
	full := ev.Remaining == 0
	if full {
		delete(c.byOrder, ev.OrderID)
	}

	switch g.Family {
	case OCO:
		c.ocoFill(g, ev.OrderID, full)
	case OTO:
		c.otoFill(g, ev.OrderID, full)
	case FOK:
		c.fokFill(g, full)
	case Bracket, TrailingBracket:
		c.bracketFill(g, ev, full)
	case TrailingStop:
		c.trailingFill(g, full)
	}
}

func (c *Controller) onCancel(ev event.Event) {
	g := c.groupOf(ev.OrderID)
	if g == nil {
		return
	}
	delete(c.byOrder, ev.OrderID)

	switch g.Family {
	case OCO:
		c.ocoCancel(g, ev.OrderID)
	case OTO:
		c.otoCancel(g, ev.OrderID)
	case FOK:
		c.fokCancel(g)
	case Bracket, TrailingBracket:
		c.bracketCancel(g, ev.OrderID)
	case TrailingStop:
		c.trailingCancel(g)
	}
}

func (c *Controller) onStopTriggered(ev event.Event) {
	g := c.groupOf(ev.OrderID)
	if g == nil {
		return
	}
	// A triggered trailing stop is live in the match path; stop moving
	// its trigger.
	if ev.OrderID == g.stopID {
		delete(c.trailing, g.ID)
	}
	if g.State == StatePending {
		g.State = StateActive
	}
}

// onReject: any primitive rejected by the book rejects the whole group
// and tears down its siblings.
func (c *Controller) onReject(ev event.Event) {
	g := c.groupOf(ev.OrderID)
	if g == nil {
		return
	}
	delete(c.byOrder, ev.OrderID)
	for _, id := range g.legs {
		if _, live := c.byOrder[id]; live {
			c.deferCancel(id)
		}
	}
	c.finish(g, StateRejected)
}

// ---- shared scaffolding ----

func (c *Controller) groupOf(orderID uint64) *Group {
	gid, ok := c.byOrder[orderID]
	if !ok {
		return nil
	}
	return c.groups[gid]
}

func (c *Controller) newGroup(f Family) *Group {
	c.nextID++
	g := &Group{ID: c.nextID, Family: f, State: StatePending}
	c.groups[g.ID] = g
	return g
}

// track registers a primitive as a live leg of g.
func (c *Controller) track(g *Group, o *orderbook.Order) {
	g.legs = append(g.legs, o.ID)
	c.byOrder[o.ID] = g.ID
}

// deferSubmit queues a primitive submission for after the current
// operation unwinds. The closure re-checks group state: a group
// terminated between enqueue and drain submits nothing.
func (c *Controller) deferSubmit(g *Group, o *orderbook.Order) {
	c.disp.Defer(func() {
		if g.State.Terminal() {
			return
		}
		c.track(g, o)
		// A rejection comes back through the Reject event.
		if _, err := c.book.Submit(o); err == nil && g.State == StatePending {
			g.State = StateActive
		}
	})
}

func (c *Controller) deferCancel(id uint64) {
	if id == 0 {
		return
	}
	c.disp.Defer(func() {
		// ErrNotFound here just means the leg terminated first.
		_ = c.book.Cancel(id)
	})
}

// finishByOutcome terminates a group whose legs all ended without a
// clean full fill: it counts as FILLED if anything executed, CANCELLED
// otherwise.
func (c *Controller) finishByOutcome(g *Group) {
	if g.anyFilled {
		c.finish(g, StateFilled)
	} else {
		c.finish(g, StateCancelled)
	}
}

// finish moves a group to a terminal state and destroys it.
func (c *Controller) finish(g *Group, s State) {
	g.State = s
	for _, id := range g.legs {
		delete(c.byOrder, id)
	}
	g.pending = nil
	delete(c.trailing, g.ID)
	delete(c.groups, g.ID)
}

func errParams(reason string) error {
	return &orderbook.ValidationError{Reason: reason}
}
