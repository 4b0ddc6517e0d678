package advanced

import (
	"matchbook/domain/orderbook"
	"matchbook/event"
)

// SubmitBracket wires an entry order to a take-profit/stop-loss exit
// pair. The exits are constructed now but stay pending until the entry
// fills completely; once armed they behave as an OCO pair.
func (c *Controller) SubmitBracket(entry, takeProfit, stopLoss *orderbook.Order) (uint64, error) {
	if entry == nil || takeProfit == nil || stopLoss == nil {
		return 0, errParams("bracket requires entry, take-profit and stop-loss orders")
	}
	if takeProfit.Side != entry.Side.Opposite() || stopLoss.Side != entry.Side.Opposite() {
		return 0, errParams("bracket exits must oppose the entry side")
	}
	if takeProfit.Type != orderbook.Limit {
		return 0, errParams("bracket take-profit must be a limit order")
	}
	if stopLoss.Type != orderbook.Stop && stopLoss.Type != orderbook.StopLimit {
		return 0, errParams("bracket stop-loss must be a stop or stop-limit order")
	}

	g := c.newGroup(Bracket)
	g.entry = entry.ID
	g.legA, g.legB = takeProfit.ID, stopLoss.ID
	g.pending = []*orderbook.Order{takeProfit, stopLoss}
	c.deferSubmit(g, entry)
	return g.ID, nil
}

// bracketFill handles both Bracket and TrailingBracket groups.
func (c *Controller) bracketFill(g *Group, ev event.Event, full bool) {
	if ev.OrderID == g.entry {
		if full {
			c.armExits(g, ev.Price)
		}
		return
	}
	// Exit pair: OCO semantics.
	if g.winner == 0 {
		g.winner = ev.OrderID
		c.deferCancel(g.sibling(ev.OrderID))
	}
	if full {
		c.finish(g, StateFilled)
	}
}

func (c *Controller) bracketCancel(g *Group, id uint64) {
	if id == g.entry {
		// Entry cancelled before filling; exits were never armed.
		c.finish(g, StateCancelled)
		return
	}
	if g.winner != 0 && id != g.winner {
		return
	}
	c.deferCancel(g.sibling(id))
	c.finish(g, StateCancelled)
}

// armExits submits the pending exit pair. For trailing brackets the
// stop leg's initial trigger is seeded off the entry fill price before
// it reaches the book.
func (c *Controller) armExits(g *Group, fillPrice int64) {
	exits := g.pending
	g.pending = nil
	if g.State == StatePending {
		g.State = StateActive
	}

	if g.Family == TrailingBracket {
		g.hasRef = true
		g.ref = fillPrice
		g.trigger = trailTrigger(g.stopSide, g.ref, g.trail)
		for _, o := range exits {
			if o.ID == g.stopID {
				o.StopPrice = g.trigger
			}
		}
		c.trailing[g.ID] = g
	}

	for _, o := range exits {
		c.deferSubmit(g, o)
	}
}
