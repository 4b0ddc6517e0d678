package advanced

import "matchbook/domain/orderbook"

// trailTrigger computes the trigger a trailing stop wants given the
// best-seen reference price. A sell-side stop trails below the market,
// a buy-side stop above it.
func trailTrigger(side orderbook.Side, ref, trail int64) int64 {
	if side == orderbook.Sell {
		return ref - trail
	}
	return ref + trail
}

// tightens reports whether want is strictly closer to the market than
// the current trigger. Sell triggers only ratchet up, buy triggers only
// ratchet down; the trail never loosens.
func tightens(side orderbook.Side, current, want int64) bool {
	if side == orderbook.Sell {
		return want > current
	}
	return want < current
}

// SubmitTrailingStop parks a stop whose trigger follows the market at a
// fixed distance. The initial trigger is seeded off the current last
// trade price, so the book must have traded at least once.
func (c *Controller) SubmitTrailingStop(stop *orderbook.Order, trail int64) (uint64, error) {
	if stop == nil {
		return 0, errParams("trailing stop requires an order")
	}
	if stop.Type != orderbook.Stop && stop.Type != orderbook.StopLimit {
		return 0, errParams("trailing stop requires a stop or stop-limit order")
	}
	if trail <= 0 {
		return 0, errParams("trail distance must be positive")
	}
	last, ok := c.book.LastTrade()
	if !ok {
		return 0, errParams("trailing stop requires a reference trade price")
	}
	trigger := trailTrigger(stop.Side, last, trail)
	if trigger <= 0 {
		return 0, errParams("trail distance exceeds reference price")
	}

	g := c.newGroup(TrailingStop)
	g.trail = trail
	g.stopID = stop.ID
	g.stopSide = stop.Side
	g.hasRef = true
	g.ref = last
	g.trigger = trigger
	stop.StopPrice = trigger

	c.trailing[g.ID] = g
	c.deferSubmit(g, stop)
	return g.ID, nil
}

// SubmitTrailingBracket combines bracket activation with a trailing
// stop exit: the entry goes live now; on its full fill the trailing
// stop (and the optional fixed take-profit, OCO-linked to it) is armed
// with the trigger seeded off the entry fill price.
func (c *Controller) SubmitTrailingBracket(entry, stop *orderbook.Order, trail int64, takeProfit *orderbook.Order) (uint64, error) {
	if entry == nil || stop == nil {
		return 0, errParams("trailing bracket requires entry and stop orders")
	}
	if stop.Type != orderbook.Stop && stop.Type != orderbook.StopLimit {
		return 0, errParams("trailing bracket stop must be a stop or stop-limit order")
	}
	if stop.Side != entry.Side.Opposite() {
		return 0, errParams("trailing bracket stop must oppose the entry side")
	}
	if trail <= 0 {
		return 0, errParams("trail distance must be positive")
	}
	if takeProfit != nil {
		if takeProfit.Side != entry.Side.Opposite() {
			return 0, errParams("trailing bracket take-profit must oppose the entry side")
		}
		if takeProfit.Type != orderbook.Limit {
			return 0, errParams("trailing bracket take-profit must be a limit order")
		}
	}

	g := c.newGroup(TrailingBracket)
	g.entry = entry.ID
	g.trail = trail
	g.stopID = stop.ID
	g.stopSide = stop.Side
	g.legB = stop.ID
	if takeProfit != nil {
		g.legA = takeProfit.ID
		g.pending = []*orderbook.Order{takeProfit, stop}
	} else {
		g.pending = []*orderbook.Order{stop}
	}
	c.deferSubmit(g, entry)
	return g.ID, nil
}

// adjustTrailing feeds one trade price into every live trailing
// ratchet. Amendments are deferred like any other follow-up.
func (c *Controller) adjustTrailing(price int64) {
	for _, g := range c.trailing {
		if g.stopSide == orderbook.Sell {
			if price <= g.ref {
				continue
			}
			g.ref = price
		} else {
			if price >= g.ref {
				continue
			}
			g.ref = price
		}

		want := trailTrigger(g.stopSide, g.ref, g.trail)
		if want <= 0 || !tightens(g.stopSide, g.trigger, want) {
			continue
		}
		g.trigger = want
		id := g.stopID
		c.disp.Defer(func() {
			// ErrNotFound means the stop fired or was cancelled first.
			_ = c.book.AmendStop(id, want)
		})
	}
}

func (c *Controller) trailingFill(g *Group, full bool) {
	if full {
		c.finish(g, StateFilled)
	}
}

func (c *Controller) trailingCancel(g *Group) {
	c.finishByOutcome(g)
}
