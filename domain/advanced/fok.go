package advanced

import "matchbook/domain/orderbook"

// SubmitFOK submits a single order under an all-or-nothing execution
// constraint: if the book cannot match it to full quantity immediately,
// it is killed with zero trades and never rests.
func (c *Controller) SubmitFOK(o *orderbook.Order) (uint64, error) {
	if o == nil {
		return 0, errParams("FOK requires an order")
	}
	if o.Type != orderbook.Limit && o.Type != orderbook.Market {
		return 0, errParams("FOK applies to limit and market orders only")
	}
	o.AllOrNone = true
	g := c.newGroup(FOK)
	g.entry = o.ID
	c.deferSubmit(g, o)
	return g.ID, nil
}

func (c *Controller) fokFill(g *Group, full bool) {
	if full {
		c.finish(g, StateFilled)
	}
}

func (c *Controller) fokCancel(g *Group) {
	c.finish(g, StateCancelled)
}
