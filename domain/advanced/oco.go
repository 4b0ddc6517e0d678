package advanced

import "matchbook/domain/orderbook"

// SubmitOCO links two orders so that the first one to execute or be
// cancelled kills the other. Any fill — partial included — on one leg
// cancels the sibling immediately; the executing leg keeps working
// until it terminates.
func (c *Controller) SubmitOCO(a, b *orderbook.Order) (uint64, error) {
	if a == nil || b == nil {
		return 0, errParams("OCO requires two linked orders")
	}
	if a.ID == b.ID {
		return 0, errParams("OCO legs must have distinct ids")
	}
	g := c.newGroup(OCO)
	g.legA, g.legB = a.ID, b.ID
	c.deferSubmit(g, a)
	c.deferSubmit(g, b)
	return g.ID, nil
}

func (c *Controller) ocoFill(g *Group, id uint64, full bool) {
	if g.winner == 0 {
		g.winner = id
		c.deferCancel(g.sibling(id))
	}
	if full {
		c.finish(g, StateFilled)
	}
}

func (c *Controller) ocoCancel(g *Group, id uint64) {
	if g.winner != 0 && id != g.winner {
		// The sibling we cancelled ourselves; the winner keeps working.
		return
	}
	c.deferCancel(g.sibling(id))
	c.finish(g, StateCancelled)
}
