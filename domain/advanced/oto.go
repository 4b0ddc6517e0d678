package advanced

import "matchbook/domain/orderbook"

// SubmitOTO submits the primary order and holds the dependents back;
// they go live only once the primary fills completely. A primary that
// is cancelled or rejected terminates the group with the dependents
// never submitted.
func (c *Controller) SubmitOTO(primary *orderbook.Order, dependents []*orderbook.Order) (uint64, error) {
	if primary == nil || len(dependents) == 0 {
		return 0, errParams("OTO requires a primary order and at least one dependent")
	}
	g := c.newGroup(OTO)
	g.entry = primary.ID
	g.pending = append(g.pending, dependents...)
	c.deferSubmit(g, primary)
	return g.ID, nil
}

func (c *Controller) otoFill(g *Group, id uint64, full bool) {
	if id == g.entry {
		if full {
			c.activateDependents(g)
		}
		return
	}
	if full {
		g.liveDeps--
		if g.liveDeps <= 0 {
			c.finishByOutcome(g)
		}
	}
}

func (c *Controller) otoCancel(g *Group, id uint64) {
	if id == g.entry {
		c.finish(g, StateCancelled)
		return
	}
	g.liveDeps--
	if g.liveDeps <= 0 {
		c.finishByOutcome(g)
	}
}

func (c *Controller) activateDependents(g *Group) {
	deps := g.pending
	g.pending = nil
	g.liveDeps = len(deps)
	for _, o := range deps {
		c.deferSubmit(g, o)
	}
}
