package orderbook

import "sort"

// Pending stops live outside the tradable book, in per-side trees of
// FIFO levels keyed by trigger price. They fire off the last trade
// price: a buy stop when the market rises to its trigger, a sell stop
// when it falls to it.

func (b *OrderBook) stopTree(s Side) *RBTree {
	if s == Buy {
		return b.buyStops
	}
	return b.sellStops
}

func (b *OrderBook) parkStop(o *Order) {
	o.Status = Pending
	b.stopTree(o.Side).UpsertLevel(o.StopPrice).Enqueue(o)
}

func (b *OrderBook) unparkStop(o *Order) {
	lvl := o.level
	trigger := lvl.Price
	lvl.Unlink(o)
	if lvl.Empty() {
		b.stopTree(o.Side).DeleteLevel(trigger)
	}
}

// fireStops converts and executes every pending stop whose trigger the
// last trade price has crossed. Stops triggered by the same event run
// in submission order; executions may move the last trade price and
// trigger further stops, so the sweep loops to a fixpoint.
func (b *OrderBook) fireStops(trades []Trade) []Trade {
	for {
		triggered := b.collectTriggered()
		if len(triggered) == 0 {
			return trades
		}
		for _, s := range triggered {
			b.emitStopTriggered(s)
			if s.Type == Stop {
				s.Type = Market
				s.Price = 0
			} else {
				s.Type = Limit
			}
			trades = append(trades, b.execute(s)...)
		}
	}
}

func (b *OrderBook) collectTriggered() []*Order {
	if !b.hasLastTrade {
		return nil
	}
	last := b.lastTrade

	var triggered []*Order
	b.buyStops.ForEachAscending(func(lvl *PriceLevel) bool {
		if lvl.Price > last {
			return false
		}
		for o := lvl.Head(); o != nil; o = o.Next() {
			triggered = append(triggered, o)
		}
		return true
	})
	b.sellStops.ForEachDescending(func(lvl *PriceLevel) bool {
		if lvl.Price < last {
			return false
		}
		for o := lvl.Head(); o != nil; o = o.Next() {
			triggered = append(triggered, o)
		}
		return true
	})

	for _, o := range triggered {
		b.unparkStop(o)
	}
	sort.Slice(triggered, func(i, j int) bool {
		return triggered[i].SeqID < triggered[j].SeqID
	})
	return triggered
}
