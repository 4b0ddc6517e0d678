package orderbook

import "matchbook/event"

// The book buffers notification events during each mutating operation.
// The caller drains the buffer after the operation returns and hands it
// to the dispatcher, so no handler can observe (or mutate) the book
// mid-operation.

// DrainEvents returns buffered events in generation order and resets
// the buffer.
func (b *OrderBook) DrainEvents() []event.Event {
	evs := b.events
	b.events = nil
	return evs
}

// DrainTrades returns every trade executed since the last drain,
// including trades produced by triggered stops and deferred follow-up
// commands, in execution order.
func (b *OrderBook) DrainTrades() []Trade {
	trs := b.tradeLog
	b.tradeLog = nil
	return trs
}

func (b *OrderBook) emitFill(o *Order, price, qty int64, tradeSeq uint64) {
	b.events = append(b.events, event.Event{
		Kind:      event.Fill,
		OrderID:   o.ID,
		Price:     price,
		Qty:       qty,
		Remaining: o.Remaining,
		TradeSeq:  tradeSeq,
	})
}

func (b *OrderBook) emitCancel(o *Order) {
	b.events = append(b.events, event.Event{
		Kind:      event.Cancel,
		OrderID:   o.ID,
		Remaining: o.Remaining,
	})
}

func (b *OrderBook) emitStopTriggered(o *Order) {
	b.events = append(b.events, event.Event{
		Kind:    event.StopTriggered,
		OrderID: o.ID,
		Price:   o.StopPrice,
	})
}

func (b *OrderBook) emitReject(o *Order, reason string) {
	b.events = append(b.events, event.Event{
		Kind:      event.Reject,
		OrderID:   o.ID,
		Remaining: o.Remaining,
		Reason:    reason,
	})
}
