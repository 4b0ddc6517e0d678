package orderbook

import "matchbook/event"

// OrderBook holds one instrument's resting orders and pending stops.
// Single-writer: callers serialize all mutating operations. The book
// performs no I/O; every call completes entirely in memory.
type OrderBook struct {
	bids *RBTree
	asks *RBTree

	// Pending stops keyed by trigger price. A buy stop fires when the
	// last trade price rises to its trigger, a sell stop when it falls.
	buyStops  *RBTree
	sellStops *RBTree

	// Live orders: resting in the book or parked as pending stops.
	orders map[uint64]*Order

	lastTrade    int64
	hasLastTrade bool

	tradeSeq uint64
	timeSeq  uint64

	events   []event.Event
	tradeLog []Trade
	halted   error
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:      NewRBTree(),
		asks:      NewRBTree(),
		buyStops:  NewRBTree(),
		sellStops: NewRBTree(),
		orders:    make(map[uint64]*Order),
	}
}

// Submit validates and executes an incoming order: matches it against
// the opposite side under price-time priority, rests any limit
// remainder, parks stop types in the pending-stop book, and fires any
// stops whose triggers the resulting trades crossed. Triggered stops
// re-enter through the normal matching path, in submission order,
// strictly after the incoming order has finished.
//
// Returned trades are in execution order. On validation failure the
// order is marked Rejected, a Reject event is buffered, and a
// *ValidationError is returned with the book unchanged.
func (b *OrderBook) Submit(o *Order) ([]Trade, error) {
	if b.halted != nil {
		return nil, b.halted
	}
	if err := b.validate(o); err != nil {
		o.Status = Rejected
		b.emitReject(o, err.Error())
		return nil, err
	}

	o.Remaining = o.Qty
	o.SeqID = b.nextSeq()
	b.orders[o.ID] = o

	var trades []Trade
	if o.Type == Stop || o.Type == StopLimit {
		b.parkStop(o)
	} else {
		trades = b.execute(o)
	}
	return b.finish(trades)
}

// Cancel removes a resting order or pending stop. ErrNotFound if the
// id is unknown or the order already terminated.
func (b *OrderBook) Cancel(id uint64) error {
	if b.halted != nil {
		return b.halted
	}
	o, ok := b.orders[id]
	if !ok {
		return ErrNotFound
	}

	switch {
	case o.Status == Pending:
		b.unparkStop(o)
	case o.Resting():
		b.unlinkResting(o)
	default:
		return ErrNotFound
	}

	o.Status = Cancelled
	b.retire(o)
	b.emitCancel(o)
	return nil
}

// Replace atomically cancels and reinserts an order with a new limit
// price and a new (remaining) quantity, losing time priority. The
// reinserted order goes back through the matching path and may trade
// immediately. The order keeps its id.
func (b *OrderBook) Replace(id uint64, newPrice, newQty int64) ([]Trade, error) {
	if b.halted != nil {
		return nil, b.halted
	}
	o, ok := b.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if newQty <= 0 {
		return nil, errValidation("replace quantity must be positive, got %d", newQty)
	}
	// Market and pure stop orders carry no limit price; the new price is
	// ignored for them.
	needsPrice := o.Type == Limit || o.Type == StopLimit
	if needsPrice && newPrice <= 0 {
		return nil, errValidation("replace price must be positive, got %d", newPrice)
	}

	if o.Status == Pending {
		// Pending stop: only the limb that will go live changes.
		if needsPrice {
			o.Price = newPrice
		}
		reQty(o, newQty)
		return nil, nil
	}
	if !o.Resting() {
		return nil, ErrNotFound
	}

	b.unlinkResting(o)
	o.Price = newPrice
	reQty(o, newQty)
	o.SeqID = b.nextSeq()

	trades := b.execute(o)
	return b.finish(trades)
}

// AmendStop moves a pending stop's trigger price. Used by the trailing
// families; emits no event of its own, but the stop may fire
// immediately if the new trigger is already crossed.
func (b *OrderBook) AmendStop(id uint64, newTrigger int64) error {
	if b.halted != nil {
		return b.halted
	}
	o, ok := b.orders[id]
	if !ok || o.Status != Pending {
		return ErrNotFound
	}
	if newTrigger <= 0 {
		return errValidation("stop trigger must be positive, got %d", newTrigger)
	}

	b.unparkStop(o)
	o.StopPrice = newTrigger
	b.parkStop(o)
	_, err := b.finish(nil)
	return err
}

// BestBid returns the highest resting buy price.
func (b *OrderBook) BestBid() (int64, bool) {
	if lvl := b.bids.MaxLevel(); lvl != nil {
		return lvl.Price, true
	}
	return 0, false
}

// BestAsk returns the lowest resting sell price.
func (b *OrderBook) BestAsk() (int64, bool) {
	if lvl := b.asks.MinLevel(); lvl != nil {
		return lvl.Price, true
	}
	return 0, false
}

// LastTrade returns the most recent execution price.
func (b *OrderBook) LastTrade() (int64, bool) {
	return b.lastTrade, b.hasLastTrade
}

// Order returns a live (non-terminal) order by id. Callers must treat
// the result as read-only.
func (b *OrderBook) Order(id uint64) (*Order, bool) {
	o, ok := b.orders[id]
	return o, ok
}

// OpenOrders returns the number of live orders, pending stops included.
func (b *OrderBook) OpenOrders() int {
	return len(b.orders)
}

// Halted returns the invariant violation that stopped the instance, or
// nil while the book is healthy.
func (b *OrderBook) Halted() error {
	return b.halted
}

// ---- submission path ----

func (b *OrderBook) validate(o *Order) error {
	if o.Qty <= 0 {
		return errValidation("quantity must be positive, got %d", o.Qty)
	}
	if _, dup := b.orders[o.ID]; dup {
		return errValidation("duplicate order id %d", o.ID)
	}
	switch o.Type {
	case Limit:
		if o.Price <= 0 {
			return errValidation("limit price must be positive, got %d", o.Price)
		}
	case Market:
		// Price is ignored.
	case Stop:
		if o.StopPrice <= 0 {
			return errValidation("stop trigger must be positive, got %d", o.StopPrice)
		}
	case StopLimit:
		if o.StopPrice <= 0 {
			return errValidation("stop trigger must be positive, got %d", o.StopPrice)
		}
		if o.Price <= 0 {
			return errValidation("limit price must be positive, got %d", o.Price)
		}
	default:
		return errValidation("unknown order type %d", o.Type)
	}
	return nil
}

// execute runs one order through the matching loop and disposes of the
// remainder: limit remainders rest at the tail of their level, market
// remainders are cancelled (no liquidity), all-or-nothing orders that
// cannot fill completely are killed before touching the book.
func (b *OrderBook) execute(o *Order) []Trade {
	if o.AllOrNone && !b.fullyFillable(o) {
		o.Status = Cancelled
		b.retire(o)
		b.emitCancel(o)
		return nil
	}

	if o.Status == Pending {
		o.Status = Open
	}
	trades := b.match(o)

	switch {
	case o.Remaining == 0:
		// match already marked it Filled and retired it
	case o.Type == Market:
		o.Status = Cancelled
		b.retire(o)
		b.emitCancel(o)
	default:
		b.sideTree(o.Side).UpsertLevel(o.Price).Enqueue(o)
	}
	return trades
}

// match consumes the opposite side's best levels while a crossing
// condition holds, strictly FIFO within each level, at the resting
// order's price.
func (b *OrderBook) match(o *Order) []Trade {
	var trades []Trade
	for o.Remaining > 0 {
		lvl := b.bestOpposite(o)
		if lvl == nil {
			break
		}

		maker := lvl.Head()
		qty := min64(o.Remaining, maker.Remaining)
		price := lvl.Price

		o.Remaining -= qty
		maker.Remaining -= qty
		lvl.Reduce(qty)

		b.tradeSeq++
		tr := Trade{Seq: b.tradeSeq, Price: price, Qty: qty}
		if o.Side == Buy {
			tr.BuyID, tr.SellID = o.ID, maker.ID
		} else {
			tr.BuyID, tr.SellID = maker.ID, o.ID
		}
		trades = append(trades, tr)
		b.tradeLog = append(b.tradeLog, tr)

		b.lastTrade = price
		b.hasLastTrade = true

		if maker.Remaining == 0 {
			maker.Status = Filled
			lvl.Unlink(maker)
			b.retire(maker)
		} else {
			maker.Status = PartiallyFilled
		}
		if o.Remaining == 0 {
			o.Status = Filled
			b.retire(o)
		} else {
			o.Status = PartiallyFilled
		}

		// Maker notification first, then taker, in trade order.
		b.emitFill(maker, price, qty, tr.Seq)
		b.emitFill(o, price, qty, tr.Seq)

		if lvl.Empty() {
			b.sideTree(o.Side.Opposite()).DeleteLevel(price)
		}
	}
	return trades
}

// bestOpposite returns the opposite side's best level if the incoming
// order crosses it, else nil.
func (b *OrderBook) bestOpposite(o *Order) *PriceLevel {
	if o.Side == Buy {
		lvl := b.asks.MinLevel()
		if lvl == nil || (o.Type != Market && lvl.Price > o.Price) {
			return nil
		}
		return lvl
	}
	lvl := b.bids.MaxLevel()
	if lvl == nil || (o.Type != Market && lvl.Price < o.Price) {
		return nil
	}
	return lvl
}

// fullyFillable reports whether o could be matched to full quantity
// right now, without executing anything.
func (b *OrderBook) fullyFillable(o *Order) bool {
	need := o.Remaining
	walk := func(lvl *PriceLevel) bool {
		if o.Type != Market {
			if o.Side == Buy && lvl.Price > o.Price {
				return false
			}
			if o.Side == Sell && lvl.Price < o.Price {
				return false
			}
		}
		need -= lvl.TotalQty
		return need > 0
	}
	if o.Side == Buy {
		b.asks.ForEachAscending(walk)
	} else {
		b.bids.ForEachDescending(walk)
	}
	return need <= 0
}

// finish runs the post-operation phase shared by Submit, Replace and
// AmendStop: fire triggered stops, then verify the book is uncrossed.
func (b *OrderBook) finish(trades []Trade) ([]Trade, error) {
	trades = b.fireStops(trades)

	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if okBid && okAsk && bid >= ask {
		err := &InvariantError{
			Detail: "book crossed after operation returned",
		}
		b.halted = err
		return trades, err
	}
	return trades, nil
}

func (b *OrderBook) sideTree(s Side) *RBTree {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

func (b *OrderBook) unlinkResting(o *Order) {
	lvl := o.level
	price := lvl.Price
	lvl.Unlink(o)
	if lvl.Empty() {
		b.sideTree(o.Side).DeleteLevel(price)
	}
}

func (b *OrderBook) retire(o *Order) {
	delete(b.orders, o.ID)
}

func (b *OrderBook) nextSeq() uint64 {
	b.timeSeq++
	return b.timeSeq
}

// reQty rebases an order on a new remaining quantity, keeping the
// filled-so-far accounting intact.
func reQty(o *Order, newQty int64) {
	filled := o.Filled()
	o.Qty = filled + newQty
	o.Remaining = newQty
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
