package service

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"matchbook/domain/advanced"
	"matchbook/domain/orderbook"
	"matchbook/event"
	"matchbook/infra/journal"
	"matchbook/infra/sequence"
	"matchbook/metrics"
	"matchbook/pkg/tick"
)

/*
Engine is the ONLY write entry point into the system.

All coordination between:
- domain (orderbook, advanced)
- infra (journal, sequence)
- the embedding application's event handlers
happens here.

Each instrument is serialized by its own mutex. One operation runs to
completion per instrument: the book mutates, buffered events are
dispatched, deferred follow-up commands drain, and only then does the
lock release. Handlers therefore always observe a consistent book.
*/
type Engine struct {
	log  zerolog.Logger
	seq  *sequence.Sequencer
	jrnl *journal.Journal // nil when journaling is disabled

	mu          sync.RWMutex
	instruments map[string]*instrument
}

type instrument struct {
	symbol string
	conv   *tick.Converter

	mu   sync.Mutex
	book *orderbook.OrderBook
	disp *event.Dispatcher
	ctrl *advanced.Controller

	haltLogged bool
}

// New wires the engine. The journal may be nil.
func New(log zerolog.Logger, seq *sequence.Sequencer, jrnl *journal.Journal) *Engine {
	return &Engine{
		log:         log,
		seq:         seq,
		jrnl:        jrnl,
		instruments: make(map[string]*instrument),
	}
}

// AddInstrument registers a tradable instrument with its tick/lot
// grid. Instruments are added before trading starts.
func (e *Engine) AddInstrument(symbol string, conv *tick.Converter) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.instruments[symbol]; dup {
		return fmt.Errorf("instrument %q already registered", symbol)
	}

	disp := event.NewDispatcher()
	book := orderbook.NewOrderBook()
	ins := &instrument{
		symbol: symbol,
		conv:   conv,
		book:   book,
		disp:   disp,
		ctrl:   advanced.NewController(book, disp),
	}
	disp.SubscribeExternal(event.StopTriggered, func(event.Event) {
		metrics.StopsTriggered.WithLabelValues(symbol).Inc()
	})

	e.instruments[symbol] = ins
	e.log.Info().Str("instrument", symbol).Msg("instrument registered")
	return nil
}

// Instruments returns the registered symbols.
func (e *Engine) Instruments() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.instruments))
	for sym := range e.instruments {
		out = append(out, sym)
	}
	return out
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// Submit places a primitive order and returns its assigned id.
func (e *Engine) Submit(spec OrderSpec) (uint64, error) {
	ins, err := e.instrument(spec.Instrument)
	if err != nil {
		return 0, err
	}
	o, err := e.buildOrder(ins.conv, spec)
	if err != nil {
		metrics.OrdersSubmitted.WithLabelValues(ins.symbol, metrics.ResultRejected).Inc()
		return 0, err
	}

	ins.mu.Lock()
	_, err = ins.book.Submit(o)
	e.drain(ins)
	recs := ins.book.DrainTrades()
	e.observe(ins)
	ins.mu.Unlock()

	e.record(ins, recs)
	if err != nil {
		e.submitFailed(ins, o.ID, err)
		return 0, err
	}
	metrics.OrdersSubmitted.WithLabelValues(ins.symbol, metrics.ResultAccepted).Inc()
	e.log.Debug().
		Str("instrument", ins.symbol).
		Uint64("order_id", o.ID).
		Str("client_ref", spec.ClientRef).
		Int("trades", len(recs)).
		Msg("order accepted")
	return o.ID, nil
}

// Cancel removes a live order.
func (e *Engine) Cancel(symbol string, orderID uint64) error {
	ins, err := e.instrument(symbol)
	if err != nil {
		return err
	}

	ins.mu.Lock()
	err = ins.book.Cancel(orderID)
	e.drain(ins)
	recs := ins.book.DrainTrades()
	e.observe(ins)
	ins.mu.Unlock()

	e.record(ins, recs)
	if err == nil {
		metrics.OrdersCancelled.WithLabelValues(ins.symbol).Inc()
	}
	return err
}

// Replace atomically re-prices and re-sizes a live order. The order
// keeps its id but loses time priority and may trade immediately.
func (e *Engine) Replace(symbol string, orderID uint64, newPrice, newQty decimal.Decimal) error {
	ins, err := e.instrument(symbol)
	if err != nil {
		return err
	}
	price, err := ins.conv.PriceToTicks(newPrice)
	if err != nil {
		return errSpec(err.Error())
	}
	qty, err := ins.conv.QtyToLots(newQty)
	if err != nil {
		return errSpec(err.Error())
	}

	ins.mu.Lock()
	_, err = ins.book.Replace(orderID, price, qty)
	e.drain(ins)
	recs := ins.book.DrainTrades()
	e.observe(ins)
	ins.mu.Unlock()

	e.record(ins, recs)
	return err
}

// CancelGroup cancels every live leg of a composite group.
func (e *Engine) CancelGroup(symbol string, groupID uint64) error {
	ins, err := e.instrument(symbol)
	if err != nil {
		return err
	}

	ins.mu.Lock()
	err = ins.ctrl.CancelGroup(groupID)
	e.drain(ins)
	recs := ins.book.DrainTrades()
	e.observe(ins)
	ins.mu.Unlock()

	e.record(ins, recs)
	return err
}

// Subscribe registers an application handler for one event kind on one
// instrument. Handlers run synchronously inside the operation that
// produced the event and must not call back into the engine.
func (e *Engine) Subscribe(symbol string, k event.Kind, h event.Handler) error {
	ins, err := e.instrument(symbol)
	if err != nil {
		return err
	}
	ins.mu.Lock()
	ins.disp.SubscribeExternal(k, h)
	ins.mu.Unlock()
	return nil
}

//
// ──────────────────────────────────────────────────────────
// Composite submissions
// ──────────────────────────────────────────────────────────
//

// SubmitOCO links two orders so the first execution cancels the other.
func (e *Engine) SubmitOCO(a, b OrderSpec) (GroupTicket, error) {
	ins, legs, err := e.buildLegs(a, b)
	if err != nil {
		return GroupTicket{}, err
	}
	return e.submitGroup(ins, legs, func() (uint64, error) {
		return ins.ctrl.SubmitOCO(legs[0], legs[1])
	})
}

// SubmitOTO places a primary order whose complete fill activates the
// dependent orders.
func (e *Engine) SubmitOTO(primary OrderSpec, dependents ...OrderSpec) (GroupTicket, error) {
	ins, legs, err := e.buildLegs(append([]OrderSpec{primary}, dependents...)...)
	if err != nil {
		return GroupTicket{}, err
	}
	return e.submitGroup(ins, legs, func() (uint64, error) {
		return ins.ctrl.SubmitOTO(legs[0], legs[1:])
	})
}

// SubmitFOK places an order that either fills completely and
// immediately or executes nothing at all.
func (e *Engine) SubmitFOK(spec OrderSpec) (GroupTicket, error) {
	ins, legs, err := e.buildLegs(spec)
	if err != nil {
		return GroupTicket{}, err
	}
	return e.submitGroup(ins, legs, func() (uint64, error) {
		return ins.ctrl.SubmitFOK(legs[0])
	})
}

// SubmitBracket places an entry order with a take-profit/stop-loss
// exit pair armed on the entry's complete fill.
func (e *Engine) SubmitBracket(entry, takeProfit, stopLoss OrderSpec) (GroupTicket, error) {
	ins, legs, err := e.buildLegs(entry, takeProfit, stopLoss)
	if err != nil {
		return GroupTicket{}, err
	}
	return e.submitGroup(ins, legs, func() (uint64, error) {
		return ins.ctrl.SubmitBracket(legs[0], legs[1], legs[2])
	})
}

// SubmitTrailingStop parks a stop whose trigger follows the market at
// a fixed decimal distance.
func (e *Engine) SubmitTrailingStop(stop OrderSpec, trail decimal.Decimal) (GroupTicket, error) {
	ins, legs, err := e.buildLegs(stop)
	if err != nil {
		return GroupTicket{}, err
	}
	ticks, err := trailTicks(ins.conv, trail)
	if err != nil {
		return GroupTicket{}, err
	}
	return e.submitGroup(ins, legs, func() (uint64, error) {
		return ins.ctrl.SubmitTrailingStop(legs[0], ticks)
	})
}

// SubmitTrailingBracket places an entry whose complete fill arms a
// trailing stop exit, optionally OCO-linked with a fixed take-profit.
func (e *Engine) SubmitTrailingBracket(entry, stop OrderSpec, trail decimal.Decimal, takeProfit *OrderSpec) (GroupTicket, error) {
	specs := []OrderSpec{entry, stop}
	if takeProfit != nil {
		specs = append(specs, *takeProfit)
	}
	ins, legs, err := e.buildLegs(specs...)
	if err != nil {
		return GroupTicket{}, err
	}
	ticks, err := trailTicks(ins.conv, trail)
	if err != nil {
		return GroupTicket{}, err
	}
	var tp *orderbook.Order
	if takeProfit != nil {
		tp = legs[2]
	}
	return e.submitGroup(ins, legs, func() (uint64, error) {
		return ins.ctrl.SubmitTrailingBracket(legs[0], legs[1], ticks, tp)
	})
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

// BestBid returns the highest resting buy price.
func (e *Engine) BestBid(symbol string) (decimal.Decimal, bool, error) {
	return e.topOfBook(symbol, (*orderbook.OrderBook).BestBid)
}

// BestAsk returns the lowest resting sell price.
func (e *Engine) BestAsk(symbol string) (decimal.Decimal, bool, error) {
	return e.topOfBook(symbol, (*orderbook.OrderBook).BestAsk)
}

// LastTrade returns the most recent execution price.
func (e *Engine) LastTrade(symbol string) (decimal.Decimal, bool, error) {
	return e.topOfBook(symbol, (*orderbook.OrderBook).LastTrade)
}

// DepthLevel is one aggregated price level of a depth snapshot.
type DepthLevel struct {
	Price  decimal.Decimal `json:"price"`
	Qty    decimal.Decimal `json:"qty"`
	Orders int             `json:"orders"`
}

// Depth is an aggregated view of the book, best levels first.
type Depth struct {
	Instrument string       `json:"instrument"`
	Bids       []DepthLevel `json:"bids"`
	Asks       []DepthLevel `json:"asks"`
}

// Depth returns up to n aggregated levels per side (n <= 0 for all).
func (e *Engine) Depth(symbol string, n int) (Depth, error) {
	ins, err := e.instrument(symbol)
	if err != nil {
		return Depth{}, err
	}

	ins.mu.Lock()
	snap := ins.book.Depth(n)
	ins.mu.Unlock()

	d := Depth{Instrument: symbol}
	for _, lvl := range snap.Bids {
		d.Bids = append(d.Bids, DepthLevel{
			Price:  ins.conv.PriceFromTicks(lvl.Price),
			Qty:    ins.conv.QtyFromLots(lvl.Qty),
			Orders: lvl.Orders,
		})
	}
	for _, lvl := range snap.Asks {
		d.Asks = append(d.Asks, DepthLevel{
			Price:  ins.conv.PriceFromTicks(lvl.Price),
			Qty:    ins.conv.QtyFromLots(lvl.Qty),
			Orders: lvl.Orders,
		})
	}
	return d, nil
}

// OpenOrders returns the number of live orders, pending stops included.
func (e *Engine) OpenOrders(symbol string) (int, error) {
	ins, err := e.instrument(symbol)
	if err != nil {
		return 0, err
	}
	ins.mu.Lock()
	defer ins.mu.Unlock()
	return ins.book.OpenOrders(), nil
}

// GroupState returns the state of a live composite group.
func (e *Engine) GroupState(symbol string, groupID uint64) (advanced.State, bool, error) {
	ins, err := e.instrument(symbol)
	if err != nil {
		return 0, false, err
	}
	ins.mu.Lock()
	defer ins.mu.Unlock()
	s, ok := ins.ctrl.State(groupID)
	return s, ok, nil
}

// Halted returns the invariant violation that stopped an instrument,
// or nil while it is healthy.
func (e *Engine) Halted(symbol string) error {
	ins, err := e.instrument(symbol)
	if err != nil {
		return err
	}
	ins.mu.Lock()
	defer ins.mu.Unlock()
	return ins.book.Halted()
}

// Converter returns the instrument's tick/lot converter.
func (e *Engine) Converter(symbol string) (*tick.Converter, error) {
	ins, err := e.instrument(symbol)
	if err != nil {
		return nil, err
	}
	return ins.conv, nil
}

//
// ──────────────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────────────
//

func (e *Engine) instrument(symbol string) (*instrument, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ins, ok := e.instruments[symbol]
	if !ok {
		return nil, errSpec(fmt.Sprintf("unknown instrument %q", symbol))
	}
	return ins, nil
}

// buildLegs validates that all specs target one instrument and
// converts them to domain orders.
func (e *Engine) buildLegs(specs ...OrderSpec) (*instrument, []*orderbook.Order, error) {
	if len(specs) == 0 {
		return nil, nil, errSpec("at least one order is required")
	}
	ins, err := e.instrument(specs[0].Instrument)
	if err != nil {
		return nil, nil, err
	}

	legs := make([]*orderbook.Order, len(specs))
	for i, spec := range specs {
		if spec.Instrument != ins.symbol {
			return nil, nil, errSpec("all legs of a group must target one instrument")
		}
		if legs[i], err = e.buildOrder(ins.conv, spec); err != nil {
			metrics.OrdersSubmitted.WithLabelValues(ins.symbol, metrics.ResultRejected).Inc()
			return nil, nil, err
		}
	}
	return ins, legs, nil
}

// submitGroup runs one composite submission under the instrument lock
// and drains its follow-up work.
func (e *Engine) submitGroup(ins *instrument, legs []*orderbook.Order, submit func() (uint64, error)) (GroupTicket, error) {
	ins.mu.Lock()
	gid, err := submit()
	e.drain(ins)
	recs := ins.book.DrainTrades()
	e.observe(ins)
	ins.mu.Unlock()

	e.record(ins, recs)
	if err != nil {
		metrics.OrdersSubmitted.WithLabelValues(ins.symbol, metrics.ResultRejected).Inc()
		return GroupTicket{}, err
	}

	ticket := GroupTicket{GroupID: gid, Legs: make([]uint64, len(legs))}
	for i, o := range legs {
		ticket.Legs[i] = o.ID
		metrics.OrdersSubmitted.WithLabelValues(ins.symbol, metrics.ResultAccepted).Inc()
	}
	e.log.Debug().
		Str("instrument", ins.symbol).
		Uint64("group_id", gid).
		Int("legs", len(legs)).
		Int("trades", len(recs)).
		Msg("group accepted")
	return ticket, nil
}

// drain is the non-reentrancy loop. Events buffered by the last book
// mutation are dispatched first; handlers may defer follow-up commands
// (sibling cancels, dependent activations, trailing amendments), which
// run one at a time, each dispatching its own events, until the system
// is quiet.
func (e *Engine) drain(ins *instrument) {
	for {
		if evs := ins.book.DrainEvents(); len(evs) > 0 {
			ins.disp.Dispatch(evs)
			continue
		}
		cmd := ins.disp.Pop()
		if cmd == nil {
			return
		}
		cmd()
	}
}

// observe refreshes per-instrument gauges. Called under the
// instrument lock.
func (e *Engine) observe(ins *instrument) {
	if bid, ok := ins.book.BestBid(); ok {
		metrics.BestBid.WithLabelValues(ins.symbol).Set(float64(bid))
	} else {
		metrics.BestBid.WithLabelValues(ins.symbol).Set(0)
	}
	if ask, ok := ins.book.BestAsk(); ok {
		metrics.BestAsk.WithLabelValues(ins.symbol).Set(float64(ask))
	} else {
		metrics.BestAsk.WithLabelValues(ins.symbol).Set(0)
	}
	metrics.OpenOrders.WithLabelValues(ins.symbol).Set(float64(ins.book.OpenOrders()))
	metrics.GroupsLive.WithLabelValues(ins.symbol).Set(float64(ins.ctrl.Groups()))

	if err := ins.book.Halted(); err != nil && !ins.haltLogged {
		ins.haltLogged = true
		e.log.Error().Err(err).Str("instrument", ins.symbol).Msg("instrument halted")
	}
}

// record journals executed trades and bumps trade metrics. Runs after
// the instrument lock releases; journal key order equals trade order
// because keys embed the trade sequence.
func (e *Engine) record(ins *instrument, recs []orderbook.Trade) {
	if len(recs) == 0 {
		return
	}
	metrics.TradesExecuted.WithLabelValues(ins.symbol).Add(float64(len(recs)))
	for _, tr := range recs {
		metrics.VolumeTraded.WithLabelValues(ins.symbol).Add(float64(tr.Qty))
		if e.jrnl == nil {
			continue
		}
		err := e.jrnl.Append(journal.Record{
			Instrument: ins.symbol,
			Seq:        tr.Seq,
			BuyID:      tr.BuyID,
			SellID:     tr.SellID,
			Price:      tr.Price,
			Qty:        tr.Qty,
		})
		if err != nil {
			metrics.JournalErrors.Inc()
			e.log.Error().Err(err).
				Str("instrument", ins.symbol).
				Uint64("trade_seq", tr.Seq).
				Msg("journal append failed")
			continue
		}
		metrics.JournalAppends.Inc()
	}
}

func (e *Engine) submitFailed(ins *instrument, orderID uint64, err error) {
	result := metrics.ResultRejected
	var inv *orderbook.InvariantError
	if errors.As(err, &inv) {
		result = metrics.ResultHalted
	}
	metrics.OrdersSubmitted.WithLabelValues(ins.symbol, result).Inc()
	e.log.Warn().Err(err).
		Str("instrument", ins.symbol).
		Uint64("order_id", orderID).
		Msg("order not accepted")
}

func (e *Engine) topOfBook(symbol string, get func(*orderbook.OrderBook) (int64, bool)) (decimal.Decimal, bool, error) {
	ins, err := e.instrument(symbol)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	ins.mu.Lock()
	ticks, ok := get(ins.book)
	ins.mu.Unlock()
	if !ok {
		return decimal.Decimal{}, false, nil
	}
	return ins.conv.PriceFromTicks(ticks), true, nil
}

func trailTicks(conv *tick.Converter, trail decimal.Decimal) (int64, error) {
	if trail.Sign() <= 0 {
		return 0, errSpec("trail distance must be positive")
	}
	ticks, err := conv.PriceToTicks(trail)
	if err != nil {
		return 0, errSpec(err.Error())
	}
	return ticks, nil
}
