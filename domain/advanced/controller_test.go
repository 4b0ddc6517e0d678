package advanced

import (
	"testing"

	"matchbook/domain/orderbook"
	"matchbook/event"
)

// harness reproduces the service layer's drain loop: dispatch buffered
// events, then run deferred commands one at a time until quiet.
type harness struct {
	book   *orderbook.OrderBook
	disp   *event.Dispatcher
	ctrl   *Controller
	nextID uint64
}

func newHarness() *harness {
	disp := event.NewDispatcher()
	book := orderbook.NewOrderBook()
	return &harness{
		book: book,
		disp: disp,
		ctrl: NewController(book, disp),
	}
}

func (h *harness) drain() {
	for {
		if evs := h.book.DrainEvents(); len(evs) > 0 {
			h.disp.Dispatch(evs)
			continue
		}
		cmd := h.disp.Pop()
		if cmd == nil {
			return
		}
		cmd()
	}
}

func (h *harness) limit(side orderbook.Side, price, qty int64) *orderbook.Order {
	h.nextID++
	return &orderbook.Order{ID: h.nextID, Side: side, Type: orderbook.Limit, Price: price, Qty: qty}
}

func (h *harness) stop(side orderbook.Side, trigger, qty int64) *orderbook.Order {
	h.nextID++
	return &orderbook.Order{ID: h.nextID, Side: side, Type: orderbook.Stop, StopPrice: trigger, Qty: qty}
}

// submit runs a plain order straight into the book and drains.
func (h *harness) submit(t *testing.T, o *orderbook.Order) []orderbook.Trade {
	t.Helper()
	trades, err := h.book.Submit(o)
	if err != nil {
		t.Fatalf("Submit order %d: %v", o.ID, err)
	}
	h.drain()
	return trades
}

// tradeAt produces one execution at the given price without leaving
// anything resting. A stop fired by that execution may trade afterwards
// at another price, so it checks its own legs crossed instead of the
// book's last trade.
func (h *harness) tradeAt(t *testing.T, price int64) {
	t.Helper()
	buy := h.limit(orderbook.Buy, price, 1)
	h.submit(t, buy)
	h.submit(t, h.limit(orderbook.Sell, price, 1))
	if buy.Status != orderbook.Filled {
		t.Fatalf("tradeAt %d: legs did not cross, buy status = %v", price, buy.Status)
	}
}

func (h *harness) live(id uint64) bool {
	_, ok := h.book.Order(id)
	return ok
}

// ---- OCO ----

func TestOCOFullFillCancelsSibling(t *testing.T) {
	h := newHarness()
	a := h.limit(orderbook.Buy, 10, 10)
	b := h.limit(orderbook.Sell, 20, 10)
	gid, err := h.ctrl.SubmitOCO(a, b)
	if err != nil {
		t.Fatalf("SubmitOCO: %v", err)
	}
	h.drain()

	if !h.live(a.ID) || !h.live(b.ID) {
		t.Fatal("both legs should be resting")
	}
	if s, ok := h.ctrl.State(gid); !ok || s != StateActive {
		t.Fatalf("group state = %v %v, want ACTIVE", s, ok)
	}

	h.submit(t, h.limit(orderbook.Sell, 10, 10)) // fills a

	if a.Status != orderbook.Filled {
		t.Fatalf("winner status = %v, want FILLED", a.Status)
	}
	if b.Status != orderbook.Cancelled {
		t.Fatalf("sibling status = %v, want CANCELLED", b.Status)
	}
	if h.ctrl.Groups() != 0 {
		t.Fatalf("live groups = %d, want 0", h.ctrl.Groups())
	}
}

func TestOCOPartialFillCancelsSiblingImmediately(t *testing.T) {
	h := newHarness()
	a := h.limit(orderbook.Buy, 10, 10)
	b := h.limit(orderbook.Sell, 20, 10)
	gid, err := h.ctrl.SubmitOCO(a, b)
	if err != nil {
		t.Fatalf("SubmitOCO: %v", err)
	}
	h.drain()

	h.submit(t, h.limit(orderbook.Sell, 10, 4)) // partial fill of a

	if b.Status != orderbook.Cancelled {
		t.Fatalf("sibling status after partial = %v, want CANCELLED", b.Status)
	}
	if s, ok := h.ctrl.State(gid); !ok || s != StateActive {
		t.Fatalf("group should stay live while the winner works, got %v %v", s, ok)
	}

	h.submit(t, h.limit(orderbook.Sell, 10, 6)) // complete a
	if h.ctrl.Groups() != 0 {
		t.Fatal("group should terminate on the winner's full fill")
	}
}

func TestOCOExternalCancelCancelsSibling(t *testing.T) {
	h := newHarness()
	a := h.limit(orderbook.Buy, 10, 10)
	b := h.limit(orderbook.Sell, 20, 10)
	if _, err := h.ctrl.SubmitOCO(a, b); err != nil {
		t.Fatalf("SubmitOCO: %v", err)
	}
	h.drain()

	if err := h.book.Cancel(a.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	h.drain()

	if b.Status != orderbook.Cancelled {
		t.Fatalf("sibling status = %v, want CANCELLED", b.Status)
	}
	if h.ctrl.Groups() != 0 {
		t.Fatal("group should be terminal")
	}
}

// ---- OTO ----

func TestOTOActivatesDependentsOnFullFillOnly(t *testing.T) {
	h := newHarness()
	primary := h.limit(orderbook.Buy, 10, 10)
	dep := h.limit(orderbook.Sell, 15, 10)
	if _, err := h.ctrl.SubmitOTO(primary, []*orderbook.Order{dep}); err != nil {
		t.Fatalf("SubmitOTO: %v", err)
	}
	h.drain()

	if h.live(dep.ID) {
		t.Fatal("dependent must stay out of the book before the primary fills")
	}

	h.submit(t, h.limit(orderbook.Sell, 10, 4)) // partial
	if h.live(dep.ID) {
		t.Fatal("partial fill must not activate dependents")
	}

	h.submit(t, h.limit(orderbook.Sell, 10, 6)) // full
	if !h.live(dep.ID) {
		t.Fatal("dependent should be live after the primary's full fill")
	}

	h.submit(t, h.limit(orderbook.Buy, 15, 10)) // fill dependent
	if dep.Status != orderbook.Filled {
		t.Fatalf("dependent status = %v, want FILLED", dep.Status)
	}
	if h.ctrl.Groups() != 0 {
		t.Fatal("group should be terminal")
	}
}

func TestOTOCancelPrimaryAbandonsDependents(t *testing.T) {
	h := newHarness()
	primary := h.limit(orderbook.Buy, 10, 10)
	dep := h.limit(orderbook.Sell, 15, 10)
	if _, err := h.ctrl.SubmitOTO(primary, []*orderbook.Order{dep}); err != nil {
		t.Fatalf("SubmitOTO: %v", err)
	}
	h.drain()

	if err := h.book.Cancel(primary.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	h.drain()

	if h.live(dep.ID) {
		t.Fatal("dependent must never reach the book")
	}
	if h.ctrl.Groups() != 0 {
		t.Fatal("group should be terminal")
	}
}

// ---- FOK ----

func TestFOKFillsCompletely(t *testing.T) {
	h := newHarness()
	h.submit(t, h.limit(orderbook.Sell, 10, 30))
	h.submit(t, h.limit(orderbook.Sell, 11, 30))

	o := h.limit(orderbook.Buy, 11, 50)
	if _, err := h.ctrl.SubmitFOK(o); err != nil {
		t.Fatalf("SubmitFOK: %v", err)
	}
	h.drain()

	if o.Status != orderbook.Filled {
		t.Fatalf("status = %v, want FILLED", o.Status)
	}
	if h.ctrl.Groups() != 0 {
		t.Fatal("group should be terminal")
	}
}

func TestFOKExecutesNothingWhenUnfillable(t *testing.T) {
	h := newHarness()
	resting := h.limit(orderbook.Sell, 10, 30)
	h.submit(t, resting)

	o := h.limit(orderbook.Buy, 10, 50)
	if _, err := h.ctrl.SubmitFOK(o); err != nil {
		t.Fatalf("SubmitFOK: %v", err)
	}
	h.drain()

	if o.Status != orderbook.Cancelled {
		t.Fatalf("status = %v, want CANCELLED", o.Status)
	}
	if resting.Remaining != 30 {
		t.Fatalf("resting liquidity touched: remaining = %d", resting.Remaining)
	}
	if len(h.book.DrainTrades()) != 0 {
		t.Fatal("unfillable FOK produced trades")
	}
	if h.ctrl.Groups() != 0 {
		t.Fatal("group should be terminal")
	}
}

func TestFOKRejectsStopTypes(t *testing.T) {
	h := newHarness()
	if _, err := h.ctrl.SubmitFOK(h.stop(orderbook.Sell, 9, 10)); err == nil {
		t.Fatal("stop order accepted as FOK")
	}
}

// ---- Bracket ----

func TestBracketArmsExitsOnEntryFill(t *testing.T) {
	h := newHarness()
	entry := h.limit(orderbook.Buy, 10, 10)
	tp := h.limit(orderbook.Sell, 12, 10)
	sl := h.stop(orderbook.Sell, 8, 10)
	gid, err := h.ctrl.SubmitBracket(entry, tp, sl)
	if err != nil {
		t.Fatalf("SubmitBracket: %v", err)
	}
	h.drain()

	if h.live(tp.ID) || h.live(sl.ID) {
		t.Fatal("exits must stay out of the book before the entry fills")
	}

	h.submit(t, h.limit(orderbook.Sell, 10, 10)) // fill entry

	if !h.live(tp.ID) || !h.live(sl.ID) {
		t.Fatal("exits should be armed after the entry's full fill")
	}
	if sl.Status != orderbook.Pending {
		t.Fatalf("stop-loss status = %v, want PENDING", sl.Status)
	}
	if s, ok := h.ctrl.State(gid); !ok || s != StateActive {
		t.Fatalf("group state = %v %v, want ACTIVE", s, ok)
	}

	h.submit(t, h.limit(orderbook.Buy, 12, 10)) // take profit

	if tp.Status != orderbook.Filled {
		t.Fatalf("take-profit status = %v, want FILLED", tp.Status)
	}
	if sl.Status != orderbook.Cancelled {
		t.Fatalf("stop-loss status = %v, want CANCELLED", sl.Status)
	}
	if h.ctrl.Groups() != 0 {
		t.Fatal("group should be terminal")
	}
}

func TestBracketStopLegWins(t *testing.T) {
	h := newHarness()
	entry := h.limit(orderbook.Buy, 10, 10)
	tp := h.limit(orderbook.Sell, 12, 10)
	sl := h.stop(orderbook.Sell, 8, 10)
	if _, err := h.ctrl.SubmitBracket(entry, tp, sl); err != nil {
		t.Fatalf("SubmitBracket: %v", err)
	}
	h.drain()

	h.submit(t, h.limit(orderbook.Sell, 10, 10)) // fill entry, exits armed
	h.submit(t, h.limit(orderbook.Buy, 7, 10))   // liquidity for the fired stop
	h.tradeAt(t, 8)                              // fires the stop-loss

	if sl.Status != orderbook.Filled {
		t.Fatalf("stop-loss status = %v, want FILLED", sl.Status)
	}
	if tp.Status != orderbook.Cancelled {
		t.Fatalf("take-profit status = %v, want CANCELLED", tp.Status)
	}
	if h.ctrl.Groups() != 0 {
		t.Fatal("group should be terminal")
	}
}

func TestBracketEntryCancelDropsExits(t *testing.T) {
	h := newHarness()
	entry := h.limit(orderbook.Buy, 10, 10)
	tp := h.limit(orderbook.Sell, 12, 10)
	sl := h.stop(orderbook.Sell, 8, 10)
	if _, err := h.ctrl.SubmitBracket(entry, tp, sl); err != nil {
		t.Fatalf("SubmitBracket: %v", err)
	}
	h.drain()

	if err := h.book.Cancel(entry.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	h.drain()

	if h.live(tp.ID) || h.live(sl.ID) {
		t.Fatal("exits must never reach the book")
	}
	if h.ctrl.Groups() != 0 {
		t.Fatal("group should be terminal")
	}
}

// ---- Trailing ----

func TestTrailingStopRatchetsOneWay(t *testing.T) {
	h := newHarness()
	h.submit(t, h.limit(orderbook.Buy, 90, 10)) // floor liquidity
	h.tradeAt(t, 100)

	s := h.stop(orderbook.Sell, 0, 10)
	if _, err := h.ctrl.SubmitTrailingStop(s, 5); err != nil {
		t.Fatalf("SubmitTrailingStop: %v", err)
	}
	h.drain()

	if s.StopPrice != 95 {
		t.Fatalf("initial trigger = %d, want 95", s.StopPrice)
	}

	h.tradeAt(t, 102)
	if s.StopPrice != 97 {
		t.Fatalf("trigger after rise = %d, want 97", s.StopPrice)
	}

	h.tradeAt(t, 99) // pullback above the trigger must not loosen it
	if s.StopPrice != 97 {
		t.Fatalf("trigger after pullback = %d, want 97 (never loosens)", s.StopPrice)
	}

	h.tradeAt(t, 97) // touches the trigger
	if s.Status != orderbook.Filled {
		t.Fatalf("stop status = %v, want FILLED (fired into the 90 bid)", s.Status)
	}
	if h.ctrl.Groups() != 0 {
		t.Fatal("group should be terminal")
	}
}

func TestTrailingStopNeedsReferencePrice(t *testing.T) {
	h := newHarness()
	if _, err := h.ctrl.SubmitTrailingStop(h.stop(orderbook.Sell, 0, 10), 5); err == nil {
		t.Fatal("trailing stop accepted with no trade history")
	}
}

func TestTrailingBracketSeedsOffEntryFill(t *testing.T) {
	h := newHarness()
	h.submit(t, h.limit(orderbook.Buy, 90, 20)) // floor liquidity

	entry := h.limit(orderbook.Buy, 100, 10)
	stopLeg := h.stop(orderbook.Sell, 0, 10)
	tp := h.limit(orderbook.Sell, 120, 10)
	if _, err := h.ctrl.SubmitTrailingBracket(entry, stopLeg, 5, tp); err != nil {
		t.Fatalf("SubmitTrailingBracket: %v", err)
	}
	h.drain()

	h.submit(t, h.limit(orderbook.Sell, 100, 10)) // fill entry at 100

	if stopLeg.StopPrice != 95 {
		t.Fatalf("seeded trigger = %d, want 95 (fill 100 - trail 5)", stopLeg.StopPrice)
	}
	if !h.live(tp.ID) {
		t.Fatal("take-profit should be armed")
	}

	h.tradeAt(t, 104)
	if stopLeg.StopPrice != 99 {
		t.Fatalf("trigger after rise = %d, want 99", stopLeg.StopPrice)
	}

	h.tradeAt(t, 99) // fires the trailing stop
	if stopLeg.Status != orderbook.Filled {
		t.Fatalf("stop status = %v, want FILLED", stopLeg.Status)
	}
	if tp.Status != orderbook.Cancelled {
		t.Fatalf("take-profit status = %v, want CANCELLED", tp.Status)
	}
	if h.ctrl.Groups() != 0 {
		t.Fatal("group should be terminal")
	}
}

// ---- Group management ----

func TestCancelGroupCancelsAllLegs(t *testing.T) {
	h := newHarness()
	a := h.limit(orderbook.Buy, 10, 10)
	b := h.limit(orderbook.Sell, 20, 10)
	gid, err := h.ctrl.SubmitOCO(a, b)
	if err != nil {
		t.Fatalf("SubmitOCO: %v", err)
	}
	h.drain()

	if err := h.ctrl.CancelGroup(gid); err != nil {
		t.Fatalf("CancelGroup: %v", err)
	}
	h.drain()

	if h.live(a.ID) || h.live(b.ID) {
		t.Fatal("legs still live after group cancel")
	}
	if err := h.ctrl.CancelGroup(gid); err != orderbook.ErrNotFound {
		t.Fatalf("second CancelGroup = %v, want ErrNotFound", err)
	}
}

func TestRejectedLegTearsDownGroup(t *testing.T) {
	h := newHarness()
	a := h.limit(orderbook.Buy, 10, 10)
	b := h.limit(orderbook.Sell, 0, 10) // invalid price, rejected by the book
	if _, err := h.ctrl.SubmitOCO(a, b); err != nil {
		t.Fatalf("SubmitOCO: %v", err)
	}
	h.drain()

	if h.live(a.ID) {
		t.Fatal("surviving leg should be cancelled after the sibling's rejection")
	}
	if h.ctrl.Groups() != 0 {
		t.Fatal("group should be terminal")
	}
}
