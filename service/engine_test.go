package service

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/domain/orderbook"
	"matchbook/event"
	"matchbook/infra/journal"
	"matchbook/infra/sequence"
	"matchbook/pkg/tick"
)

const sym = "BTC-USD"

func newTestEngine(t *testing.T, jrnl *journal.Journal) *Engine {
	t.Helper()
	eng := New(zerolog.Nop(), sequence.New(0), jrnl)
	conv, err := tick.NewConverter(
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("0.001"),
	)
	require.NoError(t, err)
	require.NoError(t, eng.AddInstrument(sym, conv))
	return eng
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func spec(side orderbook.Side, price, qty string) OrderSpec {
	return OrderSpec{
		Instrument: sym,
		Side:       side,
		Type:       orderbook.Limit,
		Price:      dec(price),
		Qty:        dec(qty),
	}
}

func TestSubmitAndMatch(t *testing.T) {
	eng := newTestEngine(t, nil)

	buyID, err := eng.Submit(spec(orderbook.Buy, "10.00", "0.100"))
	require.NoError(t, err)
	require.NotZero(t, buyID)

	_, err = eng.Submit(spec(orderbook.Sell, "10.00", "0.050"))
	require.NoError(t, err)

	last, ok, err := eng.LastTrade(sym)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(dec("10.00")), "last trade = %s", last)

	bid, ok, err := eng.BestBid(sym)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, bid.Equal(dec("10.00")))

	d, err := eng.Depth(sym, 1)
	require.NoError(t, err)
	require.Len(t, d.Bids, 1)
	assert.True(t, d.Bids[0].Qty.Equal(dec("0.050")), "top bid qty = %s", d.Bids[0].Qty)
}

func TestSubmitRejectsOffGridPrice(t *testing.T) {
	eng := newTestEngine(t, nil)

	_, err := eng.Submit(spec(orderbook.Buy, "10.005", "0.100"))
	require.Error(t, err)
	var ve *orderbook.ValidationError
	assert.ErrorAs(t, err, &ve)

	open, err := eng.OpenOrders(sym)
	require.NoError(t, err)
	assert.Zero(t, open)
}

func TestSubmitUnknownInstrument(t *testing.T) {
	eng := newTestEngine(t, nil)
	s := spec(orderbook.Buy, "10.00", "0.100")
	s.Instrument = "NOPE"
	_, err := eng.Submit(s)
	require.Error(t, err)
}

func TestSubmitRejectsBadClientRef(t *testing.T) {
	eng := newTestEngine(t, nil)
	s := spec(orderbook.Buy, "10.00", "0.100")
	s.ClientRef = "not-a-uuid"
	_, err := eng.Submit(s)
	require.Error(t, err)

	s.ClientRef = "7d4df0b2-6f0c-4f44-bd7a-7a6a2b7a7f10"
	_, err = eng.Submit(s)
	require.NoError(t, err)
}

func TestCancel(t *testing.T) {
	eng := newTestEngine(t, nil)

	id, err := eng.Submit(spec(orderbook.Buy, "10.00", "0.100"))
	require.NoError(t, err)
	require.NoError(t, eng.Cancel(sym, id))
	assert.ErrorIs(t, eng.Cancel(sym, id), orderbook.ErrNotFound)
}

func TestReplaceRematches(t *testing.T) {
	eng := newTestEngine(t, nil)

	id, err := eng.Submit(spec(orderbook.Buy, "9.00", "0.100"))
	require.NoError(t, err)
	_, err = eng.Submit(spec(orderbook.Sell, "10.00", "0.100"))
	require.NoError(t, err)

	require.NoError(t, eng.Replace(sym, id, dec("10.00"), dec("0.100")))

	last, ok, err := eng.LastTrade(sym)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(dec("10.00")))
}

func TestSubscribeReceivesFills(t *testing.T) {
	eng := newTestEngine(t, nil)

	var fills []event.Event
	require.NoError(t, eng.Subscribe(sym, event.Fill, func(ev event.Event) {
		fills = append(fills, ev)
	}))

	_, err := eng.Submit(spec(orderbook.Buy, "10.00", "0.100"))
	require.NoError(t, err)
	_, err = eng.Submit(spec(orderbook.Sell, "10.00", "0.100"))
	require.NoError(t, err)

	// Maker and taker fill of one trade.
	require.Len(t, fills, 2)
	assert.Equal(t, fills[0].TradeSeq, fills[1].TradeSeq)
}

func TestOCOThroughEngine(t *testing.T) {
	eng := newTestEngine(t, nil)

	ticket, err := eng.SubmitOCO(
		spec(orderbook.Buy, "10.00", "0.100"),
		spec(orderbook.Sell, "20.00", "0.100"),
	)
	require.NoError(t, err)
	require.Len(t, ticket.Legs, 2)

	state, ok, err := eng.GroupState(sym, ticket.GroupID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, state.Terminal())

	// Fill the buy leg; the sell leg dies with it.
	_, err = eng.Submit(spec(orderbook.Sell, "10.00", "0.100"))
	require.NoError(t, err)

	_, ok, err = eng.GroupState(sym, ticket.GroupID)
	require.NoError(t, err)
	assert.False(t, ok, "terminal group should be destroyed")

	open, err := eng.OpenOrders(sym)
	require.NoError(t, err)
	assert.Zero(t, open)
}

func TestFOKThroughEngine(t *testing.T) {
	eng := newTestEngine(t, nil)

	_, err := eng.Submit(spec(orderbook.Sell, "10.00", "0.030"))
	require.NoError(t, err)

	// More than the book holds: nothing may execute.
	_, err = eng.SubmitFOK(spec(orderbook.Buy, "10.00", "0.050"))
	require.NoError(t, err)

	_, ok, err := eng.LastTrade(sym)
	require.NoError(t, err)
	assert.False(t, ok, "unfillable FOK must not trade")

	// Exactly what the book holds fills atomically.
	_, err = eng.SubmitFOK(spec(orderbook.Buy, "10.00", "0.030"))
	require.NoError(t, err)

	last, ok, err := eng.LastTrade(sym)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(dec("10.00")))
}

func TestBracketThroughEngine(t *testing.T) {
	eng := newTestEngine(t, nil)

	ticket, err := eng.SubmitBracket(
		spec(orderbook.Buy, "10.00", "0.100"),
		spec(orderbook.Sell, "12.00", "0.100"),
		OrderSpec{
			Instrument: sym,
			Side:       orderbook.Sell,
			Type:       orderbook.Stop,
			StopPrice:  dec("8.00"),
			Qty:        dec("0.100"),
		},
	)
	require.NoError(t, err)
	require.Len(t, ticket.Legs, 3)

	// Fill the entry; the exits arm.
	_, err = eng.Submit(spec(orderbook.Sell, "10.00", "0.100"))
	require.NoError(t, err)

	open, err := eng.OpenOrders(sym)
	require.NoError(t, err)
	assert.Equal(t, 2, open, "take-profit and stop-loss should be live")

	// Take profit; the stop-loss dies with it.
	_, err = eng.Submit(spec(orderbook.Buy, "12.00", "0.100"))
	require.NoError(t, err)

	open, err = eng.OpenOrders(sym)
	require.NoError(t, err)
	assert.Zero(t, open)
}

func TestTradesAreJournaled(t *testing.T) {
	jrnl, err := journal.Open(t.TempDir())
	require.NoError(t, err)
	defer jrnl.Close()

	eng := newTestEngine(t, jrnl)
	_, err = eng.Submit(spec(orderbook.Buy, "10.00", "0.100"))
	require.NoError(t, err)
	_, err = eng.Submit(spec(orderbook.Sell, "10.00", "0.100"))
	require.NoError(t, err)

	var recs []journal.Record
	require.NoError(t, jrnl.ScanByState(journal.StateNew, func(rec journal.Record) error {
		recs = append(recs, rec)
		return nil
	}))
	require.Len(t, recs, 1)
	assert.Equal(t, sym, recs[0].Instrument)
	assert.Equal(t, int64(1000), recs[0].Price, "10.00 at tick 0.01 is 1000 ticks")
	assert.Equal(t, int64(100), recs[0].Qty, "0.100 at lot 0.001 is 100 lots")
}

func TestTrailingStopThroughEngine(t *testing.T) {
	eng := newTestEngine(t, nil)

	// Reference trade plus floor liquidity for the eventual fire.
	_, err := eng.Submit(spec(orderbook.Buy, "9.00", "0.100"))
	require.NoError(t, err)
	_, err = eng.Submit(spec(orderbook.Buy, "10.00", "0.010"))
	require.NoError(t, err)
	_, err = eng.Submit(spec(orderbook.Sell, "10.00", "0.010"))
	require.NoError(t, err)

	ticket, err := eng.SubmitTrailingStop(OrderSpec{
		Instrument: sym,
		Side:       orderbook.Sell,
		Type:       orderbook.Stop,
		StopPrice:  dec("0.01"), // seeded by the engine from the trail
		Qty:        dec("0.050"),
	}, dec("0.50"))
	require.NoError(t, err)

	state, ok, err := eng.GroupState(sym, ticket.GroupID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, state.Terminal())

	// Trade down to the trigger (10.00 - 0.50): the stop fires into
	// the 9.00 bid and the group terminates.
	_, err = eng.Submit(spec(orderbook.Buy, "9.50", "0.010"))
	require.NoError(t, err)
	_, err = eng.Submit(spec(orderbook.Sell, "9.50", "0.010"))
	require.NoError(t, err)

	_, ok, err = eng.GroupState(sym, ticket.GroupID)
	require.NoError(t, err)
	assert.False(t, ok, "fired and filled trailing group should be destroyed")
}
