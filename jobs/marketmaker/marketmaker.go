// Package marketmaker seeds and maintains two-sided liquidity on one
// instrument. It reacts to its own fills through the engine's event
// feed: the handler only records the fill on a channel, and the run
// loop requotes from its own goroutine, since feed handlers execute on
// the engine's dispatch path and must not call back in.
package marketmaker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"matchbook/domain/orderbook"
	"matchbook/event"
	"matchbook/service"
)

// Config shapes one maker's quoting.
type Config struct {
	Instrument string
	BasePrice  decimal.Decimal // ladder midpoint used until the book has traded
	Levels     int             // price levels quoted per side
	Step       decimal.Decimal // distance between adjacent ladder levels
	Size       decimal.Decimal // quantity per quote
	Random     bool            // perturb prices and sizes
	Seed       int64
	Interval   time.Duration // requote pass period
}

type fillNote struct {
	orderID   uint64
	side      orderbook.Side
	price     decimal.Decimal
	qty       decimal.Decimal
	remaining int64
}

type Maker struct {
	eng *service.Engine
	cfg Config
	log zerolog.Logger
	rng *rand.Rand

	mu   sync.Mutex
	mine map[uint64]orderbook.Side

	fills chan fillNote
}

func New(eng *service.Engine, cfg Config, log zerolog.Logger) *Maker {
	if cfg.Levels <= 0 {
		cfg.Levels = 5
	}
	return &Maker{
		eng:   eng,
		cfg:   cfg,
		log:   log,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		mine:  make(map[uint64]orderbook.Side),
		fills: make(chan fillNote, 256),
	}
}

// Run quotes until ctx is cancelled. Callers run it in a goroutine.
func (m *Maker) Run(ctx context.Context) error {
	conv, err := m.eng.Converter(m.cfg.Instrument)
	if err != nil {
		return err
	}

	err = m.eng.Subscribe(m.cfg.Instrument, event.Fill, func(ev event.Event) {
		m.mu.Lock()
		side, ok := m.mine[ev.OrderID]
		if ok && ev.Remaining == 0 {
			delete(m.mine, ev.OrderID)
		}
		m.mu.Unlock()
		if !ok {
			return
		}
		note := fillNote{
			orderID:   ev.OrderID,
			side:      side,
			price:     conv.PriceFromTicks(ev.Price),
			qty:       conv.QtyFromLots(ev.Qty),
			remaining: ev.Remaining,
		}
		select {
		case m.fills <- note:
		default:
			// Requote pass will repair the ladder.
		}
	})
	if err != nil {
		return err
	}

	m.quoteLadder()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case note := <-m.fills:
			m.onFill(note)
		case <-ticker.C:
			m.quoteLadder()
		}
	}
}

// onFill replaces consumed liquidity: a filled bid becomes a new ask
// one step above the fill, and vice versa.
func (m *Maker) onFill(note fillNote) {
	if note.remaining != 0 {
		return
	}
	side := note.side.Opposite()
	price := note.price.Add(m.cfg.Step)
	if side == orderbook.Buy {
		price = note.price.Sub(m.cfg.Step)
	}
	if price.Sign() <= 0 {
		return
	}
	m.quote(side, price, note.qty)
}

// quoteLadder tops the book up to the configured number of levels per
// side around the reference price.
func (m *Maker) quoteLadder() {
	m.mu.Lock()
	live := len(m.mine)
	m.mu.Unlock()
	if live >= 2*m.cfg.Levels {
		return
	}

	mid := m.reference()
	if mid.Sign() <= 0 {
		return
	}
	for i := 1; i <= m.cfg.Levels; i++ {
		offset := m.cfg.Step.Mul(decimal.NewFromInt(int64(i)))
		bid := mid.Sub(offset)
		ask := mid.Add(offset)
		if bid.Sign() > 0 {
			m.quote(orderbook.Buy, bid, m.size())
		}
		m.quote(orderbook.Sell, ask, m.size())
	}
}

// reference is the quoting midpoint: last trade when there is one, the
// configured base otherwise. Random makers jitter it by up to one step
// either way.
func (m *Maker) reference() decimal.Decimal {
	mid := m.cfg.BasePrice
	if last, ok, err := m.eng.LastTrade(m.cfg.Instrument); err == nil && ok {
		mid = last
	}
	if m.cfg.Random {
		steps := int64(m.rng.Intn(3)) - 1
		mid = mid.Add(m.cfg.Step.Mul(decimal.NewFromInt(steps)))
	}
	return mid
}

func (m *Maker) size() decimal.Decimal {
	if !m.cfg.Random {
		return m.cfg.Size
	}
	mult := int64(m.rng.Intn(3) + 1)
	return m.cfg.Size.Mul(decimal.NewFromInt(mult))
}

func (m *Maker) quote(side orderbook.Side, price, qty decimal.Decimal) {
	id, err := m.eng.Submit(service.OrderSpec{
		Instrument: m.cfg.Instrument,
		Side:       side,
		Type:       orderbook.Limit,
		Price:      price,
		Qty:        qty,
	})
	if err != nil {
		m.log.Debug().Err(err).
			Str("side", side.String()).
			Str("price", price.String()).
			Msg("quote rejected")
		return
	}
	m.mu.Lock()
	m.mine[id] = side
	m.mu.Unlock()
}
