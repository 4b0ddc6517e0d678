package service

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"matchbook/domain/orderbook"
	"matchbook/pkg/tick"
)

// OrderSpec is the boundary representation of one order. Prices and
// quantities are decimals; the engine converts them to the
// instrument's ticks and lots and rejects values off the grid.
type OrderSpec struct {
	Instrument string
	ClientRef  string // optional caller correlation id, must be a UUID when set
	Side       orderbook.Side
	Type       orderbook.OrderType
	Price      decimal.Decimal // limit price; ignored for market orders
	StopPrice  decimal.Decimal // trigger; stop and stop-limit only
	Qty        decimal.Decimal
}

// GroupTicket identifies an accepted composite order: the group id for
// group-level operations and the engine-assigned leg ids in submission
// order.
type GroupTicket struct {
	GroupID uint64
	Legs    []uint64
}

func errSpec(reason string) error {
	return &orderbook.ValidationError{Reason: reason}
}

// buildOrder converts a spec into a domain order with a fresh id.
func (e *Engine) buildOrder(conv *tick.Converter, spec OrderSpec) (*orderbook.Order, error) {
	if spec.ClientRef != "" {
		if _, err := uuid.Parse(spec.ClientRef); err != nil {
			return nil, errSpec("client ref must be a UUID")
		}
	}
	if spec.Qty.Sign() <= 0 {
		return nil, errSpec("quantity must be positive")
	}

	qty, err := conv.QtyToLots(spec.Qty)
	if err != nil {
		return nil, errSpec(err.Error())
	}

	o := &orderbook.Order{
		ID:   e.seq.Next(),
		Side: spec.Side,
		Type: spec.Type,
		Qty:  qty,
	}

	needsPrice := spec.Type == orderbook.Limit || spec.Type == orderbook.StopLimit
	if needsPrice {
		if spec.Price.Sign() <= 0 {
			return nil, errSpec("price must be positive")
		}
		if o.Price, err = conv.PriceToTicks(spec.Price); err != nil {
			return nil, errSpec(err.Error())
		}
	}

	needsTrigger := spec.Type == orderbook.Stop || spec.Type == orderbook.StopLimit
	if needsTrigger {
		if spec.StopPrice.Sign() <= 0 {
			return nil, errSpec("stop trigger must be positive")
		}
		if o.StopPrice, err = conv.PriceToTicks(spec.StopPrice); err != nil {
			return nil, errSpec(err.Error())
		}
	}

	return o, nil
}
