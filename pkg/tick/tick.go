// Package tick converts between external decimal prices/quantities and
// the engine's internal integer representation. The matching core works
// exclusively in int64 ticks and lots; decimals exist only at the
// boundary.
package tick

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Converter maps decimal prices onto price ticks and decimal quantities
// onto lots for one instrument.
type Converter struct {
	tickSize decimal.Decimal
	lotSize  decimal.Decimal
}

// NewConverter builds a converter for the given tick and lot sizes.
// Both must be strictly positive.
func NewConverter(tickSize, lotSize decimal.Decimal) (*Converter, error) {
	if tickSize.Sign() <= 0 {
		return nil, fmt.Errorf("tick size must be positive, got %s", tickSize)
	}
	if lotSize.Sign() <= 0 {
		return nil, fmt.Errorf("lot size must be positive, got %s", lotSize)
	}
	return &Converter{tickSize: tickSize, lotSize: lotSize}, nil
}

// PriceToTicks converts a decimal price to ticks. The price must be an
// exact multiple of the tick size.
func (c *Converter) PriceToTicks(p decimal.Decimal) (int64, error) {
	return toUnits(p, c.tickSize, "price", "tick size")
}

// QtyToLots converts a decimal quantity to lots. The quantity must be
// an exact multiple of the lot size.
func (c *Converter) QtyToLots(q decimal.Decimal) (int64, error) {
	return toUnits(q, c.lotSize, "quantity", "lot size")
}

// PriceFromTicks converts ticks back to a decimal price.
func (c *Converter) PriceFromTicks(t int64) decimal.Decimal {
	return decimal.NewFromInt(t).Mul(c.tickSize)
}

// QtyFromLots converts lots back to a decimal quantity.
func (c *Converter) QtyFromLots(l int64) decimal.Decimal {
	return decimal.NewFromInt(l).Mul(c.lotSize)
}

// TickSize returns the instrument's tick size.
func (c *Converter) TickSize() decimal.Decimal { return c.tickSize }

// LotSize returns the instrument's lot size.
func (c *Converter) LotSize() decimal.Decimal { return c.lotSize }

func toUnits(v, unit decimal.Decimal, what, unitName string) (int64, error) {
	if !v.Mod(unit).IsZero() {
		return 0, fmt.Errorf("%s %s is not a multiple of %s %s", what, v, unitName, unit)
	}
	return v.DivRound(unit, 0).IntPart(), nil
}
