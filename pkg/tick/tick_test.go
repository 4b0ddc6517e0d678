package tick

import (
	"testing"

	"github.com/shopspring/decimal"
)

func mustConverter(t *testing.T, tickSize, lotSize string) *Converter {
	t.Helper()
	c, err := NewConverter(decimal.RequireFromString(tickSize), decimal.RequireFromString(lotSize))
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	return c
}

func TestPriceRoundTrip(t *testing.T) {
	c := mustConverter(t, "0.01", "0.001")

	ticks, err := c.PriceToTicks(decimal.RequireFromString("123.45"))
	if err != nil {
		t.Fatalf("PriceToTicks: %v", err)
	}
	if ticks != 12345 {
		t.Fatalf("ticks = %d, want 12345", ticks)
	}
	if got := c.PriceFromTicks(ticks); !got.Equal(decimal.RequireFromString("123.45")) {
		t.Fatalf("round trip = %s, want 123.45", got)
	}
}

func TestQtyRoundTrip(t *testing.T) {
	c := mustConverter(t, "0.01", "0.001")

	lots, err := c.QtyToLots(decimal.RequireFromString("2.5"))
	if err != nil {
		t.Fatalf("QtyToLots: %v", err)
	}
	if lots != 2500 {
		t.Fatalf("lots = %d, want 2500", lots)
	}
	if got := c.QtyFromLots(lots); !got.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("round trip = %s, want 2.5", got)
	}
}

func TestRejectsOffTickPrice(t *testing.T) {
	c := mustConverter(t, "0.25", "1")

	if _, err := c.PriceToTicks(decimal.RequireFromString("10.30")); err == nil {
		t.Fatal("expected error for price off the tick grid")
	}
	if _, err := c.PriceToTicks(decimal.RequireFromString("10.75")); err != nil {
		t.Fatalf("on-grid price rejected: %v", err)
	}
}

func TestRejectsNonPositiveSizes(t *testing.T) {
	if _, err := NewConverter(decimal.Zero, decimal.New(1, 0)); err == nil {
		t.Fatal("expected error for zero tick size")
	}
	if _, err := NewConverter(decimal.New(1, -2), decimal.New(-1, 0)); err == nil {
		t.Fatal("expected error for negative lot size")
	}
}
