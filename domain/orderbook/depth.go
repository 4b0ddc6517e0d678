package orderbook

// LevelDepth is one aggregated price level in a depth snapshot.
type LevelDepth struct {
	Price  int64
	Qty    int64
	Orders int
}

// DepthSnapshot is a read-only view of the top of the book. Bids are
// ordered best (highest) first, asks best (lowest) first.
type DepthSnapshot struct {
	Bids []LevelDepth
	Asks []LevelDepth
}

// Depth returns up to n levels per side; n <= 0 means all levels.
func (b *OrderBook) Depth(n int) DepthSnapshot {
	var snap DepthSnapshot
	take := func(out *[]LevelDepth) func(*PriceLevel) bool {
		return func(lvl *PriceLevel) bool {
			*out = append(*out, LevelDepth{
				Price:  lvl.Price,
				Qty:    lvl.TotalQty,
				Orders: lvl.OrderCount,
			})
			return n <= 0 || len(*out) < n
		}
	}
	b.bids.ForEachDescending(take(&snap.Bids))
	b.asks.ForEachAscending(take(&snap.Asks))
	return snap
}
