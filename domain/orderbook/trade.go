package orderbook

// Trade is an immutable execution record. Price is always the resting
// order's price (price improvement goes to the incoming order); Qty is
// min of the two remaining quantities at match time. Seq is the book's
// trade sequence, shared by the fill notifications of both sides.
type Trade struct {
	Seq    uint64
	BuyID  uint64
	SellID uint64
	Price  int64
	Qty    int64
}
