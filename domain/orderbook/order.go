package orderbook

type Side uint8
type OrderType uint8
type Status uint8

const (
	Buy Side = iota
	Sell
)

const (
	Limit OrderType = iota
	Market
	Stop
	StopLimit
)

const (
	Pending Status = iota
	Open
	PartiallyFilled
	Filled
	Cancelled
	Rejected
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	case Stop:
		return "STOP"
	case StopLimit:
		return "STOP_LIMIT"
	default:
		return "UNKNOWN"
	}
}

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Open:
		return "OPEN"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == Filled || s == Cancelled || s == Rejected
}

// Order is a single trading intent. Identity fields (ID, Side, Type)
// never change; execution state (Remaining, Status, SeqID) is mutated
// only by the matching loop and by explicit cancel/replace.
//
// Orders are linked intrusively into their price level so that
// cancel-by-id unlinks in O(1); the level back-pointer is the book's
// id->position index.
type Order struct {
	ID        uint64
	Side      Side
	Type      OrderType
	Price     int64 // limit price in ticks; 0 for pure market orders
	StopPrice int64 // trigger price in ticks; stop families only
	Qty       int64 // original quantity in lots
	Remaining int64
	SeqID     uint64 // time priority; reassigned on replace
	Status    Status

	// All-or-nothing execution constraint (fill-or-kill).
	AllOrNone bool

	next  *Order
	prev  *Order
	level *PriceLevel
}

// Filled returns the executed quantity so far.
func (o *Order) Filled() int64 {
	return o.Qty - o.Remaining
}

// Resting reports whether the order currently sits in the tradable book.
func (o *Order) Resting() bool {
	return o.Status == Open || o.Status == PartiallyFilled
}

// Next returns the order behind this one at the same price level.
func (o *Order) Next() *Order {
	return o.next
}
