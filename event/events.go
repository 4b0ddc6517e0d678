package event

// Kind identifies what happened to an order inside the book.
type Kind uint8

const (
	Fill Kind = iota
	Cancel
	StopTriggered
	Reject

	numKinds
)

func (k Kind) String() string {
	switch k {
	case Fill:
		return "FILL"
	case Cancel:
		return "CANCEL"
	case StopTriggered:
		return "STOP_TRIGGERED"
	case Reject:
		return "REJECT"
	default:
		return "UNKNOWN"
	}
}

// Event is a single book notification. Events carry plain integers so
// the package has no dependency on the book's internal types.
type Event struct {
	Kind    Kind
	OrderID uint64

	// Fill: execution price and quantity, remaining after the fill,
	// and the trade sequence number shared by both sides of the match.
	Price     int64
	Qty       int64
	Remaining int64
	TradeSeq  uint64

	// Reject only.
	Reason string
}
