package advanced

import "matchbook/domain/orderbook"

type Family uint8
type State uint8

const (
	OCO Family = iota
	OTO
	FOK
	Bracket
	TrailingStop
	TrailingBracket
)

const (
	StatePending State = iota // constructed, primitives not all live
	StateActive               // primitives resting or triggered-and-live
	StateFilled
	StateCancelled
	StateRejected
)

func (f Family) String() string {
	switch f {
	case OCO:
		return "OCO"
	case OTO:
		return "OTO"
	case FOK:
		return "FOK"
	case Bracket:
		return "BRACKET"
	case TrailingStop:
		return "TRAILING_STOP"
	case TrailingBracket:
		return "TRAILING_BRACKET"
	default:
		return "UNKNOWN"
	}
}

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateActive:
		return "ACTIVE"
	case StateFilled:
		return "FILLED"
	case StateCancelled:
		return "CANCELLED"
	case StateRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the group's state machine has finished.
func (s State) Terminal() bool {
	return s == StateFilled || s == StateCancelled || s == StateRejected
}

// Group is one composite order: a family tag plus the shared state-
// machine scaffolding. Family-specific behavior lives in the
// controller's transition methods, not in subtypes.
type Group struct {
	ID     uint64
	Family Family
	State  State

	legs []uint64 // every primitive id ever submitted for this group

	entry      uint64 // primary leg (OTO, Bracket, TrailingBracket)
	legA, legB uint64 // linked pair (OCO legs, bracket exits once armed)
	winner     uint64 // first OCO leg to execute; its sibling is dead

	// Constructed but not yet submitted: OTO dependents, bracket exits.
	pending []*orderbook.Order

	// Trailing families.
	trail    int64 // trail distance in ticks
	ref      int64 // best-seen reference price
	hasRef   bool
	trigger  int64 // current stop trigger as tracked by the controller
	stopID   uint64
	stopSide orderbook.Side

	anyFilled bool // at least one executed lot anywhere in the group
	liveDeps  int  // outstanding dependent legs (OTO)
}

// sibling returns the other half of the linked pair.
func (g *Group) sibling(id uint64) uint64 {
	switch id {
	case g.legA:
		return g.legB
	case g.legB:
		return g.legA
	default:
		return 0
	}
}
