package sequence

import "sync/atomic"

// Sequencer generates strictly monotonic order IDs shared by every
// instrument in the engine, so an order id alone identifies an order
// system-wide.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer starting from a given value.
// On fresh start → start = 0
// On recovery → start = highest id seen in the journal
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next order ID.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued ID.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset sets the sequencer to a specific value.
// This is ONLY used after journal recovery.
func (s *Sequencer) Reset(v uint64) {
	s.next.Store(v)
}
