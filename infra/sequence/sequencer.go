package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing sequence numbers. The ledger
// stamps every recorded block transition with one so scans can order
// events that share a timestamp.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer whose first Next returns start+1.
// Fresh ledger → start = 0
// Reopened ledger → start = highest persisted seq
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued sequence number.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Observe raises the sequencer to v when v is ahead of it. Used while
// scanning persisted records on open.
func (s *Sequencer) Observe(v uint64) {
	for {
		cur := s.next.Load()
		if v <= cur || s.next.CompareAndSwap(cur, v) {
			return
		}
	}
}
