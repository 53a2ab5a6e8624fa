// Package sequence assigns order ids.
package sequence

import "sync/atomic"

// Sequencer generates strictly monotonic order ids. It is an explicit
// handle owned by whichever component accepts submissions; nothing in
// the engine reaches for process-wide state.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer that will issue ids greater than start.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next id.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued id.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}
