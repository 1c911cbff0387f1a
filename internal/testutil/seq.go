// Package testutil holds helpers shared by tests and the scenario harness.
package testutil

import "sync"

// Seq is a logical step counter. The first call to Next returns 1, so a
// scenario that runs twice numbers its steps the same way both times.
// Safe for concurrent use.
type Seq struct {
	mu sync.Mutex
	n  int64
}

// Next advances the counter and returns the new value.
func (s *Seq) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.n
}

// Current returns the last value handed out, or 0.
func (s *Seq) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Reset starts the count over.
func (s *Seq) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}
