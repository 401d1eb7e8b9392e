// Package view holds the per-view result state the mobile client reads back.
//
// Each view (translation panel, daily word, lesson browser) owns one
// independent state slice with a defined reset policy. There is no shared
// mutable global: every slice is created in main and handed to exactly the
// components that need it.
package view

import "sync"

// Ticket identifies one issue of a view update. Tickets are ordered by
// issue time, not by completion time.
type Ticket uint64

// Slice is a single view's result state with last-write-wins supersession:
// a result may only be applied if no newer ticket has been issued since it
// was begun. A response for a superseded request — however late or early it
// arrives — never overwrites the state for the current input.
type Slice[T any] struct {
	mu     sync.Mutex
	issued Ticket
	val    T
	has    bool
}

// Begin registers a new pending update and supersedes all earlier tickets.
func (s *Slice[T]) Begin() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// Apply stores the value if the ticket is still the newest issued one.
// It reports whether the value was applied.
func (s *Slice[T]) Apply(t Ticket, val T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t != s.issued {
		return false
	}
	s.val = val
	s.has = true
	return true
}

// Get returns the current value and whether one has been applied.
func (s *Slice[T]) Get() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val, s.has
}

// Reset clears the slice and supersedes any in-flight update, so a request
// begun before the reset cannot repopulate the view afterwards.
func (s *Slice[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.val = zero
	s.has = false
	s.issued++
}
