package assistant

import "sync"

// Session is the in-memory conversation thread. It is append-only while
// active and discarded wholesale on reset; nothing is persisted across
// sessions.
type Session struct {
	mu    sync.Mutex
	turns []ChatTurn
}

// NewSession creates an empty conversation.
func NewSession() *Session {
	return &Session{}
}

// Append adds a turn to the thread.
func (s *Session) Append(turn ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
}

// History returns a copy of the thread, oldest first.
func (s *Session) History() []ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Reset discards the thread.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}
