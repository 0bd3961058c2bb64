package audit

import "sync"

// MemorySink is an in-memory Sink for tests: it never fails and retains
// every entry appended to it in order.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemorySink builds an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append records e and always succeeds.
func (s *MemorySink) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a copy of every entry appended so far, in order.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
