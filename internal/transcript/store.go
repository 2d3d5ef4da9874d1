// Package transcript holds the ordered, session-only list of messages
package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"moviegpt/internal/backend"
	"moviegpt/internal/clock"
)

// Store is an append-only transcript. Clear replaces the whole sequence at
// once and starts a new session.
type Store struct {
	mu      sync.RWMutex
	clock   clock.Clock
	session string
	entries []Entry
}

// NewStore creates an empty transcript
func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Store{
		clock:   clk,
		session: uuid.New().String(),
	}
}

// Append adds an entry stamped with the current time and returns its id
func (s *Store) Append(role Role, text string, results []backend.QueryResult) string {
	return s.AppendAt(role, text, results, s.clock.Now())
}

// AppendAt adds an entry with an explicit timestamp. Timestamps never go
// backwards: an earlier time is raised to the previous entry's.
func (s *Store) AppendAt(role Role, text string, results []backend.QueryResult, at time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.entries); n > 0 && at.Before(s.entries[n-1].CreatedAt) {
		at = s.entries[n-1].CreatedAt
	}

	entry := Entry{
		ID:        uuid.New().String(),
		Role:      role,
		Text:      text,
		Results:   append([]backend.QueryResult(nil), results...),
		CreatedAt: at,
	}
	s.entries = append(s.entries, entry)
	return entry.ID
}

// Clear discards every entry and starts a new session
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.session = uuid.New().String()
}

// All returns a copy of the entries in insertion order
func (s *Store) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Get returns the entry with the given id
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Last returns the most recent entry
func (s *Store) Last() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// Session identifies the current conversation; it changes on Clear
func (s *Store) Session() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}
