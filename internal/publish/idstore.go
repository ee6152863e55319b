package publish

import (
	"sync"

	"github.com/google/uuid"
)

// CommandIDStore is the in-memory set of command ids whose events have
// already been published. One command id corresponds to one edit-log row
// (the row's event id), so membership means "this edit's events are on the
// bus" and a re-delivered edit is dropped before it can emit duplicates.
//
// Safe for concurrent use, though the dispatcher is the only writer by
// construction.
type CommandIDStore struct {
	mu  sync.RWMutex
	ids map[uuid.UUID]struct{}
}

// NewCommandIDStore creates a store seeded with ids recovered from the
// downstream event log. seed may be nil.
func NewCommandIDStore(seed map[uuid.UUID]struct{}) *CommandIDStore {
	ids := make(map[uuid.UUID]struct{}, len(seed))
	for id := range seed {
		ids[id] = struct{}{}
	}
	return &CommandIDStore{ids: ids}
}

// Seen reports whether the command id has already been published.
func (s *CommandIDStore) Seen(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Add records a command id, synchronously with its publication.
func (s *CommandIDStore) Add(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

// Len returns the number of known command ids.
func (s *CommandIDStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
