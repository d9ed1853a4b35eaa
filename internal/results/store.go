// Package results stores finished execution outcomes for later retrieval
// through the HTTP surface.
package results

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scenicrun/scenic/internal/outcome"
)

// Record is one stored execution outcome.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	outcome.Outcome
}

// Store is an in-memory, insertion-ordered outcome registry.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]*Record
	order []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*Record)}
}

// Save stores an outcome and returns its record.
func (s *Store) Save(sessionID string, out outcome.Outcome) *Record {
	rec := &Record{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		CreatedAt: time.Now(),
		Outcome:   out,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return rec
}

// GetAll returns all records in insertion order.
func (s *Store) GetAll() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Record, 0, len(s.order))
	for _, id := range s.order {
		if rec, ok := s.byID[id]; ok {
			records = append(records, rec)
		}
	}
	return records
}

// GetByID returns the record for id.
func (s *Store) GetByID(id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	return rec, ok
}

// DeleteByID removes the record for id, reporting whether it existed.
func (s *Store) DeleteByID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}
