// Package records fronts the employee record document store. Records are
// opaque documents keyed by employee email; the portal treats their shape
// as presentation concern and only enforces who may read or write them.
package records

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound indicates no record exists for the requested employee.
var ErrNotFound = errors.New("records: not found")

// Record is one employee record document.
type Record struct {
	OwnerEmail string         `json:"owner_email"`
	Document   map[string]any `json:"document"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Store is the simple CRUD contract over the backing document store.
type Store interface {
	Get(ctx context.Context, ownerEmail string) (*Record, error)
	Put(ctx context.Context, ownerEmail string, document map[string]any) (*Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
}

// InMemory implements Store for tests and demo mode.
type InMemory struct {
	mu   sync.RWMutex
	docs map[string]*Record
	now  func() time.Time
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{
		docs: make(map[string]*Record),
		now:  time.Now,
	}
}

func (s *InMemory) Get(ctx context.Context, ownerEmail string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[normalizeKey(ownerEmail)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemory) Put(ctx context.Context, ownerEmail string, document map[string]any) (*Record, error) {
	key := normalizeKey(ownerEmail)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &Record{
		OwnerEmail: key,
		Document:   document,
		UpdatedAt:  s.now().UTC(),
	}
	s.docs[key] = rec
	cp := *rec
	return &cp, nil
}

func (s *InMemory) List(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	keys := make([]string, 0, len(s.docs))
	for key := range s.docs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]Record, 0, len(s.docs))
	for _, key := range keys {
		out = append(out, *s.docs[key])
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
