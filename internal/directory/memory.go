package directory

import (
	"context"
	"sync"
	"time"

	"hrvault.org/internal/rbac"
)

// InMemory implements Store with in-process concurrency safety. Used in
// tests and demo mode when no database is configured.
type InMemory struct {
	mu    sync.RWMutex
	accts map[string]*Account
	now   func() time.Time
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty in-memory directory.
func NewInMemory() *InMemory {
	return &InMemory{
		accts: make(map[string]*Account),
		now:   time.Now,
	}
}

// WithClock overrides the time source for timestamps.
func (s *InMemory) WithClock(fn func() time.Time) *InMemory {
	if fn != nil {
		s.now = fn
	}
	return s
}

func (s *InMemory) Create(ctx context.Context, acct *Account) error {
	email := NormalizeEmail(acct.Email)
	if email == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accts[email]; ok {
		return ErrConflict
	}
	cp := *acct
	cp.Email = email
	if cp.Status == "" {
		cp.Status = StatusActive
	}
	if cp.SessionVersion < 1 {
		cp.SessionVersion = 1
	}
	if cp.DisplayName == "" {
		cp.DisplayName = FallbackDisplayName(email)
	}
	cp.CreatedAt = s.now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	s.accts[email] = &cp
	return nil
}

func (s *InMemory) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accts[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

func (s *InMemory) IncrementSessionVersion(ctx context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accts[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	acct.SessionVersion++
	acct.UpdatedAt = s.now().UTC()
	cp := *acct
	return &cp, nil
}

func (s *InMemory) UpdateRole(ctx context.Context, email string, role rbac.Role) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accts[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	acct.Role = role
	// A role change is a session-relevant mutation: fence out old tokens.
	acct.SessionVersion++
	acct.UpdatedAt = s.now().UTC()
	cp := *acct
	return &cp, nil
}

func (s *InMemory) SetPassword(ctx context.Context, email, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accts[NormalizeEmail(email)]
	if !ok {
		return ErrNotFound
	}
	acct.PasswordHash = passwordHash
	acct.UpdatedAt = s.now().UTC()
	return nil
}
