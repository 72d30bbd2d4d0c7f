package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"hrvault.org/internal/rbac"
)

func TestInMemoryCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	if err := s.Create(ctx, &Account{Email: " Ana.Ruiz@Example.com ", Role: rbac.RoleManager}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, &Account{Email: "ana.ruiz@example.com"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	acct, err := s.GetAccountByEmail(ctx, "ANA.RUIZ@example.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail: %v", err)
	}
	if acct.Email != "ana.ruiz@example.com" || acct.Status != StatusActive || acct.SessionVersion != 1 {
		t.Fatalf("unexpected account: %+v", acct)
	}
	if acct.DisplayName != "Ana Ruiz" {
		t.Fatalf("unexpected display name: %q", acct.DisplayName)
	}

	if _, err := s.GetAccountByEmail(ctx, "missing@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInMemorySessionVersionFencing(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	if err := s.Create(ctx, &Account{Email: "a@b.com", Role: rbac.RoleEmployee}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	acct, err := s.IncrementSessionVersion(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("IncrementSessionVersion: %v", err)
	}
	if acct.SessionVersion != 2 {
		t.Fatalf("expected version 2, got %d", acct.SessionVersion)
	}

	// Role updates bump the version too: a role mutation must kill stale
	// sessions even though their signatures are still valid.
	acct, err = s.UpdateRole(ctx, "a@b.com", rbac.RoleManager)
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if acct.Role != rbac.RoleManager || acct.SessionVersion != 3 {
		t.Fatalf("unexpected account after role update: %+v", acct)
	}
}

func TestFallbackDisplayName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"jane.doe@example.com", "Jane Doe"},
		{"j_smith@example.com", "J Smith"},
		{"solo@example.com", "Solo"},
		{"not-an-email", "not-an-email"},
	}
	for _, tc := range cases {
		if got := FallbackDisplayName(tc.in); got != tc.want {
			t.Fatalf("FallbackDisplayName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// countingStore wraps InMemory and counts reads to observe cache behavior.
type countingStore struct {
	*InMemory
	reads int
	fail  bool
}

func (s *countingStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	s.reads++
	if s.fail {
		return nil, errors.New("backing store unreachable")
	}
	return s.InMemory.GetAccountByEmail(ctx, email)
}

func TestCacheReadThroughAndTTL(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{InMemory: NewInMemory()}
	if err := backing.Create(ctx, &Account{Email: "a@b.com", Role: rbac.RoleEmployee}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	cache := NewCache(backing, WithCacheClock(func() time.Time { return now }), WithCacheTTL(30*time.Second))

	for i := 0; i < 3; i++ {
		if _, err := cache.GetAccountByEmail(ctx, "a@b.com"); err != nil {
			t.Fatalf("GetAccountByEmail: %v", err)
		}
	}
	if backing.reads != 1 {
		t.Fatalf("expected one backing read, got %d", backing.reads)
	}

	now = now.Add(31 * time.Second)
	if _, err := cache.GetAccountByEmail(ctx, "a@b.com"); err != nil {
		t.Fatalf("GetAccountByEmail after TTL: %v", err)
	}
	if backing.reads != 2 {
		t.Fatalf("expected refetch after TTL, got %d reads", backing.reads)
	}
}

func TestCacheInvalidatesOnMutation(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{InMemory: NewInMemory()}
	if err := backing.Create(ctx, &Account{Email: "a@b.com", Role: rbac.RoleEmployee}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	cache := NewCache(backing, WithCacheClock(func() time.Time { return now }))

	before, err := cache.GetAccountByEmail(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail: %v", err)
	}

	if _, err := cache.IncrementSessionVersion(ctx, "a@b.com"); err != nil {
		t.Fatalf("IncrementSessionVersion: %v", err)
	}

	after, err := cache.GetAccountByEmail(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail: %v", err)
	}
	if after.SessionVersion != before.SessionVersion+1 {
		t.Fatalf("revocation not visible through cache: before=%d after=%d",
			before.SessionVersion, after.SessionVersion)
	}
}

func TestCacheDisplayNameFallsBackOnStoreError(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{InMemory: NewInMemory(), fail: true}
	cache := NewCache(backing)

	if got := cache.DisplayName(ctx, "jane.doe@example.com"); got != "Jane Doe" {
		t.Fatalf("expected fallback display name, got %q", got)
	}
}
