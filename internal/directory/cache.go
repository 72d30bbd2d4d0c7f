package directory

import (
	"context"
	"sync"
	"time"

	"hrvault.org/internal/rbac"
)

// DefaultCacheTTL bounds how stale a cached authority record can be.
const DefaultCacheTTL = 30 * time.Second

type cacheEntry struct {
	acct     Account
	fetched  time.Time
	negative bool
}

// Cache is a read-through TTL cache over a Store. It is an explicitly owned,
// injected object rather than an ambient singleton so tests can drive it
// with a fake clock. Mutations routed through the cache invalidate the
// entry immediately; mutations performed elsewhere become visible after at
// most one TTL.
type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

var _ Store = (*Cache)(nil)

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheTTL overrides the entry lifetime.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheClock overrides the time source (useful for tests).
func WithCacheClock(fn func() time.Time) CacheOption {
	return func(c *Cache) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCache wraps store with a TTL cache.
func NewCache(store Store, opts ...CacheOption) *Cache {
	c := &Cache{
		store:   store,
		ttl:     DefaultCacheTTL,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	key := NormalizeEmail(email)
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && now.Sub(entry.fetched) < c.ttl {
		if entry.negative {
			return nil, ErrNotFound
		}
		cp := entry.acct
		return &cp, nil
	}

	acct, err := c.store.GetAccountByEmail(ctx, key)
	if err != nil {
		if err == ErrNotFound {
			c.put(key, cacheEntry{fetched: now, negative: true})
		}
		// Store errors are not cached: the next request retries, and the
		// caller fails closed for authorization decisions.
		return nil, err
	}
	c.put(key, cacheEntry{acct: *acct, fetched: now})
	cp := *acct
	return &cp, nil
}

// DisplayName resolves a display name with a best-effort fallback derived
// from the email local part. Enrichment never fails the request.
func (c *Cache) DisplayName(ctx context.Context, email string) string {
	acct, err := c.GetAccountByEmail(ctx, email)
	if err != nil || acct.DisplayName == "" {
		return FallbackDisplayName(email)
	}
	return acct.DisplayName
}

func (c *Cache) Create(ctx context.Context, acct *Account) error {
	err := c.store.Create(ctx, acct)
	if err == nil {
		c.invalidate(acct.Email)
	}
	return err
}

func (c *Cache) IncrementSessionVersion(ctx context.Context, email string) (*Account, error) {
	acct, err := c.store.IncrementSessionVersion(ctx, email)
	c.invalidate(email)
	return acct, err
}

func (c *Cache) UpdateRole(ctx context.Context, email string, role rbac.Role) (*Account, error) {
	acct, err := c.store.UpdateRole(ctx, email, role)
	c.invalidate(email)
	return acct, err
}

func (c *Cache) SetPassword(ctx context.Context, email, passwordHash string) error {
	err := c.store.SetPassword(ctx, email, passwordHash)
	c.invalidate(email)
	return err
}

func (c *Cache) put(key string, entry cacheEntry) {
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

func (c *Cache) invalidate(email string) {
	c.mu.Lock()
	delete(c.entries, NormalizeEmail(email))
	c.mu.Unlock()
}
