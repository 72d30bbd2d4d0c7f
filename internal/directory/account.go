package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"hrvault.org/internal/rbac"
)

var (
	ErrNotFound = errors.New("directory: account not found")
	ErrConflict = errors.New("directory: account already exists")
)

// Account statuses. Anything other than active is denied by the
// authorization pipeline.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
	StatusPending  = "pending"
)

// Account is the authority record for one identity. SessionVersion is a
// monotonic fencing counter: bumping it invalidates every outstanding
// session token for the identity without a blacklist.
type Account struct {
	Email          string
	Role           rbac.Role
	Status         string
	SessionVersion int64
	DisplayName    string
	PasswordHash   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Reader is the read side consumed by the authorization pipeline.
type Reader interface {
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
}

// Store describes the full account authority contract. The account
// subsystem owns the data; the authorization core reads it per request and
// instructs version increments during revocation and role changes.
type Store interface {
	Reader
	Create(ctx context.Context, acct *Account) error
	IncrementSessionVersion(ctx context.Context, email string) (*Account, error)
	UpdateRole(ctx context.Context, email string, role rbac.Role) (*Account, error)
	SetPassword(ctx context.Context, email, passwordHash string) error
}

// NormalizeEmail canonicalizes an account key.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// FallbackDisplayName derives a best-effort display name from the email
// local part. Used when directory enrichment is unavailable; a request must
// never fail solely because enrichment failed.
func FallbackDisplayName(email string) string {
	email = NormalizeEmail(email)
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return email
	}
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
