package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"hrvault.org/internal/rbac"
)

const issuer = "hrvault"

// DefaultTTL is the session lifetime applied when the codec is built
// without an explicit TTL.
const DefaultTTL = 8 * time.Hour

// ErrInvalidToken indicates the token failed validation.
var ErrInvalidToken = errors.New("session: invalid token")

// Session is the verified identity carried by a request. It is the only
// thing handlers receive from the authorization pipeline.
type Session struct {
	Email          string
	Role           rbac.Role
	SessionVersion int64
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

// claims is the JWT payload. The session version is the fencing token
// compared against the account authority record on every request.
type claims struct {
	Role           string `json:"role"`
	SessionVersion int64  `json:"session_version"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens. It performs no I/O.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithTTL overrides the default session lifetime.
func WithTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec from the signing secret.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("session: signing secret is required")
	}
	c := &Codec{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IssueOption adjusts a single token issuance.
type IssueOption func(*claims)

// WithSessionVersion embeds an existing session version instead of the
// default. Used on role-context switches so the fencing token survives.
func WithSessionVersion(version int64) IssueOption {
	return func(cl *claims) {
		if version > 0 {
			cl.SessionVersion = version
		}
	}
}

// Issue signs a session token for the given identity. The embedded session
// version defaults to 1 for a fresh login.
func (c *Codec) Issue(email string, role rbac.Role, opts ...IssueOption) (string, time.Time, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", time.Time{}, errors.New("session: email is required")
	}

	now := c.now().UTC()
	expiresAt := now.Add(c.ttl)
	cl := claims{
		Role:           string(role),
		SessionVersion: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	for _, opt := range opts {
		opt(&cl)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, cl)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a session token. It fails closed: any
// malformed, mis-signed, expired, or unparseable token yields nil. The
// caller still has to fence the session version against the account
// authority record; a nil-free result only proves cryptographic validity.
func (c *Codec) Verify(token string) *Session {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }))
	if err != nil {
		return nil
	}
	cl, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil
	}
	if cl.Issuer != issuer {
		return nil
	}
	email := strings.TrimSpace(strings.ToLower(cl.Subject))
	if email == "" {
		return nil
	}
	if cl.ExpiresAt == nil || cl.IssuedAt == nil {
		return nil
	}
	if cl.SessionVersion < 1 {
		return nil
	}
	return &Session{
		Email:          email,
		Role:           rbac.Normalize(cl.Role),
		SessionVersion: cl.SessionVersion,
		IssuedAt:       cl.IssuedAt.Time,
		ExpiresAt:      cl.ExpiresAt.Time,
	}
}
