package directory

import (
	"context"
	"database/sql"
	"errors"

	"hrvault.org/internal/rbac"
)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const accountColumns = `email, role, status, session_version, display_name, password_hash, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, acct *Account) error {
	email := NormalizeEmail(acct.Email)
	status := acct.Status
	if status == "" {
		status = StatusActive
	}
	version := acct.SessionVersion
	if version < 1 {
		version = 1
	}
	display := acct.DisplayName
	if display == "" {
		display = FallbackDisplayName(email)
	}
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(email, role, status, session_version, display_name, password_hash)
		 values($1,$2,$3,$4,$5,$6)`,
		email, string(acct.Role), status, version, display, acct.PasswordHash,
	)
	return err
}

func (s *PGStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where email=$1`,
		NormalizeEmail(email),
	)
	return scanAccount(row)
}

func (s *PGStore) IncrementSessionVersion(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`update accounts set session_version = session_version + 1, updated_at = now()
		 where email=$1
		 returning `+accountColumns,
		NormalizeEmail(email),
	)
	return scanAccount(row)
}

func (s *PGStore) UpdateRole(ctx context.Context, email string, role rbac.Role) (*Account, error) {
	// Role changes bump the session version in the same statement so stale
	// tokens cannot observe the old role.
	row := s.db.QueryRowContext(ctx,
		`update accounts set role=$2, session_version = session_version + 1, updated_at = now()
		 where email=$1
		 returning `+accountColumns,
		NormalizeEmail(email), string(role),
	)
	return scanAccount(row)
}

func (s *PGStore) SetPassword(ctx context.Context, email, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set password_hash=$2, updated_at = now() where email=$1`,
		NormalizeEmail(email), passwordHash,
	)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		acct Account
		role string
	)
	err := row.Scan(
		&acct.Email, &role, &acct.Status, &acct.SessionVersion,
		&acct.DisplayName, &acct.PasswordHash, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	acct.Role = rbac.Normalize(role)
	return &acct, nil
}
