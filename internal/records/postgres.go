package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// PGStore implements Store over a jsonb column in PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, ownerEmail string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`select owner_email, document, updated_at from employee_records where owner_email=$1`,
		normalizeKey(ownerEmail),
	)
	var (
		rec Record
		doc []byte
	)
	if err := row.Scan(&rec.OwnerEmail, &doc, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(doc, &rec.Document)
	return &rec, nil
}

func (s *PGStore) Put(ctx context.Context, ownerEmail string, document map[string]any) (*Record, error) {
	doc, err := json.Marshal(document)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`insert into employee_records(owner_email, document, updated_at)
		 values($1,$2,now())
		 on conflict (owner_email) do update set document=$2, updated_at=now()
		 returning owner_email, updated_at`,
		normalizeKey(ownerEmail), doc,
	)
	var (
		rec       Record
		updatedAt time.Time
	)
	if err := row.Scan(&rec.OwnerEmail, &updatedAt); err != nil {
		return nil, err
	}
	rec.Document = document
	rec.UpdatedAt = updatedAt
	return &rec, nil
}

func (s *PGStore) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`select owner_email, document, updated_at from employee_records order by owner_email limit $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec Record
			doc []byte
		)
		if err := rows.Scan(&rec.OwnerEmail, &doc, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(doc, &rec.Document)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func normalizeKey(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
