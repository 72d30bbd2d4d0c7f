package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"hrvault.org/internal/rbac"
)

// PGSink appends audit events to PostgreSQL. Rows are insert-only; there is
// no update or delete path by construction.
type PGSink struct {
	db *sql.DB
}

var _ Sink = (*PGSink)(nil)

func NewPGSink(db *sql.DB) *PGSink {
	return &PGSink{db: db}
}

func (s *PGSink) Append(ctx context.Context, event *Event) error {
	meta, err := json.Marshal(event.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into audit_events(id, activity, status, module, performed_by, sensitivity, metadata, ip, user_agent, request_id, occurred_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		event.ID, event.Activity, string(event.Status), string(event.Module),
		event.PerformedBy, string(event.Sensitivity), meta,
		event.IP, event.UserAgent, event.RequestID, event.OccurredAt,
	)
	return err
}

// Query filters for ListEvents. Zero values are ignored.
type Query struct {
	PerformedBy string
	Module      rbac.Module
	From        time.Time
	To          time.Time
	Limit       int
}

// ListEvents returns events matching the query, newest first.
func (s *PGSink) ListEvents(ctx context.Context, q Query) ([]Event, error) {
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, activity, status, module, performed_by, sensitivity, metadata, ip, user_agent, request_id, occurred_at
		 from audit_events
		 where ($1 = '' or performed_by = $1)
		   and ($2 = '' or module = $2)
		   and ($3::timestamptz is null or occurred_at >= $3)
		   and ($4::timestamptz is null or occurred_at < $4)
		 order by occurred_at desc
		 limit $5`,
		q.PerformedBy, string(q.Module), nullTime(q.From), nullTime(q.To), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event       Event
			status      string
			module      string
			sensitivity string
			metadata    []byte
		)
		if err := rows.Scan(
			&event.ID, &event.Activity, &status, &module, &event.PerformedBy,
			&sensitivity, &metadata, &event.IP, &event.UserAgent,
			&event.RequestID, &event.OccurredAt,
		); err != nil {
			return nil, err
		}
		event.Status = Status(status)
		event.Module = rbac.Module(module)
		event.Sensitivity = Sensitivity(sensitivity)
		_ = json.Unmarshal(metadata, &event.Metadata)
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
