package devicetrust

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGStore implements Store using PostgreSQL. Decision write-once is
// enforced by a conditional update on the pending state, so concurrent
// confirm/deny races resolve to exactly one winner.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const notificationColumns = `id, recipient_email, device_id, device_label, source_ip, user_agent, decision, denial_reason, created_at, decided_at`

func (s *PGStore) CreateNotification(ctx context.Context, n *Notification) error {
	decision := n.Decision
	if decision == "" {
		decision = DecisionPending
	}
	_, err := s.db.ExecContext(ctx,
		`insert into device_notifications(id, recipient_email, device_id, device_label, source_ip, user_agent, decision, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		n.ID, n.RecipientEmail, n.Device.ID, n.Device.Label,
		n.Device.SourceIP, n.Device.UserAgent, string(decision), n.CreatedAt,
	)
	return err
}

func (s *PGStore) GetNotification(ctx context.Context, id string) (*Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+notificationColumns+` from device_notifications where id=$1`, id)
	return scanNotification(row)
}

func (s *PGStore) ResolveDecision(ctx context.Context, id string, decision Decision, reason string, at time.Time) (*Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`update device_notifications
		 set decision=$2, denial_reason=$3, decided_at=$4
		 where id=$1 and decision=$5
		 returning `+notificationColumns,
		id, string(decision), reason, at, string(DecisionPending),
	)
	n, err := scanNotification(row)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	// No pending row matched: either absent or already resolved.
	existing, err := s.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Decision == decision {
		return nil, ErrAlreadyResolved
	}
	return nil, ErrDecisionConflict
}

func (s *PGStore) SetDeviceTrust(ctx context.Context, email, deviceID string, trusted bool) error {
	_, err := s.db.ExecContext(ctx,
		`insert into device_trust(email, device_id, trusted, updated_at)
		 values($1,$2,$3,now())
		 on conflict (email, device_id) do update set trusted=$3, updated_at=now()`,
		email, deviceID, trusted,
	)
	return err
}

func (s *PGStore) CreateIncident(ctx context.Context, inc *Incident) error {
	_, err := s.db.ExecContext(ctx,
		`insert into incidents(id, code, title, incident_type, severity, status, affected_email, notification_id, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 on conflict (notification_id) do nothing`,
		inc.ID, inc.Code, inc.Title, inc.IncidentType, inc.Severity,
		inc.Status, inc.AffectedEmail, inc.NotificationID, inc.CreatedAt,
	)
	return err
}

func (s *PGStore) IncidentByNotification(ctx context.Context, notificationID string) (*Incident, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, code, title, incident_type, severity, status, affected_email, notification_id, created_at
		 from incidents where notification_id=$1`, notificationID)
	return scanIncident(row)
}

func (s *PGStore) ListIncidents(ctx context.Context, limit int) ([]Incident, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, code, title, incident_type, severity, status, affected_email, notification_id, created_at
		 from incidents order by created_at desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		var inc Incident
		if err := rows.Scan(
			&inc.ID, &inc.Code, &inc.Title, &inc.IncidentType, &inc.Severity,
			&inc.Status, &inc.AffectedEmail, &inc.NotificationID, &inc.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*Notification, error) {
	var (
		n         Notification
		decision  string
		reason    sql.NullString
		decidedAt sql.NullTime
	)
	err := row.Scan(
		&n.ID, &n.RecipientEmail, &n.Device.ID, &n.Device.Label,
		&n.Device.SourceIP, &n.Device.UserAgent, &decision, &reason,
		&n.CreatedAt, &decidedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	n.Decision = Decision(decision)
	n.DenialReason = reason.String
	if decidedAt.Valid {
		n.DecidedAt = decidedAt.Time
	}
	return &n, nil
}

func scanIncident(row rowScanner) (*Incident, error) {
	var inc Incident
	err := row.Scan(
		&inc.ID, &inc.Code, &inc.Title, &inc.IncidentType, &inc.Severity,
		&inc.Status, &inc.AffectedEmail, &inc.NotificationID, &inc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inc, nil
}
