package notify

import (
	"context"
	"database/sql"
	"encoding/json"
)

// PGNotifier persists notifications in PostgreSQL. Delivery beyond the
// store (email, chat) is owned by a separate dispatcher.
type PGNotifier struct {
	db *sql.DB
}

var _ BulkNotifier = (*PGNotifier)(nil)

func NewPGNotifier(db *sql.DB) *PGNotifier {
	return &PGNotifier{db: db}
}

func (n *PGNotifier) CreateBulk(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := n.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, msg := range messages {
		meta, err := json.Marshal(msg.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`insert into notifications(id, recipient_email, metadata, created_at) values($1,$2,$3,$4)`,
			msg.ID, msg.RecipientEmail, meta, msg.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}
