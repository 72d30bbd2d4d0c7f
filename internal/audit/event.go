package audit

import (
	"time"

	"hrvault.org/internal/rbac"
)

// Status classifies the outcome an event records.
type Status string

const (
	StatusCompleted Status = "Completed"
	StatusApproved  Status = "Approved"
	StatusRejected  Status = "Rejected"
	StatusFailed    Status = "Failed"
)

// Sensitivity tags whether an event concerns privacy/security-relevant
// activity. Sensitive events must carry enough metadata to reconstruct
// who/what/why without including raw secrets.
type Sensitivity string

const (
	Sensitive    Sensitivity = "Sensitive"
	NonSensitive Sensitivity = "Non-sensitive"
)

// Event is one append-only audit record. Events are never mutated or
// deleted after Append.
type Event struct {
	ID          string            `json:"id"`
	Activity    string            `json:"activity"`
	Status      Status            `json:"status"`
	Module      rbac.Module       `json:"module"`
	PerformedBy string            `json:"performed_by"`
	Sensitivity Sensitivity       `json:"sensitivity"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	IP          string            `json:"ip,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// TokenHint returns a bounded prefix safe to log instead of a raw token.
func TokenHint(token string) string {
	const maxHint = 8
	if len(token) <= maxHint {
		return token
	}
	return token[:maxHint] + "..."
}
