package devicetrust

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("devicetrust: notification not found")
	// ErrAlreadyResolved is returned when the same decision is applied
	// twice; the first outcome stands.
	ErrAlreadyResolved = errors.New("devicetrust: already resolved")
	// ErrDecisionConflict is returned when a second, different decision is
	// attempted. The decision field is write-once.
	ErrDecisionConflict = errors.New("devicetrust: conflicting decision")
)

// Decision is the write-once verdict on a device verification notification.
type Decision string

const (
	DecisionPending   Decision = "pending"
	DecisionConfirmed Decision = "confirmed"
	DecisionDenied    Decision = "denied"
)

// Device describes the login context that triggered verification.
type Device struct {
	ID        string
	Label     string
	SourceIP  string
	UserAgent string
}

// Notification asks a user to confirm or deny an unrecognized device.
// States: Reported (pending) -> Confirmed | Denied; both are terminal.
type Notification struct {
	ID             string
	RecipientEmail string
	Device         Device
	Decision       Decision
	DenialReason   string
	CreatedAt      time.Time
	DecidedAt      time.Time
}

// Incident severities and statuses used by the escalation path. Status
// evolves through an external incident workflow; only Open is set here.
const (
	SeverityHigh = "High"

	IncidentStatusOpen = "Open"

	IncidentTypeUnauthorizedAccess = "Unauthorized Access"
)

// Incident records a security escalation. Identity fields are immutable
// once created.
type Incident struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	Title          string    `json:"title"`
	IncidentType   string    `json:"incident_type"`
	Severity       string    `json:"severity"`
	Status         string    `json:"status"`
	AffectedEmail  string    `json:"affected_email"`
	NotificationID string    `json:"notification_id"`
	CreatedAt      time.Time `json:"created_at"`
}
