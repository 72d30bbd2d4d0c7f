package devicetrust

import (
	"context"
	"time"

	"hrvault.org/internal/audit"
	"hrvault.org/internal/directory"
	"hrvault.org/internal/ids"
	"hrvault.org/internal/notify"
	"hrvault.org/internal/rbac"
)

// Service runs the new-device verification workflow: report a sign-in,
// collect the employee's confirm/deny decision, and on denial escalate to
// a security incident with full session revocation.
type Service struct {
	store          Store
	accounts       directory.Store
	notifier       notify.BulkNotifier
	recorder       *audit.Recorder
	hub            *notify.Hub
	riskRecipients []string
	now            func() time.Time
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithClock overrides the service clock. Intended for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithRiskRecipients sets the governance group notified when a denial
// escalates to an incident.
func WithRiskRecipients(emails []string) ServiceOption {
	return func(s *Service) { s.riskRecipients = emails }
}

// NewService wires the verification workflow. The accounts store must be
// the same one the authorization guard reads through, so that session
// revocation is visible immediately.
func NewService(store Store, accounts directory.Store, notifier notify.BulkNotifier, recorder *audit.Recorder, hub *notify.Hub, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		accounts: accounts,
		notifier: notifier,
		recorder: recorder,
		hub:      hub,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report records a sign-in from an unrecognized device and asks the account
// owner to confirm or deny it. Returns the pending notification.
func (s *Service) Report(ctx context.Context, email string, device Device) (*Notification, error) {
	email = directory.NormalizeEmail(email)
	now := s.now().UTC()
	n := &Notification{
		ID:             ids.NewAt(now),
		RecipientEmail: email,
		Device:         device,
		Decision:       DecisionPending,
		CreatedAt:      now,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Event{
		Activity:    "New Device Sign-In Reported",
		Status:      audit.StatusCompleted,
		Module:      rbac.ModuleSecurity,
		PerformedBy: email,
		Sensitivity: audit.Sensitive,
		Metadata: map[string]string{
			"notification_id": n.ID,
			"device_id":       device.ID,
			"source_ip":       device.SourceIP,
		},
	})
	if s.hub != nil {
		s.hub.Publish(notify.FeedEvent{
			Kind:    "device_verification_requested",
			Subject: email,
			Detail:  map[string]string{"notification_id": n.ID, "device_id": device.ID},
		})
	}
	return n, nil
}

// Confirm resolves a pending verification as legitimate and marks the
// device trusted for the account. Confirming an already-confirmed
// notification returns ErrAlreadyResolved; confirming a denied one returns
// ErrDecisionConflict.
func (s *Service) Confirm(ctx context.Context, notificationID string) (*Notification, error) {
	now := s.now().UTC()
	n, err := s.store.ResolveDecision(ctx, notificationID, DecisionConfirmed, "", now)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetDeviceTrust(ctx, n.RecipientEmail, n.Device.ID, true); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Event{
		Activity:    "Device Sign-In Confirmed",
		Status:      audit.StatusApproved,
		Module:      rbac.ModuleSecurity,
		PerformedBy: n.RecipientEmail,
		Sensitivity: audit.Sensitive,
		Metadata: map[string]string{
			"notification_id": n.ID,
			"device_id":       n.Device.ID,
		},
	})
	if s.hub != nil {
		s.hub.Publish(notify.FeedEvent{
			Kind:    "device_verification_confirmed",
			Subject: n.RecipientEmail,
			Detail:  map[string]string{"notification_id": n.ID},
		})
	}
	return n, nil
}

// Deny resolves a pending verification as unauthorized access. The
// escalation runs in a fixed order: decision write, then session
// revocation, then incident creation, then risk-group fan-out. Revoking
// before the incident exists guarantees the intruder holds no valid
// session by the time anyone acts on the incident.
func (s *Service) Deny(ctx context.Context, notificationID, reason string) (*Notification, *Incident, error) {
	now := s.now().UTC()
	n, err := s.store.ResolveDecision(ctx, notificationID, DecisionDenied, reason, now)
	if err != nil {
		return nil, nil, err
	}

	if err := s.store.SetDeviceTrust(ctx, n.RecipientEmail, n.Device.ID, false); err != nil {
		return nil, nil, err
	}

	// Revocation first. Bumping the session version invalidates every
	// outstanding token for the account, the attacker's included.
	if _, err := s.accounts.IncrementSessionVersion(ctx, n.RecipientEmail); err != nil {
		return nil, nil, err
	}

	incidentID := ids.NewAt(now)
	inc := &Incident{
		ID:             incidentID,
		Code:           ids.IncidentCode(incidentID),
		Title:          "Unauthorized account access via unrecognized device",
		IncidentType:   IncidentTypeUnauthorizedAccess,
		Severity:       SeverityHigh,
		Status:         IncidentStatusOpen,
		AffectedEmail:  n.RecipientEmail,
		NotificationID: n.ID,
		CreatedAt:      now,
	}
	if err := s.store.CreateIncident(ctx, inc); err != nil {
		return nil, nil, err
	}
	// The insert deduplicates per notification; read back the winner so a
	// retried denial reports the original incident.
	stored, err := s.store.IncidentByNotification(ctx, n.ID)
	if err == nil {
		inc = stored
	}

	if len(s.riskRecipients) > 0 {
		meta := map[string]string{
			"incident_id":    inc.ID,
			"incident_code":  inc.Code,
			"affected_email": n.RecipientEmail,
			"device_id":      n.Device.ID,
			"severity":       inc.Severity,
		}
		messages := make([]notify.Message, 0, len(s.riskRecipients))
		for _, recipient := range s.riskRecipients {
			messages = append(messages, notify.NewMessage(recipient, meta))
		}
		if err := s.notifier.CreateBulk(ctx, messages); err != nil {
			return nil, nil, err
		}
	}

	s.recorder.Record(ctx, audit.Event{
		Activity:    "Device Sign-In Denied",
		Status:      audit.StatusCompleted,
		Module:      rbac.ModuleSecurity,
		PerformedBy: n.RecipientEmail,
		Sensitivity: audit.Sensitive,
		Metadata: map[string]string{
			"notification_id": n.ID,
			"incident_id":     inc.ID,
			"incident_code":   inc.Code,
			"denial_reason":   reason,
		},
	})
	if s.hub != nil {
		s.hub.Publish(notify.FeedEvent{
			Kind:    "incident_opened",
			Subject: n.RecipientEmail,
			Detail: map[string]string{
				"incident_id":   inc.ID,
				"incident_code": inc.Code,
				"severity":      inc.Severity,
			},
		})
	}
	return n, inc, nil
}

// Notification fetches a verification by id.
func (s *Service) Notification(ctx context.Context, id string) (*Notification, error) {
	return s.store.GetNotification(ctx, id)
}

// Incidents lists the newest incidents first.
func (s *Service) Incidents(ctx context.Context, limit int) ([]Incident, error) {
	return s.store.ListIncidents(ctx, limit)
}
