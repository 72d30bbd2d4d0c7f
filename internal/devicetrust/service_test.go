package devicetrust

import (
	"context"
	"errors"
	"testing"
	"time"

	"hrvault.org/internal/audit"
	"hrvault.org/internal/directory"
	"hrvault.org/internal/notify"
	"hrvault.org/internal/rbac"
)

type fixture struct {
	svc      *Service
	store    *InMemoryStore
	accounts *directory.InMemory
	notifier *notify.MemoryNotifier
	sink     *audit.MemorySink
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    NewInMemoryStore(),
		accounts: directory.NewInMemory(),
		notifier: notify.NewMemoryNotifier(),
		sink:     audit.NewMemorySink(),
		now:      time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.accounts.WithClock(clock)
	recorder := audit.NewRecorder(f.sink, audit.WithClock(clock))
	f.svc = NewService(f.store, f.accounts, f.notifier, recorder, notify.NewHub(),
		WithClock(clock),
		WithRiskRecipients([]string{"risk@hrvault.org", "ciso@hrvault.org"}),
	)
	if err := f.accounts.Create(context.Background(), &directory.Account{
		Email: "aidana@hrvault.org",
		Role:  rbac.RoleEmployee,
	}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return f
}

func (f *fixture) report(t *testing.T) *Notification {
	t.Helper()
	n, err := f.svc.Report(context.Background(), "aidana@hrvault.org", Device{
		ID:        "dev-9f",
		Label:     "Chrome on Windows",
		SourceIP:  "203.0.113.7",
		UserAgent: "Mozilla/5.0",
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	return n
}

func TestReportCreatesPendingNotification(t *testing.T) {
	f := newFixture(t)
	n := f.report(t)

	if n.Decision != DecisionPending {
		t.Fatalf("decision = %q, want pending", n.Decision)
	}
	if n.RecipientEmail != "aidana@hrvault.org" {
		t.Fatalf("recipient = %q", n.RecipientEmail)
	}
	got, err := f.svc.Notification(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Device.ID != "dev-9f" {
		t.Fatalf("device = %q", got.Device.ID)
	}
	last, ok := f.sink.Last()
	if !ok || last.Activity != "New Device Sign-In Reported" {
		t.Fatalf("audit event = %+v", last)
	}
}

func TestConfirmTrustsDeviceAndIsTerminal(t *testing.T) {
	f := newFixture(t)
	n := f.report(t)

	resolved, err := f.svc.Confirm(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if resolved.Decision != DecisionConfirmed {
		t.Fatalf("decision = %q", resolved.Decision)
	}
	if trusted, known := f.store.DeviceTrusted("aidana@hrvault.org", "dev-9f"); !known || !trusted {
		t.Fatalf("trusted=%v known=%v, want trusted", trusted, known)
	}

	// Confirming does not revoke sessions.
	acct, err := f.accounts.GetAccountByEmail(context.Background(), "aidana@hrvault.org")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acct.SessionVersion != 1 {
		t.Fatalf("session version = %d, want 1", acct.SessionVersion)
	}

	// Idempotent repeat.
	if _, err := f.svc.Confirm(context.Background(), n.ID); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("second confirm err = %v, want ErrAlreadyResolved", err)
	}
	// Flip attempt after confirmation is a conflict.
	if _, _, err := f.svc.Deny(context.Background(), n.ID, "not me"); !errors.Is(err, ErrDecisionConflict) {
		t.Fatalf("deny after confirm err = %v, want ErrDecisionConflict", err)
	}
}

func TestDenyRevokesSessionsAndOpensIncident(t *testing.T) {
	f := newFixture(t)
	n := f.report(t)

	resolved, inc, err := f.svc.Deny(context.Background(), n.ID, "not me")
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	if resolved.Decision != DecisionDenied || resolved.DenialReason != "not me" {
		t.Fatalf("resolved = %+v", resolved)
	}

	// Every session for the account is fenced out.
	acct, err := f.accounts.GetAccountByEmail(context.Background(), "aidana@hrvault.org")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acct.SessionVersion != 2 {
		t.Fatalf("session version = %d, want 2", acct.SessionVersion)
	}

	if inc.Severity != SeverityHigh {
		t.Fatalf("severity = %q", inc.Severity)
	}
	if inc.IncidentType != IncidentTypeUnauthorizedAccess {
		t.Fatalf("incident type = %q", inc.IncidentType)
	}
	if inc.Status != IncidentStatusOpen {
		t.Fatalf("status = %q", inc.Status)
	}
	if inc.Code != "INC-"+inc.ID {
		t.Fatalf("code = %q", inc.Code)
	}
	if inc.AffectedEmail != "aidana@hrvault.org" || inc.NotificationID != n.ID {
		t.Fatalf("incident = %+v", inc)
	}

	msgs := f.notifier.Messages()
	if len(msgs) != 2 {
		t.Fatalf("notified %d recipients, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.Metadata["incident_id"] != inc.ID {
			t.Fatalf("message metadata = %v", m.Metadata)
		}
	}

	last, ok := f.sink.Last()
	if !ok || last.Activity != "Device Sign-In Denied" {
		t.Fatalf("audit event = %+v", last)
	}
	if last.Metadata["incident_id"] != inc.ID {
		t.Fatalf("audit metadata = %v", last.Metadata)
	}

	if trusted, known := f.store.DeviceTrusted("aidana@hrvault.org", "dev-9f"); !known || trusted {
		t.Fatalf("trusted=%v known=%v, want distrusted", trusted, known)
	}
}

func TestDenyIsWriteOnce(t *testing.T) {
	f := newFixture(t)
	n := f.report(t)

	if _, _, err := f.svc.Deny(context.Background(), n.ID, "not me"); err != nil {
		t.Fatalf("first deny: %v", err)
	}
	if _, _, err := f.svc.Deny(context.Background(), n.ID, "still not me"); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("second deny err = %v, want ErrAlreadyResolved", err)
	}
	if _, err := f.svc.Confirm(context.Background(), n.ID); !errors.Is(err, ErrDecisionConflict) {
		t.Fatalf("confirm after deny err = %v, want ErrDecisionConflict", err)
	}

	// Exactly one incident and one revocation survived the retries.
	incidents, err := f.svc.Incidents(context.Background(), 10)
	if err != nil {
		t.Fatalf("incidents: %v", err)
	}
	if len(incidents) != 1 {
		t.Fatalf("incident count = %d, want 1", len(incidents))
	}
	acct, _ := f.accounts.GetAccountByEmail(context.Background(), "aidana@hrvault.org")
	if acct.SessionVersion != 2 {
		t.Fatalf("session version = %d, want 2", acct.SessionVersion)
	}
}

func TestResolveUnknownNotification(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Confirm(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, _, err := f.svc.Deny(context.Background(), "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
