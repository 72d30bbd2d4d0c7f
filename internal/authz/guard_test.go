package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hrvault.org/internal/audit"
	"hrvault.org/internal/directory"
	"hrvault.org/internal/ratelimit"
	"hrvault.org/internal/rbac"
	"hrvault.org/internal/session"
)

type fixture struct {
	guard    *Guard
	codec    *session.Codec
	accounts *directory.InMemory
	sink     *audit.MemorySink
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	f := &fixture{now: now}
	clock := func() time.Time { return f.now }

	codec, err := session.NewCodec("test-secret", session.WithClock(clock))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	f.codec = codec
	f.accounts = directory.NewInMemory()
	f.sink = audit.NewMemorySink()
	f.guard = NewGuard(
		codec,
		directory.NewCache(f.accounts, directory.WithCacheClock(clock)),
		ratelimit.New(ratelimit.WithClock(clock)),
		audit.NewRecorder(f.sink, audit.WithClock(clock)),
	)
	return f
}

func (f *fixture) addAccount(t *testing.T, email string, role rbac.Role) {
	t.Helper()
	if err := f.accounts.Create(context.Background(), &directory.Account{Email: email, Role: role}); err != nil {
		t.Fatalf("Create account: %v", err)
	}
}

func (f *fixture) request(t *testing.T, token string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/v1/records/a@b.com", nil)
	r.RemoteAddr = "10.0.0.1:4321"
	if token != "" {
		r.AddCookie(session.NewCookie(token, f.now.Add(time.Hour), false))
	}
	return r
}

func (f *fixture) token(t *testing.T, email string, role rbac.Role, opts ...session.IssueOption) string {
	t.Helper()
	token, _, err := f.codec.Issue(email, role, opts...)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func denialReason(t *testing.T, err error) Reason {
	t.Helper()
	var d *Denial
	if !errors.As(err, &d) {
		t.Fatalf("expected *Denial, got %T: %v", err, err)
	}
	return d.Reason
}

func basePolicy() Policy {
	return Policy{Activity: "records.view", Module: rbac.ModuleEmployees, Sensitive: true}
}

func TestAuthorizeHappyPath(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "a@b.com", rbac.RoleEmployee)

	sess, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, f.token(t, "a@b.com", rbac.RoleEmployee)), basePolicy())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if sess.Email != "a@b.com" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	// The middleware emits failure events only; a pass leaves the business
	// outcome to the handler.
	if events := f.sink.Events(); len(events) != 0 {
		t.Fatalf("expected no audit events on pass, got %d", len(events))
	}
}

func TestAuthorizeMissingToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, ""), basePolicy())
	if got := denialReason(t, err); got != ReasonUnauthorized {
		t.Fatalf("reason = %s", got)
	}
	event, ok := f.sink.Last()
	if !ok || event.Status != audit.StatusFailed {
		t.Fatalf("expected one Failed audit event, got %+v", event)
	}
	if event.Metadata["reason"] != "unauthorized" {
		t.Fatalf("unexpected reason metadata: %v", event.Metadata)
	}
	if event.PerformedBy != "anonymous" {
		t.Fatalf("unexpected performer: %s", event.PerformedBy)
	}
}

func TestAuthorizeAccountNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, f.token(t, "ghost@b.com", rbac.RoleEmployee)), basePolicy())
	if got := denialReason(t, err); got != ReasonAccountNotFound {
		t.Fatalf("reason = %s", got)
	}
	var d *Denial
	errors.As(err, &d)
	if d.Status() != http.StatusUnauthorized {
		t.Fatalf("status = %d", d.Status())
	}
}

func TestAuthorizeDisabledAccount(t *testing.T) {
	f := newFixture(t)
	if err := f.accounts.Create(context.Background(), &directory.Account{
		Email: "a@b.com", Role: rbac.RoleEmployee, Status: directory.StatusDisabled,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, f.token(t, "a@b.com", rbac.RoleEmployee)), basePolicy())
	if got := denialReason(t, err); got != ReasonAccountNotActive {
		t.Fatalf("reason = %s", got)
	}
	event, _ := f.sink.Last()
	if event.Status != audit.StatusRejected {
		t.Fatalf("expected Rejected event, got %s", event.Status)
	}
}

func TestAuthorizeStaleSessionAfterRevocation(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "a@b.com", rbac.RoleEmployee)

	token := f.token(t, "a@b.com", rbac.RoleEmployee)

	// Sanity: the token passes before the bump.
	if _, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, token), basePolicy()); err != nil {
		t.Fatalf("pre-revocation Authorize: %v", err)
	}

	if _, err := f.accounts.IncrementSessionVersion(context.Background(), "a@b.com"); err != nil {
		t.Fatalf("IncrementSessionVersion: %v", err)
	}
	// The guard reads through a cache; revocation routed around the cache
	// becomes visible after the TTL. Advance past it.
	f.now = f.now.Add(directory.DefaultCacheTTL + time.Second)

	_, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, token), basePolicy())
	if got := denialReason(t, err); got != ReasonSessionStale {
		t.Fatalf("reason = %s", got)
	}
	var d *Denial
	errors.As(err, &d)
	if d.Status() != http.StatusUnauthorized {
		t.Fatalf("status = %d", d.Status())
	}
	if d.Message() != "session expired" {
		t.Fatalf("identity denials must use the generic message, got %q", d.Message())
	}
}

func TestAuthorizeRoleMismatch(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "a@b.com", rbac.RoleEmployee)
	f.addAccount(t, "root@b.com", rbac.RoleSuperAdmin)

	// Employee presenting a manager token role: denied.
	token := f.token(t, "a@b.com", rbac.RoleManager)
	_, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, token), basePolicy())
	if got := denialReason(t, err); got != ReasonRoleMismatch {
		t.Fatalf("reason = %s", got)
	}

	// super_admin may multiplex its presentation role.
	token = f.token(t, "root@b.com", rbac.RoleEmployee)
	sess, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, token), basePolicy())
	if err != nil {
		t.Fatalf("super_admin context switch should pass: %v", err)
	}
	if sess.Role != rbac.RoleEmployee {
		t.Fatalf("expected presentation role, got %s", sess.Role)
	}
}

func TestAuthorizeRoleAllowList(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "a@b.com", rbac.RoleEmployee)

	policy := basePolicy()
	policy.AllowRoles = []rbac.Role{rbac.RoleHRAdmin, rbac.RoleSuperAdmin}

	_, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, f.token(t, "a@b.com", rbac.RoleEmployee)), policy)
	if got := denialReason(t, err); got != ReasonRoleNotAllowed {
		t.Fatalf("reason = %s", got)
	}
	var d *Denial
	errors.As(err, &d)
	if d.Status() != http.StatusForbidden {
		t.Fatalf("status = %d", d.Status())
	}
}

func TestAuthorizeAuthorityRoleAllowList(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "root@b.com", rbac.RoleSuperAdmin)
	f.addAccount(t, "a@b.com", rbac.RoleEmployee)

	policy := basePolicy()
	policy.AllowAuthorityRoles = []rbac.Role{rbac.RoleSuperAdmin}

	// A super_admin presenting a lesser role keeps authority-gated routes.
	if _, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, f.token(t, "root@b.com", rbac.RoleEmployee)), policy); err != nil {
		t.Fatalf("multiplexed super_admin: %v", err)
	}

	_, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, f.token(t, "a@b.com", rbac.RoleEmployee)), policy)
	if got := denialReason(t, err); got != ReasonRoleNotAllowed {
		t.Fatalf("reason = %s", got)
	}
	event, _ := f.sink.Last()
	if event.Metadata["authority_role"] != string(rbac.RoleEmployee) {
		t.Fatalf("expected authority role in audit metadata: %v", event.Metadata)
	}
}

func TestAuthorizeMissingPermission(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "a@b.com", rbac.RoleEmployee)

	policy := basePolicy()
	policy.Permissions = []rbac.Permission{rbac.PermExportsManage}

	_, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, f.token(t, "a@b.com", rbac.RoleEmployee)), policy)
	if got := denialReason(t, err); got != ReasonMissingPermission {
		t.Fatalf("reason = %s", got)
	}
	event, _ := f.sink.Last()
	if event.Metadata["permission"] != string(rbac.PermExportsManage) {
		t.Fatalf("expected permission in audit metadata: %v", event.Metadata)
	}
}

func TestAuthorizeOwnership(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "a@b.com", rbac.RoleEmployee)
	f.addAccount(t, "hr@b.com", rbac.RoleHRAdmin)

	policy := basePolicy()
	policy.Owner = func(ctx context.Context, r *http.Request) (string, error) {
		return " A@B.com ", nil
	}

	// Owner matches after normalization.
	if _, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, f.token(t, "a@b.com", rbac.RoleEmployee)), policy); err != nil {
		t.Fatalf("owner should pass: %v", err)
	}

	// Bypass role passes despite the mismatch.
	if _, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, f.token(t, "hr@b.com", rbac.RoleHRAdmin)), policy); err != nil {
		t.Fatalf("bypass role should pass: %v", err)
	}

	// A different employee is denied.
	f.addAccount(t, "c@d.com", rbac.RoleEmployee)
	_, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, f.token(t, "c@d.com", rbac.RoleEmployee)), policy)
	if got := denialReason(t, err); got != ReasonOwnershipValidation {
		t.Fatalf("reason = %s", got)
	}

	// Resolver errors fail closed.
	policy.Owner = func(ctx context.Context, r *http.Request) (string, error) {
		return "", errors.New("record store unreachable")
	}
	_, err = f.guard.Authorize(httptest.NewRecorder(), f.request(t, f.token(t, "a@b.com", rbac.RoleEmployee)), policy)
	if got := denialReason(t, err); got != ReasonOwnershipValidation {
		t.Fatalf("reason = %s", got)
	}
}

func TestAuthorizeStackedRateLimits(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "a@b.com", rbac.RoleEmployee)

	policy := basePolicy()
	policy.Limits = []RouteLimit{
		{Scope: "records-ip", Key: LimitByIP, Limit: 10, Window: time.Minute},
		{Scope: "records-subject", Key: LimitBySubject, Limit: 2, Window: time.Minute},
	}

	token := f.token(t, "a@b.com", rbac.RoleEmployee)
	for i := 0; i < 2; i++ {
		if _, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, token), policy); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}

	w := httptest.NewRecorder()
	_, err := f.guard.Authorize(w, f.request(t, token), policy)
	if got := denialReason(t, err); got != ReasonRateLimited {
		t.Fatalf("reason = %s", got)
	}
	var d *Denial
	errors.As(err, &d)
	if d.Status() != http.StatusTooManyRequests {
		t.Fatalf("status = %d", d.Status())
	}
	if w.Header().Get("X-RateLimit-Remaining") == "" {
		t.Fatal("expected rate limit headers on denial")
	}
	event, _ := f.sink.Last()
	if event.Status != audit.StatusRejected || event.Metadata["reason"] != "rate_limited" {
		t.Fatalf("expected Rejected rate_limited audit event, got %+v", event)
	}
}

func TestAuthorizeDenialHeadersSurviveLaterAllowedLimit(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "a@b.com", rbac.RoleEmployee)

	policy := basePolicy()
	policy.Limits = []RouteLimit{
		{Scope: "records-subject", Key: LimitBySubject, Limit: 1, Window: time.Minute},
		{Scope: "records-ip", Key: LimitByIP, Limit: 100, Window: time.Minute},
	}

	token := f.token(t, "a@b.com", rbac.RoleEmployee)
	if _, err := f.guard.Authorize(httptest.NewRecorder(), f.request(t, token), policy); err != nil {
		t.Fatalf("first request: %v", err)
	}

	w := httptest.NewRecorder()
	_, err := f.guard.Authorize(w, f.request(t, token), policy)
	if got := denialReason(t, err); got != ReasonRateLimited {
		t.Fatalf("reason = %s", got)
	}
	// The headers must describe the tripped subject limit, not the still
	// permissive per-IP one evaluated after it.
	if got := w.Header().Get("X-RateLimit-Limit"); got != "1" {
		t.Fatalf("limit header = %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("remaining header = %q", got)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After on denial")
	}
}

func TestAuthorizeEmitsExactlyOneEventPerDenial(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, _ = f.guard.Authorize(httptest.NewRecorder(), f.request(t, ""), basePolicy())
	}
	if events := f.sink.Events(); len(events) != 3 {
		t.Fatalf("expected 3 audit events, got %d", len(events))
	}
}

func TestProtectMapsDenialToResponse(t *testing.T) {
	f := newFixture(t)

	handler := f.guard.Protect(basePolicy(), func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		t.Fatal("handler must not run on denial")
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, f.request(t, ""))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
	if body := w.Body.String(); !strings.Contains(body, "session expired") {
		t.Fatalf("expected generic identity message, got %s", body)
	}
}

func TestProtectPassesSessionToHandler(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "a@b.com", rbac.RoleEmployee)

	var got *session.Session
	handler := f.guard.Protect(basePolicy(), func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		got = sess
		if s, ok := session.FromContext(r.Context()); !ok || s != sess {
			t.Fatal("session missing from request context")
		}
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, f.request(t, f.token(t, "a@b.com", rbac.RoleEmployee)))
	if w.Code != http.StatusOK || got == nil || got.Email != "a@b.com" {
		t.Fatalf("unexpected result: code=%d session=%+v", w.Code, got)
	}
}
