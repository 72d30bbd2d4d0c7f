package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"hrvault.org/internal/audit"
	"hrvault.org/internal/authz"
	"hrvault.org/internal/directory"
	"hrvault.org/internal/obs"
	"hrvault.org/internal/ratelimit"
	"hrvault.org/internal/rbac"
	"hrvault.org/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Email       string    `json:"email"`
	Role        rbac.Role `json:"role"`
	DisplayName string    `json:"display_name,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Burned when the account does not exist so lookup outcome is not
// observable through response timing.
var dummyPasswordHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := directory.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	// Both windows are evaluated: a hot address and a hot account trip
	// independently.
	limits := []ratelimit.Request{
		{Scope: "login_ip", Identifier: authz.ClientIP(r), Limit: a.limits.LoginPerIP, Window: a.limits.LoginWindow},
		{Scope: "login_email", Identifier: email, Limit: a.limits.LoginPerEmail, Window: a.limits.LoginWindow},
	}
	for _, lr := range limits {
		res := a.limiter.Check(lr)
		res.SetHeaders(w.Header())
		if !res.Allowed {
			obs.ObserveRateLimited(lr.Scope)
			a.auditLogin(r, email, audit.StatusRejected, "rate_limited", map[string]string{"scope": lr.Scope})
			writeError(w, r, http.StatusTooManyRequests, "too many requests")
			return
		}
	}

	acct, err := a.accounts.GetAccountByEmail(r.Context(), email)
	if err != nil {
		// Equalize timing with the real comparison below.
		_ = bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte(req.Password))
		reason := "account_not_found"
		if !errors.Is(err, directory.ErrNotFound) {
			reason = "account_store_failure"
		}
		a.auditLogin(r, email, audit.StatusFailed, reason, nil)
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)); err != nil {
		a.auditLogin(r, email, audit.StatusFailed, "invalid_password", nil)
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if acct.Status != directory.StatusActive {
		a.auditLogin(r, email, audit.StatusRejected, "account_not_active", map[string]string{"status": acct.Status})
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}

	token, expiresAt, err := a.codec.Issue(acct.Email, acct.Role, session.WithSessionVersion(acct.SessionVersion))
	if err != nil {
		a.auditLogin(r, email, audit.StatusFailed, "token_issue_failed", nil)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	http.SetCookie(w, session.NewCookie(token, expiresAt, a.cookieSecure))

	a.auditLogin(r, email, audit.StatusCompleted, "", map[string]string{"role": string(acct.Role)})
	writeJSON(w, http.StatusOK, sessionResponse{
		Email:       acct.Email,
		Role:        acct.Role,
		DisplayName: acct.DisplayName,
		ExpiresAt:   expiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	if sess := a.codec.Verify(session.TokenFromRequest(r)); sess != nil {
		a.recorder.Record(r.Context(), audit.Event{
			Activity:    "User Logout",
			Status:      audit.StatusCompleted,
			Module:      rbac.ModuleAuth,
			PerformedBy: sess.Email,
		})
	}
	http.SetCookie(w, session.ExpiredCookie(a.cookieSecure))
	w.WriteHeader(http.StatusNoContent)
}

type switchRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) switchRolePolicy() authz.Policy {
	return authz.Policy{
		Activity:  "Role Context Switch",
		Module:    rbac.ModuleAuth,
		Sensitive: true,
		// Authority-gated so a super_admin presenting a lesser role can
		// still switch back without a fresh login.
		AllowAuthorityRoles: []rbac.Role{rbac.RoleSuperAdmin},
	}
}

// handleSwitchRole issues a token presenting a different role for the same
// identity. The session version carries over unchanged, so an earlier
// revocation still fences the new token out.
func (a *API) handleSwitchRole(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req switchRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !rbac.Known(req.Role) {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}
	role := rbac.Normalize(req.Role)

	token, expiresAt, err := a.codec.Issue(sess.Email, role, session.WithSessionVersion(sess.SessionVersion))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	http.SetCookie(w, session.NewCookie(token, expiresAt, a.cookieSecure))

	a.recorder.Record(r.Context(), audit.Event{
		Activity:    "Role Context Switched",
		Status:      audit.StatusCompleted,
		Module:      rbac.ModuleAuth,
		PerformedBy: sess.Email,
		Sensitivity: audit.Sensitive,
		Metadata: map[string]string{
			"presented_role": string(role),
		},
	})
	writeJSON(w, http.StatusOK, sessionResponse{
		Email:       sess.Email,
		Role:        role,
		DisplayName: a.accounts.DisplayName(r.Context(), sess.Email),
		ExpiresAt:   expiresAt,
	})
}

func (a *API) auditLogin(r *http.Request, email string, status audit.Status, reason string, metadata map[string]string) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	if reason != "" {
		metadata["reason"] = reason
	}
	if hint := audit.TokenHint(session.TokenFromRequest(r)); hint != "" {
		metadata["token_hint"] = hint
	}
	a.recorder.Record(r.Context(), audit.Event{
		Activity:    "User Login",
		Status:      status,
		Module:      rbac.ModuleAuth,
		PerformedBy: strings.TrimSpace(email),
		Sensitivity: audit.Sensitive,
		Metadata:    metadata,
	})
}
