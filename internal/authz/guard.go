package authz

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"hrvault.org/internal/audit"
	"hrvault.org/internal/directory"
	"hrvault.org/internal/obs"
	"hrvault.org/internal/ratelimit"
	"hrvault.org/internal/rbac"
	"hrvault.org/internal/session"
)

// Guard runs the authorization pipeline for protected routes. It is the
// single source of truth for "is this request allowed": identity, session
// freshness, role, permission, ownership, and throttling are evaluated in a
// fixed order with early exit, so partial states (valid signature but
// revoked version, valid role but wrong owner) cannot be reordered into a
// bypass.
type Guard struct {
	codec    *session.Codec
	accounts directory.Reader
	limiter  *ratelimit.Limiter
	recorder *audit.Recorder
}

// NewGuard wires the pipeline collaborators.
func NewGuard(codec *session.Codec, accounts directory.Reader, limiter *ratelimit.Limiter, recorder *audit.Recorder) *Guard {
	return &Guard{
		codec:    codec,
		accounts: accounts,
		limiter:  limiter,
		recorder: recorder,
	}
}

// Authorize evaluates policy for the request. On success it returns the
// verified session; the caller owns the business-outcome audit event. On
// denial it returns a *Denial after emitting exactly one audit event; the
// caller maps the denial to a response via Denial.Status/Message. Rate
// limit headers are attached to w as a side effect of throttled routes.
func (g *Guard) Authorize(w http.ResponseWriter, r *http.Request, policy Policy) (*session.Session, error) {
	ctx := r.Context()

	// Step 1: decode and verify the session token. Fails closed on any
	// malformed or mis-signed input.
	sess := g.codec.Verify(session.TokenFromRequest(r))
	if sess == nil {
		return nil, g.deny(ctx, policy, "", ReasonUnauthorized, audit.StatusFailed, nil)
	}

	// Step 2: the token role has already passed rbac.Normalize inside
	// Verify; from here on only recognised roles circulate.
	tokenRole := sess.Role

	// Step 3: authority record lookup. A store failure is indistinguishable
	// from a hostile state, so it denies rather than allows.
	acct, err := g.accounts.GetAccountByEmail(ctx, sess.Email)
	if err != nil {
		reason := ReasonAccountStoreFailure
		if errors.Is(err, directory.ErrNotFound) {
			reason = ReasonAccountNotFound
		}
		return nil, g.deny(ctx, policy, sess.Email, reason, audit.StatusFailed, map[string]string{
			"subject": sess.Email,
		})
	}

	// Step 4: only active accounts may proceed.
	if acct.Status != directory.StatusActive {
		return nil, g.deny(ctx, policy, sess.Email, ReasonAccountNotActive, audit.StatusRejected, map[string]string{
			"subject": sess.Email,
			"status":  acct.Status,
		})
	}

	// Step 5: session-version fencing. A bumped authority version kills
	// every outstanding token even though its signature is still valid.
	if sess.SessionVersion != acct.SessionVersion {
		return nil, g.deny(ctx, policy, sess.Email, ReasonSessionStale, audit.StatusFailed, map[string]string{
			"subject":           sess.Email,
			"token_version":     itoa64(sess.SessionVersion),
			"authority_version": itoa64(acct.SessionVersion),
		})
	}
	if tokenRole != acct.Role && !rbac.RoleMayMultiplex(acct.Role) {
		return nil, g.deny(ctx, policy, sess.Email, ReasonRoleMismatch, audit.StatusFailed, map[string]string{
			"subject":        sess.Email,
			"token_role":     string(tokenRole),
			"authority_role": string(acct.Role),
		})
	}

	// Step 6: route role allow-lists. AllowRoles reads the presented
	// token role; AllowAuthorityRoles reads the authority record, so a
	// multiplexed session keeps its authority-gated routes.
	if len(policy.AllowRoles) > 0 && !roleAllowed(tokenRole, policy.AllowRoles) {
		return nil, g.deny(ctx, policy, sess.Email, ReasonRoleNotAllowed, audit.StatusRejected, map[string]string{
			"subject": sess.Email,
			"role":    string(tokenRole),
		})
	}
	if len(policy.AllowAuthorityRoles) > 0 && !roleAllowed(acct.Role, policy.AllowAuthorityRoles) {
		return nil, g.deny(ctx, policy, sess.Email, ReasonRoleNotAllowed, audit.StatusRejected, map[string]string{
			"subject":        sess.Email,
			"role":           string(tokenRole),
			"authority_role": string(acct.Role),
		})
	}

	// Step 7: every required permission must be granted.
	for _, perm := range policy.Permissions {
		if !rbac.HasPermission(tokenRole, perm) {
			return nil, g.deny(ctx, policy, sess.Email, ReasonMissingPermission, audit.StatusRejected, map[string]string{
				"subject":    sess.Email,
				"role":       string(tokenRole),
				"permission": string(perm),
			})
		}
	}

	// Step 8: ownership. The resolver may await a backing store; any
	// resolver error fails closed.
	if policy.Owner != nil {
		owner, err := policy.Owner(ctx, r)
		if err != nil {
			return nil, g.deny(ctx, policy, sess.Email, ReasonOwnershipValidation, audit.StatusRejected, map[string]string{
				"subject": sess.Email,
				"error":   err.Error(),
			})
		}
		ok := rbac.CanAccessResource(rbac.ResourceCheck{
			Role:       tokenRole,
			Actor:      sess.Email,
			Owner:      owner,
			AllowRoles: policy.ownerBypassRoles(),
		})
		if !ok {
			return nil, g.deny(ctx, policy, sess.Email, ReasonOwnershipValidation, audit.StatusRejected, map[string]string{
				"subject": sess.Email,
				"owner":   owner,
			})
		}
	}

	// Step 9: stacked route limits. All limits are evaluated so exhausting
	// one cannot bypass another; any denial rejects.
	if denied := g.checkLimits(w, r, policy, sess); denied != nil {
		return nil, denied
	}

	obs.ObserveAuthzDecision("allow", "")
	return sess, nil
}

func (g *Guard) checkLimits(w http.ResponseWriter, r *http.Request, policy Policy, sess *session.Session) error {
	var denial *Denial
	for _, limit := range policy.Limits {
		identifier := ClientIP(r)
		if limit.Key == LimitBySubject {
			identifier = sess.Email
		}
		result := g.limiter.Check(ratelimit.Request{
			Scope:      limit.Scope,
			Identifier: identifier,
			Limit:      limit.Limit,
			Window:     limit.Window,
		})
		// Once a limit has denied, its headers stand; a later allowed
		// check must not overwrite them.
		if denial == nil {
			result.SetHeaders(w.Header())
		}
		if !result.Allowed && denial == nil {
			obs.ObserveRateLimited(limit.Scope)
			g.record(r.Context(), policy, sess.Email, audit.StatusRejected, map[string]string{
				"reason":  string(ReasonRateLimited),
				"subject": sess.Email,
				"scope":   limit.Scope,
			})
			denial = &Denial{Reason: ReasonRateLimited}
		}
	}
	if denial != nil {
		obs.ObserveAuthzDecision("deny", string(ReasonRateLimited))
		return denial
	}
	return nil
}

// deny emits the single audit event for a pipeline failure and returns the
// tagged denial.
func (g *Guard) deny(ctx context.Context, policy Policy, performedBy string, reason Reason, status audit.Status, metadata map[string]string) error {
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["reason"] = string(reason)
	g.record(ctx, policy, performedBy, status, metadata)
	obs.ObserveAuthzDecision("deny", string(reason))
	return &Denial{Reason: reason}
}

func (g *Guard) record(ctx context.Context, policy Policy, performedBy string, status audit.Status, metadata map[string]string) {
	if performedBy == "" {
		performedBy = "anonymous"
	}
	sensitivity := audit.NonSensitive
	if policy.Sensitive {
		sensitivity = audit.Sensitive
	}
	g.recorder.Record(ctx, audit.Event{
		Activity:    policy.Activity,
		Status:      status,
		Module:      policy.Module,
		PerformedBy: performedBy,
		Sensitivity: sensitivity,
		Metadata:    metadata,
	})
}

func roleAllowed(role rbac.Role, allowed []rbac.Role) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

// ClientIP extracts the request origin address, preferring the first entry
// of X-Forwarded-For when present.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func itoa64(v int64) string {
	return strconv.FormatInt(v, 10)
}
