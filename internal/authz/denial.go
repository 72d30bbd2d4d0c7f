package authz

import "net/http"

// Reason is the enumerated cause of a denial. Reasons are safe to record in
// audit metadata but are never echoed verbatim to the client.
type Reason string

const (
	ReasonUnauthorized        Reason = "unauthorized"
	ReasonAccountNotFound     Reason = "account_not_found"
	ReasonAccountNotActive    Reason = "account_not_active"
	ReasonSessionStale        Reason = "session_stale"
	ReasonRoleMismatch        Reason = "role_mismatch"
	ReasonRoleNotAllowed      Reason = "role_not_allowed"
	ReasonMissingPermission   Reason = "missing_permission"
	ReasonOwnershipValidation Reason = "ownership_validation_failed"
	ReasonRateLimited         Reason = "rate_limited"
	ReasonAccountStoreFailure Reason = "account_store_failure"
)

// Denial is the tagged error produced by the authorization pipeline. The
// reason is mapped exactly once, here, to an HTTP status and a user-safe
// message.
type Denial struct {
	Reason Reason
}

func (d *Denial) Error() string {
	return "authz: denied (" + string(d.Reason) + ")"
}

// Status returns the HTTP status for this denial. Identity failures are
// 401, policy failures 403, throttling 429.
func (d *Denial) Status() int {
	switch d.Reason {
	case ReasonUnauthorized, ReasonAccountNotFound, ReasonSessionStale,
		ReasonRoleMismatch, ReasonAccountStoreFailure:
		return http.StatusUnauthorized
	case ReasonRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusForbidden
	}
}

// Message returns the client-facing message. Identity denials all read the
// same so a caller cannot probe which specific check failed.
func (d *Denial) Message() string {
	switch d.Status() {
	case http.StatusUnauthorized:
		return "session expired"
	case http.StatusTooManyRequests:
		return "too many requests"
	default:
		return "access denied"
	}
}
