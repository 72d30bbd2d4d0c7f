package authz

import (
	"context"
	"net/http"
	"time"

	"hrvault.org/internal/rbac"
)

// OwnerResolver computes the owner identifier of the resource a request
// targets. It may hit a backing store; a resolver error fails the request
// closed. Passed as an explicit strategy so the pipeline stays free of
// route-specific knowledge.
type OwnerResolver func(ctx context.Context, r *http.Request) (string, error)

// LimitKey selects the identifier a route limit is counted against.
type LimitKey string

const (
	// LimitByIP counts against the client address.
	LimitByIP LimitKey = "ip"
	// LimitBySubject counts against the authenticated email.
	LimitBySubject LimitKey = "subject"
)

// RouteLimit is one rate limit attached to a route. Several limits may be
// stacked; each is evaluated independently and any denial rejects the
// request.
type RouteLimit struct {
	Scope  string
	Key    LimitKey
	Limit  int
	Window time.Duration
}

// Policy declares what a protected route requires. Zero-value fields are
// skipped: a nil AllowRoles list means any active account, an empty
// Permissions list means no permission gate, a nil Owner means no
// ownership check.
type Policy struct {
	// Activity names the audited action, e.g. "records.view".
	Activity string
	// Module tags audit events for this route.
	Module rbac.Module
	// Sensitive marks the route's audit trail as privacy/security relevant.
	Sensitive bool

	AllowRoles []rbac.Role
	// AllowAuthorityRoles gates on the account authority record's role
	// instead of the token's presentation role. Used by routes that must
	// stay reachable while a role context switch is in effect.
	AllowAuthorityRoles []rbac.Role

	Permissions []rbac.Permission
	Owner       OwnerResolver
	// OwnerAllowRoles bypass the actor/owner equality check. Defaults to
	// rbac.OwnershipBypassRoles when nil and an Owner resolver is set.
	OwnerAllowRoles []rbac.Role

	Limits []RouteLimit
}

func (p Policy) ownerBypassRoles() []rbac.Role {
	if p.OwnerAllowRoles != nil {
		return p.OwnerAllowRoles
	}
	return rbac.OwnershipBypassRoles
}
