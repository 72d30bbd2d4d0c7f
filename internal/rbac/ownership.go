package rbac

import "strings"

// OwnershipBypassRoles may access any identity's owned resource regardless
// of the actor/owner equality check.
var OwnershipBypassRoles = []Role{RoleManager, RoleHRAdmin, RoleSuperAdmin}

// ResourceCheck carries the inputs of one ownership decision.
type ResourceCheck struct {
	Role       Role
	Actor      string
	Owner      string
	AllowRoles []Role
}

// CanAccessResource is the single place ownership is adjudicated: access is
// granted if the role is in AllowRoles, or the actor identifier equals the
// owner identifier after case and whitespace normalization. Callers must not
// re-implement this comparison.
func CanAccessResource(check ResourceCheck) bool {
	for _, allowed := range check.AllowRoles {
		if check.Role == allowed {
			return true
		}
	}
	actor := normalizeIdentifier(check.Actor)
	owner := normalizeIdentifier(check.Owner)
	if actor == "" || owner == "" {
		return false
	}
	return actor == owner
}

func normalizeIdentifier(id string) string {
	return strings.TrimSpace(strings.ToLower(id))
}
