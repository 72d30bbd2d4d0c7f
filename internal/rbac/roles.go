package rbac

import "strings"

// Role is the closed set of roles the portal recognises. Untrusted input
// (token payloads, request bodies) must pass through Normalize before it is
// used anywhere in the authorization pipeline.
type Role string

const (
	RoleEmployee   Role = "employee"
	RoleManager    Role = "manager"
	RoleHRAdmin    Role = "hr_admin"
	RoleSuperAdmin Role = "super_admin"
)

// Roles lists every recognised role.
var Roles = []Role{RoleEmployee, RoleManager, RoleHRAdmin, RoleSuperAdmin}

// Normalize coerces an arbitrary role string to a recognised Role. Unknown
// or empty values degrade to RoleEmployee so garbage input yields minimum
// privilege, never elevated privilege.
func Normalize(raw string) Role {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleManager:
		return RoleManager
	case RoleHRAdmin:
		return RoleHRAdmin
	case RoleSuperAdmin:
		return RoleSuperAdmin
	default:
		return RoleEmployee
	}
}

// Known reports whether raw names a recognised role exactly (after trimming
// and lowercasing). Used when a request explicitly assigns a role and a
// silent downgrade would mask an input error.
func Known(raw string) bool {
	role := Role(strings.TrimSpace(strings.ToLower(raw)))
	for _, r := range Roles {
		if role == r {
			return true
		}
	}
	return false
}

// RoleMayMultiplex reports whether an authority-record role may present a
// different role in its session token (a deliberate context switch). Only
// super_admin is granted this; widening the set is a policy decision, not a
// code default.
func RoleMayMultiplex(authority Role) bool {
	return authority == RoleSuperAdmin
}
