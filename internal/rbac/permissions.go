package rbac

// Permission is a fine-grained capability key.
type Permission string

const (
	PermRecordsOwn      Permission = "records:own"
	PermRecordsManage   Permission = "records:manage"
	PermExportsManage   Permission = "exports:manage"
	PermRolesManage     Permission = "roles:manage"
	PermIncidentsManage Permission = "incidents:manage"
	PermDirectoryView   Permission = "directory:view"
)

// rolePermissions is the static role -> permission grant table. It is
// immutable at runtime; every check is a pure map lookup.
var rolePermissions = map[Role]map[Permission]struct{}{
	RoleEmployee: permSet(
		PermRecordsOwn,
	),
	RoleManager: permSet(
		PermRecordsOwn,
		PermRecordsManage,
		PermDirectoryView,
	),
	RoleHRAdmin: permSet(
		PermRecordsOwn,
		PermRecordsManage,
		PermExportsManage,
		PermDirectoryView,
	),
	RoleSuperAdmin: permSet(
		PermRecordsOwn,
		PermRecordsManage,
		PermExportsManage,
		PermRolesManage,
		PermIncidentsManage,
		PermDirectoryView,
	),
}

func permSet(perms ...Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// HasPermission reports whether role is granted perm. Pure lookup.
func HasPermission(role Role, perm Permission) bool {
	grants, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = grants[perm]
	return ok
}

// PermissionsFor returns the grant set for a role. The returned map is a
// copy; mutating it does not affect the static table.
func PermissionsFor(role Role) map[Permission]struct{} {
	grants := rolePermissions[role]
	out := make(map[Permission]struct{}, len(grants))
	for p := range grants {
		out[p] = struct{}{}
	}
	return out
}
