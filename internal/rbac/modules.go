package rbac

// Module identifies a functional area of the portal for audit tagging and
// navigation visibility.
type Module string

const (
	ModuleEmployees Module = "employees"
	ModulePayroll   Module = "payroll"
	ModuleDocuments Module = "documents"
	ModuleExports   Module = "exports"
	ModuleSecurity  Module = "security"
	ModuleSettings  Module = "settings"
	ModuleAuth      Module = "auth"
)

// roleModules is the static role -> visible module table.
var roleModules = map[Role]map[Module]struct{}{
	RoleEmployee: moduleSet(
		ModuleEmployees,
		ModuleDocuments,
	),
	RoleManager: moduleSet(
		ModuleEmployees,
		ModuleDocuments,
		ModulePayroll,
	),
	RoleHRAdmin: moduleSet(
		ModuleEmployees,
		ModuleDocuments,
		ModulePayroll,
		ModuleExports,
	),
	RoleSuperAdmin: moduleSet(
		ModuleEmployees,
		ModuleDocuments,
		ModulePayroll,
		ModuleExports,
		ModuleSecurity,
		ModuleSettings,
	),
}

func moduleSet(modules ...Module) map[Module]struct{} {
	set := make(map[Module]struct{}, len(modules))
	for _, m := range modules {
		set[m] = struct{}{}
	}
	return set
}

// CanAccessModule reports whether role may see the given module. Pure lookup.
func CanAccessModule(role Role, module Module) bool {
	visible, ok := roleModules[role]
	if !ok {
		return false
	}
	_, ok = visible[module]
	return ok
}
