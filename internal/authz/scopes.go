package authz

// Core platform modules and actions.
const (
	ModulePrincipals Module = "principals"
	ModuleRoles      Module = "roles"
	ModuleAudit      Module = "audit"

	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionAssign Action = "assign"
)

// DefaultSuperAdminRole is the role name that bypasses permission checks
// unless a requirement disables the bypass. Overridable via configuration.
const DefaultSuperAdminRole RoleName = "super_admin"
