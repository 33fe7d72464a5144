package authz

import "time"

// Module identifies a functional area guarded by permissions, e.g.
// "attendance" or "roles".
type Module string

// Action identifies an operation within a module, e.g. "view" or "write".
type Action string

// RoleName identifies a role by its unique name.
type RoleName string

// Grant is a single effective permission tuple. A nil TenantID means the
// grant is global and applies to every school.
type Grant struct {
	Module   Module   `json:"module"`
	Action   Action   `json:"action"`
	TenantID *int64   `json:"tenant_id"`
	Role     RoleName `json:"role"`
}

// PermissionSet is the resolved view of a principal's currently effective
// role assignments. It is derived data: rebuilt from the store on cache
// miss, never persisted.
type PermissionSet struct {
	PrincipalID int64      `json:"principal_id"`
	Grants      []Grant    `json:"grants"`
	Roles       []RoleName `json:"roles"`
	ResolvedAt  time.Time  `json:"resolved_at"`
}

// HasRole reports whether the set contains the named effective role.
func (s PermissionSet) HasRole(name RoleName) bool {
	for _, r := range s.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// Requirement describes what a check demands: either a (module, action)
// permission, optionally tenant scoped, or a set of role names. An empty
// requirement means the endpoint is public.
type Requirement struct {
	Module   Module
	Action   Action
	TenantID *int64

	Roles         []RoleName
	MatchAllRoles bool

	// DisableBypass turns off the super-admin short circuit for this
	// check. Administrative configuration endpoints use it so that even
	// a super admin must hold the explicit permission.
	DisableBypass bool
}

// RequirePermission builds a permission requirement without tenant scope.
func RequirePermission(module Module, action Action) Requirement {
	return Requirement{Module: module, Action: action}
}

// RequirePermissionInTenant builds a tenant-scoped permission requirement.
func RequirePermissionInTenant(module Module, action Action, tenantID int64) Requirement {
	return Requirement{Module: module, Action: action, TenantID: &tenantID}
}

// RequireAnyRole builds a requirement satisfied by at least one of the
// given role names.
func RequireAnyRole(names ...RoleName) Requirement {
	return Requirement{Roles: names}
}

// RequireAllRoles builds a requirement satisfied only when the principal
// holds every one of the given role names.
func RequireAllRoles(names ...RoleName) Requirement {
	return Requirement{Roles: names, MatchAllRoles: true}
}

// IsEmpty reports whether the requirement demands nothing.
func (r Requirement) IsEmpty() bool {
	return r.Module == "" && r.Action == "" && len(r.Roles) == 0
}

// isRoleCheck reports whether the requirement is a role-name check rather
// than a permission check.
func (r Requirement) isRoleCheck() bool {
	return len(r.Roles) > 0
}

// Decision is the outcome of an authorization check. Deny decisions carry
// a reason and the principal's own effective role names so callers can
// build error messages and audit entries without another lookup.
type Decision struct {
	Allow  bool
	Reason string
	Roles  []RoleName
}
