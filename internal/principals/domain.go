package principals

import "time"

// Principal is an account that can hold role assignments: a staff member,
// a teacher, or a service identity.
type Principal struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Assignment grants a role to a principal, optionally scoped to one
// tenant. A nil TenantID means the role applies across all tenants.
type Assignment struct {
	ID          int64      `json:"id"`
	PrincipalID int64      `json:"principal_id"`
	RoleID      int64      `json:"role_id"`
	RoleName    string     `json:"role_name"`
	TenantID    *int64     `json:"tenant_id"`
	AssignedBy  int64      `json:"assigned_by"`
	AssignedAt  time.Time  `json:"assigned_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
	IsActive    bool       `json:"is_active"`
}
