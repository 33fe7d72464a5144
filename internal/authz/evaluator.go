package authz

import (
	"fmt"
	"strings"
)

// Evaluator makes access decisions over a resolved permission set. It is
// pure: it trusts the set it is given and performs no I/O.
type Evaluator struct {
	// SuperAdmin is the role name whose holders pass every check that
	// does not explicitly disable the bypass. Empty disables the bypass
	// globally.
	SuperAdmin RoleName
}

// Evaluate decides whether the permission set satisfies the requirement.
func (e Evaluator) Evaluate(set PermissionSet, req Requirement) Decision {
	roles := append([]RoleName(nil), set.Roles...)

	if req.IsEmpty() {
		return Decision{Allow: true, Reason: "no requirement", Roles: roles}
	}

	if !req.DisableBypass && e.SuperAdmin != "" && set.HasRole(e.SuperAdmin) {
		return Decision{Allow: true, Reason: fmt.Sprintf("role %s bypass", e.SuperAdmin), Roles: roles}
	}

	if req.isRoleCheck() {
		return evaluateRoles(set, req, roles)
	}
	return evaluatePermission(set, req, roles)
}

func evaluateRoles(set PermissionSet, req Requirement, roles []RoleName) Decision {
	matched := 0
	for _, name := range req.Roles {
		if set.HasRole(name) {
			matched++
		}
	}
	if req.MatchAllRoles {
		if matched == len(req.Roles) {
			return Decision{Allow: true, Reason: "all required roles held", Roles: roles}
		}
	} else if matched > 0 {
		return Decision{Allow: true, Reason: "required role held", Roles: roles}
	}
	return Decision{
		Allow:  false,
		Reason: fmt.Sprintf("requires role %s; effective roles: %s", joinRoles(req.Roles, req.MatchAllRoles), formatRoles(roles)),
		Roles:  roles,
	}
}

func evaluatePermission(set PermissionSet, req Requirement, roles []RoleName) Decision {
	for _, g := range set.Grants {
		if g.Module != req.Module || g.Action != req.Action {
			continue
		}
		if tenantMatches(g.TenantID, req.TenantID) {
			return Decision{Allow: true, Reason: fmt.Sprintf("granted via role %s", g.Role), Roles: roles}
		}
	}
	return Decision{
		Allow:  false,
		Reason: fmt.Sprintf("no grant for %s.%s%s; effective roles: %s", req.Module, req.Action, tenantSuffix(req.TenantID), formatRoles(roles)),
		Roles:  roles,
	}
}

// tenantMatches applies the scoping rule: a nil grant tenant is a global
// grant, a nil requested tenant accepts any grant of the pair, otherwise
// the ids must be equal.
func tenantMatches(grant, requested *int64) bool {
	if grant == nil || requested == nil {
		return true
	}
	return *grant == *requested
}

func tenantSuffix(tenantID *int64) string {
	if tenantID == nil {
		return ""
	}
	return fmt.Sprintf(" in tenant %d", *tenantID)
}

func formatRoles(roles []RoleName) string {
	if len(roles) == 0 {
		return "none"
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

func joinRoles(roles []RoleName, all bool) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	sep := " or "
	if all {
		sep = " and "
	}
	return strings.Join(names, sep)
}
