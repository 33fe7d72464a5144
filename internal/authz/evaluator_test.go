package authz

import (
	"strings"
	"testing"
)

func tenant(id int64) *int64 { return &id }

func teacherSet() PermissionSet {
	return PermissionSet{
		PrincipalID: 42,
		Grants: []Grant{
			{Module: "attendance", Action: "write", TenantID: tenant(1), Role: "teacher"},
			{Module: "grades", Action: "view", TenantID: nil, Role: "teacher"},
		},
		Roles: []RoleName{"teacher"},
	}
}

func TestEvaluateTenantScoping(t *testing.T) {
	eval := Evaluator{SuperAdmin: DefaultSuperAdminRole}
	set := teacherSet()

	d := eval.Evaluate(set, RequirePermissionInTenant("attendance", "write", 1))
	if !d.Allow {
		t.Fatalf("expected allow for granted tenant, got %q", d.Reason)
	}

	d = eval.Evaluate(set, RequirePermissionInTenant("attendance", "write", 2))
	if d.Allow {
		t.Fatalf("expected deny for foreign tenant")
	}
	if !strings.Contains(d.Reason, "teacher") {
		t.Fatalf("deny reason should cite effective roles, got %q", d.Reason)
	}
	if !strings.Contains(d.Reason, "attendance.write") {
		t.Fatalf("deny reason should cite the requirement, got %q", d.Reason)
	}
}

func TestEvaluateGlobalGrantAllowsAnyTenant(t *testing.T) {
	eval := Evaluator{}
	set := teacherSet()

	for _, id := range []int64{1, 2, 99} {
		d := eval.Evaluate(set, RequirePermissionInTenant("grades", "view", id))
		if !d.Allow {
			t.Fatalf("global grant should allow tenant %d, got %q", id, d.Reason)
		}
	}
}

func TestEvaluateUnscopedRequestMatchesTenantGrant(t *testing.T) {
	eval := Evaluator{}
	d := eval.Evaluate(teacherSet(), RequirePermission("attendance", "write"))
	if !d.Allow {
		t.Fatalf("unscoped request should match tenant-scoped grant, got %q", d.Reason)
	}
}

func TestEvaluateSuperAdminBypass(t *testing.T) {
	eval := Evaluator{SuperAdmin: DefaultSuperAdminRole}
	set := PermissionSet{PrincipalID: 1, Roles: []RoleName{DefaultSuperAdminRole}}

	d := eval.Evaluate(set, RequirePermissionInTenant("attendance", "write", 7))
	if !d.Allow {
		t.Fatalf("super admin should bypass permission check, got %q", d.Reason)
	}

	req := RequirePermissionInTenant("attendance", "write", 7)
	req.DisableBypass = true
	d = eval.Evaluate(set, req)
	if d.Allow {
		t.Fatalf("bypass disabled, empty grant set should deny")
	}
}

func TestEvaluateRoleChecks(t *testing.T) {
	eval := Evaluator{}
	set := PermissionSet{Roles: []RoleName{"teacher", "homeroom"}}

	if d := eval.Evaluate(set, RequireAnyRole("registrar", "teacher")); !d.Allow {
		t.Fatalf("any-of should pass with one match, got %q", d.Reason)
	}
	if d := eval.Evaluate(set, RequireAllRoles("teacher", "homeroom")); !d.Allow {
		t.Fatalf("all-of should pass when all held, got %q", d.Reason)
	}
	if d := eval.Evaluate(set, RequireAllRoles("teacher", "registrar")); d.Allow {
		t.Fatalf("all-of should fail on a missing role")
	}
	if d := eval.Evaluate(set, RequireAnyRole("registrar")); d.Allow {
		t.Fatalf("any-of should fail with no match")
	}
}

func TestEvaluateEmptyRequirementIsPublic(t *testing.T) {
	eval := Evaluator{}
	d := eval.Evaluate(PermissionSet{}, Requirement{})
	if !d.Allow {
		t.Fatalf("empty requirement should allow, got %q", d.Reason)
	}
}

func TestEvaluateNoRolesDeniesEverything(t *testing.T) {
	eval := Evaluator{SuperAdmin: DefaultSuperAdminRole}
	set := PermissionSet{PrincipalID: 9}

	if d := eval.Evaluate(set, RequirePermission("attendance", "write")); d.Allow {
		t.Fatalf("principal without assignments should be denied")
	}
	if d := eval.Evaluate(set, RequireAnyRole("teacher")); d.Allow {
		t.Fatalf("principal without assignments should fail role checks")
	}
	d := eval.Evaluate(set, RequirePermission("attendance", "write"))
	if !strings.Contains(d.Reason, "none") {
		t.Fatalf("deny reason should state there are no roles, got %q", d.Reason)
	}
}
