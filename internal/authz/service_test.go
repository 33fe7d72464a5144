package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestService(src Source) *Service {
	cache := NewCache(src, time.Minute, 16)
	return NewService(cache, DefaultSuperAdminRole, nil)
}

func TestAuthorizeTeacherScenario(t *testing.T) {
	src := &stubSource{
		grants: []Grant{{Module: "attendance", Action: "write", TenantID: tenant(1), Role: "teacher"}},
		roles:  []RoleName{"teacher"},
	}
	svc := newTestService(src)

	d, err := svc.Authorize(context.Background(), 42, RequirePermissionInTenant("attendance", "write", 1))
	require.NoError(t, err)
	require.True(t, d.Allow)

	d, err = svc.Authorize(context.Background(), 42, RequirePermissionInTenant("attendance", "write", 2))
	require.NoError(t, err)
	require.False(t, d.Allow)
	require.Contains(t, d.Reason, "teacher")
}

func TestAuthorizeFailsClosedOnStoreError(t *testing.T) {
	src := &stubSource{err: errors.New("timeout")}
	svc := newTestService(src)

	d, err := svc.Authorize(context.Background(), 42, RequirePermission("attendance", "write"))
	require.Error(t, err)
	require.False(t, d.Allow)
}

func TestInvalidatePermissionsDropsStaleAllow(t *testing.T) {
	src := &stubSource{
		grants: []Grant{{Module: "attendance", Action: "write", TenantID: tenant(1), Role: "teacher"}},
		roles:  []RoleName{"teacher"},
	}
	svc := newTestService(src)

	d, err := svc.Authorize(context.Background(), 42, RequirePermissionInTenant("attendance", "write", 1))
	require.NoError(t, err)
	require.True(t, d.Allow)

	src.set(nil, nil)
	svc.InvalidatePermissions(42)

	d, err = svc.Authorize(context.Background(), 42, RequirePermissionInTenant("attendance", "write", 1))
	require.NoError(t, err)
	require.False(t, d.Allow, "revoked grant must not survive invalidation")
}

func TestEffectiveRolesSnapshot(t *testing.T) {
	src := &stubSource{roles: []RoleName{"teacher", "homeroom"}}
	svc := newTestService(src)

	roles, err := svc.EffectiveRoles(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, []RoleName{"teacher", "homeroom"}, roles)
}
