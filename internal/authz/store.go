package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable wraps store-level failures. Callers must treat it as
// a deny, never as "no permissions".
var ErrStoreUnavailable = errors.New("authz: permission store unavailable")

// Store loads effective permission data from PostgreSQL. It is the only
// place permission data enters the decision engine.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a store backed by the provided pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// LoadPermissions returns the grants and role names reachable through the
// principal's currently effective role assignments. Unknown or inactive
// principals yield empty results, not an error.
func (s *Store) LoadPermissions(ctx context.Context, principalID int64) ([]Grant, []RoleName, error) {
	grants, err := s.loadGrants(ctx, principalID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	roles, err := s.loadRoles(ctx, principalID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return grants, roles, nil
}

func (s *Store) loadGrants(ctx context.Context, principalID int64) ([]Grant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.module, p.action, ra.tenant_id, r.name
		FROM role_assignments ra
		JOIN roles r ON r.id = ra.role_id AND r.is_active
		JOIN role_permissions rp ON rp.role_id = ra.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ra.principal_id = $1
		  AND ra.is_active
		  AND (ra.expires_at IS NULL OR ra.expires_at > NOW())`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.Module, &g.Action, &g.TenantID, &g.Role); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// loadRoles is a separate query because a role with zero permission grants
// must still surface as an effective role name.
func (s *Store) loadRoles(ctx context.Context, principalID int64) ([]RoleName, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT r.name
		FROM role_assignments ra
		JOIN roles r ON r.id = ra.role_id AND r.is_active
		WHERE ra.principal_id = $1
		  AND ra.is_active
		  AND (ra.expires_at IS NULL OR ra.expires_at > NOW())
		ORDER BY r.name`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []RoleName
	for rows.Next() {
		var name RoleName
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}
