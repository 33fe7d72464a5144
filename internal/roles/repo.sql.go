package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuscore/campuscore/internal/platform/httpx"
)

// Repo provides PostgreSQL backed persistence for role management.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo constructs a repository.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ListRoles returns all active roles ordered by name.
func (r *Repo) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, level, is_active, created_at, updated_at
		FROM roles
		WHERE is_active
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Level, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole fetches one role by ID.
func (r *Repo) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, level, is_active, created_at, updated_at
		FROM roles
		WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.Level, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, httpx.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a new role.
func (r *Repo) CreateRole(ctx context.Context, name, description string, level int) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, level, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, name, description, level, is_active, created_at, updated_at`,
		name, description, level).
		Scan(&role.ID, &role.Name, &role.Description, &role.Level, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, mapConstraint(err)
	}
	return role, nil
}

// UpdateRole updates name, description and level of an existing role.
func (r *Repo) UpdateRole(ctx context.Context, id int64, name, description string, level int) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET name = $2, description = $3, level = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, description, level, is_active, created_at, updated_at`,
		id, name, description, level).
		Scan(&role.ID, &role.Name, &role.Description, &role.Level, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, httpx.ErrNotFound
		}
		return Role{}, mapConstraint(err)
	}
	return role, nil
}

// DeactivateRole retires a role. Assignments referencing it stop granting
// permissions because the decision path filters on roles.is_active.
func (r *Repo) DeactivateRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE roles SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// ListPermissions returns the full permission catalog.
func (r *Repo) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, module, action, description
		FROM permissions
		ORDER BY module, action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Module, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// EnsurePermission upserts one catalog entry; (module, action) is the
// natural key, the description follows the latest write.
func (r *Repo) EnsurePermission(ctx context.Context, module, action, description string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (module, action, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (module, action) DO UPDATE SET description = EXCLUDED.description
		RETURNING id, module, action, description`,
		module, action, description).
		Scan(&p.ID, &p.Module, &p.Action, &p.Description)
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

// ListRolePermissions returns the permissions currently attached to a role.
func (r *Repo) ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.module, p.action, p.description
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.module, p.action`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Module, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// AttachPermission links a permission to a role.
func (r *Repo) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permissionID)
	return err
}

// DetachPermission unlinks a permission from a role.
func (r *Repo) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM role_permissions
		WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return err
}

// ListAssignedPrincipalIDs returns the principals holding effective
// assignments of the role, used to invalidate their cached permissions
// after a role-level change.
func (r *Repo) ListAssignedPrincipalIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT principal_id
		FROM role_assignments
		WHERE role_id = $1 AND is_active`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// mapConstraint translates unique violations into the shared duplicate
// sentinel so handlers can answer 409 instead of 500.
func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return httpx.ErrDuplicate
	}
	return err
}
