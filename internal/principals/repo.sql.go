package principals

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuscore/campuscore/internal/platform/httpx"
)

// Repo provides PostgreSQL backed persistence for principals and their
// role assignments.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo constructs a repository.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ListPrincipals returns all active principals ordered by email.
func (r *Repo) ListPrincipals(ctx context.Context) ([]Principal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, email, full_name, is_active, created_at
		FROM principals
		WHERE is_active
		ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Principal
	for rows.Next() {
		var p Principal
		if err := rows.Scan(&p.ID, &p.Email, &p.FullName, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPrincipal fetches one principal by ID.
func (r *Repo) GetPrincipal(ctx context.Context, id int64) (Principal, error) {
	var p Principal
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, full_name, is_active, created_at
		FROM principals
		WHERE id = $1`, id).
		Scan(&p.ID, &p.Email, &p.FullName, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, httpx.ErrNotFound
		}
		return Principal{}, err
	}
	return p, nil
}

// ListAssignments returns all assignments of a principal, active and
// revoked, newest first.
func (r *Repo) ListAssignments(ctx context.Context, principalID int64) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ra.id, ra.principal_id, ra.role_id, r.name, ra.tenant_id,
		       ra.assigned_by, ra.assigned_at, ra.expires_at, ra.is_active
		FROM role_assignments ra
		JOIN roles r ON r.id = ra.role_id
		WHERE ra.principal_id = $1
		ORDER BY ra.assigned_at DESC`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ID, &a.PrincipalID, &a.RoleID, &a.RoleName, &a.TenantID,
			&a.AssignedBy, &a.AssignedAt, &a.ExpiresAt, &a.IsActive); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAssignment fetches one assignment by ID.
func (r *Repo) GetAssignment(ctx context.Context, id int64) (Assignment, error) {
	var a Assignment
	err := r.pool.QueryRow(ctx, `
		SELECT ra.id, ra.principal_id, ra.role_id, r.name, ra.tenant_id,
		       ra.assigned_by, ra.assigned_at, ra.expires_at, ra.is_active
		FROM role_assignments ra
		JOIN roles r ON r.id = ra.role_id
		WHERE ra.id = $1`, id).
		Scan(&a.ID, &a.PrincipalID, &a.RoleID, &a.RoleName, &a.TenantID,
			&a.AssignedBy, &a.AssignedAt, &a.ExpiresAt, &a.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, httpx.ErrNotFound
		}
		return Assignment{}, err
	}
	return a, nil
}

// Grant creates or reactivates the (principal, role, tenant) assignment.
// Re-granting a revoked assignment flips it back to active with fresh
// metadata instead of inserting a second row; tenant comparison treats
// NULL as a distinct scope of its own.
func (r *Repo) Grant(ctx context.Context, principalID, roleID int64, tenantID *int64, assignedBy int64, expiresAt *time.Time) (Assignment, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		UPDATE role_assignments
		SET is_active = TRUE, assigned_by = $4, assigned_at = NOW(), expires_at = $5
		WHERE principal_id = $1 AND role_id = $2
		  AND tenant_id IS NOT DISTINCT FROM $3
		RETURNING id`,
		principalID, roleID, tenantID, assignedBy, expiresAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = r.pool.QueryRow(ctx, `
			INSERT INTO role_assignments (principal_id, role_id, tenant_id, assigned_by, assigned_at, expires_at, is_active)
			VALUES ($1, $2, $3, $4, NOW(), $5, TRUE)
			RETURNING id`,
			principalID, roleID, tenantID, assignedBy, expiresAt).Scan(&id)
	}
	if err != nil {
		// Two concurrent grants for the same scope can both miss the
		// UPDATE; the loser's INSERT hits the unique constraint.
		return Assignment{}, mapConstraint(err)
	}
	return r.GetAssignment(ctx, id)
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

// Revoke disables one assignment. The row stays behind for the audit
// trail and for later reactivation.
func (r *Repo) Revoke(ctx context.Context, assignmentID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE role_assignments
		SET is_active = FALSE
		WHERE id = $1 AND is_active`, assignmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}
