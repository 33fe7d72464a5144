package principals

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/campuscore/campuscore/internal/audit"
	"github.com/campuscore/campuscore/internal/authz"
	"github.com/campuscore/campuscore/internal/platform/httpx"
	"github.com/campuscore/campuscore/internal/shared"
)

// RepositoryPort defines data access methods for principals.
type RepositoryPort interface {
	ListPrincipals(ctx context.Context) ([]Principal, error)
	GetPrincipal(ctx context.Context, id int64) (Principal, error)
	ListAssignments(ctx context.Context, principalID int64) ([]Assignment, error)
	GetAssignment(ctx context.Context, id int64) (Assignment, error)
	Grant(ctx context.Context, principalID, roleID int64, tenantID *int64, assignedBy int64, expiresAt *time.Time) (Assignment, error)
	Revoke(ctx context.Context, assignmentID int64) error
}

// Authorizer invalidates cached permission sets after a change and
// resolves the acting principal's roles for audit snapshots.
type Authorizer interface {
	InvalidatePermissions(principalID int64)
	EffectiveRoles(ctx context.Context, principalID int64) ([]authz.RoleName, error)
}

// Service handles role assignment workflows. Every grant and revoke is
// audited and immediately invalidates the affected principal's cached
// permissions, so a revocation takes effect before the cache TTL does.
type Service struct {
	repo       RepositoryPort
	authorizer Authorizer
	recorder   *audit.Recorder
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, authorizer Authorizer, recorder *audit.Recorder) *Service {
	return &Service{repo: repo, authorizer: authorizer, recorder: recorder}
}

// ListPrincipals returns all active principals. The bulk read itself is
// recorded in the data-access trail.
func (s *Service) ListPrincipals(ctx context.Context) ([]Principal, error) {
	out, err := s.repo.ListPrincipals(ctx)
	if err != nil {
		return nil, err
	}
	s.recordAccess(ctx, "principals", nil, audit.AccessList, int64(len(out)), "principal administration")
	return out, nil
}

// GetPrincipal fetches one principal.
func (s *Service) GetPrincipal(ctx context.Context, id int64) (Principal, error) {
	return s.repo.GetPrincipal(ctx, id)
}

// ListAssignments returns the assignment history of a principal.
func (s *Service) ListAssignments(ctx context.Context, principalID int64) ([]Assignment, error) {
	if _, err := s.repo.GetPrincipal(ctx, principalID); err != nil {
		return nil, err
	}
	out, err := s.repo.ListAssignments(ctx, principalID)
	if err != nil {
		return nil, err
	}
	recordID := strconv.FormatInt(principalID, 10)
	s.recordAccess(ctx, "role_assignments", &recordID, audit.AccessList, int64(len(out)), "assignment review")
	return out, nil
}

// Grant assigns a role to a principal. An expiry in the past is rejected
// up front rather than producing an assignment that never grants.
func (s *Service) Grant(ctx context.Context, principalID, roleID int64, tenantID *int64, expiresAt *time.Time) (Assignment, error) {
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return Assignment{}, fmt.Errorf("%w: expiry must be in the future", httpx.ErrValidation)
	}
	if _, err := s.repo.GetPrincipal(ctx, principalID); err != nil {
		return Assignment{}, err
	}

	start := time.Now()
	assignment, err := s.repo.Grant(ctx, principalID, roleID, tenantID, actorID(ctx), expiresAt)
	after := assignmentValues(assignment)
	recordID := strconv.FormatInt(assignment.ID, 10)
	if err != nil {
		// Record the attempted state; the repo returned nothing usable,
		// so there is no record id to point at.
		recordID = ""
		after = map[string]any{"principal_id": principalID, "role_id": roleID, "is_active": true}
		if tenantID != nil {
			after["tenant_id"] = *tenantID
		}
	}
	s.record(ctx, audit.OpCreate, recordID, tenantID, start, err, nil, after)
	if err != nil {
		return Assignment{}, err
	}
	s.invalidate(principalID)
	return assignment, nil
}

// Revoke disables one assignment of the principal.
func (s *Service) Revoke(ctx context.Context, principalID, assignmentID int64) error {
	assignment, err := s.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	if assignment.PrincipalID != principalID {
		return httpx.ErrNotFound
	}

	start := time.Now()
	err = s.repo.Revoke(ctx, assignmentID)
	after := assignmentValues(assignment)
	after["is_active"] = false
	s.record(ctx, audit.OpDelete, strconv.FormatInt(assignmentID, 10), assignment.TenantID, start, err, assignmentValues(assignment), after)
	if err != nil {
		return err
	}
	s.invalidate(principalID)
	return nil
}

func (s *Service) invalidate(principalID int64) {
	if s.authorizer != nil {
		s.authorizer.InvalidatePermissions(principalID)
	}
}

func (s *Service) record(ctx context.Context, kind audit.OperationKind, recordID string, tenantID *int64, start time.Time, opErr error, before, after map[string]any) {
	if s.recorder == nil {
		return
	}
	op := audit.Operation{
		Kind:      kind,
		Table:     "role_assignments",
		RecordID:  recordID,
		TenantID:  tenantID,
		StartedAt: start,
		Duration:  time.Since(start),
		Err:       opErr,
		Actor:     s.actor(ctx),
	}
	s.recorder.Record(ctx, op, before, after)
}

func (s *Service) recordAccess(ctx context.Context, table string, recordID *string, accessType audit.AccessType, rowCount int64, purpose string) {
	if s.recorder == nil {
		return
	}
	rec := audit.AccessRecord{
		Table:      table,
		RecordID:   recordID,
		AccessType: accessType,
		RowCount:   rowCount,
		Purpose:    purpose,
		Actor:      s.actor(ctx),
	}
	s.recorder.RecordAccess(ctx, rec)
}

// actor snapshots the acting principal, including the roles it held at
// the time of the operation. Role resolution is best effort; a failed
// lookup leaves the role blank rather than blocking the audit.
func (s *Service) actor(ctx context.Context) audit.Actor {
	principal := shared.PrincipalFromContext(ctx)
	if principal == nil {
		return audit.Actor{}
	}
	actor := audit.Actor{ID: principal.ID, Email: principal.Email}
	if s.authorizer != nil {
		if roles, err := s.authorizer.EffectiveRoles(ctx, principal.ID); err == nil {
			actor.Role = joinRoleNames(roles)
		}
	}
	return actor
}

func joinRoleNames(roles []authz.RoleName) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ",")
}

func actorID(ctx context.Context) int64 {
	if principal := shared.PrincipalFromContext(ctx); principal != nil {
		return principal.ID
	}
	return 0
}

func assignmentValues(a Assignment) map[string]any {
	values := map[string]any{
		"principal_id": a.PrincipalID,
		"role_id":      a.RoleID,
		"role_name":    a.RoleName,
		"is_active":    a.IsActive,
	}
	if a.TenantID != nil {
		values["tenant_id"] = *a.TenantID
	}
	if a.ExpiresAt != nil {
		values["expires_at"] = a.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return values
}
