package roles

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/campuscore/campuscore/internal/audit"
	"github.com/campuscore/campuscore/internal/authz"
	"github.com/campuscore/campuscore/internal/platform/httpx"
	"github.com/campuscore/campuscore/internal/shared"
)

// RepositoryPort defines data access methods for role management.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string, level int) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string, level int) (Role, error)
	DeactivateRole(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermission(ctx context.Context, module, action, description string) (Permission, error)
	ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error
	ListAssignedPrincipalIDs(ctx context.Context, roleID int64) ([]int64, error)
}

// Authorizer invalidates cached permission sets after a change and
// resolves the acting principal's roles for audit snapshots.
type Authorizer interface {
	InvalidatePermissions(principalID int64)
	EffectiveRoles(ctx context.Context, principalID int64) ([]authz.RoleName, error)
}

// Service handles role management business logic. Every mutation is
// audited, and role-level changes invalidate the cached permissions of
// every principal holding the role.
type Service struct {
	repo       RepositoryPort
	authorizer Authorizer
	recorder   *audit.Recorder
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, authorizer Authorizer, recorder *audit.Recorder) *Service {
	return &Service{repo: repo, authorizer: authorizer, recorder: recorder}
}

// ListRoles returns all active roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string, level int) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", httpx.ErrValidation)
	}
	start := time.Now()
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description), level)
	s.record(ctx, audit.OpCreate, roleRecordID(role.ID), start, err, nil, roleValues(role))
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// UpdateRole renames or re-describes an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string, level int) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", httpx.ErrValidation)
	}
	before, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	start := time.Now()
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description), level)
	s.record(ctx, audit.OpUpdate, roleRecordID(id), start, err, roleValues(before), roleValues(role))
	if err != nil {
		return Role{}, err
	}
	// A rename changes the role names baked into cached permission sets.
	if before.Name != role.Name {
		s.invalidateHolders(ctx, id)
	}
	return role, nil
}

// DeactivateRole retires a role and invalidates every holder.
func (s *Service) DeactivateRole(ctx context.Context, id int64) error {
	before, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	// Snapshot holders before the flag flips; afterwards the assignment
	// query no longer sees them through an active role.
	holders, holdersErr := s.repo.ListAssignedPrincipalIDs(ctx, id)

	start := time.Now()
	err = s.repo.DeactivateRole(ctx, id)
	after := roleValues(before)
	after["is_active"] = false
	s.record(ctx, audit.OpDelete, roleRecordID(id), start, err, roleValues(before), after)
	if err != nil {
		return err
	}
	if holdersErr == nil {
		s.invalidate(holders)
	} else {
		s.invalidateHolders(ctx, id)
	}
	return nil
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// EnsurePermission upserts one catalog entry. Catalog changes do not
// touch cached permission sets until a role references the entry.
func (s *Service) EnsurePermission(ctx context.Context, module, action, description string) (Permission, error) {
	module = strings.ToLower(strings.TrimSpace(module))
	action = strings.ToLower(strings.TrimSpace(action))
	if module == "" || action == "" {
		return Permission{}, fmt.Errorf("%w: module and action required", httpx.ErrValidation)
	}
	start := time.Now()
	perm, err := s.repo.EnsurePermission(ctx, module, action, strings.TrimSpace(description))
	if s.recorder != nil {
		op := audit.Operation{
			Kind:      audit.OpUpdate,
			Table:     "permissions",
			RecordID:  module + "." + action,
			StartedAt: start,
			Duration:  time.Since(start),
			Err:       err,
			Actor:     s.actor(ctx),
		}
		s.recorder.Record(ctx, op, nil, map[string]any{
			"module":      module,
			"action":      action,
			"description": description,
		})
	}
	if err != nil {
		return Permission{}, err
	}
	return perm, nil
}

// ListRolePermissions returns the permissions attached to a role.
func (s *Service) ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListRolePermissions(ctx, roleID)
}

// SetRolePermissions replaces the permission set of a role by diffing the
// desired set against the current one, then invalidates every holder.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	current, err := s.repo.ListRolePermissions(ctx, roleID)
	if err != nil {
		return err
	}
	existing := make(map[int64]struct{}, len(current))
	for _, p := range current {
		existing[p.ID] = struct{}{}
	}
	keep := make(map[int64]struct{}, len(permissionIDs))

	start := time.Now()
	var opErr error
	for _, id := range permissionIDs {
		keep[id] = struct{}{}
		if _, ok := existing[id]; !ok {
			if opErr = s.repo.AttachPermission(ctx, roleID, id); opErr != nil {
				break
			}
		}
	}
	if opErr == nil {
		for id := range existing {
			if _, ok := keep[id]; !ok {
				if opErr = s.repo.DetachPermission(ctx, roleID, id); opErr != nil {
					break
				}
			}
		}
	}

	s.record(ctx, audit.OpUpdate, roleRecordID(roleID), start, opErr,
		map[string]any{"permission_ids": permissionIDKeys(existing)},
		map[string]any{"permission_ids": append([]int64(nil), permissionIDs...)})
	if opErr != nil {
		return opErr
	}
	s.invalidateHolders(ctx, roleID)
	return nil
}

func (s *Service) invalidateHolders(ctx context.Context, roleID int64) {
	if s.authorizer == nil {
		return
	}
	holders, err := s.repo.ListAssignedPrincipalIDs(ctx, roleID)
	if err != nil {
		// Holders fall back to the cache TTL; nothing else to do here.
		return
	}
	s.invalidate(holders)
}

func (s *Service) invalidate(principalIDs []int64) {
	if s.authorizer == nil {
		return
	}
	for _, id := range principalIDs {
		s.authorizer.InvalidatePermissions(id)
	}
}

func (s *Service) record(ctx context.Context, kind audit.OperationKind, recordID string, start time.Time, opErr error, before, after map[string]any) {
	if s.recorder == nil {
		return
	}
	op := audit.Operation{
		Kind:      kind,
		Table:     "roles",
		RecordID:  recordID,
		StartedAt: start,
		Duration:  time.Since(start),
		Err:       opErr,
		Actor:     s.actor(ctx),
	}
	s.recorder.Record(ctx, op, before, after)
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

func roleValues(role Role) map[string]any {
	return map[string]any{
		"name":        role.Name,
		"description": role.Description,
		"level":       role.Level,
		"is_active":   role.IsActive,
	}
}

func roleRecordID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func permissionIDKeys(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
