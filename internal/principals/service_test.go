package principals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campuscore/campuscore/internal/audit"
	"github.com/campuscore/campuscore/internal/authz"
	"github.com/campuscore/campuscore/internal/platform/httpx"
	"github.com/campuscore/campuscore/internal/shared"
)

type stubRepo struct {
	principals  map[int64]Principal
	assignments map[int64]Assignment
	nextID      int64
	grantErr    error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		principals:  map[int64]Principal{},
		assignments: map[int64]Assignment{},
		nextID:      1,
	}
}

func (s *stubRepo) ListPrincipals(ctx context.Context) ([]Principal, error) {
	var out []Principal
	for _, p := range s.principals {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubRepo) GetPrincipal(ctx context.Context, id int64) (Principal, error) {
	p, ok := s.principals[id]
	if !ok {
		return Principal{}, httpx.ErrNotFound
	}
	return p, nil
}

func (s *stubRepo) ListAssignments(ctx context.Context, principalID int64) ([]Assignment, error) {
	var out []Assignment
	for _, a := range s.assignments {
		if a.PrincipalID == principalID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubRepo) GetAssignment(ctx context.Context, id int64) (Assignment, error) {
	a, ok := s.assignments[id]
	if !ok {
		return Assignment{}, httpx.ErrNotFound
	}
	return a, nil
}

func (s *stubRepo) Grant(ctx context.Context, principalID, roleID int64, tenantID *int64, assignedBy int64, expiresAt *time.Time) (Assignment, error) {
	if s.grantErr != nil {
		return Assignment{}, s.grantErr
	}
	// Reactivate an existing row for the same scope.
	for id, a := range s.assignments {
		if a.PrincipalID == principalID && a.RoleID == roleID && tenantPtrEqual(a.TenantID, tenantID) {
			a.IsActive = true
			a.AssignedBy = assignedBy
			a.ExpiresAt = expiresAt
			s.assignments[id] = a
			return a, nil
		}
	}
	a := Assignment{
		ID:          s.nextID,
		PrincipalID: principalID,
		RoleID:      roleID,
		TenantID:    tenantID,
		AssignedBy:  assignedBy,
		AssignedAt:  time.Now(),
		ExpiresAt:   expiresAt,
		IsActive:    true,
	}
	s.nextID++
	s.assignments[a.ID] = a
	return a, nil
}

func (s *stubRepo) Revoke(ctx context.Context, assignmentID int64) error {
	a, ok := s.assignments[assignmentID]
	if !ok || !a.IsActive {
		return httpx.ErrNotFound
	}
	a.IsActive = false
	s.assignments[assignmentID] = a
	return nil
}

func tenantPtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type stubAuthorizer struct {
	invalidated []int64
	roles       []authz.RoleName
}

func (s *stubAuthorizer) InvalidatePermissions(principalID int64) {
	s.invalidated = append(s.invalidated, principalID)
}

func (s *stubAuthorizer) EffectiveRoles(ctx context.Context, principalID int64) ([]authz.RoleName, error) {
	return s.roles, nil
}

type captureQueue struct {
	records []audit.Record
}

func (q *captureQueue) EnqueueAuditRecord(ctx context.Context, rec audit.Record) error {
	q.records = append(q.records, rec)
	return nil
}

func (q *captureQueue) EnqueueAccessRecord(ctx context.Context, rec audit.AccessRecord) error {
	return nil
}

func (q *captureQueue) EnqueueEvent(ctx context.Context, ev audit.Event) error {
	return nil
}

func testContext() context.Context {
	return shared.ContextWithPrincipal(context.Background(), &shared.Principal{ID: 42, Email: "admin@school.test"})
}

func TestGrantInvalidatesAndAudits(t *testing.T) {
	repo := newStubRepo()
	repo.principals[7] = Principal{ID: 7, Email: "t@school.test", IsActive: true}
	inv := &stubAuthorizer{roles: []authz.RoleName{"principal_admin"}}
	queue := &captureQueue{}
	recorder := audit.NewRecorder(audit.NewBuilder(nil), queue, nil, nil)
	svc := NewService(repo, inv, recorder)

	tenant := int64(12)
	assignment, err := svc.Grant(testContext(), 7, 3, &tenant, nil)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !assignment.IsActive || assignment.AssignedBy != 42 {
		t.Fatalf("unexpected assignment %+v", assignment)
	}
	if len(inv.invalidated) != 1 || inv.invalidated[0] != 7 {
		t.Fatalf("expected invalidation of principal 7, got %v", inv.invalidated)
	}
	if len(queue.records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(queue.records))
	}
	rec := queue.records[0]
	if rec.Operation != audit.OpCreate || rec.Table != "role_assignments" {
		t.Fatalf("unexpected audit record %+v", rec)
	}
	if rec.Actor.ID != 42 {
		t.Fatalf("expected acting principal 42, got %d", rec.Actor.ID)
	}
	if rec.Actor.Role != "principal_admin" {
		t.Fatalf("expected acting role snapshot, got %q", rec.Actor.Role)
	}
	if !rec.Success {
		t.Fatal("expected success record")
	}
}

func TestGrantRejectsPastExpiry(t *testing.T) {
	repo := newStubRepo()
	repo.principals[7] = Principal{ID: 7, IsActive: true}
	svc := NewService(repo, &stubAuthorizer{}, nil)

	past := time.Now().Add(-time.Hour)
	_, err := svc.Grant(testContext(), 7, 3, nil, &past)
	if !errors.Is(err, httpx.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGrantReactivatesRevokedAssignment(t *testing.T) {
	repo := newStubRepo()
	repo.principals[7] = Principal{ID: 7, IsActive: true}
	inv := &stubAuthorizer{}
	svc := NewService(repo, inv, nil)

	first, err := svc.Grant(testContext(), 7, 3, nil, nil)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := svc.Revoke(testContext(), 7, first.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	second, err := svc.Grant(testContext(), 7, 3, nil, nil)
	if err != nil {
		t.Fatalf("re-grant: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected reactivation of assignment %d, got new id %d", first.ID, second.ID)
	}
	if !second.IsActive {
		t.Fatal("assignment not reactivated")
	}
}

func TestRevokeChecksOwnership(t *testing.T) {
	repo := newStubRepo()
	repo.principals[7] = Principal{ID: 7, IsActive: true}
	repo.principals[8] = Principal{ID: 8, IsActive: true}
	svc := NewService(repo, &stubAuthorizer{}, nil)

	assignment, err := svc.Grant(testContext(), 7, 3, nil, nil)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	err = svc.Revoke(testContext(), 8, assignment.ID)
	if !errors.Is(err, httpx.ErrNotFound) {
		t.Fatalf("expected not found for foreign assignment, got %v", err)
	}
}

func TestGrantFailureStillAudits(t *testing.T) {
	repo := newStubRepo()
	repo.principals[7] = Principal{ID: 7, IsActive: true}
	repo.grantErr = errors.New("insert failed")
	queue := &captureQueue{}
	inv := &stubAuthorizer{}
	recorder := audit.NewRecorder(audit.NewBuilder(nil), queue, nil, nil)
	svc := NewService(repo, inv, recorder)

	_, err := svc.Grant(testContext(), 7, 3, nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(queue.records) != 1 {
		t.Fatalf("expected failure audit record, got %d", len(queue.records))
	}
	if queue.records[0].Success {
		t.Fatal("expected failed record")
	}
	if queue.records[0].RecordID != "" {
		t.Fatalf("expected empty record id for failed grant, got %q", queue.records[0].RecordID)
	}
	if len(inv.invalidated) != 0 {
		t.Fatalf("no invalidation expected on failure, got %v", inv.invalidated)
	}
}
