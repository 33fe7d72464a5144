package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campuscore/campuscore/internal/shared"
)

func newGuardedRouter(src Source) chi.Router {
	svc := NewService(NewCache(src, time.Minute, 16), DefaultSuperAdminRole, nil)
	mw := Middleware{Service: svc}
	r := chi.NewRouter()
	r.Route("/tenants/{tenantID}/attendance", func(r chi.Router) {
		r.With(mw.RequirePermission("attendance", "write")).Post("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r
}

func doRequest(t *testing.T, router chi.Router, path string, principal *shared.Principal) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if principal != nil {
		req = req.WithContext(shared.ContextWithPrincipal(context.Background(), principal))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareAllowsGrantedTenant(t *testing.T) {
	src := &stubSource{
		grants: []Grant{{Module: "attendance", Action: "write", TenantID: tenant(1), Role: "teacher"}},
		roles:  []RoleName{"teacher"},
	}
	router := newGuardedRouter(src)

	rec := doRequest(t, router, "/tenants/1/attendance/", &shared.Principal{ID: 42})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMiddlewareDeniesForeignTenant(t *testing.T) {
	src := &stubSource{
		grants: []Grant{{Module: "attendance", Action: "write", TenantID: tenant(1), Role: "teacher"}},
		roles:  []RoleName{"teacher"},
	}
	router := newGuardedRouter(src)

	rec := doRequest(t, router, "/tenants/2/attendance/", &shared.Principal{ID: 42})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMiddlewareDeniesMissingPrincipal(t *testing.T) {
	router := newGuardedRouter(&stubSource{})

	rec := doRequest(t, router, "/tenants/1/attendance/", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsMalformedTenant(t *testing.T) {
	router := newGuardedRouter(&stubSource{})

	rec := doRequest(t, router, "/tenants/not-a-number/attendance/", &shared.Principal{ID: 42})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
