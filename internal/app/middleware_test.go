package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/campuscore/campuscore/internal/shared"
)

func TestPrincipalMiddlewareResolvesHeaders(t *testing.T) {
	var got *shared.Principal
	handler := principalMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	req.Header.Set("X-Principal-ID", "42")
	req.Header.Set("X-Principal-Email", "admin@school.test")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("principal not stored in context")
	}
	if got.ID != 42 || got.Email != "admin@school.test" {
		t.Fatalf("unexpected principal %+v", got)
	}
}

func TestPrincipalMiddlewareWithoutHeaderStaysAnonymous(t *testing.T) {
	var called bool
	handler := principalMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if shared.PrincipalFromContext(r.Context()) != nil {
			t.Fatal("expected anonymous request")
		}
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if !called {
		t.Fatal("next handler not called")
	}
}

func TestPrincipalMiddlewareRejectsMalformedID(t *testing.T) {
	handler := principalMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	req.Header.Set("X-Principal-ID", "not-a-number")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCorrelationMiddlewarePrefersUpstreamID(t *testing.T) {
	var got string
	handler := correlationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.CorrelationIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got != "upstream-7" {
		t.Fatalf("expected upstream id, got %q", got)
	}
	if rec.Header().Get("X-Request-ID") != "upstream-7" {
		t.Fatal("correlation id not echoed to response")
	}
}

func TestCorrelationMiddlewareGeneratesID(t *testing.T) {
	var got string
	handler := correlationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.CorrelationIDFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got == "" {
		t.Fatal("expected a generated correlation id")
	}
}
