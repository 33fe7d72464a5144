package authz

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/campuscore/campuscore/internal/platform/httpx"
	"github.com/campuscore/campuscore/internal/shared"
)

// DecisionObserver receives decision outcomes for metrics.
type DecisionObserver interface {
	ObserveDecision(allowed bool)
}

// Middleware wires authorization guards for HTTP handlers. The tenant is
// resolved from the {tenantID} route parameter when present, falling back
// to the X-Tenant-ID header.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
	Metrics DecisionObserver
}

// RequirePermission guards a route with a (module, action) check scoped to
// the request tenant.
func (m Middleware) RequirePermission(module Module, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := tenantFromRequest(r)
			if !ok {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed tenant id")
				return
			}
			req := RequirePermission(module, action)
			req.TenantID = tenantID
			m.check(w, r, next, req)
		})
	}
}

// RequireAnyRole guards a route with an any-of role check.
func (m Middleware) RequireAnyRole(names ...RoleName) func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request) Requirement {
		return RequireAnyRole(names...)
	})
}

// RequireAllRoles guards a route with an all-of role check.
func (m Middleware) RequireAllRoles(names ...RoleName) func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request) Requirement {
		return RequireAllRoles(names...)
	})
}

func (m Middleware) guard(build func(*http.Request) Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.check(w, r, next, build(r))
		})
	}
}

func (m Middleware) check(w http.ResponseWriter, r *http.Request, next http.Handler, req Requirement) {
	if req.IsEmpty() {
		next.ServeHTTP(w, r)
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		m.observe(false)
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "no authenticated principal")
		return
	}
	decision, err := m.Service.Authorize(r.Context(), principal.ID, req)
	if err != nil {
		// Fail closed. Store internals stay out of the response.
		m.observe(false)
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "request denied")
		return
	}
	m.observe(decision.Allow)
	if !decision.Allow {
		if m.Logger != nil {
			m.Logger.Warn("access denied",
				slog.Int64("principal_id", principal.ID),
				slog.String("reason", decision.Reason))
		}
		httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
		return
	}
	next.ServeHTTP(w, r)
}

func (m Middleware) observe(allowed bool) {
	if m.Metrics != nil {
		m.Metrics.ObserveDecision(allowed)
	}
}

func tenantFromRequest(r *http.Request) (*int64, bool) {
	raw := chi.URLParam(r, "tenantID")
	if raw == "" {
		raw = r.Header.Get("X-Tenant-ID")
	}
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, false
	}
	return &id, true
}
