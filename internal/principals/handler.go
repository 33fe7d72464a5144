package principals

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campuscore/campuscore/internal/authz"
	"github.com/campuscore/campuscore/internal/platform/httpx"
)

// Handler manages principal and role assignment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authorize *authz.Service
	guard     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authorize *authz.Service, guard authz.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		authorize: authorize,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers principal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(authz.ModulePrincipals, authz.ActionView))
		r.Get("/", h.listPrincipals)
		r.Get("/{principalID}", h.getPrincipal)
		r.Get("/{principalID}/assignments", h.listAssignments)
		r.Get("/{principalID}/roles", h.effectiveRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(authz.ModulePrincipals, authz.ActionAssign))
		r.Post("/{principalID}/assignments", h.grant)
		r.Delete("/{principalID}/assignments/{assignmentID}", h.revoke)
	})
}

type grantForm struct {
	RoleID    int64      `json:"role_id" validate:"required,gt=0"`
	TenantID  *int64     `json:"tenant_id" validate:"omitempty,gt=0"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) listPrincipals(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListPrincipals(r.Context())
	if err != nil {
		h.logger.Error("list principals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"principals": out})
}

func (h *Handler) getPrincipal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "principalID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed principal id")
		return
	}
	principal, err := h.service.GetPrincipal(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, principal)
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "principalID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed principal id")
		return
	}
	assignments, err := h.service.ListAssignments(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}

// effectiveRoles reports the principal's roles as the decision engine
// currently sees them, cache included.
func (h *Handler) effectiveRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "principalID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed principal id")
		return
	}
	if _, err := h.service.GetPrincipal(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	roles, err := h.authorize.EffectiveRoles(r.Context(), id)
	if err != nil {
		h.logger.Error("effective roles", slog.Int64("principal_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if roles == nil {
		roles = []authz.RoleName{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "principalID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed principal id")
		return
	}
	var form grantForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	assignment, err := h.service.Grant(r.Context(), id, form.RoleID, form.TenantID, form.ExpiresAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, assignment)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	principalID, ok := pathID(r, "principalID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed principal id")
		return
	}
	assignmentID, ok := pathID(r, "assignmentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed assignment id")
		return
	}
	if err := h.service.Revoke(r.Context(), principalID, assignmentID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
