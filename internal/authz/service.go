package authz

import (
	"context"
	"log/slog"
)

// Service is the authorization facade consumed by the HTTP layer and the
// administrative workflows.
type Service struct {
	cache  *Cache
	eval   Evaluator
	logger *slog.Logger
}

// NewService constructs a Service. superAdmin may be empty to disable the
// bypass entirely.
func NewService(cache *Cache, superAdmin RoleName, logger *slog.Logger) *Service {
	return &Service{
		cache:  cache,
		eval:   Evaluator{SuperAdmin: superAdmin},
		logger: logger,
	}
}

// Authorize resolves the principal's permission set and evaluates the
// requirement. On a store error the returned decision is a deny and the
// error is propagated so the caller can fail closed.
func (s *Service) Authorize(ctx context.Context, principalID int64, req Requirement) (Decision, error) {
	set, err := s.cache.Get(ctx, principalID)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("authorize permission load", slog.Int64("principal_id", principalID), slog.Any("error", err))
		}
		return Decision{Allow: false, Reason: "permission store unavailable"}, err
	}
	return s.eval.Evaluate(set, req), nil
}

// EffectiveRoles returns the principal's current effective role names,
// used to snapshot the acting role into audit records.
func (s *Service) EffectiveRoles(ctx context.Context, principalID int64) ([]RoleName, error) {
	set, err := s.cache.Get(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return append([]RoleName(nil), set.Roles...), nil
}

// InvalidatePermissions drops the principal's cached permission set. The
// role-assignment workflow calls it synchronously after every mutation so
// revocations take effect immediately on this instance.
func (s *Service) InvalidatePermissions(principalID int64) {
	s.cache.Invalidate(principalID)
}
