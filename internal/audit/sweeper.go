package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetentionConfig holds the per-class retention windows. A non-positive
// window disables sweeping for that class.
type RetentionConfig struct {
	AuditRecords  time.Duration
	AccessRecords time.Duration
	SystemEvents  time.Duration
}

// SweepStorage is the age-predicated delete surface the sweeper needs.
type SweepStorage interface {
	DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAccessRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweepResult reports rows removed per record class.
type SweepResult struct {
	AuditRecords  int64
	AccessRecords int64
	SystemEvents  int64
}

// Sweeper purges records past their retention window. It is idempotent
// and safe to run concurrently with ordinary writes; an external
// scheduler triggers it.
type Sweeper struct {
	store  SweepStorage
	cfg    RetentionConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSweeper constructs a sweeper.
func NewSweeper(store SweepStorage, cfg RetentionConfig, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Sweep deletes expired rows for every enabled class and returns the
// per-class counts. A failure in one class does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now()
	var result SweepResult
	var errs []error

	if s.cfg.AuditRecords > 0 {
		n, err := s.store.DeleteRecordsBefore(ctx, now.Add(-s.cfg.AuditRecords))
		if err != nil {
			errs = append(errs, err)
		}
		result.AuditRecords = n
	}
	if s.cfg.AccessRecords > 0 {
		n, err := s.store.DeleteAccessRecordsBefore(ctx, now.Add(-s.cfg.AccessRecords))
		if err != nil {
			errs = append(errs, err)
		}
		result.AccessRecords = n
	}
	if s.cfg.SystemEvents > 0 {
		n, err := s.store.DeleteEventsBefore(ctx, now.Add(-s.cfg.SystemEvents))
		if err != nil {
			errs = append(errs, err)
		}
		result.SystemEvents = n
	}

	if s.logger != nil {
		s.logger.Info("retention sweep finished",
			slog.Int64("audit_records", result.AuditRecords),
			slog.Int64("access_records", result.AccessRecords),
			slog.Int64("system_events", result.SystemEvents))
	}
	return result, errors.Join(errs...)
}
