package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/campuscore/campuscore/internal/audit"
)

// RetentionSweepJob runs the scheduled retention purge.
type RetentionSweepJob struct {
	sweeper *audit.Sweeper
	logger  *slog.Logger
}

// NewRetentionSweepJob constructs the job.
func NewRetentionSweepJob(sweeper *audit.Sweeper, logger *slog.Logger) *RetentionSweepJob {
	return &RetentionSweepJob{sweeper: sweeper, logger: logger}
}

// Handle processes TaskRetentionSweep tasks.
func (j *RetentionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	result, err := j.sweeper.Sweep(ctx)
	if err != nil {
		if j.logger != nil {
			j.logger.Error("retention sweep", slog.Any("error", err))
		}
		return err
	}
	if j.logger != nil {
		j.logger.Info("retention sweep removed rows",
			slog.Int64("audit_records", result.AuditRecords),
			slog.Int64("access_records", result.AccessRecords),
			slog.Int64("system_events", result.SystemEvents))
	}
	return nil
}
