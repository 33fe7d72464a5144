package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/campuscore/campuscore/internal/audit"
)

// AuditPersistJob drains the audit queue into the writer. The writer owns
// the retry/loss policy, so handlers never return an error for a failed
// insert; only malformed payloads are rejected (and not retried).
type AuditPersistJob struct {
	writer *audit.Writer
	logger *slog.Logger
}

// NewAuditPersistJob constructs the job.
func NewAuditPersistJob(writer *audit.Writer, logger *slog.Logger) *AuditPersistJob {
	return &AuditPersistJob{writer: writer, logger: logger}
}

// HandleRecord processes TaskAuditRecord tasks.
func (j *AuditPersistJob) HandleRecord(ctx context.Context, t *asynq.Task) error {
	var rec audit.Record
	if err := json.Unmarshal(t.Payload(), &rec); err != nil {
		j.warn("audit record payload", err)
		return asynq.SkipRetry
	}
	j.writer.Write(ctx, rec)
	return nil
}

// HandleAccess processes TaskAuditAccess tasks.
func (j *AuditPersistJob) HandleAccess(ctx context.Context, t *asynq.Task) error {
	var rec audit.AccessRecord
	if err := json.Unmarshal(t.Payload(), &rec); err != nil {
		j.warn("access record payload", err)
		return asynq.SkipRetry
	}
	j.writer.WriteAccess(ctx, rec)
	return nil
}

// HandleEvent processes TaskAuditEvent tasks.
func (j *AuditPersistJob) HandleEvent(ctx context.Context, t *asynq.Task) error {
	var ev audit.Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		j.warn("system event payload", err)
		return asynq.SkipRetry
	}
	j.writer.WriteEvent(ctx, ev)
	return nil
}

func (j *AuditPersistJob) warn(what string, err error) {
	if j.logger != nil {
		j.logger.Warn("dropping malformed task", slog.String("payload", what), slog.Any("error", err))
	}
}
