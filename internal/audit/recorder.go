package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/campuscore/campuscore/internal/shared"
)

// Queue is the hand-off from the request path to the asynchronous writer.
type Queue interface {
	EnqueueAuditRecord(ctx context.Context, rec Record) error
	EnqueueAccessRecord(ctx context.Context, rec AccessRecord) error
	EnqueueEvent(ctx context.Context, ev Event) error
}

// Recorder is the fire-and-forget entry point business handlers call after
// an operation completes. Building happens inline (it is cheap and pure);
// persistence is handed to the queue, or spawned on a detached context
// when no queue is configured, so audit latency never reaches the caller.
type Recorder struct {
	builder *Builder
	queue   Queue
	writer  *Writer
	logger  *slog.Logger
}

// NewRecorder constructs a recorder. queue may be nil, in which case the
// writer is invoked on a background goroutine.
func NewRecorder(builder *Builder, queue Queue, writer *Writer, logger *slog.Logger) *Recorder {
	return &Recorder{builder: builder, queue: queue, writer: writer, logger: logger}
}

// Record builds and dispatches one audit record.
func (r *Recorder) Record(ctx context.Context, op Operation, before, after map[string]any) {
	if op.CorrelationID == "" {
		op.CorrelationID = correlationID(ctx)
	}
	rec := r.builder.Build(op, before, after)
	if r.queue != nil {
		if err := r.queue.EnqueueAuditRecord(ctx, rec); err == nil {
			return
		} else if r.logger != nil {
			r.logger.Warn("audit enqueue failed, falling back to direct write", slog.Any("error", err))
		}
	}
	if r.writer != nil {
		go r.writer.Write(context.WithoutCancel(ctx), rec)
	}
}

// RecordAccess dispatches one data-access record.
func (r *Recorder) RecordAccess(ctx context.Context, rec AccessRecord) {
	if rec.CorrelationID == "" {
		rec.CorrelationID = correlationID(ctx)
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	if r.queue != nil {
		if err := r.queue.EnqueueAccessRecord(ctx, rec); err == nil {
			return
		} else if r.logger != nil {
			r.logger.Warn("access record enqueue failed, falling back to direct write", slog.Any("error", err))
		}
	}
	if r.writer != nil {
		go r.writer.WriteAccess(context.WithoutCancel(ctx), rec)
	}
}

// RecordEvent dispatches one system event.
func (r *Recorder) RecordEvent(ctx context.Context, ev Event) {
	if ev.CorrelationID == "" {
		ev.CorrelationID = correlationID(ctx)
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if r.queue != nil {
		if err := r.queue.EnqueueEvent(ctx, ev); err == nil {
			return
		} else if r.logger != nil {
			r.logger.Warn("system event enqueue failed, falling back to direct write", slog.Any("error", err))
		}
	}
	if r.writer != nil {
		go r.writer.WriteEvent(context.WithoutCancel(ctx), ev)
	}
}

func correlationID(ctx context.Context) string {
	if id := shared.CorrelationIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
