package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Storage is the append-only persistence surface the writer needs.
type Storage interface {
	InsertRecord(ctx context.Context, rec Record) error
	InsertAccessRecord(ctx context.Context, rec AccessRecord) error
	InsertEvent(ctx context.Context, ev Event) error
}

// WriteObserver receives write outcomes for metrics.
type WriteObserver interface {
	ObserveAuditWrite(kind string, ok bool)
}

// Writer persists audit records. A failed write never propagates to the
// business operation that produced it: the writer retries once, then logs
// the loss and moves on.
type Writer struct {
	store      Storage
	logger     *slog.Logger
	critical   map[string]struct{}
	retryDelay time.Duration
	metrics    WriteObserver
}

// NewWriter constructs a writer. criticalTables lists the table names
// whose audit records additionally raise a SECURITY system event.
func NewWriter(store Storage, logger *slog.Logger, criticalTables []string) *Writer {
	critical := make(map[string]struct{}, len(criticalTables))
	for _, t := range criticalTables {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			critical[t] = struct{}{}
		}
	}
	return &Writer{
		store:      store,
		logger:     logger,
		critical:   critical,
		retryDelay: 100 * time.Millisecond,
	}
}

// WithMetrics attaches a write observer.
func (w *Writer) WithMetrics(m WriteObserver) *Writer {
	w.metrics = m
	return w
}

// Write persists one audit record, then emits a SECURITY event for writes
// to critical tables so alerting consumers can react without polling.
func (w *Writer) Write(ctx context.Context, rec Record) {
	if err := w.withRetry(ctx, func() error { return w.store.InsertRecord(ctx, rec) }); err != nil {
		w.lost(ctx, "audit record", rec.CorrelationID, err)
		w.observe("record", false)
		return
	}
	w.observe("record", true)

	if _, ok := w.critical[strings.ToLower(rec.Table)]; ok {
		w.writeEvent(ctx, Event{
			Category:    CategorySecurity,
			Severity:    SeverityWarning,
			Title:       "critical table write",
			Description: string(rec.Operation) + " on " + rec.Table,
			Details: map[string]any{
				"table":     rec.Table,
				"operation": rec.Operation,
				"record_id": rec.RecordID,
				"actor_id":  rec.Actor.ID,
			},
			CorrelationID: rec.CorrelationID,
			OccurredAt:    rec.OccurredAt,
		})
	}
}

// WriteAccess persists one data-access record.
func (w *Writer) WriteAccess(ctx context.Context, rec AccessRecord) {
	if err := w.withRetry(ctx, func() error { return w.store.InsertAccessRecord(ctx, rec) }); err != nil {
		w.lost(ctx, "data access record", rec.CorrelationID, err)
		w.observe("access", false)
		return
	}
	w.observe("access", true)
}

// WriteEvent persists one system event.
func (w *Writer) WriteEvent(ctx context.Context, ev Event) {
	w.writeEvent(ctx, ev)
}

func (w *Writer) writeEvent(ctx context.Context, ev Event) {
	if err := w.withRetry(ctx, func() error { return w.store.InsertEvent(ctx, ev) }); err != nil {
		// System events are not audited again; just log the loss.
		if w.logger != nil {
			w.logger.Warn("lost system event",
				slog.String("title", ev.Title),
				slog.String("correlation_id", ev.CorrelationID),
				slog.Any("error", err))
		}
		w.observe("event", false)
		return
	}
	w.observe("event", true)
}

// withRetry runs the insert and retries once after a short delay. The
// retry budget is deliberately small: a persistently unavailable audit
// store must not back-pressure business traffic.
func (w *Writer) withRetry(ctx context.Context, insert func() error) error {
	err := insert()
	if err == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(w.retryDelay):
	}
	return insert()
}

// lost logs the dropped record and raises a best-effort warning event.
// The event insert is not retried and its own failure is only logged,
// avoiding audit-of-audit recursion.
func (w *Writer) lost(ctx context.Context, kind, correlationID string, err error) {
	if w.logger != nil {
		w.logger.Warn("lost audit event",
			slog.String("kind", kind),
			slog.String("correlation_id", correlationID),
			slog.Any("error", err))
	}
	_ = w.store.InsertEvent(ctx, Event{
		Category:      CategoryMaintenance,
		Severity:      SeverityWarning,
		Title:         "lost audit event",
		Description:   kind + " could not be persisted",
		Details:       map[string]any{"kind": kind, "error": err.Error()},
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
	})
}

func (w *Writer) observe(kind string, ok bool) {
	if w.metrics != nil {
		w.metrics.ObserveAuditWrite(kind, ok)
	}
}
