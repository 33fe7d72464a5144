package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/campuscore/campuscore/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit trail persistence tasks.
	QueueAudit = "audit"

	// TaskAuditRecord persists one audit record.
	TaskAuditRecord = "audit:record"
	// TaskAuditAccess persists one data-access record.
	TaskAuditAccess = "audit:access"
	// TaskAuditEvent persists one system event.
	TaskAuditEvent = "audit:event"
	// TaskRetentionSweep purges records past their retention window.
	TaskRetentionSweep = "audit:retention_sweep"
)

// NewAuditRecordTask constructs the task for one audit record.
func NewAuditRecordTask(rec audit.Record) (*asynq.Task, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data), nil
}

// NewAccessRecordTask constructs the task for one data-access record.
func NewAccessRecordTask(rec audit.AccessRecord) (*asynq.Task, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditAccess, data), nil
}

// NewEventTask constructs the task for one system event.
func NewEventTask(ev audit.Event) (*asynq.Task, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditEvent, data), nil
}

// NewRetentionSweepTask constructs the scheduled sweep task.
func NewRetentionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskRetentionSweep, nil)
}
