package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo provides PostgreSQL backed persistence for the audit trail.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo constructs a repository.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// InsertRecord appends one audit record.
func (r *Repo) InsertRecord(ctx context.Context, rec Record) error {
	oldJSON, err := json.Marshal(rec.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(rec.NewValues)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_records (
			operation, table_name, record_id,
			actor_id, actor_email, actor_role,
			tenant_id, correlation_id,
			old_values, new_values, changed_fields,
			success, error_message, duration_ms, checksum, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		rec.Operation, rec.Table, rec.RecordID,
		rec.Actor.ID, rec.Actor.Email, rec.Actor.Role,
		rec.TenantID, rec.CorrelationID,
		oldJSON, newJSON, rec.ChangedFields,
		rec.Success, rec.ErrorMessage, rec.Duration.Milliseconds(), rec.Checksum, rec.OccurredAt,
	)
	return err
}

// InsertAccessRecord appends one data-access record.
func (r *Repo) InsertAccessRecord(ctx context.Context, rec AccessRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO data_access_records (
			table_name, record_id, access_type, row_count, purpose,
			actor_id, actor_email, actor_role,
			tenant_id, correlation_id, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rec.Table, rec.RecordID, rec.AccessType, rec.RowCount, rec.Purpose,
		rec.Actor.ID, rec.Actor.Email, rec.Actor.Role,
		rec.TenantID, rec.CorrelationID, rec.OccurredAt,
	)
	return err
}

// InsertEvent appends one system event.
func (r *Repo) InsertEvent(ctx context.Context, ev Event) error {
	detailsJSON, err := json.Marshal(ev.Details)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO system_events (
			category, severity, title, description, details,
			correlation_id, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ev.Category, ev.Severity, ev.Title, ev.Description, detailsJSON,
		ev.CorrelationID, ev.OccurredAt,
	)
	return err
}

// DeleteRecordsBefore removes audit records older than the cutoff. The
// predicate is age-only so concurrent inserts never race with the sweep.
func (r *Repo) DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_records WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteAccessRecordsBefore removes data-access records older than the cutoff.
func (r *Repo) DeleteAccessRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM data_access_records WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteEventsBefore removes system events older than the cutoff.
func (r *Repo) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM system_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
