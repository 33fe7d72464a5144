package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// RedactedValue replaces sensitive values in audit records.
const RedactedValue = "[REDACTED]"

// baselineSensitiveFields are always redacted, regardless of
// configuration. Field matching is case-insensitive.
var baselineSensitiveFields = []string{
	"password",
	"password_hash",
	"token",
	"access_token",
	"refresh_token",
	"secret",
	"api_key",
	"national_id",
	"ssn",
}

// Operation carries the request context for one audited operation.
type Operation struct {
	Kind          OperationKind
	Table         string
	RecordID      string
	Actor         Actor
	TenantID      *int64
	CorrelationID string
	StartedAt     time.Time
	Duration      time.Duration
	Err           error

	// SensitiveFields tags extra field names to redact for this
	// operation only, on top of the configured set.
	SensitiveFields []string
}

// Builder turns before/after state into redacted, diffed audit records.
// It is a total function over well-formed input: no I/O, no domain
// errors, deterministic output for identical input.
type Builder struct {
	sensitive map[string]struct{}
	now       func() time.Time
}

// NewBuilder constructs a builder. extra field names extend the baseline
// sensitive set; keep this list in sync with schema changes, the builder
// cannot redact fields it does not know about.
func NewBuilder(extra []string) *Builder {
	sensitive := make(map[string]struct{}, len(baselineSensitiveFields)+len(extra))
	for _, f := range baselineSensitiveFields {
		sensitive[strings.ToLower(f)] = struct{}{}
	}
	for _, f := range extra {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			sensitive[f] = struct{}{}
		}
	}
	return &Builder{sensitive: sensitive, now: time.Now}
}

// Build computes the audit record for an operation. before is nil for
// creates, after is nil for deletes; on failure after reflects the
// attempted state where available.
func (b *Builder) Build(op Operation, before, after map[string]any) Record {
	occurredAt := op.StartedAt
	if occurredAt.IsZero() {
		occurredAt = b.now()
	}

	rec := Record{
		Operation:     op.Kind,
		Table:         op.Table,
		RecordID:      op.RecordID,
		Actor:         op.Actor,
		TenantID:      op.TenantID,
		CorrelationID: op.CorrelationID,
		OldValues:     b.redact(before, op.SensitiveFields),
		NewValues:     b.redact(after, op.SensitiveFields),
		ChangedFields: changedFields(before, after),
		Success:       op.Err == nil,
		Duration:      op.Duration,
		OccurredAt:    occurredAt.UTC(),
	}
	if op.Err != nil {
		rec.ErrorMessage = op.Err.Error()
	}
	rec.Checksum = checksum(rec)
	return rec
}

// changedFields is the symmetric key-wise diff: a field present in either
// map with a different value is changed, a create-only field is changed,
// a field absent from both is ignored. The result is sorted for
// determinism.
func changedFields(before, after map[string]any) []string {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}
	var changed []string
	for k := range keys {
		oldV, inOld := before[k]
		newV, inNew := after[k]
		if inOld != inNew || !reflect.DeepEqual(oldV, newV) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// redact copies the map with sensitive values replaced. Only the value is
// hidden; the field name stays visible so the changed-field list remains
// meaningful.
func (b *Builder) redact(values map[string]any, extra []string) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		if b.isSensitive(k, extra) {
			out[k] = RedactedValue
			continue
		}
		out[k] = v
	}
	return out
}

func (b *Builder) isSensitive(field string, extra []string) bool {
	lowered := strings.ToLower(field)
	if _, ok := b.sensitive[lowered]; ok {
		return true
	}
	for _, f := range extra {
		if strings.EqualFold(f, field) {
			return true
		}
	}
	return false
}

// checksum fingerprints the record content for tamper evidence. JSON
// marshalling sorts map keys, so the digest is stable for equal records.
func checksum(rec Record) string {
	payload, err := json.Marshal(struct {
		Operation     OperationKind  `json:"operation"`
		Table         string         `json:"table"`
		RecordID      string         `json:"record_id"`
		Actor         Actor          `json:"actor"`
		TenantID      *int64         `json:"tenant_id"`
		CorrelationID string         `json:"correlation_id"`
		OldValues     map[string]any `json:"old_values"`
		NewValues     map[string]any `json:"new_values"`
		ChangedFields []string       `json:"changed_fields"`
		Success       bool           `json:"success"`
		ErrorMessage  string         `json:"error_message"`
		OccurredAt    time.Time      `json:"occurred_at"`
	}{
		rec.Operation, rec.Table, rec.RecordID, rec.Actor, rec.TenantID,
		rec.CorrelationID, rec.OldValues, rec.NewValues, rec.ChangedFields,
		rec.Success, rec.ErrorMessage, rec.OccurredAt,
	})
	if err != nil {
		// Unreachable for map[string]any holding JSON-compatible values;
		// fall back to a marker rather than panic on exotic input.
		return fmt.Sprintf("unhashable:%v", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
