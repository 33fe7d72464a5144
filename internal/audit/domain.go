package audit

import "time"

// OperationKind classifies an audited operation.
type OperationKind string

// Operation kinds.
const (
	OpCreate OperationKind = "CREATE"
	OpUpdate OperationKind = "UPDATE"
	OpDelete OperationKind = "DELETE"
	OpLogin  OperationKind = "LOGIN"
	OpLogout OperationKind = "LOGOUT"
	OpAccess OperationKind = "ACCESS"
)

// AccessType classifies a read-path access.
type AccessType string

// Access types.
const (
	AccessRead   AccessType = "READ"
	AccessList   AccessType = "LIST"
	AccessExport AccessType = "EXPORT"
)

// Category classifies a system event.
type Category string

// Event categories.
const (
	CategorySecurity    Category = "SECURITY"
	CategoryAdmin       Category = "ADMIN"
	CategoryMaintenance Category = "MAINTENANCE"
)

// Severity grades a system event.
type Severity string

// Event severities.
const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Actor is the snapshot of who performed an operation, resolved at the
// time of the operation so later role changes do not rewrite history.
type Actor struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Record is one immutable audit trail entry. Old and new values are
// redacted before the record leaves the builder.
type Record struct {
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
	Duration      time.Duration  `json:"duration"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Checksum      string         `json:"checksum"`
}

// AccessRecord is the read-path analogue of Record. RecordID is nil for
// bulk reads.
type AccessRecord struct {
	Table         string     `json:"table"`
	RecordID      *string    `json:"record_id"`
	AccessType    AccessType `json:"access_type"`
	RowCount      int64      `json:"row_count"`
	Purpose       string     `json:"purpose"`
	Actor         Actor      `json:"actor"`
	TenantID      *int64     `json:"tenant_id"`
	CorrelationID string     `json:"correlation_id"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// Event captures a cross-cutting notable occurrence, e.g. a write to a
// sensitive table or a bulk operation.
type Event struct {
	Category      Category       `json:"category"`
	Severity      Severity       `json:"severity"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Details       map[string]any `json:"details"`
	CorrelationID string         `json:"correlation_id"`
	OccurredAt    time.Time      `json:"occurred_at"`
}
