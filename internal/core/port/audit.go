package port

import "context"

// AuditEntry represents a single auditable question-to-query event.
type AuditEntry struct {
	RequestID    string
	Question     string
	SQL          string
	Valid        bool
	Violations   []string
	RowsReturned int
	DurationMS   int64
	Err          error
}

// QueryAuditor records query audit events.
type QueryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}
