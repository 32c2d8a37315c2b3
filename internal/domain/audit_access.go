package domain

import "time"

// AccessType outcome of an audit-trail read attempt.
type AccessType string

const (
	AccessAllowed AccessType = "read-allowed"
	AccessDenied  AccessType = "read-denied"
)

// AuditAccessLogEntry records a read of audit data (audit_access_log table):
// who looked at what audit data, when, and how many results they got.
// It stores the applied filters and the result count, never the audited
// payload itself. Same storage immutability discipline as AuditRecord.
type AuditAccessLogEntry struct {
	EntryID   string `db:"entry_id"`  // UUID, PRIMARY KEY, generated
	TenantID  string `db:"tenant_id"` // UUID, nullable for superadmin global reads
	ActorID   string `db:"actor_id"`  // UUID, NOT NULL
	ActorRole string `db:"actor_role"`

	AccessType    AccessType `db:"access_type"` // read-allowed / read-denied
	ScopeAccessed Scope      `db:"scope_accessed"`
	// FiltersApplied compact serialization of the effective filters,
	// e.g. "actor_id=...;action_type=...". Reconstructable, not replayable.
	FiltersApplied string `db:"filters_applied"`
	ResultsCount   int    `db:"results_count"`

	IPAddress string    `db:"ip_address"`
	UserAgent string    `db:"user_agent"`
	RequestID string    `db:"request_id"`
	CreatedAt time.Time `db:"created_at"`
}
