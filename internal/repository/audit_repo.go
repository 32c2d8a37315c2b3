package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
)

// AuditActor the caller identity driving the access filter of an audit
// query: role decides the mandatory predicate, user/tenant bind it.
type AuditActor struct {
	UserID   string
	TenantID string
	Role     string
}

// AuditRepo append-only access to audit_records.
// There are deliberately no update or delete methods: the table is
// append-only at the storage layer (trigger), and this interface is the
// application-level half of the same invariant.
type AuditRepo interface {
	// ========== write (append only) ==========
	// InsertRecord persists one record, computing the checksum at write
	// time. Returns the generated record id.
	InsertRecord(ctx context.Context, rec *domain.AuditRecord) (string, error)

	// InsertRecordTx same as InsertRecord inside an open transaction, so a
	// business mutation and its audit record commit together.
	InsertRecordTx(ctx context.Context, tx *sql.Tx, rec *domain.AuditRecord) (string, error)

	// ========== read ==========
	// GetRecord fetches a single record with no access filtering; callers
	// go through the service layer which applies it.
	GetRecord(ctx context.Context, recordID string) (*domain.AuditRecord, error)

	// QueryRecords applies the actor's mandatory access filter, then the
	// caller filters, and returns a page plus the total match count.
	QueryRecords(ctx context.Context, actor AuditActor, filters domain.AuditFilters) ([]*domain.AuditRecord, int, error)

	// ListRecordsSince returns records created at/after since, oldest
	// first, for the integrity sweep.
	ListRecordsSince(ctx context.Context, since time.Time, limit int) ([]*domain.AuditRecord, error)
}

// AccessLogRepo append-only access to audit_access_log.
type AccessLogRepo interface {
	InsertEntry(ctx context.Context, e *domain.AuditAccessLogEntry) (string, error)

	// QueryEntries superadmin read surface; optional tenant filter.
	QueryEntries(ctx context.Context, tenantID string, page, size int) ([]*domain.AuditAccessLogEntry, int, error)
}
