package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
)

// PostgresAccessLogRepo audit_access_log repository (append-only).
// Records who read audit data; same immutability trigger as audit_records.
type PostgresAccessLogRepo struct {
	db *sql.DB
}

func NewPostgresAccessLogRepo(db *sql.DB) *PostgresAccessLogRepo {
	return &PostgresAccessLogRepo{db: db}
}

var _ AccessLogRepo = (*PostgresAccessLogRepo)(nil)

func (r *PostgresAccessLogRepo) InsertEntry(ctx context.Context, e *domain.AuditAccessLogEntry) (string, error) {
	if e.ActorID == "" || e.ActorRole == "" {
		return "", fmt.Errorf("access log entry requires actor_id and actor_role")
	}
	if e.AccessType != domain.AccessAllowed && e.AccessType != domain.AccessDenied {
		return "", fmt.Errorf("invalid access_type %q", e.AccessType)
	}

	e.EntryID = uuid.NewString()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = domain.ChecksumTime(e.CreatedAt)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_access_log (
			entry_id, tenant_id, actor_id, actor_role,
			access_type, scope_accessed, filters_applied, results_count,
			ip_address, user_agent, request_id, created_at
		) VALUES (
			$1::uuid, NULLIF($2, '')::uuid, $3::uuid, $4,
			$5, NULLIF($6, ''), $7, $8,
			NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12
		)`,
		e.EntryID, e.TenantID, e.ActorID, e.ActorRole,
		string(e.AccessType), string(e.ScopeAccessed), e.FiltersApplied, e.ResultsCount,
		e.IPAddress, e.UserAgent, e.RequestID, e.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert access log entry: %w", mapImmutableErr(err))
	}
	return e.EntryID, nil
}

func (r *PostgresAccessLogRepo) QueryEntries(ctx context.Context, tenantID string, page, size int) ([]*domain.AuditAccessLogEntry, int, error) {
	where := ""
	args := []any{}
	if tenantID != "" {
		args = append(args, tenantID)
		where = ` WHERE tenant_id = $1::uuid`
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_access_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count access log: %w", err)
	}

	page, size = normalizePage(page, size)
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			entry_id::text,
			tenant_id::text,
			actor_id::text,
			actor_role,
			access_type,
			COALESCE(scope_accessed, '') as scope_accessed,
			COALESCE(filters_applied, '') as filters_applied,
			results_count,
			COALESCE(ip_address, '') as ip_address,
			COALESCE(user_agent, '') as user_agent,
			COALESCE(request_id, '') as request_id,
			created_at
		FROM audit_access_log`+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, size, (page-1)*size),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query access log: %w", err)
	}
	defer rows.Close()

	entries := []*domain.AuditAccessLogEntry{}
	for rows.Next() {
		var e domain.AuditAccessLogEntry
		var tid sql.NullString
		var accessType, scope string
		if err := rows.Scan(
			&e.EntryID, &tid, &e.ActorID, &e.ActorRole,
			&accessType, &scope, &e.FiltersApplied, &e.ResultsCount,
			&e.IPAddress, &e.UserAgent, &e.RequestID, &e.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan access log entry: %w", err)
		}
		e.TenantID = tid.String
		e.AccessType = domain.AccessType(accessType)
		e.ScopeAccessed = domain.Scope(scope)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
