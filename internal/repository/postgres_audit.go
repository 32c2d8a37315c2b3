package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seahkrah/SmartAttend-sub012/internal/authz"
	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
)

// PostgresAuditRepo audit_records repository (append-only).
type PostgresAuditRepo struct {
	db *sql.DB
}

func NewPostgresAuditRepo(db *sql.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

var _ AuditRepo = (*PostgresAuditRepo)(nil)

const auditColumns = `
	record_id::text,
	tenant_id::text,
	actor_id::text,
	actor_role,
	action_type,
	action_scope,
	resource_type,
	COALESCE(resource_id, '') as resource_id,
	before_state,
	after_state,
	COALESCE(justification, '') as justification,
	COALESCE(ip_address, '') as ip_address,
	COALESCE(user_agent, '') as user_agent,
	COALESCE(request_id, '') as request_id,
	checksum,
	created_at`

func (r *PostgresAuditRepo) InsertRecord(ctx context.Context, rec *domain.AuditRecord) (string, error) {
	return insertAuditRecord(ctx, r.db, rec)
}

func (r *PostgresAuditRepo) InsertRecordTx(ctx context.Context, tx *sql.Tx, rec *domain.AuditRecord) (string, error) {
	return insertAuditRecord(ctx, tx, rec)
}

// insertAuditRecord validates the event, stamps id/created_at, computes the
// checksum over the final field values and appends the row.
func insertAuditRecord(ctx context.Context, ex executor, rec *domain.AuditRecord) (string, error) {
	if rec.TenantID == "" && rec.ActionScope != domain.ScopeGlobal {
		return "", fmt.Errorf("audit record without tenant_id: %w", domain.ErrMissingTenantID)
	}
	if rec.ActorID == "" || rec.ActorRole == "" {
		return "", fmt.Errorf("audit record requires actor_id and actor_role")
	}
	if rec.ActionType == "" || rec.ResourceType == "" {
		return "", fmt.Errorf("audit record requires action_type and resource_type")
	}
	if !domain.ValidScope(rec.ActionScope) {
		return "", fmt.Errorf("invalid action_scope %q", rec.ActionScope)
	}
	if domain.JustificationRequired(rec.ActionType) && rec.Justification == "" {
		return "", fmt.Errorf("action_type %s requires a justification", rec.ActionType)
	}
	// Role/scope consistency mirrors the storage CHECK constraint; reject
	// here first so the caller gets a useful error instead of a pq one.
	if rec.ActorRole == domain.RoleUser && rec.ActionScope == domain.ScopeGlobal {
		return "", fmt.Errorf("role %s cannot produce %s-scope records: %w",
			rec.ActorRole, rec.ActionScope, domain.ErrAccessDenied)
	}

	rec.RecordID = uuid.NewString()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = domain.ChecksumTime(rec.CreatedAt)

	checksum, err := domain.ComputeChecksum(rec)
	if err != nil {
		return "", fmt.Errorf("failed to compute checksum: %w", err)
	}
	rec.Checksum = checksum

	_, err = ex.ExecContext(ctx, `
		INSERT INTO audit_records (
			record_id, tenant_id, actor_id, actor_role,
			action_type, action_scope, resource_type, resource_id,
			before_state, after_state, justification,
			ip_address, user_agent, request_id,
			checksum, created_at
		) VALUES (
			$1::uuid, NULLIF($2, '')::uuid, $3::uuid, $4,
			$5, $6, $7, NULLIF($8, ''),
			$9, $10, NULLIF($11, ''),
			NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''),
			$15, $16
		)`,
		rec.RecordID, rec.TenantID, rec.ActorID, rec.ActorRole,
		rec.ActionType, string(rec.ActionScope), rec.ResourceType, rec.ResourceID,
		nullableJSON(rec.BeforeState), nullableJSON(rec.AfterState), rec.Justification,
		rec.IPAddress, rec.UserAgent, rec.RequestID,
		rec.Checksum, rec.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert audit record: %w", mapImmutableErr(err))
	}
	return rec.RecordID, nil
}

func (r *PostgresAuditRepo) GetRecord(ctx context.Context, recordID string) (*domain.AuditRecord, error) {
	if recordID == "" {
		return nil, fmt.Errorf("record_id is required")
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM audit_records WHERE record_id = $1::uuid`, recordID)
	rec, err := scanAuditRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("audit record not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}
	return rec, nil
}

func (r *PostgresAuditRepo) QueryRecords(ctx context.Context, actor AuditActor, filters domain.AuditFilters) ([]*domain.AuditRecord, int, error) {
	// Mandatory access predicate first; caller filters can only narrow it.
	where := ""
	args := []any{}
	if err := authz.ApplyAccessFilter(&where, &args,
		actor.Role, actor.UserID, actor.TenantID, filters.Scope, "", true); err != nil {
		return nil, 0, err
	}

	and := func(cond string, v any) {
		args = append(args, v)
		c := fmt.Sprintf(cond, len(args))
		if where == "" {
			where = ` WHERE ` + c
		} else {
			where += ` AND ` + c
		}
	}
	if filters.ActorID != "" {
		and(`actor_id = $%d::uuid`, filters.ActorID)
	}
	if filters.ActionType != "" {
		and(`action_type = $%d`, filters.ActionType)
	}
	if filters.ResourceType != "" {
		and(`resource_type = $%d`, filters.ResourceType)
	}
	if filters.ResourceID != "" {
		and(`resource_id = $%d`, filters.ResourceID)
	}
	if !filters.Since.IsZero() {
		and(`created_at >= $%d`, filters.Since)
	}
	if !filters.Until.IsZero() {
		and(`created_at < $%d`, filters.Until)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit records: %w", err)
	}

	page, size := normalizePage(filters.Page, filters.Size)
	query := `SELECT ` + auditColumns + ` FROM audit_records` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	records := []*domain.AuditRecord{}
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *PostgresAuditRepo) ListRecordsSince(ctx context.Context, since time.Time, limit int) ([]*domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_records
		 WHERE created_at >= $1
		 ORDER BY created_at ASC
		 LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	records := []*domain.AuditRecord{}
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAuditRecord(s scanner) (*domain.AuditRecord, error) {
	var rec domain.AuditRecord
	var tenantID sql.NullString
	var before, after []byte
	var scope string
	if err := s.Scan(
		&rec.RecordID,
		&tenantID,
		&rec.ActorID,
		&rec.ActorRole,
		&rec.ActionType,
		&scope,
		&rec.ResourceType,
		&rec.ResourceID,
		&before,
		&after,
		&rec.Justification,
		&rec.IPAddress,
		&rec.UserAgent,
		&rec.RequestID,
		&rec.Checksum,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.TenantID = tenantID.String
	rec.ActionScope = domain.Scope(scope)
	if len(before) > 0 {
		rec.BeforeState = json.RawMessage(before)
	}
	if len(after) > 0 {
		rec.AfterState = json.RawMessage(after)
	}
	return &rec, nil
}

// nullableJSON passes nil for absent snapshots so the column stays NULL
// instead of storing the string "null".
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	if size > 500 {
		size = 500
	}
	return page, size
}
