package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
)

// setupRegexpMockDB uses sqlmock's default regexp matcher; the audit queries
// span multiple lines, so exact-string matching is impractical here.
func setupRegexpMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func sampleRecord() *domain.AuditRecord {
	return &domain.AuditRecord{
		TenantID:     tenantA,
		ActorID:      userA,
		ActorRole:    domain.RoleTenantAdmin,
		ActionType:   domain.ActionUpdate,
		ActionScope:  domain.ScopeTenant,
		ResourceType: "student",
		ResourceID:   "s1",
		BeforeState:  json.RawMessage(`{"grade":2}`),
		AfterState:   json.RawMessage(`{"grade":3}`),
		IPAddress:    "10.0.0.1",
		UserAgent:    "test-agent",
		RequestID:    "req-1",
		CreatedAt:    time.Date(2026, 3, 15, 9, 30, 0, 123456789, time.UTC),
	}
}

func TestInsertRecord(t *testing.T) {
	db, mock := setupRegexpMockDB(t)
	repo := NewPostgresAuditRepo(db)
	rec := sampleRecord()

	mock.ExpectExec(`INSERT INTO audit_records`).
		WithArgs(
			sqlmock.AnyArg(), // record_id, generated
			tenantA, userA, domain.RoleTenantAdmin,
			domain.ActionUpdate, "TENANT", "student", "s1",
			[]byte(`{"grade":2}`), []byte(`{"grade":3}`), "",
			"10.0.0.1", "test-agent", "req-1",
			sqlmock.AnyArg(), // checksum, computed below and verified after
			domain.ChecksumTime(rec.CreatedAt),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := repo.InsertRecord(context.Background(), rec)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err, "generated record id must be a uuid")
	assert.Equal(t, id, rec.RecordID)

	// the stored checksum must cover the final field values
	want, err := domain.ComputeChecksum(rec)
	require.NoError(t, err)
	assert.Equal(t, want, rec.Checksum)
	assert.Regexp(t, regexp.MustCompile(`^sha256:[0-9a-f]{64}$`), rec.Checksum)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecord_Validation(t *testing.T) {
	db, _ := setupRegexpMockDB(t)
	repo := NewPostgresAuditRepo(db)

	t.Run("tenant required outside GLOBAL", func(t *testing.T) {
		rec := sampleRecord()
		rec.TenantID = ""
		_, err := repo.InsertRecord(context.Background(), rec)
		assert.True(t, errors.Is(err, domain.ErrMissingTenantID))
	})

	t.Run("unknown scope", func(t *testing.T) {
		rec := sampleRecord()
		rec.ActionScope = "EVERYTHING"
		_, err := repo.InsertRecord(context.Background(), rec)
		assert.Error(t, err)
	})

	t.Run("user role cannot write GLOBAL", func(t *testing.T) {
		rec := sampleRecord()
		rec.ActorRole = domain.RoleUser
		rec.ActionScope = domain.ScopeGlobal
		rec.TenantID = ""
		_, err := repo.InsertRecord(context.Background(), rec)
		assert.True(t, errors.Is(err, domain.ErrAccessDenied))
	})

	t.Run("destructive action needs justification", func(t *testing.T) {
		for _, action := range []string{domain.ActionDelete, domain.ActionPermissionChange, domain.ActionExport} {
			rec := sampleRecord()
			rec.ActionType = action
			rec.Justification = ""
			_, err := repo.InsertRecord(context.Background(), rec)
			assert.Error(t, err, "action %s", action)
		}
	})
}

func TestInsertRecord_GlobalWithoutTenant(t *testing.T) {
	db, mock := setupRegexpMockDB(t)
	repo := NewPostgresAuditRepo(db)

	rec := sampleRecord()
	rec.TenantID = ""
	rec.ActorRole = domain.RoleSuperadmin
	rec.ActionScope = domain.ScopeGlobal

	mock.ExpectExec(`INSERT INTO audit_records`).
		WithArgs(
			sqlmock.AnyArg(),
			"", userA, domain.RoleSuperadmin,
			domain.ActionUpdate, "GLOBAL", "student", "s1",
			[]byte(`{"grade":2}`), []byte(`{"grade":3}`), "",
			"10.0.0.1", "test-agent", "req-1",
			sqlmock.AnyArg(), domain.ChecksumTime(rec.CreatedAt),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := repo.InsertRecord(context.Background(), rec)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapImmutableErr(t *testing.T) {
	guard := &pq.Error{
		Code:    "P0001",
		Message: "audit storage is immutable: UPDATE on audit_records rejected",
	}
	assert.True(t, errors.Is(mapImmutableErr(guard), domain.ErrImmutabilityViolation))

	// unrelated P0001 from some other routine keeps its identity
	other := &pq.Error{Code: "P0001", Message: "quota exceeded"}
	assert.False(t, errors.Is(mapImmutableErr(other), domain.ErrImmutabilityViolation))

	unique := &pq.Error{Code: "23505", Message: "duplicate key value"}
	assert.False(t, errors.Is(mapImmutableErr(unique), domain.ErrImmutabilityViolation))

	assert.NoError(t, mapImmutableErr(nil))
}

func TestInsertRecord_GuardRejection(t *testing.T) {
	db, mock := setupRegexpMockDB(t)
	repo := NewPostgresAuditRepo(db)

	mock.ExpectExec(`INSERT INTO audit_records`).
		WillReturnError(&pq.Error{
			Code:    "P0001",
			Message: "audit storage is immutable: INSERT on audit_records rejected",
		})

	_, err := repo.InsertRecord(context.Background(), sampleRecord())
	assert.True(t, errors.Is(err, domain.ErrImmutabilityViolation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func auditRows(recs ...*domain.AuditRecord) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"record_id", "tenant_id", "actor_id", "actor_role",
		"action_type", "action_scope", "resource_type", "resource_id",
		"before_state", "after_state", "justification",
		"ip_address", "user_agent", "request_id",
		"checksum", "created_at",
	})
	for _, r := range recs {
		var tenantID any
		if r.TenantID != "" {
			tenantID = r.TenantID
		}
		rows.AddRow(
			r.RecordID, tenantID, r.ActorID, r.ActorRole,
			r.ActionType, string(r.ActionScope), r.ResourceType, r.ResourceID,
			[]byte(r.BeforeState), []byte(r.AfterState), r.Justification,
			r.IPAddress, r.UserAgent, r.RequestID,
			r.Checksum, r.CreatedAt,
		)
	}
	return rows
}

func TestGetRecord(t *testing.T) {
	db, mock := setupRegexpMockDB(t)
	repo := NewPostgresAuditRepo(db)

	stored := sampleRecord()
	stored.RecordID = uuid.NewString()
	stored.CreatedAt = domain.ChecksumTime(stored.CreatedAt)
	stored.Checksum = "sha256:deadbeef"

	mock.ExpectQuery(`SELECT (.+) FROM audit_records WHERE record_id = \$1::uuid`).
		WithArgs(stored.RecordID).
		WillReturnRows(auditRows(stored))

	got, err := repo.GetRecord(context.Background(), stored.RecordID)
	require.NoError(t, err)
	assert.Equal(t, stored.RecordID, got.RecordID)
	assert.Equal(t, tenantA, got.TenantID)
	assert.Equal(t, domain.ScopeTenant, got.ActionScope)
	assert.JSONEq(t, `{"grade":3}`, string(got.AfterState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecord_NotFound(t *testing.T) {
	db, mock := setupRegexpMockDB(t)
	repo := NewPostgresAuditRepo(db)

	mock.ExpectQuery(`SELECT (.+) FROM audit_records WHERE record_id = \$1::uuid`).
		WithArgs("00000000-0000-0000-0000-000000000000").
		WillReturnRows(auditRows())

	_, err := repo.GetRecord(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestQueryRecords_TenantAdminPredicate(t *testing.T) {
	db, mock := setupRegexpMockDB(t)
	repo := NewPostgresAuditRepo(db)

	actor := AuditActor{UserID: userA, TenantID: tenantA, Role: domain.RoleTenantAdmin}

	stored := sampleRecord()
	stored.RecordID = uuid.NewString()

	// access predicate args first, then the caller's narrowing filter
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_records WHERE action_scope IN \(\$1, \$2\) AND tenant_id = \$3 AND action_type = \$4`).
		WithArgs("TENANT", "USER", tenantA, domain.ActionUpdate).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT (.+) FROM audit_records WHERE action_scope IN \(\$1, \$2\) AND tenant_id = \$3 AND action_type = \$4 ORDER BY created_at DESC LIMIT 50 OFFSET 0`).
		WithArgs("TENANT", "USER", tenantA, domain.ActionUpdate).
		WillReturnRows(auditRows(stored))

	recs, total, err := repo.QueryRecords(context.Background(), actor,
		domain.AuditFilters{ActionType: domain.ActionUpdate})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, recs, 1)
	assert.Equal(t, stored.RecordID, recs[0].RecordID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRecords_UserPredicate(t *testing.T) {
	db, mock := setupRegexpMockDB(t)
	repo := NewPostgresAuditRepo(db)

	actor := AuditActor{UserID: userA, TenantID: tenantA, Role: domain.RoleUser}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_records WHERE action_scope = \$1 AND actor_id = \$2`).
		WithArgs("USER", userA).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT (.+) FROM audit_records WHERE action_scope = \$1 AND actor_id = \$2 ORDER BY created_at DESC LIMIT 50 OFFSET 0`).
		WithArgs("USER", userA).
		WillReturnRows(auditRows())

	recs, total, err := repo.QueryRecords(context.Background(), actor, domain.AuditFilters{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, recs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRecords_DeniedScopeNeverHitsDB(t *testing.T) {
	db, mock := setupRegexpMockDB(t)
	repo := NewPostgresAuditRepo(db)

	actor := AuditActor{UserID: userA, TenantID: tenantA, Role: domain.RoleTenantAdmin}
	_, _, err := repo.QueryRecords(context.Background(), actor,
		domain.AuditFilters{Scope: domain.ScopeGlobal})
	assert.True(t, errors.Is(err, domain.ErrAccessDenied))
	assert.NoError(t, mock.ExpectationsWereMet(), "no statement may reach the database")
}

func TestQueryRecords_Pagination(t *testing.T) {
	db, mock := setupRegexpMockDB(t)
	repo := NewPostgresAuditRepo(db)

	actor := AuditActor{UserID: userA, TenantID: tenantA, Role: domain.RoleSuperadmin}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_records`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(120))
	mock.ExpectQuery(`ORDER BY created_at DESC LIMIT 20 OFFSET 40`).
		WillReturnRows(auditRows())

	_, total, err := repo.QueryRecords(context.Background(), actor,
		domain.AuditFilters{Page: 3, Size: 20})
	require.NoError(t, err)
	assert.Equal(t, 120, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecordsSince(t *testing.T) {
	db, mock := setupRegexpMockDB(t)
	repo := NewPostgresAuditRepo(db)

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	stored := sampleRecord()
	stored.RecordID = uuid.NewString()

	mock.ExpectQuery(`SELECT (.+) FROM audit_records WHERE created_at >= \$1 ORDER BY created_at ASC LIMIT \$2`).
		WithArgs(since, 500).
		WillReturnRows(auditRows(stored))

	recs, err := repo.ListRecordsSince(context.Background(), since, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizePage(t *testing.T) {
	page, size := normalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, 50, size)

	_, size = normalizePage(1, 9000)
	assert.Equal(t, 500, size)
}
