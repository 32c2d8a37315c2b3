package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seahkrah/SmartAttend-sub012/internal/config"
	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
	"github.com/seahkrah/SmartAttend-sub012/internal/repository"
	"github.com/seahkrah/SmartAttend-sub012/internal/service"
	"github.com/seahkrah/SmartAttend-sub012/internal/store"
	"github.com/seahkrah/SmartAttend-sub012/internal/tenant"
)

const studentID = "33333333-3333-3333-3333-333333333333"

// studentsEnv wires the students handler over a sqlmock database, with the
// real audit repository on the same connection so the audit INSERT runs in
// the same mocked transaction as the mutation.
type studentsEnv struct {
	server   *httptest.Server
	mock     sqlmock.Sqlmock
	sessions *store.SessionStore
}

func newStudentsEnv(t *testing.T) *studentsEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zap.NewNop()
	sessions := store.NewSessionStore(store.NewRedisKV(client), "smartattend:session:", time.Hour)
	scoped := repository.NewScopedDB(db, tenant.DefaultRegistry())
	incidents := service.NewIncidentClient(config.IncidentConfig{Timeout: time.Second}, logger)
	audit := service.NewAuditService(
		repository.NewPostgresAuditRepo(db),
		repository.NewPostgresAccessLogRepo(db),
		incidents, logger)
	auth := NewAuthContext(sessions, tenant.NewResolver(), logger)

	router := NewRouter(logger)
	router.RegisterStudentRoutes(NewStudentsHandler(db, scoped, audit, auth, logger))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &studentsEnv{server: srv, mock: mock, sessions: sessions}
}

func (e *studentsEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	token, err := e.sessions.Seed(context.Background(), store.Session{
		UserID: userA, TenantID: tenantA, Role: domain.RoleTenantAdmin,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func studentRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"student_id", "tenant_id", "full_name", "email", "status", "created_at", "updated_at",
	}).AddRow(studentID, tenantA, "Alice", "alice@example.edu", "active",
		time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC), time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
}

func TestStudents_Delete_MutationAndAuditCommitTogether(t *testing.T) {
	env := newStudentsEnv(t)

	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`SELECT (.+) FROM students WHERE tenant_id = \$1 AND \(student_id = \$2::uuid\)`).
		WithArgs(tenantA, studentID).
		WillReturnRows(studentRow())
	env.mock.ExpectExec(`DELETE FROM students WHERE tenant_id = \$1 AND \(student_id = \$2::uuid\)`).
		WithArgs(tenantA, studentID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`INSERT INTO audit_records`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	resp := env.do(t, http.MethodDelete,
		"/admin/api/v1/students/"+studentID+"?justification=withdrawn+enrollment", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestStudents_Delete_RequiresJustification(t *testing.T) {
	env := newStudentsEnv(t)

	resp := env.do(t, http.MethodDelete, "/admin/api/v1/students/"+studentID, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NoError(t, env.mock.ExpectationsWereMet(), "no statement may run without a justification")
}

func TestStudents_Delete_AuditFailureRollsBack(t *testing.T) {
	env := newStudentsEnv(t)

	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`SELECT (.+) FROM students`).
		WillReturnRows(studentRow())
	env.mock.ExpectExec(`DELETE FROM students`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`INSERT INTO audit_records`).
		WillReturnError(errors.New("connection reset"))
	env.mock.ExpectRollback()

	resp := env.do(t, http.MethodDelete,
		"/admin/api/v1/students/"+studentID+"?justification=cleanup", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestStudents_Create_RereadsByReturnedPrimaryKey(t *testing.T) {
	env := newStudentsEnv(t)

	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`INSERT INTO students \(email, full_name, status, tenant_id\) VALUES \(\$1, \$2, \$3, \$4\) RETURNING student_id::text`).
		WithArgs("alice@example.edu", "Alice", "active", tenantA).
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow(studentID))
	// the after-state is fetched by the returned id, so duplicate
	// name/email rows in the tenant cannot break or misattribute the create
	env.mock.ExpectQuery(`SELECT (.+) FROM students WHERE tenant_id = \$1 AND \(student_id = \$2::uuid\)`).
		WithArgs(tenantA, studentID).
		WillReturnRows(studentRow())
	env.mock.ExpectExec(`INSERT INTO audit_records`).
		WithArgs(
			sqlmock.AnyArg(), tenantA, userA, domain.RoleTenantAdmin,
			domain.ActionCreate, "TENANT", "students", studentID,
			sqlmock.AnyArg(), sqlmock.AnyArg(), // before/after snapshots
			"", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	resp := env.do(t, http.MethodPost, "/admin/api/v1/students", map[string]string{
		"full_name": "Alice",
		"email":     "alice@example.edu",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestStudents_Create_RejectsForeignTenantInBody(t *testing.T) {
	env := newStudentsEnv(t)

	resp := env.do(t, http.MethodPost, "/admin/api/v1/students", map[string]string{
		"tenant_id": tenantB,
		"full_name": "Mallory",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.NoError(t, env.mock.ExpectationsWereMet(), "cross-tenant body must be rejected before any SQL")
}

func TestStudents_Update_CapturesBeforeAndAfter(t *testing.T) {
	env := newStudentsEnv(t)

	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`SELECT (.+) FROM students WHERE tenant_id = \$1 AND \(student_id = \$2::uuid\)`).
		WillReturnRows(studentRow())
	env.mock.ExpectExec(`UPDATE students SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectQuery(`SELECT (.+) FROM students WHERE tenant_id = \$1 AND \(student_id = \$2::uuid\)`).
		WillReturnRows(studentRow())
	env.mock.ExpectExec(`INSERT INTO audit_records`).
		WithArgs(
			sqlmock.AnyArg(), tenantA, userA, domain.RoleTenantAdmin,
			domain.ActionUpdate, "TENANT", "students", studentID,
			sqlmock.AnyArg(), sqlmock.AnyArg(), // before/after snapshots
			"", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	resp := env.do(t, http.MethodPut, "/admin/api/v1/students/"+studentID,
		map[string]string{"status": "suspended"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestStudents_Get_NotFound(t *testing.T) {
	env := newStudentsEnv(t)

	env.mock.ExpectQuery(`SELECT (.+) FROM students WHERE tenant_id = \$1 AND \(student_id = \$2::uuid\)`).
		WithArgs(tenantA, "44444444-4444-4444-4444-444444444444").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}))

	resp := env.do(t, http.MethodGet, "/admin/api/v1/students/44444444-4444-4444-4444-444444444444", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStudents_List(t *testing.T) {
	env := newStudentsEnv(t)

	env.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM students WHERE tenant_id = \$1`).
		WithArgs(tenantA).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	env.mock.ExpectQuery(`SELECT (.+) FROM students WHERE tenant_id = \$1 ORDER BY created_at DESC LIMIT 50`).
		WithArgs(tenantA).
		WillReturnRows(studentRow())

	resp := env.do(t, http.MethodGet, "/admin/api/v1/students", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out Result[PagedResult[map[string]any]]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, ResultSuccess, out.Code)
	assert.Equal(t, 1, out.Result.Total)
	require.Len(t, out.Result.Items, 1)
	assert.Equal(t, "Alice", out.Result.Items[0]["full_name"])
}
