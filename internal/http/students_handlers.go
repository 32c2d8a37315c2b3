package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
	"github.com/seahkrah/SmartAttend-sub012/internal/repository"
	"github.com/seahkrah/SmartAttend-sub012/internal/service"
)

// StudentsHandler the canonical consumer of the scoped data layer and the
// audit writer. Every mutation runs inside one transaction with its audit
// record: the state change and the trail entry commit or roll back
// together, so a crash can never leave an unaudited mutation behind.
// Before/after snapshots are captured explicitly around the mutation.
type StudentsHandler struct {
	db     *sql.DB
	scoped *repository.ScopedDB
	audit  *service.AuditService
	auth   *AuthContext
	logger *zap.Logger
}

func NewStudentsHandler(db *sql.DB, scoped *repository.ScopedDB, audit *service.AuditService,
	auth *AuthContext, logger *zap.Logger) *StudentsHandler {
	return &StudentsHandler{db: db, scoped: scoped, audit: audit, auth: auth, logger: logger}
}

const studentsBase = "/admin/api/v1/students"

var studentColumns = []string{"student_id", "tenant_id", "full_name", "email", "status", "created_at", "updated_at"}

func (h *StudentsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, studentsBase)
	path = strings.TrimPrefix(path, "/")

	switch {
	case path == "" && r.Method == http.MethodGet:
		h.List(w, r)
	case path == "" && r.Method == http.MethodPost:
		h.Create(w, r)
	case path != "" && !strings.Contains(path, "/"):
		switch r.Method {
		case http.MethodGet:
			h.Get(w, r, path)
		case http.MethodPut:
			h.Update(w, r, path)
		case http.MethodDelete:
			h.Delete(w, r, path)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	tctx, ok := h.auth.Require(w, r)
	if !ok {
		return
	}
	q, err := h.scoped.Table("students")
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	sq := q.ForTenant(tctx)

	where, args := "", []any{}
	if status := r.URL.Query().Get("status"); status != "" {
		where, args = "status = ?", []any{status}
	}

	total, err := sq.Count(r.Context(), where, args)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	page := parseInt(r.URL.Query().Get("page"), 1)
	size := parseInt(r.URL.Query().Get("size"), 50)
	if page < 1 {
		page = 1
	}
	rows, err := sq.Select(r.Context(), studentColumns, where, args,
		repository.WithOrderBy("created_at", "DESC"),
		repository.WithLimit(size), repository.WithOffset((page-1)*size))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(PagedResult[map[string]any]{
		Items: rows, Total: total, Page: page, Size: size,
	}))
}

func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request, studentID string) {
	tctx, ok := h.auth.Require(w, r)
	if !ok {
		return
	}
	q, err := h.scoped.Table("students")
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	row, err := q.ForTenant(tctx).SelectOne(r.Context(), studentColumns, "student_id = ?::uuid", []any{studentID})
	if err != nil {
		if strings.Contains(err.Error(), sql.ErrNoRows.Error()) {
			writeJSON(w, http.StatusNotFound, Fail("student not found"))
			return
		}
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(row))
}

type studentBody struct {
	TenantID string `json:"tenant_id"` // optional; must match the resolved tenant if present
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Status   string `json:"status"`
}

func (h *StudentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	tctx, ok := h.auth.Require(w, r)
	if !ok {
		return
	}
	var body studentBody
	if err := readBodyJSON(r, 1<<20, &body); err != nil || body.FullName == "" {
		writeJSON(w, http.StatusBadRequest, Fail("full_name is required"))
		return
	}
	// Caller-supplied tenant ids never override the resolved context.
	if body.TenantID != "" {
		if err := tctx.AssertTenant(body.TenantID); err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
	}
	status := body.Status
	if status == "" {
		status = "active"
	}

	err := h.inTx(r.Context(), func(ctx context.Context, tx *sql.Tx) error {
		q, err := h.scoped.Table("students")
		if err != nil {
			return err
		}
		sq := q.ForTenant(tctx).Tx(tx)
		studentID, err := sq.InsertReturning(ctx, map[string]any{
			"full_name": body.FullName,
			"email":     body.Email,
			"status":    status,
		}, "student_id")
		if err != nil {
			return err
		}
		after, err := sq.SelectOne(ctx, studentColumns, "student_id = ?::uuid", []any{studentID})
		if err != nil {
			return err
		}
		afterJSON, _ := json.Marshal(after)

		_, err = h.audit.WriteTx(ctx, tx, tctx, service.AuditEvent{
			ActionType:   domain.ActionCreate,
			Scope:        domain.ScopeTenant,
			ResourceType: "students",
			ResourceID:   studentID,
			AfterState:   afterJSON,
		})
		return err
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *StudentsHandler) Update(w http.ResponseWriter, r *http.Request, studentID string) {
	tctx, ok := h.auth.Require(w, r)
	if !ok {
		return
	}
	var body studentBody
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if body.TenantID != "" {
		if err := tctx.AssertTenant(body.TenantID); err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
	}

	set := map[string]any{"updated_at": nowUTC()}
	if body.FullName != "" {
		set["full_name"] = body.FullName
	}
	if body.Email != "" {
		set["email"] = body.Email
	}
	if body.Status != "" {
		set["status"] = body.Status
	}

	var notFound bool
	err := h.inTx(r.Context(), func(ctx context.Context, tx *sql.Tx) error {
		q, err := h.scoped.Table("students")
		if err != nil {
			return err
		}
		sq := q.ForTenant(tctx).Tx(tx)

		before, err := sq.SelectOne(ctx, studentColumns, "student_id = ?::uuid", []any{studentID})
		if err != nil {
			if strings.Contains(err.Error(), sql.ErrNoRows.Error()) {
				notFound = true
				return nil
			}
			return err
		}
		if _, err := sq.Update(ctx, set, "student_id = ?::uuid", []any{studentID}); err != nil {
			return err
		}
		after, err := sq.SelectOne(ctx, studentColumns, "student_id = ?::uuid", []any{studentID})
		if err != nil {
			return err
		}

		beforeJSON, _ := json.Marshal(before)
		afterJSON, _ := json.Marshal(after)
		_, err = h.audit.WriteTx(ctx, tx, tctx, service.AuditEvent{
			ActionType:   domain.ActionUpdate,
			Scope:        domain.ScopeTenant,
			ResourceType: "students",
			ResourceID:   studentID,
			BeforeState:  beforeJSON,
			AfterState:   afterJSON,
		})
		return err
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if notFound {
		writeJSON(w, http.StatusNotFound, Fail("student not found"))
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *StudentsHandler) Delete(w http.ResponseWriter, r *http.Request, studentID string) {
	tctx, ok := h.auth.Require(w, r)
	if !ok {
		return
	}
	justification := r.URL.Query().Get("justification")
	if justification == "" {
		writeJSON(w, http.StatusBadRequest, Fail("justification is required for delete"))
		return
	}

	var notFound bool
	err := h.inTx(r.Context(), func(ctx context.Context, tx *sql.Tx) error {
		q, err := h.scoped.Table("students")
		if err != nil {
			return err
		}
		sq := q.ForTenant(tctx).Tx(tx)

		before, err := sq.SelectOne(ctx, studentColumns, "student_id = ?::uuid", []any{studentID})
		if err != nil {
			if strings.Contains(err.Error(), sql.ErrNoRows.Error()) {
				notFound = true
				return nil
			}
			return err
		}
		if _, err := sq.Delete(ctx, "student_id = ?::uuid", []any{studentID}); err != nil {
			return err
		}

		beforeJSON, _ := json.Marshal(before)
		_, err = h.audit.WriteTx(ctx, tx, tctx, service.AuditEvent{
			ActionType:    domain.ActionDelete,
			Scope:         domain.ScopeTenant,
			ResourceType:  "students",
			ResourceID:    studentID,
			BeforeState:   beforeJSON,
			Justification: justification,
		})
		return err
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if notFound {
		writeJSON(w, http.StatusNotFound, Fail("student not found"))
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

// inTx runs fn inside one transaction; rollback on any error, including a
// failed audit write (audit failure aborts the business operation).
func (h *StudentsHandler) inTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
