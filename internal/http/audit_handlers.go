package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
	"github.com/seahkrah/SmartAttend-sub012/internal/service"
	"github.com/seahkrah/SmartAttend-sub012/internal/tenant"
)

// AuditHandler read surface of the audit trail plus integrity checks.
type AuditHandler struct {
	audit  *service.AuditService
	auth   *AuthContext
	logger *zap.Logger
}

func NewAuditHandler(audit *service.AuditService, auth *AuthContext, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, auth: auth, logger: logger}
}

const auditBase = "/audit/api/v1/"

// ServeHTTP dispatches /audit/api/v1/* routes.
func (h *AuditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, auditBase)
	switch {
	case path == "records":
		h.QueryRecords(w, r)
	case path == "records/export":
		h.ExportRecords(w, r)
	case path == "access-log":
		h.QueryAccessLog(w, r)
	case strings.HasPrefix(path, "records/") && strings.HasSuffix(path, "/verify"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "records/"), "/verify")
		h.VerifyRecord(w, r, id)
	case strings.HasPrefix(path, "records/") && !strings.Contains(strings.TrimPrefix(path, "records/"), "/"):
		h.GetRecord(w, r, strings.TrimPrefix(path, "records/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// parseFilters reads the caller's narrowing filters from the query string.
// These can only narrow the role's mandatory access filter, never widen it.
func parseFilters(r *http.Request) domain.AuditFilters {
	q := r.URL.Query()
	f := domain.AuditFilters{
		Scope:        domain.Scope(q.Get("scope")),
		ActorID:      q.Get("actor_id"),
		ActionType:   q.Get("action_type"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		Page:         parseInt(q.Get("page"), 1),
		Size:         parseInt(q.Get("size"), 50),
	}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Since = t
		}
	}
	if v := q.Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Until = t
		}
	}
	return f
}

// QueryRecords GET /audit/api/v1/records
func (h *AuditHandler) QueryRecords(w http.ResponseWriter, r *http.Request) {
	tctx, ok := h.auth.Require(w, r)
	if !ok {
		return
	}
	filters := parseFilters(r)
	records, total, err := h.audit.Query(r.Context(), tctx, filters)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	items := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		items = append(items, recordDTO(rec))
	}
	page, size := filters.Page, filters.Size
	if page < 1 {
		page = 1
	}
	writeJSON(w, http.StatusOK, Ok(PagedResult[map[string]any]{
		Items: items, Total: total, Page: page, Size: size,
	}))
}

// GetRecord GET /audit/api/v1/records/{id}
func (h *AuditHandler) GetRecord(w http.ResponseWriter, r *http.Request, recordID string) {
	tctx, ok := h.auth.Require(w, r)
	if !ok {
		return
	}
	rec, err := h.audit.GetRecord(r.Context(), tctx, recordID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(recordDTO(rec)))
}

// VerifyRecord GET /audit/api/v1/records/{id}/verify
// Visibility first: an actor who may not read the record may not probe its
// integrity either.
func (h *AuditHandler) VerifyRecord(w http.ResponseWriter, r *http.Request, recordID string) {
	tctx, ok := h.auth.Require(w, r)
	if !ok {
		return
	}
	if _, err := h.audit.GetRecord(r.Context(), tctx, recordID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	result, err := h.audit.VerifyIntegrity(r.Context(), recordID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// QueryAccessLog GET /audit/api/v1/access-log (superadmin only)
func (h *AuditHandler) QueryAccessLog(w http.ResponseWriter, r *http.Request) {
	tctx, ok := h.auth.Require(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	entries, total, err := h.audit.QueryAccessLog(r.Context(), tctx,
		q.Get("tenant_id"), parseInt(q.Get("page"), 1), parseInt(q.Get("size"), 50))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]any{
			"entry_id":        e.EntryID,
			"tenant_id":       e.TenantID,
			"actor_id":        e.ActorID,
			"actor_role":      e.ActorRole,
			"access_type":     e.AccessType,
			"scope_accessed":  e.ScopeAccessed,
			"filters_applied": e.FiltersApplied,
			"results_count":   e.ResultsCount,
			"ip_address":      e.IPAddress,
			"request_id":      e.RequestID,
			"created_at":      e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, Ok(PagedResult[map[string]any]{
		Items: items, Total: total, Page: parseInt(q.Get("page"), 1), Size: parseInt(q.Get("size"), 50),
	}))
}

// ExportRecords GET /audit/api/v1/records/export
// Admin roles only; the export itself is a mandatory audited action and
// requires a justification (EXPORT action type).
func (h *AuditHandler) ExportRecords(w http.ResponseWriter, r *http.Request) {
	tctx, ok := h.auth.Require(w, r)
	if !ok {
		return
	}
	if tctx.RoleID() != domain.RoleSuperadmin && tctx.RoleID() != domain.RoleTenantAdmin {
		writeDomainError(w, h.logger, domain.ErrAccessDenied)
		return
	}
	justification := r.URL.Query().Get("justification")
	if justification == "" {
		writeJSON(w, http.StatusBadRequest, Fail("justification is required for export"))
		return
	}

	filters := parseFilters(r)
	filters.Size = 500 // export cap per request
	records, _, err := h.audit.Query(r.Context(), tctx, filters)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	data, err := GenerateAuditExport(records)
	if err != nil {
		h.logger.Error("failed to generate audit export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}

	// Mandatory audit of the export: abort before sending any data if the
	// record cannot be written.
	if _, err := h.audit.Write(r.Context(), tctx, service.AuditEvent{
		ActionType:    domain.ActionExport,
		Scope:         exportScope(tctx),
		ResourceType:  "audit_records",
		Justification: justification,
		AfterState:    json.RawMessage(fmt.Sprintf(`{"exported_count":%d}`, len(records))),
	}); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="audit-export-%s.xlsx"`, time.Now().Format("20060102-150405")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func exportScope(tctx *tenant.Context) domain.Scope {
	if tctx.RoleID() == domain.RoleSuperadmin {
		return domain.ScopeGlobal
	}
	return domain.ScopeTenant
}

func recordDTO(rec *domain.AuditRecord) map[string]any {
	return map[string]any{
		"record_id":     rec.RecordID,
		"tenant_id":     rec.TenantID,
		"actor_id":      rec.ActorID,
		"actor_role":    rec.ActorRole,
		"action_type":   rec.ActionType,
		"action_scope":  rec.ActionScope,
		"resource_type": rec.ResourceType,
		"resource_id":   rec.ResourceID,
		"before_state":  rec.BeforeState,
		"after_state":   rec.AfterState,
		"justification": rec.Justification,
		"ip_address":    rec.IPAddress,
		"user_agent":    rec.UserAgent,
		"request_id":    rec.RequestID,
		"checksum":      rec.Checksum,
		"created_at":    rec.CreatedAt,
	}
}
