package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/seahkrah/SmartAttend-sub012/internal/authz"
	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
	"github.com/seahkrah/SmartAttend-sub012/internal/repository"
	"github.com/seahkrah/SmartAttend-sub012/internal/tenant"
)

// AuditEvent what a call site knows about an audited operation. Before and
// After are captured explicitly by the caller at the correct points in
// time (before the mutation / from its result); the writer stores them
// verbatim and never diffs.
type AuditEvent struct {
	ActionType    string
	Scope         domain.Scope
	ResourceType  string
	ResourceID    string
	BeforeState   json.RawMessage
	AfterState    json.RawMessage
	Justification string
}

// AuditService audit trail writer, access-controlled reader and integrity
// verifier.
type AuditService struct {
	records   repository.AuditRepo
	accessLog repository.AccessLogRepo
	incidents *IncidentClient
	logger    *zap.Logger
}

func NewAuditService(records repository.AuditRepo, accessLog repository.AccessLogRepo,
	incidents *IncidentClient, logger *zap.Logger) *AuditService {
	return &AuditService{
		records:   records,
		accessLog: accessLog,
		incidents: incidents,
		logger:    logger,
	}
}

// ========== write ==========

// Write persists exactly one audit record for the event. Mandatory path:
// the error is returned to the caller, and for state-changing operations
// the caller must abort on it. The insert runs on a detached context so a
// client disconnect cannot lose the record.
func (s *AuditService) Write(ctx context.Context, tctx *tenant.Context, ev AuditEvent) (string, error) {
	rec := recordFromEvent(tctx, ev)
	id, err := s.records.InsertRecord(context.WithoutCancel(ctx), rec)
	if err != nil {
		return "", fmt.Errorf("audit write failed: %w", err)
	}
	return id, nil
}

// WriteTx persists the record inside the caller's transaction, so the
// business mutation and its audit record commit or roll back together.
func (s *AuditService) WriteTx(ctx context.Context, tx *sql.Tx, tctx *tenant.Context, ev AuditEvent) (string, error) {
	rec := recordFromEvent(tctx, ev)
	id, err := s.records.InsertRecordTx(context.WithoutCancel(ctx), tx, rec)
	if err != nil {
		return "", fmt.Errorf("audit write failed: %w", err)
	}
	return id, nil
}

// WriteBestEffort logs-and-continues on failure. Only for read-audit call
// sites where the primary operation may proceed without the record; an
// explicit per-call-site choice, never the default.
func (s *AuditService) WriteBestEffort(ctx context.Context, tctx *tenant.Context, ev AuditEvent) {
	if _, err := s.Write(ctx, tctx, ev); err != nil {
		s.logger.Warn("best-effort audit write failed",
			zap.String("action_type", ev.ActionType),
			zap.String("resource_type", ev.ResourceType),
			zap.Error(err))
	}
}

func recordFromEvent(tctx *tenant.Context, ev AuditEvent) *domain.AuditRecord {
	return &domain.AuditRecord{
		TenantID:      tctx.TenantID(),
		ActorID:       tctx.UserID(),
		ActorRole:     tctx.RoleID(),
		ActionType:    ev.ActionType,
		ActionScope:   ev.Scope,
		ResourceType:  ev.ResourceType,
		ResourceID:    ev.ResourceID,
		BeforeState:   ev.BeforeState,
		AfterState:    ev.AfterState,
		Justification: ev.Justification,
		IPAddress:     tctx.IP(),
		UserAgent:     tctx.UserAgent(),
		RequestID:     tctx.RequestID(),
	}
}

// ========== read (access controlled) ==========

// Query reads audit records on behalf of tctx's actor. The role's scope
// allowance is checked before any query executes; the same policy table
// then drives the generated filter, so check and filter cannot diverge.
// Every attempt, allowed or denied, produces one access-log entry.
func (s *AuditService) Query(ctx context.Context, tctx *tenant.Context, filters domain.AuditFilters) ([]*domain.AuditRecord, int, error) {
	if filters.Scope != "" && !authz.CanAccessScope(tctx.RoleID(), filters.Scope) {
		// The denial itself is audit-worthy.
		s.logAccess(ctx, tctx, domain.AccessDenied, filters, 0)
		return nil, 0, fmt.Errorf("role %s requesting scope %s: %w",
			tctx.RoleID(), filters.Scope, domain.ErrAccessDenied)
	}

	actor := repository.AuditActor{
		UserID:   tctx.UserID(),
		TenantID: tctx.TenantID(),
		Role:     tctx.RoleID(),
	}
	records, total, err := s.records.QueryRecords(ctx, actor, filters)
	if err != nil {
		return nil, 0, err
	}

	s.logAccess(ctx, tctx, domain.AccessAllowed, filters, len(records))
	return records, total, nil
}

// GetRecord reads a single record, enforcing the same visibility rules as
// Query. A record outside the actor's allowance is reported as denied, not
// as not-found vs. forbidden detail.
func (s *AuditService) GetRecord(ctx context.Context, tctx *tenant.Context, recordID string) (*domain.AuditRecord, error) {
	rec, err := s.records.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !s.visibleTo(tctx, rec) {
		s.logAccess(ctx, tctx, domain.AccessDenied,
			domain.AuditFilters{Scope: rec.ActionScope}, 0)
		return nil, fmt.Errorf("record %s: %w", recordID, domain.ErrAccessDenied)
	}
	s.logAccess(ctx, tctx, domain.AccessAllowed,
		domain.AuditFilters{Scope: rec.ActionScope}, 1)
	return rec, nil
}

// visibleTo applies the role policy to one concrete record.
func (s *AuditService) visibleTo(tctx *tenant.Context, rec *domain.AuditRecord) bool {
	if !authz.CanAccessScope(tctx.RoleID(), rec.ActionScope) {
		return false
	}
	switch tctx.RoleID() {
	case domain.RoleSuperadmin:
		return true
	case domain.RoleTenantAdmin:
		return rec.TenantID == tctx.TenantID()
	case domain.RoleUser:
		return rec.ActorID == tctx.UserID()
	}
	return false
}

// QueryAccessLog "auditing the auditors": the second-order read surface.
// Superadmin only; reading it is itself recorded in the same log.
func (s *AuditService) QueryAccessLog(ctx context.Context, tctx *tenant.Context, tenantFilter string, page, size int) ([]*domain.AuditAccessLogEntry, int, error) {
	if tctx.RoleID() != domain.RoleSuperadmin {
		s.logAccess(ctx, tctx, domain.AccessDenied,
			domain.AuditFilters{Scope: domain.ScopeGlobal}, 0)
		return nil, 0, fmt.Errorf("role %s reading access log: %w", tctx.RoleID(), domain.ErrAccessDenied)
	}
	entries, total, err := s.accessLog.QueryEntries(ctx, tenantFilter, page, size)
	if err != nil {
		return nil, 0, err
	}
	s.logAccess(ctx, tctx, domain.AccessAllowed,
		domain.AuditFilters{Scope: domain.ScopeGlobal}, len(entries))
	return entries, total, nil
}

// logAccess writes the access-log entry. Best-effort: its failure must not
// fail the read it describes, but it is never silent either. Runs on a
// detached context so the entry survives a client disconnect.
func (s *AuditService) logAccess(ctx context.Context, tctx *tenant.Context,
	accessType domain.AccessType, filters domain.AuditFilters, results int) {

	scope := filters.Scope
	switch {
	case scope == "":
		// no explicit scope requested: record the widest the role can see
		if allowed := authz.AllowedScopes(tctx.RoleID()); len(allowed) > 0 {
			scope = allowed[0]
		}
	case !domain.ValidScope(scope):
		// unknown requested scope: storage admits only the three known
		// scopes in scope_accessed, so store NULL there and keep the raw
		// requested value visible in filters_applied
		scope = ""
	}

	entry := &domain.AuditAccessLogEntry{
		TenantID:       tctx.TenantID(),
		ActorID:        tctx.UserID(),
		ActorRole:      tctx.RoleID(),
		AccessType:     accessType,
		ScopeAccessed:  scope,
		FiltersApplied: formatFilters(filters),
		ResultsCount:   results,
		IPAddress:      tctx.IP(),
		UserAgent:      tctx.UserAgent(),
		RequestID:      tctx.RequestID(),
	}
	if _, err := s.accessLog.InsertEntry(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to write audit access log entry",
			zap.String("actor_id", tctx.UserID()),
			zap.String("access_type", string(accessType)),
			zap.Error(err))
	}
}

// formatFilters compact, reconstructable serialization of the effective
// filters. Stores what was asked, never the audited payload.
func formatFilters(f domain.AuditFilters) string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("scope", string(f.Scope))
	add("actor_id", f.ActorID)
	add("action_type", f.ActionType)
	add("resource_type", f.ResourceType)
	add("resource_id", f.ResourceID)
	if !f.Since.IsZero() {
		add("since", f.Since.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if !f.Until.IsZero() {
		add("until", f.Until.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return strings.Join(parts, ";")
}
