package domain

import (
	"encoding/json"
	"time"
)

// Scope breadth of an audited action's visibility.
type Scope string

const (
	ScopeGlobal Scope = "GLOBAL" // platform-wide actions (superadmin only)
	ScopeTenant Scope = "TENANT" // tenant-wide actions
	ScopeUser   Scope = "USER"   // single-actor actions
)

// ValidScope reports whether s is one of the three known scopes.
func ValidScope(s Scope) bool {
	return s == ScopeGlobal || s == ScopeTenant || s == ScopeUser
}

// Role codes recognized by the audit access policy.
const (
	RoleSuperadmin  = "superadmin"
	RoleTenantAdmin = "tenant_admin"
	RoleUser        = "user"
)

// Action types with a fixed vocabulary where the policy cares. Free-form
// action types are allowed for ordinary business events; these constants
// are the ones the justification rule applies to.
const (
	ActionCreate           = "CREATE"
	ActionUpdate           = "UPDATE"
	ActionDelete           = "DELETE"
	ActionRead             = "READ"
	ActionPermissionChange = "PERMISSION_CHANGE"
	ActionExport           = "EXPORT"
)

// JustificationRequired reports whether actionType may only be audited with
// a non-empty justification (destructive or data-exporting actions).
func JustificationRequired(actionType string) bool {
	switch actionType {
	case ActionDelete, ActionPermissionChange, ActionExport:
		return true
	}
	return false
}

// AuditRecord audit trail entry (audit_records table).
// Append-only: every field is immutable once persisted. The service layer
// exposes no update/delete, and the storage layer rejects UPDATE/DELETE via
// trigger regardless of caller (see migrations/001_audit.sql).
type AuditRecord struct {
	RecordID  string `db:"record_id"`  // UUID, PRIMARY KEY, generated
	TenantID  string `db:"tenant_id"`  // UUID, NOT NULL (tenant discriminator)
	ActorID   string `db:"actor_id"`   // UUID, NOT NULL
	ActorRole string `db:"actor_role"` // VARCHAR(50), NOT NULL

	ActionType   string `db:"action_type"`   // VARCHAR(100), NOT NULL
	ActionScope  Scope  `db:"action_scope"`  // GLOBAL / TENANT / USER
	ResourceType string `db:"resource_type"` // VARCHAR(100), NOT NULL
	ResourceID   string `db:"resource_id"`   // VARCHAR(255), nullable

	// Structured snapshots captured explicitly by the caller: BeforeState
	// before the mutation runs, AfterState from its result. The writer
	// stores what it is given; it never diffs or infers.
	BeforeState json.RawMessage `db:"before_state"` // JSONB, nullable
	AfterState  json.RawMessage `db:"after_state"`  // JSONB, nullable

	Justification string `db:"justification"` // TEXT, required for some action types
	IPAddress     string `db:"ip_address"`    // VARCHAR(64)
	UserAgent     string `db:"user_agent"`    // TEXT
	RequestID     string `db:"request_id"`    // correlates to originating request

	Checksum  string    `db:"checksum"`   // "sha256:<hex>" over immutable fields
	CreatedAt time.Time `db:"created_at"` // set by the writer, part of the checksum
}

// AuditFilters caller-supplied narrowing for audit queries. The access
// filter derived from the caller's role is always applied on top; these
// can only narrow further.
type AuditFilters struct {
	Scope        Scope  // optional requested scope
	ActorID      string // optional
	ActionType   string // optional
	ResourceType string // optional
	ResourceID   string // optional
	Since        time.Time
	Until        time.Time
	Page         int
	Size         int
}
