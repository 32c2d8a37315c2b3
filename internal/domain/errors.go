package domain

import "errors"

// Error taxonomy for the audit/isolation core. Layers wrap these with
// fmt.Errorf("...: %w", err) and callers test with errors.Is.
var (
	// ErrUnauthenticated no verifiable principal on the request.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidTenantFormat the tenant identifier failed format validation.
	ErrInvalidTenantFormat = errors.New("invalid tenant id format")

	// ErrCrossTenantAccess a request-supplied tenant id does not match the
	// resolved tenant context. Surfaced to clients as a generic 403.
	ErrCrossTenantAccess = errors.New("cross-tenant access denied")

	// ErrTableNotRegistered the target table has no tenant registry entry.
	// Programmer error: new tables must be registered before they are
	// reachable through the scoped layer.
	ErrTableNotRegistered = errors.New("table not registered for tenant isolation")

	// ErrMissingTenantContext a scoped query was executed before a tenant
	// context was attached. Programmer error, fails loudly.
	ErrMissingTenantContext = errors.New("missing tenant context")

	// ErrAccessDenied authenticated principal, disallowed audit scope.
	ErrAccessDenied = errors.New("access denied")

	// ErrMissingTenantID a tenant_admin caller has no resolvable tenant.
	// Configuration/integrity error, not a user-facing condition.
	ErrMissingTenantID = errors.New("missing tenant id for tenant-scoped role")

	// ErrImmutabilityViolation storage rejected a mutation of audit data.
	// Must never be swallowed; its occurrence is itself audit-worthy.
	ErrImmutabilityViolation = errors.New("audit storage is immutable")

	// ErrIntegrityMismatch a stored checksum does not match the recomputed
	// one. Escalated as a security incident.
	ErrIntegrityMismatch = errors.New("audit record integrity mismatch")
)
