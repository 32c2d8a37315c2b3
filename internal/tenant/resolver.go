package tenant

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
)

// Resolver converts a verified principal plus request metadata into a
// tenant Context. Centralized so route handlers cannot re-derive tenant
// identity inconsistently; it performs no logging and no persistence.
type Resolver struct {
	knownRoles map[string]bool
}

func NewResolver() *Resolver {
	return &Resolver{
		knownRoles: map[string]bool{
			domain.RoleSuperadmin:  true,
			domain.RoleTenantAdmin: true,
			domain.RoleUser:        true,
		},
	}
}

// Resolve validates the principal and returns an immutable Context.
// There is no "no tenant" fallback: a principal without a valid tenant id
// is a hard stop for every tenant-scoped route.
func (r *Resolver) Resolve(p Principal, meta RequestMeta) (*Context, error) {
	if p.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if p.TenantID == "" {
		return nil, fmt.Errorf("principal %s: %w", p.UserID, domain.ErrInvalidTenantFormat)
	}
	if _, err := uuid.Parse(p.TenantID); err != nil {
		return nil, fmt.Errorf("tenant_id %q: %w", p.TenantID, domain.ErrInvalidTenantFormat)
	}
	if _, err := uuid.Parse(p.UserID); err != nil {
		return nil, fmt.Errorf("user_id %q: %w", p.UserID, domain.ErrUnauthenticated)
	}
	if !r.knownRoles[p.RoleID] {
		return nil, fmt.Errorf("role %q: %w", p.RoleID, domain.ErrUnauthenticated)
	}

	return &Context{
		tenantID:  p.TenantID,
		userID:    p.UserID,
		roleID:    p.RoleID,
		ip:        meta.IP,
		userAgent: meta.UserAgent,
		requestID: meta.RequestID,
	}, nil
}
