package authz

import (
	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
)

// rolePolicy the single source of truth for role -> visible audit scopes.
// Both CanAccessScope (the client-facing check) and ApplyAccessFilter (the
// generated query predicate) read this map, so they cannot drift apart.
// Built once at init, never mutated.
var rolePolicy = map[string][]domain.Scope{
	domain.RoleSuperadmin:  {domain.ScopeGlobal, domain.ScopeTenant, domain.ScopeUser},
	domain.RoleTenantAdmin: {domain.ScopeTenant, domain.ScopeUser},
	domain.RoleUser:        {domain.ScopeUser},
}

// AllowedScopes returns the scopes visible to a role (copy; callers cannot
// mutate the policy).
func AllowedScopes(role string) []domain.Scope {
	scopes, ok := rolePolicy[role]
	if !ok {
		return nil
	}
	out := make([]domain.Scope, len(scopes))
	copy(out, scopes)
	return out
}

// CanAccessScope reports whether role may read the requested scope.
// Unknown roles see nothing (fail closed).
func CanAccessScope(role string, scope domain.Scope) bool {
	for _, s := range rolePolicy[role] {
		if s == scope {
			return true
		}
	}
	return false
}
