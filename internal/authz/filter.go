package authz

import (
	"fmt"

	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
)

// ApplyAccessFilter validates the requested scope against the role policy
// and appends the narrowing predicate to a SQL query under construction
// (query and args grow together; $n indexes derive from len(args)).
//
//   - superadmin: no mandatory predicate; an explicit requested scope
//     narrows to that scope only.
//   - tenant_admin: action_scope IN ('TENANT','USER') AND tenant_id = caller's
//     tenant. ErrMissingTenantID if the caller has no tenant (configuration
//     error, should never happen for an authenticated tenant_admin).
//   - user: action_scope = 'USER' AND actor_id = caller's user id.
//
// A requested scope outside the role's allowance fails with ErrAccessDenied
// before any query executes; the caller records the denial in the access log.
func ApplyAccessFilter(query *string, args *[]any, role, userID, tenantID string,
	requested domain.Scope, alias string, isFirstCondition bool) error {

	if requested != "" && !ValidRequestScope(requested) {
		return fmt.Errorf("scope %q: %w", requested, domain.ErrAccessDenied)
	}
	if requested != "" && !CanAccessScope(role, requested) {
		return fmt.Errorf("role %s requesting scope %s: %w", role, requested, domain.ErrAccessDenied)
	}

	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	and := func(condition string) {
		if isFirstCondition {
			*query += ` WHERE ` + condition
			isFirstCondition = false
		} else {
			*query += ` AND ` + condition
		}
	}
	arg := func(v any) int {
		*args = append(*args, v)
		return len(*args)
	}

	switch role {
	case domain.RoleSuperadmin:
		if requested != "" {
			and(fmt.Sprintf(`%saction_scope = $%d`, prefix, arg(string(requested))))
		}
		return nil

	case domain.RoleTenantAdmin:
		if tenantID == "" {
			return fmt.Errorf("tenant_admin %s: %w", userID, domain.ErrMissingTenantID)
		}
		if requested != "" {
			and(fmt.Sprintf(`%saction_scope = $%d`, prefix, arg(string(requested))))
		} else {
			and(fmt.Sprintf(`%saction_scope IN ($%d, $%d)`,
				prefix, arg(string(domain.ScopeTenant)), arg(string(domain.ScopeUser))))
		}
		and(fmt.Sprintf(`%stenant_id = $%d`, prefix, arg(tenantID)))
		return nil

	case domain.RoleUser:
		and(fmt.Sprintf(`%saction_scope = $%d`, prefix, arg(string(domain.ScopeUser))))
		and(fmt.Sprintf(`%sactor_id = $%d`, prefix, arg(userID)))
		return nil
	}

	// unknown role: fail closed
	return fmt.Errorf("role %q: %w", role, domain.ErrAccessDenied)
}

// ValidRequestScope reports whether a caller-supplied scope string is one
// of the known scopes. Empty means "no scope filter requested" and is
// handled by the caller.
func ValidRequestScope(s domain.Scope) bool {
	return domain.ValidScope(s)
}
