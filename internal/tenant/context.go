package tenant

import "github.com/seahkrah/SmartAttend-sub012/internal/domain"

// Principal the verified identity assertion handed to the resolver.
// Produced by the session layer (already authenticated); never built from
// request body/query/path values.
type Principal struct {
	UserID   string
	TenantID string
	RoleID   string
}

// RequestMeta metadata extracted from the inbound request.
type RequestMeta struct {
	IP        string
	UserAgent string
	RequestID string
}

// Context the resolved, immutable tenant context. Fields are unexported so
// downstream code cannot alter the tenant after resolution; the only
// constructor is Resolver.Resolve.
type Context struct {
	tenantID  string
	userID    string
	roleID    string
	ip        string
	userAgent string
	requestID string
}

func (c *Context) TenantID() string  { return c.tenantID }
func (c *Context) UserID() string    { return c.userID }
func (c *Context) RoleID() string    { return c.roleID }
func (c *Context) IP() string        { return c.ip }
func (c *Context) UserAgent() string { return c.userAgent }
func (c *Context) RequestID() string { return c.requestID }

// AssertTenant verifies a request-supplied tenant id (path/body/query)
// equals the resolved tenant. Route handlers call this before acting on any
// caller-provided tenant value; a mismatch is a cross-tenant attempt.
func (c *Context) AssertTenant(claimed string) error {
	if claimed == "" || claimed != c.tenantID {
		return domain.ErrCrossTenantAccess
	}
	return nil
}
