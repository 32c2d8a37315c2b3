package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
	"github.com/seahkrah/SmartAttend-sub012/internal/store"
	"github.com/seahkrah/SmartAttend-sub012/internal/tenant"
)

// AuthContext resolves the tenant context for every protected route:
// bearer token -> session (redis) -> principal -> tenant.Resolver.
// Handlers never read identity from the request body/query/path; only the
// session's verified principal feeds the resolver.
type AuthContext struct {
	sessions *store.SessionStore
	resolver *tenant.Resolver
	logger   *zap.Logger
}

func NewAuthContext(sessions *store.SessionStore, resolver *tenant.Resolver, logger *zap.Logger) *AuthContext {
	return &AuthContext{sessions: sessions, resolver: resolver, logger: logger}
}

// Resolve derives the tenant context from the request, or fails with one
// of the resolver's errors.
func (a *AuthContext) Resolve(r *http.Request) (*tenant.Context, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}
	sess, err := a.sessions.Lookup(r.Context(), token)
	if err != nil {
		return nil, err
	}

	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	return a.resolver.Resolve(
		tenant.Principal{
			UserID:   sess.UserID,
			TenantID: sess.TenantID,
			RoleID:   sess.Role,
		},
		tenant.RequestMeta{
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
			RequestID: requestID,
		},
	)
}

// Require resolves the context and writes the error response itself when
// resolution fails. Handlers use: tctx, ok := auth.Require(w, r); !ok.
func (a *AuthContext) Require(w http.ResponseWriter, r *http.Request) (*tenant.Context, bool) {
	tctx, err := a.Resolve(r)
	if err != nil {
		writeDomainError(w, a.logger, err)
		return nil, false
	}
	return tctx, true
}

// writeDomainError maps the core error taxonomy onto client responses.
// Isolation and authorization failures come back as generic denials with
// no internal detail; immutability/integrity errors stay generic to the
// client while the real cause is logged and escalated server-side.
func writeDomainError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated),
		errors.Is(err, domain.ErrInvalidTenantFormat):
		writeJSON(w, http.StatusUnauthorized,
			Result[any]{Code: ResultTokenExpired, Type: "error", Message: "authentication required"})

	case errors.Is(err, domain.ErrAccessDenied),
		errors.Is(err, domain.ErrCrossTenantAccess):
		writeJSON(w, http.StatusForbidden, Fail("access denied"))

	case errors.Is(err, domain.ErrTableNotRegistered),
		errors.Is(err, domain.ErrMissingTenantContext),
		errors.Is(err, domain.ErrMissingTenantID):
		// programmer/configuration error: loud in logs, opaque to clients
		logger.Error("scoped-layer misuse", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))

	case errors.Is(err, domain.ErrImmutabilityViolation),
		errors.Is(err, domain.ErrIntegrityMismatch):
		logger.Error("audit security error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))

	default:
		logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
	}
}
