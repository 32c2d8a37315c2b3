package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router thin wrapper over the stdlib ServeMux.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterAuditRoutes the audit trail read surface: records, single
// record, per-record verification, compliance export and the access log.
func (r *Router) RegisterAuditRoutes(h *AuditHandler) {
	r.Handle(auditBase, h.ServeHTTP)
	r.Handle(auditBase+"records", h.ServeHTTP)
	r.Handle(auditBase+"records/", h.ServeHTTP)
	r.Handle(auditBase+"access-log", h.ServeHTTP)
}

// RegisterStudentRoutes the scoped-layer demo consumer.
func (r *Router) RegisterStudentRoutes(h *StudentsHandler) {
	r.Handle(studentsBase, h.ServeHTTP)
	r.Handle(studentsBase+"/", h.ServeHTTP)
}

// RegisterHealthRoute liveness probe.
func (r *Router) RegisterHealthRoute() {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok("ok"))
	})
}
