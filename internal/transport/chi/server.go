// Package chi exposes the engine over HTTP: hand-written handlers on a
// chi router, with domain errors mapped to stable status codes and
// machine-readable error codes.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gridbase/gridbase/internal/domain"
	collectionuc "github.com/gridbase/gridbase/internal/usecase/collection"
	queryuc "github.com/gridbase/gridbase/internal/usecase/query"
	relationuc "github.com/gridbase/gridbase/internal/usecase/relation"
)

// Error codes returned to clients.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codePermissionDenied = "permission_denied"
	codeNotFound         = "not_found"
	codeAlreadyExists    = "already_exists"
	codeQuotaExceeded    = "quota_exceeded"
	codeQueryFailed      = "query_failed"
	codeQueryTimeout     = "query_timeout"
	codeRelationConflict = "relation_constraint"
	codeInternalError    = "internal_error"
)

// errorResponse is the JSON error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	FieldID string `json:"field_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Pinger reports storage backend liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the engine's HTTP API.
type Server struct {
	collections   *collectionuc.Service
	queries       *queryuc.Service
	relations     *relationuc.Service
	pinger        Pinger
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	collections *collectionuc.Service,
	queries *queryuc.Service,
	relations *relationuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		collections: collections,
		queries:     queries,
		relations:   relations,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		validationErrorHandler,
		permissionErrorHandler,
		queryErrorHandler,
		relationErrorHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, codeAlreadyExists),
		sentinelHandler(domain.ErrQuotaExceeded, http.StatusUnprocessableEntity, codeQuotaExceeded),
	}
	return s
}

// WithPinger attaches a storage liveness probe to the health endpoint.
func (s *Server) WithPinger(p Pinger) *Server {
	s.pinger = p
	return s
}

// Routes registers every API route on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.Health)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/collections", func(r chi.Router) {
			r.Post("/", s.CreateCollection)
			r.Get("/", s.ListCollections)
			r.Route("/{collectionID}", func(r chi.Router) {
				r.Get("/", s.GetCollection)
				r.Put("/", s.UpdateCollection)
				r.Delete("/", s.DeleteCollection)
				r.Post("/duplicate", s.DuplicateCollection)

				r.Post("/fields", s.AddField)
				r.Put("/fields/{fieldID}", s.UpdateField)
				r.Delete("/fields/{fieldID}", s.RemoveField)

				r.Post("/views", s.CreateView)
				r.Get("/views", s.ListViews)

				r.Route("/records", func(r chi.Router) {
					r.Post("/", s.CreateRecord)
					r.Get("/", s.ListRecords)
					r.Get("/{recordID}", s.GetRecord)
					r.Patch("/{recordID}", s.UpdateRecord)
					r.Delete("/{recordID}", s.DeleteRecord)
					r.Post("/{recordID}/archive", s.SetRecordArchived)
					r.Put("/{recordID}/tags", s.SetRecordTags)
				})

				r.Post("/query", s.ExecuteQuery)
				r.Post("/query/analyze", s.AnalyzeQuery)
				r.Post("/query/indexes", s.SuggestIndexes)
			})
		})

		r.Route("/views", func(r chi.Router) {
			r.Get("/{viewID}", s.GetView)
			r.Put("/{viewID}", s.UpdateView)
			r.Delete("/{viewID}", s.DeleteView)
		})

		r.Route("/relations", func(r chi.Router) {
			r.Post("/", s.CreateRelation)
			r.Get("/", s.ListRelations)
			r.Post("/query", s.QueryRelations)
			r.Get("/{relationID}", s.GetRelation)
			r.Put("/{relationID}", s.UpdateRelation)
			r.Delete("/{relationID}", s.DeleteRelation)
		})

		r.Post("/links", s.Link)
		r.Delete("/links/{edgeID}", s.Unlink)

		r.Route("/graph", func(r chi.Router) {
			r.Post("/build", s.BuildGraph)
			r.Post("/analyze", s.AnalyzeGraph)
			r.Post("/path", s.ShortestPath)
		})
	})
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status, httpStatus := "ok", http.StatusOK
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			checks["storage"] = "unavailable"
			status, httpStatus = "degraded", http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	}
	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns an error message for the client without
// exposing internals. Typed domain errors and sentinels carry messages
// the engine itself built; anything else is opaque.
func safeDomainMessage(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var pe *domain.PermissionError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	var qe *domain.QueryError
	if errors.As(err, &qe) {
		return qe.Error()
	}
	var re *domain.RelationError
	if errors.As(err, &re) {
		return re.Error()
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		domain.ErrQuotaExceeded,
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// validationErrorHandler maps validation failures to 400 with the
// offending field id.
func validationErrorHandler(w http.ResponseWriter, err error, msg string) bool {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Code:    codeValidationFailed,
		Message: msg,
		FieldID: ve.FieldID,
	})
	return true
}

// permissionErrorHandler maps permission failures to 403.
func permissionErrorHandler(w http.ResponseWriter, err error, msg string) bool {
	var pe *domain.PermissionError
	if !errors.As(err, &pe) {
		return false
	}
	writeError(w, http.StatusForbidden, codePermissionDenied, msg)
	return true
}

// queryErrorHandler maps query failures to 400, timeouts to 408,
// carrying the reason code for clients.
func queryErrorHandler(w http.ResponseWriter, err error, msg string) bool {
	var qe *domain.QueryError
	if !errors.As(err, &qe) {
		return false
	}
	status, code := http.StatusBadRequest, codeQueryFailed
	if qe.IsTimeout() {
		status, code = http.StatusRequestTimeout, codeQueryTimeout
	}
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: msg,
		Reason:  qe.Reason,
	})
	return true
}

// relationErrorHandler maps relation constraint violations to 409.
func relationErrorHandler(w http.ResponseWriter, err error, msg string) bool {
	var re *domain.RelationError
	if !errors.As(err, &re) {
		return false
	}
	writeError(w, http.StatusConflict, codeRelationConflict, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
