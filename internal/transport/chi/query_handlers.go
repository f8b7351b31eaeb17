package chi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gridbase/gridbase/internal/domain/query"
)

// ExecuteQuery handles POST /api/v1/collections/{collectionID}/query.
func (s *Server) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var q query.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	q.CollectionID = chi.URLParam(r, "collectionID")

	res, err := s.queries.Execute(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AnalyzeQuery handles POST /api/v1/collections/{collectionID}/query/analyze.
// The query is assessed without being executed.
func (s *Server) AnalyzeQuery(w http.ResponseWriter, r *http.Request) {
	var q query.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	q.CollectionID = chi.URLParam(r, "collectionID")

	analysis, err := s.queries.Analyze(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// SuggestIndexes handles POST /api/v1/collections/{collectionID}/query/indexes.
func (s *Server) SuggestIndexes(w http.ResponseWriter, r *http.Request) {
	var q query.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	q.CollectionID = chi.URLParam(r, "collectionID")

	suggestions, err := s.queries.SuggestIndexes(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": suggestions, "total": len(suggestions)})
}
