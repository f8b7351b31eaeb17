package chi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gridbase/gridbase/internal/domain/relation"
	relationuc "github.com/gridbase/gridbase/internal/usecase/relation"
)

// relationRequest is a relation definition in a request body. Config is
// a pointer so an omitted config keeps the engine defaults (link and
// unlink allowed).
type relationRequest struct {
	Name               string                `json:"name"`
	Type               relation.Type         `json:"type"`
	SourceCollectionID string                `json:"source_collection_id"`
	TargetCollectionID string                `json:"target_collection_id"`
	SourceFieldID      string                `json:"source_field_id"`
	TargetFieldID      string                `json:"target_field_id,omitempty"`
	Config             *relation.Config      `json:"config,omitempty"`
	Constraints        []relation.Constraint `json:"constraints,omitempty"`
}

func (rr relationRequest) toRelation() (relation.Relation, error) {
	rel, err := relation.New(rr.Name, rr.Type,
		rr.SourceCollectionID, rr.TargetCollectionID, rr.SourceFieldID)
	if err != nil {
		return relation.Relation{}, err
	}
	rel.TargetFieldID = rr.TargetFieldID
	rel.Constraints = rr.Constraints
	if rr.Config != nil {
		rel.Config = *rr.Config
	}
	return rel, nil
}

// CreateRelation handles POST /api/v1/relations.
func (s *Server) CreateRelation(w http.ResponseWriter, r *http.Request) {
	var req relationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	rel, err := req.toRelation()
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	created, err := s.relations.CreateRelation(r.Context(), rel)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListRelations handles GET /api/v1/relations?collection_id=...
func (s *Server) ListRelations(w http.ResponseWriter, r *http.Request) {
	collectionID := r.URL.Query().Get("collection_id")
	if collectionID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "collection_id query parameter is required")
		return
	}
	rels, err := s.relations.ListRelations(r.Context(), collectionID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": rels, "total": len(rels)})
}

// GetRelation handles GET /api/v1/relations/{relationID}.
func (s *Server) GetRelation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "relationID")
	rel, err := s.relations.GetRelation(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if rel.ID == "" {
		writeError(w, http.StatusNotFound, codeNotFound, "relation "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// UpdateRelation handles PUT /api/v1/relations/{relationID}.
func (s *Server) UpdateRelation(w http.ResponseWriter, r *http.Request) {
	var rel relation.Relation
	if err := json.NewDecoder(r.Body).Decode(&rel); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	rel.ID = chi.URLParam(r, "relationID")

	updated, err := s.relations.UpdateRelation(r.Context(), rel)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteRelation handles DELETE /api/v1/relations/{relationID}.
func (s *Server) DeleteRelation(w http.ResponseWriter, r *http.Request) {
	if err := s.relations.DeleteRelation(r.Context(), chi.URLParam(r, "relationID")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type linkRequest struct {
	RelationID     string                    `json:"relation_id"`
	SourceRecordID string                    `json:"source_record_id"`
	TargetRecordID string                    `json:"target_record_id"`
	Properties     relation.RecordProperties `json:"properties,omitempty"`
}

// Link handles POST /api/v1/links.
func (s *Server) Link(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	edge, err := relation.NewRecord(req.RelationID, req.SourceRecordID, req.TargetRecordID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	edge.Properties = req.Properties

	linked, err := s.relations.Link(r.Context(), edge)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, linked)
}

// Unlink handles DELETE /api/v1/links/{edgeID}.
func (s *Server) Unlink(w http.ResponseWriter, r *http.Request) {
	if err := s.relations.Unlink(r.Context(), chi.URLParam(r, "edgeID")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type queryRelationsRequest struct {
	RecordIDs    []string `json:"record_ids"`
	RelationID   string   `json:"relation_id,omitempty"`
	Depth        int      `json:"depth,omitempty"`
	SortByWeight bool     `json:"sort_by_weight,omitempty"`
	Page         int      `json:"page,omitempty"`
	PageSize     int      `json:"page_size,omitempty"`
}

// QueryRelations handles POST /api/v1/relations/query.
func (s *Server) QueryRelations(w http.ResponseWriter, r *http.Request) {
	var req queryRelationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.RecordIDs) == 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "record_ids is required")
		return
	}

	edges, err := s.relations.QueryRelations(r.Context(), relationuc.QueryParams{
		RecordIDs:    req.RecordIDs,
		RelationID:   req.RelationID,
		Depth:        req.Depth,
		SortByWeight: req.SortByWeight,
		Page:         req.Page,
		PageSize:     req.PageSize,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": edges, "total": len(edges)})
}

type buildGraphRequest struct {
	CollectionIDs []string `json:"collection_ids,omitempty"`
	RelationIDs   []string `json:"relation_ids,omitempty"`
	RootRecordIDs []string `json:"root_record_ids,omitempty"`
	Depth         int      `json:"depth,omitempty"`
}

func (req buildGraphRequest) params() relationuc.BuildParams {
	return relationuc.BuildParams{
		CollectionIDs: req.CollectionIDs,
		RelationIDs:   req.RelationIDs,
		RootRecordIDs: req.RootRecordIDs,
		Depth:         req.Depth,
	}
}

// BuildGraph handles POST /api/v1/graph/build.
func (s *Server) BuildGraph(w http.ResponseWriter, r *http.Request) {
	var req buildGraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	g, err := s.relations.BuildGraph(r.Context(), req.params())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// AnalyzeGraph handles POST /api/v1/graph/analyze: materializes the
// selected graph and runs the full analytics suite on it.
func (s *Server) AnalyzeGraph(w http.ResponseWriter, r *http.Request) {
	var req buildGraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	g, err := s.relations.BuildGraph(r.Context(), req.params())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	analysis, err := s.relations.Analyze(r.Context(), g)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"properties": g.Properties,
		"analysis":   analysis,
	})
}

type shortestPathRequest struct {
	buildGraphRequest
	FromRecordID string `json:"from_record_id"`
	ToRecordID   string `json:"to_record_id"`
}

// ShortestPath handles POST /api/v1/graph/path.
func (s *Server) ShortestPath(w http.ResponseWriter, r *http.Request) {
	var req shortestPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.FromRecordID == "" || req.ToRecordID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "from_record_id and to_record_id are required")
		return
	}

	g, err := s.relations.BuildGraph(r.Context(), req.params())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	path, err := s.relations.ShortestPath(g, req.FromRecordID, req.ToRecordID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, path)
}
