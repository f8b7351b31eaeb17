package chi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	domcol "github.com/gridbase/gridbase/internal/domain/collection"
	"github.com/gridbase/gridbase/internal/domain/field"
	"github.com/gridbase/gridbase/internal/domain/view"
)

// fieldRequest is a field definition in a request body. Config is a
// pointer so an omitted config falls back to the type's default.
type fieldRequest struct {
	field.Field
	Config *field.Config `json:"config,omitempty"`
}

func (fr fieldRequest) toField() (field.Field, error) {
	f := fr.Field
	if f.ID == "" {
		created, err := field.New(f.Name, f.Type)
		if err != nil {
			return field.Field{}, err
		}
		f.ID = created.ID
		f.Config = created.Config
	}
	if fr.Config != nil {
		f.Config = *fr.Config
	}
	return f, nil
}

type createCollectionRequest struct {
	Name   string         `json:"name"`
	Fields []fieldRequest `json:"fields,omitempty"`
}

// CreateCollection handles POST /api/v1/collections.
func (s *Server) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	fields := make([]field.Field, 0, len(req.Fields))
	for _, fr := range req.Fields {
		f, err := fr.toField()
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		fields = append(fields, f)
	}

	col, err := s.collections.CreateCollection(r.Context(), req.Name, fields)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, col)
}

// ListCollections handles GET /api/v1/collections.
func (s *Server) ListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.collections.ListCollections(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": cols, "total": len(cols)})
}

// GetCollection handles GET /api/v1/collections/{collectionID}.
func (s *Server) GetCollection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "collectionID")
	col, err := s.collections.GetCollection(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if col.ID == "" {
		writeError(w, http.StatusNotFound, codeNotFound, "collection "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, col)
}

// UpdateCollection handles PUT /api/v1/collections/{collectionID}.
func (s *Server) UpdateCollection(w http.ResponseWriter, r *http.Request) {
	var col domcol.Collection
	if err := json.NewDecoder(r.Body).Decode(&col); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	col.ID = chi.URLParam(r, "collectionID")

	updated, err := s.collections.UpdateCollection(r.Context(), col)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteCollection handles DELETE /api/v1/collections/{collectionID}.
func (s *Server) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.collections.DeleteCollection(r.Context(), chi.URLParam(r, "collectionID")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type duplicateCollectionRequest struct {
	Name        string `json:"name"`
	WithRecords bool   `json:"with_records,omitempty"`
}

// DuplicateCollection handles POST /api/v1/collections/{collectionID}/duplicate.
func (s *Server) DuplicateCollection(w http.ResponseWriter, r *http.Request) {
	var req duplicateCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	dup, err := s.collections.DuplicateCollection(
		r.Context(), chi.URLParam(r, "collectionID"), req.Name, req.WithRecords)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dup)
}

// AddField handles POST /api/v1/collections/{collectionID}/fields.
func (s *Server) AddField(w http.ResponseWriter, r *http.Request) {
	var req fieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	f, err := req.toField()
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	added, err := s.collections.AddField(r.Context(), chi.URLParam(r, "collectionID"), f)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// UpdateField handles PUT /api/v1/collections/{collectionID}/fields/{fieldID}.
func (s *Server) UpdateField(w http.ResponseWriter, r *http.Request) {
	var f field.Field
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	f.ID = chi.URLParam(r, "fieldID")

	updated, err := s.collections.UpdateField(r.Context(), chi.URLParam(r, "collectionID"), f)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// RemoveField handles DELETE /api/v1/collections/{collectionID}/fields/{fieldID}.
func (s *Server) RemoveField(w http.ResponseWriter, r *http.Request) {
	err := s.collections.RemoveField(r.Context(),
		chi.URLParam(r, "collectionID"), chi.URLParam(r, "fieldID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateView handles POST /api/v1/collections/{collectionID}/views.
func (s *Server) CreateView(w http.ResponseWriter, r *http.Request) {
	var v view.View
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	v.CollectionID = chi.URLParam(r, "collectionID")
	if v.ID == "" {
		created, err := view.New(v.CollectionID, v.Name, v.Type)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		v.ID = created.ID
	}

	saved, err := s.collections.CreateView(r.Context(), v)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// ListViews handles GET /api/v1/collections/{collectionID}/views.
func (s *Server) ListViews(w http.ResponseWriter, r *http.Request) {
	vws, err := s.collections.ListViews(r.Context(), chi.URLParam(r, "collectionID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": vws, "total": len(vws)})
}

// GetView handles GET /api/v1/views/{viewID}.
func (s *Server) GetView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "viewID")
	v, err := s.collections.GetView(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if v.ID == "" {
		writeError(w, http.StatusNotFound, codeNotFound, "view "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// UpdateView handles PUT /api/v1/views/{viewID}.
func (s *Server) UpdateView(w http.ResponseWriter, r *http.Request) {
	var v view.View
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	v.ID = chi.URLParam(r, "viewID")

	updated, err := s.collections.UpdateView(r.Context(), v)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteView handles DELETE /api/v1/views/{viewID}.
func (s *Server) DeleteView(w http.ResponseWriter, r *http.Request) {
	if err := s.collections.DeleteView(r.Context(), chi.URLParam(r, "viewID")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recordValuesRequest struct {
	Values map[string]any `json:"values"`
}

// CreateRecord handles POST /api/v1/collections/{collectionID}/records.
func (s *Server) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req recordValuesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	rec, err := s.collections.CreateRecord(r.Context(), chi.URLParam(r, "collectionID"), req.Values)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListRecords handles GET /api/v1/collections/{collectionID}/records.
func (s *Server) ListRecords(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	recs, err := s.collections.ListRecords(r.Context(), chi.URLParam(r, "collectionID"), includeDeleted)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": recs, "total": len(recs)})
}

// GetRecord handles GET /api/v1/collections/{collectionID}/records/{recordID}.
func (s *Server) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "recordID")
	rec, err := s.collections.GetRecord(r.Context(), chi.URLParam(r, "collectionID"), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if rec.ID == "" {
		writeError(w, http.StatusNotFound, codeNotFound, "record "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdateRecord handles PATCH /api/v1/collections/{collectionID}/records/{recordID}.
func (s *Server) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req recordValuesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	rec, err := s.collections.UpdateRecord(r.Context(),
		chi.URLParam(r, "collectionID"), chi.URLParam(r, "recordID"), req.Values)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteRecord handles DELETE /api/v1/collections/{collectionID}/records/{recordID}.
// Soft by default; ?hard=true removes the row permanently.
func (s *Server) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	hard := r.URL.Query().Get("hard") == "true"
	err := s.collections.DeleteRecord(r.Context(),
		chi.URLParam(r, "collectionID"), chi.URLParam(r, "recordID"), hard)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetRecordArchived handles POST /api/v1/collections/{collectionID}/records/{recordID}/archive.
func (s *Server) SetRecordArchived(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Archived bool `json:"archived"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	rec, err := s.collections.SetRecordArchived(r.Context(),
		chi.URLParam(r, "collectionID"), chi.URLParam(r, "recordID"), req.Archived)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// SetRecordTags handles PUT /api/v1/collections/{collectionID}/records/{recordID}/tags.
func (s *Server) SetRecordTags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	rec, err := s.collections.SetRecordTags(r.Context(),
		chi.URLParam(r, "collectionID"), chi.URLParam(r, "recordID"), req.Tags)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
