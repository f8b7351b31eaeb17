package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gridbase/gridbase/internal/config"
	"github.com/gridbase/gridbase/internal/domain"
	"github.com/gridbase/gridbase/internal/domain/field"
	"github.com/gridbase/gridbase/internal/domain/query"
	"github.com/gridbase/gridbase/internal/domain/relation"
	"github.com/gridbase/gridbase/internal/domain/view"
	"github.com/gridbase/gridbase/internal/repository/memory"
	collectionuc "github.com/gridbase/gridbase/internal/usecase/collection"
	queryuc "github.com/gridbase/gridbase/internal/usecase/query"
	relationuc "github.com/gridbase/gridbase/internal/usecase/relation"
)

// --- Fixtures ---

type testEnv struct {
	handler     http.Handler
	collections *collectionuc.Service
	relations   *relationuc.Service
	store       *memory.Store
}

func newTestEnv(t *testing.T, cfg config.EngineConfig) testEnv {
	t.Helper()
	store := memory.New()
	logger := zap.NewNop()

	querySvc := queryuc.NewService(store.Collections, store.Records,
		queryuc.NewCache(time.Minute), nil, logger, cfg)
	relSvc := relationuc.NewService(store.Relations, store.Edges,
		store.Collections, store.Records, nil, logger, cfg)
	colSvc := collectionuc.NewService(store.Collections, store.Records, store.Views,
		nil, relSvc, querySvc, nil, logger, cfg)

	router := chi.NewRouter()
	NewServer(colSvc, querySvc, relSvc, logger).Routes(router)
	return testEnv{handler: router, collections: colSvc, relations: relSvc, store: store}
}

func (e testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}

// seedTasks creates a Tasks collection with a required Title and a
// numeric Score through the service layer.
func seedTasks(t *testing.T, env testEnv) (string, field.Field, field.Field) {
	t.Helper()
	title, err := field.New("Title", field.TypeText)
	if err != nil {
		t.Fatalf("field.New: %v", err)
	}
	title.Required = true
	score, err := field.New("Score", field.TypeNumber)
	if err != nil {
		t.Fatalf("field.New: %v", err)
	}
	col, err := env.collections.CreateCollection(context.Background(), "Tasks",
		[]field.Field{title, score})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	return col.ID, title, score
}

// --- Tests ---

func TestHealth(t *testing.T) {
	env := newTestEnv(t, config.Default().Engine)
	rec := env.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Status != "ok" {
		t.Errorf("health body: %s err=%v", rec.Body.String(), err)
	}
}

func TestCollectionLifecycle(t *testing.T) {
	env := newTestEnv(t, config.Default().Engine)

	rec := env.do(t, http.MethodPost, "/api/v1/collections", map[string]any{
		"name": "Notes",
		"fields": []map[string]any{
			{"name": "Title", "type": "text"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil || created.ID == "" {
		t.Fatalf("create body: %s err=%v", rec.Body.String(), err)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/collections/"+created.ID, nil); rec.Code != http.StatusOK {
		t.Errorf("get: got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/collections/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing collection: got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != codeNotFound {
		t.Errorf("error code: got %q", body.Code)
	}

	if rec := env.do(t, http.MethodDelete, "/api/v1/collections/"+created.ID, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete: got %d", rec.Code)
	}
}

func TestCreateCollection_QuotaCode(t *testing.T) {
	cfg := config.Default().Engine
	cfg.MaxCollections = 1
	env := newTestEnv(t, cfg)

	if rec := env.do(t, http.MethodPost, "/api/v1/collections", map[string]any{"name": "First"}); rec.Code != http.StatusCreated {
		t.Fatalf("first create: got %d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/v1/collections", map[string]any{"name": "Second"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("quota status: got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != codeQuotaExceeded {
		t.Errorf("error code: got %q", body.Code)
	}
}

func TestCreateRecord_ValidationCode(t *testing.T) {
	env := newTestEnv(t, config.Default().Engine)
	colID, title, score := seedTasks(t, env)

	// Required title missing.
	rec := env.do(t, http.MethodPost, "/api/v1/collections/"+colID+"/records", map[string]any{
		"values": map[string]any{score.ID: 5},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("validation status: got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeError(t, rec)
	if body.Code != codeValidationFailed {
		t.Errorf("error code: got %q", body.Code)
	}
	if body.FieldID != title.ID {
		t.Errorf("field id: got %q, want %q", body.FieldID, title.ID)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	env := newTestEnv(t, config.Default().Engine)
	colID, title, score := seedTasks(t, env)
	base := "/api/v1/collections/" + colID + "/records"

	rec := env.do(t, http.MethodPost, base, map[string]any{
		"values": map[string]any{title.ID: "Ship it", score.ID: 3},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil || created.ID == "" {
		t.Fatalf("create body: %s err=%v", rec.Body.String(), err)
	}

	rec = env.do(t, http.MethodPatch, base+"/"+created.ID, map[string]any{
		"values": map[string]any{score.ID: 8},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: got %d: %s", rec.Code, rec.Body.String())
	}

	// Soft delete hides the record from the default listing.
	if rec := env.do(t, http.MethodDelete, base+"/"+created.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, base, nil)
	var listing struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil || listing.Total != 0 {
		t.Errorf("listing after soft delete: %s err=%v", rec.Body.String(), err)
	}
	rec = env.do(t, http.MethodGet, base+"?include_deleted=true", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil || listing.Total != 1 {
		t.Errorf("listing with deleted: %s err=%v", rec.Body.String(), err)
	}
}

func TestExecuteQuery(t *testing.T) {
	env := newTestEnv(t, config.Default().Engine)
	colID, title, score := seedTasks(t, env)
	ctx := context.Background()

	rows := []map[string]any{
		{title.ID: "Alpha", score.ID: 3.0},
		{title.ID: "Beta", score.ID: 8.0},
	}
	for _, values := range rows {
		if _, err := env.collections.CreateRecord(ctx, colID, values); err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}

	q := query.NewBuilder(colID).Where(score.ID, view.OpGreaterThan, 5).Build()
	rec := env.do(t, http.MethodPost, "/api/v1/collections/"+colID+"/query", q)
	if rec.Code != http.StatusOK {
		t.Fatalf("query: got %d: %s", rec.Code, rec.Body.String())
	}
	var res query.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Values[title.ID] != "Beta" {
		t.Errorf("result: %+v", res.Records)
	}
}

func TestExecuteQuery_ErrorCode(t *testing.T) {
	env := newTestEnv(t, config.Default().Engine)
	colID, _, _ := seedTasks(t, env)

	q := query.NewBuilder(colID).Where("ghost", view.OpEquals, "x").Build()
	rec := env.do(t, http.MethodPost, "/api/v1/collections/"+colID+"/query", q)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Code != codeQueryFailed {
		t.Errorf("error code: got %q", body.Code)
	}
	if body.Reason != domain.QueryReasonUnknownField {
		t.Errorf("reason: got %q", body.Reason)
	}
}

func TestLink_DuplicateConflict(t *testing.T) {
	env := newTestEnv(t, config.Default().Engine)
	ctx := context.Background()

	ref, err := field.New("Linked", field.TypeRelation)
	if err != nil {
		t.Fatalf("field.New: %v", err)
	}
	notes, err := env.collections.CreateCollection(ctx, "Notes", []field.Field{ref})
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	a, err := env.collections.CreateRecord(ctx, notes.ID, nil)
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	b, err := env.collections.CreateRecord(ctx, notes.ID, nil)
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	rel, err := relation.New("linked notes", relation.ManyToMany, notes.ID, notes.ID, ref.ID)
	if err != nil {
		t.Fatalf("relation.New: %v", err)
	}
	rel, err = env.relations.CreateRelation(ctx, rel)
	if err != nil {
		t.Fatalf("CreateRelation: %v", err)
	}

	payload := map[string]any{
		"relation_id":      rel.ID,
		"source_record_id": a.ID,
		"target_record_id": b.ID,
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/links", payload); rec.Code != http.StatusCreated {
		t.Fatalf("first link: got %d: %s", rec.Code, rec.Body.String())
	}
	rec := env.do(t, http.MethodPost, "/api/v1/links", payload)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate link: got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != codeAlreadyExists {
		t.Errorf("error code: got %q", body.Code)
	}
}

func TestGraphEndpoints(t *testing.T) {
	env := newTestEnv(t, config.Default().Engine)
	ctx := context.Background()

	ref, err := field.New("Linked", field.TypeRelation)
	if err != nil {
		t.Fatalf("field.New: %v", err)
	}
	notes, err := env.collections.CreateCollection(ctx, "Notes", []field.Field{ref})
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	var ids []string
	for n := 0; n < 3; n++ {
		r, err := env.collections.CreateRecord(ctx, notes.ID, nil)
		if err != nil {
			t.Fatalf("create record: %v", err)
		}
		ids = append(ids, r.ID)
	}
	rel, err := relation.New("linked notes", relation.ManyToMany, notes.ID, notes.ID, ref.ID)
	if err != nil {
		t.Fatalf("relation.New: %v", err)
	}
	rel, err = env.relations.CreateRelation(ctx, rel)
	if err != nil {
		t.Fatalf("CreateRelation: %v", err)
	}
	for i := 0; i < len(ids)-1; i++ {
		edge, err := relation.NewRecord(rel.ID, ids[i], ids[i+1])
		if err != nil {
			t.Fatalf("relation.NewRecord: %v", err)
		}
		if _, err := env.relations.Link(ctx, edge); err != nil {
			t.Fatalf("link: %v", err)
		}
	}

	rec := env.do(t, http.MethodPost, "/api/v1/graph/build", map[string]any{
		"relation_ids": []string{rel.ID},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("build: got %d: %s", rec.Code, rec.Body.String())
	}
	var g relationuc.Graph
	if err := json.Unmarshal(rec.Body.Bytes(), &g); err != nil {
		t.Fatalf("decode graph: %v", err)
	}
	if g.Properties.NodeCount != 3 || g.Properties.EdgeCount != 2 {
		t.Errorf("graph size: %+v", g.Properties)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/graph/path", map[string]any{
		"relation_ids":   []string{rel.ID},
		"from_record_id": ids[0],
		"to_record_id":   ids[2],
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("path: got %d: %s", rec.Code, rec.Body.String())
	}
	var path relationuc.Path
	if err := json.Unmarshal(rec.Body.Bytes(), &path); err != nil {
		t.Fatalf("decode path: %v", err)
	}
	if path.Length != 2 {
		t.Errorf("path length: got %d", path.Length)
	}
}
