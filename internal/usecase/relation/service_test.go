package relation

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/gridbase/gridbase/internal/config"
	"github.com/gridbase/gridbase/internal/domain"
	"github.com/gridbase/gridbase/internal/domain/collection"
	"github.com/gridbase/gridbase/internal/domain/field"
	"github.com/gridbase/gridbase/internal/domain/record"
	"github.com/gridbase/gridbase/internal/domain/relation"
	"github.com/gridbase/gridbase/internal/events"
	"github.com/gridbase/gridbase/internal/repository/memory"
)

// --- Fixtures ---

func newTestService(t *testing.T) (*Service, *memory.Store, *events.Recorder) {
	t.Helper()
	store := memory.New()
	recorder := &events.Recorder{}
	cfg := config.Default().Engine
	svc := NewService(store.Relations, store.Edges, store.Collections, store.Records,
		recorder, zap.NewNop(), cfg)
	return svc, store, recorder
}

// seedCollection creates a collection with a relation field whose id is
// "<name>_ref", plus n records named r1..rn with ids "<name>-1"..
func seedCollection(t *testing.T, store *memory.Store, name string, n int) collection.Collection {
	t.Helper()
	ctx := context.Background()

	ref, err := field.New("Linked", field.TypeRelation)
	if err != nil {
		t.Fatalf("field.New: %v", err)
	}
	ref.ID = name + "_ref"
	title, err := field.New("Title", field.TypeText)
	if err != nil {
		t.Fatalf("field.New: %v", err)
	}

	col, err := collection.New(name, []field.Field{title, ref})
	if err != nil {
		t.Fatalf("collection.New: %v", err)
	}
	if err := store.Collections.Save(ctx, col); err != nil {
		t.Fatalf("save collection: %v", err)
	}

	for i := 1; i <= n; i++ {
		rec := record.New(col.ID, map[string]any{title.ID: name})
		rec.ID = name + "-" + string(rune('0'+i))
		if err := store.Records.Save(ctx, rec); err != nil {
			t.Fatalf("save record: %v", err)
		}
	}
	return col
}

func makeRelation(t *testing.T, src, tgt collection.Collection, rt relation.Type) relation.Relation {
	t.Helper()
	rel, err := relation.New(src.Name+"-"+tgt.Name, rt, src.ID, tgt.ID, src.Name+"_ref")
	if err != nil {
		t.Fatalf("relation.New: %v", err)
	}
	return rel
}

func makeEdge(t *testing.T, relationID, srcRecord, tgtRecord string) relation.Record {
	t.Helper()
	edge, err := relation.NewRecord(relationID, srcRecord, tgtRecord)
	if err != nil {
		t.Fatalf("relation.NewRecord: %v", err)
	}
	return edge
}

// --- Relation CRUD ---

func TestCreateRelation(t *testing.T) {
	svc, store, recorder := newTestService(t)
	ctx := context.Background()
	projects := seedCollection(t, store, "projects", 1)
	tasks := seedCollection(t, store, "tasks", 1)

	rel, err := svc.CreateRelation(ctx, makeRelation(t, projects, tasks, relation.OneToMany))
	if err != nil {
		t.Fatalf("CreateRelation: %v", err)
	}
	if !rel.Config.AllowLink || !rel.Config.AllowUnlink {
		t.Error("link and unlink default to allowed")
	}
	if !recorder.Has(events.RelationCreated) {
		t.Error("expected a relation.created event")
	}
}

func TestCreateRelation_UnknownSourceField(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	projects := seedCollection(t, store, "projects", 1)
	tasks := seedCollection(t, store, "tasks", 1)

	rel := makeRelation(t, projects, tasks, relation.OneToMany)
	rel.SourceFieldID = "ghost"
	if _, err := svc.CreateRelation(ctx, rel); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected a validation error, got %v", err)
	}
}

func TestCreateRelation_FieldAlreadyBound(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	projects := seedCollection(t, store, "projects", 1)
	tasks := seedCollection(t, store, "tasks", 1)

	if _, err := svc.CreateRelation(ctx, makeRelation(t, projects, tasks, relation.OneToMany)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.CreateRelation(ctx, makeRelation(t, projects, tasks, relation.ManyToMany))
	if !errors.Is(err, domain.ErrRelation) {
		t.Errorf("expected a relation error for the bound field, got %v", err)
	}
}

func TestCreateRelation_ForbiddenCycle(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := seedCollection(t, store, "alpha", 1)
	b := seedCollection(t, store, "beta", 1)

	if _, err := svc.CreateRelation(ctx, makeRelation(t, a, b, relation.OneToMany)); err != nil {
		t.Fatalf("a->b: %v", err)
	}

	back := makeRelation(t, b, a, relation.OneToMany)
	back.Constraints = []relation.Constraint{{Type: relation.ConstraintCircularRef, Allowed: false}}
	if _, err := svc.CreateRelation(ctx, back); !errors.Is(err, domain.ErrRelation) {
		t.Errorf("b->a closes a forbidden cycle, got %v", err)
	}

	// Without the constraint the cycle is permitted.
	if _, err := svc.CreateRelation(ctx, makeRelation(t, b, a, relation.OneToMany)); err != nil {
		t.Errorf("unconstrained cycle must be allowed: %v", err)
	}
}

func TestUpdateRelation_NotFound(t *testing.T) {
	svc, store, _ := newTestService(t)
	projects := seedCollection(t, store, "projects", 1)
	tasks := seedCollection(t, store, "tasks", 1)

	rel := makeRelation(t, projects, tasks, relation.OneToMany)
	if _, err := svc.UpdateRelation(context.Background(), rel); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRelation_RemovesEdges(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	projects := seedCollection(t, store, "projects", 1)
	tasks := seedCollection(t, store, "tasks", 2)

	rel, err := svc.CreateRelation(ctx, makeRelation(t, projects, tasks, relation.OneToMany))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-1", "tasks-1")); err != nil {
		t.Fatalf("link: %v", err)
	}

	if err := svc.DeleteRelation(ctx, rel.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	edges, err := store.Edges.ListByRelation(ctx, rel.ID)
	if err != nil {
		t.Fatalf("list edges: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("edges survived the relation delete: %d", len(edges))
	}
}

// --- Linking ---

func TestLink_Constraints(t *testing.T) {
	svc, store, recorder := newTestService(t)
	ctx := context.Background()
	projects := seedCollection(t, store, "projects", 2)
	tasks := seedCollection(t, store, "tasks", 3)

	rel, err := svc.CreateRelation(ctx, makeRelation(t, projects, tasks, relation.ManyToMany))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-1", "tasks-1")); err != nil {
		t.Fatalf("link: %v", err)
	}
	if !recorder.Has(events.RelationLinked) {
		t.Error("expected a relation.linked event")
	}

	// Duplicate edge.
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-1", "tasks-1")); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("duplicate edge: got %v", err)
	}

	// Missing target record.
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-1", "ghost")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing target: got %v", err)
	}
}

func TestLink_SelfReference(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	notes := seedCollection(t, store, "notes", 1)

	rel := makeRelation(t, notes, notes, relation.ManyToMany)
	rel.Constraints = []relation.Constraint{{Type: relation.ConstraintCircularRef, Allowed: true}}
	rel, err := svc.CreateRelation(ctx, rel)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "notes-1", "notes-1")); err != nil {
		t.Errorf("explicitly allowed self-reference rejected: %v", err)
	}

	plain := makeRelation(t, notes, notes, relation.ManyToMany)
	plain.SourceFieldID = "notes_ref"
	plain.ID = plain.ID + "-2"
	if err := store.Relations.Save(ctx, plain); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.Link(ctx, makeEdge(t, plain.ID, "notes-1", "notes-1")); !errors.Is(err, domain.ErrRelation) {
		t.Errorf("default self-reference must be rejected, got %v", err)
	}
}

func TestLink_OneToOne(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	projects := seedCollection(t, store, "projects", 1)
	tasks := seedCollection(t, store, "tasks", 2)

	rel, err := svc.CreateRelation(ctx, makeRelation(t, projects, tasks, relation.OneToOne))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-1", "tasks-1")); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-1", "tasks-2")); !errors.Is(err, domain.ErrRelation) {
		t.Errorf("one_to_one source must not link twice, got %v", err)
	}
}

func TestLink_UniqueTargetAndMaxCount(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	projects := seedCollection(t, store, "projects", 2)
	tasks := seedCollection(t, store, "tasks", 3)

	maxC := 2
	rel := makeRelation(t, projects, tasks, relation.ManyToMany)
	rel.Config.AllowLink, rel.Config.AllowUnlink = true, true
	rel.Config.MaxCount = &maxC
	rel.Constraints = []relation.Constraint{{Type: relation.ConstraintUniqueTarget}}
	rel, err := svc.CreateRelation(ctx, rel)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-1", "tasks-1")); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-2", "tasks-1")); !errors.Is(err, domain.ErrRelation) {
		t.Errorf("unique_target must reject a second link to tasks-1, got %v", err)
	}

	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-1", "tasks-2")); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-1", "tasks-3")); !errors.Is(err, domain.ErrRelation) {
		t.Errorf("max count 2 must reject the third link, got %v", err)
	}
}

func TestUnlink_MinCount(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	projects := seedCollection(t, store, "projects", 1)
	tasks := seedCollection(t, store, "tasks", 2)

	minC := 1
	rel := makeRelation(t, projects, tasks, relation.OneToMany)
	rel.Config.MinCount = &minC
	rel, err := svc.CreateRelation(ctx, rel)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	e1, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-1", "tasks-1"))
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	e2, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-1", "tasks-2"))
	if err != nil {
		t.Fatalf("link: %v", err)
	}

	if err := svc.Unlink(ctx, e2.ID); err != nil {
		t.Fatalf("unlink above min count: %v", err)
	}
	if err := svc.Unlink(ctx, e1.ID); !errors.Is(err, domain.ErrRelation) {
		t.Errorf("unlink below min count must fail, got %v", err)
	}
}

func TestUnlink_Disabled(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	projects := seedCollection(t, store, "projects", 1)
	tasks := seedCollection(t, store, "tasks", 1)

	rel := makeRelation(t, projects, tasks, relation.OneToMany)
	rel.Config.AllowUnlink = false
	rel.Config.AllowLink = true
	rel.Config.AllowCreate = true
	rel, err := svc.CreateRelation(ctx, rel)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	edge, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-1", "tasks-1"))
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := svc.Unlink(ctx, edge.ID); !errors.Is(err, domain.ErrRelation) {
		t.Errorf("disabled unlink must fail, got %v", err)
	}
}

// --- Record deletion hooks ---

func TestOnRecordDelete_Restrict(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	projects := seedCollection(t, store, "projects", 1)
	tasks := seedCollection(t, store, "tasks", 1)

	rel := makeRelation(t, projects, tasks, relation.OneToMany)
	rel.Constraints = []relation.Constraint{{Type: relation.ConstraintRestrictDelete}}
	rel, err := svc.CreateRelation(ctx, rel)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-1", "tasks-1")); err != nil {
		t.Fatalf("link: %v", err)
	}

	if _, err := svc.OnRecordDelete(ctx, projects.ID, "projects-1"); !errors.Is(err, domain.ErrRelation) {
		t.Errorf("restrict_delete must reject removal while edges exist, got %v", err)
	}
}

func TestOnRecordDelete_Cascade(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	projects := seedCollection(t, store, "projects", 1)
	tasks := seedCollection(t, store, "tasks", 2)

	rel := makeRelation(t, projects, tasks, relation.OneToMany)
	rel.Config.CascadeDelete = true
	rel, err := svc.CreateRelation(ctx, rel)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-1", "tasks-1")); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "projects-1", "tasks-2")); err != nil {
		t.Fatalf("link: %v", err)
	}

	targets, err := svc.OnRecordDelete(ctx, projects.ID, "projects-1")
	if err != nil {
		t.Fatalf("OnRecordDelete: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 cascade targets, got %d", len(targets))
	}
	for _, c := range targets {
		if c.CollectionID != tasks.ID {
			t.Errorf("cascade target collection: got %s", c.CollectionID)
		}
	}

	edges, err := store.Edges.ListByRecord(ctx, "projects-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("edges must be dropped on delete: %d left", len(edges))
	}
}

func TestOnRecordDelete_NoEdges(t *testing.T) {
	svc, store, _ := newTestService(t)
	projects := seedCollection(t, store, "projects", 1)

	targets, err := svc.OnRecordDelete(context.Background(), projects.ID, "projects-1")
	if err != nil || len(targets) != 0 {
		t.Errorf("no-edge delete: targets=%v err=%v", targets, err)
	}
}

// --- Edge queries ---

func TestQueryRelations(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	projects := seedCollection(t, store, "projects", 1)
	tasks := seedCollection(t, store, "tasks", 3)

	rel, err := svc.CreateRelation(ctx, makeRelation(t, projects, tasks, relation.OneToMany))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i, target := range []string{"tasks-1", "tasks-2", "tasks-3"} {
		edge := makeEdge(t, rel.ID, "projects-1", target)
		edge.Properties.Weight = float64(i + 1)
		if _, err := svc.Link(ctx, edge); err != nil {
			t.Fatalf("link %s: %v", target, err)
		}
	}

	edges, err := svc.QueryRelations(ctx, QueryParams{RecordIDs: []string{"projects-1"}})
	if err != nil {
		t.Fatalf("QueryRelations: %v", err)
	}
	if len(edges) != 3 {
		t.Fatalf("expected 3 edges, got %d", len(edges))
	}

	// Weight sort puts the heaviest first.
	edges, err = svc.QueryRelations(ctx, QueryParams{
		RecordIDs: []string{"projects-1"}, SortByWeight: true,
	})
	if err != nil {
		t.Fatalf("QueryRelations: %v", err)
	}
	if edges[0].Properties.Weight != 3 {
		t.Errorf("weight sort: got %v first", edges[0].Properties.Weight)
	}

	// Pagination.
	edges, err = svc.QueryRelations(ctx, QueryParams{
		RecordIDs: []string{"projects-1"}, Page: 2, PageSize: 2,
	})
	if err != nil {
		t.Fatalf("QueryRelations: %v", err)
	}
	if len(edges) != 1 {
		t.Errorf("page 2 of size 2 over 3 edges: got %d", len(edges))
	}
}

func TestQueryRelations_Depth(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	notes := seedCollection(t, store, "notes", 3)

	rel := makeRelation(t, notes, notes, relation.ManyToMany)
	rel, err := svc.CreateRelation(ctx, rel)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// notes-1 -> notes-2 -> notes-3.
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "notes-1", "notes-2")); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "notes-2", "notes-3")); err != nil {
		t.Fatalf("link: %v", err)
	}

	direct, err := svc.QueryRelations(ctx, QueryParams{RecordIDs: []string{"notes-1"}, Depth: 1})
	if err != nil {
		t.Fatalf("QueryRelations: %v", err)
	}
	if len(direct) != 1 {
		t.Errorf("depth 1: got %d edges", len(direct))
	}

	two, err := svc.QueryRelations(ctx, QueryParams{RecordIDs: []string{"notes-1"}, Depth: 2})
	if err != nil {
		t.Fatalf("QueryRelations: %v", err)
	}
	if len(two) != 2 {
		t.Errorf("depth 2: got %d edges", len(two))
	}
}
