package memory

import (
	"context"
	"testing"
	"time"

	"github.com/gridbase/gridbase/internal/domain/collection"
	"github.com/gridbase/gridbase/internal/domain/field"
	"github.com/gridbase/gridbase/internal/domain/record"
	"github.com/gridbase/gridbase/internal/domain/relation"
	"github.com/gridbase/gridbase/internal/domain/view"
)

// --- Fixtures ---

func makeCollection(t *testing.T, name string) collection.Collection {
	t.Helper()
	title, err := field.New("Title", field.TypeText)
	if err != nil {
		t.Fatalf("field.New: %v", err)
	}
	col, err := collection.New(name, []field.Field{title})
	if err != nil {
		t.Fatalf("collection.New: %v", err)
	}
	return col
}

func TestCollectionRepository(t *testing.T) {
	store := New()
	ctx := context.Background()

	missing, err := store.Collections.Get(ctx, "nope")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing.ID != "" {
		t.Errorf("missing id must yield a zero value, got %+v", missing)
	}

	older := makeCollection(t, "Older")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := makeCollection(t, "Newer")
	for _, col := range []collection.Collection{newer, older} {
		if err := store.Collections.Save(ctx, col); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := store.Collections.Get(ctx, older.ID)
	if err != nil || got.Name != "Older" {
		t.Errorf("get: %+v err=%v", got, err)
	}

	cols, err := store.Collections.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cols) != 2 || cols[0].ID != older.ID {
		t.Errorf("list must order by creation time: %v", cols)
	}

	if err := store.Collections.Delete(ctx, older.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	cols, _ = store.Collections.List(ctx)
	if len(cols) != 1 {
		t.Errorf("delete left %d collections", len(cols))
	}
}

func TestCollectionRepository_SaveIsolation(t *testing.T) {
	store := New()
	ctx := context.Background()

	col := makeCollection(t, "Tasks")
	if err := store.Collections.Save(ctx, col); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	col.Fields[0].Name = "Hacked"
	got, err := store.Collections.Get(ctx, col.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Fields[0].Name != "Title" {
		t.Errorf("stored copy shares memory with the caller: %q", got.Fields[0].Name)
	}
}

func TestRecordRepository(t *testing.T) {
	store := New()
	ctx := context.Background()

	missing, err := store.Records.Get(ctx, "col", "nope")
	if err != nil || missing.ID != "" {
		t.Errorf("missing record: %+v err=%v", missing, err)
	}

	base := time.Now().UTC().Add(-time.Minute)
	for i, title := range []string{"first", "second", "third"} {
		rec := record.New("col-a", map[string]any{"title": title})
		rec.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := store.Records.Save(ctx, rec); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	other := record.New("col-b", map[string]any{"title": "elsewhere"})
	if err := store.Records.Save(ctx, other); err != nil {
		t.Fatalf("save: %v", err)
	}

	recs, err := store.Records.ListByCollection(ctx, "col-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Values["title"] != "first" || recs[2].Values["title"] != "third" {
		t.Errorf("creation order: %v, %v", recs[0].Values, recs[2].Values)
	}

	if err := store.Records.Delete(ctx, "col-a", recs[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	recs, _ = store.Records.ListByCollection(ctx, "col-a")
	if len(recs) != 2 {
		t.Errorf("delete left %d records", len(recs))
	}

	if err := store.Records.DeleteByCollection(ctx, "col-a"); err != nil {
		t.Fatalf("delete by collection: %v", err)
	}
	recs, _ = store.Records.ListByCollection(ctx, "col-a")
	if len(recs) != 0 {
		t.Errorf("collection wipe left %d records", len(recs))
	}
	recs, _ = store.Records.ListByCollection(ctx, "col-b")
	if len(recs) != 1 {
		t.Error("wiping one collection must not touch another")
	}
}

func TestViewRepository(t *testing.T) {
	store := New()
	ctx := context.Background()

	missing, err := store.Views.Get(ctx, "nope")
	if err != nil || missing.ID != "" {
		t.Errorf("missing view: %+v err=%v", missing, err)
	}

	for _, name := range []string{"Zulu", "Alpha"} {
		v, err := view.New("col-a", name, view.TypeTable)
		if err != nil {
			t.Fatalf("view.New: %v", err)
		}
		if err := store.Views.Save(ctx, v); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	stray, err := view.New("col-b", "Elsewhere", view.TypeTable)
	if err != nil {
		t.Fatalf("view.New: %v", err)
	}
	if err := store.Views.Save(ctx, stray); err != nil {
		t.Fatalf("save: %v", err)
	}

	vws, err := store.Views.ListByCollection(ctx, "col-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(vws) != 2 {
		t.Fatalf("expected 2 views, got %d", len(vws))
	}
	if vws[0].Name != "Alpha" || vws[1].Name != "Zulu" {
		t.Errorf("views list in name order: %s, %s", vws[0].Name, vws[1].Name)
	}

	if err := store.Views.Delete(ctx, vws[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	vws, _ = store.Views.ListByCollection(ctx, "col-a")
	if len(vws) != 1 {
		t.Errorf("delete left %d views", len(vws))
	}
}

func TestRelationRepository(t *testing.T) {
	store := New()
	ctx := context.Background()

	rel, err := relation.New("tasks to notes", relation.OneToMany, "col-tasks", "col-notes", "f-ref")
	if err != nil {
		t.Fatalf("relation.New: %v", err)
	}
	if err := store.Relations.Save(ctx, rel); err != nil {
		t.Fatalf("save: %v", err)
	}
	stray, err := relation.New("projects to docs", relation.OneToMany, "col-proj", "col-docs", "f-doc")
	if err != nil {
		t.Fatalf("relation.New: %v", err)
	}
	if err := store.Relations.Save(ctx, stray); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Relations.Get(ctx, rel.ID)
	if err != nil || got.ID != rel.ID {
		t.Errorf("get: %+v err=%v", got, err)
	}

	// Participation on either side counts.
	for _, colID := range []string{"col-tasks", "col-notes"} {
		rels, err := store.Relations.ListByCollection(ctx, colID)
		if err != nil || len(rels) != 1 || rels[0].ID != rel.ID {
			t.Errorf("list by %s: %v err=%v", colID, rels, err)
		}
	}

	all, err := store.Relations.List(ctx)
	if err != nil || len(all) != 2 {
		t.Errorf("list: %d err=%v", len(all), err)
	}

	if err := store.Relations.Delete(ctx, rel.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, _ = store.Relations.List(ctx)
	if len(all) != 1 {
		t.Errorf("delete left %d relations", len(all))
	}
}

func TestEdgeRepository(t *testing.T) {
	store := New()
	ctx := context.Background()

	mk := func(relID, src, tgt string, at time.Time) relation.Record {
		edge, err := relation.NewRecord(relID, src, tgt)
		if err != nil {
			t.Fatalf("relation.NewRecord: %v", err)
		}
		edge.CreatedAt = at
		return edge
	}
	base := time.Now().UTC().Add(-time.Minute)
	first := mk("rel-1", "r1", "r2", base)
	second := mk("rel-1", "r2", "r3", base.Add(time.Second))
	stray := mk("rel-2", "r9", "r1", base.Add(2*time.Second))
	for _, e := range []relation.Record{second, stray, first} {
		if err := store.Edges.Save(ctx, e); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	edges, err := store.Edges.ListByRelation(ctx, "rel-1")
	if err != nil {
		t.Fatalf("list by relation: %v", err)
	}
	if len(edges) != 2 || edges[0].ID != first.ID {
		t.Errorf("relation edges in creation order: %v err=%v", edges, err)
	}

	// Either end of the edge matches.
	touching, err := store.Edges.ListByRecord(ctx, "r1")
	if err != nil || len(touching) != 2 {
		t.Errorf("edges touching r1: %d err=%v", len(touching), err)
	}
	touching, err = store.Edges.ListByRecord(ctx, "r3")
	if err != nil || len(touching) != 1 || touching[0].ID != second.ID {
		t.Errorf("edges touching r3: %v err=%v", touching, err)
	}

	if err := store.Edges.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	edges, _ = store.Edges.ListByRelation(ctx, "rel-1")
	if len(edges) != 1 {
		t.Errorf("delete left %d edges", len(edges))
	}
}
