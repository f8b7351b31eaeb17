package relation

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/gridbase/gridbase/internal/config"
	"github.com/gridbase/gridbase/internal/domain"
	"github.com/gridbase/gridbase/internal/events"
	"github.com/gridbase/gridbase/internal/repository/memory"
)

// seedChain builds notes-1 -> notes-2 -> ... -> notes-n as a single
// relation and returns the service and relation id.
func seedChain(t *testing.T, n int) (*Service, string) {
	t.Helper()
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	notes := seedCollection(t, store, "notes", n)

	rel, err := svc.CreateRelation(ctx, makeRelation(t, notes, notes, "many_to_many"))
	if err != nil {
		t.Fatalf("create relation: %v", err)
	}
	for i := 1; i < n; i++ {
		src := "notes-" + string(rune('0'+i))
		tgt := "notes-" + string(rune('0'+i+1))
		if _, err := svc.Link(ctx, makeEdge(t, rel.ID, src, tgt)); err != nil {
			t.Fatalf("link %s->%s: %v", src, tgt, err)
		}
	}
	return svc, rel.ID
}

func TestBuildGraph_Properties(t *testing.T) {
	svc, relID := seedChain(t, 3)

	g, err := svc.BuildGraph(context.Background(), BuildParams{RelationIDs: []string{relID}})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if g.Properties.NodeCount != 3 || g.Properties.EdgeCount != 2 {
		t.Fatalf("size: %+v", g.Properties)
	}
	if g.Properties.ComponentCount != 1 {
		t.Errorf("a chain is one component, got %d", g.Properties.ComponentCount)
	}
	// Sum of degrees is twice the edge count.
	total := 0
	for _, node := range g.Nodes {
		total += node.Degree
	}
	if total != 2*g.Properties.EdgeCount {
		t.Errorf("degree sum %d, want %d", total, 2*g.Properties.EdgeCount)
	}
	// Density of a 3-node path: 2 edges over 3 possible.
	if math.Abs(g.Properties.Density-2.0/3.0) > 1e-9 {
		t.Errorf("density: got %f", g.Properties.Density)
	}
}

func TestBuildGraph_FromRoots(t *testing.T) {
	svc, relID := seedChain(t, 4)

	g, err := svc.BuildGraph(context.Background(), BuildParams{
		RelationIDs:   []string{relID},
		RootRecordIDs: []string{"notes-1"},
		Depth:         1,
	})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	// Depth 1 from notes-1 reaches only the notes-1 -> notes-2 edge.
	if g.Properties.EdgeCount != 1 || g.Properties.NodeCount != 2 {
		t.Errorf("depth 1 expansion: %+v", g.Properties)
	}
}

func TestBuildGraph_UnknownRelation(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.BuildGraph(context.Background(), BuildParams{RelationIDs: []string{"ghost"}})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBuildGraph_SizeCeiling(t *testing.T) {
	store := memory.New()
	cfg := config.Default().Engine
	cfg.MaxGraphNodes = 2
	svc := NewService(store.Relations, store.Edges, store.Collections, store.Records,
		&events.Recorder{}, zap.NewNop(), cfg)
	ctx := context.Background()

	notes := seedCollection(t, store, "notes", 3)
	rel, err := svc.CreateRelation(ctx, makeRelation(t, notes, notes, "many_to_many"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "notes-1", "notes-2")); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "notes-2", "notes-3")); err != nil {
		t.Fatalf("link: %v", err)
	}

	_, err = svc.BuildGraph(ctx, BuildParams{RelationIDs: []string{rel.ID}})
	var qe *domain.QueryError
	if !errors.As(err, &qe) || qe.Reason != domain.QueryReasonGraphTooLarge {
		t.Errorf("expected graph_too_large, got %v", err)
	}
}

func TestAnalyze_PathGraphCentrality(t *testing.T) {
	svc, relID := seedChain(t, 3)
	ctx := context.Background()

	g, err := svc.BuildGraph(ctx, BuildParams{RelationIDs: []string{relID}})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	analysis, err := svc.Analyze(ctx, g)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	c := analysis.Centrality
	// The middle of a path dominates every measure.
	if c.Degree["notes-2"] <= c.Degree["notes-1"] {
		t.Error("middle degree must exceed endpoint degree")
	}
	if c.Closeness["notes-2"] <= c.Closeness["notes-1"] {
		t.Error("middle closeness must exceed endpoint closeness")
	}
	if c.Betweenness["notes-2"] <= c.Betweenness["notes-1"] {
		t.Error("middle betweenness must exceed endpoint betweenness")
	}
	if c.Betweenness["notes-1"] != 0 {
		t.Errorf("endpoints lie on no shortest path: got %f", c.Betweenness["notes-1"])
	}

	if len(analysis.Influence) != 3 {
		t.Fatalf("influence ranking: got %d nodes", len(analysis.Influence))
	}
	if analysis.Influence[0].RecordID != "notes-2" {
		t.Errorf("the middle node ranks first, got %s", analysis.Influence[0].RecordID)
	}
}

func TestAnalyze_Communities(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	notes := seedCollection(t, store, "notes", 4)

	rel, err := svc.CreateRelation(ctx, makeRelation(t, notes, notes, "many_to_many"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Two disconnected pairs.
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "notes-1", "notes-2")); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "notes-3", "notes-4")); err != nil {
		t.Fatalf("link: %v", err)
	}

	g, err := svc.BuildGraph(ctx, BuildParams{RelationIDs: []string{rel.ID}})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if g.Properties.ComponentCount != 2 {
		t.Fatalf("components: got %d", g.Properties.ComponentCount)
	}

	analysis, err := svc.Analyze(ctx, g)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(analysis.Communities) != 2 {
		t.Fatalf("expected 2 communities, got %d", len(analysis.Communities))
	}
	for _, c := range analysis.Communities {
		if c.Size != 2 {
			t.Errorf("community size: got %d", c.Size)
		}
		if c.Density != 1 {
			t.Errorf("a linked pair has density 1, got %f", c.Density)
		}
	}
}

func TestShortestPath(t *testing.T) {
	svc, relID := seedChain(t, 4)
	ctx := context.Background()

	g, err := svc.BuildGraph(ctx, BuildParams{RelationIDs: []string{relID}})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	path, err := svc.ShortestPath(g, "notes-1", "notes-4")
	if err != nil {
		t.Fatalf("ShortestPath: %v", err)
	}
	if path.Length != 3 || len(path.Nodes) != 4 {
		t.Errorf("path: %+v", path)
	}
	if path.Nodes[0] != "notes-1" || path.Nodes[3] != "notes-4" {
		t.Errorf("endpoints: %v", path.Nodes)
	}
	// Unweighted edges count as 1 each.
	if path.Weight != 3 {
		t.Errorf("weight: got %f", path.Weight)
	}

	if _, err := svc.ShortestPath(g, "notes-1", "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown target: got %v", err)
	}
}

func TestShortestPath_Disconnected(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	notes := seedCollection(t, store, "notes", 4)

	rel, err := svc.CreateRelation(ctx, makeRelation(t, notes, notes, "many_to_many"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "notes-1", "notes-2")); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := svc.Link(ctx, makeEdge(t, rel.ID, "notes-3", "notes-4")); err != nil {
		t.Fatalf("link: %v", err)
	}

	g, err := svc.BuildGraph(ctx, BuildParams{RelationIDs: []string{rel.ID}})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if _, err := svc.ShortestPath(g, "notes-1", "notes-3"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("disconnected pair: got %v", err)
	}
}

func TestCriticalPath_PrefersHeavyEdges(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	notes := seedCollection(t, store, "notes", 3)

	rel, err := svc.CreateRelation(ctx, makeRelation(t, notes, notes, "many_to_many"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	light := makeEdge(t, rel.ID, "notes-1", "notes-2")
	light.Properties.Weight = 1
	if _, err := svc.Link(ctx, light); err != nil {
		t.Fatalf("link: %v", err)
	}
	heavy := makeEdge(t, rel.ID, "notes-2", "notes-3")
	heavy.Properties.Weight = 5
	if _, err := svc.Link(ctx, heavy); err != nil {
		t.Fatalf("link: %v", err)
	}

	g, err := svc.BuildGraph(ctx, BuildParams{RelationIDs: []string{rel.ID}})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	analysis, err := svc.Analyze(ctx, g)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.CriticalPath.Weight != 6 {
		t.Errorf("the full chain weighs 6, got %f", analysis.CriticalPath.Weight)
	}
	if analysis.CriticalPath.Length != 2 {
		t.Errorf("length: got %d", analysis.CriticalPath.Length)
	}
}
