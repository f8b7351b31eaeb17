package relation

import (
	"context"
	"fmt"
	"sort"

	"github.com/gridbase/gridbase/internal/domain"
	"github.com/gridbase/gridbase/internal/domain/relation"
	"github.com/gridbase/gridbase/internal/events"
	"github.com/gridbase/gridbase/internal/metrics"
)

// Node is one record participating in a materialized graph.
type Node struct {
	RecordID     string `json:"record_id"`
	CollectionID string `json:"collection_id"`
	Degree       int    `json:"degree"`
}

// Edge is one relation record in a materialized graph.
type Edge struct {
	ID         string  `json:"id"`
	RelationID string  `json:"relation_id"`
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	Weight     float64 `json:"weight"`
}

// Properties summarizes a materialized graph. Density and components
// treat the graph as undirected.
type Properties struct {
	NodeCount      int     `json:"node_count"`
	EdgeCount      int     `json:"edge_count"`
	ComponentCount int     `json:"component_count"`
	Density        float64 `json:"density"`
	AverageDegree  float64 `json:"average_degree"`
}

// Graph is an in-memory snapshot of relation records as nodes and
// edges, with the adjacency index the analytics run on.
type Graph struct {
	Nodes      []Node     `json:"nodes"`
	Edges      []Edge     `json:"edges"`
	Properties Properties `json:"properties"`

	index map[string]int // record id -> node index
	adj   [][]int        // undirected adjacency by node index
}

// NodeIndex returns the node index for a record id.
func (g *Graph) NodeIndex(recordID string) (int, bool) {
	i, ok := g.index[recordID]
	return i, ok
}

// BuildParams selects what to materialize. With root records, the
// graph expands outward breadth-first up to Depth; without roots it
// contains every edge of the selected relations.
type BuildParams struct {
	CollectionIDs []string
	RelationIDs   []string
	RootRecordIDs []string
	Depth         int
}

// BuildGraph materializes the relation graph for a record set. Graphs
// exceeding the configured node or edge ceiling fail fast.
func (s *Service) BuildGraph(ctx context.Context, p BuildParams) (*Graph, error) {
	rels, err := s.selectRelations(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}

	collectionOf := map[string]string{} // record id -> collection id, learned from edges
	var edges []relation.Record
	if len(p.RootRecordIDs) > 0 {
		edges, err = s.expandFromRoots(ctx, p, rels)
	} else {
		edges, err = s.allEdges(ctx, rels)
	}
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}

	for _, e := range edges {
		rel := rels[e.RelationID]
		collectionOf[e.SourceRecordID] = rel.SourceCollectionID
		collectionOf[e.TargetRecordID] = rel.TargetCollectionID
	}

	g := &Graph{index: map[string]int{}}
	addNode := func(recordID string) int {
		if i, ok := g.index[recordID]; ok {
			return i
		}
		i := len(g.Nodes)
		g.index[recordID] = i
		g.Nodes = append(g.Nodes, Node{RecordID: recordID, CollectionID: collectionOf[recordID]})
		g.adj = append(g.adj, nil)
		return i
	}

	for _, root := range p.RootRecordIDs {
		addNode(root)
	}
	for _, e := range edges {
		si := addNode(e.SourceRecordID)
		ti := addNode(e.TargetRecordID)
		g.Edges = append(g.Edges, Edge{
			ID:         e.ID,
			RelationID: e.RelationID,
			SourceID:   e.SourceRecordID,
			TargetID:   e.TargetRecordID,
			Weight:     e.Properties.Weight,
		})
		g.adj[si] = append(g.adj[si], ti)
		if si != ti {
			g.adj[ti] = append(g.adj[ti], si)
		}
	}

	if len(g.Nodes) > s.cfg.MaxGraphNodes {
		return nil, fmt.Errorf("build graph: %w", domain.NewQueryError(domain.QueryReasonGraphTooLarge,
			"%d nodes exceeds ceiling %d", len(g.Nodes), s.cfg.MaxGraphNodes))
	}
	if len(g.Edges) > s.cfg.MaxGraphEdges {
		return nil, fmt.Errorf("build graph: %w", domain.NewQueryError(domain.QueryReasonGraphTooLarge,
			"%d edges exceeds ceiling %d", len(g.Edges), s.cfg.MaxGraphEdges))
	}

	for i := range g.Nodes {
		g.Nodes[i].Degree = len(g.adj[i])
	}
	g.Properties = computeProperties(g)

	metrics.GraphBuildSize.Observe(float64(len(g.Nodes)))
	s.emitter.Emit(ctx, events.New(events.GraphBuilt, "relation", map[string]any{
		"nodes": len(g.Nodes),
		"edges": len(g.Edges),
	}))
	return g, nil
}

// selectRelations resolves the relations in scope for a build, keyed
// by id.
func (s *Service) selectRelations(ctx context.Context, p BuildParams) (map[string]relation.Relation, error) {
	out := map[string]relation.Relation{}
	switch {
	case len(p.RelationIDs) > 0:
		for _, id := range p.RelationIDs {
			rel, err := s.relations.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			if rel.ID == "" {
				return nil, fmt.Errorf("relation %s: %w", id, domain.ErrNotFound)
			}
			out[rel.ID] = rel
		}
	case len(p.CollectionIDs) > 0:
		for _, cid := range p.CollectionIDs {
			rels, err := s.relations.ListByCollection(ctx, cid)
			if err != nil {
				return nil, err
			}
			for _, rel := range rels {
				out[rel.ID] = rel
			}
		}
	default:
		rels, err := s.relations.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			out[rel.ID] = rel
		}
	}
	return out, nil
}

// allEdges loads every edge of the selected relations, in a stable
// relation-id order.
func (s *Service) allEdges(ctx context.Context, rels map[string]relation.Relation) ([]relation.Record, error) {
	ids := make([]string, 0, len(rels))
	for id := range rels {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []relation.Record
	for _, id := range ids {
		edges, err := s.edges.ListByRelation(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, edges...)
	}
	return out, nil
}

// expandFromRoots walks outward from the root records breadth-first,
// collecting each level's edges up to the depth bound.
func (s *Service) expandFromRoots(
	ctx context.Context,
	p BuildParams,
	rels map[string]relation.Relation,
) ([]relation.Record, error) {
	depth := p.Depth
	if depth <= 0 || depth > s.cfg.MaxTraversalDepth {
		depth = s.cfg.MaxTraversalDepth
	}

	seen := map[string]bool{}
	visited := map[string]bool{}
	frontier := append([]string(nil), p.RootRecordIDs...)
	for _, id := range frontier {
		visited[id] = true
	}

	var out []relation.Record
	for level := 0; level < depth && len(frontier) > 0; level++ {
		var nextFrontier []string
		for _, recordID := range frontier {
			edges, err := s.edges.ListByRecord(ctx, recordID)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				if _, inScope := rels[e.RelationID]; !inScope {
					continue
				}
				if seen[e.ID] {
					continue
				}
				seen[e.ID] = true
				out = append(out, e)
				for _, other := range []string{e.SourceRecordID, e.TargetRecordID} {
					if !visited[other] {
						visited[other] = true
						nextFrontier = append(nextFrontier, other)
					}
				}
			}
		}
		frontier = nextFrontier
	}
	return out, nil
}

// computeProperties derives the undirected summary statistics.
func computeProperties(g *Graph) Properties {
	n := len(g.Nodes)
	m := len(g.Edges)
	props := Properties{NodeCount: n, EdgeCount: m}
	if n == 0 {
		return props
	}

	props.ComponentCount = countComponents(g)
	props.AverageDegree = 2 * float64(m) / float64(n)
	if n > 1 {
		props.Density = float64(m) / (float64(n) * float64(n-1) / 2)
	}
	return props
}

// countComponents counts connected components by BFS over the
// undirected adjacency.
func countComponents(g *Graph) int {
	visited := make([]bool, len(g.Nodes))
	count := 0
	for start := range g.Nodes {
		if visited[start] {
			continue
		}
		count++
		queue := []int{start}
		visited[start] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range g.adj[cur] {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
	}
	return count
}
