package relation

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/gridbase/gridbase/internal/domain"
	"github.com/gridbase/gridbase/internal/events"
)

// Eigenvector power-iteration bounds.
const (
	eigenMaxIterations = 100
	eigenTolerance     = 1e-6
)

// Centrality holds the per-node centrality measures, keyed by record
// id. Every measure is normalized to [0, 1].
type Centrality struct {
	Degree      map[string]float64 `json:"degree"`
	Betweenness map[string]float64 `json:"betweenness"`
	Closeness   map[string]float64 `json:"closeness"`
	Eigenvector map[string]float64 `json:"eigenvector"`
}

// Community is one non-overlapping member set found by label
// propagation.
type Community struct {
	Label   int      `json:"label"`
	Members []string `json:"members"`
	Size    int      `json:"size"`
	Density float64  `json:"density"`
}

// Path is one node sequence through the graph.
type Path struct {
	Nodes  []string `json:"nodes"`
	Length int      `json:"length"`
	Weight float64  `json:"weight"`
}

// Node roles assigned by influence analysis.
const (
	RoleHub       = "hub"
	RoleBridge    = "bridge"
	RoleAuthority = "authority"
	RoleConnector = "connector"
)

// InfluenceNode ranks one node by combined centrality and reach.
type InfluenceNode struct {
	RecordID string  `json:"record_id"`
	Score    float64 `json:"score"`
	Role     string  `json:"role"`
}

// Analysis is the full analytics result for a materialized graph.
type Analysis struct {
	Centrality   Centrality      `json:"centrality"`
	Communities  []Community     `json:"communities"`
	CriticalPath Path            `json:"critical_path"`
	Influence    []InfluenceNode `json:"influence"`
}

// Analyze runs the full analytics suite on a materialized graph. The
// graph must already satisfy the size ceilings; BuildGraph enforces
// them.
func (s *Service) Analyze(ctx context.Context, g *Graph) (Analysis, error) {
	if len(g.Nodes) > s.cfg.MaxGraphNodes || len(g.Edges) > s.cfg.MaxGraphEdges {
		return Analysis{}, fmt.Errorf("analyze graph: %w",
			domain.NewQueryError(domain.QueryReasonGraphTooLarge,
				"%d nodes / %d edges exceeds analytics ceiling", len(g.Nodes), len(g.Edges)))
	}

	centrality := Centrality{
		Degree:      degreeCentrality(g),
		Betweenness: betweennessCentrality(g),
		Closeness:   closenessCentrality(g),
		Eigenvector: eigenvectorCentrality(g),
	}
	analysis := Analysis{
		Centrality:   centrality,
		Communities:  detectCommunities(g),
		CriticalPath: s.criticalPath(g),
		Influence:    rankInfluence(g, centrality),
	}

	s.emitter.Emit(ctx, events.New(events.GraphAnalyzed, "relation", map[string]any{
		"nodes":       len(g.Nodes),
		"communities": len(analysis.Communities),
	}))
	return analysis, nil
}

// degreeCentrality is edge count per node over the maximum possible
// degree n-1.
func degreeCentrality(g *Graph) map[string]float64 {
	out := make(map[string]float64, len(g.Nodes))
	n := len(g.Nodes)
	for i, node := range g.Nodes {
		if n <= 1 {
			out[node.RecordID] = 0
			continue
		}
		out[node.RecordID] = float64(len(g.adj[i])) / float64(n-1)
	}
	return out
}

// betweennessCentrality is the Brandes accumulation over unweighted
// shortest paths, halved for the undirected treatment and normalized
// by the pair count (n-1)(n-2)/2.
func betweennessCentrality(g *Graph) map[string]float64 {
	n := len(g.Nodes)
	raw := make([]float64, n)

	for source := 0; source < n; source++ {
		var stack []int
		preds := make([][]int, n)
		sigma := make([]float64, n)
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		sigma[source] = 1
		dist[source] = 0
		queue := []int{source}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range g.adj[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}
		delta := make([]float64, n)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != source {
				raw[w] += delta[w]
			}
		}
	}

	out := make(map[string]float64, n)
	norm := float64(n-1) * float64(n-2) // halved accumulation / (pairs = norm/2)
	for i, node := range g.Nodes {
		if norm <= 0 {
			out[node.RecordID] = 0
			continue
		}
		out[node.RecordID] = raw[i] / norm
	}
	return out
}

// closenessCentrality is reachable count over summed shortest-path
// distance, per node.
func closenessCentrality(g *Graph) map[string]float64 {
	n := len(g.Nodes)
	out := make(map[string]float64, n)
	for i, node := range g.Nodes {
		dist := bfsDistances(g, i)
		sum, reachable := 0, 0
		for _, d := range dist {
			if d > 0 {
				sum += d
				reachable++
			}
		}
		if sum == 0 {
			out[node.RecordID] = 0
			continue
		}
		out[node.RecordID] = float64(reachable) / float64(sum)
	}
	return out
}

func bfsDistances(g *Graph, source int) []int {
	dist := make([]int, len(g.Nodes))
	for i := range dist {
		dist[i] = -1
	}
	dist[source] = 0
	queue := []int{source}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range g.adj[v] {
			if dist[w] < 0 {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
		}
	}
	return dist
}

// eigenvectorCentrality runs power iteration on the adjacency until
// convergence or the iteration cap, normalized by the max component.
func eigenvectorCentrality(g *Graph) map[string]float64 {
	n := len(g.Nodes)
	out := make(map[string]float64, n)
	if n == 0 {
		return out
	}

	vec := make([]float64, n)
	for i := range vec {
		vec[i] = 1
	}
	for iter := 0; iter < eigenMaxIterations; iter++ {
		next := make([]float64, n)
		for v := range g.adj {
			for _, w := range g.adj[v] {
				next[v] += vec[w]
			}
		}
		norm := 0.0
		for _, x := range next {
			norm += x * x
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			break
		}
		diff := 0.0
		for i := range next {
			next[i] /= norm
			diff += math.Abs(next[i] - vec[i])
		}
		vec = next
		if diff < eigenTolerance {
			break
		}
	}

	maxV := 0.0
	for _, x := range vec {
		if x > maxV {
			maxV = x
		}
	}
	for i, node := range g.Nodes {
		if maxV == 0 {
			out[node.RecordID] = 0
			continue
		}
		out[node.RecordID] = vec[i] / maxV
	}
	return out
}

// detectCommunities runs synchronous label propagation with a
// deterministic smallest-label tie-break until labels stabilize, then
// reports each community's members and internal density.
func detectCommunities(g *Graph) []Community {
	n := len(g.Nodes)
	if n == 0 {
		return nil
	}
	labels := make([]int, n)
	for i := range labels {
		labels[i] = i
	}

	for iter := 0; iter < 100; iter++ {
		changed := false
		for v := 0; v < n; v++ {
			if len(g.adj[v]) == 0 {
				continue
			}
			counts := map[int]int{}
			for _, w := range g.adj[v] {
				counts[labels[w]]++
			}
			best, bestN := labels[v], 0
			for label, c := range counts {
				if c > bestN || (c == bestN && label < best) {
					best, bestN = label, c
				}
			}
			if best != labels[v] {
				labels[v] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	members := map[int][]int{}
	for v, label := range labels {
		members[label] = append(members[label], v)
	}
	order := make([]int, 0, len(members))
	for label := range members {
		order = append(order, label)
	}
	sort.Ints(order)

	out := make([]Community, 0, len(order))
	for _, label := range order {
		group := members[label]
		inGroup := map[int]bool{}
		for _, v := range group {
			inGroup[v] = true
		}
		internal := 0
		for _, e := range g.Edges {
			si := g.index[e.SourceID]
			ti := g.index[e.TargetID]
			if inGroup[si] && inGroup[ti] {
				internal++
			}
		}
		density := 0.0
		if len(group) > 1 {
			density = float64(internal) / (float64(len(group)) * float64(len(group)-1) / 2)
		}
		ids := make([]string, len(group))
		for i, v := range group {
			ids[i] = g.Nodes[v].RecordID
		}
		out = append(out, Community{Label: label, Members: ids, Size: len(group), Density: density})
	}
	return out
}

// ShortestPath finds the shortest path between two records: BFS on an
// unweighted graph, Dijkstra when any edge carries a weight.
func (s *Service) ShortestPath(g *Graph, fromID, toID string) (Path, error) {
	from, ok := g.NodeIndex(fromID)
	if !ok {
		return Path{}, fmt.Errorf("shortest path: record %s: %w", fromID, domain.ErrNotFound)
	}
	to, ok := g.NodeIndex(toID)
	if !ok {
		return Path{}, fmt.Errorf("shortest path: record %s: %w", toID, domain.ErrNotFound)
	}

	weights := edgeWeights(g)
	prev := dijkstra(g, weights, from)
	if prev[to] < 0 && to != from {
		return Path{}, fmt.Errorf("shortest path: no path from %s to %s: %w", fromID, toID, domain.ErrNotFound)
	}

	var indices []int
	for cur := to; cur != from; cur = prev[cur] {
		indices = append(indices, cur)
	}
	indices = append(indices, from)

	path := Path{Length: len(indices) - 1}
	for i := len(indices) - 1; i >= 0; i-- {
		path.Nodes = append(path.Nodes, g.Nodes[indices[i]].RecordID)
	}
	for i := 0; i < len(indices)-1; i++ {
		path.Weight += weights[edgeKey(indices[i+1], indices[i])]
	}
	return path, nil
}

// edgeWeights maps node-index pairs to weights. Unweighted edges count
// as 1 so BFS and Dijkstra agree on unweighted graphs.
func edgeWeights(g *Graph) map[[2]int]float64 {
	out := map[[2]int]float64{}
	for _, e := range g.Edges {
		si := g.index[e.SourceID]
		ti := g.index[e.TargetID]
		w := e.Weight
		if w <= 0 {
			w = 1
		}
		if cur, ok := out[edgeKey(si, ti)]; !ok || w < cur {
			out[edgeKey(si, ti)] = w
			out[edgeKey(ti, si)] = w
		}
	}
	return out
}

func edgeKey(a, b int) [2]int { return [2]int{a, b} }

// dijkstra returns the predecessor array for shortest paths from
// source; -1 marks unreachable. The graph is small enough for the
// quadratic scan.
func dijkstra(g *Graph, weights map[[2]int]float64, source int) []int {
	n := len(g.Nodes)
	dist := make([]float64, n)
	prev := make([]int, n)
	done := make([]bool, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[source] = 0

	for {
		cur, best := -1, math.Inf(1)
		for i := 0; i < n; i++ {
			if !done[i] && dist[i] < best {
				cur, best = i, dist[i]
			}
		}
		if cur < 0 {
			break
		}
		done[cur] = true
		for _, next := range g.adj[cur] {
			w := weights[edgeKey(cur, next)]
			if d := dist[cur] + w; d < dist[next] {
				dist[next] = d
				prev[next] = cur
			}
		}
	}
	return prev
}

// criticalPath finds the highest cumulative-weight simple path,
// explored by depth-first search bounded by the traversal depth
// ceiling.
func (s *Service) criticalPath(g *Graph) Path {
	weights := edgeWeights(g)
	maxEdges := s.cfg.MaxTraversalDepth
	if maxEdges <= 0 {
		maxEdges = 5
	}

	var best Path
	visited := make([]bool, len(g.Nodes))
	var current []int

	var walk func(v int, weight float64)
	walk = func(v int, weight float64) {
		visited[v] = true
		current = append(current, v)

		if weight > best.Weight || (weight == best.Weight && len(current)-1 > best.Length) {
			best = Path{Length: len(current) - 1, Weight: weight}
			best.Nodes = make([]string, len(current))
			for i, idx := range current {
				best.Nodes[i] = g.Nodes[idx].RecordID
			}
		}
		if len(current)-1 < maxEdges {
			for _, next := range g.adj[v] {
				if !visited[next] {
					walk(next, weight+weights[edgeKey(v, next)])
				}
			}
		}

		current = current[:len(current)-1]
		visited[v] = false
	}

	for v := range g.Nodes {
		walk(v, 0)
	}
	return best
}

// rankInfluence scores each node by combined centrality and reach and
// classifies the dominant measure into a role. Articulation points
// whose removal splits a component classify as connectors when no
// measure dominates.
func rankInfluence(g *Graph, c Centrality) []InfluenceNode {
	baseComponents := countComponents(g)
	out := make([]InfluenceNode, 0, len(g.Nodes))
	for i, node := range g.Nodes {
		d := c.Degree[node.RecordID]
		b := c.Betweenness[node.RecordID]
		cl := c.Closeness[node.RecordID]
		e := c.Eigenvector[node.RecordID]
		score := 0.3*d + 0.3*b + 0.2*cl + 0.2*e

		role := RoleConnector
		switch {
		case b > d && b > e && b > 0:
			role = RoleBridge
		case d >= b && d >= e && d > 0:
			role = RoleHub
		case e > 0:
			role = RoleAuthority
		}
		if role == RoleHub && isArticulation(g, i, baseComponents) && b > 0 {
			role = RoleConnector
		}
		out = append(out, InfluenceNode{RecordID: node.RecordID, Score: score, Role: role})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].RecordID < out[j].RecordID
	})
	return out
}

// isArticulation reports whether removing a node increases the
// component count among the remaining nodes.
func isArticulation(g *Graph, node, baseComponents int) bool {
	n := len(g.Nodes)
	if n <= 2 {
		return false
	}
	visited := make([]bool, n)
	visited[node] = true
	count := 0
	for start := 0; start < n; start++ {
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
	return count > baseComponents
}
