// Package relation manages typed edges between collections: relation
// and edge CRUD under constraint enforcement, graph materialization,
// and the analytics that run on the materialized graph.
package relation

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/gridbase/gridbase/internal/config"
	"github.com/gridbase/gridbase/internal/domain"
	"github.com/gridbase/gridbase/internal/domain/relation"
	"github.com/gridbase/gridbase/internal/events"
	"github.com/gridbase/gridbase/internal/metrics"
)

// Service manages relations and their edges.
type Service struct {
	relations   RelationRepository
	edges       EdgeRepository
	collections CollectionRepository
	records     RecordRepository
	emitter     events.Emitter
	logger      *zap.Logger
	cfg         config.EngineConfig
}

// NewService creates the relation service. A nil emitter discards
// events.
func NewService(
	relations RelationRepository,
	edges EdgeRepository,
	collections CollectionRepository,
	records RecordRepository,
	emitter events.Emitter,
	logger *zap.Logger,
	cfg config.EngineConfig,
) *Service {
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Service{
		relations:   relations,
		edges:       edges,
		collections: collections,
		records:     records,
		emitter:     emitter,
		logger:      logger,
		cfg:         cfg,
	}
}

// CreateRelation validates and persists a new relation. The source
// field must exist in the source collection and must not already be
// bound to another relation; a forbidden schema cycle is rejected.
func (s *Service) CreateRelation(ctx context.Context, rel relation.Relation) (relation.Relation, error) {
	if err := rel.ValidateCounts(); err != nil {
		return relation.Relation{}, fmt.Errorf("create relation: %w", err)
	}
	if !rel.Type.IsValid() {
		return relation.Relation{}, fmt.Errorf("create relation: %w",
			domain.NewValidationError("", "unknown relation type %q", rel.Type))
	}

	if err := s.checkFieldBinding(ctx, rel); err != nil {
		return relation.Relation{}, fmt.Errorf("create relation: %w", err)
	}

	if rel.ForbidsCycles() {
		cyclic, err := s.wouldCreateCycle(ctx, rel)
		if err != nil {
			return relation.Relation{}, fmt.Errorf("create relation: %w", err)
		}
		if cyclic {
			return relation.Relation{}, fmt.Errorf("create relation: %w",
				domain.NewRelationError(rel.ID, "relation would create a forbidden schema cycle"))
		}
	}

	if err := s.relations.Save(ctx, rel); err != nil {
		return relation.Relation{}, fmt.Errorf("create relation: %w", err)
	}
	metrics.MutationsTotal.WithLabelValues("relation_create").Inc()
	s.emitter.Emit(ctx, events.New(events.RelationCreated, "relation", map[string]any{
		"relation_id": rel.ID,
		"source":      rel.SourceCollectionID,
		"target":      rel.TargetCollectionID,
	}))
	s.logger.Info("relation created",
		zap.String("relation_id", rel.ID), zap.String("type", string(rel.Type)))
	return rel, nil
}

// checkFieldBinding verifies both collections exist, the source field
// exists, and no other relation already binds that field.
func (s *Service) checkFieldBinding(ctx context.Context, rel relation.Relation) error {
	src, err := s.collections.Get(ctx, rel.SourceCollectionID)
	if err != nil {
		return err
	}
	if src.ID == "" {
		return fmt.Errorf("source collection %s: %w", rel.SourceCollectionID, domain.ErrNotFound)
	}
	tgt, err := s.collections.Get(ctx, rel.TargetCollectionID)
	if err != nil {
		return err
	}
	if tgt.ID == "" {
		return fmt.Errorf("target collection %s: %w", rel.TargetCollectionID, domain.ErrNotFound)
	}
	if !src.HasField(rel.SourceFieldID) {
		return domain.NewValidationError(rel.SourceFieldID, "source field not in collection %s", src.ID)
	}
	if rel.TargetFieldID != "" && !tgt.HasField(rel.TargetFieldID) {
		return domain.NewValidationError(rel.TargetFieldID, "target field not in collection %s", tgt.ID)
	}

	existing, err := s.relations.ListByCollection(ctx, rel.SourceCollectionID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID == rel.ID {
			continue
		}
		if other.SourceCollectionID == rel.SourceCollectionID && other.SourceFieldID == rel.SourceFieldID {
			return domain.NewRelationError(rel.ID,
				"field %s already bound by relation %s", rel.SourceFieldID, other.ID)
		}
	}
	return nil
}

// wouldCreateCycle checks whether adding rel closes a cycle in the
// collection-level relation graph: it does when the target collection
// can already reach the source. Traversal is bounded by the configured
// depth ceiling.
func (s *Service) wouldCreateCycle(ctx context.Context, rel relation.Relation) (bool, error) {
	if rel.SourceCollectionID == rel.TargetCollectionID {
		return true, nil
	}
	all, err := s.relations.List(ctx)
	if err != nil {
		return false, err
	}
	next := map[string][]string{}
	for _, r := range all {
		if r.ID == rel.ID {
			continue
		}
		next[r.SourceCollectionID] = append(next[r.SourceCollectionID], r.TargetCollectionID)
	}

	frontier := []string{rel.TargetCollectionID}
	visited := map[string]bool{rel.TargetCollectionID: true}
	for depth := 0; depth < s.cfg.MaxTraversalDepth && len(frontier) > 0; depth++ {
		var nextFrontier []string
		for _, id := range frontier {
			for _, n := range next[id] {
				if n == rel.SourceCollectionID {
					return true, nil
				}
				if !visited[n] {
					visited[n] = true
					nextFrontier = append(nextFrontier, n)
				}
			}
		}
		frontier = nextFrontier
	}
	return false, nil
}

// GetRelation returns a relation, or a zero value when it does not
// exist.
func (s *Service) GetRelation(ctx context.Context, id string) (relation.Relation, error) {
	rel, err := s.relations.Get(ctx, id)
	if err != nil {
		return relation.Relation{}, fmt.Errorf("get relation: %w", err)
	}
	return rel, nil
}

// ListRelations returns the relations a collection participates in,
// on either side.
func (s *Service) ListRelations(ctx context.Context, collectionID string) ([]relation.Relation, error) {
	rels, err := s.relations.ListByCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	return rels, nil
}

// UpdateRelation re-validates and persists a changed relation.
func (s *Service) UpdateRelation(ctx context.Context, rel relation.Relation) (relation.Relation, error) {
	current, err := s.relations.Get(ctx, rel.ID)
	if err != nil {
		return relation.Relation{}, fmt.Errorf("update relation: %w", err)
	}
	if current.ID == "" {
		return relation.Relation{}, fmt.Errorf("update relation %s: %w", rel.ID, domain.ErrNotFound)
	}
	if err := rel.ValidateCounts(); err != nil {
		return relation.Relation{}, fmt.Errorf("update relation: %w", err)
	}
	if err := s.checkFieldBinding(ctx, rel); err != nil {
		return relation.Relation{}, fmt.Errorf("update relation: %w", err)
	}
	if rel.ForbidsCycles() {
		cyclic, err := s.wouldCreateCycle(ctx, rel)
		if err != nil {
			return relation.Relation{}, fmt.Errorf("update relation: %w", err)
		}
		if cyclic {
			return relation.Relation{}, fmt.Errorf("update relation: %w",
				domain.NewRelationError(rel.ID, "relation would create a forbidden schema cycle"))
		}
	}
	rel.CreatedAt = current.CreatedAt
	if err := s.relations.Save(ctx, rel); err != nil {
		return relation.Relation{}, fmt.Errorf("update relation: %w", err)
	}
	metrics.MutationsTotal.WithLabelValues("relation_update").Inc()
	s.emitter.Emit(ctx, events.New(events.RelationUpdated, "relation",
		map[string]any{"relation_id": rel.ID}))
	return rel, nil
}

// DeleteRelation removes a relation and every edge it owns.
func (s *Service) DeleteRelation(ctx context.Context, id string) error {
	current, err := s.relations.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("delete relation: %w", err)
	}
	if current.ID == "" {
		return fmt.Errorf("delete relation %s: %w", id, domain.ErrNotFound)
	}
	edges, err := s.edges.ListByRelation(ctx, id)
	if err != nil {
		return fmt.Errorf("delete relation: %w", err)
	}
	for _, e := range edges {
		if err := s.edges.Delete(ctx, e.ID); err != nil {
			return fmt.Errorf("delete relation edge %s: %w", e.ID, err)
		}
	}
	if err := s.relations.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete relation: %w", err)
	}
	metrics.MutationsTotal.WithLabelValues("relation_delete").Inc()
	s.emitter.Emit(ctx, events.New(events.RelationDeleted, "relation",
		map[string]any{"relation_id": id, "edges_removed": len(edges)}))
	return nil
}

// Link creates an edge between two records under the relation's
// constraints: link must be allowed, self-edges need an explicit
// constraint, unique_target holds, and max count is not exceeded.
func (s *Service) Link(ctx context.Context, edge relation.Record) (relation.Record, error) {
	rel, err := s.relations.Get(ctx, edge.RelationID)
	if err != nil {
		return relation.Record{}, fmt.Errorf("link: %w", err)
	}
	if rel.ID == "" {
		return relation.Record{}, fmt.Errorf("link: relation %s: %w", edge.RelationID, domain.ErrNotFound)
	}
	if !rel.Config.AllowLink {
		return relation.Record{}, fmt.Errorf("link: %w",
			domain.NewRelationError(rel.ID, "linking is disabled"))
	}
	if edge.SourceRecordID == edge.TargetRecordID && !rel.AllowsSelfReference() {
		return relation.Record{}, fmt.Errorf("link: %w",
			domain.NewRelationError(rel.ID, "self-reference is not allowed"))
	}

	src, err := s.records.Get(ctx, rel.SourceCollectionID, edge.SourceRecordID)
	if err != nil {
		return relation.Record{}, fmt.Errorf("link source record: %w", err)
	}
	if src.ID == "" {
		return relation.Record{}, fmt.Errorf("link: source record %s: %w", edge.SourceRecordID, domain.ErrNotFound)
	}
	tgt, err := s.records.Get(ctx, rel.TargetCollectionID, edge.TargetRecordID)
	if err != nil {
		return relation.Record{}, fmt.Errorf("link target record: %w", err)
	}
	if tgt.ID == "" {
		return relation.Record{}, fmt.Errorf("link: target record %s: %w", edge.TargetRecordID, domain.ErrNotFound)
	}

	existing, err := s.edges.ListByRelation(ctx, rel.ID)
	if err != nil {
		return relation.Record{}, fmt.Errorf("link: %w", err)
	}
	sourceCount := 0
	for _, e := range existing {
		if e.SourceRecordID == edge.SourceRecordID && e.TargetRecordID == edge.TargetRecordID {
			return relation.Record{}, fmt.Errorf("link: edge: %w", domain.ErrAlreadyExists)
		}
		if e.SourceRecordID == edge.SourceRecordID {
			sourceCount++
		}
		if rel.RequiresUniqueTarget() && e.TargetRecordID == edge.TargetRecordID {
			return relation.Record{}, fmt.Errorf("link: %w",
				domain.NewRelationError(rel.ID, "target %s is already linked", edge.TargetRecordID))
		}
	}
	if rel.Type == relation.OneToOne && sourceCount >= 1 {
		return relation.Record{}, fmt.Errorf("link: %w",
			domain.NewRelationError(rel.ID, "one_to_one source already linked"))
	}
	if maxC := rel.Config.MaxCount; maxC != nil && sourceCount >= *maxC {
		return relation.Record{}, fmt.Errorf("link: %w",
			domain.NewRelationError(rel.ID, "source %s already at max count %d", edge.SourceRecordID, *maxC))
	}

	if err := s.edges.Save(ctx, edge); err != nil {
		return relation.Record{}, fmt.Errorf("link: %w", err)
	}
	metrics.MutationsTotal.WithLabelValues("relation_link").Inc()
	s.emitter.Emit(ctx, events.New(events.RelationLinked, "relation", map[string]any{
		"relation_id": rel.ID,
		"edge_id":     edge.ID,
	}))
	return edge, nil
}

// Unlink removes an edge. Unlink must be allowed and the removal must
// not drop the source below the relation's min count.
func (s *Service) Unlink(ctx context.Context, edgeID string) error {
	edge, err := s.edges.Get(ctx, edgeID)
	if err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	if edge.ID == "" {
		return fmt.Errorf("unlink edge %s: %w", edgeID, domain.ErrNotFound)
	}
	rel, err := s.relations.Get(ctx, edge.RelationID)
	if err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	if rel.ID != "" {
		if !rel.Config.AllowUnlink {
			return fmt.Errorf("unlink: %w", domain.NewRelationError(rel.ID, "unlinking is disabled"))
		}
		if minC := rel.Config.MinCount; minC != nil && *minC > 0 {
			existing, err := s.edges.ListByRelation(ctx, rel.ID)
			if err != nil {
				return fmt.Errorf("unlink: %w", err)
			}
			sourceCount := 0
			for _, e := range existing {
				if e.SourceRecordID == edge.SourceRecordID {
					sourceCount++
				}
			}
			if sourceCount-1 < *minC {
				return fmt.Errorf("unlink: %w",
					domain.NewRelationError(rel.ID, "source %s would fall below min count %d",
						edge.SourceRecordID, *minC))
			}
		}
	}
	if err := s.edges.Delete(ctx, edgeID); err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	metrics.MutationsTotal.WithLabelValues("relation_unlink").Inc()
	s.emitter.Emit(ctx, events.New(events.RelationUnlinked, "relation", map[string]any{
		"relation_id": edge.RelationID,
		"edge_id":     edgeID,
	}))
	return nil
}

// CascadeTarget names a record that cascade delete reaches.
type CascadeTarget struct {
	CollectionID string
	RecordID     string
}

// OnRecordDelete enforces relation constraints when a record is being
// removed: restrict_delete rejects the removal while edges exist,
// otherwise every touching edge is dropped and the targets of
// cascading relations are returned for the caller to delete.
func (s *Service) OnRecordDelete(ctx context.Context, collectionID, recordID string) ([]CascadeTarget, error) {
	touching, err := s.edges.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("record delete cascade: %w", err)
	}
	if len(touching) == 0 {
		return nil, nil
	}

	rels := map[string]relation.Relation{}
	for _, e := range touching {
		if _, ok := rels[e.RelationID]; ok {
			continue
		}
		rel, err := s.relations.Get(ctx, e.RelationID)
		if err != nil {
			return nil, fmt.Errorf("record delete cascade: %w", err)
		}
		rels[e.RelationID] = rel
	}

	for _, rel := range rels {
		if rel.RestrictsDelete() {
			return nil, fmt.Errorf("record delete cascade: %w",
				domain.NewRelationError(rel.ID, "record %s has restricted edges", recordID))
		}
	}

	var cascade []CascadeTarget
	for _, e := range touching {
		rel := rels[e.RelationID]
		if rel.CascadesDelete() && e.SourceRecordID == recordID {
			cascade = append(cascade, CascadeTarget{
				CollectionID: rel.TargetCollectionID,
				RecordID:     e.TargetRecordID,
			})
		}
		if err := s.edges.Delete(ctx, e.ID); err != nil {
			return nil, fmt.Errorf("record delete cascade: %w", err)
		}
	}
	return cascade, nil
}

// DeleteForCollection removes every relation touching a collection,
// edges included. Called when the collection itself is deleted, so
// restrict_delete does not apply.
func (s *Service) DeleteForCollection(ctx context.Context, collectionID string) error {
	rels, err := s.relations.ListByCollection(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("delete relations for collection: %w", err)
	}
	for _, rel := range rels {
		edges, err := s.edges.ListByRelation(ctx, rel.ID)
		if err != nil {
			return fmt.Errorf("delete relations for collection: %w", err)
		}
		for _, e := range edges {
			if err := s.edges.Delete(ctx, e.ID); err != nil {
				return fmt.Errorf("delete relations for collection: %w", err)
			}
		}
		if err := s.relations.Delete(ctx, rel.ID); err != nil {
			return fmt.Errorf("delete relations for collection: %w", err)
		}
		s.emitter.Emit(ctx, events.New(events.RelationDeleted, "relation",
			map[string]any{"relation_id": rel.ID, "edges_removed": len(edges)}))
	}
	return nil
}

// QueryParams selects edges for one or more records.
type QueryParams struct {
	RecordIDs    []string
	RelationID   string
	Depth        int // 0 or 1 = direct edges only
	SortByWeight bool
	Page         int
	PageSize     int
}

// QueryRelations returns the edges reachable from the given records
// within the requested traversal depth, paginated and optionally
// sorted by descending weight.
func (s *Service) QueryRelations(ctx context.Context, p QueryParams) ([]relation.Record, error) {
	depth := p.Depth
	if depth <= 0 {
		depth = 1
	}
	if depth > s.cfg.MaxTraversalDepth {
		depth = s.cfg.MaxTraversalDepth
	}

	seen := map[string]bool{}
	var out []relation.Record
	frontier := append([]string(nil), p.RecordIDs...)
	visited := map[string]bool{}
	for _, id := range frontier {
		visited[id] = true
	}

	for level := 0; level < depth && len(frontier) > 0; level++ {
		var nextFrontier []string
		for _, recordID := range frontier {
			edges, err := s.edges.ListByRecord(ctx, recordID)
			if err != nil {
				return nil, fmt.Errorf("query relations: %w", err)
			}
			for _, e := range edges {
				if p.RelationID != "" && e.RelationID != p.RelationID {
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

	if p.SortByWeight {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Properties.Weight > out[j].Properties.Weight
		})
	} else {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	}

	page, pageSize := p.Page, p.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		return out, nil
	}
	offset := (page - 1) * pageSize
	if offset >= len(out) {
		return []relation.Record{}, nil
	}
	end := offset + pageSize
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}
