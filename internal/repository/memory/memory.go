// Package memory implements the storage contracts with mutex-guarded
// maps. It is the embedded default backend and the one tests run on.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/gridbase/gridbase/internal/domain/collection"
	"github.com/gridbase/gridbase/internal/domain/record"
	"github.com/gridbase/gridbase/internal/domain/relation"
	"github.com/gridbase/gridbase/internal/domain/view"
)

// Store bundles the per-entity repositories over one in-memory
// dataset.
type Store struct {
	Collections *CollectionRepository
	Records     *RecordRepository
	Views       *ViewRepository
	Relations   *RelationRepository
	Edges       *EdgeRepository
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		Collections: &CollectionRepository{items: map[string]collection.Collection{}},
		Records:     &RecordRepository{items: map[string]map[string]record.Record{}},
		Views:       &ViewRepository{items: map[string]view.View{}},
		Relations:   &RelationRepository{items: map[string]relation.Relation{}},
		Edges:       &EdgeRepository{items: map[string]relation.Record{}},
	}
}

// CollectionRepository stores collections by id.
type CollectionRepository struct {
	mu    sync.RWMutex
	items map[string]collection.Collection
}

// Save upserts a collection.
func (r *CollectionRepository) Save(_ context.Context, col collection.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[col.ID] = col.Clone()
	return nil
}

// Get returns a collection, or a zero value when missing.
func (r *CollectionRepository) Get(_ context.Context, id string) (collection.Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	col, ok := r.items[id]
	if !ok {
		return collection.Collection{}, nil
	}
	return col.Clone(), nil
}

// List returns every collection ordered by creation time.
func (r *CollectionRepository) List(_ context.Context) ([]collection.Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]collection.Collection, 0, len(r.items))
	for _, col := range r.items {
		out = append(out, col.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes a collection.
func (r *CollectionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

// RecordRepository stores records keyed by collection, then record id.
type RecordRepository struct {
	mu    sync.RWMutex
	items map[string]map[string]record.Record
}

// Save upserts a record.
func (r *RecordRepository) Save(_ context.Context, rec record.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byID, ok := r.items[rec.CollectionID]
	if !ok {
		byID = map[string]record.Record{}
		r.items[rec.CollectionID] = byID
	}
	byID[rec.ID] = rec.Clone()
	return nil
}

// Get returns a record, or a zero value when missing.
func (r *RecordRepository) Get(_ context.Context, collectionID, id string) (record.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.items[collectionID][id]
	if !ok {
		return record.Record{}, nil
	}
	return rec.Clone(), nil
}

// ListByCollection returns a collection's records ordered by creation
// time.
func (r *RecordRepository) ListByCollection(_ context.Context, collectionID string) ([]record.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byID := r.items[collectionID]
	out := make([]record.Record, 0, len(byID))
	for _, rec := range byID {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes a record.
func (r *RecordRepository) Delete(_ context.Context, collectionID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items[collectionID], id)
	return nil
}

// DeleteByCollection removes every record of a collection.
func (r *RecordRepository) DeleteByCollection(_ context.Context, collectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, collectionID)
	return nil
}

// ViewRepository stores views by id.
type ViewRepository struct {
	mu    sync.RWMutex
	items map[string]view.View
}

// Save upserts a view.
func (r *ViewRepository) Save(_ context.Context, v view.View) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[v.ID] = v
	return nil
}

// Get returns a view, or a zero value when missing.
func (r *ViewRepository) Get(_ context.Context, id string) (view.View, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[id], nil
}

// ListByCollection returns a collection's views in name order.
func (r *ViewRepository) ListByCollection(_ context.Context, collectionID string) ([]view.View, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []view.View
	for _, v := range r.items {
		if v.CollectionID == collectionID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes a view.
func (r *ViewRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

// RelationRepository stores relations by id.
type RelationRepository struct {
	mu    sync.RWMutex
	items map[string]relation.Relation
}

// Save upserts a relation.
func (r *RelationRepository) Save(_ context.Context, rel relation.Relation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[rel.ID] = rel
	return nil
}

// Get returns a relation, or a zero value when missing.
func (r *RelationRepository) Get(_ context.Context, id string) (relation.Relation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[id], nil
}

// List returns every relation in creation order.
func (r *RelationRepository) List(_ context.Context) ([]relation.Relation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]relation.Relation, 0, len(r.items))
	for _, rel := range r.items {
		out = append(out, rel)
	}
	sortRelations(out)
	return out, nil
}

// ListByCollection returns the relations a collection participates in,
// on either side.
func (r *RelationRepository) ListByCollection(_ context.Context, collectionID string) ([]relation.Relation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []relation.Relation
	for _, rel := range r.items {
		if rel.SourceCollectionID == collectionID || rel.TargetCollectionID == collectionID {
			out = append(out, rel)
		}
	}
	sortRelations(out)
	return out, nil
}

// Delete removes a relation.
func (r *RelationRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func sortRelations(rels []relation.Relation) {
	sort.Slice(rels, func(i, j int) bool {
		if !rels[i].CreatedAt.Equal(rels[j].CreatedAt) {
			return rels[i].CreatedAt.Before(rels[j].CreatedAt)
		}
		return rels[i].ID < rels[j].ID
	})
}

// EdgeRepository stores relation records (edges) by id.
type EdgeRepository struct {
	mu    sync.RWMutex
	items map[string]relation.Record
}

// Save upserts an edge.
func (r *EdgeRepository) Save(_ context.Context, edge relation.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[edge.ID] = edge
	return nil
}

// Get returns an edge, or a zero value when missing.
func (r *EdgeRepository) Get(_ context.Context, id string) (relation.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[id], nil
}

// ListByRelation returns a relation's edges in creation order.
func (r *EdgeRepository) ListByRelation(_ context.Context, relationID string) ([]relation.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []relation.Record
	for _, e := range r.items {
		if e.RelationID == relationID {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out, nil
}

// ListByRecord returns every edge touching a record on either end.
func (r *EdgeRepository) ListByRecord(_ context.Context, recordID string) ([]relation.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []relation.Record
	for _, e := range r.items {
		if e.SourceRecordID == recordID || e.TargetRecordID == recordID {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out, nil
}

// Delete removes an edge.
func (r *EdgeRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func sortEdges(edges []relation.Record) {
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].CreatedAt.Before(edges[j].CreatedAt)
		}
		return edges[i].ID < edges[j].ID
	})
}
