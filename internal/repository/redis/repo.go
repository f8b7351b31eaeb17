package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gridbase/gridbase/internal/domain/collection"
	"github.com/gridbase/gridbase/internal/domain/record"
	"github.com/gridbase/gridbase/internal/domain/relation"
	"github.com/gridbase/gridbase/internal/domain/view"
)

// store is the consumer interface the repositories need (ISP).
type store interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Key layout:
//
//	collection:<id>
//	record:<collection_id>:<id>
//	view:<collection_id>:<id>
//	relation:<id>
//	edge:<relation_id>:<id>

// Store bundles the per-entity repositories over one connection.
type Store struct {
	Collections *CollectionRepository
	Records     *RecordRepository
	Views       *ViewRepository
	Relations   *RelationRepository
	Edges       *EdgeRepository
}

// NewStore creates the repository bundle.
func NewStore(s store) *Store {
	return &Store{
		Collections: &CollectionRepository{store: s},
		Records:     &RecordRepository{store: s},
		Views:       &ViewRepository{store: s},
		Relations:   &RelationRepository{store: s},
		Edges:       &EdgeRepository{store: s},
	}
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return string(b), nil
}

// CollectionRepository stores collections as JSON strings.
type CollectionRepository struct {
	store store
}

// Save upserts a collection.
func (r *CollectionRepository) Save(ctx context.Context, col collection.Collection) error {
	data, err := marshal(col)
	if err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	return r.store.Set(ctx, "collection:"+col.ID, data)
}

// Get returns a collection, or a zero value when missing.
func (r *CollectionRepository) Get(ctx context.Context, id string) (collection.Collection, error) {
	data, ok, err := r.store.Get(ctx, "collection:"+id)
	if err != nil || !ok {
		return collection.Collection{}, err
	}
	var col collection.Collection
	if err := json.Unmarshal([]byte(data), &col); err != nil {
		return collection.Collection{}, fmt.Errorf("parse collection %s: %w", id, err)
	}
	return col, nil
}

// List returns every collection ordered by creation time.
func (r *CollectionRepository) List(ctx context.Context) ([]collection.Collection, error) {
	rows, err := r.store.Scan(ctx, "collection:*")
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	out := make([]collection.Collection, 0, len(rows))
	for _, row := range rows {
		var col collection.Collection
		if err := json.Unmarshal([]byte(row), &col); err != nil {
			return nil, fmt.Errorf("parse collection: %w", err)
		}
		out = append(out, col)
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
func (r *CollectionRepository) Delete(ctx context.Context, id string) error {
	return r.store.Del(ctx, "collection:"+id)
}

// RecordRepository stores records under a per-collection key prefix.
type RecordRepository struct {
	store store
}

// Save upserts a record.
func (r *RecordRepository) Save(ctx context.Context, rec record.Record) error {
	data, err := marshal(rec)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return r.store.Set(ctx, recordKey(rec.CollectionID, rec.ID), data)
}

// Get returns a record, or a zero value when missing.
func (r *RecordRepository) Get(ctx context.Context, collectionID, id string) (record.Record, error) {
	data, ok, err := r.store.Get(ctx, recordKey(collectionID, id))
	if err != nil || !ok {
		return record.Record{}, err
	}
	var rec record.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return record.Record{}, fmt.Errorf("parse record %s: %w", id, err)
	}
	return rec, nil
}

// ListByCollection returns a collection's records ordered by creation
// time.
func (r *RecordRepository) ListByCollection(ctx context.Context, collectionID string) ([]record.Record, error) {
	rows, err := r.store.Scan(ctx, recordKey(collectionID, "*"))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	out := make([]record.Record, 0, len(rows))
	for _, row := range rows {
		var rec record.Record
		if err := json.Unmarshal([]byte(row), &rec); err != nil {
			return nil, fmt.Errorf("parse record: %w", err)
		}
		out = append(out, rec)
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
func (r *RecordRepository) Delete(ctx context.Context, collectionID, id string) error {
	return r.store.Del(ctx, recordKey(collectionID, id))
}

// DeleteByCollection removes every record of a collection.
func (r *RecordRepository) DeleteByCollection(ctx context.Context, collectionID string) error {
	recs, err := r.ListByCollection(ctx, collectionID)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := r.store.Del(ctx, recordKey(collectionID, rec.ID)); err != nil {
			return err
		}
	}
	return nil
}

func recordKey(collectionID, id string) string {
	return fmt.Sprintf("record:%s:%s", collectionID, id)
}

// ViewRepository stores views under a per-collection key prefix. Get by
// bare id scans, since callers do not carry the collection id.
type ViewRepository struct {
	store store
}

// Save upserts a view.
func (r *ViewRepository) Save(ctx context.Context, v view.View) error {
	data, err := marshal(v)
	if err != nil {
		return fmt.Errorf("save view: %w", err)
	}
	return r.store.Set(ctx, viewKey(v.CollectionID, v.ID), data)
}

// Get returns a view, or a zero value when missing.
func (r *ViewRepository) Get(ctx context.Context, id string) (view.View, error) {
	rows, err := r.store.Scan(ctx, "view:*:"+id)
	if err != nil {
		return view.View{}, fmt.Errorf("get view: %w", err)
	}
	if len(rows) == 0 {
		return view.View{}, nil
	}
	var v view.View
	if err := json.Unmarshal([]byte(rows[0]), &v); err != nil {
		return view.View{}, fmt.Errorf("parse view %s: %w", id, err)
	}
	return v, nil
}

// ListByCollection returns a collection's views in name order.
func (r *ViewRepository) ListByCollection(ctx context.Context, collectionID string) ([]view.View, error) {
	rows, err := r.store.Scan(ctx, viewKey(collectionID, "*"))
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	out := make([]view.View, 0, len(rows))
	for _, row := range rows {
		var v view.View
		if err := json.Unmarshal([]byte(row), &v); err != nil {
			return nil, fmt.Errorf("parse view: %w", err)
		}
		out = append(out, v)
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
func (r *ViewRepository) Delete(ctx context.Context, id string) error {
	v, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if v.ID == "" {
		return nil
	}
	return r.store.Del(ctx, viewKey(v.CollectionID, v.ID))
}

func viewKey(collectionID, id string) string {
	return fmt.Sprintf("view:%s:%s", collectionID, id)
}

// RelationRepository stores relations as JSON strings.
type RelationRepository struct {
	store store
}

// Save upserts a relation.
func (r *RelationRepository) Save(ctx context.Context, rel relation.Relation) error {
	data, err := marshal(rel)
	if err != nil {
		return fmt.Errorf("save relation: %w", err)
	}
	return r.store.Set(ctx, "relation:"+rel.ID, data)
}

// Get returns a relation, or a zero value when missing.
func (r *RelationRepository) Get(ctx context.Context, id string) (relation.Relation, error) {
	data, ok, err := r.store.Get(ctx, "relation:"+id)
	if err != nil || !ok {
		return relation.Relation{}, err
	}
	var rel relation.Relation
	if err := json.Unmarshal([]byte(data), &rel); err != nil {
		return relation.Relation{}, fmt.Errorf("parse relation %s: %w", id, err)
	}
	return rel, nil
}

// List returns every relation in creation order.
func (r *RelationRepository) List(ctx context.Context) ([]relation.Relation, error) {
	rows, err := r.store.Scan(ctx, "relation:*")
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	out := make([]relation.Relation, 0, len(rows))
	for _, row := range rows {
		var rel relation.Relation
		if err := json.Unmarshal([]byte(row), &rel); err != nil {
			return nil, fmt.Errorf("parse relation: %w", err)
		}
		out = append(out, rel)
	}
	sortRelations(out)
	return out, nil
}

// ListByCollection returns the relations a collection participates in.
func (r *RelationRepository) ListByCollection(ctx context.Context, collectionID string) ([]relation.Relation, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []relation.Relation
	for _, rel := range all {
		if rel.SourceCollectionID == collectionID || rel.TargetCollectionID == collectionID {
			out = append(out, rel)
		}
	}
	return out, nil
}

// Delete removes a relation.
func (r *RelationRepository) Delete(ctx context.Context, id string) error {
	return r.store.Del(ctx, "relation:"+id)
}

func sortRelations(rels []relation.Relation) {
	sort.Slice(rels, func(i, j int) bool {
		if !rels[i].CreatedAt.Equal(rels[j].CreatedAt) {
			return rels[i].CreatedAt.Before(rels[j].CreatedAt)
		}
		return rels[i].ID < rels[j].ID
	})
}

// EdgeRepository stores relation records under a per-relation key
// prefix.
type EdgeRepository struct {
	store store
}

// Save upserts an edge.
func (r *EdgeRepository) Save(ctx context.Context, edge relation.Record) error {
	data, err := marshal(edge)
	if err != nil {
		return fmt.Errorf("save edge: %w", err)
	}
	return r.store.Set(ctx, edgeKey(edge.RelationID, edge.ID), data)
}

// Get returns an edge, or a zero value when missing.
func (r *EdgeRepository) Get(ctx context.Context, id string) (relation.Record, error) {
	rows, err := r.store.Scan(ctx, "edge:*:"+id)
	if err != nil {
		return relation.Record{}, fmt.Errorf("get edge: %w", err)
	}
	if len(rows) == 0 {
		return relation.Record{}, nil
	}
	var edge relation.Record
	if err := json.Unmarshal([]byte(rows[0]), &edge); err != nil {
		return relation.Record{}, fmt.Errorf("parse edge %s: %w", id, err)
	}
	return edge, nil
}

// ListByRelation returns a relation's edges in creation order.
func (r *EdgeRepository) ListByRelation(ctx context.Context, relationID string) ([]relation.Record, error) {
	rows, err := r.store.Scan(ctx, edgeKey(relationID, "*"))
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	return parseEdges(rows)
}

// ListByRecord returns every edge touching a record on either end.
func (r *EdgeRepository) ListByRecord(ctx context.Context, recordID string) ([]relation.Record, error) {
	rows, err := r.store.Scan(ctx, "edge:*")
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	all, err := parseEdges(rows)
	if err != nil {
		return nil, err
	}
	var out []relation.Record
	for _, e := range all {
		if e.SourceRecordID == recordID || e.TargetRecordID == recordID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Delete removes an edge.
func (r *EdgeRepository) Delete(ctx context.Context, id string) error {
	edge, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if edge.ID == "" {
		return nil
	}
	return r.store.Del(ctx, edgeKey(edge.RelationID, edge.ID))
}

func edgeKey(relationID, id string) string {
	return fmt.Sprintf("edge:%s:%s", relationID, id)
}

func parseEdges(rows []string) ([]relation.Record, error) {
	out := make([]relation.Record, 0, len(rows))
	for _, row := range rows {
		var edge relation.Record
		if err := json.Unmarshal([]byte(row), &edge); err != nil {
			return nil, fmt.Errorf("parse edge: %w", err)
		}
		out = append(out, edge)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
