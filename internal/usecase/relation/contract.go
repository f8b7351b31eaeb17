package relation

import (
	"context"

	"github.com/gridbase/gridbase/internal/domain/collection"
	"github.com/gridbase/gridbase/internal/domain/record"
	"github.com/gridbase/gridbase/internal/domain/relation"
)

// RelationRepository is the consumer interface for relation storage.
type RelationRepository interface {
	Save(ctx context.Context, rel relation.Relation) error
	Get(ctx context.Context, id string) (relation.Relation, error)
	List(ctx context.Context) ([]relation.Relation, error)
	ListByCollection(ctx context.Context, collectionID string) ([]relation.Relation, error)
	Delete(ctx context.Context, id string) error
}

// EdgeRepository is the consumer interface for relation-record (edge)
// storage.
type EdgeRepository interface {
	Save(ctx context.Context, edge relation.Record) error
	Get(ctx context.Context, id string) (relation.Record, error)
	ListByRelation(ctx context.Context, relationID string) ([]relation.Record, error)
	ListByRecord(ctx context.Context, recordID string) ([]relation.Record, error)
	Delete(ctx context.Context, id string) error
}

// CollectionRepository is the consumer interface for collection schemas.
type CollectionRepository interface {
	Get(ctx context.Context, id string) (collection.Collection, error)
}

// RecordRepository is the consumer interface for record existence checks.
type RecordRepository interface {
	Get(ctx context.Context, collectionID, id string) (record.Record, error)
}
