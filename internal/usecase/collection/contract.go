package collection

import (
	"context"

	"github.com/gridbase/gridbase/internal/domain/collection"
	"github.com/gridbase/gridbase/internal/domain/record"
	"github.com/gridbase/gridbase/internal/domain/view"
	"github.com/gridbase/gridbase/internal/usecase/relation"
)

// CollectionRepository is the consumer interface for collection
// storage. Get returns a zero value without error for a missing id.
type CollectionRepository interface {
	Save(ctx context.Context, col collection.Collection) error
	Get(ctx context.Context, id string) (collection.Collection, error)
	List(ctx context.Context) ([]collection.Collection, error)
	Delete(ctx context.Context, id string) error
}

// RecordRepository is the consumer interface for record storage.
type RecordRepository interface {
	Save(ctx context.Context, rec record.Record) error
	Get(ctx context.Context, collectionID, id string) (record.Record, error)
	ListByCollection(ctx context.Context, collectionID string) ([]record.Record, error)
	Delete(ctx context.Context, collectionID, id string) error
	DeleteByCollection(ctx context.Context, collectionID string) error
}

// ViewRepository is the consumer interface for view storage.
type ViewRepository interface {
	Save(ctx context.Context, v view.View) error
	Get(ctx context.Context, id string) (view.View, error)
	ListByCollection(ctx context.Context, collectionID string) ([]view.View, error)
	Delete(ctx context.Context, id string) error
}

// Checker authorizes an operation against a resource. A nil error
// grants; implementations return a PermissionError to deny.
type Checker interface {
	Check(ctx context.Context, permission, resourceID string) error
}

// RelationGuard lets the service consult relation constraints during
// deletes: edge cleanup and cascade targets on record removal, full
// relation cleanup on collection removal.
type RelationGuard interface {
	OnRecordDelete(ctx context.Context, collectionID, recordID string) ([]relation.CascadeTarget, error)
	DeleteForCollection(ctx context.Context, collectionID string) error
}

// CacheInvalidator drops cached query results for a collection after a
// mutation.
type CacheInvalidator interface {
	InvalidateCollection(collectionID string)
}
