package query

import (
	"context"

	"github.com/gridbase/gridbase/internal/domain/collection"
	"github.com/gridbase/gridbase/internal/domain/record"
)

// CollectionRepository is the consumer interface for collection schemas.
type CollectionRepository interface {
	Get(ctx context.Context, id string) (collection.Collection, error)
}

// RecordRepository is the consumer interface for record retrieval. The
// engine issues no query language to storage; all filtering happens in
// the executor against the listed records.
type RecordRepository interface {
	ListByCollection(ctx context.Context, collectionID string) ([]record.Record, error)
}
