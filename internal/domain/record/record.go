// Package record defines a row of typed values within a collection.
package record

import (
	"time"

	"github.com/google/uuid"
)

// Properties holds row-level state that is not part of the schema.
type Properties struct {
	Deleted  bool     `json:"deleted,omitempty"`
	Archived bool     `json:"archived,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Priority int      `json:"priority,omitempty"`
}

// Record is a row: a mapping from field id to a typed value plus audit
// metadata. Values are decoded-JSON shapes validated against the owning
// collection's fields before persistence.
type Record struct {
	ID           string         `json:"id"`
	CollectionID string         `json:"collection_id"`
	Values       map[string]any `json:"values"`
	Properties   Properties     `json:"properties"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	CreatedBy    string         `json:"created_by,omitempty"`
	UpdatedBy    string         `json:"updated_by,omitempty"`
}

// New creates a record in a collection. Values are validated by the
// collection service against the schema, not here.
func New(collectionID string, values map[string]any) Record {
	if values == nil {
		values = map[string]any{}
	}
	now := time.Now().UTC()
	return Record{
		ID:           uuid.NewString(),
		CollectionID: collectionID,
		Values:       values,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy of the record's top-level structure. Nested
// value containers are shared; callers treat values as immutable.
func (r Record) Clone() Record {
	out := r
	out.Values = make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		out.Values[k] = v
	}
	out.Properties.Tags = append([]string(nil), r.Properties.Tags...)
	return out
}

// Value returns the value stored under a field id.
func (r Record) Value(fieldID string) (any, bool) {
	v, ok := r.Values[fieldID]
	return v, ok
}
