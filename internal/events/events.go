// Package events defines the engine's outbound event contract. Events
// are values handed to an injected sink after successful mutations and
// on query/cache/analysis signals; the engine never invokes callbacks
// directly.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type names an engine event.
type Type string

// Event types.
const (
	CollectionCreated Type = "collection.created"
	CollectionUpdated Type = "collection.updated"
	CollectionDeleted Type = "collection.deleted"
	FieldAdded        Type = "field.added"
	FieldUpdated      Type = "field.updated"
	FieldRemoved      Type = "field.removed"
	ViewCreated       Type = "view.created"
	ViewUpdated       Type = "view.updated"
	ViewDeleted       Type = "view.deleted"
	RecordCreated     Type = "record.created"
	RecordUpdated     Type = "record.updated"
	RecordDeleted     Type = "record.deleted"
	RelationCreated   Type = "relation.created"
	RelationUpdated   Type = "relation.updated"
	RelationDeleted   Type = "relation.deleted"
	RelationLinked    Type = "relation.linked"
	RelationUnlinked  Type = "relation.unlinked"
	QueryExecuted     Type = "query.executed"
	QueryCacheHit     Type = "query.cache_hit"
	QueryCacheMiss    Type = "query.cache_miss"
	IndexSuggested    Type = "query.index_suggested"
	PerformanceWarn   Type = "query.performance_warning"
	GraphBuilt        Type = "graph.built"
	GraphAnalyzed     Type = "graph.analyzed"
)

// Event is one emitted signal.
type Event struct {
	Type    Type           `json:"type"`
	Source  string         `json:"source"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

// Emitter receives engine events. Implementations must be safe for
// concurrent use and must not block mutations for long.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// New creates an event with the current timestamp.
func New(t Type, source string, payload map[string]any) Event {
	return Event{Type: t, Source: source, Payload: payload, At: time.Now().UTC()}
}

// Nop discards every event.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(context.Context, Event) {}

// Log writes events to a zap logger at debug level.
type Log struct {
	Logger *zap.Logger
}

// Emit implements Emitter.
func (l Log) Emit(_ context.Context, e Event) {
	l.Logger.Debug("engine event",
		zap.String("event_type", string(e.Type)),
		zap.String("source", e.Source),
		zap.Any("payload", e.Payload),
	)
}

// Recorder captures events for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a snapshot of the captured events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Has reports whether an event of the given type was captured.
func (r *Recorder) Has(t Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == t {
			return true
		}
	}
	return false
}
