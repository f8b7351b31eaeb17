// Package collection orchestrates collection, record, field, and view
// operations: validation, permission checks, quota guards, storage
// mutation, metadata counters, and event emission, in that order.
package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gridbase/gridbase/internal/config"
	"github.com/gridbase/gridbase/internal/domain"
	"github.com/gridbase/gridbase/internal/domain/collection"
	"github.com/gridbase/gridbase/internal/domain/field"
	"github.com/gridbase/gridbase/internal/domain/record"
	"github.com/gridbase/gridbase/internal/domain/view"
	"github.com/gridbase/gridbase/internal/events"
	"github.com/gridbase/gridbase/internal/metrics"
)

// Permissions checked by the service.
const (
	PermCollectionCreate = "collection:create"
	PermCollectionRead   = "collection:read"
	PermCollectionUpdate = "collection:update"
	PermCollectionDelete = "collection:delete"
	PermRecordCreate     = "record:create"
	PermRecordRead       = "record:read"
	PermRecordUpdate     = "record:update"
	PermRecordDelete     = "record:delete"
)

// Service is the engine's orchestration surface for collections and
// their records, fields, and views.
type Service struct {
	collections CollectionRepository
	records     RecordRepository
	views       ViewRepository
	checker     Checker
	relations   RelationGuard
	cache       CacheInvalidator
	emitter     events.Emitter
	logger      *zap.Logger
	cfg         config.EngineConfig
}

// NewService creates the collection service. checker, relations, and
// cache may be nil; emitter defaults to a no-op sink.
func NewService(
	collections CollectionRepository,
	records RecordRepository,
	views ViewRepository,
	checker Checker,
	relations RelationGuard,
	cache CacheInvalidator,
	emitter events.Emitter,
	logger *zap.Logger,
	cfg config.EngineConfig,
) *Service {
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Service{
		collections: collections,
		records:     records,
		views:       views,
		checker:     checker,
		relations:   relations,
		cache:       cache,
		emitter:     emitter,
		logger:      logger,
		cfg:         cfg,
	}
}

// check runs the permission collaborator. A disabled permission system
// or a nil checker grants everything.
func (s *Service) check(ctx context.Context, permission, resourceID string) error {
	if !s.cfg.EnablePermissions || s.checker == nil {
		return nil
	}
	return s.checker.Check(ctx, permission, resourceID)
}

func (s *Service) invalidate(collectionID string) {
	if s.cache != nil {
		s.cache.InvalidateCollection(collectionID)
	}
}

// CreateCollection validates and persists a new collection. When
// fields are supplied a default table view is created alongside it.
func (s *Service) CreateCollection(ctx context.Context, name string, fields []field.Field) (collection.Collection, error) {
	if err := s.check(ctx, PermCollectionCreate, ""); err != nil {
		return collection.Collection{}, fmt.Errorf("create collection: %w", err)
	}
	if len(fields) > s.cfg.MaxFieldsPerCollection {
		return collection.Collection{}, fmt.Errorf("create collection: %d fields: %w",
			len(fields), domain.ErrQuotaExceeded)
	}

	existing, err := s.collections.List(ctx)
	if err != nil {
		return collection.Collection{}, fmt.Errorf("create collection: %w", err)
	}
	if len(existing) >= s.cfg.MaxCollections {
		return collection.Collection{}, fmt.Errorf("create collection: %d collections: %w",
			len(existing), domain.ErrQuotaExceeded)
	}

	col, err := collection.New(name, fields)
	if err != nil {
		return collection.Collection{}, fmt.Errorf("create collection: %w", err)
	}

	if len(fields) > 0 {
		defaultView := view.NewDefault(col.ID, col.Fields)
		if err := s.views.Save(ctx, defaultView); err != nil {
			return collection.Collection{}, fmt.Errorf("create collection default view: %w", err)
		}
		col.Metadata.ViewCount = 1
		s.emitter.Emit(ctx, events.New(events.ViewCreated, "collection", map[string]any{
			"collection_id": col.ID,
			"view_id":       defaultView.ID,
		}))
	}

	if err := s.collections.Save(ctx, col); err != nil {
		return collection.Collection{}, fmt.Errorf("create collection: %w", err)
	}
	metrics.MutationsTotal.WithLabelValues("collection_create").Inc()
	s.emitter.Emit(ctx, events.New(events.CollectionCreated, "collection", map[string]any{
		"collection_id": col.ID,
		"name":          col.Name,
	}))
	s.logger.Info("collection created", zap.String("collection_id", col.ID), zap.String("name", col.Name))
	return col, nil
}

// GetCollection returns a collection, or a zero value when it does not
// exist. Access statistics are updated best-effort.
func (s *Service) GetCollection(ctx context.Context, id string) (collection.Collection, error) {
	if err := s.check(ctx, PermCollectionRead, id); err != nil {
		return collection.Collection{}, fmt.Errorf("get collection: %w", err)
	}
	col, err := s.collections.Get(ctx, id)
	if err != nil {
		return collection.Collection{}, fmt.Errorf("get collection: %w", err)
	}
	if col.ID == "" {
		return collection.Collection{}, nil
	}

	col.Metadata.AccessCount++
	col.Metadata.LastAccessedAt = time.Now().UTC()
	if err := s.collections.Save(ctx, col); err != nil {
		s.logger.Debug("access stats update failed", zap.String("collection_id", id), zap.Error(err))
	}
	return col, nil
}

// ListCollections returns every collection.
func (s *Service) ListCollections(ctx context.Context) ([]collection.Collection, error) {
	if err := s.check(ctx, PermCollectionRead, ""); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	cols, err := s.collections.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return cols, nil
}

// UpdateCollection persists name, description, icon, permission, and
// config changes. Schema changes go through the field operations.
func (s *Service) UpdateCollection(ctx context.Context, col collection.Collection) (collection.Collection, error) {
	if err := s.check(ctx, PermCollectionUpdate, col.ID); err != nil {
		return collection.Collection{}, fmt.Errorf("update collection: %w", err)
	}
	if err := collection.ValidateName(col.Name); err != nil {
		return collection.Collection{}, fmt.Errorf("update collection: %w", err)
	}
	current, err := s.collections.Get(ctx, col.ID)
	if err != nil {
		return collection.Collection{}, fmt.Errorf("update collection: %w", err)
	}
	if current.ID == "" {
		return collection.Collection{}, fmt.Errorf("update collection %s: %w", col.ID, domain.ErrNotFound)
	}

	current.Name = col.Name
	current.Description = col.Description
	current.Icon = col.Icon
	current.Permissions = col.Permissions
	current.Config = col.Config
	current.UpdatedAt = time.Now().UTC()
	current.UpdatedBy = col.UpdatedBy

	if err := s.collections.Save(ctx, current); err != nil {
		return collection.Collection{}, fmt.Errorf("update collection: %w", err)
	}
	metrics.MutationsTotal.WithLabelValues("collection_update").Inc()
	s.invalidate(col.ID)
	s.emitter.Emit(ctx, events.New(events.CollectionUpdated, "collection",
		map[string]any{"collection_id": col.ID}))
	return current, nil
}

// DeleteCollection removes a collection with cascading cleanup of its
// records, views, relations, and relation records.
func (s *Service) DeleteCollection(ctx context.Context, id string) error {
	if err := s.check(ctx, PermCollectionDelete, id); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	current, err := s.collections.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if current.ID == "" {
		return fmt.Errorf("delete collection %s: %w", id, domain.ErrNotFound)
	}

	if s.relations != nil {
		if err := s.relations.DeleteForCollection(ctx, id); err != nil {
			return fmt.Errorf("delete collection: %w", err)
		}
	}
	vws, err := s.views.ListByCollection(ctx, id)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	for _, v := range vws {
		if err := s.views.Delete(ctx, v.ID); err != nil {
			return fmt.Errorf("delete collection view %s: %w", v.ID, err)
		}
	}
	if err := s.records.DeleteByCollection(ctx, id); err != nil {
		return fmt.Errorf("delete collection records: %w", err)
	}
	if err := s.collections.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}

	metrics.MutationsTotal.WithLabelValues("collection_delete").Inc()
	s.invalidate(id)
	s.emitter.Emit(ctx, events.New(events.CollectionDeleted, "collection",
		map[string]any{"collection_id": id}))
	s.logger.Info("collection deleted", zap.String("collection_id", id))
	return nil
}

// DuplicateCollection copies a collection's schema under a new name,
// optionally including its live records. Views are not copied; the
// duplicate gets a fresh default view.
func (s *Service) DuplicateCollection(ctx context.Context, id, newName string, withRecords bool) (collection.Collection, error) {
	source, err := s.collections.Get(ctx, id)
	if err != nil {
		return collection.Collection{}, fmt.Errorf("duplicate collection: %w", err)
	}
	if source.ID == "" {
		return collection.Collection{}, fmt.Errorf("duplicate collection %s: %w", id, domain.ErrNotFound)
	}

	dup, err := s.CreateCollection(ctx, newName, source.Clone().Fields)
	if err != nil {
		return collection.Collection{}, fmt.Errorf("duplicate collection: %w", err)
	}
	dup.Description = source.Description
	dup.Icon = source.Icon
	dup.Config = source.Config

	if withRecords {
		recs, err := s.records.ListByCollection(ctx, id)
		if err != nil {
			return collection.Collection{}, fmt.Errorf("duplicate collection records: %w", err)
		}
		for _, r := range recs {
			if r.Properties.Deleted {
				continue
			}
			copied := record.New(dup.ID, r.Clone().Values)
			copied.Properties = r.Properties
			if err := s.records.Save(ctx, copied); err != nil {
				return collection.Collection{}, fmt.Errorf("duplicate collection records: %w", err)
			}
			dup.Metadata.RecordCount++
			dup.Metadata.SizeBytes += approximateSize(copied)
		}
	}
	if err := s.collections.Save(ctx, dup); err != nil {
		return collection.Collection{}, fmt.Errorf("duplicate collection: %w", err)
	}
	return dup, nil
}

// approximateSize estimates a record's stored footprint from its JSON
// encoding.
func approximateSize(r record.Record) int64 {
	b, err := json.Marshal(r)
	if err != nil {
		return 0
	}
	return int64(len(b))
}
