package collection

import (
	"context"
	"fmt"
	"time"

	"github.com/gridbase/gridbase/internal/domain"
	"github.com/gridbase/gridbase/internal/domain/view"
	"github.com/gridbase/gridbase/internal/events"
	"github.com/gridbase/gridbase/internal/metrics"
)

// CreateView validates and persists a view. A new default view demotes
// the previous one so at most one default exists per collection.
func (s *Service) CreateView(ctx context.Context, v view.View) (view.View, error) {
	if err := s.check(ctx, PermCollectionUpdate, v.CollectionID); err != nil {
		return view.View{}, fmt.Errorf("create view: %w", err)
	}
	col, err := s.mustGetCollection(ctx, v.CollectionID)
	if err != nil {
		return view.View{}, fmt.Errorf("create view: %w", err)
	}
	if err := v.Validate(col.Fields); err != nil {
		return view.View{}, fmt.Errorf("create view: %w", err)
	}

	existing, err := s.views.ListByCollection(ctx, v.CollectionID)
	if err != nil {
		return view.View{}, fmt.Errorf("create view: %w", err)
	}
	if len(existing) >= s.cfg.MaxViewsPerCollection {
		return view.View{}, fmt.Errorf("create view: %d views: %w", len(existing), domain.ErrQuotaExceeded)
	}
	if v.IsDefault {
		if err := s.demoteDefault(ctx, existing, v.ID); err != nil {
			return view.View{}, fmt.Errorf("create view: %w", err)
		}
	}

	if err := s.views.Save(ctx, v); err != nil {
		return view.View{}, fmt.Errorf("create view: %w", err)
	}
	col.Metadata.ViewCount = len(existing) + 1
	col.UpdatedAt = time.Now().UTC()
	if err := s.collections.Save(ctx, col); err != nil {
		return view.View{}, fmt.Errorf("create view counters: %w", err)
	}

	metrics.MutationsTotal.WithLabelValues("view_create").Inc()
	s.emitter.Emit(ctx, events.New(events.ViewCreated, "collection", map[string]any{
		"collection_id": v.CollectionID,
		"view_id":       v.ID,
	}))
	return v, nil
}

// GetView returns a view, or a zero value when it does not exist.
func (s *Service) GetView(ctx context.Context, id string) (view.View, error) {
	v, err := s.views.Get(ctx, id)
	if err != nil {
		return view.View{}, fmt.Errorf("get view: %w", err)
	}
	return v, nil
}

// ListViews returns a collection's views.
func (s *Service) ListViews(ctx context.Context, collectionID string) ([]view.View, error) {
	vws, err := s.views.ListByCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	return vws, nil
}

// UpdateView re-validates and persists a changed view, keeping default
// uniqueness intact.
func (s *Service) UpdateView(ctx context.Context, v view.View) (view.View, error) {
	if err := s.check(ctx, PermCollectionUpdate, v.CollectionID); err != nil {
		return view.View{}, fmt.Errorf("update view: %w", err)
	}
	current, err := s.views.Get(ctx, v.ID)
	if err != nil {
		return view.View{}, fmt.Errorf("update view: %w", err)
	}
	if current.ID == "" {
		return view.View{}, fmt.Errorf("update view %s: %w", v.ID, domain.ErrNotFound)
	}
	col, err := s.mustGetCollection(ctx, v.CollectionID)
	if err != nil {
		return view.View{}, fmt.Errorf("update view: %w", err)
	}
	if err := v.Validate(col.Fields); err != nil {
		return view.View{}, fmt.Errorf("update view: %w", err)
	}

	if v.IsDefault && !current.IsDefault {
		existing, err := s.views.ListByCollection(ctx, v.CollectionID)
		if err != nil {
			return view.View{}, fmt.Errorf("update view: %w", err)
		}
		if err := s.demoteDefault(ctx, existing, v.ID); err != nil {
			return view.View{}, fmt.Errorf("update view: %w", err)
		}
	}

	if err := s.views.Save(ctx, v); err != nil {
		return view.View{}, fmt.Errorf("update view: %w", err)
	}
	metrics.MutationsTotal.WithLabelValues("view_update").Inc()
	s.emitter.Emit(ctx, events.New(events.ViewUpdated, "collection", map[string]any{
		"collection_id": v.CollectionID,
		"view_id":       v.ID,
	}))
	return v, nil
}

// DeleteView removes a view and updates the owning collection's
// counter.
func (s *Service) DeleteView(ctx context.Context, id string) error {
	current, err := s.views.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("delete view: %w", err)
	}
	if current.ID == "" {
		return fmt.Errorf("delete view %s: %w", id, domain.ErrNotFound)
	}
	if err := s.check(ctx, PermCollectionUpdate, current.CollectionID); err != nil {
		return fmt.Errorf("delete view: %w", err)
	}
	if err := s.views.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete view: %w", err)
	}

	col, err := s.collections.Get(ctx, current.CollectionID)
	if err == nil && col.ID != "" {
		if col.Metadata.ViewCount > 0 {
			col.Metadata.ViewCount--
		}
		col.UpdatedAt = time.Now().UTC()
		if err := s.collections.Save(ctx, col); err != nil {
			return fmt.Errorf("delete view counters: %w", err)
		}
	}

	metrics.MutationsTotal.WithLabelValues("view_delete").Inc()
	s.emitter.Emit(ctx, events.New(events.ViewDeleted, "collection", map[string]any{
		"collection_id": current.CollectionID,
		"view_id":       id,
	}))
	return nil
}

// demoteDefault clears the default flag on every other view.
func (s *Service) demoteDefault(ctx context.Context, existing []view.View, keepID string) error {
	for _, other := range existing {
		if other.ID == keepID || !other.IsDefault {
			continue
		}
		other.IsDefault = false
		if err := s.views.Save(ctx, other); err != nil {
			return err
		}
	}
	return nil
}
