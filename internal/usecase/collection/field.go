package collection

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gridbase/gridbase/internal/domain"
	"github.com/gridbase/gridbase/internal/domain/field"
	"github.com/gridbase/gridbase/internal/domain/view"
	"github.com/gridbase/gridbase/internal/events"
	"github.com/gridbase/gridbase/internal/metrics"
)

// AddField appends a field to a collection's schema.
func (s *Service) AddField(ctx context.Context, collectionID string, f field.Field) (field.Field, error) {
	if err := s.check(ctx, PermCollectionUpdate, collectionID); err != nil {
		return field.Field{}, fmt.Errorf("add field: %w", err)
	}
	col, err := s.mustGetCollection(ctx, collectionID)
	if err != nil {
		return field.Field{}, fmt.Errorf("add field: %w", err)
	}
	if len(col.Fields) >= s.cfg.MaxFieldsPerCollection {
		return field.Field{}, fmt.Errorf("add field: %d fields: %w", len(col.Fields), domain.ErrQuotaExceeded)
	}
	if err := col.AddField(f); err != nil {
		return field.Field{}, fmt.Errorf("add field: %w", err)
	}
	if err := s.collections.Save(ctx, col); err != nil {
		return field.Field{}, fmt.Errorf("add field: %w", err)
	}

	metrics.MutationsTotal.WithLabelValues("field_add").Inc()
	s.invalidate(collectionID)
	s.emitter.Emit(ctx, events.New(events.FieldAdded, "collection", map[string]any{
		"collection_id": collectionID,
		"field_id":      f.ID,
	}))
	return f, nil
}

// UpdateField replaces a field definition. A type change must be a
// declared-compatible conversion.
func (s *Service) UpdateField(ctx context.Context, collectionID string, f field.Field) (field.Field, error) {
	if err := s.check(ctx, PermCollectionUpdate, collectionID); err != nil {
		return field.Field{}, fmt.Errorf("update field: %w", err)
	}
	col, err := s.mustGetCollection(ctx, collectionID)
	if err != nil {
		return field.Field{}, fmt.Errorf("update field: %w", err)
	}
	current, ok := col.FieldByID(f.ID)
	if !ok {
		return field.Field{}, fmt.Errorf("update field %s: %w", f.ID, domain.ErrNotFound)
	}
	if current.Type != f.Type && !field.IsTypeCompatible(current.Type, f.Type) {
		return field.Field{}, fmt.Errorf("update field: %w",
			domain.NewValidationError(f.ID, "cannot convert %s to %s", current.Type, f.Type))
	}
	if err := col.ReplaceField(f); err != nil {
		return field.Field{}, fmt.Errorf("update field: %w", err)
	}
	if err := s.collections.Save(ctx, col); err != nil {
		return field.Field{}, fmt.Errorf("update field: %w", err)
	}

	metrics.MutationsTotal.WithLabelValues("field_update").Inc()
	s.invalidate(collectionID)
	s.emitter.Emit(ctx, events.New(events.FieldUpdated, "collection", map[string]any{
		"collection_id": collectionID,
		"field_id":      f.ID,
	}))
	return f, nil
}

// RemoveField drops a field from the schema, its values from every
// record, and its references from every view.
func (s *Service) RemoveField(ctx context.Context, collectionID, fieldID string) error {
	if err := s.check(ctx, PermCollectionUpdate, collectionID); err != nil {
		return fmt.Errorf("remove field: %w", err)
	}
	col, err := s.mustGetCollection(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("remove field: %w", err)
	}
	if err := col.RemoveField(fieldID); err != nil {
		return fmt.Errorf("remove field: %w", err)
	}
	if err := s.collections.Save(ctx, col); err != nil {
		return fmt.Errorf("remove field: %w", err)
	}

	recs, err := s.records.ListByCollection(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("remove field values: %w", err)
	}
	for _, r := range recs {
		if _, ok := r.Values[fieldID]; !ok {
			continue
		}
		updated := r.Clone()
		delete(updated.Values, fieldID)
		if err := s.records.Save(ctx, updated); err != nil {
			return fmt.Errorf("remove field values: %w", err)
		}
	}

	vws, err := s.views.ListByCollection(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("remove field view references: %w", err)
	}
	for _, v := range vws {
		cleaned, changed := stripFieldFromView(v, fieldID)
		if !changed {
			continue
		}
		if err := s.views.Save(ctx, cleaned); err != nil {
			return fmt.Errorf("remove field view references: %w", err)
		}
	}

	metrics.MutationsTotal.WithLabelValues("field_remove").Inc()
	s.invalidate(collectionID)
	s.emitter.Emit(ctx, events.New(events.FieldRemoved, "collection", map[string]any{
		"collection_id": collectionID,
		"field_id":      fieldID,
	}))
	s.logger.Info("field removed",
		zap.String("collection_id", collectionID), zap.String("field_id", fieldID))
	return nil
}

// stripFieldFromView removes every reference to a field from a view's
// lists, filters, sorts, and groups.
func stripFieldFromView(v view.View, fieldID string) (view.View, bool) {
	changed := false
	dropID := func(ids []string) []string {
		out := ids[:0]
		for _, id := range ids {
			if id == fieldID {
				changed = true
				continue
			}
			out = append(out, id)
		}
		return out
	}
	v.VisibleFields = dropID(v.VisibleFields)
	v.HiddenFields = dropID(v.HiddenFields)
	v.FieldOrder = dropID(v.FieldOrder)

	filters := v.Filters[:0]
	for _, f := range v.Filters {
		if f.FieldID == fieldID {
			changed = true
			continue
		}
		filters = append(filters, f)
	}
	v.Filters = filters

	sorts := v.Sorts[:0]
	for _, srt := range v.Sorts {
		if srt.FieldID == fieldID {
			changed = true
			continue
		}
		sorts = append(sorts, srt)
	}
	v.Sorts = sorts

	groups := v.Groups[:0]
	for _, g := range v.Groups {
		if g.FieldID == fieldID {
			changed = true
			continue
		}
		groups = append(groups, g)
	}
	v.Groups = groups

	return v, changed
}
