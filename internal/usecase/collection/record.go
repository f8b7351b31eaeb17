package collection

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gridbase/gridbase/internal/domain"
	"github.com/gridbase/gridbase/internal/domain/collection"
	"github.com/gridbase/gridbase/internal/domain/field"
	"github.com/gridbase/gridbase/internal/domain/record"
	"github.com/gridbase/gridbase/internal/events"
	"github.com/gridbase/gridbase/internal/metrics"
)

// CreateRecord validates values against the schema and persists a new
// record, applying field defaults for absent values.
func (s *Service) CreateRecord(ctx context.Context, collectionID string, values map[string]any) (record.Record, error) {
	if err := s.check(ctx, PermRecordCreate, collectionID); err != nil {
		return record.Record{}, fmt.Errorf("create record: %w", err)
	}
	col, err := s.mustGetCollection(ctx, collectionID)
	if err != nil {
		return record.Record{}, fmt.Errorf("create record: %w", err)
	}
	if col.Metadata.RecordCount >= s.cfg.MaxRecordsPerCollection {
		return record.Record{}, fmt.Errorf("create record: %d records: %w",
			col.Metadata.RecordCount, domain.ErrQuotaExceeded)
	}

	values = applyDefaults(col, values)
	if err := validateValues(col, values); err != nil {
		return record.Record{}, fmt.Errorf("create record: %w", err)
	}

	rec := record.New(collectionID, values)
	if err := s.records.Save(ctx, rec); err != nil {
		return record.Record{}, fmt.Errorf("create record: %w", err)
	}

	col.Metadata.RecordCount++
	col.Metadata.SizeBytes += approximateSize(rec)
	col.UpdatedAt = time.Now().UTC()
	if err := s.collections.Save(ctx, col); err != nil {
		return record.Record{}, fmt.Errorf("create record counters: %w", err)
	}

	metrics.MutationsTotal.WithLabelValues("record_create").Inc()
	s.invalidate(collectionID)
	s.emitter.Emit(ctx, events.New(events.RecordCreated, "collection", map[string]any{
		"collection_id": collectionID,
		"record_id":     rec.ID,
	}))
	return rec, nil
}

// GetRecord returns a record, or a zero value when it does not exist.
func (s *Service) GetRecord(ctx context.Context, collectionID, id string) (record.Record, error) {
	if err := s.check(ctx, PermRecordRead, collectionID); err != nil {
		return record.Record{}, fmt.Errorf("get record: %w", err)
	}
	rec, err := s.records.Get(ctx, collectionID, id)
	if err != nil {
		return record.Record{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// ListRecords returns a collection's records, excluding soft-deleted
// rows unless asked for.
func (s *Service) ListRecords(ctx context.Context, collectionID string, includeDeleted bool) ([]record.Record, error) {
	if err := s.check(ctx, PermRecordRead, collectionID); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	recs, err := s.records.ListByCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if includeDeleted {
		return recs, nil
	}
	out := make([]record.Record, 0, len(recs))
	for _, r := range recs {
		if !r.Properties.Deleted {
			out = append(out, r)
		}
	}
	return out, nil
}

// UpdateRecord merges new values into a record after validating them
// against the schema.
func (s *Service) UpdateRecord(ctx context.Context, collectionID, id string, values map[string]any) (record.Record, error) {
	if err := s.check(ctx, PermRecordUpdate, collectionID); err != nil {
		return record.Record{}, fmt.Errorf("update record: %w", err)
	}
	col, err := s.mustGetCollection(ctx, collectionID)
	if err != nil {
		return record.Record{}, fmt.Errorf("update record: %w", err)
	}
	rec, err := s.mustGetRecord(ctx, collectionID, id)
	if err != nil {
		return record.Record{}, fmt.Errorf("update record: %w", err)
	}

	merged := rec.Clone()
	for k, v := range values {
		merged.Values[k] = v
	}
	if err := validateValues(col, merged.Values); err != nil {
		return record.Record{}, fmt.Errorf("update record: %w", err)
	}
	merged.UpdatedAt = time.Now().UTC()

	if err := s.records.Save(ctx, merged); err != nil {
		return record.Record{}, fmt.Errorf("update record: %w", err)
	}
	metrics.MutationsTotal.WithLabelValues("record_update").Inc()
	s.invalidate(collectionID)
	s.emitter.Emit(ctx, events.New(events.RecordUpdated, "collection", map[string]any{
		"collection_id": collectionID,
		"record_id":     id,
	}))
	return merged, nil
}

// DeleteRecord removes a record, soft by default, honoring relation
// constraints: restricted edges abort, cascading relations also
// soft-delete their targets, touching edges are dropped.
func (s *Service) DeleteRecord(ctx context.Context, collectionID, id string, hard bool) error {
	if err := s.check(ctx, PermRecordDelete, collectionID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	col, err := s.mustGetCollection(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	rec, err := s.mustGetRecord(ctx, collectionID, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	if s.relations != nil {
		cascade, err := s.relations.OnRecordDelete(ctx, collectionID, id)
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		for _, target := range cascade {
			if target.RecordID == id && target.CollectionID == collectionID {
				continue
			}
			if err := s.DeleteRecord(ctx, target.CollectionID, target.RecordID, hard); err != nil {
				s.logger.Warn("cascade delete failed",
					zap.String("collection_id", target.CollectionID),
					zap.String("record_id", target.RecordID),
					zap.Error(err))
			}
		}
	}

	if hard {
		if err := s.records.Delete(ctx, collectionID, id); err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
	} else {
		rec.Properties.Deleted = true
		rec.UpdatedAt = time.Now().UTC()
		if err := s.records.Save(ctx, rec); err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
	}

	if col.Metadata.RecordCount > 0 {
		col.Metadata.RecordCount--
	}
	col.UpdatedAt = time.Now().UTC()
	if err := s.collections.Save(ctx, col); err != nil {
		return fmt.Errorf("delete record counters: %w", err)
	}

	metrics.MutationsTotal.WithLabelValues("record_delete").Inc()
	s.invalidate(collectionID)
	s.emitter.Emit(ctx, events.New(events.RecordDeleted, "collection", map[string]any{
		"collection_id": collectionID,
		"record_id":     id,
		"hard":          hard,
	}))
	return nil
}

// SetRecordArchived toggles a record's archive flag.
func (s *Service) SetRecordArchived(ctx context.Context, collectionID, id string, archived bool) (record.Record, error) {
	if err := s.check(ctx, PermRecordUpdate, collectionID); err != nil {
		return record.Record{}, fmt.Errorf("archive record: %w", err)
	}
	rec, err := s.mustGetRecord(ctx, collectionID, id)
	if err != nil {
		return record.Record{}, fmt.Errorf("archive record: %w", err)
	}
	rec.Properties.Archived = archived
	rec.UpdatedAt = time.Now().UTC()
	if err := s.records.Save(ctx, rec); err != nil {
		return record.Record{}, fmt.Errorf("archive record: %w", err)
	}
	s.invalidate(collectionID)
	s.emitter.Emit(ctx, events.New(events.RecordUpdated, "collection", map[string]any{
		"collection_id": collectionID,
		"record_id":     id,
		"archived":      archived,
	}))
	return rec, nil
}

// SetRecordTags replaces a record's tag list.
func (s *Service) SetRecordTags(ctx context.Context, collectionID, id string, tags []string) (record.Record, error) {
	if err := s.check(ctx, PermRecordUpdate, collectionID); err != nil {
		return record.Record{}, fmt.Errorf("tag record: %w", err)
	}
	rec, err := s.mustGetRecord(ctx, collectionID, id)
	if err != nil {
		return record.Record{}, fmt.Errorf("tag record: %w", err)
	}
	rec.Properties.Tags = append([]string(nil), tags...)
	rec.UpdatedAt = time.Now().UTC()
	if err := s.records.Save(ctx, rec); err != nil {
		return record.Record{}, fmt.Errorf("tag record: %w", err)
	}
	s.invalidate(collectionID)
	return rec, nil
}

// mustGetCollection fetches a collection and fails on a missing id.
func (s *Service) mustGetCollection(ctx context.Context, id string) (collection.Collection, error) {
	col, err := s.collections.Get(ctx, id)
	if err != nil {
		return collection.Collection{}, err
	}
	if col.ID == "" {
		return collection.Collection{}, fmt.Errorf("collection %s: %w", id, domain.ErrNotFound)
	}
	return col, nil
}

// mustGetRecord fetches a record and fails on a missing id.
func (s *Service) mustGetRecord(ctx context.Context, collectionID, id string) (record.Record, error) {
	rec, err := s.records.Get(ctx, collectionID, id)
	if err != nil {
		return record.Record{}, err
	}
	if rec.ID == "" {
		return record.Record{}, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	return rec, nil
}

// applyDefaults fills absent values with field defaults.
func applyDefaults(col collection.Collection, values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	for _, f := range col.Fields {
		if f.DefaultValue == nil {
			continue
		}
		if _, ok := out[f.ID]; !ok {
			out[f.ID] = f.DefaultValue
		}
	}
	return out
}

// validateValues checks that every value key exists as a field and
// that every field accepts its value (absent values validate as nil,
// so required fields must be present).
func validateValues(col collection.Collection, values map[string]any) error {
	for k := range values {
		if !col.HasField(k) {
			return domain.NewValidationError(k, "value for unknown field")
		}
	}
	for _, f := range col.Fields {
		if f.Type.IsComputed() {
			continue
		}
		if err := field.Validate(f, values[f.ID]); err != nil {
			return err
		}
	}
	return nil
}
