// Package collection defines the typed-table aggregate: a named schema
// of fields plus the counters and flags that travel with it.
package collection

import (
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/gridbase/gridbase/internal/domain"
	"github.com/gridbase/gridbase/internal/domain/field"
)

var nameRegex = regexp.MustCompile(`^[^\x00-\x1f]{1,100}$`)

// Config holds per-collection behavior flags.
type Config struct {
	EnableVersioning bool `json:"enable_versioning,omitempty"`
	EnableAudit      bool `json:"enable_audit,omitempty"`
	EnableBackup     bool `json:"enable_backup,omitempty"`
	EnableCache      bool `json:"enable_cache"`
	EnableIndexing   bool `json:"enable_indexing"`
}

// Metadata holds derived counters and access statistics. The collection
// service keeps these in sync with mutations.
type Metadata struct {
	RecordCount    int       `json:"record_count"`
	FieldCount     int       `json:"field_count"`
	ViewCount      int       `json:"view_count"`
	RelationCount  int       `json:"relation_count"`
	SizeBytes      int64     `json:"size_bytes"`
	LastAccessedAt time.Time `json:"last_accessed_at,omitzero"`
	AccessCount    int64     `json:"access_count"`
	SchemaVersion  int       `json:"schema_version"`
}

// Collection is a named, typed table of records.
type Collection struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Icon        string        `json:"icon,omitempty"`
	Fields      []field.Field `json:"fields"`
	Permissions []string      `json:"permissions,omitempty"`
	Config      Config        `json:"config"`
	Metadata    Metadata      `json:"metadata"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CreatedBy   string        `json:"created_by,omitempty"`
	UpdatedBy   string        `json:"updated_by,omitempty"`
}

// New validates and creates a Collection.
func New(name string, fields []field.Field) (Collection, error) {
	if err := ValidateName(name); err != nil {
		return Collection{}, err
	}
	if err := validateFields(fields); err != nil {
		return Collection{}, err
	}
	now := time.Now().UTC()
	return Collection{
		ID:     uuid.NewString(),
		Name:   name,
		Fields: fields,
		Config: Config{EnableCache: true, EnableIndexing: true},
		Metadata: Metadata{
			FieldCount:    len(fields),
			SchemaVersion: 1,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateName checks collection name constraints (1-100 chars, no
// control characters).
func ValidateName(name string) error {
	if name == "" {
		return domain.NewValidationError("", "collection name is required")
	}
	if !nameRegex.MatchString(name) {
		return domain.NewValidationError("", "collection name must be 1-100 printable characters")
	}
	return nil
}

func validateFields(fields []field.Field) error {
	seenID := make(map[string]bool, len(fields))
	seenName := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seenID[f.ID] {
			return domain.NewValidationError(f.ID, "duplicate field id")
		}
		if seenName[f.Name] {
			return domain.NewValidationError(f.ID, "duplicate field name %q", f.Name)
		}
		seenID[f.ID] = true
		seenName[f.Name] = true
		if err := f.ValidateDefinition(); err != nil {
			return err
		}
	}
	return nil
}

// FieldByID looks up a field by id.
func (c Collection) FieldByID(id string) (field.Field, bool) {
	for _, f := range c.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return field.Field{}, false
}

// FieldByName looks up a field by name.
func (c Collection) FieldByName(name string) (field.Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return field.Field{}, false
}

// HasField reports whether a field id exists in the schema.
func (c Collection) HasField(id string) bool {
	_, ok := c.FieldByID(id)
	return ok
}

// AddField appends a field after re-checking schema invariants and bumps
// the schema version.
func (c *Collection) AddField(f field.Field) error {
	if err := validateFields(append(append([]field.Field{}, c.Fields...), f)); err != nil {
		return err
	}
	c.Fields = append(c.Fields, f)
	c.Metadata.FieldCount = len(c.Fields)
	c.Metadata.SchemaVersion++
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ReplaceField swaps a field definition in place and bumps the schema
// version. The field must already exist.
func (c *Collection) ReplaceField(f field.Field) error {
	for i, existing := range c.Fields {
		if existing.ID == f.ID {
			if err := f.ValidateDefinition(); err != nil {
				return err
			}
			c.Fields[i] = f
			c.Metadata.SchemaVersion++
			c.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return domain.NewValidationError(f.ID, "field does not exist")
}

// RemoveField deletes a field from the schema and bumps the schema
// version.
func (c *Collection) RemoveField(fieldID string) error {
	for i, existing := range c.Fields {
		if existing.ID == fieldID {
			c.Fields = append(c.Fields[:i], c.Fields[i+1:]...)
			c.Metadata.FieldCount = len(c.Fields)
			c.Metadata.SchemaVersion++
			c.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return domain.NewValidationError(fieldID, "field does not exist")
}

// Clone returns a deep copy of the collection.
func (c Collection) Clone() Collection {
	out := c
	out.Fields = make([]field.Field, len(c.Fields))
	copy(out.Fields, c.Fields)
	out.Permissions = append([]string(nil), c.Permissions...)
	return out
}
