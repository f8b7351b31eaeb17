// Package relation defines typed, constrained edge-types between
// collections and their edge instances.
package relation

import (
	"time"

	"github.com/google/uuid"

	"github.com/gridbase/gridbase/internal/domain"
)

// Type is a relation's cardinality.
type Type string

// Relation types.
const (
	OneToOne   Type = "one_to_one"
	OneToMany  Type = "one_to_many"
	ManyToMany Type = "many_to_many"
)

// IsValid reports whether t is a supported relation type.
func (t Type) IsValid() bool {
	return t == OneToOne || t == OneToMany || t == ManyToMany
}

// ConstraintType names a relation constraint.
type ConstraintType string

// Constraint types.
const (
	ConstraintRequired       ConstraintType = "required"
	ConstraintUniqueTarget   ConstraintType = "unique_target"
	ConstraintCascadeDelete  ConstraintType = "cascade_delete"
	ConstraintRestrictDelete ConstraintType = "restrict_delete"
	ConstraintCircularRef    ConstraintType = "circular_reference"
)

// Constraint attaches a rule to a relation. For circular_reference,
// Allowed=true permits self-references and schema cycles that the
// engine otherwise rejects.
type Constraint struct {
	Type    ConstraintType `json:"type"`
	Allowed bool           `json:"allowed,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Config holds per-relation behavior.
type Config struct {
	CascadeDelete  bool   `json:"cascade_delete,omitempty"`
	Bidirectional  bool   `json:"bidirectional,omitempty"`
	DisplayFieldID string `json:"display_field_id,omitempty"`
	SortFieldID    string `json:"sort_field_id,omitempty"`
	MinCount       *int   `json:"min_count,omitempty"`
	MaxCount       *int   `json:"max_count,omitempty"`
	AllowCreate    bool   `json:"allow_create"`
	AllowLink      bool   `json:"allow_link"`
	AllowUnlink    bool   `json:"allow_unlink"`
}

// Relation is a typed, optionally bidirectional edge-type between two
// collections.
type Relation struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Type               Type         `json:"type"`
	SourceCollectionID string       `json:"source_collection_id"`
	TargetCollectionID string       `json:"target_collection_id"`
	SourceFieldID      string       `json:"source_field_id"`
	TargetFieldID      string       `json:"target_field_id,omitempty"`
	Config             Config       `json:"config"`
	Constraints        []Constraint `json:"constraints,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// New validates and creates a Relation. Link and unlink default to
// allowed; count bounds and constraints are optional.
func New(name string, t Type, sourceCollectionID, targetCollectionID, sourceFieldID string) (Relation, error) {
	if name == "" {
		return Relation{}, domain.NewValidationError("", "relation name is required")
	}
	if !t.IsValid() {
		return Relation{}, domain.NewValidationError("", "unknown relation type %q", t)
	}
	if sourceCollectionID == "" || targetCollectionID == "" {
		return Relation{}, domain.NewValidationError("", "relation requires source and target collections")
	}
	if sourceFieldID == "" {
		return Relation{}, domain.NewValidationError("", "relation requires a source field")
	}
	now := time.Now().UTC()
	return Relation{
		ID:                 uuid.NewString(),
		Name:               name,
		Type:               t,
		SourceCollectionID: sourceCollectionID,
		TargetCollectionID: targetCollectionID,
		SourceFieldID:      sourceFieldID,
		Config:             Config{AllowCreate: true, AllowLink: true, AllowUnlink: true},
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// ValidateCounts checks a relation's count bounds for coherence.
func (r Relation) ValidateCounts() error {
	minC, maxC := r.Config.MinCount, r.Config.MaxCount
	if minC != nil && *minC < 0 {
		return domain.NewValidationError("", "min count must be non-negative")
	}
	if maxC != nil && *maxC <= 0 {
		return domain.NewValidationError("", "max count must be positive")
	}
	if minC != nil && maxC != nil && *minC > *maxC {
		return domain.NewValidationError("", "min count exceeds max count")
	}
	return nil
}

// constraint finds a constraint by type.
func (r Relation) constraint(t ConstraintType) (Constraint, bool) {
	for _, c := range r.Constraints {
		if c.Type == t {
			return c, true
		}
	}
	return Constraint{}, false
}

// AllowsSelfReference reports whether a record may link to itself
// through this relation.
func (r Relation) AllowsSelfReference() bool {
	c, ok := r.constraint(ConstraintCircularRef)
	return ok && c.Allowed
}

// ForbidsCycles reports whether a circular_reference constraint forbids
// schema-level cycles through this relation.
func (r Relation) ForbidsCycles() bool {
	c, ok := r.constraint(ConstraintCircularRef)
	return ok && !c.Allowed
}

// RequiresUniqueTarget reports whether each target record may appear in
// at most one edge of this relation.
func (r Relation) RequiresUniqueTarget() bool {
	_, ok := r.constraint(ConstraintUniqueTarget)
	return ok
}

// RestrictsDelete reports whether deleting a participating record is
// rejected while edges exist.
func (r Relation) RestrictsDelete() bool {
	_, ok := r.constraint(ConstraintRestrictDelete)
	return ok
}

// CascadesDelete reports whether deleting a source record removes its
// linked targets. The config flag and the constraint are equivalent.
func (r Relation) CascadesDelete() bool {
	if r.Config.CascadeDelete {
		return true
	}
	_, ok := r.constraint(ConstraintCascadeDelete)
	return ok
}

// RecordProperties annotates one edge instance.
type RecordProperties struct {
	Strength float64  `json:"strength,omitempty"`
	Weight   float64  `json:"weight,omitempty"`
	Labels   []string `json:"labels,omitempty"`
}

// Record is one edge instance of a relation.
type Record struct {
	ID             string           `json:"id"`
	RelationID     string           `json:"relation_id"`
	SourceRecordID string           `json:"source_record_id"`
	TargetRecordID string           `json:"target_record_id"`
	Properties     RecordProperties `json:"properties"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NewRecord creates an edge instance.
func NewRecord(relationID, sourceRecordID, targetRecordID string) (Record, error) {
	if relationID == "" {
		return Record{}, domain.NewValidationError("", "relation id is required")
	}
	if sourceRecordID == "" || targetRecordID == "" {
		return Record{}, domain.NewValidationError("", "edge requires source and target records")
	}
	return Record{
		ID:             uuid.NewString(),
		RelationID:     relationID,
		SourceRecordID: sourceRecordID,
		TargetRecordID: targetRecordID,
		CreatedAt:      time.Now().UTC(),
	}, nil
}
