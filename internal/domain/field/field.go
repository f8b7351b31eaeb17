// Package field defines the typed column model: the 28 field type
// variants, their per-type configuration payloads, and the pure
// validation, formatting, and type-conversion rules over them.
package field

import (
	"time"

	"github.com/google/uuid"

	"github.com/gridbase/gridbase/internal/domain"
)

// Type is a field's type variant.
type Type string

// Field type constants.
const (
	TypeText        Type = "text"
	TypeRichText    Type = "rich_text"
	TypeNumber      Type = "number"
	TypeCurrency    Type = "currency"
	TypeRating      Type = "rating"
	TypeProgress    Type = "progress"
	TypeDate        Type = "date"
	TypeDateTime    Type = "datetime"
	TypeTime        Type = "time"
	TypeCheckbox    Type = "checkbox"
	TypeSelect      Type = "select"
	TypeMultiSelect Type = "multi_select"
	TypeURL         Type = "url"
	TypeEmail       Type = "email"
	TypePhone       Type = "phone"
	TypeFile        Type = "file"
	TypeImage       Type = "image"
	TypeRelation    Type = "relation"
	TypeRollup      Type = "rollup"
	TypeFormula     Type = "formula"
	TypeCreatedTime Type = "created_time"
	TypeUpdatedTime Type = "updated_time"
	TypeCreatedBy   Type = "created_by"
	TypeUpdatedBy   Type = "updated_by"
	TypeAutoNumber  Type = "auto_number"
	TypeJSON        Type = "json"
	TypeArray       Type = "array"
	TypeLocation    Type = "location"
)

var allTypes = []Type{
	TypeText, TypeRichText, TypeNumber, TypeCurrency, TypeRating, TypeProgress,
	TypeDate, TypeDateTime, TypeTime, TypeCheckbox, TypeSelect, TypeMultiSelect,
	TypeURL, TypeEmail, TypePhone, TypeFile, TypeImage, TypeRelation,
	TypeRollup, TypeFormula, TypeCreatedTime, TypeUpdatedTime, TypeCreatedBy,
	TypeUpdatedBy, TypeAutoNumber, TypeJSON, TypeArray, TypeLocation,
}

// Types returns every supported field type.
func Types() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// IsValid reports whether t is a supported field type.
func (t Type) IsValid() bool {
	for _, known := range allTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsSystem reports whether values of this type are engine-generated
// rather than user-supplied.
func (t Type) IsSystem() bool {
	switch t {
	case TypeCreatedTime, TypeUpdatedTime, TypeCreatedBy, TypeUpdatedBy, TypeAutoNumber:
		return true
	default:
		return false
	}
}

// IsComputed reports whether values of this type are derived from other
// fields rather than stored directly.
func (t Type) IsComputed() bool {
	return t == TypeRollup || t == TypeFormula
}

// ValidationRule is a custom validation applied after the type-specific
// checks: a regex matched against the stringified value, a caller-supplied
// predicate, or both.
type ValidationRule struct {
	Pattern string `json:"pattern,omitempty"`
	Message string `json:"message,omitempty"`
	// Predicate is a caller-supplied check; it is never persisted.
	Predicate func(value any) error `json:"-"`
}

// DisplayStyle is the column's presentation hints.
type DisplayStyle struct {
	Width int    `json:"width,omitempty"`
	Align string `json:"align,omitempty"` // left, center, right
	Color string `json:"color,omitempty"`
}

// Field is a typed column definition within a collection.
type Field struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         Type            `json:"type"`
	Config       Config          `json:"config"`
	Required     bool            `json:"required,omitempty"`
	Unique       bool            `json:"unique,omitempty"`
	Indexed      bool            `json:"indexed,omitempty"`
	Hidden       bool            `json:"hidden,omitempty"`
	DefaultValue any             `json:"default_value,omitempty"`
	Validation   *ValidationRule `json:"validation,omitempty"`
	Display      DisplayStyle    `json:"display,omitempty"`
}

// New validates and creates a Field with the default config for its type.
func New(name string, t Type) (Field, error) {
	if name == "" {
		return Field{}, domain.NewValidationError("", "field name is required")
	}
	if len(name) > 100 {
		return Field{}, domain.NewValidationError("", "field name %q too long (max 100)", name)
	}
	if !t.IsValid() {
		return Field{}, domain.NewValidationError("", "unknown field type %q", t)
	}
	return Field{
		ID:     uuid.NewString(),
		Name:   name,
		Type:   t,
		Config: DefaultConfig(t),
	}, nil
}

// ValidateDefinition checks that the config payload's shape matches the
// declared type variant.
func (f Field) ValidateDefinition() error {
	if !f.Type.IsValid() {
		return domain.NewValidationError(f.ID, "unknown field type %q", f.Type)
	}
	switch f.Type {
	case TypeSelect, TypeMultiSelect:
		if f.Config.Select == nil {
			return domain.NewValidationError(f.ID, "%s field requires a select config", f.Type)
		}
		if len(f.Config.Select.Options) == 0 {
			return domain.NewValidationError(f.ID, "%s field requires at least one option", f.Type)
		}
		seen := make(map[string]bool, len(f.Config.Select.Options))
		for _, o := range f.Config.Select.Options {
			if o.Name == "" {
				return domain.NewValidationError(f.ID, "select option name is required")
			}
			if seen[o.Name] {
				return domain.NewValidationError(f.ID, "duplicate select option %q", o.Name)
			}
			seen[o.Name] = true
		}
	case TypeNumber:
		if f.Config.Number == nil {
			return domain.NewValidationError(f.ID, "number field requires a number config")
		}
	case TypeCurrency:
		if f.Config.Currency == nil {
			return domain.NewValidationError(f.ID, "currency field requires a currency config")
		}
	case TypeRating:
		if f.Config.Rating == nil || f.Config.Rating.Max <= 0 {
			return domain.NewValidationError(f.ID, "rating field requires a positive max")
		}
	case TypeProgress:
		if f.Config.Progress == nil || f.Config.Progress.Max <= 0 {
			return domain.NewValidationError(f.ID, "progress field requires a positive max")
		}
	case TypeRelation:
		if f.Config.Relation == nil || f.Config.Relation.TargetCollectionID == "" {
			return domain.NewValidationError(f.ID, "relation field requires a target collection")
		}
	case TypeRollup:
		if f.Config.Rollup == nil || f.Config.Rollup.RelationFieldID == "" || f.Config.Rollup.TargetFieldID == "" {
			return domain.NewValidationError(f.ID, "rollup field requires relation and target field ids")
		}
	case TypeFormula:
		if f.Config.Formula == nil || f.Config.Formula.Expression == "" {
			return domain.NewValidationError(f.ID, "formula field requires an expression")
		}
	case TypeArray:
		if f.Config.Array == nil || !f.Config.Array.ElementType.IsValid() {
			return domain.NewValidationError(f.ID, "array field requires a valid element type")
		}
	}
	return nil
}

// Config is the type-specific configuration payload. Exactly the member
// matching the field's type is populated; DefaultConfig produces the
// right shape for each type.
type Config struct {
	Text     *TextConfig     `json:"text,omitempty"`
	Number   *NumberConfig   `json:"number,omitempty"`
	Currency *CurrencyConfig `json:"currency,omitempty"`
	Rating   *RatingConfig   `json:"rating,omitempty"`
	Progress *ProgressConfig `json:"progress,omitempty"`
	Date     *DateConfig     `json:"date,omitempty"`
	Select   *SelectConfig   `json:"select,omitempty"`
	File     *FileConfig     `json:"file,omitempty"`
	Relation *RelationConfig `json:"relation,omitempty"`
	Rollup   *RollupConfig   `json:"rollup,omitempty"`
	Formula  *FormulaConfig  `json:"formula,omitempty"`
	Array    *ArrayConfig    `json:"array,omitempty"`
}

// NumberStyle selects the number rendering.
type NumberStyle string

// Number styles.
const (
	NumberPlain      NumberStyle = "plain"
	NumberPercent    NumberStyle = "percent"
	NumberScientific NumberStyle = "scientific"
)

// RatingStyle selects the rating rendering.
type RatingStyle string

// Rating styles.
const (
	RatingStar    RatingStyle = "star"
	RatingHeart   RatingStyle = "heart"
	RatingNumeric RatingStyle = "numeric"
)

// ProgressStyle selects the progress rendering.
type ProgressStyle string

// Progress styles.
const (
	ProgressBar      ProgressStyle = "bar"
	ProgressPercent  ProgressStyle = "percent"
	ProgressFraction ProgressStyle = "fraction"
)

// TextConfig configures text and rich-text fields.
type TextConfig struct {
	MinLength  int  `json:"min_length,omitempty"`
	MaxLength  int  `json:"max_length,omitempty"` // 0 = unbounded
	Multiline  bool `json:"multiline,omitempty"`
	TruncateAt int  `json:"truncate_at,omitempty"` // display truncation, 0 = none
}

// NumberConfig configures number fields.
type NumberConfig struct {
	Min       *float64    `json:"min,omitempty"`
	Max       *float64    `json:"max,omitempty"`
	Precision int         `json:"precision"`
	Style     NumberStyle `json:"style,omitempty"`
}

// CurrencyConfig configures currency fields.
type CurrencyConfig struct {
	Code      string `json:"code"`
	Symbol    string `json:"symbol"`
	Precision int    `json:"precision"`
}

// RatingConfig configures rating fields.
type RatingConfig struct {
	Max   int         `json:"max"`
	Style RatingStyle `json:"style,omitempty"`
}

// ProgressConfig configures progress fields.
type ProgressConfig struct {
	Max   float64       `json:"max"`
	Style ProgressStyle `json:"style,omitempty"`
}

// DateConfig configures date, datetime and time fields.
type DateConfig struct {
	Min    *time.Time `json:"min,omitempty"`
	Max    *time.Time `json:"max,omitempty"`
	Layout string     `json:"layout,omitempty"` // Go time layout for display
}

// SelectOption is one allowed value for select and multi-select fields.
type SelectOption struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// SelectConfig configures select and multi-select fields.
type SelectConfig struct {
	Options    []SelectOption `json:"options"`
	AllowOther bool           `json:"allow_other,omitempty"`
}

// FileConfig configures file and image fields.
type FileConfig struct {
	MaxSizeBytes      int64    `json:"max_size_bytes,omitempty"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
	Multiple          bool     `json:"multiple,omitempty"`
}

// RelationConfig configures relation fields.
type RelationConfig struct {
	TargetCollectionID string `json:"target_collection_id"`
	Multiple           bool   `json:"multiple,omitempty"`
}

// RollupConfig configures rollup fields.
type RollupConfig struct {
	RelationFieldID string `json:"relation_field_id"`
	TargetFieldID   string `json:"target_field_id"`
	Function        string `json:"function"` // count, sum, avg, min, max
}

// FormulaConfig configures formula fields. Expression evaluation is a
// host concern; the engine stores the expression and its dependencies.
type FormulaConfig struct {
	Expression   string   `json:"expression"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// ArrayConfig configures array fields.
type ArrayConfig struct {
	ElementType Type `json:"element_type"`
	MaxItems    int  `json:"max_items,omitempty"`
}

// DefaultConfig returns the configuration shape matching a field type.
func DefaultConfig(t Type) Config {
	switch t {
	case TypeText, TypeURL, TypeEmail, TypePhone:
		return Config{Text: &TextConfig{MaxLength: 0}}
	case TypeRichText:
		return Config{Text: &TextConfig{Multiline: true}}
	case TypeNumber, TypeAutoNumber:
		return Config{Number: &NumberConfig{Precision: 2, Style: NumberPlain}}
	case TypeCurrency:
		return Config{Currency: &CurrencyConfig{Code: "USD", Symbol: "$", Precision: 2}}
	case TypeRating:
		return Config{Rating: &RatingConfig{Max: 5, Style: RatingStar}}
	case TypeProgress:
		return Config{Progress: &ProgressConfig{Max: 100, Style: ProgressBar}}
	case TypeDate, TypeCreatedTime, TypeUpdatedTime:
		return Config{Date: &DateConfig{Layout: "2006-01-02"}}
	case TypeDateTime:
		return Config{Date: &DateConfig{Layout: "2006-01-02 15:04"}}
	case TypeTime:
		return Config{Date: &DateConfig{Layout: "15:04"}}
	case TypeSelect, TypeMultiSelect:
		return Config{Select: &SelectConfig{}}
	case TypeFile, TypeImage:
		return Config{File: &FileConfig{}}
	case TypeRelation:
		return Config{Relation: &RelationConfig{}}
	case TypeRollup:
		return Config{Rollup: &RollupConfig{Function: "count"}}
	case TypeFormula:
		return Config{Formula: &FormulaConfig{}}
	case TypeArray:
		return Config{Array: &ArrayConfig{ElementType: TypeText}}
	default:
		return Config{}
	}
}
