package field

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/gridbase/gridbase/internal/domain"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	urlRegex   = regexp.MustCompile(`^https?://[^\s]+$`)
	phoneRegex = regexp.MustCompile(`^\+?[0-9][0-9 ().\-]{4,24}$`)
)

// Validate checks a value against a field definition. Order: required and
// empty checks first, then type-specific rules, then the custom rule.
// Validation is pure and idempotent: a valid value never fails, and the
// same invalid value always yields the same ValidationError.
func Validate(f Field, value any) error {
	if IsEmptyValue(value) {
		if f.Required {
			return domain.NewValidationError(f.ID, "field %q is required", f.Name)
		}
		return nil
	}

	if err := validateTyped(f, value); err != nil {
		return err
	}

	return validateCustom(f, value)
}

//nolint:gocyclo // exhaustive dispatch over every field type variant
func validateTyped(f Field, value any) error {
	switch f.Type {
	case TypeText, TypeRichText:
		return validateText(f, value)
	case TypeNumber, TypeCurrency, TypeAutoNumber:
		return validateNumber(f, value)
	case TypeRating:
		return validateRating(f, value)
	case TypeProgress:
		return validateProgress(f, value)
	case TypeDate, TypeDateTime, TypeTime, TypeCreatedTime, TypeUpdatedTime:
		return validateDate(f, value)
	case TypeCheckbox:
		if _, ok := value.(bool); !ok {
			return domain.NewValidationError(f.ID, "checkbox value must be a boolean, got %T", value)
		}
		return nil
	case TypeSelect:
		return validateSelect(f, value)
	case TypeMultiSelect:
		return validateMultiSelect(f, value)
	case TypeURL:
		return validatePattern(f, value, urlRegex, "a URL")
	case TypeEmail:
		return validatePattern(f, value, emailRegex, "an email address")
	case TypePhone:
		return validatePattern(f, value, phoneRegex, "a phone number")
	case TypeFile, TypeImage:
		return validateFile(f, value)
	case TypeRelation:
		return validateRelation(f, value)
	case TypeCreatedBy, TypeUpdatedBy:
		if _, ok := value.(string); !ok {
			return domain.NewValidationError(f.ID, "%s value must be a user id string", f.Type)
		}
		return nil
	case TypeRollup, TypeFormula:
		// Computed values are produced by the engine / host formula
		// function; any shape is accepted at the storage boundary.
		return nil
	case TypeJSON:
		return validateJSON(f, value)
	case TypeArray:
		return validateArray(f, value)
	case TypeLocation:
		return validateLocation(f, value)
	default:
		return domain.NewValidationError(f.ID, "unknown field type %q", f.Type)
	}
}

func validateText(f Field, value any) error {
	s, ok := value.(string)
	if !ok {
		return domain.NewValidationError(f.ID, "text value must be a string, got %T", value)
	}
	cfg := f.Config.Text
	if cfg == nil {
		return nil
	}
	if cfg.MinLength > 0 && len([]rune(s)) < cfg.MinLength {
		return domain.NewValidationError(f.ID, "text shorter than %d characters", cfg.MinLength)
	}
	if cfg.MaxLength > 0 && len([]rune(s)) > cfg.MaxLength {
		return domain.NewValidationError(f.ID, "text longer than %d characters", cfg.MaxLength)
	}
	return nil
}

func validateNumber(f Field, value any) error {
	n, ok := AsNumber(value)
	if !ok {
		return domain.NewValidationError(f.ID, "numeric value expected, got %T", value)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return domain.NewValidationError(f.ID, "numeric value must be finite")
	}
	var minB, maxB *float64
	if f.Config.Number != nil {
		minB, maxB = f.Config.Number.Min, f.Config.Number.Max
	}
	if minB != nil && n < *minB {
		return domain.NewValidationError(f.ID, "value %v below minimum %v", n, *minB)
	}
	if maxB != nil && n > *maxB {
		return domain.NewValidationError(f.ID, "value %v above maximum %v", n, *maxB)
	}
	return nil
}

func validateRating(f Field, value any) error {
	n, ok := AsNumber(value)
	if !ok {
		return domain.NewValidationError(f.ID, "rating value must be numeric, got %T", value)
	}
	maxRating := 5
	if f.Config.Rating != nil && f.Config.Rating.Max > 0 {
		maxRating = f.Config.Rating.Max
	}
	if n != math.Trunc(n) || n < 0 || int(n) > maxRating {
		return domain.NewValidationError(f.ID, "rating must be an integer between 0 and %d", maxRating)
	}
	return nil
}

func validateProgress(f Field, value any) error {
	n, ok := AsNumber(value)
	if !ok {
		return domain.NewValidationError(f.ID, "progress value must be numeric, got %T", value)
	}
	maxProgress := 100.0
	if f.Config.Progress != nil && f.Config.Progress.Max > 0 {
		maxProgress = f.Config.Progress.Max
	}
	if n < 0 || n > maxProgress {
		return domain.NewValidationError(f.ID, "progress must be between 0 and %v", maxProgress)
	}
	return nil
}

func validateDate(f Field, value any) error {
	t, ok := AsTime(value)
	if !ok {
		return domain.NewValidationError(f.ID, "date value must be a time or RFC 3339 string, got %T", value)
	}
	cfg := f.Config.Date
	if cfg == nil {
		return nil
	}
	if cfg.Min != nil && t.Before(*cfg.Min) {
		return domain.NewValidationError(f.ID, "date before minimum %s", cfg.Min.Format(time.RFC3339))
	}
	if cfg.Max != nil && t.After(*cfg.Max) {
		return domain.NewValidationError(f.ID, "date after maximum %s", cfg.Max.Format(time.RFC3339))
	}
	return nil
}

func validateSelect(f Field, value any) error {
	s, ok := value.(string)
	if !ok {
		return domain.NewValidationError(f.ID, "select value must be a string, got %T", value)
	}
	cfg := f.Config.Select
	if cfg == nil || cfg.AllowOther {
		return nil
	}
	if !hasOption(cfg.Options, s) {
		return domain.NewValidationError(f.ID, "%q is not an allowed option", s)
	}
	return nil
}

func validateMultiSelect(f Field, value any) error {
	items, ok := AsStringSlice(value)
	if !ok {
		return domain.NewValidationError(f.ID, "multi-select value must be a string list, got %T", value)
	}
	cfg := f.Config.Select
	if cfg == nil || cfg.AllowOther {
		return nil
	}
	for _, s := range items {
		if !hasOption(cfg.Options, s) {
			return domain.NewValidationError(f.ID, "%q is not an allowed option", s)
		}
	}
	return nil
}

func validatePattern(f Field, value any, re *regexp.Regexp, what string) error {
	s, ok := value.(string)
	if !ok {
		return domain.NewValidationError(f.ID, "value must be a string, got %T", value)
	}
	if !re.MatchString(s) {
		return domain.NewValidationError(f.ID, "%q is not %s", s, what)
	}
	return validateText(f, value)
}

func validateFile(f Field, value any) error {
	switch value.(type) {
	case string, map[string]any:
		return nil
	case []any, []string:
		if f.Config.File != nil && !f.Config.File.Multiple {
			return domain.NewValidationError(f.ID, "field accepts a single file reference")
		}
		return nil
	default:
		return domain.NewValidationError(f.ID, "file value must be a reference or list of references, got %T", value)
	}
}

func validateRelation(f Field, value any) error {
	ids, ok := AsStringSlice(value)
	if !ok {
		if _, isStr := value.(string); isStr {
			return nil // single linked record id
		}
		return domain.NewValidationError(f.ID, "relation value must be a record id or id list, got %T", value)
	}
	if f.Config.Relation != nil && !f.Config.Relation.Multiple && len(ids) > 1 {
		return domain.NewValidationError(f.ID, "relation field accepts a single linked record")
	}
	return nil
}

func validateJSON(f Field, value any) error {
	if s, ok := value.(string); ok {
		if !json.Valid([]byte(s)) {
			return domain.NewValidationError(f.ID, "value is not valid JSON")
		}
		return nil
	}
	if _, err := json.Marshal(value); err != nil {
		return domain.NewValidationError(f.ID, "value is not JSON-encodable: %v", err)
	}
	return nil
}

func validateArray(f Field, value any) error {
	items, ok := value.([]any)
	if !ok {
		if ss, sok := AsStringSlice(value); sok {
			items = make([]any, len(ss))
			for i, s := range ss {
				items[i] = s
			}
		} else {
			return domain.NewValidationError(f.ID, "array value expected, got %T", value)
		}
	}
	cfg := f.Config.Array
	if cfg == nil {
		return nil
	}
	if cfg.MaxItems > 0 && len(items) > cfg.MaxItems {
		return domain.NewValidationError(f.ID, "array longer than %d items", cfg.MaxItems)
	}
	elem := Field{ID: f.ID, Name: f.Name, Type: cfg.ElementType, Config: DefaultConfig(cfg.ElementType)}
	for _, item := range items {
		if err := Validate(elem, item); err != nil {
			return err
		}
	}
	return nil
}

func validateLocation(f Field, value any) error {
	m, ok := value.(map[string]any)
	if !ok {
		return domain.NewValidationError(f.ID, "location value must be an object with lat/lng, got %T", value)
	}
	lat, latOK := AsNumber(m["lat"])
	lng, lngOK := AsNumber(m["lng"])
	if !latOK || !lngOK {
		return domain.NewValidationError(f.ID, "location requires numeric lat and lng")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return domain.NewValidationError(f.ID, "location out of range: lat %v, lng %v", lat, lng)
	}
	return nil
}

func validateCustom(f Field, value any) error {
	rule := f.Validation
	if rule == nil {
		return nil
	}
	if rule.Pattern != "" {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return domain.NewValidationError(f.ID, "invalid validation pattern: %v", err)
		}
		if !re.MatchString(Stringify(value)) {
			msg := rule.Message
			if msg == "" {
				msg = fmt.Sprintf("value does not match pattern %s", rule.Pattern)
			}
			return domain.NewValidationError(f.ID, "%s", msg)
		}
	}
	if rule.Predicate != nil {
		if err := rule.Predicate(value); err != nil {
			return domain.NewValidationError(f.ID, "%v", err)
		}
	}
	return nil
}

func hasOption(options []SelectOption, name string) bool {
	for _, o := range options {
		if o.Name == name || o.ID == name {
			return true
		}
	}
	return false
}
