package view

import "github.com/gridbase/gridbase/internal/domain/field"

// FilterOperator is a comparison applied by one filter item.
type FilterOperator string

// Filter operators.
const (
	OpEquals      FilterOperator = "equals"
	OpNotEquals   FilterOperator = "not_equals"
	OpContains    FilterOperator = "contains"
	OpNotContains FilterOperator = "not_contains"
	OpStartsWith  FilterOperator = "starts_with"
	OpEndsWith    FilterOperator = "ends_with"
	OpGreaterThan FilterOperator = "gt"
	OpGreaterEq   FilterOperator = "gte"
	OpLessThan    FilterOperator = "lt"
	OpLessEq      FilterOperator = "lte"
	OpIsEmpty     FilterOperator = "is_empty"
	OpIsNotEmpty  FilterOperator = "is_not_empty"

	// Date-relative operators.
	OpBefore     FilterOperator = "before"
	OpAfter      FilterOperator = "after"
	OpOnOrBefore FilterOperator = "on_or_before"
	OpOnOrAfter  FilterOperator = "on_or_after"
	OpIsWithin   FilterOperator = "is_within" // value = duration like "7d", "24h"

	// Selection operators.
	OpIsAnyOf  FilterOperator = "is_any_of"
	OpIsNoneOf FilterOperator = "is_none_of"

	// Relation operators.
	OpHasAny  FilterOperator = "has_any"
	OpHasAll  FilterOperator = "has_all"
	OpHasNone FilterOperator = "has_none"
)

// Conjunction chains a filter item to the previous one. Filters combine
// as a flat chain, not a nested boolean tree.
type Conjunction string

// Conjunctions.
const (
	And Conjunction = "and"
	Or  Conjunction = "or"
)

// Filter is one condition in a view's or query's filter chain.
type Filter struct {
	FieldID     string         `json:"field_id"`
	Operator    FilterOperator `json:"operator"`
	Value       any            `json:"value,omitempty"`
	Conjunction Conjunction    `json:"conjunction,omitempty"` // empty = and
}

// Sort orders records by a field. Lower Priority sorts first; ties in
// the final ordering preserve record insertion order.
type Sort struct {
	FieldID   string        `json:"field_id"`
	Direction SortDirection `json:"direction"`
	Priority  int           `json:"priority"`
}

// SortDirection is asc or desc.
type SortDirection string

// Sort directions.
const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

// Group partitions records by a field. Collapsed is UI state and has no
// query semantics.
type Group struct {
	FieldID   string        `json:"field_id"`
	Direction SortDirection `json:"direction,omitempty"`
	Collapsed bool          `json:"collapsed,omitempty"`
}

var (
	equalityOps  = []FilterOperator{OpEquals, OpNotEquals, OpIsEmpty, OpIsNotEmpty}
	textOps      = []FilterOperator{OpContains, OpNotContains, OpStartsWith, OpEndsWith}
	numericOps   = []FilterOperator{OpGreaterThan, OpGreaterEq, OpLessThan, OpLessEq}
	dateOps      = []FilterOperator{OpBefore, OpAfter, OpOnOrBefore, OpOnOrAfter, OpIsWithin}
	selectionOps = []FilterOperator{OpIsAnyOf, OpIsNoneOf}
	relationOps  = []FilterOperator{OpHasAny, OpHasAll, OpHasNone}
)

// SupportedOperators maps a field type to its legal operator set.
// Equality operators apply to every type; the rest follow the type
// family.
func SupportedOperators(t field.Type) []FilterOperator {
	ops := append([]FilterOperator(nil), equalityOps...)
	switch t {
	case field.TypeText, field.TypeRichText, field.TypeURL, field.TypeEmail,
		field.TypePhone, field.TypeJSON, field.TypeCreatedBy, field.TypeUpdatedBy,
		field.TypeFormula:
		ops = append(ops, textOps...)
	case field.TypeNumber, field.TypeCurrency, field.TypeRating,
		field.TypeProgress, field.TypeAutoNumber, field.TypeRollup:
		ops = append(ops, numericOps...)
	case field.TypeDate, field.TypeDateTime, field.TypeTime,
		field.TypeCreatedTime, field.TypeUpdatedTime:
		ops = append(ops, numericOps...)
		ops = append(ops, dateOps...)
	case field.TypeSelect, field.TypeMultiSelect:
		ops = append(ops, selectionOps...)
	case field.TypeRelation, field.TypeFile, field.TypeImage, field.TypeArray:
		ops = append(ops, relationOps...)
	}
	return ops
}

// OperatorSupported reports whether op is legal for field type t.
func OperatorSupported(t field.Type, op FilterOperator) bool {
	for _, candidate := range SupportedOperators(t) {
		if candidate == op {
			return true
		}
	}
	return false
}
