// Package query defines the ephemeral query specification, the fluent
// builder that constructs it, and the result and metadata shapes.
package query

import (
	"time"

	"github.com/gridbase/gridbase/internal/domain/view"
)

// AggregateFunc is a pure reduction over a field.
type AggregateFunc string

// Aggregate functions.
const (
	AggCount         AggregateFunc = "count"
	AggSum           AggregateFunc = "sum"
	AggAvg           AggregateFunc = "avg"
	AggMin           AggregateFunc = "min"
	AggMax           AggregateFunc = "max"
	AggDistinctCount AggregateFunc = "distinct_count"
	AggMedian        AggregateFunc = "median"
	AggMode          AggregateFunc = "mode"
	AggStdDev        AggregateFunc = "stddev"
	AggVariance      AggregateFunc = "variance"
)

// IsValid reports whether fn is a supported aggregate function.
func (fn AggregateFunc) IsValid() bool {
	switch fn {
	case AggCount, AggSum, AggAvg, AggMin, AggMax, AggDistinctCount,
		AggMedian, AggMode, AggStdDev, AggVariance:
		return true
	default:
		return false
	}
}

// Aggregation applies a function to a field across a group or the whole
// result. The result key is Alias, defaulting to "<func>_<field>".
type Aggregation struct {
	FieldID  string        `json:"field_id"`
	Function AggregateFunc `json:"function"`
	Alias    string        `json:"alias,omitempty"`
}

// Key returns the result-map key for this aggregation.
func (a Aggregation) Key() string {
	if a.Alias != "" {
		return a.Alias
	}
	return string(a.Function) + "_" + a.FieldID
}

// JoinType selects the join semantics.
type JoinType string

// Join types.
const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
	JoinRight JoinType = "right"
	JoinFull  JoinType = "full"
)

// JoinOperator compares one left field to one right field.
type JoinOperator string

// Join operators.
const (
	JoinEquals    JoinOperator = "equals"
	JoinNotEquals JoinOperator = "not_equals"
	JoinGreater   JoinOperator = "greater"
	JoinLess      JoinOperator = "less"
	JoinContains  JoinOperator = "contains"
)

// JoinCondition matches a left-side field against a right-side field.
type JoinCondition struct {
	LeftFieldID  string       `json:"left_field_id"`
	RightFieldID string       `json:"right_field_id"`
	Operator     JoinOperator `json:"operator"`
}

// Join pulls another collection's records into the result. Joined
// values land under "<alias>.<field_id>" keys.
type Join struct {
	CollectionID string          `json:"collection_id"`
	Alias        string          `json:"alias"`
	Type         JoinType        `json:"type"`
	Conditions   []JoinCondition `json:"conditions"`
}

// Pagination selects a result window. Explicit Offset/Limit win over
// Page/PageSize when present.
type Pagination struct {
	Page     int  `json:"page,omitempty"`
	PageSize int  `json:"page_size,omitempty"`
	Offset   *int `json:"offset,omitempty"`
	Limit    *int `json:"limit,omitempty"`
}

// Options tunes execution.
type Options struct {
	UseCache       bool          `json:"use_cache"`
	CacheTTL       time.Duration `json:"cache_ttl,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty"`
	IncludeDeleted bool          `json:"include_deleted,omitempty"`
	IncludeTotal   bool          `json:"include_total,omitempty"`
}

// Query is an ephemeral, non-persisted specification of one query
// against a collection. Build one with Builder; treat it as immutable.
type Query struct {
	CollectionID string        `json:"collection_id"`
	Fields       []string      `json:"fields,omitempty"`
	Filters      []view.Filter `json:"filters,omitempty"`
	Sorts        []view.Sort   `json:"sorts,omitempty"`
	Groups       []view.Group  `json:"groups,omitempty"`
	Aggregations []Aggregation `json:"aggregations,omitempty"`
	Joins        []Join        `json:"joins,omitempty"`
	Pagination   Pagination    `json:"pagination"`
	Options      Options       `json:"options"`
}

// Clone returns a deep copy of the query.
func (q Query) Clone() Query {
	out := q
	out.Fields = append([]string(nil), q.Fields...)
	out.Filters = append([]view.Filter(nil), q.Filters...)
	out.Sorts = append([]view.Sort(nil), q.Sorts...)
	out.Groups = append([]view.Group(nil), q.Groups...)
	out.Aggregations = append([]Aggregation(nil), q.Aggregations...)
	out.Joins = make([]Join, len(q.Joins))
	for i, j := range q.Joins {
		j.Conditions = append([]JoinCondition(nil), j.Conditions...)
		out.Joins[i] = j
	}
	if q.Pagination.Offset != nil {
		v := *q.Pagination.Offset
		out.Pagination.Offset = &v
	}
	if q.Pagination.Limit != nil {
		v := *q.Pagination.Limit
		out.Pagination.Limit = &v
	}
	return out
}
