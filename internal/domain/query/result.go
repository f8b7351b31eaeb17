package query

import (
	"time"

	"github.com/gridbase/gridbase/internal/domain/record"
)

// PlanStage describes one executed pipeline stage.
type PlanStage struct {
	Stage         string  `json:"stage"` // filter, sort, group, aggregate, join, paginate
	Description   string  `json:"description,omitempty"`
	EstimatedCost float64 `json:"estimated_cost"`
	Rows          int     `json:"rows"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	ExecutionTime time.Duration `json:"execution_time"`
	FromCache     bool          `json:"from_cache"`
	Plan          []PlanStage   `json:"plan,omitempty"`
	IndexesUsed   []string      `json:"indexes_used,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// GroupResult is one partition of a grouped result. Nested groups
// recurse through Subgroups.
type GroupResult struct {
	FieldID      string          `json:"field_id"`
	Value        any             `json:"value"`
	Count        int             `json:"count"`
	Records      []record.Record `json:"records,omitempty"`
	Aggregations map[string]any  `json:"aggregations,omitempty"`
	Subgroups    []GroupResult   `json:"subgroups,omitempty"`
}

// Result is the outcome of executing a Query.
type Result struct {
	Records      []record.Record `json:"records"`
	Total        *int            `json:"total,omitempty"`
	Page         int             `json:"page,omitempty"`
	PageSize     int             `json:"page_size,omitempty"`
	HasMore      bool            `json:"has_more"`
	Groups       []GroupResult   `json:"groups,omitempty"`
	Aggregations map[string]any  `json:"aggregations,omitempty"`
	Metadata     Metadata        `json:"metadata"`
}
