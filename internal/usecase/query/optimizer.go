package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gridbase/gridbase/internal/domain/collection"
	"github.com/gridbase/gridbase/internal/domain/field"
	"github.com/gridbase/gridbase/internal/domain/query"
	"github.com/gridbase/gridbase/internal/domain/view"
)

// Prediction is a coarse performance class for a query.
type Prediction string

// Performance predictions.
const (
	PredictFast   Prediction = "fast"
	PredictMedium Prediction = "medium"
	PredictSlow   Prediction = "slow"
)

// Bottleneck kinds.
const (
	BottleneckMissingIndex  = "missing_index"
	BottleneckLargeScan     = "large_scan"
	BottleneckComplexFilter = "complex_filter"
	BottleneckExpensiveJoin = "expensive_join"
)

// Bottleneck severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Bottleneck flags one costly aspect of a query with a suggested fix.
type Bottleneck struct {
	Kind       string `json:"kind"`
	Severity   string `json:"severity"`
	Detail     string `json:"detail"`
	Suggestion string `json:"suggestion"`
}

// Analysis is the optimizer's assessment of a query.
type Analysis struct {
	ComplexityScore float64      `json:"complexity_score"`
	Prediction      Prediction   `json:"prediction"`
	Bottlenecks     []Bottleneck `json:"bottlenecks,omitempty"`
}

// IndexKind is a suggested index structure.
type IndexKind string

// Index kinds.
const (
	IndexBTree    IndexKind = "btree"
	IndexHash     IndexKind = "hash"
	IndexFullText IndexKind = "fulltext"
)

// IndexSuggestion proposes an index for a query's hot fields, ranked by
// estimated benefit minus storage cost.
type IndexSuggestion struct {
	FieldIDs    []string  `json:"field_ids"`
	Kind        IndexKind `json:"kind"`
	Benefit     float64   `json:"benefit"`
	StorageCost float64   `json:"storage_cost"`
	Score       float64   `json:"score"`
	Reason      string    `json:"reason"`
}

// Optimize returns a query with filters reordered cheapest-first. The
// reorder is skipped whenever the chain carries an OR conjunction,
// since the flat chain folds left to right and reordering across an OR
// would change its meaning. Pure AND chains are order-independent.
func Optimize(col collection.Collection, q query.Query) query.Query {
	out := q.Clone()
	if len(out.Filters) < 2 {
		return out
	}
	for _, f := range out.Filters[1:] {
		if f.Conjunction == view.Or {
			return out
		}
	}
	sort.SliceStable(out.Filters, func(i, j int) bool {
		return filterCost(col, out.Filters[i]) < filterCost(col, out.Filters[j])
	})
	return out
}

// filterCost ranks a filter by how cheaply and selectively it prunes.
// Indexed equality is cheapest; substring scans over unindexed text are
// the most expensive.
func filterCost(col collection.Collection, f view.Filter) int {
	cost := operatorCost(f.Operator)
	if fld, ok := col.FieldByID(f.FieldID); ok && fld.Indexed {
		cost -= 10
	}
	return cost
}

func operatorCost(op view.FilterOperator) int {
	switch op {
	case view.OpIsEmpty, view.OpIsNotEmpty:
		return 10
	case view.OpEquals, view.OpNotEquals:
		return 20
	case view.OpIsAnyOf, view.OpIsNoneOf:
		return 30
	case view.OpGreaterThan, view.OpGreaterEq, view.OpLessThan, view.OpLessEq,
		view.OpBefore, view.OpAfter, view.OpOnOrBefore, view.OpOnOrAfter, view.OpIsWithin:
		return 40
	case view.OpHasAny, view.OpHasAll, view.OpHasNone:
		return 50
	case view.OpStartsWith, view.OpEndsWith:
		return 60
	default: // contains and other substring scans
		return 70
	}
}

// Analyze scores a query's complexity and flags its bottlenecks. The
// score weighs filters, sorts, groups, aggregations, and joins, with
// unindexed hot fields and the collection's record count pushing the
// prediction toward slow.
func Analyze(col collection.Collection, q query.Query) Analysis {
	score := 0.0
	score += float64(len(q.Filters)) * 1.5
	score += float64(len(q.Sorts)) * 2
	score += float64(len(q.Groups)) * 3
	score += float64(len(q.Aggregations)) * 2
	score += float64(len(q.Joins)) * 10

	var bottlenecks []Bottleneck

	unindexed := unindexedHotFields(col, q)
	if len(unindexed) > 0 {
		score += float64(len(unindexed)) * 2
		severity := SeverityLow
		if col.Metadata.RecordCount > 1000 {
			severity = SeverityMedium
		}
		bottlenecks = append(bottlenecks, Bottleneck{
			Kind:       BottleneckMissingIndex,
			Severity:   severity,
			Detail:     fmt.Sprintf("filtered or sorted fields without an index: %s", strings.Join(unindexed, ", ")),
			Suggestion: "mark the hot fields as indexed or add a suggested index",
		})
	}

	if len(q.Filters) == 0 && col.Metadata.RecordCount > 1000 {
		score += float64(col.Metadata.RecordCount) / 1000
		bottlenecks = append(bottlenecks, Bottleneck{
			Kind:       BottleneckLargeScan,
			Severity:   SeverityMedium,
			Detail:     fmt.Sprintf("unfiltered scan over %d records", col.Metadata.RecordCount),
			Suggestion: "add a filter or tighten pagination to bound the scan",
		})
	}

	if len(q.Filters) > 5 {
		bottlenecks = append(bottlenecks, Bottleneck{
			Kind:       BottleneckComplexFilter,
			Severity:   SeverityLow,
			Detail:     fmt.Sprintf("%d filters in one chain", len(q.Filters)),
			Suggestion: "split the query or precompute a field that captures the combined condition",
		})
	}

	for _, j := range q.Joins {
		severity := SeverityMedium
		if j.Type == query.JoinFull || hasNonEqualityCondition(j) {
			severity = SeverityHigh
		}
		bottlenecks = append(bottlenecks, Bottleneck{
			Kind:       BottleneckExpensiveJoin,
			Severity:   severity,
			Detail:     fmt.Sprintf("%s join against %s", j.Type, j.CollectionID),
			Suggestion: "prefer inner/left joins on equality conditions over indexed fields",
		})
	}

	prediction := PredictFast
	switch {
	case score >= 30:
		prediction = PredictSlow
	case score >= 10:
		prediction = PredictMedium
	}
	return Analysis{ComplexityScore: score, Prediction: prediction, Bottlenecks: bottlenecks}
}

func hasNonEqualityCondition(j query.Join) bool {
	for _, c := range j.Conditions {
		if c.Operator != query.JoinEquals {
			return true
		}
	}
	return false
}

// unindexedHotFields lists the filtered and sorted fields that exist in
// the collection but are not indexed, in first-use order.
func unindexedHotFields(col collection.Collection, q query.Query) []string {
	seen := map[string]bool{}
	var out []string
	note := func(fieldID string) {
		if seen[fieldID] {
			return
		}
		seen[fieldID] = true
		if fld, ok := col.FieldByID(fieldID); ok && !fld.Indexed {
			out = append(out, fieldID)
		}
	}
	for _, f := range q.Filters {
		note(f.FieldID)
	}
	for _, s := range q.Sorts {
		note(s.FieldID)
	}
	return out
}

// SuggestIndexes proposes indexes for a query's hot fields: hash for
// equality-only filters, fulltext for substring filters on text-like
// fields, btree otherwise, plus one multi-field btree candidate when
// several fields are filtered with AND. Suggestions are ranked by
// benefit minus storage cost, best first.
func SuggestIndexes(col collection.Collection, q query.Query) []IndexSuggestion {
	type usage struct {
		fieldID   string
		equality  bool
		substring bool
		rangeOp   bool
		uses      int
	}
	order := []string{}
	usages := map[string]*usage{}
	touch := func(fieldID string) *usage {
		u, ok := usages[fieldID]
		if !ok {
			u = &usage{fieldID: fieldID}
			usages[fieldID] = u
			order = append(order, fieldID)
		}
		u.uses++
		return u
	}

	for _, f := range q.Filters {
		u := touch(f.FieldID)
		switch f.Operator {
		case view.OpEquals, view.OpNotEquals, view.OpIsAnyOf, view.OpIsNoneOf:
			u.equality = true
		case view.OpContains, view.OpNotContains, view.OpStartsWith, view.OpEndsWith:
			u.substring = true
		default:
			u.rangeOp = true
		}
	}
	for _, s := range q.Sorts {
		touch(s.FieldID).rangeOp = true
	}

	var out []IndexSuggestion
	for _, fieldID := range order {
		fld, ok := col.FieldByID(fieldID)
		if !ok || fld.Indexed {
			continue
		}
		u := usages[fieldID]

		kind := IndexBTree
		reason := "range or sort access"
		switch {
		case u.substring && isTextLike(fld.Type):
			kind = IndexFullText
			reason = "substring filtering on a text field"
		case u.equality && !u.rangeOp && !u.substring:
			kind = IndexHash
			reason = "equality-only filtering"
		}

		benefit := float64(u.uses) * 10
		if col.Metadata.RecordCount > 1000 {
			benefit *= 2
		}
		cost := storageCost(kind)
		out = append(out, IndexSuggestion{
			FieldIDs:    []string{fieldID},
			Kind:        kind,
			Benefit:     benefit,
			StorageCost: cost,
			Score:       benefit - cost,
			Reason:      reason,
		})
	}

	if multi := multiFieldCandidate(col, q); multi != nil {
		out = append(out, *multi)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// multiFieldCandidate proposes one composite btree when at least two
// distinct fields are filtered in a pure AND chain.
func multiFieldCandidate(col collection.Collection, q query.Query) *IndexSuggestion {
	if len(q.Filters) < 2 {
		return nil
	}
	seen := map[string]bool{}
	var fields []string
	for i, f := range q.Filters {
		if i > 0 && f.Conjunction == view.Or {
			return nil
		}
		if !seen[f.FieldID] && col.HasField(f.FieldID) {
			seen[f.FieldID] = true
			fields = append(fields, f.FieldID)
		}
	}
	if len(fields) < 2 {
		return nil
	}
	benefit := float64(len(fields)) * 12
	cost := storageCost(IndexBTree) * float64(len(fields))
	return &IndexSuggestion{
		FieldIDs:    fields,
		Kind:        IndexBTree,
		Benefit:     benefit,
		StorageCost: cost,
		Score:       benefit - cost,
		Reason:      "combined AND filter across multiple fields",
	}
}

func storageCost(kind IndexKind) float64 {
	switch kind {
	case IndexHash:
		return 3
	case IndexFullText:
		return 8
	default:
		return 5
	}
}

func isTextLike(t field.Type) bool {
	switch t {
	case field.TypeText, field.TypeRichText, field.TypeEmail, field.TypeURL:
		return true
	default:
		return false
	}
}
