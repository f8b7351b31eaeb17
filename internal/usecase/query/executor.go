package query

import (
	"cmp"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gridbase/gridbase/internal/domain"
	"github.com/gridbase/gridbase/internal/domain/collection"
	"github.com/gridbase/gridbase/internal/domain/field"
	"github.com/gridbase/gridbase/internal/domain/query"
	"github.com/gridbase/gridbase/internal/domain/record"
	"github.com/gridbase/gridbase/internal/domain/view"
)

// Default pagination when the query specifies no window.
const (
	defaultPage     = 1
	defaultPageSize = 50
)

// joinSource is one joined collection's schema and records, loaded by
// the service before execution.
type joinSource struct {
	join    query.Join
	col     collection.Collection
	records []record.Record
}

// validateQuery rejects a query before execution: unknown fields,
// operators unsupported for a field's type, unknown aggregate functions
// or join fields. A failed validation never reaches the executor.
func validateQuery(col collection.Collection, q query.Query, joins []joinSource) error {
	for _, f := range q.Filters {
		fld, ok := col.FieldByID(f.FieldID)
		if !ok {
			return domain.NewQueryError(domain.QueryReasonUnknownField, "filter field %s", f.FieldID)
		}
		if !view.OperatorSupported(fld.Type, f.Operator) {
			return domain.NewQueryError(domain.QueryReasonBadOperator,
				"operator %q on %s field %s", f.Operator, fld.Type, f.FieldID)
		}
	}
	for _, s := range q.Sorts {
		if !col.HasField(s.FieldID) {
			return domain.NewQueryError(domain.QueryReasonUnknownField, "sort field %s", s.FieldID)
		}
	}
	for _, g := range q.Groups {
		if !col.HasField(g.FieldID) {
			return domain.NewQueryError(domain.QueryReasonUnknownField, "group field %s", g.FieldID)
		}
	}
	for _, a := range q.Aggregations {
		if !a.Function.IsValid() {
			return domain.NewQueryError(domain.QueryReasonBadAggregation, "function %q", a.Function)
		}
		if a.FieldID != "" && a.FieldID != "*" && !col.HasField(a.FieldID) {
			return domain.NewQueryError(domain.QueryReasonUnknownField, "aggregation field %s", a.FieldID)
		}
	}
	for _, js := range joins {
		for _, c := range js.join.Conditions {
			if !col.HasField(c.LeftFieldID) {
				return domain.NewQueryError(domain.QueryReasonUnknownField, "join field %s", c.LeftFieldID)
			}
			if !js.col.HasField(c.RightFieldID) {
				return domain.NewQueryError(domain.QueryReasonUnknownField,
					"join field %s in %s", c.RightFieldID, js.col.ID)
			}
		}
	}
	return nil
}

// applyFilters folds the flat filter chain left to right: each item's
// conjunction combines it with the accumulated result, with AND
// short-circuiting across conjunction groups.
func applyFilters(records []record.Record, filters []view.Filter) []record.Record {
	if len(filters) == 0 {
		return records
	}
	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		if matchesChain(r, filters) {
			out = append(out, r)
		}
	}
	return out
}

func matchesChain(r record.Record, filters []view.Filter) bool {
	acc := matchesFilter(r, filters[0])
	for _, f := range filters[1:] {
		if f.Conjunction == view.Or {
			if acc {
				continue // already satisfied, OR cannot unsatisfy
			}
			acc = matchesFilter(r, f)
			continue
		}
		if !acc {
			return false // AND short-circuit
		}
		acc = matchesFilter(r, f)
	}
	return acc
}

//nolint:gocyclo // one arm per filter operator
func matchesFilter(r record.Record, f view.Filter) bool {
	value := r.Values[f.FieldID]
	switch f.Operator {
	case view.OpIsEmpty:
		return field.IsEmptyValue(value)
	case view.OpIsNotEmpty:
		return !field.IsEmptyValue(value)
	case view.OpEquals:
		return compareValues(value, f.Value) == 0
	case view.OpNotEquals:
		return compareValues(value, f.Value) != 0
	case view.OpGreaterThan:
		return compareValues(value, f.Value) > 0
	case view.OpGreaterEq:
		return compareValues(value, f.Value) >= 0
	case view.OpLessThan:
		return compareValues(value, f.Value) < 0
	case view.OpLessEq:
		return compareValues(value, f.Value) <= 0
	case view.OpContains:
		return containsString(value, f.Value)
	case view.OpNotContains:
		return !containsString(value, f.Value)
	case view.OpStartsWith:
		return strings.HasPrefix(lowerString(value), lowerString(f.Value))
	case view.OpEndsWith:
		return strings.HasSuffix(lowerString(value), lowerString(f.Value))
	case view.OpBefore:
		return timeCompare(value, f.Value) < 0
	case view.OpAfter:
		return timeCompare(value, f.Value) > 0
	case view.OpOnOrBefore:
		return timeCompare(value, f.Value) <= 0
	case view.OpOnOrAfter:
		return timeCompare(value, f.Value) >= 0
	case view.OpIsWithin:
		return withinWindow(value, f.Value)
	case view.OpIsAnyOf:
		return overlap(valueSet(value), valueSet(f.Value))
	case view.OpIsNoneOf:
		return !overlap(valueSet(value), valueSet(f.Value))
	case view.OpHasAny:
		return overlap(valueSet(value), valueSet(f.Value))
	case view.OpHasAll:
		return containsAll(valueSet(value), valueSet(f.Value))
	case view.OpHasNone:
		return !overlap(valueSet(value), valueSet(f.Value))
	default:
		return false
	}
}

// compareValues compares two values, returning -1, 0, or 1. Numerics
// compare numerically, strings lexically, booleans false<true, times
// chronologically; mixed shapes fall back to stringified comparison.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	if na, okA := field.AsNumber(a); okA {
		if nb, okB := field.AsNumber(b); okB {
			return cmp.Compare(na, nb)
		}
	}
	if ba, okA := a.(bool); okA {
		if bb, okB := b.(bool); okB {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			default:
				return 1
			}
		}
	}
	if ta, okA := a.(time.Time); okA {
		if tb, okB := field.AsTime(b); okB {
			return ta.Compare(tb)
		}
	}
	if sa, okA := a.(string); okA {
		if sb, okB := b.(string); okB {
			return cmp.Compare(sa, sb)
		}
	}
	return cmp.Compare(field.Stringify(a), field.Stringify(b))
}

func timeCompare(a, b any) int {
	ta, okA := field.AsTime(a)
	tb, okB := field.AsTime(b)
	if !okA || !okB {
		return compareValues(a, b)
	}
	return ta.Compare(tb)
}

// withinWindow checks a date-relative window like "7d" or "24h",
// measured back from now.
func withinWindow(value, window any) bool {
	t, ok := field.AsTime(value)
	if !ok {
		return false
	}
	expr, ok := window.(string)
	if !ok {
		return false
	}
	d, err := parseWindow(expr)
	if err != nil {
		return false
	}
	now := time.Now()
	return !t.Before(now.Add(-d)) && !t.After(now.Add(d))
}

func parseWindow(expr string) (time.Duration, error) {
	if strings.HasSuffix(expr, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(expr, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(expr)
}

func lowerString(v any) string {
	return strings.ToLower(field.Stringify(v))
}

func containsString(value, filterValue any) bool {
	return strings.Contains(lowerString(value), lowerString(filterValue))
}

// valueSet normalizes a scalar or list value into a set of stringified
// members for the selection and relation operators.
func valueSet(v any) map[string]bool {
	out := map[string]bool{}
	if v == nil {
		return out
	}
	if items, ok := field.AsStringSlice(v); ok {
		for _, s := range items {
			out[s] = true
		}
		return out
	}
	out[field.Stringify(v)] = true
	return out
}

func overlap(a, b map[string]bool) bool {
	for k := range b {
		if a[k] {
			return true
		}
	}
	return false
}

func containsAll(a, b map[string]bool) bool {
	for k := range b {
		if !a[k] {
			return false
		}
	}
	return true
}

// applySorts orders records by the sort keys in ascending priority.
// The sort is stable, so ties preserve record insertion order.
func applySorts(records []record.Record, sorts []view.Sort) {
	if len(sorts) == 0 {
		return
	}
	keys := append([]view.Sort(nil), sorts...)
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].Priority < keys[j].Priority })

	slices.SortStableFunc(records, func(a, b record.Record) int {
		for _, s := range keys {
			c := compareValues(a.Values[s.FieldID], b.Values[s.FieldID])
			if c != 0 {
				if s.Direction == view.Desc {
					return -c
				}
				return c
			}
		}
		return 0
	})
}

// buildGroups partitions records by the first group field, recursing
// into subgroups for the remaining levels. Aggregations run per group.
func buildGroups(records []record.Record, groups []view.Group, aggs []query.Aggregation) []query.GroupResult {
	if len(groups) == 0 {
		return nil
	}
	g := groups[0]

	type bucket struct {
		value   any
		records []record.Record
	}
	order := []string{}
	buckets := map[string]*bucket{}
	for _, r := range records {
		key := field.Stringify(r.Values[g.FieldID])
		b, ok := buckets[key]
		if !ok {
			b = &bucket{value: r.Values[g.FieldID]}
			buckets[key] = b
			order = append(order, key)
		}
		b.records = append(b.records, r)
	}

	sort.SliceStable(order, func(i, j int) bool {
		c := compareValues(buckets[order[i]].value, buckets[order[j]].value)
		if g.Direction == view.Desc {
			return c > 0
		}
		return c < 0
	})

	out := make([]query.GroupResult, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		gr := query.GroupResult{
			FieldID: g.FieldID,
			Value:   b.value,
			Count:   len(b.records),
		}
		if len(aggs) > 0 {
			gr.Aggregations = computeAggregations(b.records, aggs)
		}
		if len(groups) > 1 {
			gr.Subgroups = buildGroups(b.records, groups[1:], aggs)
		} else {
			gr.Records = b.records
		}
		out = append(out, gr)
	}
	return out
}

// computeAggregations reduces each aggregation over the record set.
// count counts records with a non-empty value (every record when the
// field is "" or "*"); the numeric reductions skip non-numeric values.
func computeAggregations(records []record.Record, aggs []query.Aggregation) map[string]any {
	out := make(map[string]any, len(aggs))
	for _, a := range aggs {
		out[a.Key()] = aggregate(records, a)
	}
	return out
}

//nolint:gocyclo // one arm per aggregate function
func aggregate(records []record.Record, a query.Aggregation) any {
	if a.Function == query.AggCount {
		if a.FieldID == "" || a.FieldID == "*" {
			return len(records)
		}
		n := 0
		for _, r := range records {
			if !field.IsEmptyValue(r.Values[a.FieldID]) {
				n++
			}
		}
		return n
	}
	if a.Function == query.AggDistinctCount {
		seen := map[string]bool{}
		for _, r := range records {
			v := r.Values[a.FieldID]
			if !field.IsEmptyValue(v) {
				seen[field.Stringify(v)] = true
			}
		}
		return len(seen)
	}
	if a.Function == query.AggMode {
		counts := map[string]int{}
		for _, r := range records {
			v := r.Values[a.FieldID]
			if !field.IsEmptyValue(v) {
				counts[field.Stringify(v)]++
			}
		}
		best, bestN := "", -1
		for v, n := range counts {
			if n > bestN || (n == bestN && v < best) {
				best, bestN = v, n
			}
		}
		if bestN < 0 {
			return nil
		}
		return best
	}

	nums := make([]float64, 0, len(records))
	for _, r := range records {
		if n, ok := field.AsNumber(r.Values[a.FieldID]); ok {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return nil
	}

	switch a.Function {
	case query.AggSum:
		return sum(nums)
	case query.AggAvg:
		return sum(nums) / float64(len(nums))
	case query.AggMin:
		return slices.Min(nums)
	case query.AggMax:
		return slices.Max(nums)
	case query.AggMedian:
		sorted := append([]float64(nil), nums...)
		slices.Sort(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			return (sorted[mid-1] + sorted[mid]) / 2
		}
		return sorted[mid]
	case query.AggVariance:
		return variance(nums)
	case query.AggStdDev:
		return math.Sqrt(variance(nums))
	default:
		return nil
	}
}

func sum(nums []float64) float64 {
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total
}

// variance is the population variance.
func variance(nums []float64) float64 {
	mean := sum(nums) / float64(len(nums))
	acc := 0.0
	for _, n := range nums {
		d := n - mean
		acc += d * d
	}
	return acc / float64(len(nums))
}

// applyJoin merges one joined collection into the record set. Joined
// values land under "<alias>.<field_id>" keys; right-only rows in
// right/full joins synthesize a record with empty left values.
func applyJoin(records []record.Record, js joinSource) []record.Record {
	matched := make([]bool, len(js.records))
	out := make([]record.Record, 0, len(records))

	for _, left := range records {
		found := false
		for ri, right := range js.records {
			if joinMatches(left, right, js.join.Conditions) {
				out = append(out, mergeJoined(left, right, js.join.Alias))
				matched[ri] = true
				found = true
			}
		}
		if !found && (js.join.Type == query.JoinLeft || js.join.Type == query.JoinFull) {
			out = append(out, left)
		}
	}

	if js.join.Type == query.JoinRight || js.join.Type == query.JoinFull {
		if js.join.Type == query.JoinRight {
			// Right joins keep only matched left rows plus bare rights.
			out = filterMerged(out, js.join.Alias)
		}
		for ri, right := range js.records {
			if !matched[ri] {
				out = append(out, mergeJoined(record.Record{
					ID:           right.ID,
					CollectionID: records0CollectionID(records),
					Values:       map[string]any{},
				}, right, js.join.Alias))
			}
		}
	}
	return out
}

func records0CollectionID(records []record.Record) string {
	if len(records) > 0 {
		return records[0].CollectionID
	}
	return ""
}

// filterMerged keeps only rows that carry joined values for alias.
func filterMerged(records []record.Record, alias string) []record.Record {
	prefix := alias + "."
	out := records[:0]
	for _, r := range records {
		for k := range r.Values {
			if strings.HasPrefix(k, prefix) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func joinMatches(left, right record.Record, conditions []query.JoinCondition) bool {
	for _, c := range conditions {
		lv := left.Values[c.LeftFieldID]
		rv := right.Values[c.RightFieldID]
		switch c.Operator {
		case query.JoinEquals:
			if compareValues(lv, rv) != 0 {
				return false
			}
		case query.JoinNotEquals:
			if compareValues(lv, rv) == 0 {
				return false
			}
		case query.JoinGreater:
			if compareValues(lv, rv) <= 0 {
				return false
			}
		case query.JoinLess:
			if compareValues(lv, rv) >= 0 {
				return false
			}
		case query.JoinContains:
			if !containsString(lv, rv) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func mergeJoined(left, right record.Record, alias string) record.Record {
	merged := left.Clone()
	for k, v := range right.Values {
		merged.Values[alias+"."+k] = v
	}
	return merged
}

// paginate slices the final window. Explicit offset/limit win over
// page/pageSize when present.
func paginate(records []record.Record, p query.Pagination) (out []record.Record, page, pageSize int, hasMore bool) {
	var offset, limit int
	if p.Offset != nil || p.Limit != nil {
		if p.Offset != nil {
			offset = *p.Offset
		}
		limit = len(records) - offset
		if p.Limit != nil {
			limit = *p.Limit
		}
		page, pageSize = 0, limit
	} else {
		page, pageSize = p.Page, p.PageSize
		if page <= 0 {
			page = defaultPage
		}
		if pageSize <= 0 {
			pageSize = defaultPageSize
		}
		offset = (page - 1) * pageSize
		limit = pageSize
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return []record.Record{}, page, pageSize, false
	}
	end := offset + limit
	if limit < 0 || end > len(records) {
		end = len(records)
	}
	return records[offset:end], page, pageSize, end < len(records)
}

// selectFields projects records down to the requested field set.
// Joined "<alias>.<field>" keys are always kept.
func selectFields(records []record.Record, fields []string) []record.Record {
	if len(fields) == 0 {
		return records
	}
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}
	out := make([]record.Record, len(records))
	for i, r := range records {
		projected := r.Clone()
		for k := range projected.Values {
			if !keep[k] && !strings.Contains(k, ".") {
				delete(projected.Values, k)
			}
		}
		out[i] = projected
	}
	return out
}
