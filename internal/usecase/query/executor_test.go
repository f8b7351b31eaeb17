package query

import (
	"testing"
	"time"

	"github.com/gridbase/gridbase/internal/domain/query"
	"github.com/gridbase/gridbase/internal/domain/record"
	"github.com/gridbase/gridbase/internal/domain/view"
)

func makeRecord(t *testing.T, id string, values map[string]any) record.Record {
	t.Helper()
	return record.Record{ID: id, CollectionID: "col-1", Values: values}
}

func taskRecords(t *testing.T) []record.Record {
	t.Helper()
	return []record.Record{
		makeRecord(t, "r1", map[string]any{"status": "todo", "score": 3.0, "title": "Alpha"}),
		makeRecord(t, "r2", map[string]any{"status": "done", "score": 8.0, "title": "Beta"}),
		makeRecord(t, "r3", map[string]any{"status": "todo", "score": 5.0, "title": "Gamma"}),
		makeRecord(t, "r4", map[string]any{"status": "doing", "score": 5.0, "title": "Delta"}),
	}
}

func ids(records []record.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func sameIDs(a []record.Record, want ...string) bool {
	got := ids(a)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestApplyFilters_AndChain(t *testing.T) {
	records := taskRecords(t)
	out := applyFilters(records, []view.Filter{
		{FieldID: "status", Operator: view.OpEquals, Value: "todo"},
		{FieldID: "score", Operator: view.OpGreaterThan, Value: 4, Conjunction: view.And},
	})
	if !sameIDs(out, "r3") {
		t.Errorf("got %v, want [r3]", ids(out))
	}
}

func TestApplyFilters_OrChain(t *testing.T) {
	records := taskRecords(t)
	out := applyFilters(records, []view.Filter{
		{FieldID: "status", Operator: view.OpEquals, Value: "done"},
		{FieldID: "status", Operator: view.OpEquals, Value: "doing", Conjunction: view.Or},
	})
	if !sameIDs(out, "r2", "r4") {
		t.Errorf("got %v, want [r2 r4]", ids(out))
	}
}

func TestApplyFilters_LeftFold(t *testing.T) {
	// (false OR true) AND false: the chain folds left to right, so the
	// trailing AND must reject every record that fails the last item.
	records := taskRecords(t)
	out := applyFilters(records, []view.Filter{
		{FieldID: "status", Operator: view.OpEquals, Value: "nope"},
		{FieldID: "status", Operator: view.OpEquals, Value: "todo", Conjunction: view.Or},
		{FieldID: "score", Operator: view.OpLessThan, Value: 4, Conjunction: view.And},
	})
	if !sameIDs(out, "r1") {
		t.Errorf("got %v, want [r1]", ids(out))
	}
}

func TestApplyFilters_TextOperators(t *testing.T) {
	records := taskRecords(t)

	out := applyFilters(records, []view.Filter{
		{FieldID: "title", Operator: view.OpContains, Value: "eta"},
	})
	if !sameIDs(out, "r2") {
		t.Errorf("contains: got %v", ids(out))
	}

	out = applyFilters(records, []view.Filter{
		{FieldID: "title", Operator: view.OpStartsWith, Value: "ga"},
	})
	if !sameIDs(out, "r3") {
		t.Errorf("starts_with is case-insensitive: got %v", ids(out))
	}
}

func TestApplyFilters_EmptyOperators(t *testing.T) {
	records := []record.Record{
		makeRecord(t, "r1", map[string]any{"notes": "filled"}),
		makeRecord(t, "r2", map[string]any{}),
		makeRecord(t, "r3", map[string]any{"notes": ""}),
	}
	out := applyFilters(records, []view.Filter{
		{FieldID: "notes", Operator: view.OpIsEmpty},
	})
	if !sameIDs(out, "r2", "r3") {
		t.Errorf("got %v, want [r2 r3]", ids(out))
	}
}

func TestApplyFilters_SelectionOperators(t *testing.T) {
	records := []record.Record{
		makeRecord(t, "r1", map[string]any{"tags": []any{"a", "b"}}),
		makeRecord(t, "r2", map[string]any{"tags": []any{"c"}}),
	}

	out := applyFilters(records, []view.Filter{
		{FieldID: "tags", Operator: view.OpIsAnyOf, Value: []any{"b", "z"}},
	})
	if !sameIDs(out, "r1") {
		t.Errorf("is_any_of: got %v", ids(out))
	}

	out = applyFilters(records, []view.Filter{
		{FieldID: "tags", Operator: view.OpHasAll, Value: []any{"a", "b"}},
	})
	if !sameIDs(out, "r1") {
		t.Errorf("has_all: got %v", ids(out))
	}

	out = applyFilters(records, []view.Filter{
		{FieldID: "tags", Operator: view.OpHasNone, Value: []any{"a"}},
	})
	if !sameIDs(out, "r2") {
		t.Errorf("has_none: got %v", ids(out))
	}
}

func TestApplyFilters_DateOperators(t *testing.T) {
	records := []record.Record{
		makeRecord(t, "r1", map[string]any{"due": "2026-01-10T00:00:00Z"}),
		makeRecord(t, "r2", map[string]any{"due": "2026-02-10T00:00:00Z"}),
	}
	out := applyFilters(records, []view.Filter{
		{FieldID: "due", Operator: view.OpBefore, Value: "2026-02-01T00:00:00Z"},
	})
	if !sameIDs(out, "r1") {
		t.Errorf("before: got %v", ids(out))
	}

	recent := makeRecord(t, "r3", map[string]any{"due": time.Now().Add(-2 * time.Hour)})
	out = applyFilters([]record.Record{recent, records[0]}, []view.Filter{
		{FieldID: "due", Operator: view.OpIsWithin, Value: "7d"},
	})
	if !sameIDs(out, "r3") {
		t.Errorf("is_within: got %v", ids(out))
	}
}

func TestCompareValues(t *testing.T) {
	if compareValues(2, 10) >= 0 {
		t.Error("numeric comparison must not be lexical")
	}
	if compareValues(2, "10") >= 0 {
		t.Error("numeric strings compare numerically")
	}
	if compareValues("apple", "banana") >= 0 {
		t.Error("string comparison")
	}
	if compareValues(false, true) >= 0 {
		t.Error("false sorts before true")
	}
	if compareValues(nil, 0) >= 0 {
		t.Error("nil sorts first")
	}
	if compareValues(3, 3.0) != 0 {
		t.Error("int and float of equal value compare equal")
	}
}

func TestApplySorts_PriorityAndStability(t *testing.T) {
	records := taskRecords(t)
	applySorts(records, []view.Sort{
		{FieldID: "title", Direction: view.Asc, Priority: 1},
		{FieldID: "score", Direction: view.Desc, Priority: 0},
	})
	// score desc first (8, 5, 5, 3); the score tie breaks on title asc.
	if !sameIDs(records, "r2", "r4", "r3", "r1") {
		t.Errorf("got %v", ids(records))
	}
}

func TestApplySorts_StableTies(t *testing.T) {
	records := taskRecords(t)
	applySorts(records, []view.Sort{{FieldID: "missing", Direction: view.Asc}})
	if !sameIDs(records, "r1", "r2", "r3", "r4") {
		t.Errorf("ties must preserve insertion order: got %v", ids(records))
	}
}

func TestBuildGroups(t *testing.T) {
	records := taskRecords(t)
	groups := buildGroups(records, []view.Group{{FieldID: "status"}}, nil)

	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	// Ascending by group value: doing, done, todo.
	if groups[0].Value != "doing" || groups[1].Value != "done" || groups[2].Value != "todo" {
		t.Errorf("group order: %v, %v, %v", groups[0].Value, groups[1].Value, groups[2].Value)
	}
	if groups[2].Count != 2 {
		t.Errorf("todo group count: got %d", groups[2].Count)
	}
	if len(groups[2].Records) != 2 {
		t.Errorf("leaf groups carry their records: got %d", len(groups[2].Records))
	}
}

func TestBuildGroups_Nested(t *testing.T) {
	records := taskRecords(t)
	groups := buildGroups(records,
		[]view.Group{{FieldID: "status"}, {FieldID: "score"}},
		[]query.Aggregation{{FieldID: "score", Function: query.AggSum}})

	todo := groups[2]
	if len(todo.Subgroups) != 2 {
		t.Fatalf("expected 2 score subgroups under todo, got %d", len(todo.Subgroups))
	}
	if todo.Records != nil {
		t.Error("non-leaf groups must not carry records")
	}
	if got := todo.Aggregations["sum_score"]; got != 8.0 {
		t.Errorf("todo sum_score: got %v", got)
	}
}

func TestAggregate(t *testing.T) {
	records := []record.Record{
		makeRecord(t, "r1", map[string]any{"score": 2.0, "tag": "a"}),
		makeRecord(t, "r2", map[string]any{"score": 4.0, "tag": "b"}),
		makeRecord(t, "r3", map[string]any{"score": 6.0, "tag": "a"}),
		makeRecord(t, "r4", map[string]any{"tag": "a"}),
	}

	cases := []struct {
		agg  query.Aggregation
		want any
	}{
		{query.Aggregation{FieldID: "*", Function: query.AggCount}, 4},
		{query.Aggregation{FieldID: "score", Function: query.AggCount}, 3},
		{query.Aggregation{FieldID: "tag", Function: query.AggDistinctCount}, 2},
		{query.Aggregation{FieldID: "tag", Function: query.AggMode}, "a"},
		{query.Aggregation{FieldID: "score", Function: query.AggSum}, 12.0},
		{query.Aggregation{FieldID: "score", Function: query.AggAvg}, 4.0},
		{query.Aggregation{FieldID: "score", Function: query.AggMin}, 2.0},
		{query.Aggregation{FieldID: "score", Function: query.AggMax}, 6.0},
		{query.Aggregation{FieldID: "score", Function: query.AggMedian}, 4.0},
		{query.Aggregation{FieldID: "score", Function: query.AggVariance}, 8.0 / 3.0},
	}
	for _, c := range cases {
		if got := aggregate(records, c.agg); got != c.want {
			t.Errorf("%s(%s) = %v, want %v", c.agg.Function, c.agg.FieldID, got, c.want)
		}
	}

	// Numeric reductions over no numeric values return nil.
	if got := aggregate(records, query.Aggregation{FieldID: "tag", Function: query.AggSum}); got != nil {
		t.Errorf("sum over non-numerics: got %v", got)
	}
}

func TestApplyJoin(t *testing.T) {
	left := []record.Record{
		makeRecord(t, "r1", map[string]any{"owner": "u1", "title": "Alpha"}),
		makeRecord(t, "r2", map[string]any{"owner": "u9", "title": "Beta"}),
	}
	right := []record.Record{
		{ID: "p1", CollectionID: "col-2", Values: map[string]any{"uid": "u1", "name": "Ada"}},
	}
	js := joinSource{
		join: query.Join{
			CollectionID: "col-2", Alias: "owner", Type: query.JoinInner,
			Conditions: []query.JoinCondition{
				{LeftFieldID: "owner", RightFieldID: "uid", Operator: query.JoinEquals},
			},
		},
		records: right,
	}

	out := applyJoin(left, js)
	if !sameIDs(out, "r1") {
		t.Fatalf("inner join: got %v", ids(out))
	}
	if out[0].Values["owner.name"] != "Ada" {
		t.Errorf("joined values must land under alias keys: %v", out[0].Values)
	}
	if out[0].Values["title"] != "Alpha" {
		t.Error("left values must survive the merge")
	}

	js.join.Type = query.JoinLeft
	out = applyJoin(left, js)
	if !sameIDs(out, "r1", "r2") {
		t.Errorf("left join keeps unmatched left rows: got %v", ids(out))
	}
}

func TestPaginate(t *testing.T) {
	records := taskRecords(t)

	out, page, size, hasMore := paginate(records, query.Pagination{})
	if len(out) != 4 || page != 1 || size != 50 || hasMore {
		t.Errorf("defaults: len=%d page=%d size=%d more=%v", len(out), page, size, hasMore)
	}

	out, page, size, hasMore = paginate(records, query.Pagination{Page: 2, PageSize: 3})
	if !sameIDs(out, "r4") || page != 2 || size != 3 || hasMore {
		t.Errorf("page 2: got %v page=%d size=%d more=%v", ids(out), page, size, hasMore)
	}

	offset, limit := 1, 2
	out, _, _, hasMore = paginate(records, query.Pagination{
		Page: 1, PageSize: 50, Offset: &offset, Limit: &limit,
	})
	if !sameIDs(out, "r2", "r3") || !hasMore {
		t.Errorf("offset/limit wins over page: got %v more=%v", ids(out), hasMore)
	}

	offset = 100
	out, _, _, _ = paginate(records, query.Pagination{Offset: &offset})
	if len(out) != 0 {
		t.Errorf("offset past the end: got %v", ids(out))
	}
}

func TestSelectFields(t *testing.T) {
	records := []record.Record{
		makeRecord(t, "r1", map[string]any{
			"title": "Alpha", "score": 3.0, "owner.name": "Ada",
		}),
	}
	out := selectFields(records, []string{"title"})
	if _, ok := out[0].Values["score"]; ok {
		t.Error("unselected field survived projection")
	}
	if out[0].Values["title"] != "Alpha" {
		t.Error("selected field dropped")
	}
	if out[0].Values["owner.name"] != "Ada" {
		t.Error("joined keys are always kept")
	}
	if _, ok := records[0].Values["score"]; !ok {
		t.Error("projection must not mutate the input records")
	}
}
