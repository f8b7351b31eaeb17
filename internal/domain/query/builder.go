package query

import "github.com/gridbase/gridbase/internal/domain/view"

// Builder is a fluent constructor for Query values.
//
//	q := query.NewBuilder(colID).
//		Where(statusID, view.OpEquals, "todo").
//		OrderBy(dueID, view.Asc).
//		Paginate(1, 25).
//		Build()
type Builder struct {
	q            Query
	nextPriority int
}

// NewBuilder starts a query against a collection.
func NewBuilder(collectionID string) *Builder {
	return &Builder{q: Query{
		CollectionID: collectionID,
		Options:      Options{UseCache: true},
	}}
}

// Select restricts the returned fields.
func (b *Builder) Select(fieldIDs ...string) *Builder {
	b.q.Fields = append(b.q.Fields, fieldIDs...)
	return b
}

// Where appends a filter joined to the chain with AND.
func (b *Builder) Where(fieldID string, op view.FilterOperator, value any) *Builder {
	b.q.Filters = append(b.q.Filters, view.Filter{
		FieldID: fieldID, Operator: op, Value: value, Conjunction: view.And,
	})
	return b
}

// OrWhere appends a filter joined to the chain with OR.
func (b *Builder) OrWhere(fieldID string, op view.FilterOperator, value any) *Builder {
	b.q.Filters = append(b.q.Filters, view.Filter{
		FieldID: fieldID, Operator: op, Value: value, Conjunction: view.Or,
	})
	return b
}

// OrderBy appends a sort key. Priority follows call order: the first
// OrderBy sorts first.
func (b *Builder) OrderBy(fieldID string, dir view.SortDirection) *Builder {
	b.q.Sorts = append(b.q.Sorts, view.Sort{
		FieldID: fieldID, Direction: dir, Priority: b.nextPriority,
	})
	b.nextPriority++
	return b
}

// GroupBy appends a grouping level.
func (b *Builder) GroupBy(fieldID string, dir view.SortDirection) *Builder {
	b.q.Groups = append(b.q.Groups, view.Group{FieldID: fieldID, Direction: dir})
	return b
}

// Aggregate appends an aggregation.
func (b *Builder) Aggregate(fieldID string, fn AggregateFunc) *Builder {
	b.q.Aggregations = append(b.q.Aggregations, Aggregation{FieldID: fieldID, Function: fn})
	return b
}

// AggregateAs appends an aggregation with an explicit result alias.
func (b *Builder) AggregateAs(fieldID string, fn AggregateFunc, alias string) *Builder {
	b.q.Aggregations = append(b.q.Aggregations, Aggregation{FieldID: fieldID, Function: fn, Alias: alias})
	return b
}

// Join appends a join against another collection.
func (b *Builder) Join(collectionID, alias string, jt JoinType, conditions ...JoinCondition) *Builder {
	b.q.Joins = append(b.q.Joins, Join{
		CollectionID: collectionID, Alias: alias, Type: jt, Conditions: conditions,
	})
	return b
}

// Paginate selects a page window.
func (b *Builder) Paginate(page, pageSize int) *Builder {
	b.q.Pagination.Page = page
	b.q.Pagination.PageSize = pageSize
	return b
}

// Slice sets an explicit offset/limit window, which wins over Paginate.
func (b *Builder) Slice(offset, limit int) *Builder {
	b.q.Pagination.Offset = &offset
	b.q.Pagination.Limit = &limit
	return b
}

// WithOptions replaces the execution options.
func (b *Builder) WithOptions(opts Options) *Builder {
	b.q.Options = opts
	return b
}

// Build returns the immutable query value.
func (b *Builder) Build() Query {
	return b.q.Clone()
}
