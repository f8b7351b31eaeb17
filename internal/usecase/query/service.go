// Package query turns a query specification into a result set. The
// executor is pure computation over records handed to it; the service
// wraps it with validation, optimization, caching, and timeout checks
// between pipeline stages.
package query

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gridbase/gridbase/internal/config"
	"github.com/gridbase/gridbase/internal/domain"
	"github.com/gridbase/gridbase/internal/domain/collection"
	"github.com/gridbase/gridbase/internal/domain/query"
	"github.com/gridbase/gridbase/internal/domain/record"
	"github.com/gridbase/gridbase/internal/events"
	"github.com/gridbase/gridbase/internal/metrics"
)

// Service executes queries against collections.
type Service struct {
	collections CollectionRepository
	records     RecordRepository
	cache       *Cache
	emitter     events.Emitter
	logger      *zap.Logger
	cfg         config.EngineConfig
}

// NewService creates the query service. A nil emitter discards events.
func NewService(
	collections CollectionRepository,
	records RecordRepository,
	cache *Cache,
	emitter events.Emitter,
	logger *zap.Logger,
	cfg config.EngineConfig,
) *Service {
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Service{
		collections: collections,
		records:     records,
		cache:       cache,
		emitter:     emitter,
		logger:      logger,
		cfg:         cfg,
	}
}

// Execute runs a query and returns its result. Validation failures,
// timeouts, and oversized inputs surface as QueryError; no stage is
// ever partially applied.
func (s *Service) Execute(ctx context.Context, q query.Query) (query.Result, error) {
	start := time.Now()

	col, err := s.collections.Get(ctx, q.CollectionID)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	if col.ID == "" {
		return query.Result{}, fmt.Errorf("execute query: collection %s: %w", q.CollectionID, domain.ErrNotFound)
	}

	joins, err := s.loadJoinSources(ctx, q)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}

	if err := validateQuery(col, q, joins); err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}

	if s.cfg.OptimizationEnabled() {
		q = Optimize(col, q)
	}

	useCache := s.cache != nil && s.cfg.QueryCacheEnabled() && q.Options.UseCache
	var cacheKey string
	if useCache {
		cacheKey, err = s.cache.Key(q)
		if err != nil {
			s.logger.Warn("query cache key failed, executing uncached", zap.Error(err))
			useCache = false
		}
	}
	if useCache {
		if cached, ok := s.cache.Get(cacheKey); ok {
			metrics.QueryCacheTotal.WithLabelValues("hit").Inc()
			s.emitter.Emit(ctx, events.New(events.QueryCacheHit, "query",
				map[string]any{"collection_id": q.CollectionID}))
			cached.Metadata.FromCache = true
			cached.Metadata.ExecutionTime = time.Since(start)
			return cached, nil
		}
		metrics.QueryCacheTotal.WithLabelValues("miss").Inc()
		s.emitter.Emit(ctx, events.New(events.QueryCacheMiss, "query",
			map[string]any{"collection_id": q.CollectionID}))
	}

	res, err := s.run(ctx, col, q, joins, start)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}

	metrics.QueryDuration.WithLabelValues(col.ID).Observe(res.Metadata.ExecutionTime.Seconds())
	if useCache {
		s.cache.Put(q.CollectionID, cacheKey, res, q.Options.CacheTTL)
	}
	s.emitter.Emit(ctx, events.New(events.QueryExecuted, "query", map[string]any{
		"collection_id":  q.CollectionID,
		"records":        len(res.Records),
		"execution_time": res.Metadata.ExecutionTime.String(),
	}))

	if analysis := Analyze(col, q); analysis.Prediction == PredictSlow {
		s.emitter.Emit(ctx, events.New(events.PerformanceWarn, "query", map[string]any{
			"collection_id":    q.CollectionID,
			"complexity_score": analysis.ComplexityScore,
		}))
	}
	return res, nil
}

// run executes the pipeline stage by stage, checking the deadline
// between stages. A tripped deadline aborts before the next stage; the
// stage already applied worked on a copy, so nothing leaks.
func (s *Service) run(
	ctx context.Context,
	col collection.Collection,
	q query.Query,
	joins []joinSource,
	start time.Time,
) (query.Result, error) {
	timeout := q.Options.Timeout
	if timeout <= 0 {
		timeout = s.cfg.QueryTimeout()
	}
	deadline := start.Add(timeout)

	checkpoint := func(stage string) error {
		if err := ctx.Err(); err != nil {
			return domain.NewQueryError(domain.QueryReasonTimeout, "canceled before %s: %v", stage, err)
		}
		if time.Now().After(deadline) {
			return domain.NewQueryError(domain.QueryReasonTimeout,
				"exceeded %s before %s", timeout, stage)
		}
		return nil
	}

	all, err := s.records.ListByCollection(ctx, q.CollectionID)
	if err != nil {
		return query.Result{}, fmt.Errorf("list records: %w", err)
	}
	rows := make([]record.Record, 0, len(all))
	for _, r := range all {
		if r.Properties.Deleted && !q.Options.IncludeDeleted {
			continue
		}
		rows = append(rows, r)
	}

	var plan []query.PlanStage
	note := func(stage, desc string, cost float64) {
		plan = append(plan, query.PlanStage{
			Stage:         stage,
			Description:   desc,
			EstimatedCost: cost,
			Rows:          len(rows),
		})
	}

	if err := checkpoint("filter"); err != nil {
		return query.Result{}, err
	}
	rows = applyFilters(rows, q.Filters)
	note("filter", fmt.Sprintf("%d filters", len(q.Filters)), float64(len(all)))

	if err := checkpoint("sort"); err != nil {
		return query.Result{}, err
	}
	applySorts(rows, q.Sorts)
	note("sort", fmt.Sprintf("%d sort keys", len(q.Sorts)), float64(len(rows)))

	res := query.Result{}

	if len(q.Groups) > 0 {
		if err := checkpoint("group"); err != nil {
			return query.Result{}, err
		}
		res.Groups = buildGroups(rows, q.Groups, q.Aggregations)
		note("group", fmt.Sprintf("%d levels", len(q.Groups)), float64(len(rows)))
	} else if len(q.Aggregations) > 0 {
		if err := checkpoint("aggregate"); err != nil {
			return query.Result{}, err
		}
		res.Aggregations = computeAggregations(rows, q.Aggregations)
		note("aggregate", fmt.Sprintf("%d functions", len(q.Aggregations)), float64(len(rows)))
	}

	for _, js := range joins {
		if err := checkpoint("join"); err != nil {
			return query.Result{}, err
		}
		rows = applyJoin(rows, js)
		note("join", fmt.Sprintf("%s join %s as %s", js.join.Type, js.join.CollectionID, js.join.Alias),
			float64(len(rows)*len(js.records)))
	}

	if q.Options.IncludeTotal {
		total := len(rows)
		res.Total = &total
	}

	if err := checkpoint("paginate"); err != nil {
		return query.Result{}, err
	}
	rows, page, pageSize, hasMore := paginate(rows, q.Pagination)
	note("paginate", fmt.Sprintf("page %d size %d", page, pageSize), float64(len(rows)))

	rows = selectFields(rows, q.Fields)

	res.Records = rows
	res.Page = page
	res.PageSize = pageSize
	res.HasMore = hasMore
	res.Metadata = query.Metadata{
		ExecutionTime: time.Since(start),
		Plan:          plan,
		IndexesUsed:   indexesUsed(col, q),
	}
	return res, nil
}

// loadJoinSources fetches each joined collection's schema and records.
func (s *Service) loadJoinSources(ctx context.Context, q query.Query) ([]joinSource, error) {
	if len(q.Joins) == 0 {
		return nil, nil
	}
	out := make([]joinSource, 0, len(q.Joins))
	for _, j := range q.Joins {
		if j.CollectionID == "" || j.Alias == "" {
			return nil, domain.NewQueryError(domain.QueryReasonUnknownJoin,
				"join needs a collection id and an alias")
		}
		col, err := s.collections.Get(ctx, j.CollectionID)
		if err != nil {
			return nil, fmt.Errorf("load join collection %s: %w", j.CollectionID, err)
		}
		if col.ID == "" {
			return nil, domain.NewQueryError(domain.QueryReasonUnknownJoin,
				"join collection %s not found", j.CollectionID)
		}
		recs, err := s.records.ListByCollection(ctx, j.CollectionID)
		if err != nil {
			return nil, fmt.Errorf("load join records %s: %w", j.CollectionID, err)
		}
		live := make([]record.Record, 0, len(recs))
		for _, r := range recs {
			if r.Properties.Deleted && !q.Options.IncludeDeleted {
				continue
			}
			live = append(live, r)
		}
		out = append(out, joinSource{join: j, col: col, records: live})
	}
	return out, nil
}

// indexesUsed lists the indexed fields the query filtered or sorted on.
func indexesUsed(col collection.Collection, q query.Query) []string {
	seen := map[string]bool{}
	var out []string
	note := func(fieldID string) {
		if seen[fieldID] {
			return
		}
		seen[fieldID] = true
		if fld, ok := col.FieldByID(fieldID); ok && fld.Indexed {
			out = append(out, fieldID)
		}
	}
	for _, f := range q.Filters {
		note(f.FieldID)
	}
	for _, srt := range q.Sorts {
		note(srt.FieldID)
	}
	return out
}

// Analyze assesses a query's expected cost without executing it.
func (s *Service) Analyze(ctx context.Context, q query.Query) (Analysis, error) {
	col, err := s.collections.Get(ctx, q.CollectionID)
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze query: %w", err)
	}
	if col.ID == "" {
		return Analysis{}, fmt.Errorf("analyze query: collection %s: %w", q.CollectionID, domain.ErrNotFound)
	}
	return Analyze(col, q), nil
}

// SuggestIndexes proposes indexes for a query's hot fields. Emits an
// index-suggested event when any candidate scores positively.
func (s *Service) SuggestIndexes(ctx context.Context, q query.Query) ([]IndexSuggestion, error) {
	col, err := s.collections.Get(ctx, q.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("suggest indexes: %w", err)
	}
	if col.ID == "" {
		return nil, fmt.Errorf("suggest indexes: collection %s: %w", q.CollectionID, domain.ErrNotFound)
	}
	suggestions := SuggestIndexes(col, q)
	if len(suggestions) > 0 && suggestions[0].Score > 0 {
		s.emitter.Emit(ctx, events.New(events.IndexSuggested, "query", map[string]any{
			"collection_id": q.CollectionID,
			"field_ids":     suggestions[0].FieldIDs,
			"kind":          string(suggestions[0].Kind),
		}))
	}
	return suggestions, nil
}

// InvalidateCollection drops every cached result for a collection.
// Mutating services call this after each successful write.
func (s *Service) InvalidateCollection(collectionID string) {
	if s.cache != nil {
		s.cache.Invalidate(collectionID)
	}
}
