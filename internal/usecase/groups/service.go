// Package groups implements select_groups: value-to-count bucketing at
// one leaf path, with binning for continuous values.
package groups

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/loupe-data/loupe/internal/domain"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/dataset/schema"
	"github.com/loupe-data/loupe/internal/domain/dataset/value"
	"github.com/loupe-data/loupe/internal/domain/query/bins"
	"github.com/loupe-data/loupe/internal/domain/query/filter"
	"github.com/loupe-data/loupe/internal/domain/query/request"
	"github.com/loupe-data/loupe/internal/domain/query/result"
	"github.com/loupe-data/loupe/internal/metrics"
)

// Defaults for binning and the cardinality safety ceiling.
const (
	DefaultAutoBins        = 10
	DefaultDistinctCeiling = 10_000
)

// Service executes select_groups queries.
type Service struct {
	datasets        DatasetProvider
	stats           StatsProvider
	autoBins        int
	distinctCeiling int
	logger          *zap.Logger
}

// New creates a group query service.
func New(datasets DatasetProvider, statsProvider StatsProvider, logger *zap.Logger) *Service {
	return &Service{
		datasets:        datasets,
		stats:           statsProvider,
		autoBins:        DefaultAutoBins,
		distinctCeiling: DefaultDistinctCeiling,
		logger:          logger,
	}
}

// WithAutoBins configures the automatic bin count for continuous fields.
func (s *Service) WithAutoBins(n int) *Service {
	if n > 0 {
		s.autoBins = n
	}
	return s
}

// WithDistinctCeiling configures the cardinality safety ceiling.
func (s *Service) WithDistinctCeiling(n int) *Service {
	if n > 0 {
		s.distinctCeiling = n
	}
	return s
}

// SelectGroups buckets the values at the leaf path across every row
// passing the filters. A repeated leaf contributes one increment per
// element.
func (s *Service) SelectGroups(ctx context.Context, datasetName string, req *request.Groups) (*result.Groups, error) {
	start := time.Now()

	ds, err := s.datasets.Get(datasetName)
	if err != nil {
		return nil, err
	}
	sch := ds.Schema()

	leafPath := schema.FieldPath(req.LeafPath())
	leaf, ok := sch.Resolve(leafPath)
	if !ok {
		return nil, fmt.Errorf("leaf path %q: %w", req.LeafPath().String(), domain.ErrUnknownPath)
	}
	if !leaf.IsLeaf() {
		return nil, fmt.Errorf("leaf path %q addresses a container: %w", req.LeafPath().String(), domain.ErrInvalidQuery)
	}
	if !leaf.DType.IsGroupable() {
		return nil, fmt.Errorf("dtype %q cannot be grouped: %w", leaf.DType, domain.ErrGroupingNotSupported)
	}
	for _, f := range req.Filters() {
		if _, ok := sch.Resolve(schema.FieldPath(f.Path())); !ok {
			return nil, fmt.Errorf("filter path %q: %w", f.Path().String(), domain.ErrUnknownPath)
		}
	}

	fieldStats, err := s.stats.Stats(ctx, datasetName, ds, leafPath, leaf.DType)
	if err != nil {
		return nil, fmt.Errorf("field stats: %w", err)
	}

	binList := req.Bins()
	binned := len(binList) > 0
	if !binned && leaf.DType.IsContinuous() {
		if fieldStats.Min == nil || fieldStats.Max == nil {
			// Every value at the path is null: there is no range to
			// derive bins from. Echo explicitly empty counts and bins
			// rather than leaving both nil.
			return &result.Groups{Counts: []result.Group{}, Bins: []bins.Bin{}}, nil
		}
		binList = bins.EqualWidth(*fieldStats.Min, *fieldStats.Max, s.autoBins)
		binned = true
	}
	if !binned && fieldStats.ApproxCountDistinct > s.distinctCeiling {
		// A defined result state, not an error: the caller is told the
		// field is too high-cardinality to materialize counts for.
		return &result.Groups{TooManyDistinct: true}, nil
	}

	counts, rowErrors, err := s.accumulate(ctx, ds, req.Filters(), leafPath, binList)
	if err != nil {
		return nil, err
	}

	groupList := orderGroups(counts, req.SortBy(), req.SortOrder(), binList)
	truncated := false
	if limit := req.Limit(); limit > 0 && len(groupList) > limit {
		groupList = groupList[:limit]
		truncated = true
	}

	metrics.QueryDuration.WithLabelValues(datasetName, "select_groups").Observe(time.Since(start).Seconds())
	metrics.QueryRowsScanned.WithLabelValues(datasetName, "select_groups").Add(float64(ds.NumRows()))
	s.logger.Debug("select_groups served",
		zap.String("dataset", datasetName),
		zap.String("path", leafPath.String()),
		zap.Int("groups", len(groupList)),
		zap.Duration("duration", time.Since(start)))

	return &result.Groups{
		Counts:    groupList,
		Bins:      binList,
		Truncated: truncated,
		RowErrors: rowErrors,
	}, nil
}

// groupCount keys discrete groups by value and binned groups by index.
type groupCount struct {
	value any
	count int
}

func (s *Service) accumulate(ctx context.Context, ds datasetReader, filters []filter.Filter, leafPath path.Path, binList []bins.Bin) (map[any]*groupCount, []result.RowError, error) {
	counts := make(map[any]*groupCount)
	var rowErrors []result.RowError

	for i := 0; i < ds.NumRows(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		root, err := ds.MaterializeRow(ctx, i)
		if err != nil {
			rowErrors = append(rowErrors, *rowErrorAt(i, err))
			continue
		}
		if !filter.EvaluateAll(root, filters) {
			continue
		}
		for _, n := range root.All(leafPath) {
			if n.Value == nil {
				continue
			}
			key, ok := groupKey(n.Value, binList)
			if !ok {
				continue
			}
			gc := counts[key]
			if gc == nil {
				gc = &groupCount{value: n.Value}
				counts[key] = gc
			}
			gc.count++
		}
	}
	return counts, rowErrors, nil
}

// groupKey folds one leaf value into its group: the bin index for
// binned fields, the comparable literal otherwise.
func groupKey(v any, binList []bins.Bin) (any, bool) {
	if len(binList) == 0 {
		switch t := v.(type) {
		case int64, float64, string, bool:
			return t, true
		case time.Time:
			return t.UnixNano(), true
		default:
			return nil, false
		}
	}
	f, ok := asFloat(v)
	if !ok {
		return nil, false
	}
	i := bins.Locate(binList, f)
	if i < 0 {
		return nil, false
	}
	return i, true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case time.Time:
		return float64(n.UnixNano()), true
	}
	return 0, false
}

// orderGroups renders and sorts the buckets. Binned groups sort by bin
// position when ordering by value; discrete groups by the literal.
func orderGroups(counts map[any]*groupCount, sortBy request.GroupSortBy, order request.SortOrder, binList []bins.Bin) []result.Group {
	out := make([]result.Group, 0, len(counts))
	for key, gc := range counts {
		g := result.Group{Count: gc.count}
		if len(binList) > 0 {
			idx := key.(int)
			g.Label = binList[idx].Label
			g.Value = idx
		} else {
			g.Label = fmt.Sprint(gc.value)
			g.Value = gc.value
		}
		out = append(out, g)
	}

	less := func(i, j int) bool {
		if sortBy == request.ByCount {
			if out[i].Count != out[j].Count {
				return out[i].Count < out[j].Count
			}
			return filter.LessValue(out[i].Value, out[j].Value)
		}
		if len(binList) > 0 {
			return out[i].Value.(int) < out[j].Value.(int)
		}
		return filter.LessValue(out[i].Value, out[j].Value)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if order == request.Descending {
			return less(j, i)
		}
		return less(i, j)
	})
	return out
}

type datasetReader interface {
	NumRows() int
	MaterializeRow(ctx context.Context, i int) (*value.Node, error)
}

func rowErrorAt(i int, err error) *result.RowError {
	re := &result.RowError{RowIndex: i, Message: err.Error()}
	var de *value.DecodeError
	if errors.As(err, &de) {
		re.Path = de.Path.String()
	}
	return re
}
