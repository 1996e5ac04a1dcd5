// Package rows implements select_rows: the filtered, searched, sorted,
// paginated row page over one dataset.
package rows

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loupe-data/loupe/internal/domain"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/dataset/schema"
	"github.com/loupe-data/loupe/internal/domain/dataset/value"
	"github.com/loupe-data/loupe/internal/domain/query/filter"
	"github.com/loupe-data/loupe/internal/domain/query/request"
	"github.com/loupe-data/loupe/internal/domain/query/result"
	"github.com/loupe-data/loupe/internal/metrics"
)

// DefaultWorkers is the row scan pool size when unset.
const DefaultWorkers = 4

// Service executes select_rows queries.
type Service struct {
	datasets DatasetProvider
	indexes  IndexReader
	concepts ConceptReader
	embedder domain.Embedder
	workers  int
	logger   *zap.Logger
}

// New creates a row query service.
func New(datasets DatasetProvider, indexes IndexReader, conceptStore ConceptReader, embedder domain.Embedder, logger *zap.Logger) *Service {
	return &Service{
		datasets: datasets,
		indexes:  indexes,
		concepts: conceptStore,
		embedder: embedder,
		workers:  DefaultWorkers,
		logger:   logger,
	}
}

// WithWorkers configures the row scan pool size.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// candidate is one row that passed filters, kept materialized for
// ordering and projection.
type candidate struct {
	idx      int
	root     *value.Node
	keywords [][]value.Span
	score    float64
	span     *value.Span
}

// SelectRows runs the full query pipeline: resolve searches, scan and
// filter rows in parallel, order, paginate, and project.
func (s *Service) SelectRows(ctx context.Context, datasetName string, req *request.Rows) (*result.RowPage, error) {
	start := time.Now()

	ds, err := s.datasets.Get(datasetName)
	if err != nil {
		return nil, err
	}
	sch := ds.Schema()

	columns, err := projectedColumns(sch, req.Columns())
	if err != nil {
		return nil, err
	}

	pl, err := s.resolve(ctx, datasetName, sch, req)
	if err != nil {
		return nil, err
	}

	candidates, rowErrors, err := s.scan(ctx, ds, pl)
	if err != nil {
		return nil, err
	}
	total := len(candidates)

	s.order(candidates, pl)
	page := paginate(candidates, req.Offset(), req.Limit())

	outRows := make([]result.Row, 0, len(page))
	for _, c := range page {
		outRows = append(outRows, s.project(c, columns, pl, req.CombineColumns()))
	}

	metrics.QueryDuration.WithLabelValues(datasetName, "select_rows").Observe(time.Since(start).Seconds())
	metrics.QueryRowsScanned.WithLabelValues(datasetName, "select_rows").Add(float64(ds.NumRows()))
	if len(rowErrors) > 0 {
		metrics.QueryRowErrorsTotal.WithLabelValues(datasetName).Add(float64(len(rowErrors)))
	}
	s.logger.Debug("select_rows served",
		zap.String("dataset", datasetName),
		zap.Int("total", total),
		zap.Int("page", len(outRows)),
		zap.Int("row_errors", len(rowErrors)),
		zap.Duration("duration", time.Since(start)))

	return &result.RowPage{
		Rows:         outRows,
		TotalNumRows: total,
		Warnings:     pl.warnings,
		RowErrors:    rowErrors,
	}, nil
}

// projectedColumns validates the requested columns. Nil, and the "*"
// column, expand to all top-level source columns.
func projectedColumns(sch schema.Schema, requested []path.Path) ([]path.Path, error) {
	if len(requested) == 0 {
		return topLevelColumns(sch), nil
	}
	out := make([]path.Path, 0, len(requested))
	for _, c := range requested {
		if len(c) == 1 && c[0].IsWildcard() {
			out = append(out, topLevelColumns(sch)...)
			continue
		}
		if _, ok := sch.Resolve(schema.FieldPath(c)); !ok {
			return nil, fmt.Errorf("column %q: %w", c.String(), domain.ErrUnknownPath)
		}
		out = append(out, c)
	}
	return out, nil
}

func topLevelColumns(sch schema.Schema) []path.Path {
	names := sch.TopLevel()
	out := make([]path.Path, len(names))
	for i, name := range names {
		out[i] = path.New(name)
	}
	return out
}

// scan materializes and filters every row across the worker pool. Each
// worker owns distinct output slots, so the scan needs no locking.
func (s *Service) scan(ctx context.Context, ds rowMaterializer, pl *plan) ([]*candidate, []result.RowError, error) {
	numRows := ds.NumRows()
	slots := make([]*candidate, numRows)
	errSlots := make([]*result.RowError, numRows)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	ctxErr := make(chan error, 1)
	var wg sync.WaitGroup

	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				root, err := ds.MaterializeRow(ctx, i)
				if err != nil {
					errSlots[i] = rowError(i, err)
					continue
				}
				if !filter.EvaluateAll(root, pl.filters) {
					continue
				}
				c := &candidate{idx: i, root: root}
				if !matchKeywords(c, pl.keywords) {
					continue
				}
				slots[i] = c
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < numRows; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				select {
				case ctxErr <- ctx.Err():
				default:
				}
				return
			}
		}
	}()

	wg.Wait()
	select {
	case err := <-ctxErr:
		return nil, nil, err
	default:
	}

	candidates := make([]*candidate, 0, numRows)
	var rowErrors []result.RowError
	for i := 0; i < numRows; i++ {
		if slots[i] != nil {
			candidates = append(candidates, slots[i])
		}
		if errSlots[i] != nil {
			rowErrors = append(rowErrors, *errSlots[i])
		}
	}
	return candidates, rowErrors, nil
}

// rowMaterializer is the slice of a dataset the scan needs.
type rowMaterializer interface {
	NumRows() int
	MaterializeRow(ctx context.Context, i int) (*value.Node, error)
}

func rowError(i int, err error) *result.RowError {
	re := &result.RowError{RowIndex: i, Message: err.Error()}
	var de *value.DecodeError
	if errors.As(err, &de) {
		re.Path = de.Path.String()
	}
	return re
}

// matchKeywords evaluates every inline keyword search; all must match.
// Matching rows keep their spans for the virtual highlight columns.
func matchKeywords(c *candidate, keywords []*keywordOp) bool {
	if len(keywords) == 0 {
		return true
	}
	c.keywords = make([][]value.Span, len(keywords))
	for i, k := range keywords {
		spans, ok := k.spans(c.root)
		if !ok {
			return false
		}
		c.keywords[i] = spans
	}
	return true
}

// order sorts candidates: ranking score descending, else the explicit
// sort, else source order. Ties always fall back to row ordinal.
func (s *Service) order(candidates []*candidate, pl *plan) {
	switch {
	case pl.primary != nil:
		for _, c := range candidates {
			c.score, c.span = pl.primary.score(c.idx)
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].score > candidates[j].score
		})
	case len(pl.sortBy) > 0:
		keys := make(map[*candidate]any, len(candidates))
		for _, c := range candidates {
			keys[c] = sortKey(c.root, pl.sortBy)
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := keys[candidates[i]], keys[candidates[j]]
			if pl.sortDesc {
				return filter.LessValue(b, a)
			}
			return filter.LessValue(a, b)
		})
	}
}

// sortKey extracts the first present value at the sort path.
func sortKey(root *value.Node, p path.Path) any {
	for _, n := range root.All(p) {
		if n.Value != nil {
			return n.Value
		}
	}
	return nil
}

func paginate(candidates []*candidate, offset, limit int) []*candidate {
	if limit == 0 || offset >= len(candidates) {
		return nil
	}
	end := offset + limit
	if end > len(candidates) {
		end = len(candidates)
	}
	return candidates[offset:end]
}

// project shapes one row. Flat mode keys every cell by its serialized
// path; combined mode nests cells along their path segments so derived
// columns sit under their source.
func (s *Service) project(c *candidate, columns []path.Path, pl *plan, combine bool) result.Row {
	row := make(result.Row)

	for _, col := range columns {
		emit(row, col, columnValue(c.root, col), combine)
	}

	for i, k := range pl.keywords {
		spans := make([]any, len(c.keywords[i]))
		for j, sp := range c.keywords[i] {
			spans[j] = map[string]any{"start": sp.Start, "end": sp.End}
		}
		emit(row, k.sourcePath.Child(path.Segment(k.column)), spans, combine)
	}

	if pl.primary != nil {
		emit(row, pl.primary.sourcePath.Child(path.Segment(pl.primary.column)),
			scoreCell(c.score, c.span), combine)
	}
	for _, r := range pl.extras {
		score, span := r.score(c.idx)
		emit(row, r.sourcePath.Child(path.Segment(r.column)), scoreCell(score, span), combine)
	}

	return row
}

// columnValue projects one column of one row. Wildcarded columns yield
// the list of every concrete match.
func columnValue(root *value.Node, col path.Path) any {
	if col.HasWildcard() {
		nodes := root.All(col)
		out := make([]any, len(nodes))
		for i, n := range nodes {
			out[i] = n.Plain()
		}
		return out
	}
	n, ok := root.At(col)
	if !ok {
		return nil
	}
	return n.Plain()
}

// emit places a cell in the output row: flat under the serialized path,
// or nested along the path segments when combining columns.
func emit(row result.Row, p path.Path, val any, combine bool) {
	if !combine {
		row[p.String()] = val
		return
	}
	cur := map[string]any(row)
	for i, seg := range p {
		name := string(seg)
		if i == len(p)-1 {
			cur[name] = val
			return
		}
		next, ok := cur[name].(map[string]any)
		if !ok {
			next = make(map[string]any)
			// A scalar source cell moves under "value" when a derived
			// column nests beside it, mirroring the value tree shape.
			if prev, exists := cur[name]; exists {
				next["value"] = prev
			}
			cur[name] = next
		}
		cur = next
	}
}
