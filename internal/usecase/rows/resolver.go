package rows

import (
	"context"
	"fmt"
	"strings"

	"github.com/loupe-data/loupe/internal/domain"
	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/dataset/schema"
	"github.com/loupe-data/loupe/internal/domain/dataset/value"
	"github.com/loupe-data/loupe/internal/domain/query/filter"
	"github.com/loupe-data/loupe/internal/domain/query/request"
	"github.com/loupe-data/loupe/internal/domain/query/result"
	"github.com/loupe-data/loupe/internal/domain/query/search"
	"github.com/loupe-data/loupe/internal/repository/concepts"
	"github.com/loupe-data/loupe/internal/repository/embindex"
)

// keywordOp is an inline substring search: it filters rows and carries
// a virtual span column for highlighting, without a precomputed index.
type keywordOp struct {
	sourcePath path.Path
	query      string
	column     string
}

// spans returns the match spans per concrete source value and whether
// the row matches at all.
func (k *keywordOp) spans(root *value.Node) ([]value.Span, bool) {
	var out []value.Span
	needle := strings.ToLower(k.query)
	for _, n := range root.All(k.sourcePath) {
		text, ok := n.Value.(string)
		if !ok {
			continue
		}
		hay := strings.ToLower(text)
		for off := 0; ; {
			i := strings.Index(hay[off:], needle)
			if i < 0 {
				break
			}
			start := off + i
			out = append(out, value.Span{Start: start, End: start + len(needle)})
			off = start + len(needle)
		}
	}
	return out, len(out) > 0
}

// ranker scores rows against a prebuilt span vector index, either by
// query similarity (semantic) or by a concept model's probability.
type ranker struct {
	sourcePath path.Path
	column     string
	index      *embindex.Index
	queryVec   []float32
	model      *concepts.Model
}

// score returns the row's best span score and the span carrying it.
func (r *ranker) score(row int) (float64, *value.Span) {
	if r.model == nil {
		return r.index.MaxSimilarity(row, r.queryVec)
	}
	best := 0.0
	var bestSpan *value.Span
	for _, sv := range r.index.Spans(row) {
		s := r.model.Score(sv.Vector)
		if bestSpan == nil || s > best {
			best = s
			sp := sv.Span
			bestSpan = &sp
		}
	}
	return best, bestSpan
}

// plan is a resolved select_rows request: validated filters, inline
// keyword searches, and at most one primary ranking search. Additional
// ranking searches contribute projected score columns only.
type plan struct {
	filters  []filter.Filter
	keywords []*keywordOp
	primary  *ranker
	extras   []*ranker
	sortBy   path.Path
	sortDesc bool
	warnings []string
}

func (s *Service) resolve(ctx context.Context, datasetName string, sch schema.Schema, req *request.Rows) (*plan, error) {
	p := &plan{
		filters: append([]filter.Filter(nil), req.Filters()...),
		sortBy:  req.SortBy(),
	}
	if req.SortOrder() == request.Descending {
		p.sortDesc = true
	}

	for _, f := range req.Filters() {
		if _, ok := sch.Resolve(schema.FieldPath(f.Path())); !ok {
			return nil, fmt.Errorf("filter path %q: %w", f.Path().String(), domain.ErrUnknownPath)
		}
	}
	if len(p.sortBy) > 0 {
		if _, ok := sch.Resolve(schema.FieldPath(p.sortBy)); !ok {
			return nil, fmt.Errorf("sort path %q: %w", p.sortBy.String(), domain.ErrUnknownPath)
		}
	}

	for _, sr := range req.Searches() {
		if err := p.addSearch(ctx, s, datasetName, sch, sr); err != nil {
			return nil, err
		}
	}

	// A ranking search defines the page order; an explicit sort in the
	// same request is recorded as overridden, never silently dropped.
	if p.primary != nil && len(p.sortBy) > 0 {
		p.warnings = append(p.warnings, result.SortWarning(p.sortBy))
		p.sortBy = nil
	}
	return p, nil
}

func (p *plan) addSearch(ctx context.Context, s *Service, datasetName string, sch schema.Schema, sr search.Search) error {
	fieldPath := schema.FieldPath(sr.Path())
	f, ok := sch.Resolve(fieldPath)
	if !ok {
		return fmt.Errorf("search path %q: %w", sr.Path().String(), domain.ErrUnknownPath)
	}

	switch sr.Type() {
	case search.Metadata:
		eq, err := filter.NewBinary(sr.Path(), filter.Equals, sr.Value())
		if err != nil {
			return fmt.Errorf("metadata search: %v: %w", err, domain.ErrInvalidQuery)
		}
		p.filters = append(p.filters, eq)
		return nil

	case search.Keyword:
		if f.DType != field.String {
			return fmt.Errorf("keyword search requires a string path, %q is %q: %w",
				fieldPath.String(), f.DType, domain.ErrInvalidQuery)
		}
		p.keywords = append(p.keywords, &keywordOp{
			sourcePath: fieldPath,
			query:      sr.Query(),
			column:     fmt.Sprintf("keyword(%s)", sr.Query()),
		})
		return nil

	case search.Semantic:
		ix, err := s.indexes.Get(datasetName, fieldPath, sr.Embedding())
		if err != nil {
			return err
		}
		if s.embedder == nil {
			return fmt.Errorf("no embedding provider configured: %w", domain.ErrEmbeddingProviderError)
		}
		emb, err := s.embedder.Embed(ctx, sr.Query())
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		p.addRanker(&ranker{
			sourcePath: fieldPath,
			column:     fmt.Sprintf("semantic(%s)", sr.Query()),
			index:      ix,
			queryVec:   emb.Embedding,
		})
		return nil

	case search.Concept:
		ix, err := s.indexes.Get(datasetName, fieldPath, sr.Embedding())
		if err != nil {
			return err
		}
		var model *concepts.Model
		model, err = s.concepts.Get(sr.Namespace(), sr.ConceptName(), sr.Embedding())
		if err != nil {
			return err
		}
		p.addRanker(&ranker{
			sourcePath: fieldPath,
			column:     fmt.Sprintf("concept(%s/%s)", sr.Namespace(), sr.ConceptName()),
			index:      ix,
			model:      model,
		})
		return nil

	default:
		return fmt.Errorf("unknown search type %q: %w", sr.Type(), domain.ErrInvalidQuery)
	}
}

// addRanker keeps the first ranking search as the order-defining one.
func (p *plan) addRanker(r *ranker) {
	if p.primary == nil {
		p.primary = r
		return
	}
	p.extras = append(p.extras, r)
}

// scoreCell renders one projected ranking or keyword cell.
func scoreCell(score float64, span *value.Span) map[string]any {
	cell := map[string]any{"score": score}
	if span != nil {
		cell["span"] = map[string]any{"start": span.Start, "end": span.End}
	}
	return cell
}
