package loupe

import (
	"fmt"

	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/query/bins"
	"github.com/loupe-data/loupe/internal/domain/query/filter"
	"github.com/loupe-data/loupe/internal/domain/query/request"
	"github.com/loupe-data/loupe/internal/domain/query/search"
)

// Op is a filter comparison operator.
type Op string

// Filter operators.
const (
	Equals       Op = "equals"
	NotEqual     Op = "not_equal"
	Greater      Op = "greater"
	GreaterEqual Op = "greater_equal"
	Less         Op = "less"
	LessEqual    Op = "less_equal"
)

type filterSpec struct {
	path  string
	op    filter.Op
	value any
	unary bool
	list  bool
}

func buildFilters(specs []filterSpec) ([]filter.Filter, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make([]filter.Filter, 0, len(specs))
	for _, fs := range specs {
		p, err := path.Parse(fs.path)
		if err != nil {
			return nil, fmt.Errorf("filter path %q: %v: %w", fs.path, err, ErrInvalidQuery)
		}
		var f filter.Filter
		switch {
		case fs.unary:
			f, err = filter.NewUnary(p, fs.op)
		case fs.list:
			f, err = filter.NewList(p, fs.value)
		default:
			f, err = filter.NewBinary(p, fs.op, fs.value)
		}
		if err != nil {
			return nil, fmt.Errorf("filter on %q: %v: %w", fs.path, err, ErrInvalidQuery)
		}
		out = append(out, f)
	}
	return out, nil
}

type searchSpec struct {
	kind      search.Type
	path      string
	query     string
	namespace string
	name      string
	value     any
}

// RowsQuery is a fluent builder for SelectRows requests.
type RowsQuery struct {
	columns  []string
	filters  []filterSpec
	searches []searchSpec
	sortBy   string
	sortDesc bool
	limit    int
	limitSet bool
	offset   int
	combine  bool
}

// NewRowsQuery creates an empty row selection query. Without Columns
// it projects every top-level source column; without Limit it returns
// the default page size.
func NewRowsQuery() *RowsQuery {
	return &RowsQuery{}
}

// Columns restricts the projected output paths.
func (q *RowsQuery) Columns(paths ...string) *RowsQuery {
	q.columns = append(q.columns, paths...)
	return q
}

// Where adds a comparison filter on a path.
func (q *RowsQuery) Where(p string, op Op, value any) *RowsQuery {
	q.filters = append(q.filters, filterSpec{path: p, op: filter.Op(op), value: value})
	return q
}

// WhereExists keeps rows with at least one non-null value at the path.
func (q *RowsQuery) WhereExists(p string) *RowsQuery {
	q.filters = append(q.filters, filterSpec{path: p, op: filter.Exists, unary: true})
	return q
}

// WhereNotExists keeps rows with no value at the path.
func (q *RowsQuery) WhereNotExists(p string) *RowsQuery {
	q.filters = append(q.filters, filterSpec{path: p, op: filter.NotExists, unary: true})
	return q
}

// WhereIn keeps rows whose repeated field at the path contains the
// value as an element.
func (q *RowsQuery) WhereIn(p string, value any) *RowsQuery {
	q.filters = append(q.filters, filterSpec{path: p, op: filter.In, value: value, list: true})
	return q
}

// Keyword adds an inline substring search over a string path. Matching
// rows carry a virtual span column for highlighting.
func (q *RowsQuery) Keyword(p, text string) *RowsQuery {
	q.searches = append(q.searches, searchSpec{kind: search.Keyword, path: p, query: text})
	return q
}

// Semantic adds a similarity search over a prebuilt embedding index.
// The first ranking search defines the page order.
func (q *RowsQuery) Semantic(p, text string) *RowsQuery {
	q.searches = append(q.searches, searchSpec{kind: search.Semantic, path: p, query: text})
	return q
}

// Concept ranks rows by a trained concept model's probability.
func (q *RowsQuery) Concept(p, namespace, name string) *RowsQuery {
	q.searches = append(q.searches, searchSpec{
		kind: search.Concept, path: p, namespace: namespace, name: name,
	})
	return q
}

// Metadata adds an exact-match search, equivalent to an equals filter.
func (q *RowsQuery) Metadata(p string, value any) *RowsQuery {
	q.searches = append(q.searches, searchSpec{kind: search.Metadata, path: p, value: value})
	return q
}

// SortBy orders the page by a path, ascending unless Desc is called.
// A ranking search overrides the sort and records a warning.
func (q *RowsQuery) SortBy(p string) *RowsQuery {
	q.sortBy = p
	return q
}

// Desc flips the sort direction.
func (q *RowsQuery) Desc() *RowsQuery {
	q.sortDesc = true
	return q
}

// Limit sets the page size. Zero returns only the total count.
func (q *RowsQuery) Limit(n int) *RowsQuery {
	q.limit = n
	q.limitSet = true
	return q
}

// Offset skips the first n matching rows.
func (q *RowsQuery) Offset(n int) *RowsQuery {
	q.offset = n
	return q
}

// CombineColumns nests derived columns under their source field in the
// output instead of flattening to serialized paths.
func (q *RowsQuery) CombineColumns() *RowsQuery {
	q.combine = true
	return q
}

func (q *RowsQuery) build(namespace string) (*request.Rows, error) {
	var columns []path.Path
	for _, c := range q.columns {
		p, err := path.Parse(c)
		if err != nil {
			return nil, fmt.Errorf("column %q: %v: %w", c, err, ErrInvalidQuery)
		}
		columns = append(columns, p)
	}

	filters, err := buildFilters(q.filters)
	if err != nil {
		return nil, err
	}

	var searches []search.Search
	for _, ss := range q.searches {
		p, err := path.Parse(ss.path)
		if err != nil {
			return nil, fmt.Errorf("search path %q: %v: %w", ss.path, err, ErrInvalidQuery)
		}
		var s search.Search
		switch ss.kind {
		case search.Keyword:
			s, err = search.NewKeyword(p, ss.query)
		case search.Semantic:
			s, err = search.NewSemantic(p, ss.query, namespace)
		case search.Concept:
			s, err = search.NewConcept(p, ss.namespace, ss.name, namespace)
		default:
			s, err = search.NewMetadata(p, ss.value)
		}
		if err != nil {
			return nil, fmt.Errorf("search on %q: %v: %w", ss.path, err, ErrInvalidQuery)
		}
		searches = append(searches, s)
	}

	var sortBy path.Path
	if q.sortBy != "" {
		sortBy, err = path.Parse(q.sortBy)
		if err != nil {
			return nil, fmt.Errorf("sort path %q: %v: %w", q.sortBy, err, ErrInvalidQuery)
		}
	}
	order := request.Ascending
	if q.sortDesc {
		order = request.Descending
	}

	limit := -1
	if q.limitSet {
		limit = q.limit
	}

	req, err := request.NewRows(columns, filters, searches, sortBy, order, limit, q.offset, q.combine)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidQuery)
	}
	return &req, nil
}

// GroupsQuery is a fluent builder for SelectGroups requests.
type GroupsQuery struct {
	leafPath string
	filters  []filterSpec
	byValue  bool
	order    request.SortOrder
	limit    int
	breaks   []float64
	bins     []Bin
}

// NewGroupsQuery creates a grouping query over one leaf path. Discrete
// fields group by distinct value; float fields bin, automatically
// unless Breakpoints or Bins is given. Groups sort by count descending
// unless overridden.
func NewGroupsQuery(leafPath string) *GroupsQuery {
	return &GroupsQuery{leafPath: leafPath}
}

// Where adds a comparison filter applied before grouping.
func (q *GroupsQuery) Where(p string, op Op, value any) *GroupsQuery {
	q.filters = append(q.filters, filterSpec{path: p, op: filter.Op(op), value: value})
	return q
}

// WhereExists keeps rows with at least one non-null value at the path.
func (q *GroupsQuery) WhereExists(p string) *GroupsQuery {
	q.filters = append(q.filters, filterSpec{path: p, op: filter.Exists, unary: true})
	return q
}

// SortByValue orders groups by their value instead of their count.
func (q *GroupsQuery) SortByValue() *GroupsQuery {
	q.byValue = true
	return q
}

// Asc sorts groups ascending.
func (q *GroupsQuery) Asc() *GroupsQuery {
	q.order = request.Ascending
	return q
}

// Desc sorts groups descending.
func (q *GroupsQuery) Desc() *GroupsQuery {
	q.order = request.Descending
	return q
}

// Limit caps the number of returned groups. Zero means unlimited.
func (q *GroupsQuery) Limit(n int) *GroupsQuery {
	q.limit = n
	return q
}

// Breakpoints bins a numeric field at the given sorted cut points,
// with unbounded outermost bins.
func (q *GroupsQuery) Breakpoints(breaks ...float64) *GroupsQuery {
	q.breaks = breaks
	return q
}

// Bins sets explicit labeled bins for a numeric field. Mutually
// exclusive with Breakpoints.
func (q *GroupsQuery) Bins(explicit ...Bin) *GroupsQuery {
	q.bins = explicit
	return q
}

func (q *GroupsQuery) build() (*request.Groups, error) {
	leaf, err := path.Parse(q.leafPath)
	if err != nil {
		return nil, fmt.Errorf("leaf path %q: %v: %w", q.leafPath, err, ErrInvalidQuery)
	}

	filters, err := buildFilters(q.filters)
	if err != nil {
		return nil, err
	}

	if len(q.breaks) > 0 && len(q.bins) > 0 {
		return nil, fmt.Errorf("breakpoints and bins are mutually exclusive: %w", ErrInvalidQuery)
	}
	var binList []bins.Bin
	switch {
	case len(q.breaks) > 0:
		binList, err = bins.FromBreakpoints(q.breaks)
	case len(q.bins) > 0:
		explicit := make([]bins.Bin, len(q.bins))
		for i, b := range q.bins {
			explicit[i] = bins.Bin{Label: b.Label, Start: b.Start, End: b.End}
		}
		binList, err = bins.New(explicit)
	}
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidQuery)
	}

	sortBy := request.ByCount
	if q.byValue {
		sortBy = request.ByValue
	}

	req, err := request.NewGroups(leaf, filters, sortBy, q.order, q.limit, binList)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidQuery)
	}
	return &req, nil
}
