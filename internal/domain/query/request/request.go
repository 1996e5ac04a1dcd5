// Package request holds the validated query requests of the engine.
package request

import (
	"fmt"

	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/query/bins"
	"github.com/loupe-data/loupe/internal/domain/query/filter"
	"github.com/loupe-data/loupe/internal/domain/query/search"
)

// Request parameter limits.
const (
	DefaultLimit = 20
	MaxLimit     = 1000
)

// SortOrder directs a sort.
type SortOrder string

// Sort orders.
const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

// IsValid reports whether the order is known.
func (o SortOrder) IsValid() bool {
	return o == Ascending || o == Descending
}

// Rows is a validated select_rows request.
type Rows struct {
	columns        []path.Path
	filters        []filter.Filter
	searches       []search.Search
	sortBy         path.Path
	sortOrder      SortOrder
	limit          int
	offset         int
	combineColumns bool
}

// NewRows validates and normalizes a select_rows request.
// A nil columns list means "all top-level source columns". limit < 0
// defaults to DefaultLimit; limit == 0 is honored and returns only the
// total count.
func NewRows(
	columns []path.Path,
	filters []filter.Filter,
	searches []search.Search,
	sortBy path.Path,
	sortOrder SortOrder,
	limit, offset int,
	combineColumns bool,
) (Rows, error) {
	if limit < 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		return Rows{}, fmt.Errorf("offset must not be negative")
	}
	if sortOrder == "" {
		sortOrder = Ascending
	}
	if !sortOrder.IsValid() {
		return Rows{}, fmt.Errorf("invalid sort order %q", sortOrder)
	}
	if len(sortBy) == 0 && sortOrder == Descending {
		return Rows{}, fmt.Errorf("sort_order requires sort_by")
	}
	return Rows{
		columns:        columns,
		filters:        filters,
		searches:       searches,
		sortBy:         sortBy,
		sortOrder:      sortOrder,
		limit:          limit,
		offset:         offset,
		combineColumns: combineColumns,
	}, nil
}

// Columns returns the projected paths; nil means all source columns.
func (r *Rows) Columns() []path.Path { return r.columns }

// Filters returns the structural filters.
func (r *Rows) Filters() []filter.Filter { return r.filters }

// Searches returns the search intents.
func (r *Rows) Searches() []search.Search { return r.searches }

// SortBy returns the explicit sort path, if any.
func (r *Rows) SortBy() path.Path { return r.sortBy }

// SortOrder returns the sort direction.
func (r *Rows) SortOrder() SortOrder { return r.sortOrder }

// Limit returns the page size. Zero means "count only".
func (r *Rows) Limit() int { return r.limit }

// Offset returns the page offset.
func (r *Rows) Offset() int { return r.offset }

// CombineColumns reports whether derived columns nest under their
// source field in the output instead of flattening.
func (r *Rows) CombineColumns() bool { return r.combineColumns }

// GroupSortBy selects the group ordering key.
type GroupSortBy string

// Group sort keys.
const (
	ByValue GroupSortBy = "value"
	ByCount GroupSortBy = "count"
)

// Groups is a validated select_groups request.
type Groups struct {
	leafPath  path.Path
	filters   []filter.Filter
	sortBy    GroupSortBy
	sortOrder SortOrder
	limit     int
	bins      []bins.Bin
}

// NewGroups validates a select_groups request. limit 0 means
// unlimited. bins may be nil for discrete or auto-binned fields.
func NewGroups(
	leafPath path.Path,
	filters []filter.Filter,
	sortBy GroupSortBy,
	sortOrder SortOrder,
	limit int,
	binList []bins.Bin,
) (Groups, error) {
	if len(leafPath) == 0 {
		return Groups{}, fmt.Errorf("leaf_path is required")
	}
	if sortBy == "" {
		sortBy = ByCount
	}
	if sortBy != ByValue && sortBy != ByCount {
		return Groups{}, fmt.Errorf("invalid group sort key %q", sortBy)
	}
	if sortOrder == "" {
		if sortBy == ByCount {
			sortOrder = Descending
		} else {
			sortOrder = Ascending
		}
	}
	if !sortOrder.IsValid() {
		return Groups{}, fmt.Errorf("invalid sort order %q", sortOrder)
	}
	if limit < 0 {
		return Groups{}, fmt.Errorf("limit must not be negative")
	}
	return Groups{
		leafPath:  leafPath,
		filters:   filters,
		sortBy:    sortBy,
		sortOrder: sortOrder,
		limit:     limit,
		bins:      binList,
	}, nil
}

// LeafPath returns the grouped path.
func (g *Groups) LeafPath() path.Path { return g.leafPath }

// Filters returns the structural filters.
func (g *Groups) Filters() []filter.Filter { return g.filters }

// SortBy returns the group ordering key.
func (g *Groups) SortBy() GroupSortBy { return g.sortBy }

// SortOrder returns the sort direction.
func (g *Groups) SortOrder() SortOrder { return g.sortOrder }

// Limit returns the maximum group count. Zero means unlimited.
func (g *Groups) Limit() int { return g.limit }

// Bins returns the explicit bins, if any.
func (g *Groups) Bins() []bins.Bin { return g.bins }
