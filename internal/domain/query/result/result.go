// Package result holds the pages returned by the query engine.
package result

import (
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/query/bins"
)

// Row is one projected output row. In flat mode keys are serialized
// paths; in combined mode derived columns nest under their source.
type Row map[string]any

// RowError isolates a record whose shape disagreed with the schema.
// The row is skipped; the page is still served.
type RowError struct {
	RowIndex int    `json:"row_index"`
	Path     string `json:"path"`
	Message  string `json:"message"`
}

// RowPage is the response of select_rows.
type RowPage struct {
	Rows []Row
	// TotalNumRows counts every row passing filters and keyword
	// searches, independent of limit/offset and of ranking order.
	TotalNumRows int
	// Warnings records non-fatal conditions, e.g. an explicit sort
	// overridden by a ranking search.
	Warnings  []string
	RowErrors []RowError
}

// Group is one (label, count) bucket. Value carries the literal value
// for discrete groups; binned groups carry the bin label.
type Group struct {
	Label string
	Value any
	Count int
}

// Groups is the response of select_groups.
type Groups struct {
	Counts []Group
	// Bins echoes the bin definitions actually used so a clicked
	// bucket can be mapped back to a range filter.
	Bins []bins.Bin
	// TooManyDistinct is a defined result state, not an error: the
	// approximate distinct count exceeded the safety ceiling and no
	// counts were materialized.
	TooManyDistinct bool
	// Truncated reports that the group list was cut to the limit.
	Truncated bool
	RowErrors []RowError
}

// SortWarning renders the documented "ranking search overrides sort"
// condition for the response warning field.
func SortWarning(sortBy path.Path) string {
	return "explicit sort on " + sortBy.String() + " ignored: a ranking search defines the order"
}
