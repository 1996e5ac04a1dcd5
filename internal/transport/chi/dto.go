package chi

import (
	"errors"
	"fmt"

	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/query/bins"
	"github.com/loupe-data/loupe/internal/domain/query/filter"
	"github.com/loupe-data/loupe/internal/domain/query/request"
	"github.com/loupe-data/loupe/internal/domain/query/result"
	"github.com/loupe-data/loupe/internal/domain/query/search"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned in the envelope.
const (
	codeBadRequest           = "bad_request"
	codeValidationFailed     = "validation_failed"
	codeDatasetNotFound      = "dataset_not_found"
	codeUnknownPath          = "unknown_path"
	codeInvalidQuery         = "invalid_query"
	codeSignalNotFound       = "signal_not_found"
	codeGroupingNotSupported = "grouping_not_supported"
	codeIndexMissing         = "embedding_index_missing"
	codeConceptMissing       = "concept_model_missing"
	codeEmbeddingProviderErr = "embedding_provider_error"
	codeRateLimited          = "rate_limited"
	codeInternalError        = "internal_error"
	codeUnauthorized         = "unauthorized"
)

// FilterDTO is one predicate of a query.
type FilterDTO struct {
	Path  string `json:"path"`
	Op    string `json:"op"`
	Value any    `json:"value,omitempty"`
}

// SearchDTO is one search intent of a select_rows query.
type SearchDTO struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	Query     string `json:"query,omitempty"`
	Embedding string `json:"embedding,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name,omitempty"`
	Value     any    `json:"value,omitempty"`
}

// SelectRowsRequest is the body of POST .../select_rows.
type SelectRowsRequest struct {
	Columns        []string    `json:"columns,omitempty"`
	Filters        []FilterDTO `json:"filters,omitempty"`
	Searches       []SearchDTO `json:"searches,omitempty"`
	SortBy         string      `json:"sort_by,omitempty"`
	SortOrder      string      `json:"sort_order,omitempty"`
	Limit          *int        `json:"limit,omitempty"`
	Offset         int         `json:"offset,omitempty"`
	CombineColumns bool        `json:"combine_columns,omitempty"`
}

// SelectRowsResponse is the page returned by select_rows.
type SelectRowsResponse struct {
	Rows         []result.Row      `json:"rows"`
	TotalNumRows int               `json:"total_num_rows"`
	Warnings     []string          `json:"warnings,omitempty"`
	RowErrors    []result.RowError `json:"row_errors,omitempty"`
}

// BinDTO is one bucket boundary pair. Nil bounds are unbounded.
type BinDTO struct {
	Label string   `json:"label"`
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
}

// SelectGroupsRequest is the body of POST .../select_groups. Bins and
// Breakpoints are mutually exclusive ways to declare explicit buckets.
type SelectGroupsRequest struct {
	LeafPath    string      `json:"leaf_path"`
	Filters     []FilterDTO `json:"filters,omitempty"`
	SortBy      string      `json:"sort_by,omitempty"`
	SortOrder   string      `json:"sort_order,omitempty"`
	Limit       int         `json:"limit,omitempty"`
	Bins        []BinDTO    `json:"bins,omitempty"`
	Breakpoints []float64   `json:"breakpoints,omitempty"`
}

// GroupDTO is one (label, count) bucket.
type GroupDTO struct {
	Label string `json:"label"`
	Value any    `json:"value"`
	Count int    `json:"count"`
}

// SelectGroupsResponse is the result of select_groups.
type SelectGroupsResponse struct {
	Groups          []GroupDTO        `json:"groups"`
	Bins            []BinDTO          `json:"bins,omitempty"`
	TooManyDistinct bool              `json:"too_many_distinct,omitempty"`
	Truncated       bool              `json:"truncated,omitempty"`
	RowErrors       []result.RowError `json:"row_errors,omitempty"`
}

// ComputeSignalRequest is the body of POST .../signals.
type ComputeSignalRequest struct {
	Path   string `json:"path"`
	Signal string `json:"signal"`
}

// ComputeSignalResponse reports a finished signal computation.
type ComputeSignalResponse struct {
	Signal     string `json:"signal"`
	Path       string `json:"path"`
	RowCount   int    `json:"row_count"`
	DurationMs int64  `json:"duration_ms"`
}

// BuildIndexRequest is the body of POST .../embeddings.
type BuildIndexRequest struct {
	Path string `json:"path"`
}

// BuildIndexResponse reports a finished index build.
type BuildIndexResponse struct {
	Namespace  string `json:"namespace"`
	Path       string `json:"path"`
	RowCount   int    `json:"row_count"`
	SpanCount  int    `json:"span_count"`
	DurationMs int64  `json:"duration_ms"`
}

// UpsertConceptRequest is the body of PUT /concepts/{namespace}/{name}:
// a probe trained out of band. The embedding defaults to the server's
// configured namespace.
type UpsertConceptRequest struct {
	Embedding string    `json:"embedding,omitempty"`
	Weights   []float32 `json:"weights,omitempty"`
	Bias      float64   `json:"bias,omitempty"`
}

// ConceptResponse describes a stored concept model.
type ConceptResponse struct {
	Namespace  string `json:"namespace"`
	Name       string `json:"name"`
	Embedding  string `json:"embedding"`
	Dimensions int    `json:"dimensions"`
	Version    int    `json:"version"`
}

// DatasetSummary is one entry of the dataset listing.
type DatasetSummary struct {
	Name    string `json:"name"`
	NumRows int    `json:"num_rows"`
}

// DatasetListResponse is the result of GET /datasets.
type DatasetListResponse struct {
	Items []DatasetSummary `json:"items"`
}

// FieldDTO renders one schema node.
type FieldDTO struct {
	Type     string              `json:"type,omitempty"`
	Fields   map[string]FieldDTO `json:"fields,omitempty"`
	Repeated *FieldDTO           `json:"repeated,omitempty"`
	Signal   string              `json:"signal,omitempty"`
}

// SchemaResponse is the result of GET .../schema.
type SchemaResponse struct {
	Dataset string              `json:"dataset"`
	Fields  map[string]FieldDTO `json:"fields"`
}

func filtersFromDTO(dtos []FilterDTO) ([]filter.Filter, error) {
	if len(dtos) == 0 {
		return nil, nil
	}
	out := make([]filter.Filter, 0, len(dtos))
	for i, d := range dtos {
		f, err := filterFromDTO(d)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func filterFromDTO(d FilterDTO) (filter.Filter, error) {
	p, err := path.Parse(d.Path)
	if err != nil {
		return filter.Filter{}, fmt.Errorf("path: %w", err)
	}
	op := filter.Op(d.Op)
	switch op {
	case filter.Exists, filter.NotExists:
		return filter.NewUnary(p, op)
	case filter.In:
		return filter.NewList(p, d.Value)
	default:
		return filter.NewBinary(p, op, d.Value)
	}
}

func searchesFromDTO(dtos []SearchDTO) ([]search.Search, error) {
	if len(dtos) == 0 {
		return nil, nil
	}
	out := make([]search.Search, 0, len(dtos))
	for i, d := range dtos {
		s, err := searchFromDTO(d)
		if err != nil {
			return nil, fmt.Errorf("search %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func searchFromDTO(d SearchDTO) (search.Search, error) {
	p, err := path.Parse(d.Path)
	if err != nil {
		return search.Search{}, fmt.Errorf("path: %w", err)
	}
	switch search.Type(d.Type) {
	case search.Keyword:
		return search.NewKeyword(p, d.Query)
	case search.Semantic:
		return search.NewSemantic(p, d.Query, d.Embedding)
	case search.Concept:
		return search.NewConcept(p, d.Namespace, d.Name, d.Embedding)
	case search.Metadata:
		return search.NewMetadata(p, d.Value)
	default:
		return search.Search{}, fmt.Errorf("unknown search type %q", d.Type)
	}
}

func rowsRequestFromDTO(d SelectRowsRequest) (request.Rows, error) {
	var columns []path.Path
	for _, c := range d.Columns {
		p, err := path.Parse(c)
		if err != nil {
			return request.Rows{}, fmt.Errorf("column %q: %w", c, err)
		}
		columns = append(columns, p)
	}

	filters, err := filtersFromDTO(d.Filters)
	if err != nil {
		return request.Rows{}, err
	}
	searches, err := searchesFromDTO(d.Searches)
	if err != nil {
		return request.Rows{}, err
	}

	var sortBy path.Path
	if d.SortBy != "" {
		sortBy, err = path.Parse(d.SortBy)
		if err != nil {
			return request.Rows{}, fmt.Errorf("sort_by: %w", err)
		}
	}

	// An absent limit takes the default; an explicit zero counts only.
	limit := -1
	if d.Limit != nil {
		if *d.Limit < 0 {
			return request.Rows{}, errors.New("limit must not be negative")
		}
		limit = *d.Limit
	}

	return request.NewRows(columns, filters, searches,
		sortBy, request.SortOrder(d.SortOrder), limit, d.Offset, d.CombineColumns)
}

func groupsRequestFromDTO(d SelectGroupsRequest) (request.Groups, error) {
	leafPath, err := path.Parse(d.LeafPath)
	if err != nil {
		return request.Groups{}, fmt.Errorf("leaf_path: %w", err)
	}
	filters, err := filtersFromDTO(d.Filters)
	if err != nil {
		return request.Groups{}, err
	}

	if len(d.Bins) > 0 && len(d.Breakpoints) > 0 {
		return request.Groups{}, errors.New("bins and breakpoints are mutually exclusive")
	}
	var binList []bins.Bin
	switch {
	case len(d.Breakpoints) > 0:
		binList, err = bins.FromBreakpoints(d.Breakpoints)
	case len(d.Bins) > 0:
		explicit := make([]bins.Bin, len(d.Bins))
		for i, b := range d.Bins {
			explicit[i] = bins.Bin{Label: b.Label, Start: b.Start, End: b.End}
		}
		binList, err = bins.New(explicit)
	}
	if err != nil {
		return request.Groups{}, fmt.Errorf("bins: %w", err)
	}

	return request.NewGroups(leafPath, filters,
		request.GroupSortBy(d.SortBy), request.SortOrder(d.SortOrder), d.Limit, binList)
}

func rowPageToDTO(page *result.RowPage) SelectRowsResponse {
	rows := page.Rows
	if rows == nil {
		rows = []result.Row{}
	}
	return SelectRowsResponse{
		Rows:         rows,
		TotalNumRows: page.TotalNumRows,
		Warnings:     page.Warnings,
		RowErrors:    page.RowErrors,
	}
}

func groupsToDTO(res *result.Groups) SelectGroupsResponse {
	groups := make([]GroupDTO, len(res.Counts))
	for i, g := range res.Counts {
		groups[i] = GroupDTO{Label: g.Label, Value: g.Value, Count: g.Count}
	}
	binDTOs := make([]BinDTO, len(res.Bins))
	for i, b := range res.Bins {
		binDTOs[i] = BinDTO{Label: b.Label, Start: b.Start, End: b.End}
	}
	if len(binDTOs) == 0 {
		binDTOs = nil
	}
	return SelectGroupsResponse{
		Groups:          groups,
		Bins:            binDTOs,
		TooManyDistinct: res.TooManyDistinct,
		Truncated:       res.Truncated,
		RowErrors:       res.RowErrors,
	}
}

func fieldToDTO(f *field.Field) FieldDTO {
	dto := FieldDTO{Type: string(f.DType)}
	if f.Signal != nil {
		dto.Signal = f.Signal.Name
	}
	if f.Repeated != nil {
		elem := fieldToDTO(f.Repeated)
		dto.Repeated = &elem
	}
	if len(f.Fields) > 0 {
		dto.Fields = make(map[string]FieldDTO, len(f.Fields))
		for name, child := range f.Fields {
			dto.Fields[name] = fieldToDTO(child)
		}
	}
	return dto
}
