package loupe

import (
	"context"
	"fmt"
	"time"

	"github.com/loupe-data/loupe/internal/config"
	"github.com/loupe-data/loupe/internal/domain"
	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/schema"
	"github.com/loupe-data/loupe/internal/domain/query/result"
	"github.com/loupe-data/loupe/internal/repository/concepts"
)

// EmbeddingResult is the outcome of vectorizing one text.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult is the outcome of vectorizing several texts in
// one provider call. Embeddings align with the input order.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// embedderAdapter wraps the public Embedder to satisfy domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

func (a *embedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	r, err := a.inner.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   r.Embeddings,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// FieldSpec declares one column of a dataset schema. Exactly one of
// Type, Repeated, or Fields must be set. Type is one of "string",
// "int64", "float64", "bool", "timestamp", "embedding".
type FieldSpec struct {
	Type     string
	Repeated *FieldSpec
	Fields   map[string]FieldSpec
}

func (fs FieldSpec) toConfig() config.FieldSpec {
	out := config.FieldSpec{Type: fs.Type}
	if fs.Repeated != nil {
		elem := fs.Repeated.toConfig()
		out.Repeated = &elem
	}
	if len(fs.Fields) > 0 {
		out.Fields = make(map[string]config.FieldSpec, len(fs.Fields))
		for name, child := range fs.Fields {
			out.Fields[name] = child.toConfig()
		}
	}
	return out
}

func schemaFromSpecs(columns map[string]FieldSpec) (schema.Schema, error) {
	dc := config.DatasetConfig{Schema: make(map[string]config.FieldSpec, len(columns))}
	for name, spec := range columns {
		dc.Schema[name] = spec.toConfig()
	}
	sch, err := dc.ToSchema()
	if err != nil {
		return schema.Schema{}, fmt.Errorf("%v: %w", err, ErrInvalidQuery)
	}
	return sch, nil
}

// FieldInfo describes one resolved schema field, including subtrees
// grafted by signal computations.
type FieldInfo struct {
	Type     string
	Repeated *FieldInfo
	Fields   map[string]FieldInfo
	Signal   string
}

func fieldToInfo(f *field.Field) FieldInfo {
	info := FieldInfo{Type: string(f.DType)}
	if f.Signal != nil {
		info.Signal = f.Signal.Name
	}
	if f.Repeated != nil {
		elem := fieldToInfo(f.Repeated)
		info.Repeated = &elem
	}
	if len(f.Fields) > 0 {
		info.Fields = make(map[string]FieldInfo, len(f.Fields))
		for name, child := range f.Fields {
			info.Fields[name] = fieldToInfo(child)
		}
	}
	return info
}

// RowError isolates a record whose shape disagreed with the schema.
// The row is skipped; the page is still served.
type RowError struct {
	RowIndex int
	Path     string
	Message  string
}

// RowPage is the response of SelectRows.
type RowPage struct {
	Rows []map[string]any
	// TotalNumRows counts every matching row, independent of paging.
	TotalNumRows int
	Warnings     []string
	RowErrors    []RowError
}

// Bin is one numeric bucket. A nil bound means unbounded on that side;
// Start is inclusive, End exclusive.
type Bin struct {
	Label string
	Start *float64
	End   *float64
}

// Group is one (label, count) bucket of a SelectGroups response.
type Group struct {
	Label string
	Value any
	Count int
}

// GroupResult is the response of SelectGroups.
type GroupResult struct {
	Groups []Group
	// Bins echoes the bin definitions actually used.
	Bins []Bin
	// TooManyDistinct reports that the approximate distinct count
	// exceeded the ceiling and no counts were materialized.
	TooManyDistinct bool
	// Truncated reports that the group list was cut to the limit.
	Truncated bool
	RowErrors []RowError
}

// SignalResult summarizes one signal computation.
type SignalResult struct {
	Signal     string
	SourcePath string
	RowCount   int
	Duration   time.Duration
}

// IndexResult summarizes one embedding index build.
type IndexResult struct {
	Namespace  string
	SourcePath string
	RowCount   int
	SpanCount  int
	Duration   time.Duration
}

// Concept describes a stored concept model.
type Concept struct {
	Namespace  string
	Name       string
	Embedding  string
	Dimensions int
	Version    int
}

func conceptFromModel(m *concepts.Model) *Concept {
	return &Concept{
		Namespace:  m.Namespace,
		Name:       m.Name,
		Embedding:  m.Embedding,
		Dimensions: len(m.Weights),
		Version:    m.Version,
	}
}

func rowErrorsFromResult(in []result.RowError) []RowError {
	if len(in) == 0 {
		return nil
	}
	out := make([]RowError, len(in))
	for i, re := range in {
		out[i] = RowError{RowIndex: re.RowIndex, Path: re.Path, Message: re.Message}
	}
	return out
}
