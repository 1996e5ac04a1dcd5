// Package embedindex builds span vector indexes over string fields so
// semantic and concept searches can rank rows without re-embedding.
package embedindex

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loupe-data/loupe/internal/domain"
	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/dataset/schema"
	"github.com/loupe-data/loupe/internal/domain/dataset/value"
	"github.com/loupe-data/loupe/internal/repository/embindex"
)

// DefaultBatchSize is the number of texts sent per provider call.
const DefaultBatchSize = 64

// Service builds embedding indexes.
type Service struct {
	datasets  DatasetProvider
	indexes   IndexWriter
	embedder  domain.Embedder
	namespace string
	batchSize int
	logger    *zap.Logger
}

// New creates an index build service. namespace names the embedding
// model the configured embedder serves.
func New(datasets DatasetProvider, indexes IndexWriter, embedder domain.Embedder, namespace string, logger *zap.Logger) *Service {
	return &Service{
		datasets:  datasets,
		indexes:   indexes,
		embedder:  embedder,
		namespace: namespace,
		batchSize: DefaultBatchSize,
		logger:    logger,
	}
}

// WithBatchSize configures the provider batch size.
func (s *Service) WithBatchSize(n int) *Service {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// Namespace returns the embedding namespace this service builds.
func (s *Service) Namespace() string { return s.namespace }

// Result summarizes one index build.
type Result struct {
	Namespace  string
	SourcePath path.Path
	RowCount   int
	SpanCount  int
	Duration   time.Duration
}

// Build embeds every string at sourcePath and stores the resulting
// span vector index. Each value is indexed as one span covering the
// whole string.
func (s *Service) Build(ctx context.Context, datasetName string, sourcePath path.Path) (*Result, error) {
	ds, err := s.datasets.Get(datasetName)
	if err != nil {
		return nil, err
	}

	fieldPath := schema.FieldPath(sourcePath)
	src, ok := ds.Schema().Resolve(fieldPath)
	if !ok {
		return nil, fmt.Errorf("%q: %w", fieldPath.String(), domain.ErrUnknownPath)
	}
	if src.DType != field.String {
		return nil, fmt.Errorf("embedding index requires a string source, %q is %q: %w",
			fieldPath.String(), src.DType, domain.ErrInvalidQuery)
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("no embedding provider configured: %w", domain.ErrEmbeddingProviderError)
	}

	start := time.Now()
	numRows := ds.NumRows()
	rows := make([][]embindex.SpanVector, numRows)

	// Collect all texts first, then embed in provider-sized batches.
	type slot struct {
		row  int
		span value.Span
	}
	var texts []string
	var slots []slot
	for i := 0; i < numRows; i++ {
		root, err := ds.MaterializeRow(ctx, i)
		if err != nil {
			continue
		}
		for _, n := range root.All(fieldPath) {
			text, ok := n.Value.(string)
			if !ok || text == "" {
				continue
			}
			texts = append(texts, text)
			slots = append(slots, slot{row: i, span: value.Span{Start: 0, End: len(text)}})
		}
	}

	dim := 0
	for off := 0; off < len(texts); off += s.batchSize {
		end := off + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		res, err := s.embedder.BatchEmbed(ctx, texts[off:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch at %d: %w", off, err)
		}
		if len(res.Embeddings) != end-off {
			return nil, fmt.Errorf("embed batch at %d: got %d vectors for %d texts: %w",
				off, len(res.Embeddings), end-off, domain.ErrEmbeddingProviderError)
		}
		for j, vec := range res.Embeddings {
			sl := slots[off+j]
			if dim == 0 {
				dim = len(vec)
			}
			rows[sl.row] = append(rows[sl.row], embindex.SpanVector{Span: sl.span, Vector: vec})
		}
	}

	s.indexes.Put(datasetName, fieldPath, embindex.NewIndex(s.namespace, dim, rows))

	duration := time.Since(start)
	s.logger.Info("Embedding index built",
		zap.String("dataset", datasetName),
		zap.String("path", fieldPath.String()),
		zap.String("namespace", s.namespace),
		zap.Int("spans", len(texts)),
		zap.Duration("duration", duration))

	return &Result{
		Namespace:  s.namespace,
		SourcePath: fieldPath,
		RowCount:   numRows,
		SpanCount:  len(texts),
		Duration:   duration,
	}, nil
}
