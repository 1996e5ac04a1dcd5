// Package embindex stores per-dataset span vector indexes used by
// semantic and concept searches.
package embindex

import (
	"fmt"
	"sync"

	"github.com/loupe-data/loupe/internal/domain"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/dataset/value"
)

// SpanVector pairs a text span with the embedding of its content.
type SpanVector struct {
	Span   value.Span
	Vector []float32
}

// Index holds, per row ordinal, the span vectors computed over one
// source path with one embedding model.
type Index struct {
	Namespace string
	Dim       int
	rows      [][]SpanVector
}

// NewIndex creates an index over per-row span vectors.
func NewIndex(namespace string, dim int, rows [][]SpanVector) *Index {
	return &Index{Namespace: namespace, Dim: dim, rows: rows}
}

// NumRows returns the indexed row count.
func (ix *Index) NumRows() int { return len(ix.rows) }

// Spans returns the span vectors of one row.
func (ix *Index) Spans(row int) []SpanVector {
	if row < 0 || row >= len(ix.rows) {
		return nil
	}
	return ix.rows[row]
}

// MaxSimilarity scores one row against a query vector: the best dot
// product over the row's spans. Rows without spans score zero and a
// nil span pointer.
func (ix *Index) MaxSimilarity(row int, query []float32) (float64, *value.Span) {
	best := 0.0
	var bestSpan *value.Span
	for i := range ix.Spans(row) {
		sv := &ix.rows[row][i]
		score := Dot(sv.Vector, query)
		if bestSpan == nil || score > best {
			best = score
			bestSpan = &sv.Span
		}
	}
	return best, bestSpan
}

// Dot computes the dot product of two vectors. Embeddings are stored
// normalized, so this is cosine similarity.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

type indexKey struct {
	dataset   string
	fieldPath string
	namespace string
}

// Store keeps the built indexes keyed by dataset, source path, and
// embedding namespace.
type Store struct {
	mu      sync.RWMutex
	indexes map[indexKey]*Index
}

// NewStore creates an empty index store.
func NewStore() *Store {
	return &Store{indexes: make(map[indexKey]*Index)}
}

// Put stores an index, replacing any prior one under the same key.
func (s *Store) Put(dataset string, p path.Path, ix *Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[indexKey{dataset, p.String(), ix.Namespace}] = ix
}

// Get returns the index for (dataset, path, namespace).
func (s *Store) Get(dataset string, p path.Path, namespace string) (*Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ix, ok := s.indexes[indexKey{dataset, p.String(), namespace}]
	if !ok {
		return nil, fmt.Errorf("no %q index on %s.%s: %w",
			namespace, dataset, p.String(), domain.ErrIndexMissing)
	}
	return ix, nil
}

// Namespaces lists the embedding namespaces indexed for (dataset, path).
func (s *Store) Namespaces(dataset string, p path.Path) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	want := p.String()
	for k := range s.indexes {
		if k.dataset == dataset && k.fieldPath == want {
			out = append(out, k.namespace)
		}
	}
	return out
}
