// Package concepts stores the trained concept models scored during
// concept searches.
package concepts

import (
	"fmt"
	"math"
	"sync"

	"github.com/loupe-data/loupe/internal/domain"
	"github.com/loupe-data/loupe/internal/repository/embindex"
)

// Model is a linear probe over one embedding space: a weight vector
// and bias trained against labeled examples of the concept.
type Model struct {
	Namespace string
	Name      string
	Embedding string
	Weights   []float32
	Bias      float64
	Version   int
}

// Score maps an embedding to the concept probability.
func (m *Model) Score(vec []float32) float64 {
	z := embindex.Dot(m.Weights, vec) + m.Bias
	return 1 / (1 + math.Exp(-z))
}

type modelKey struct {
	namespace string
	name      string
	embedding string
}

// Store keeps concept models keyed by namespace, name, and the
// embedding space they were trained in.
type Store struct {
	mu     sync.RWMutex
	models map[modelKey]*Model
}

// NewStore creates an empty concept store.
func NewStore() *Store {
	return &Store{models: make(map[modelKey]*Model)}
}

// Put stores a model, bumping the version when it replaces a prior one.
func (s *Store) Put(m *Model) *Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := modelKey{m.Namespace, m.Name, m.Embedding}
	if prev, ok := s.models[key]; ok {
		m.Version = prev.Version + 1
	} else {
		m.Version = 1
	}
	s.models[key] = m
	return m
}

// Get returns the model for (namespace, name, embedding).
func (s *Store) Get(namespace, name, embedding string) (*Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[modelKey{namespace, name, embedding}]
	if !ok {
		return nil, fmt.Errorf("concept %s/%s in %q: %w",
			namespace, name, embedding, domain.ErrConceptMissing)
	}
	return m, nil
}
