// Package conceptmgr registers and resolves concept models: linear
// probes over an embedding space, trained out of band and invoked here
// only as scoring functions.
package conceptmgr

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/loupe-data/loupe/internal/domain"
	"github.com/loupe-data/loupe/internal/repository/concepts"
)

// Service manages the concept model registry.
type Service struct {
	store     ModelStore
	namespace string
	logger    *zap.Logger
}

// New creates a concept service. namespace names the embedding model
// the engine's indexes are built with; models registered without an
// explicit embedding are bound to it.
func New(store ModelStore, namespace string, logger *zap.Logger) *Service {
	return &Service{store: store, namespace: namespace, logger: logger}
}

// UpsertModel stores an externally trained model. Re-registering the
// same (namespace, name, embedding) bumps the version.
func (s *Service) UpsertModel(m *concepts.Model) (*concepts.Model, error) {
	if m.Namespace == "" || m.Name == "" {
		return nil, fmt.Errorf("concept namespace and name are required: %w", domain.ErrInvalidQuery)
	}
	if len(m.Weights) == 0 {
		return nil, fmt.Errorf("concept weights are required: %w", domain.ErrInvalidQuery)
	}
	if m.Embedding == "" {
		m.Embedding = s.namespace
	}
	stored := s.store.Put(m)
	s.logger.Info("Concept model stored",
		zap.String("namespace", stored.Namespace),
		zap.String("name", stored.Name),
		zap.String("embedding", stored.Embedding),
		zap.Int("version", stored.Version))
	return stored, nil
}

// Get resolves a stored model.
func (s *Service) Get(namespace, name, embedding string) (*concepts.Model, error) {
	if embedding == "" {
		embedding = s.namespace
	}
	return s.store.Get(namespace, name, embedding)
}
