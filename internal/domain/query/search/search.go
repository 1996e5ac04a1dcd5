// Package search models the declarative search intents of a query.
package search

import (
	"fmt"

	"github.com/loupe-data/loupe/internal/domain/dataset/path"
)

// Type discriminates the search kinds.
type Type string

// Search kinds.
const (
	// Keyword is an exact case-insensitive substring filter.
	Keyword Type = "keyword"
	// Semantic ranks rows by embedding similarity to the query text.
	Semantic Type = "semantic"
	// Concept ranks rows by a trained concept classifier's score.
	Concept Type = "concept"
	// Metadata is an internal equality filter for group drill-down.
	Metadata Type = "metadata"
)

// Search is one validated search intent.
type Search struct {
	searchType Type
	path       path.Path
	query      string

	// Semantic and concept searches name the embedding whose
	// precomputed index they rank over.
	embedding string

	// Concept searches address a trained model.
	namespace   string
	conceptName string

	// Metadata searches compare against a literal value.
	value any
}

// NewKeyword creates a keyword search over a path.
func NewKeyword(p path.Path, query string) (Search, error) {
	if len(p) == 0 {
		return Search{}, fmt.Errorf("search path is required")
	}
	if query == "" {
		return Search{}, fmt.Errorf("keyword query is required")
	}
	return Search{searchType: Keyword, path: p, query: query}, nil
}

// NewSemantic creates a semantic search over a path.
func NewSemantic(p path.Path, query, embedding string) (Search, error) {
	if len(p) == 0 {
		return Search{}, fmt.Errorf("search path is required")
	}
	if query == "" {
		return Search{}, fmt.Errorf("semantic query is required")
	}
	if embedding == "" {
		return Search{}, fmt.Errorf("semantic search requires an embedding name")
	}
	return Search{searchType: Semantic, path: p, query: query, embedding: embedding}, nil
}

// NewConcept creates a concept search over a path.
func NewConcept(p path.Path, namespace, conceptName, embedding string) (Search, error) {
	if len(p) == 0 {
		return Search{}, fmt.Errorf("search path is required")
	}
	if namespace == "" || conceptName == "" {
		return Search{}, fmt.Errorf("concept search requires namespace and concept name")
	}
	if embedding == "" {
		return Search{}, fmt.Errorf("concept search requires an embedding name")
	}
	return Search{
		searchType: Concept, path: p,
		namespace: namespace, conceptName: conceptName, embedding: embedding,
	}, nil
}

// NewMetadata creates an internal equality search used by group
// drill-down flows. Never user-facing, never ranks.
func NewMetadata(p path.Path, v any) (Search, error) {
	if len(p) == 0 {
		return Search{}, fmt.Errorf("search path is required")
	}
	if v == nil {
		return Search{}, fmt.Errorf("metadata search requires a value")
	}
	return Search{searchType: Metadata, path: p, value: v}, nil
}

// Type returns the search kind.
func (s Search) Type() Type { return s.searchType }

// Path returns the searched path.
func (s Search) Path() path.Path { return s.path }

// Query returns the query text.
func (s Search) Query() string { return s.query }

// Embedding returns the embedding name for ranking searches.
func (s Search) Embedding() string { return s.embedding }

// Namespace returns the concept namespace.
func (s Search) Namespace() string { return s.namespace }

// ConceptName returns the concept name.
func (s Search) ConceptName() string { return s.conceptName }

// Value returns the metadata comparison value.
func (s Search) Value() any { return s.value }

// IsRanking reports whether the search orders results by score
// instead of filtering.
func (s Search) IsRanking() bool {
	return s.searchType == Semantic || s.searchType == Concept
}
