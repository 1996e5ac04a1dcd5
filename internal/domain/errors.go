// Package domain holds shared domain types and sentinel errors.
package domain

import "errors"

var (
	// ErrDatasetNotFound signals a missing dataset.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrUnknownPath signals a request path that resolves to no field.
	ErrUnknownPath = errors.New("unknown path")
	// ErrInvalidQuery signals a malformed filter, search, or sort.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrIndexMissing signals a semantic or concept search without a
	// precomputed embedding index. Data-state, not request-shape.
	ErrIndexMissing = errors.New("embedding index missing")
	// ErrConceptMissing signals a concept search without a trained model.
	ErrConceptMissing = errors.New("concept model missing")
	// ErrSignalNotFound signals an unknown signal name.
	ErrSignalNotFound = errors.New("signal not found")
	// ErrGroupingNotSupported signals a leaf whose dtype cannot be bucketed.
	ErrGroupingNotSupported = errors.New("grouping not supported for field")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)
