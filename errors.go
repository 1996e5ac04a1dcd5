package loupe

import "github.com/loupe-data/loupe/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrDatasetNotFound        = domain.ErrDatasetNotFound
	ErrUnknownPath            = domain.ErrUnknownPath
	ErrInvalidQuery           = domain.ErrInvalidQuery
	ErrIndexMissing           = domain.ErrIndexMissing
	ErrConceptMissing         = domain.ErrConceptMissing
	ErrSignalNotFound         = domain.ErrSignalNotFound
	ErrGroupingNotSupported   = domain.ErrGroupingNotSupported
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrRateLimited            = domain.ErrRateLimited
)
