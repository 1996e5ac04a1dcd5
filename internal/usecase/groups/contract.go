package groups

import (
	"context"

	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/repository/dataset"
	"github.com/loupe-data/loupe/internal/repository/stats"
)

// DatasetProvider resolves datasets by name (ISP).
type DatasetProvider interface {
	Get(name string) (*dataset.Dataset, error)
}

// StatsProvider supplies field statistics for auto-binning and the
// distinct-count safety ceiling (ISP).
type StatsProvider interface {
	Stats(ctx context.Context, dataset string, reader stats.RowReader, leafPath path.Path, dtype field.DType) (*stats.FieldStats, error)
}
