package signals

import (
	"github.com/loupe-data/loupe/internal/repository/dataset"
)

// DatasetProvider resolves datasets by name (ISP).
type DatasetProvider interface {
	Get(name string) (*dataset.Dataset, error)
}

// StatsInvalidator drops cached statistics after enrichment (ISP).
type StatsInvalidator interface {
	Invalidate(dataset string)
}
