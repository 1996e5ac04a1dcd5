package embedindex

import (
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/repository/dataset"
	"github.com/loupe-data/loupe/internal/repository/embindex"
)

// DatasetProvider resolves datasets by name (ISP).
type DatasetProvider interface {
	Get(name string) (*dataset.Dataset, error)
}

// IndexWriter stores built indexes (ISP).
type IndexWriter interface {
	Put(dataset string, p path.Path, ix *embindex.Index)
}
