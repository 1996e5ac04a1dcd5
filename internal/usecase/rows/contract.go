package rows

import (
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/repository/concepts"
	"github.com/loupe-data/loupe/internal/repository/dataset"
	"github.com/loupe-data/loupe/internal/repository/embindex"
)

// DatasetProvider resolves datasets by name (ISP).
type DatasetProvider interface {
	Get(name string) (*dataset.Dataset, error)
}

// IndexReader resolves prebuilt span vector indexes (ISP).
type IndexReader interface {
	Get(dataset string, p path.Path, namespace string) (*embindex.Index, error)
}

// ConceptReader resolves trained concept models (ISP).
type ConceptReader interface {
	Get(namespace, name, embedding string) (*concepts.Model, error)
}
