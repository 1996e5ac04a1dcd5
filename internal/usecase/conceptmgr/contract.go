package conceptmgr

import "github.com/loupe-data/loupe/internal/repository/concepts"

// ModelStore persists concept models (ISP).
type ModelStore interface {
	Put(m *concepts.Model) *concepts.Model
	Get(namespace, name, embedding string) (*concepts.Model, error)
}
