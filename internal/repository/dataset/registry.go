// Package dataset keeps the registered datasets: a row source, a base
// schema, and the signal enrichments computed over them.
package dataset

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/loupe-data/loupe/internal/domain"
	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/dataset/schema"
	"github.com/loupe-data/loupe/internal/domain/dataset/value"
	"github.com/loupe-data/loupe/internal/repository/rowsource"
)

// Enrichment is the stored output of one signal computation: the
// output field tree and, per row ordinal, the outputs aligned with the
// depth-first matches of the source path.
type Enrichment struct {
	SourcePath path.Path
	Name       string
	Field      *field.Field
	Rows       [][]any
}

func enrichKey(p path.Path, name string) string {
	return p.String() + "\x00" + name
}

// Dataset is one registered dataset. The base schema and the row
// source never change; enrichments are replaced atomically and every
// replacement produces a fresh merged schema, so queries holding a
// schema value are never affected by concurrent enrichment.
type Dataset struct {
	name   string
	source rowsource.Source
	base   schema.Schema

	mu          sync.RWMutex
	enrichments map[string]*Enrichment
	order       []string
	merged      schema.Schema
}

// New creates a dataset over a source and its declared schema.
func New(name string, source rowsource.Source, base schema.Schema) *Dataset {
	return &Dataset{
		name:        name,
		source:      source,
		base:        base,
		enrichments: make(map[string]*Enrichment),
		merged:      base,
	}
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.name }

// NumRows returns the row count of the source.
func (d *Dataset) NumRows() int { return d.source.NumRows() }

// Schema returns the current merged schema (base plus enrichments).
func (d *Dataset) Schema() schema.Schema {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.merged
}

// BaseSchema returns the source schema without overlays.
func (d *Dataset) BaseSchema() schema.Schema { return d.base }

// SetEnrichment stores a signal output, replacing any prior output of
// the same name over the same path, and rebuilds the merged schema.
func (d *Dataset) SetEnrichment(e *Enrichment) error {
	if e.Rows != nil && len(e.Rows) != d.source.NumRows() {
		return fmt.Errorf("enrichment %q has %d rows, dataset has %d",
			e.Name, len(e.Rows), d.source.NumRows())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := enrichKey(e.SourcePath, e.Name)
	if _, exists := d.enrichments[key]; !exists {
		d.order = append(d.order, key)
	}
	d.enrichments[key] = e

	merged := d.base
	for _, k := range d.order {
		cur := d.enrichments[k]
		next, err := merged.WithSignal(cur.SourcePath, cur.Name, cur.Field)
		if err != nil {
			return fmt.Errorf("overlay %q on %q: %w", cur.Name, cur.SourcePath.String(), err)
		}
		merged = next
	}
	d.merged = merged
	return nil
}

// Enrichment returns the stored output for (sourcePath, name).
func (d *Dataset) Enrichment(p path.Path, name string) (*Enrichment, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.enrichments[enrichKey(p, name)]
	return e, ok
}

// MaterializeRow builds the value tree for one row against the merged
// schema, grafting every enrichment under its source nodes.
func (d *Dataset) MaterializeRow(ctx context.Context, i int) (*value.Node, error) {
	record, err := d.source.Row(ctx, i)
	if err != nil {
		return nil, fmt.Errorf("read row %d: %w", i, err)
	}

	d.mu.RLock()
	merged := d.merged
	enrichments := make([]*Enrichment, 0, len(d.order))
	for _, k := range d.order {
		enrichments = append(enrichments, d.enrichments[k])
	}
	d.mu.RUnlock()

	root, err := value.Materialize(record, merged)
	if err != nil {
		return nil, err
	}
	for _, e := range enrichments {
		if e.Rows == nil {
			continue
		}
		if err := root.Graft(e.SourcePath, e.Name, e.Field, e.Rows[i]); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// Registry holds the known datasets.
type Registry struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{datasets: make(map[string]*Dataset)}
}

// Add registers a dataset.
func (r *Registry) Add(d *Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.datasets[d.Name()]; exists {
		return fmt.Errorf("dataset %q already registered", d.Name())
	}
	r.datasets[d.Name()] = d
	return nil
}

// Get returns a dataset by name.
func (r *Registry) Get(name string) (*Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.datasets[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, domain.ErrDatasetNotFound)
	}
	return d, nil
}

// List returns the registered dataset names in stable order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.datasets))
	for name := range r.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
