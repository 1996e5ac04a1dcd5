// Package signals computes derived columns over source text fields and
// attaches their outputs under the source path.
package signals

import (
	"fmt"

	"github.com/loupe-data/loupe/internal/domain"
	"github.com/loupe-data/loupe/internal/domain/dataset/field"
)

// Signal derives a structured value from one source string. Compute
// returns a value materializable against OutputField; a nil input
// yields a nil output.
type Signal interface {
	Name() string
	OutputField() *field.Field
	Compute(text string) any
}

// Registry holds the known signals by name.
type Registry struct {
	signals map[string]Signal
}

// NewRegistry creates a registry with the built-in signals.
func NewRegistry() *Registry {
	r := &Registry{signals: make(map[string]Signal)}
	r.Register(PII{})
	r.Register(TextStatistics{})
	return r
}

// Register adds a signal, replacing any prior one of the same name.
func (r *Registry) Register(s Signal) {
	r.signals[s.Name()] = s
}

// Get returns the signal by name.
func (r *Registry) Get(name string) (Signal, error) {
	s, ok := r.signals[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, domain.ErrSignalNotFound)
	}
	return s, nil
}

// Names lists the registered signal names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.signals))
	for name := range r.signals {
		names = append(names, name)
	}
	return names
}
