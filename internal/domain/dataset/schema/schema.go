// Package schema holds the immutable schema tree of a dataset and the
// signal overlay that grafts derived fields under their source.
package schema

import (
	"fmt"
	"sort"

	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
)

// Schema is the root field of a dataset. A schema is immutable once
// constructed: overlays return a new value and share untouched subtrees.
type Schema struct {
	root *field.Field
}

// New validates and creates a schema from top-level source columns.
func New(columns map[string]*field.Field) (Schema, error) {
	if len(columns) == 0 {
		return Schema{}, fmt.Errorf("schema requires at least one column")
	}
	root := field.Struct(columns)
	if err := root.Validate(); err != nil {
		return Schema{}, fmt.Errorf("invalid schema: %w", err)
	}
	return Schema{root: root}, nil
}

// Root returns the root field.
func (s Schema) Root() *field.Field { return s.root }

// TopLevel returns the names of top-level source columns, excluding
// derived ones, in stable order.
func (s Schema) TopLevel() []string {
	names := make([]string, 0, len(s.root.Fields))
	for name, f := range s.root.Fields {
		if f.Signal == nil && f.Alias == "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Resolve finds the first field whose path pattern-matches p,
// descending into both struct children and repeated elements.
// An unknown path yields (nil, false), never an error.
func (s Schema) Resolve(p path.Path) (*field.Field, bool) {
	cur := s.root
	for _, seg := range p {
		switch {
		case cur.Repeated != nil:
			if !seg.IsWildcard() && !seg.IsIndex() {
				return nil, false
			}
			cur = cur.Repeated
		case len(cur.Fields) > 0:
			child, ok := cur.Fields[string(seg)]
			if !ok {
				return nil, false
			}
			cur = child
		default:
			return nil, false
		}
	}
	return cur, true
}

// FieldPath returns the wildcarded schema path of the field matching p,
// normalizing concrete indices to wildcards.
func FieldPath(p path.Path) path.Path {
	out := make(path.Path, len(p))
	for i, seg := range p {
		if seg.IsIndex() {
			out[i] = path.Wildcard
		} else {
			out[i] = seg
		}
	}
	return out
}

// IsSignalField reports whether the field at p or any of its ancestors
// carries a signal tag.
func (s Schema) IsSignalField(p path.Path) bool {
	cur := s.root
	if cur.Signal != nil {
		return true
	}
	for _, seg := range p {
		switch {
		case cur.Repeated != nil && (seg.IsWildcard() || seg.IsIndex()):
			cur = cur.Repeated
		case len(cur.Fields) > 0:
			child, ok := cur.Fields[string(seg)]
			if !ok {
				return false
			}
			cur = child
		default:
			return false
		}
		if cur.Signal != nil {
			return true
		}
	}
	return false
}

// SignalRoot reports whether the field at p directly carries the tag.
func (s Schema) SignalRoot(p path.Path) bool {
	f, ok := s.Resolve(p)
	return ok && f.Signal != nil
}

// WithSignal returns a new schema with the signal output field grafted
// as the named child of the field at sourcePath. Re-applying the same
// name replaces the prior subtree; different names coexist as siblings.
// The receiver is never mutated; untouched subtrees are shared.
func (s Schema) WithSignal(sourcePath path.Path, name string, out *field.Field) (Schema, error) {
	if name == "" {
		return Schema{}, fmt.Errorf("signal name is required")
	}
	if out == nil {
		return Schema{}, fmt.Errorf("signal output field is required")
	}
	if err := out.Validate(); err != nil {
		return Schema{}, fmt.Errorf("invalid signal output: %w", err)
	}
	if out.Signal == nil && out.Alias == "" {
		return Schema{}, fmt.Errorf("signal output %q must carry a signal tag or alias", name)
	}

	newRoot, err := graft(s.root, sourcePath, name, out)
	if err != nil {
		return Schema{}, err
	}
	return Schema{root: newRoot}, nil
}

// graft copies nodes along p only, then attaches the child.
func graft(cur *field.Field, p path.Path, name string, out *field.Field) (*field.Field, error) {
	cp := shallowCopy(cur)
	if len(p) == 0 {
		if cp.Repeated != nil {
			return nil, fmt.Errorf("cannot attach signal %q to a repeated field", name)
		}
		if cp.Fields == nil {
			cp.Fields = make(map[string]*field.Field, 1)
		}
		cp.Fields[name] = out
		return cp, nil
	}

	seg := p[0]
	switch {
	case cur.Repeated != nil:
		if !seg.IsWildcard() && !seg.IsIndex() {
			return nil, fmt.Errorf("path segment %q does not address a repeated element", seg)
		}
		elem, err := graft(cur.Repeated, p[1:], name, out)
		if err != nil {
			return nil, err
		}
		cp.Repeated = elem
	case len(cur.Fields) > 0:
		child, ok := cur.Fields[string(seg)]
		if !ok {
			return nil, fmt.Errorf("unknown path segment %q", seg)
		}
		grafted, err := graft(child, p[1:], name, out)
		if err != nil {
			return nil, err
		}
		cp.Fields[string(seg)] = grafted
	default:
		return nil, fmt.Errorf("path segment %q descends below a leaf", seg)
	}
	return cp, nil
}

func shallowCopy(f *field.Field) *field.Field {
	cp := *f
	if f.Fields != nil {
		cp.Fields = make(map[string]*field.Field, len(f.Fields))
		for k, v := range f.Fields {
			cp.Fields[k] = v
		}
	}
	return &cp
}

// Walk visits every field depth-first with its wildcarded path.
// Returning false from the visitor stops the walk.
func (s Schema) Walk(visit func(p path.Path, f *field.Field) bool) {
	walk(s.root, nil, visit)
}

func walk(f *field.Field, p path.Path, visit func(path.Path, *field.Field) bool) bool {
	if !visit(p, f) {
		return false
	}
	for _, name := range f.ChildNames() {
		if !walk(f.Fields[name], p.Child(path.Segment(name)), visit) {
			return false
		}
	}
	if f.Repeated != nil {
		return walk(f.Repeated, p.Child(path.Wildcard), visit)
	}
	return true
}
