// Package field models the schema tree of a dataset.
package field

import (
	"fmt"
	"sort"

	"github.com/loupe-data/loupe/internal/domain/dataset/path"
)

// DType is the primitive scalar kind of a leaf field.
type DType string

// Scalar kinds.
const (
	String     DType = "string"
	Int64      DType = "int64"
	Float64    DType = "float64"
	Bool       DType = "bool"
	Timestamp  DType = "timestamp"
	Embedding  DType = "embedding"
	StringSpan DType = "string_span"
)

// IsNumeric reports whether values of the dtype order as numbers.
func (d DType) IsNumeric() bool {
	return d == Int64 || d == Float64
}

// IsContinuous reports whether the dtype needs binning when grouped.
func (d DType) IsContinuous() bool {
	return d == Float64
}

// IsGroupable reports whether values of the dtype can be bucketed.
func (d DType) IsGroupable() bool {
	switch d {
	case String, Int64, Float64, Bool, Timestamp:
		return true
	default:
		return false
	}
}

// SignalInfo tags a field subtree as the output of a named signal
// computation.
type SignalInfo struct {
	Name   string
	Params map[string]string
}

// Field is a node in the schema tree. A leaf carries DType; a struct
// carries Fields; a repeated field carries Repeated. DType and Repeated
// are mutually exclusive. A field with a DType may still carry Fields
// when those children were produced by signals: derived data nests
// under the source field it was computed from.
type Field struct {
	DType    DType
	Fields   map[string]*Field
	Repeated *Field

	// Signal is set on the root of a signal-produced subtree.
	Signal *SignalInfo
	// Label names a user-applied annotation column.
	Label string
	// DerivedFrom and Alias describe an ad-hoc computed column
	// referencing another path.
	DerivedFrom path.Path
	Alias       string
}

// Leaf creates a scalar field.
func Leaf(d DType) *Field { return &Field{DType: d} }

// Struct creates a struct field from named children.
func Struct(fields map[string]*Field) *Field { return &Field{Fields: fields} }

// RepeatedOf creates a repeated field with the given element.
func RepeatedOf(elem *Field) *Field { return &Field{Repeated: elem} }

// Validate checks the structural invariants of the subtree.
func (f *Field) Validate() error {
	return f.validate(nil, false)
}

func (f *Field) validate(at path.Path, underSignal bool) error {
	if f.DType != "" && f.Repeated != nil {
		return fmt.Errorf("field %q has both dtype and repeated_field", at)
	}
	if f.DType == "" && f.Repeated == nil && len(f.Fields) == 0 {
		return fmt.Errorf("field %q has no dtype, fields, or repeated_field", at)
	}
	if f.Repeated != nil && len(f.Fields) > 0 {
		return fmt.Errorf("field %q has both fields and repeated_field", at)
	}
	inSignal := underSignal || f.Signal != nil
	if f.DType != "" && len(f.Fields) > 0 && !inSignal {
		for name, child := range f.Fields {
			if child.Signal == nil && child.Alias == "" {
				return fmt.Errorf(
					"field %q nests non-derived child %q under a scalar", at, name)
			}
		}
	}
	for name, child := range f.Fields {
		if err := child.validate(at.Child(path.Segment(name)), inSignal); err != nil {
			return err
		}
	}
	if f.Repeated != nil {
		if err := f.Repeated.validate(at.Child(path.Wildcard), inSignal); err != nil {
			return err
		}
	}
	return nil
}

// IsLeaf reports whether the field is a scalar leaf.
func (f *Field) IsLeaf() bool { return f.DType != "" }

// ChildNames returns the struct child names in stable order.
func (f *Field) ChildNames() []string {
	names := make([]string, 0, len(f.Fields))
	for name := range f.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the subtree.
func (f *Field) Clone() *Field {
	if f == nil {
		return nil
	}
	out := &Field{
		DType:       f.DType,
		Label:       f.Label,
		Alias:       f.Alias,
		DerivedFrom: append(path.Path(nil), f.DerivedFrom...),
		Repeated:    f.Repeated.Clone(),
	}
	if f.Signal != nil {
		sig := *f.Signal
		if f.Signal.Params != nil {
			sig.Params = make(map[string]string, len(f.Signal.Params))
			for k, v := range f.Signal.Params {
				sig.Params[k] = v
			}
		}
		out.Signal = &sig
	}
	if f.Fields != nil {
		out.Fields = make(map[string]*Field, len(f.Fields))
		for name, child := range f.Fields {
			out.Fields[name] = child.Clone()
		}
	}
	return out
}
