// Package value materializes one raw record into a navigable tree of
// nodes mirroring the schema, each stamped with its path and field.
package value

import (
	"fmt"
	"time"

	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/dataset/schema"
)

// Kind discriminates the node variants.
type Kind int

// Node kinds.
const (
	KindScalar Kind = iota
	KindStruct
	KindRepeated
)

// Span is a character range into a sibling string value.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SpanValue is the canonical in-memory shape of a string_span leaf:
// the range, plus an optional score attached by the producing signal.
type SpanValue struct {
	Span  Span
	Score *float64
}

// Node is one materialized value. Scalars carry Value (nil when the
// record lacks the field); string_span leaves carry Span instead so
// consumers can resolve the range against the source string regardless
// of which signal produced it. Scalar nodes may carry Children for
// signal subtrees grafted under them.
type Node struct {
	Kind     Kind
	Value    any
	Span     *Span
	Score    *float64
	Path     path.Path
	Field    *field.Field
	Children map[string]*Node
	Elems    []*Node
}

// DecodeError reports a record whose shape disagrees with the schema.
// It fails the single row, never the whole page.
type DecodeError struct {
	Path path.Path
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode row at %q: %v", e.Path.String(), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(at path.Path, format string, args ...any) error {
	return &DecodeError{Path: at, Err: fmt.Errorf(format, args...)}
}

// Materialize builds the value tree for one raw record. Fields present
// in the schema but absent in the record materialize as null nodes, so
// path lookups behave identically regardless of sparsity.
func Materialize(record map[string]any, sch schema.Schema) (*Node, error) {
	var anyRecord any
	if record != nil {
		anyRecord = record
	}
	return MaterializeField(anyRecord, sch.Root(), nil)
}

// MaterializeField builds the subtree for a single field.
func MaterializeField(val any, f *field.Field, at path.Path) (*Node, error) {
	switch {
	case f.Repeated != nil:
		return materializeRepeated(val, f, at)
	case f.IsLeaf():
		return materializeLeaf(val, f, at)
	default:
		return materializeStruct(val, f, at)
	}
}

func materializeStruct(val any, f *field.Field, at path.Path) (*Node, error) {
	var m map[string]any
	if val != nil {
		var ok bool
		m, ok = val.(map[string]any)
		if !ok {
			return nil, decodeErr(at, "expected struct, got %T", val)
		}
	}

	n := &Node{Kind: KindStruct, Path: at, Field: f}
	n.Children = make(map[string]*Node, len(f.Fields))
	for name, childField := range f.Fields {
		child, err := MaterializeField(m[name], childField, at.Child(path.Segment(name)))
		if err != nil {
			return nil, err
		}
		n.Children[name] = child
	}
	return n, nil
}

func materializeRepeated(val any, f *field.Field, at path.Path) (*Node, error) {
	n := &Node{Kind: KindRepeated, Path: at, Field: f}
	if val == nil {
		return n, nil
	}
	items, ok := val.([]any)
	if !ok {
		return nil, decodeErr(at, "expected list, got %T", val)
	}
	n.Elems = make([]*Node, len(items))
	for i, item := range items {
		elem, err := MaterializeField(item, f.Repeated, at.Child(path.Index(i)))
		if err != nil {
			return nil, err
		}
		n.Elems[i] = elem
	}
	return n, nil
}

func materializeLeaf(val any, f *field.Field, at path.Path) (*Node, error) {
	n := &Node{Kind: KindScalar, Path: at, Field: f}

	// Signal children grafted under a scalar source field.
	if len(f.Fields) > 0 {
		n.Children = make(map[string]*Node, len(f.Fields))
		m, _ := val.(map[string]any)
		for name, childField := range f.Fields {
			child, err := MaterializeField(m[name], childField, at.Child(path.Segment(name)))
			if err != nil {
				return nil, err
			}
			n.Children[name] = child
		}
	}

	if val == nil {
		return n, nil
	}
	if _, isMap := val.(map[string]any); isMap && f.DType != field.StringSpan {
		// Scalar with grafted children arrives as a wrapper map; the
		// scalar itself stays null unless the source value is present.
		return n, nil
	}

	coerced, span, score, err := coerceScalar(val, f.DType, at)
	if err != nil {
		return nil, err
	}
	n.Value = coerced
	n.Span = span
	n.Score = score
	return n, nil
}

func coerceScalar(val any, d field.DType, at path.Path) (any, *Span, *float64, error) {
	switch d {
	case field.String:
		s, ok := val.(string)
		if !ok {
			return nil, nil, nil, decodeErr(at, "expected string, got %T", val)
		}
		return s, nil, nil, nil
	case field.Bool:
		b, ok := val.(bool)
		if !ok {
			return nil, nil, nil, decodeErr(at, "expected bool, got %T", val)
		}
		return b, nil, nil, nil
	case field.Int64:
		switch v := val.(type) {
		case int:
			return int64(v), nil, nil, nil
		case int32:
			return int64(v), nil, nil, nil
		case int64:
			return v, nil, nil, nil
		case float64:
			return int64(v), nil, nil, nil
		}
		return nil, nil, nil, decodeErr(at, "expected integer, got %T", val)
	case field.Float64:
		switch v := val.(type) {
		case float32:
			return float64(v), nil, nil, nil
		case float64:
			return v, nil, nil, nil
		case int:
			return float64(v), nil, nil, nil
		case int64:
			return float64(v), nil, nil, nil
		}
		return nil, nil, nil, decodeErr(at, "expected float, got %T", val)
	case field.Timestamp:
		switch v := val.(type) {
		case time.Time:
			return v, nil, nil, nil
		case string:
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, nil, nil, decodeErr(at, "invalid timestamp %q", v)
			}
			return ts, nil, nil, nil
		}
		return nil, nil, nil, decodeErr(at, "expected timestamp, got %T", val)
	case field.Embedding:
		switch v := val.(type) {
		case []float32:
			return v, nil, nil, nil
		case []any:
			vec := make([]float32, len(v))
			for i, e := range v {
				f, ok := e.(float64)
				if !ok {
					return nil, nil, nil, decodeErr(at, "expected embedding floats, got %T", e)
				}
				vec[i] = float32(f)
			}
			return vec, nil, nil, nil
		}
		return nil, nil, nil, decodeErr(at, "expected embedding, got %T", val)
	case field.StringSpan:
		return coerceSpan(val, at)
	default:
		return nil, nil, nil, decodeErr(at, "unsupported dtype %q", d)
	}
}

func coerceSpan(val any, at path.Path) (any, *Span, *float64, error) {
	switch v := val.(type) {
	case SpanValue:
		sp := v.Span
		return nil, &sp, v.Score, nil
	case Span:
		sp := v
		return nil, &sp, nil, nil
	case map[string]any:
		start, okS := asInt(v["start"])
		end, okE := asInt(v["end"])
		if !okS || !okE {
			return nil, nil, nil, decodeErr(at, "span requires start and end")
		}
		var score *float64
		if sc, ok := v["score"].(float64); ok {
			score = &sc
		}
		return nil, &Span{Start: start, End: end}, score, nil
	}
	return nil, nil, nil, decodeErr(at, "expected span, got %T", val)
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// At returns the node at a fully concrete path.
func (n *Node) At(p path.Path) (*Node, bool) {
	cur := n
	for _, seg := range p {
		next, ok := cur.step(seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// All returns every node whose concrete path matches the possibly
// wildcarded pattern, in depth-first element order.
func (n *Node) All(p path.Path) []*Node {
	if len(p) == 0 {
		return []*Node{n}
	}
	seg := p[0]
	if seg.IsWildcard() && n.Kind == KindRepeated {
		var out []*Node
		for _, elem := range n.Elems {
			out = append(out, elem.All(p[1:])...)
		}
		return out
	}
	next, ok := n.step(seg)
	if !ok {
		return nil
	}
	return next.All(p[1:])
}

func (n *Node) step(seg path.Segment) (*Node, bool) {
	switch n.Kind {
	case KindRepeated:
		if !seg.IsIndex() {
			return nil, false
		}
		i := 0
		for _, r := range seg {
			i = i*10 + int(r-'0')
		}
		if i >= len(n.Elems) {
			return nil, false
		}
		return n.Elems[i], true
	default:
		child, ok := n.Children[string(seg)]
		return child, ok
	}
}

// Graft attaches a materialized signal subtree as a named child of
// every node matching sourcePath. outputs must align one-to-one with
// the depth-first order of All(sourcePath).
func (n *Node) Graft(sourcePath path.Path, name string, outField *field.Field, outputs []any) error {
	targets := n.All(sourcePath)
	if len(outputs) != len(targets) {
		return fmt.Errorf("graft %q: %d outputs for %d matches of %q",
			name, len(outputs), len(targets), sourcePath.String())
	}
	for i, target := range targets {
		child, err := MaterializeField(outputs[i], outField, target.Path.Child(path.Segment(name)))
		if err != nil {
			return err
		}
		if target.Children == nil {
			target.Children = make(map[string]*Node, 1)
		}
		target.Children[name] = child
	}
	return nil
}

// Plain converts the subtree back to plain Go values: maps, slices,
// scalars. Span leaves render as {start, end} maps with the score when
// present. Null scalars render as nil.
func (n *Node) Plain() any {
	switch n.Kind {
	case KindRepeated:
		out := make([]any, len(n.Elems))
		for i, e := range n.Elems {
			out[i] = e.Plain()
		}
		return out
	case KindStruct:
		out := make(map[string]any, len(n.Children))
		for name, c := range n.Children {
			out[name] = c.Plain()
		}
		return out
	default:
		if n.Span != nil {
			m := map[string]any{"start": n.Span.Start, "end": n.Span.End}
			if n.Score != nil {
				m["score"] = *n.Score
			}
			return m
		}
		if len(n.Children) == 0 {
			return n.Value
		}
		// Scalar with grafted signal children.
		out := make(map[string]any, len(n.Children)+1)
		out["value"] = n.Value
		for name, c := range n.Children {
			out[name] = c.Plain()
		}
		return out
	}
}
