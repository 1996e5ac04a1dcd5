// Package filter implements path-scoped row predicates.
package filter

import (
	"fmt"

	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/dataset/value"
)

// Op is a filter operator.
type Op string

// Binary comparison operators.
const (
	Equals       Op = "equals"
	NotEqual     Op = "not_equal"
	Greater      Op = "greater"
	GreaterEqual Op = "greater_equal"
	Less         Op = "less"
	LessEqual    Op = "less_equal"
)

// Unary operators for sparse fields.
const (
	Exists    Op = "exists"
	NotExists Op = "not_exists"
)

// In is the list-membership operator: value in path.
const In Op = "in"

var binaryOps = map[Op]bool{
	Equals: true, NotEqual: true,
	Greater: true, GreaterEqual: true,
	Less: true, LessEqual: true,
}

// Filter is a single predicate tied to a path. Multiple filters
// combine with implicit AND; there is no OR in this model.
type Filter struct {
	path  path.Path
	op    Op
	value any
}

// NewBinary creates a `path op value` comparison filter.
func NewBinary(p path.Path, op Op, v any) (Filter, error) {
	if len(p) == 0 {
		return Filter{}, fmt.Errorf("filter path is required")
	}
	if !binaryOps[op] {
		return Filter{}, fmt.Errorf("invalid binary operator %q", op)
	}
	if v == nil {
		return Filter{}, fmt.Errorf("binary filter on %q requires a value", p.String())
	}
	return Filter{path: p, op: op, value: v}, nil
}

// NewUnary creates an existence filter for sparse fields.
func NewUnary(p path.Path, op Op) (Filter, error) {
	if len(p) == 0 {
		return Filter{}, fmt.Errorf("filter path is required")
	}
	if op != Exists && op != NotExists {
		return Filter{}, fmt.Errorf("invalid unary operator %q", op)
	}
	return Filter{path: p, op: op}, nil
}

// NewList creates a `value in path` membership filter.
func NewList(p path.Path, v any) (Filter, error) {
	if len(p) == 0 {
		return Filter{}, fmt.Errorf("filter path is required")
	}
	if v == nil {
		return Filter{}, fmt.Errorf("list filter on %q requires a value", p.String())
	}
	return Filter{path: p, op: In, value: v}, nil
}

// Path returns the filtered path.
func (f Filter) Path() path.Path { return f.path }

// Op returns the operator.
func (f Filter) Op() Op { return f.op }

// Value returns the comparison value.
func (f Filter) Value() any { return f.value }

// Evaluate applies the predicate to a materialized row. A wildcarded
// path broadcasts: the filter holds if ANY concrete match satisfies it.
// Missing and null values never error: binary comparators and exists
// are false, not_exists is true.
func (f Filter) Evaluate(root *value.Node) bool {
	nodes := root.All(f.path)

	switch f.op {
	case Exists:
		for _, n := range nodes {
			if present(n) {
				return true
			}
		}
		return false
	case NotExists:
		for _, n := range nodes {
			if present(n) {
				return false
			}
		}
		return true
	case In:
		for _, n := range nodes {
			if n.Kind == value.KindRepeated {
				for _, elem := range n.Elems {
					if compare(elem.Value, f.value, Equals) {
						return true
					}
				}
			}
		}
		return false
	default:
		for _, n := range nodes {
			if n.Value != nil && compare(n.Value, f.value, f.op) {
				return true
			}
		}
		return false
	}
}

// EvaluateAll reports whether the row satisfies every filter.
func EvaluateAll(root *value.Node, filters []Filter) bool {
	for _, f := range filters {
		if !f.Evaluate(root) {
			return false
		}
	}
	return true
}

// present reports whether a node carries an actual value: a non-null
// scalar, a span, a non-empty list, or a struct with any present child.
func present(n *value.Node) bool {
	if n == nil {
		return false
	}
	switch n.Kind {
	case value.KindRepeated:
		return len(n.Elems) > 0
	case value.KindStruct:
		for _, c := range n.Children {
			if present(c) {
				return true
			}
		}
		return false
	default:
		return n.Value != nil || n.Span != nil
	}
}

// compare applies op to two scalar values. Mismatched or unordered
// types yield false, never an error.
func compare(a, b any, op Op) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		if !bok {
			return false
		}
		return compareOrdered(af, bf, op)
	}
	if as, ok := a.(string); ok {
		bs, bok := b.(string)
		if !bok {
			return false
		}
		return compareOrdered(as, bs, op)
	}
	if ab, ok := a.(bool); ok {
		bb, bok := b.(bool)
		if !bok {
			return false
		}
		switch op {
		case Equals:
			return ab == bb
		case NotEqual:
			return ab != bb
		default:
			return false
		}
	}
	return false
}

func compareOrdered[T interface{ ~float64 | ~string }](a, b T, op Op) bool {
	switch op {
	case Equals:
		return a == b
	case NotEqual:
		return a != b
	case Greater:
		return a > b
	case GreaterEqual:
		return a >= b
	case Less:
		return a < b
	case LessEqual:
		return a <= b
	default:
		return false
	}
}

// LessValue orders two scalar values for sorting. Nulls sort first,
// then numbers, strings, and bools; values of unrelated types keep
// their original relative order.
func LessValue(a, b any) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af < bf
		}
		return true
	}
	if as, ok := a.(string); ok {
		if _, ok := asFloat(b); ok {
			return false
		}
		if bs, ok := b.(string); ok {
			return as < bs
		}
		return true
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return !ab && bb
		}
		return false
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
