package value

import (
	"errors"
	"testing"

	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/dataset/schema"
)

func testSchema(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.New(map[string]*field.Field{
		"text":  field.Leaf(field.String),
		"stars": field.Leaf(field.Int64),
		"comments": field.RepeatedOf(field.Struct(map[string]*field.Field{
			"author": field.Leaf(field.String),
			"score":  field.Leaf(field.Float64),
		})),
	})
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return s
}

func TestMaterialize_Shape(t *testing.T) {
	sch := testSchema(t)
	root, err := Materialize(map[string]any{
		"text":  "hello",
		"stars": int64(4),
		"comments": []any{
			map[string]any{"author": "ana", "score": 0.5},
			map[string]any{"author": "bo"},
		},
	}, sch)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	n, ok := root.At(path.New("comments", "1", "author"))
	if !ok {
		t.Fatal("concrete path lookup failed")
	}
	if n.Value != "bo" {
		t.Errorf("value = %v", n.Value)
	}
	if n.Path.String() != "comments.1.author" {
		t.Errorf("node path = %s", n.Path.String())
	}
	if n.Field == nil || n.Field.DType != field.String {
		t.Error("node must reference its schema field")
	}

	// Missing score on comment 1 still materializes as a null node.
	miss, ok := root.At(path.New("comments", "1", "score"))
	if !ok {
		t.Fatal("sparse field must still exist in the tree")
	}
	if miss.Value != nil {
		t.Errorf("missing value = %v, want nil", miss.Value)
	}
}

func TestMaterialize_MissingColumns(t *testing.T) {
	sch := testSchema(t)
	root, err := Materialize(map[string]any{"text": "only text"}, sch)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if _, ok := root.At(path.New("stars")); !ok {
		t.Error("absent column must materialize as a null node")
	}
	if got := root.All(path.New("comments", "*", "author")); len(got) != 0 {
		t.Errorf("absent repeated field matched %d nodes", len(got))
	}
}

func TestMaterialize_DecodeError(t *testing.T) {
	sch := testSchema(t)
	_, err := Materialize(map[string]any{"comments": "not a list"}, sch)
	if err == nil {
		t.Fatal("expected decode error")
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error %T is not a DecodeError", err)
	}
	if de.Path.String() != "comments" {
		t.Errorf("decode error path = %s", de.Path.String())
	}
}

func TestAll_Wildcard(t *testing.T) {
	sch := testSchema(t)
	root, err := Materialize(map[string]any{
		"comments": []any{
			map[string]any{"score": 0.1},
			map[string]any{"score": 0.9},
			map[string]any{"score": 0.4},
		},
	}, sch)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	nodes := root.All(path.New("comments", "*", "score"))
	if len(nodes) != 3 {
		t.Fatalf("got %d nodes, want 3", len(nodes))
	}
	if nodes[1].Value != 0.9 {
		t.Errorf("order not preserved: %v", nodes[1].Value)
	}
}

func TestGraft_SpanExposure(t *testing.T) {
	sch := testSchema(t)
	sig := field.Struct(map[string]*field.Field{
		"emails": field.RepeatedOf(field.Leaf(field.StringSpan)),
	})
	sig.Signal = &field.SignalInfo{Name: "pii"}
	sch2, err := sch.WithSignal(path.New("text"), "pii", sig)
	if err != nil {
		t.Fatalf("WithSignal: %v", err)
	}

	root, err := Materialize(map[string]any{"text": "abc@x.com hi"}, sch2)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	out := map[string]any{
		"emails": []any{SpanValue{Span: Span{Start: 0, End: 9}}},
	}
	if err := root.Graft(path.New("text"), "pii", sig, []any{out}); err != nil {
		t.Fatalf("Graft: %v", err)
	}

	n, ok := root.At(path.New("text", "pii", "emails", "0"))
	if !ok {
		t.Fatal("grafted span not addressable")
	}
	if n.Span == nil || n.Span.Start != 0 || n.Span.End != 9 {
		t.Errorf("span = %+v", n.Span)
	}
	if n.Value != nil {
		t.Error("span node must expose the range distinctly from the value")
	}

	// The source scalar is still independently addressable.
	src, _ := root.At(path.New("text"))
	if src.Value != "abc@x.com hi" {
		t.Errorf("source value = %v", src.Value)
	}
}

func TestGraft_WildcardAlignment(t *testing.T) {
	sch := testSchema(t)
	stats := field.Struct(map[string]*field.Field{
		"num_chars": field.Leaf(field.Int64),
	})
	stats.Signal = &field.SignalInfo{Name: "text_statistics"}
	sch2, err := sch.WithSignal(path.New("comments", "*", "author"), "text_statistics", stats)
	if err != nil {
		t.Fatalf("WithSignal: %v", err)
	}

	root, err := Materialize(map[string]any{
		"comments": []any{
			map[string]any{"author": "ana"},
			map[string]any{"author": "bo"},
		},
	}, sch2)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	outputs := []any{
		map[string]any{"num_chars": int64(3)},
		map[string]any{"num_chars": int64(2)},
	}
	if err := root.Graft(path.New("comments", "*", "author"), "text_statistics", stats, outputs); err != nil {
		t.Fatalf("Graft: %v", err)
	}

	n, ok := root.At(path.New("comments", "1", "author", "text_statistics", "num_chars"))
	if !ok {
		t.Fatal("grafted node not addressable")
	}
	if n.Value != int64(2) {
		t.Errorf("value = %v", n.Value)
	}

	// Misaligned outputs are rejected.
	if err := root.Graft(path.New("comments", "*", "author"), "x", stats, outputs[:1]); err == nil {
		t.Error("expected alignment error")
	}
}

func TestPlain(t *testing.T) {
	sch := testSchema(t)
	root, err := Materialize(map[string]any{
		"text":     "hi",
		"comments": []any{map[string]any{"author": "ana", "score": 1.5}},
	}, sch)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	n, _ := root.At(path.New("comments"))
	plain, ok := n.Plain().([]any)
	if !ok || len(plain) != 1 {
		t.Fatalf("Plain() = %#v", n.Plain())
	}
	first, ok := plain[0].(map[string]any)
	if !ok || first["author"] != "ana" {
		t.Errorf("Plain element = %#v", plain[0])
	}
}
