package dataset

import (
	"context"
	"errors"
	"testing"

	"github.com/loupe-data/loupe/internal/domain"
	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/dataset/schema"
	"github.com/loupe-data/loupe/internal/domain/dataset/value"
	"github.com/loupe-data/loupe/internal/repository/rowsource"
)

func testSchema(t *testing.T) schema.Schema {
	t.Helper()
	sch, err := schema.New(map[string]*field.Field{
		"text":  field.Leaf(field.String),
		"likes": field.Leaf(field.Int64),
	})
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return sch
}

func spanEnrichment(rows int) *Enrichment {
	out := &field.Field{
		Repeated: &field.Field{DType: field.StringSpan},
		Signal:   &field.SignalInfo{Name: "pii"},
	}
	perRow := make([][]any, rows)
	for i := range perRow {
		perRow[i] = []any{[]any{value.SpanValue{Span: value.Span{Start: 0, End: 4}}}}
	}
	return &Enrichment{
		SourcePath: path.MustParse("text"),
		Name:       "pii",
		Field:      out,
		Rows:       perRow,
	}
}

func TestDatasetEnrichmentMergesSchema(t *testing.T) {
	src := rowsource.NewMemory([]map[string]any{
		{"text": "a@b.io", "likes": int64(3)},
		{"text": "plain", "likes": int64(7)},
	})
	ds := New("posts", src, testSchema(t))

	base := ds.Schema()
	if err := ds.SetEnrichment(spanEnrichment(2)); err != nil {
		t.Fatalf("SetEnrichment: %v", err)
	}

	if _, ok := base.Resolve(path.MustParse("text.pii")); ok {
		t.Fatal("enrichment leaked into the schema captured before SetEnrichment")
	}
	f, ok := ds.Schema().Resolve(path.MustParse(`text.pii.*`))
	if !ok || f.DType != field.StringSpan {
		t.Fatalf("merged schema missing span leaf, got %+v ok=%v", f, ok)
	}
}

func TestDatasetMaterializeRowGrafts(t *testing.T) {
	src := rowsource.NewMemory([]map[string]any{
		{"text": "a@b.io", "likes": int64(3)},
	})
	ds := New("posts", src, testSchema(t))
	if err := ds.SetEnrichment(spanEnrichment(1)); err != nil {
		t.Fatalf("SetEnrichment: %v", err)
	}

	root, err := ds.MaterializeRow(context.Background(), 0)
	if err != nil {
		t.Fatalf("MaterializeRow: %v", err)
	}
	spans := root.All(path.MustParse(`text.pii.*`))
	if len(spans) != 1 {
		t.Fatalf("got %d span nodes, want 1", len(spans))
	}
	if spans[0].Span == nil || spans[0].Span.End != 4 {
		t.Fatalf("span = %+v, want end 4", spans[0].Span)
	}
	// The source value survives the graft.
	text, ok := root.At(path.MustParse("text"))
	if !ok || text.Value != "a@b.io" {
		t.Fatalf("text value = %v", text)
	}
}

func TestDatasetEnrichmentRowCountMismatch(t *testing.T) {
	src := rowsource.NewMemory([]map[string]any{{"text": "x", "likes": int64(1)}})
	ds := New("posts", src, testSchema(t))
	if err := ds.SetEnrichment(spanEnrichment(5)); err == nil {
		t.Fatal("expected row count mismatch error")
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("missing"); !errors.Is(err, domain.ErrDatasetNotFound) {
		t.Fatalf("err = %v, want ErrDatasetNotFound", err)
	}
}

func TestRegistryAddAndList(t *testing.T) {
	r := NewRegistry()
	src := rowsource.NewMemory(nil)
	for _, name := range []string{"b", "a"} {
		if err := r.Add(New(name, src, testSchema(t))); err != nil {
			t.Fatalf("Add(%q): %v", name, err)
		}
	}
	if err := r.Add(New("a", src, testSchema(t))); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	got := r.List()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("List() = %v", got)
	}
}
