package groups

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/loupe-data/loupe/internal/domain"
	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/dataset/schema"
	"github.com/loupe-data/loupe/internal/domain/query/bins"
	"github.com/loupe-data/loupe/internal/domain/query/filter"
	"github.com/loupe-data/loupe/internal/domain/query/request"
	"github.com/loupe-data/loupe/internal/repository/dataset"
	"github.com/loupe-data/loupe/internal/repository/rowsource"
	"github.com/loupe-data/loupe/internal/repository/stats"
)

func newTestService(t *testing.T, rows []map[string]any) *Service {
	t.Helper()
	sch, err := schema.New(map[string]*field.Field{
		"score": field.Leaf(field.Float64),
		"tag":   field.Leaf(field.String),
		"tags":  field.RepeatedOf(field.Leaf(field.String)),
		"blob":  field.Leaf(field.Embedding),
	})
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	reg := dataset.NewRegistry()
	if err := reg.Add(dataset.New("posts", rowsource.NewMemory(rows), sch)); err != nil {
		t.Fatalf("registry.Add: %v", err)
	}
	return New(reg, stats.NewProvider(), zap.NewNop())
}

func groupsRequest(t *testing.T, leaf string, opts ...func(*groupsReqSpec)) *request.Groups {
	t.Helper()
	spec := &groupsReqSpec{}
	for _, opt := range opts {
		opt(spec)
	}
	req, err := request.NewGroups(path.MustParse(leaf), spec.filters,
		spec.sortBy, spec.sortOrder, spec.limit, spec.bins)
	if err != nil {
		t.Fatalf("NewGroups: %v", err)
	}
	return &req
}

type groupsReqSpec struct {
	filters   []filter.Filter
	sortBy    request.GroupSortBy
	sortOrder request.SortOrder
	limit     int
	bins      []bins.Bin
}

func TestSelectGroupsExplicitBreakpoints(t *testing.T) {
	svc := newTestService(t, []map[string]any{
		{"score": 50.0}, {"score": 150.0}, {"score": 250.0},
	})
	binList, err := bins.FromBreakpoints([]float64{100, 200})
	if err != nil {
		t.Fatalf("FromBreakpoints: %v", err)
	}
	req := groupsRequest(t, "score", func(s *groupsReqSpec) {
		s.bins = binList
		s.sortBy = request.ByValue
	})
	res, err := svc.SelectGroups(context.Background(), "posts", req)
	if err != nil {
		t.Fatalf("SelectGroups: %v", err)
	}
	if len(res.Counts) != 3 {
		t.Fatalf("groups = %+v", res.Counts)
	}
	for i, g := range res.Counts {
		if g.Count != 1 {
			t.Errorf("bucket %d count = %d", i, g.Count)
		}
	}
	if res.Bins[0].Start != nil || *res.Bins[0].End != 100 {
		t.Fatalf("bin 0 = %+v, want unbounded start and end 100", res.Bins[0])
	}
	if *res.Bins[1].Start != 100 || *res.Bins[1].End != 200 {
		t.Fatalf("bin 1 = %+v", res.Bins[1])
	}
	if *res.Bins[2].Start != 200 || res.Bins[2].End != nil {
		t.Fatalf("bin 2 = %+v, want unbounded end", res.Bins[2])
	}
}

func TestSelectGroupsAutoBinsContinuous(t *testing.T) {
	rows := make([]map[string]any, 0, 20)
	for i := 0; i < 20; i++ {
		rows = append(rows, map[string]any{"score": float64(i)})
	}
	svc := newTestService(t, rows)

	req := groupsRequest(t, "score", func(s *groupsReqSpec) { s.sortBy = request.ByValue })
	res, err := svc.SelectGroups(context.Background(), "posts", req)
	if err != nil {
		t.Fatalf("SelectGroups: %v", err)
	}
	if len(res.Bins) != DefaultAutoBins {
		t.Fatalf("auto bins = %d, want %d", len(res.Bins), DefaultAutoBins)
	}
	total := 0
	for _, g := range res.Counts {
		total += g.Count
	}
	if total != 20 {
		t.Fatalf("binned total = %d, want every value counted", total)
	}
}

func TestSelectGroupsContinuousAllNull(t *testing.T) {
	svc := newTestService(t, []map[string]any{
		{"tag": "a"}, {"tag": "b"},
	})

	req := groupsRequest(t, "score")
	res, err := svc.SelectGroups(context.Background(), "posts", req)
	if err != nil {
		t.Fatalf("SelectGroups: %v", err)
	}
	if res.Counts == nil || len(res.Counts) != 0 {
		t.Errorf("Counts = %#v, want explicitly empty", res.Counts)
	}
	if res.Bins == nil || len(res.Bins) != 0 {
		t.Errorf("Bins = %#v, want explicitly empty", res.Bins)
	}
	if res.TooManyDistinct || res.Truncated {
		t.Errorf("result flags = %+v, want none set", res)
	}
}

func TestSelectGroupsDiscreteWithRepeated(t *testing.T) {
	svc := newTestService(t, []map[string]any{
		{"tags": []any{"a", "b"}},
		{"tags": []any{"a"}},
		{"tags": []any{}},
	})
	req := groupsRequest(t, "tags.*")
	res, err := svc.SelectGroups(context.Background(), "posts", req)
	if err != nil {
		t.Fatalf("SelectGroups: %v", err)
	}
	// Default ordering is count descending.
	if len(res.Counts) != 2 {
		t.Fatalf("groups = %+v", res.Counts)
	}
	if res.Counts[0].Label != "a" || res.Counts[0].Count != 2 {
		t.Fatalf("top group = %+v", res.Counts[0])
	}
	if res.Counts[1].Label != "b" || res.Counts[1].Count != 1 {
		t.Fatalf("second group = %+v", res.Counts[1])
	}
}

func TestSelectGroupsHonorsFilters(t *testing.T) {
	svc := newTestService(t, []map[string]any{
		{"tag": "x", "score": 1.0},
		{"tag": "y", "score": 100.0},
		{"tag": "x", "score": 100.0},
	})
	gt, err := filter.NewBinary(path.MustParse("score"), filter.Greater, 50.0)
	if err != nil {
		t.Fatalf("NewBinary: %v", err)
	}
	req := groupsRequest(t, "tag", func(s *groupsReqSpec) {
		s.filters = []filter.Filter{gt}
		s.sortBy = request.ByValue
	})
	res, err := svc.SelectGroups(context.Background(), "posts", req)
	if err != nil {
		t.Fatalf("SelectGroups: %v", err)
	}
	if len(res.Counts) != 2 || res.Counts[0].Count != 1 || res.Counts[1].Count != 1 {
		t.Fatalf("filtered groups = %+v", res.Counts)
	}
}

func TestSelectGroupsTooManyDistinct(t *testing.T) {
	rows := make([]map[string]any, 0, 6)
	for _, tag := range []string{"a", "b", "c", "d", "e", "f"} {
		rows = append(rows, map[string]any{"tag": tag})
	}
	svc := newTestService(t, rows).WithDistinctCeiling(5)

	res, err := svc.SelectGroups(context.Background(), "posts", groupsRequest(t, "tag"))
	if err != nil {
		t.Fatalf("SelectGroups: %v", err)
	}
	if !res.TooManyDistinct {
		t.Fatal("expected too_many_distinct")
	}
	if len(res.Counts) != 0 {
		t.Fatalf("counts materialized despite ceiling: %+v", res.Counts)
	}
}

func TestSelectGroupsLimitTruncates(t *testing.T) {
	svc := newTestService(t, []map[string]any{
		{"tag": "a"}, {"tag": "a"}, {"tag": "b"}, {"tag": "c"},
	})
	req := groupsRequest(t, "tag", func(s *groupsReqSpec) { s.limit = 2 })
	res, err := svc.SelectGroups(context.Background(), "posts", req)
	if err != nil {
		t.Fatalf("SelectGroups: %v", err)
	}
	if len(res.Counts) != 2 || !res.Truncated {
		t.Fatalf("counts = %+v truncated = %v", res.Counts, res.Truncated)
	}
	if res.Counts[0].Label != "a" {
		t.Fatalf("top group = %+v", res.Counts[0])
	}
}

func TestSelectGroupsErrors(t *testing.T) {
	svc := newTestService(t, []map[string]any{{"tag": "a"}})
	ctx := context.Background()

	if _, err := svc.SelectGroups(ctx, "missing", groupsRequest(t, "tag")); !errors.Is(err, domain.ErrDatasetNotFound) {
		t.Fatalf("unknown dataset err = %v", err)
	}
	if _, err := svc.SelectGroups(ctx, "posts", groupsRequest(t, "nope")); !errors.Is(err, domain.ErrUnknownPath) {
		t.Fatalf("unknown path err = %v", err)
	}
	if _, err := svc.SelectGroups(ctx, "posts", groupsRequest(t, "blob")); !errors.Is(err, domain.ErrGroupingNotSupported) {
		t.Fatalf("ungroupable dtype err = %v", err)
	}
}
