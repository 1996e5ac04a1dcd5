// Package stats computes and caches per-field summary statistics used
// for auto-binning and the distinct-count safety ceiling.
package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/dataset/value"
)

// RowReader is the slice of a dataset the stats provider needs.
type RowReader interface {
	NumRows() int
	MaterializeRow(ctx context.Context, i int) (*value.Node, error)
}

// FieldStats summarizes the values at one leaf path.
type FieldStats struct {
	TotalCount          int
	ApproxCountDistinct int
	Min                 *float64
	Max                 *float64
	AvgTextLength       *float64
}

type statsKey struct {
	dataset   string
	fieldPath string
}

// Provider computes field statistics on demand and caches them per
// (dataset, path). Enrichment invalidates via Invalidate.
type Provider struct {
	mu    sync.RWMutex
	cache map[statsKey]*FieldStats
}

// NewProvider creates an empty stats cache.
func NewProvider() *Provider {
	return &Provider{cache: make(map[statsKey]*FieldStats)}
}

// Invalidate drops all cached stats of one dataset.
func (p *Provider) Invalidate(dataset string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.cache {
		if k.dataset == dataset {
			delete(p.cache, k)
		}
	}
}

// Stats returns the statistics of the leaf at leafPath, computing and
// caching them on first use. Rows that fail to decode are skipped.
func (p *Provider) Stats(ctx context.Context, dataset string, reader RowReader, leafPath path.Path, dtype field.DType) (*FieldStats, error) {
	key := statsKey{dataset, leafPath.String()}
	p.mu.RLock()
	cached, ok := p.cache[key]
	p.mu.RUnlock()
	if ok {
		return cached, nil
	}

	computed, err := compute(ctx, reader, leafPath, dtype)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.cache[key] = computed
	p.mu.Unlock()
	return computed, nil
}

func compute(ctx context.Context, reader RowReader, leafPath path.Path, dtype field.DType) (*FieldStats, error) {
	st := &FieldStats{}
	distinct := make(map[any]struct{})
	var textLenSum, textCount int

	for i := 0; i < reader.NumRows(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		root, err := reader.MaterializeRow(ctx, i)
		if err != nil {
			continue
		}
		for _, n := range root.All(leafPath) {
			if n.Value == nil {
				continue
			}
			st.TotalCount++
			key, num, isNum := scalarKey(n.Value)
			distinct[key] = struct{}{}
			if isNum {
				if st.Min == nil || num < *st.Min {
					v := num
					st.Min = &v
				}
				if st.Max == nil || num > *st.Max {
					v := num
					st.Max = &v
				}
			}
			if s, ok := n.Value.(string); ok {
				textLenSum += len(s)
				textCount++
			}
		}
	}

	st.ApproxCountDistinct = len(distinct)
	if dtype == field.String && textCount > 0 {
		avg := float64(textLenSum) / float64(textCount)
		st.AvgTextLength = &avg
	}
	return st, nil
}

// scalarKey folds a leaf value into a comparable distinct key and, for
// ordered kinds, its numeric projection.
func scalarKey(v any) (key any, num float64, isNum bool) {
	switch t := v.(type) {
	case int64:
		return t, float64(t), true
	case float64:
		return t, t, true
	case bool:
		return t, 0, false
	case string:
		return t, 0, false
	case time.Time:
		return t.UnixNano(), float64(t.UnixNano()), true
	default:
		return fmt.Sprint(t), 0, false
	}
}
