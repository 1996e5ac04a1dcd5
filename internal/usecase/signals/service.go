package signals

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loupe-data/loupe/internal/domain"
	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/domain/dataset/schema"
	"github.com/loupe-data/loupe/internal/metrics"
	"github.com/loupe-data/loupe/internal/repository/dataset"
)

// DefaultWorkers is the signal computation pool size when unset.
const DefaultWorkers = 4

// Service runs full-dataset signal computations.
type Service struct {
	datasets DatasetProvider
	registry *Registry
	stats    StatsInvalidator
	workers  int
	logger   *zap.Logger
}

// New creates a signal service.
func New(datasets DatasetProvider, registry *Registry, stats StatsInvalidator, logger *zap.Logger) *Service {
	return &Service{
		datasets: datasets,
		registry: registry,
		stats:    stats,
		workers:  DefaultWorkers,
		logger:   logger,
	}
}

// WithWorkers configures the computation pool size.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// Result summarizes one signal computation.
type Result struct {
	Signal     string
	SourcePath path.Path
	RowCount   int
	Duration   time.Duration
}

// Compute runs the named signal over every value at sourcePath and
// stores the outputs as an enrichment of the dataset. The source must
// be a string leaf; sourcePath may address repeated elements with
// wildcards.
func (s *Service) Compute(ctx context.Context, datasetName string, sourcePath path.Path, signalName string) (*Result, error) {
	sig, err := s.registry.Get(signalName)
	if err != nil {
		return nil, err
	}
	ds, err := s.datasets.Get(datasetName)
	if err != nil {
		return nil, err
	}

	fieldPath := schema.FieldPath(sourcePath)
	src, ok := ds.Schema().Resolve(fieldPath)
	if !ok {
		return nil, fmt.Errorf("%q: %w", fieldPath.String(), domain.ErrUnknownPath)
	}
	if src.DType != field.String {
		return nil, fmt.Errorf("signal %q requires a string source, %q is %q: %w",
			signalName, fieldPath.String(), src.DType, domain.ErrInvalidQuery)
	}

	start := time.Now()
	rows, err := s.computeRows(ctx, ds, fieldPath, sig)
	if err != nil {
		return nil, err
	}

	if err := ds.SetEnrichment(&dataset.Enrichment{
		SourcePath: fieldPath,
		Name:       signalName,
		Field:      sig.OutputField(),
		Rows:       rows,
	}); err != nil {
		return nil, fmt.Errorf("store enrichment: %w", err)
	}
	s.stats.Invalidate(datasetName)

	duration := time.Since(start)
	metrics.SignalComputeDuration.WithLabelValues(datasetName, signalName).Observe(duration.Seconds())
	s.logger.Info("Signal computed",
		zap.String("dataset", datasetName),
		zap.String("signal", signalName),
		zap.String("path", fieldPath.String()),
		zap.Int("rows", len(rows)),
		zap.Duration("duration", duration))

	return &Result{
		Signal:     signalName,
		SourcePath: fieldPath,
		RowCount:   len(rows),
		Duration:   duration,
	}, nil
}

// computeRows fans row ordinals out to a stateless worker pool. Each
// worker writes only its own output slot, so no locking is needed.
func (s *Service) computeRows(ctx context.Context, ds *dataset.Dataset, fieldPath path.Path, sig Signal) ([][]any, error) {
	numRows := ds.NumRows()
	rows := make([][]any, numRows)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	errCh := make(chan error, s.workers)
	var wg sync.WaitGroup

	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outputs, err := s.computeRow(ctx, ds, fieldPath, sig, i)
				if err != nil {
					// Decode failures skip the row; the same row is
					// reported as a row error at query time.
					s.logger.Debug("Signal skipped row", zap.Int("row", i), zap.Error(err))
					continue
				}
				rows[i] = outputs
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < numRows; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	wg.Wait()
	select {
	case err := <-errCh:
		return nil, err
	default:
	}
	return rows, nil
}

func (s *Service) computeRow(ctx context.Context, ds *dataset.Dataset, fieldPath path.Path, sig Signal, i int) ([]any, error) {
	root, err := ds.MaterializeRow(ctx, i)
	if err != nil {
		return nil, err
	}
	matches := root.All(fieldPath)
	outputs := make([]any, len(matches))
	for j, n := range matches {
		text, ok := n.Value.(string)
		if !ok {
			continue // null source stays null
		}
		outputs[j] = sig.Compute(text)
	}
	return outputs, nil
}
