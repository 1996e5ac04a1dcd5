package loupe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loupe-data/loupe/internal/domain"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/repository/concepts"
	"github.com/loupe-data/loupe/internal/repository/dataset"
	"github.com/loupe-data/loupe/internal/repository/embindex"
	"github.com/loupe-data/loupe/internal/repository/rowsource"
	"github.com/loupe-data/loupe/internal/repository/stats"
	openaiEmb "github.com/loupe-data/loupe/internal/transport/openai"
	conceptuc "github.com/loupe-data/loupe/internal/usecase/conceptmgr"
	embedindexuc "github.com/loupe-data/loupe/internal/usecase/embedindex"
	groupsuc "github.com/loupe-data/loupe/internal/usecase/groups"
	rowsuc "github.com/loupe-data/loupe/internal/usecase/rows"
	signalsuc "github.com/loupe-data/loupe/internal/usecase/signals"
)

// Client is the embedded loupe engine entry point.
type Client struct {
	registry *dataset.Registry
	rowSvc   *rowsuc.Service
	groupSvc *groupsuc.Service
	signals  *signalsuc.Service
	indexes  *embedindexuc.Service
	concepts *conceptuc.Service

	namespace string
	obs       *observer
}

// New creates an embedded Client. Datasets are registered afterwards
// with AddRows, AddParquet, or AddSQLite.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.embedder != nil && cfg.openai != nil {
		return nil, errors.New("loupe: WithEmbedder and WithOpenAI are mutually exclusive")
	}

	var embedder domain.Embedder
	switch {
	case cfg.embedder != nil:
		embedder = &embedderAdapter{inner: cfg.embedder}
	case cfg.openai != nil:
		embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.openai.APIKey,
			BaseURL:    cfg.openai.BaseURL,
			Model:      cfg.openai.Model,
			Dimensions: cfg.openai.Dimensions,
			Provider:   "openai",
			Logger:     cfg.logger,
		})
	}

	namespace := cfg.namespace
	if namespace == "" {
		namespace = "default"
		if cfg.openai != nil && cfg.openai.Model != "" {
			namespace = cfg.openai.Model
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	registry := dataset.NewRegistry()
	statsProvider := stats.NewProvider()
	indexStore := embindex.NewStore()
	conceptStore := concepts.NewStore()

	rowSvc := rowsuc.New(registry, indexStore, conceptStore, embedder, logger)
	if cfg.workers > 0 {
		rowSvc = rowSvc.WithWorkers(cfg.workers)
	}
	groupSvc := groupsuc.New(registry, statsProvider, logger)
	if cfg.autoBins > 0 {
		groupSvc = groupSvc.WithAutoBins(cfg.autoBins)
	}
	if cfg.distinctCeiling > 0 {
		groupSvc = groupSvc.WithDistinctCeiling(cfg.distinctCeiling)
	}
	signalSvc := signalsuc.New(registry, signalsuc.NewRegistry(), statsProvider, logger)
	if cfg.workers > 0 {
		signalSvc = signalSvc.WithWorkers(cfg.workers)
	}
	indexSvc := embedindexuc.New(registry, indexStore, embedder, namespace, logger)
	if cfg.embedBatchSize > 0 {
		indexSvc = indexSvc.WithBatchSize(cfg.embedBatchSize)
	}
	conceptSvc := conceptuc.New(conceptStore, namespace, logger)

	return &Client{
		registry:  registry,
		rowSvc:    rowSvc,
		groupSvc:  groupSvc,
		signals:   signalSvc,
		indexes:   indexSvc,
		concepts:  conceptSvc,
		namespace: namespace,
		obs:       obs,
	}, nil
}

// AddRows registers an in-memory dataset with a declared schema.
func (c *Client) AddRows(name string, columns map[string]FieldSpec, rows []map[string]any) error {
	sch, err := schemaFromSpecs(columns)
	if err != nil {
		return fmt.Errorf("dataset %q: %w", name, err)
	}
	return c.registry.Add(dataset.New(name, rowsource.NewMemory(rows), sch))
}

// AddParquet registers a dataset backed by a parquet file. The schema
// derives from the file footer.
func (c *Client) AddParquet(name, filePath string) error {
	src, err := rowsource.OpenParquet(filePath)
	if err != nil {
		return fmt.Errorf("dataset %q: %w", name, err)
	}
	return c.registry.Add(dataset.New(name, src, src.Schema()))
}

// AddSQLite registers a dataset backed by a sqlite table holding one
// JSON document per row. The schema must be declared.
func (c *Client) AddSQLite(name, dsn, table, column string, columns map[string]FieldSpec) error {
	sch, err := schemaFromSpecs(columns)
	if err != nil {
		return fmt.Errorf("dataset %q: %w", name, err)
	}
	src, err := rowsource.OpenSQLite(dsn, table, column)
	if err != nil {
		return fmt.Errorf("dataset %q: %w", name, err)
	}
	return c.registry.Add(dataset.New(name, src, sch))
}

// Datasets returns the registered dataset names, sorted.
func (c *Client) Datasets() []string {
	return c.registry.List()
}

// Schema returns the dataset's top-level columns with any signal
// subtrees merged in.
func (c *Client) Schema(datasetName string) (map[string]FieldInfo, error) {
	ds, err := c.registry.Get(datasetName)
	if err != nil {
		return nil, err
	}
	sch := ds.Schema()
	out := make(map[string]FieldInfo)
	for _, name := range sch.TopLevel() {
		f, ok := sch.Resolve(path.New(name))
		if !ok {
			continue
		}
		out[name] = fieldToInfo(f)
	}
	return out, nil
}

// SelectRows runs a row selection query against a dataset.
func (c *Client) SelectRows(ctx context.Context, datasetName string, q *RowsQuery) (page *RowPage, err error) {
	start := time.Now()
	defer func() { c.obs.observe("select_rows", start, err) }()

	req, err := q.build(c.namespace)
	if err != nil {
		return nil, err
	}
	res, err := c.rowSvc.SelectRows(ctx, datasetName, req)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, len(res.Rows))
	for i, r := range res.Rows {
		rows[i] = r
	}
	return &RowPage{
		Rows:         rows,
		TotalNumRows: res.TotalNumRows,
		Warnings:     res.Warnings,
		RowErrors:    rowErrorsFromResult(res.RowErrors),
	}, nil
}

// SelectGroups buckets a dataset by one leaf path and counts rows.
func (c *Client) SelectGroups(ctx context.Context, datasetName string, q *GroupsQuery) (groups *GroupResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("select_groups", start, err) }()

	req, err := q.build()
	if err != nil {
		return nil, err
	}
	res, err := c.groupSvc.SelectGroups(ctx, datasetName, req)
	if err != nil {
		return nil, err
	}

	out := &GroupResult{
		TooManyDistinct: res.TooManyDistinct,
		Truncated:       res.Truncated,
		RowErrors:       rowErrorsFromResult(res.RowErrors),
	}
	for _, g := range res.Counts {
		out.Groups = append(out.Groups, Group{Label: g.Label, Value: g.Value, Count: g.Count})
	}
	for _, b := range res.Bins {
		out.Bins = append(out.Bins, Bin{Label: b.Label, Start: b.Start, End: b.End})
	}
	return out, nil
}

// ComputeSignal runs a named signal over every value at sourcePath and
// grafts the outputs into the dataset schema.
func (c *Client) ComputeSignal(ctx context.Context, datasetName, sourcePath, signalName string) (res *SignalResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("compute_signal", start, err) }()

	p, err := path.Parse(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("source path %q: %v: %w", sourcePath, err, ErrInvalidQuery)
	}
	r, err := c.signals.Compute(ctx, datasetName, p, signalName)
	if err != nil {
		return nil, err
	}
	return &SignalResult{
		Signal:     r.Signal,
		SourcePath: r.SourcePath.String(),
		RowCount:   r.RowCount,
		Duration:   r.Duration,
	}, nil
}

// BuildIndex embeds every string at sourcePath and stores the span
// vector index used by semantic and concept search.
func (c *Client) BuildIndex(ctx context.Context, datasetName, sourcePath string) (res *IndexResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("build_index", start, err) }()

	p, err := path.Parse(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("source path %q: %v: %w", sourcePath, err, ErrInvalidQuery)
	}
	r, err := c.indexes.Build(ctx, datasetName, p)
	if err != nil {
		return nil, err
	}
	return &IndexResult{
		Namespace:  r.Namespace,
		SourcePath: r.SourcePath.String(),
		RowCount:   r.RowCount,
		SpanCount:  r.SpanCount,
		Duration:   r.Duration,
	}, nil
}

// PutConcept stores a concept model with explicit weights. The weight
// dimension must match the embedding index the concept is scored
// against.
func (c *Client) PutConcept(namespace, name string, weights []float32, bias float64) (concept *Concept, err error) {
	start := time.Now()
	defer func() { c.obs.observe("put_concept", start, err) }()

	m, err := c.concepts.UpsertModel(&concepts.Model{
		Namespace: namespace,
		Name:      name,
		Embedding: c.namespace,
		Weights:   weights,
		Bias:      bias,
	})
	if err != nil {
		return nil, err
	}
	return conceptFromModel(m), nil
}

// GetConcept returns a stored concept model's metadata.
func (c *Client) GetConcept(namespace, name string) (*Concept, error) {
	m, err := c.concepts.Get(namespace, name, c.namespace)
	if err != nil {
		return nil, err
	}
	return conceptFromModel(m), nil
}
