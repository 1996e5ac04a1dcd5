package loupe

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	embedder Embedder
	openai   *OpenAIConfig

	namespace       string
	workers         int
	autoBins        int
	distinctCeiling int
	embedBatchSize  int

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// OpenAIConfig configures the hosted embedding provider.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// WithEmbedder sets the text embedding provider. Required for building
// indexes, semantic search, and concept training from examples; plain
// filters, keyword search, and grouping work without it.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithOpenAI uses an OpenAI-compatible API as the embedding provider.
// Mutually exclusive with WithEmbedder.
func WithOpenAI(cfg OpenAIConfig) Option {
	return optionFunc(func(c *clientConfig) {
		c.openai = &cfg
	})
}

// WithNamespace sets the embedding namespace recorded on indexes and
// concept models. Defaults to the OpenAI model name, or "default".
func WithNamespace(ns string) Option {
	return optionFunc(func(c *clientConfig) {
		c.namespace = ns
	})
}

// WithWorkers sets the row scan parallelism.
func WithWorkers(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.workers = n
	})
}

// WithAutoBins sets the bin count for auto-binned continuous fields.
func WithAutoBins(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.autoBins = n
	})
}

// WithDistinctCeiling sets the approximate distinct-count ceiling above
// which grouping reports too_many_distinct instead of materializing.
func WithDistinctCeiling(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.distinctCeiling = n
	})
}

// WithEmbedBatchSize sets the per-request batch size for index builds.
func WithEmbedBatchSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedBatchSize = n
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers client metrics (operation counts and
// durations) on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
