package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/schema"
)

// Config holds the loupe API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Auth      AuthConfig      `yaml:"auth"`
	Engine    EngineConfig    `yaml:"engine"`
	Datasets  []DatasetConfig `yaml:"datasets"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the embedding-cache store connection settings.
// The store is optional; without it embeddings are recomputed on every
// index build.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EngineConfig holds query engine tuning.
type EngineConfig struct {
	Workers              int `yaml:"workers"`
	AutoBinCount         int `yaml:"auto_bin_count"`
	GroupDistinctCeiling int `yaml:"group_distinct_ceiling"`
	EmbedBatchSize       int `yaml:"embed_batch_size"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	// Namespace names the model family an index or concept was built
	// with; vectors from different namespaces never mix.
	Namespace string `yaml:"namespace"`
}

// DatasetConfig declares one dataset to load at startup.
type DatasetConfig struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"` // parquet, sqlite
	Path   string `yaml:"path"`
	// Table and Column apply to sqlite sources.
	Table  string `yaml:"table"`
	Column string `yaml:"column"`
	// Schema is required for sqlite sources; parquet derives it from
	// the file.
	Schema map[string]FieldSpec `yaml:"schema"`
}

// FieldSpec is the YAML shape of one schema field: a scalar type, a
// repeated element, or a struct of named children. Exactly one of the
// three must be set.
type FieldSpec struct {
	Type     string               `yaml:"type"`
	Repeated *FieldSpec           `yaml:"repeated"`
	Fields   map[string]FieldSpec `yaml:"fields"`
}

var dtypeNames = map[string]field.DType{
	"string":    field.String,
	"int64":     field.Int64,
	"float64":   field.Float64,
	"bool":      field.Bool,
	"timestamp": field.Timestamp,
	"embedding": field.Embedding,
}

// ToField converts the spec into a schema field.
func (fs *FieldSpec) ToField() (*field.Field, error) {
	set := 0
	if fs.Type != "" {
		set++
	}
	if fs.Repeated != nil {
		set++
	}
	if len(fs.Fields) > 0 {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of type, repeated, fields must be set")
	}
	switch {
	case fs.Type != "":
		d, ok := dtypeNames[fs.Type]
		if !ok {
			return nil, fmt.Errorf("unknown type %q", fs.Type)
		}
		return field.Leaf(d), nil
	case fs.Repeated != nil:
		elem, err := fs.Repeated.ToField()
		if err != nil {
			return nil, err
		}
		return field.RepeatedOf(elem), nil
	default:
		children := make(map[string]*field.Field, len(fs.Fields))
		for name, child := range fs.Fields {
			f, err := child.ToField()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			children[name] = f
		}
		return field.Struct(children), nil
	}
}

// ToSchema converts the declared column specs into a dataset schema.
func (d *DatasetConfig) ToSchema() (schema.Schema, error) {
	columns := make(map[string]*field.Field, len(d.Schema))
	for name, spec := range d.Schema {
		f, err := spec.ToField()
		if err != nil {
			return schema.Schema{}, fmt.Errorf("column %q: %w", name, err)
		}
		columns[name] = f
	}
	return schema.New(columns)
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Engine.Workers <= 0 {
		c.Engine.Workers = 4
	}
	if c.Engine.AutoBinCount <= 0 {
		c.Engine.AutoBinCount = 10
	}
	if c.Engine.GroupDistinctCeiling <= 0 {
		c.Engine.GroupDistinctCeiling = 10_000
	}
	if c.Engine.EmbedBatchSize <= 0 {
		c.Engine.EmbedBatchSize = 64
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Namespace == "" {
		c.Embedding.Namespace = c.Embedding.Model
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	seen := make(map[string]bool, len(c.Datasets))
	for i, d := range c.Datasets {
		if d.Name == "" {
			return fmt.Errorf("datasets[%d].name is required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate dataset name %q", d.Name)
		}
		seen[d.Name] = true
		switch d.Source {
		case "parquet":
			if len(d.Schema) > 0 {
				return fmt.Errorf("dataset %q: parquet derives its schema from the file", d.Name)
			}
		case "sqlite":
			if len(d.Schema) == 0 {
				return fmt.Errorf("dataset %q: sqlite sources require a schema", d.Name)
			}
		default:
			return fmt.Errorf("dataset %q: source must be \"parquet\" or \"sqlite\", got %q", d.Name, d.Source)
		}
		if d.Path == "" {
			return fmt.Errorf("dataset %q: path is required", d.Name)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
