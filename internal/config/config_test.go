package config

import (
	"testing"

	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{Port: 8080},
		Datasets: []DatasetConfig{
			{Name: "posts", Source: "parquet", Path: "data/posts.parquet"},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_DatasetErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing name", func(c *Config) { c.Datasets[0].Name = "" }},
		{"missing path", func(c *Config) { c.Datasets[0].Path = "" }},
		{"unknown source", func(c *Config) { c.Datasets[0].Source = "csv" }},
		{"sqlite without schema", func(c *Config) { c.Datasets[0].Source = "sqlite" }},
		{"parquet with schema", func(c *Config) {
			c.Datasets[0].Schema = map[string]FieldSpec{"text": {Type: "string"}}
		}},
		{"duplicate name", func(c *Config) {
			c.Datasets = append(c.Datasets, c.Datasets[0])
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 30 {
		t.Errorf("expected WriteTimeoutSec=30, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Engine.Workers != 4 {
		t.Errorf("expected Workers=4, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.AutoBinCount != 10 {
		t.Errorf("expected AutoBinCount=10, got %d", cfg.Engine.AutoBinCount)
	}
	if cfg.Engine.GroupDistinctCeiling != 10_000 {
		t.Errorf("expected GroupDistinctCeiling=10000, got %d", cfg.Engine.GroupDistinctCeiling)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("unexpected default model %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.Namespace != cfg.Embedding.Model {
		t.Errorf("namespace should default to the model, got %q", cfg.Embedding.Namespace)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:      HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database:  DatabaseConfig{ReadinessTimeout: 15},
		Engine:    EngineConfig{Workers: 8, AutoBinCount: 20, GroupDistinctCeiling: 500},
		Embedding: EmbeddingConfig{Model: "custom-model", Namespace: "ns"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Engine.Workers != 8 {
		t.Errorf("expected Workers=8, got %d", cfg.Engine.Workers)
	}
	if cfg.Embedding.Namespace != "ns" {
		t.Errorf("expected Namespace='ns', got %q", cfg.Embedding.Namespace)
	}
}

func TestToSchema(t *testing.T) {
	d := DatasetConfig{
		Name:   "posts",
		Source: "sqlite",
		Path:   "posts.db",
		Schema: map[string]FieldSpec{
			"text":  {Type: "string"},
			"likes": {Type: "int64"},
			"tags":  {Repeated: &FieldSpec{Type: "string"}},
			"author": {Fields: map[string]FieldSpec{
				"name": {Type: "string"},
			}},
		},
	}

	sch, err := d.ToSchema()
	if err != nil {
		t.Fatalf("ToSchema: %v", err)
	}
	f, ok := sch.Resolve(path.MustParse("text"))
	if !ok || f.DType != field.String {
		t.Fatalf("text = %+v, ok=%v", f, ok)
	}
	f, ok = sch.Resolve(path.MustParse("tags.*"))
	if !ok || f.DType != field.String {
		t.Fatalf("tags.* = %+v, ok=%v", f, ok)
	}
	f, ok = sch.Resolve(path.MustParse("author.name"))
	if !ok || f.DType != field.String {
		t.Fatalf("author.name = %+v, ok=%v", f, ok)
	}
}

func TestToSchema_Errors(t *testing.T) {
	bad := []FieldSpec{
		{},
		{Type: "decimal"},
		{Type: "string", Repeated: &FieldSpec{Type: "string"}},
	}
	for i, spec := range bad {
		d := DatasetConfig{Schema: map[string]FieldSpec{"c": spec}}
		if _, err := d.ToSchema(); err == nil {
			t.Errorf("spec %d: expected error", i)
		}
	}
}
