package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/engine"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port,omitempty"`
}

// StorageConfig controls the DuckDB snapshot store.
type StorageConfig struct {
	DuckDBPath       string `yaml:"duckdb_path,omitempty"`
	SnapshotInterval string `yaml:"snapshot_interval,omitempty"` // duration or cron expression
	Disabled         bool   `yaml:"disabled,omitempty"`          // run purely in memory
}

// EmbeddingConfig configures the Ollama embedding client.
type EmbeddingConfig struct {
	URL        string        `yaml:"url,omitempty"`
	Model      string        `yaml:"model,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	MaxRetries int           `yaml:"max_retries,omitempty"`
	Disabled   bool          `yaml:"disabled,omitempty"`
}

// ConsolidationConfig drives scheduled consolidation sweeps.
type ConsolidationConfig struct {
	Schedule             string        `yaml:"schedule,omitempty"` // e.g. "1h" or "0 3 * * *"
	AccessCountThreshold int           `yaml:"access_count_threshold,omitempty"`
	ImportanceThreshold  float64       `yaml:"importance_threshold,omitempty"`
	PruneAge             time.Duration `yaml:"prune_age,omitempty"`
	Disabled             bool          `yaml:"disabled,omitempty"`
}

// LogConfig mirrors logger.Options.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Pretty bool   `yaml:"pretty,omitempty"`
	File   string `yaml:"file,omitempty"`
}

// MetricsConfig toggles the Prometheus endpoint and span output.
type MetricsConfig struct {
	Disabled bool `yaml:"disabled,omitempty"`
	Traces   bool `yaml:"traces,omitempty"` // pretty-print spans to stderr
}

// Config is the full service configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server,omitempty"`
	Storage       StorageConfig       `yaml:"storage,omitempty"`
	Embedding     EmbeddingConfig     `yaml:"embedding,omitempty"`
	Consolidation ConsolidationConfig `yaml:"consolidation,omitempty"`
	Log           LogConfig           `yaml:"log,omitempty"`
	Metrics       MetricsConfig       `yaml:"metrics,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	opts := engine.DefaultConsolidationOptions()
	return Config{
		Server: ServerConfig{Port: 8080},
		Storage: StorageConfig{
			DuckDBPath:       filepath.Join(".", "meshmem.duckdb"),
			SnapshotInterval: "5m",
		},
		Embedding: EmbeddingConfig{
			URL:        "http://localhost:11434",
			Model:      "nomic-embed-text",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Consolidation: ConsolidationConfig{
			Schedule:             "1h",
			AccessCountThreshold: opts.AccessCountThreshold,
			ImportanceThreshold:  opts.ImportanceThreshold,
			PruneAge:             opts.PruneAge,
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultPath returns MESH_CONFIG_PATH, or ~/.meshmem/config.yaml.
func DefaultPath() string {
	if p := os.Getenv("MESH_CONFIG_PATH"); p != "" {
		return expandPath(p)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".meshmem", "config.yaml")
	}
	return filepath.Join(home, ".meshmem", "config.yaml")
}

// Load builds the configuration: defaults, then the YAML file at path (skipped
// when absent), then environment overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		path = expandPath(path)
		//nolint:gosec // G304: config path is operator supplied
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			var fileCfg Config
			if err := yaml.Unmarshal(data, &fileCfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
				return Config{}, fmt.Errorf("failed to merge config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("MESH_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MESH_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("DUCKDB_PATH"); v != "" {
		c.Storage.DuckDBPath = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.Embedding.URL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CONSOLIDATION_SCHEDULE"); v != "" {
		c.Consolidation.Schedule = v
	}
	return nil
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if !c.Storage.Disabled && strings.TrimSpace(c.Storage.DuckDBPath) == "" {
		return fmt.Errorf("storage.duckdb_path is required unless storage is disabled")
	}
	if !c.Embedding.Disabled {
		if c.Embedding.URL == "" || c.Embedding.Model == "" {
			return fmt.Errorf("embedding.url and embedding.model are required unless embedding is disabled")
		}
		if c.Embedding.Timeout <= 0 {
			return fmt.Errorf("embedding.timeout must be positive")
		}
		if c.Embedding.MaxRetries < 0 {
			return fmt.Errorf("embedding.max_retries must not be negative")
		}
	}
	if err := c.ConsolidationOptions().Validate(); err != nil {
		return fmt.Errorf("invalid consolidation settings: %w", err)
	}
	return nil
}

// ConsolidationOptions converts the consolidation section for the engine.
func (c Config) ConsolidationOptions() engine.ConsolidationOptions {
	return engine.ConsolidationOptions{
		AccessCountThreshold: c.Consolidation.AccessCountThreshold,
		ImportanceThreshold:  c.Consolidation.ImportanceThreshold,
		PruneAge:             c.Consolidation.PruneAge,
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
