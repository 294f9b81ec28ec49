// Package config provides configuration loading for retrieverd.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables. See LoadWithFile for precedence rules.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig indicates a configuration value failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete retrieverd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Embedding  EmbeddingConfig  `koanf:"embedding"`
	Generation GenerationConfig `koanf:"generation"`
	Store      StoreConfig      `koanf:"store"`
	Cache      CacheConfig      `koanf:"cache"`
	Query      QueryConfig      `koanf:"query"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// RateLimit is the per-client request rate in requests per second.
	// Zero disables rate limiting.
	RateLimit float64 `koanf:"rate_limit"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
	OTEL   bool   `koanf:"otel"`   // mirror logs to the OTEL log bridge
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"` // "grpc" (default) or "http/protobuf"
	ServiceName    string   `koanf:"service_name"`
	ServiceVersion string   `koanf:"service_version"`
	Insecure       bool     `koanf:"insecure"`
	SampleRate     float64  `koanf:"sample_rate"`
	ExportInterval Duration `koanf:"export_interval"`
}

// EmbeddingConfig holds embedding gateway configuration.
type EmbeddingConfig struct {
	// Provider selects the gateway implementation: "tei" or "openai".
	Provider string `koanf:"provider"`
	BaseURL  string `koanf:"base_url"`
	Model    string `koanf:"model"`
	APIKey   string `koanf:"api_key"`
}

// GenerationConfig holds answer generation configuration.
type GenerationConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`
}

// StoreConfig holds vector store configuration.
type StoreConfig struct {
	// Path is the root directory for per-tenant persisted artifacts.
	Path string `koanf:"path"`
}

// CacheConfig holds semantic cache configuration.
type CacheConfig struct {
	TTL Duration `koanf:"ttl"`
	// SimilarityThreshold is the minimum cosine similarity for a cache hit.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	// MaxEntriesPerTenant bounds cache growth. Zero means unbounded.
	MaxEntriesPerTenant int `koanf:"max_entries_per_tenant"`
}

// QueryConfig holds query pipeline configuration.
type QueryConfig struct {
	// Timeout bounds the whole cache-retrieve-generate pipeline.
	Timeout Duration `koanf:"timeout"`
	// DefaultTopK is used when a query request omits top_k.
	DefaultTopK int `koanf:"default_top_k"`
	// Workers is the size of the shared worker pool for blocking
	// embedding, search, and storage calls.
	Workers int `koanf:"workers"`
}

// NewDefaultConfig returns config with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
			RateLimit:       0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			ServiceName:    "retrieverd",
			ServiceVersion: "0.1.0",
			Insecure:       true,
			SampleRate:     1.0,
			ExportInterval: Duration(15 * time.Second),
		},
		Embedding: EmbeddingConfig{
			Provider: "tei",
			BaseURL:  "http://localhost:8081",
			Model:    "BAAI/bge-small-en-v1.5",
		},
		Generation: GenerationConfig{
			BaseURL: "http://localhost:8082/v1",
			Model:   "phi-3-mini",
		},
		Store: StoreConfig{
			Path: "~/.local/share/retrieverd/vectorstores",
		},
		Cache: CacheConfig{
			TTL:                 Duration(30 * time.Minute),
			SimilarityThreshold: 0.92,
			MaxEntriesPerTenant: 10000,
		},
		Query: QueryConfig{
			Timeout:     Duration(30 * time.Second),
			DefaultTopK: 4,
			Workers:     16,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be in 1-65535, got %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("%w: server.shutdown_timeout must be positive", ErrInvalidConfig)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging.format must be json or console, got %q", ErrInvalidConfig, c.Logging.Format)
	}
	switch c.Embedding.Provider {
	case "tei", "openai":
	default:
		return fmt.Errorf("%w: embedding.provider must be tei or openai, got %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("%w: embedding.base_url is required", ErrInvalidConfig)
	}
	if c.Generation.BaseURL == "" {
		return fmt.Errorf("%w: generation.base_url is required", ErrInvalidConfig)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required", ErrInvalidConfig)
	}
	if c.Cache.TTL.Duration() <= 0 {
		return fmt.Errorf("%w: cache.ttl must be positive", ErrInvalidConfig)
	}
	if c.Cache.SimilarityThreshold <= 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: cache.similarity_threshold must be in (0, 1], got %f", ErrInvalidConfig, c.Cache.SimilarityThreshold)
	}
	if c.Query.Timeout.Duration() <= 0 {
		return fmt.Errorf("%w: query.timeout must be positive", ErrInvalidConfig)
	}
	if c.Query.DefaultTopK <= 0 {
		return fmt.Errorf("%w: query.default_top_k must be positive", ErrInvalidConfig)
	}
	if c.Query.Workers <= 0 {
		return fmt.Errorf("%w: query.workers must be positive", ErrInvalidConfig)
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("%w: telemetry.endpoint is required when telemetry is enabled", ErrInvalidConfig)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("%w: telemetry.sample_rate must be in [0, 1], got %f", ErrInvalidConfig, c.Telemetry.SampleRate)
		}
	}
	return nil
}
