// Package config loads repoindex settings from defaults, an optional YAML
// file and REPOINDEX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Backend names.
const (
	VectorChromem = "chromem"
	VectorQdrant  = "qdrant"
	VectorSQLite  = "sqlite"

	StateFile   = "file"
	StateBolt   = "bolt"
	StateSQLite = "sqlite"
)

// Config is the complete repoindex configuration.
type Config struct {
	// DataDir holds every on-disk artifact unless a section overrides it.
	DataDir string `koanf:"data_dir"`

	Index       IndexConfig       `koanf:"index"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	State       StateConfig       `koanf:"state"`
	Search      SearchConfig      `koanf:"search"`
	Logging     LoggingConfig     `koanf:"logging"`
	Metrics     MetricsConfig     `koanf:"metrics"`
}

// IndexConfig controls discovery and the indexing pipeline.
type IndexConfig struct {
	Include     []string `koanf:"include"`
	Exclude     []string `koanf:"exclude"`
	Workers     int      `koanf:"workers"`
	BatchSize   int      `koanf:"batch_size"`
	MaxFileSize int64    `koanf:"max_file_size"`
}

// EmbeddingConfig selects the embedding provider. An empty provider is
// detected from the environment.
type EmbeddingConfig struct {
	Provider  string   `koanf:"provider"`
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	Dimension int      `koanf:"dimension"`
	CacheSize int      `koanf:"cache_size"`
	Timeout   Duration `koanf:"timeout"`
}

// VectorStoreConfig selects where chunk vectors live.
type VectorStoreConfig struct {
	Backend  string       `koanf:"backend"`
	Path     string       `koanf:"path"`
	Compress bool         `koanf:"compress"`
	Qdrant   QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig holds the Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	APIKey Secret `koanf:"api_key"`
	UseTLS bool   `koanf:"use_tls"`
}

// StateConfig selects where manifests live.
type StateConfig struct {
	Backend string `koanf:"backend"`
	// Path is a directory for the file backend and a database file otherwise.
	Path string `koanf:"path"`
}

type SearchConfig struct {
	DefaultLimit int      `koanf:"default_limit"`
	MaxLimit     int      `koanf:"max_limit"`
	MinScore     float64  `koanf:"min_score"`
	CacheSize    int      `koanf:"cache_size"`
	CacheTTL     Duration `koanf:"cache_ttl"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig controls the optional Prometheus endpoint of the serve command.
type MetricsConfig struct {
	Addr string `koanf:"addr"` // empty disables the listener
}

// Default returns the built-in configuration. Paths below DataDir are
// resolved by Resolve once DataDir is final.
func Default() Config {
	return Config{
		DataDir: defaultDataDir(),
		Index: IndexConfig{
			Workers:     4,
			BatchSize:   32,
			MaxFileSize: 1 << 20,
		},
		Embedding: EmbeddingConfig{
			CacheSize: 1000,
			Timeout:   Duration(30 * time.Second),
		},
		VectorStore: VectorStoreConfig{
			Backend: VectorChromem,
			Qdrant: QdrantConfig{
				Host: "localhost",
				Port: 6334,
			},
		},
		State: StateConfig{Backend: StateFile},
		Search: SearchConfig{
			DefaultLimit: 10,
			MaxLimit:     100,
			MinScore:     0.3,
			CacheSize:    256,
			CacheTTL:     Duration(5 * time.Minute),
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".repoindex"
	}
	return filepath.Join(home, ".repoindex")
}

// Resolve fills storage paths left empty with locations under DataDir.
func (c *Config) Resolve() {
	if c.VectorStore.Path == "" {
		switch c.VectorStore.Backend {
		case VectorChromem:
			c.VectorStore.Path = filepath.Join(c.DataDir, "vectors")
		case VectorSQLite:
			c.VectorStore.Path = filepath.Join(c.DataDir, "repoindex.db")
		}
	}
	if c.State.Path == "" {
		switch c.State.Backend {
		case StateFile:
			c.State.Path = filepath.Join(c.DataDir, "manifests")
		case StateBolt:
			c.State.Path = filepath.Join(c.DataDir, "manifests.bolt")
		case StateSQLite:
			c.State.Path = filepath.Join(c.DataDir, "repoindex.db")
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.VectorStore.Backend {
	case VectorChromem, VectorQdrant, VectorSQLite:
	default:
		return fmt.Errorf("unknown vectorstore backend %q", c.VectorStore.Backend)
	}
	switch c.State.Backend {
	case StateFile, StateBolt, StateSQLite:
	default:
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}
	switch c.Embedding.Provider {
	case "", "local", "ollama", "openai", "jina":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}

	if c.Index.Workers <= 0 {
		return fmt.Errorf("index workers must be positive, got %d", c.Index.Workers)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index batch size must be positive, got %d", c.Index.BatchSize)
	}
	if c.Index.MaxFileSize <= 0 {
		return errors.New("index max file size must be positive")
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("search min score must be within [0, 1], got %v", c.Search.MinScore)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("invalid search limits: default %d, max %d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.VectorStore.Backend == VectorQdrant && (c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535) {
		return fmt.Errorf("invalid qdrant port: %d (must be 1-65535)", c.VectorStore.Qdrant.Port)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}
	return nil
}
