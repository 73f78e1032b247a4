// Package app builds the repoindex services from a loaded configuration.
// Commands and the MCP server share one App per process.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dshills/repoindex/internal/chunker"
	"github.com/dshills/repoindex/internal/config"
	"github.com/dshills/repoindex/internal/discovery"
	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/indexer"
	"github.com/dshills/repoindex/internal/searcher"
	"github.com/dshills/repoindex/internal/statestore"
	"github.com/dshills/repoindex/internal/storage"
	"github.com/dshills/repoindex/internal/vectorstore"
)

// App holds the wired services.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Embedder embedder.Embedder
	Vectors  vectorstore.Store
	State    statestore.Store
	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher
	// Registry collects indexing metrics; serve exposes it on /metrics.
	Registry *prometheus.Registry

	closers []func() error
}

// New opens the configured backends. Close releases them.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	ready := false
	defer func() {
		if !ready {
			_ = a.Close()
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	var err error
	a.Embedder, err = embedder.New(embedderConfig(cfg.Embedding))
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	a.closers = append(a.closers, a.Embedder.Close)

	// One SQLite handle serves both roles when both point at the same file.
	var shared *storage.SQLiteStorage
	openSQLite := func(path string) (*storage.SQLiteStorage, error) {
		if shared != nil {
			return shared, nil
		}
		if err := ensureParent(path); err != nil {
			return nil, err
		}
		db, err := storage.NewSQLiteStorage(path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		shared = db
		return db, nil
	}
	sameSQLite := cfg.VectorStore.Backend == config.VectorSQLite &&
		cfg.State.Backend == config.StateSQLite &&
		filepath.Clean(cfg.VectorStore.Path) == filepath.Clean(cfg.State.Path)

	if a.Vectors, err = a.openVectors(ctx, cfg.VectorStore, openSQLite); err != nil {
		return nil, err
	}
	if !sameSQLite {
		shared = nil
	}
	if a.State, err = a.openState(cfg.State, openSQLite); err != nil {
		return nil, err
	}

	disc := discovery.New(
		discovery.WithMaxFileSize(cfg.Index.MaxFileSize),
		discovery.WithLogger(logger.Named("discovery")),
	)
	a.Indexer = indexer.New(a.Embedder, a.Vectors, a.State,
		indexer.WithConfig(indexer.Config{
			Workers:         cfg.Index.Workers,
			BatchSize:       cfg.Index.BatchSize,
			IncludePatterns: cfg.Index.Include,
			ExcludePatterns: cfg.Index.Exclude,
		}),
		indexer.WithRegistry(chunker.NewDefaultRegistry(chunker.Options{})),
		indexer.WithDiscoverer(disc),
		indexer.WithLogger(logger.Named("indexer")),
		indexer.WithMetrics(indexer.NewMetrics(a.Registry)),
	)
	a.Searcher = searcher.New(a.Embedder, a.Vectors, a.State,
		searcher.WithConfig(searcher.Config{
			DefaultLimit: cfg.Search.DefaultLimit,
			MaxLimit:     cfg.Search.MaxLimit,
			MinScore:     cfg.Search.MinScore,
			CacheSize:    cfg.Search.CacheSize,
			CacheTTL:     cfg.Search.CacheTTL.Duration(),
		}),
		searcher.WithLogger(logger.Named("searcher")),
	)

	logger.Debug("services ready",
		zap.String("embedding_provider", a.Embedder.Provider()),
		zap.String("embedding_model", a.Embedder.Model()),
		zap.String("vectorstore", cfg.VectorStore.Backend),
		zap.String("state", cfg.State.Backend),
	)
	ready = true
	return a, nil
}

func (a *App) openVectors(ctx context.Context, cfg config.VectorStoreConfig, openSQLite func(string) (*storage.SQLiteStorage, error)) (vectorstore.Store, error) {
	switch cfg.Backend {
	case config.VectorChromem:
		s, err := vectorstore.NewChromemStore(cfg.Path, cfg.Compress, a.Logger.Named("chromem"))
		if err != nil {
			return nil, fmt.Errorf("opening chromem store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.VectorQdrant:
		s, err := vectorstore.NewQdrantStore(ctx, vectorstore.QdrantConfig{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey.Value(),
			UseTLS: cfg.Qdrant.UseTLS,
		}, a.Logger.Named("qdrant"))
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.VectorSQLite:
		s, err := openSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite vector store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown vectorstore backend %q", cfg.Backend)
	}
}

func (a *App) openState(cfg config.StateConfig, openSQLite func(string) (*storage.SQLiteStorage, error)) (statestore.Store, error) {
	switch cfg.Backend {
	case config.StateFile:
		s, err := statestore.NewFileStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.StateBolt:
		if err := ensureParent(cfg.Path); err != nil {
			return nil, err
		}
		s, err := statestore.NewBoltStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.StateSQLite:
		s, err := openSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite state store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func embedderConfig(cfg config.EmbeddingConfig) embedder.Config {
	return embedder.Config{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey.Value(),
		Dimension: cfg.Dimension,
		CacheSize: cfg.CacheSize,
		Timeout:   cfg.Timeout.Duration(),
	}
}

func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	return nil
}
