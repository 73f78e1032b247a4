package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoindex/internal/config"
	"github.com/dshills/repoindex/internal/indexer"
	"github.com/dshills/repoindex/internal/searcher"
	"github.com/dshills/repoindex/internal/statestore"
	"github.com/dshills/repoindex/internal/storage"
	"github.com/dshills/repoindex/internal/vectorstore"
)

func testConfig(t *testing.T, vectors, state string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Embedding.Provider = "local"
	cfg.VectorStore.Backend = vectors
	cfg.State.Backend = state
	cfg.Resolve()
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestNewBackends(t *testing.T) {
	tests := []struct {
		vectors, state string
		vectorType     any
		stateType      any
	}{
		{config.VectorChromem, config.StateFile, &vectorstore.ChromemStore{}, &statestore.FileStore{}},
		{config.VectorChromem, config.StateBolt, &vectorstore.ChromemStore{}, &statestore.BoltStore{}},
		{config.VectorSQLite, config.StateSQLite, &storage.SQLiteStorage{}, &storage.SQLiteStorage{}},
		{config.VectorSQLite, config.StateFile, &storage.SQLiteStorage{}, &statestore.FileStore{}},
	}
	for _, tt := range tests {
		t.Run(tt.vectors+"/"+tt.state, func(t *testing.T) {
			a, err := New(context.Background(), testConfig(t, tt.vectors, tt.state), nil)
			require.NoError(t, err)
			defer func() { assert.NoError(t, a.Close()) }()

			assert.IsType(t, tt.vectorType, a.Vectors)
			assert.IsType(t, tt.stateType, a.State)
			assert.Equal(t, "local", a.Embedder.Provider())
		})
	}
}

func TestSQLiteSharedHandle(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, config.VectorSQLite, config.StateSQLite), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Same(t, a.Vectors.(*storage.SQLiteStorage), a.State.(*storage.SQLiteStorage))
}

func TestIndexAndSearchEndToEnd(t *testing.T) {
	for _, backend := range []string{config.VectorChromem, config.VectorSQLite} {
		t.Run(backend, func(t *testing.T) {
			state := config.StateFile
			if backend == config.VectorSQLite {
				state = config.StateSQLite
			}
			a, err := New(context.Background(), testConfig(t, backend, state), nil)
			require.NoError(t, err)
			defer a.Close()

			root := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(root, "retry.go"),
				[]byte("package net\n\n// RetryRequest retries a failed http request with backoff.\nfunc RetryRequest() {}\n"), 0o644))

			res, err := a.Indexer.Index(context.Background(), indexer.IndexRequest{Path: root, Name: "svc"})
			require.NoError(t, err)
			require.True(t, res.Success)

			zero := 0.0
			found, err := a.Searcher.Search(context.Background(), searcher.SearchRequest{
				Repository: "svc",
				Query:      "retry http request backoff",
				MinScore:   &zero,
			})
			require.NoError(t, err)
			require.NotEmpty(t, found.Hits)
			assert.Equal(t, "retry.go", found.Hits[0].Chunk.RelativePath)

			mfs, err := a.Registry.Gather()
			require.NoError(t, err)
			assert.NotEmpty(t, mfs, "indexing metrics registered")
		})
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, config.VectorChromem, config.StateFile), nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
