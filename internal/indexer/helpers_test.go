package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dshills/repoindex/internal/chunker"
	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/statestore"
	"github.com/dshills/repoindex/internal/vectorstore"
	"github.com/dshills/repoindex/pkg/types"
)

// testEmbedder wraps the deterministic local provider with failure hooks.
type testEmbedder struct {
	embedder.Embedder
	model       string
	ensureErr   error
	failOnBatch int32 // 1-based batch number that fails; 0 never
	batches     atomic.Int32
	texts       atomic.Int32
}

func newTestEmbedder() *testEmbedder {
	return &testEmbedder{Embedder: embedder.NewLocalProvider(embedder.Config{}, nil)}
}

func (e *testEmbedder) EnsureModelAvailable(ctx context.Context) error {
	if e.ensureErr != nil {
		return e.ensureErr
	}
	return e.Embedder.EnsureModelAvailable(ctx)
}

func (e *testEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	n := e.batches.Add(1)
	if e.failOnBatch > 0 && n == e.failOnBatch {
		return nil, errors.New("embedding backend exploded")
	}
	e.texts.Add(int32(len(req.Texts)))
	return e.Embedder.GenerateBatch(ctx, req)
}

func (e *testEmbedder) Model() string {
	if e.model != "" {
		return e.model
	}
	return e.Embedder.Model()
}

// failingChunker fails for one relative path and line-chunks the rest.
type failingChunker struct {
	failPath string
	next     chunker.Chunker
}

func (c failingChunker) ChunkCode(content, path, relativePath, language string) ([]types.CodeChunk, error) {
	if relativePath == c.failPath {
		return nil, errors.New("parser crashed")
	}
	return c.next.ChunkCode(content, path, relativePath, language)
}

type fixture struct {
	root    string
	emb     *testEmbedder
	vectors *vectorstore.ChromemStore
	state   *statestore.FileStore
	idx     *Indexer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{root: t.TempDir(), emb: newTestEmbedder()}

	var err error
	f.vectors, err = vectorstore.NewChromemStore("", false, nil)
	require.NoError(t, err)
	f.state, err = statestore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f.idx = New(f.emb, f.vectors, f.state, opts...)
	return f
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) remove(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(f.root, filepath.FromSlash(rel))))
}

func (f *fixture) index(t *testing.T) *types.IndexingResult {
	t.Helper()
	res, err := f.idx.Index(context.Background(), IndexRequest{Path: f.root, Name: "repo"})
	require.NoError(t, err)
	require.True(t, res.Success)
	return res
}

func (f *fixture) manifest(t *testing.T) *types.IndexManifest {
	t.Helper()
	m, err := f.state.Load(context.Background(), "repo")
	require.NoError(t, err)
	return m
}

// requireConsistent checks that the collection holds exactly the manifest's chunks.
func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	m := f.manifest(t)
	n, err := f.vectors.Count(context.Background(), "repo")
	require.NoError(t, err)
	require.Equal(t, m.TotalChunks(), n, "collection size matches manifest")
}

func lines(n int, prefix string) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		b.WriteString(prefix)
		b.WriteString(strings.Repeat("x", i))
		b.WriteString("\n")
	}
	return b.String()
}

func pythonFile(n int, name string) string {
	var b strings.Builder
	b.WriteString("def " + name + "():\n")
	for i := 1; i < n; i++ {
		b.WriteString("    value_" + name + " = " + strings.Repeat("1", i) + "\n")
	}
	return b.String()
}

// cancellingChunker line-chunks every file and, once armed, cancels the run's
// context on its cancelAt-th call.
type cancellingChunker struct {
	next     chunker.Chunker
	cancelAt int32
	cancel   context.CancelFunc
	calls    atomic.Int32
}

func (c *cancellingChunker) arm(cancel context.CancelFunc) {
	c.calls.Store(0)
	c.cancel = cancel
}

func (c *cancellingChunker) ChunkCode(content, path, relativePath, language string) ([]types.CodeChunk, error) {
	if n := c.calls.Add(1); c.cancel != nil && n == c.cancelAt {
		c.cancel()
	}
	return c.next.ChunkCode(content, path, relativePath, language)
}
