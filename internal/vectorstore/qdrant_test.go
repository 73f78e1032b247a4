package vectorstore

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoindex/pkg/types"
)

func TestPointID(t *testing.T) {
	id := PointID("0123456789abcdef0123456789abcdef")
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, PointID("0123456789abcdef0123456789abcdef"))
	assert.NotEqual(t, id, PointID("fedcba9876543210fedcba9876543210"))
}

func TestQdrantPayloadRoundTrip(t *testing.T) {
	chunk := testChunk("c1", "internal/c.go", 7)
	chunk.ContextBefore = "package c"

	content, flat := fromQdrantPayload(toQdrantPayload(chunk))
	got := chunkFromPayload(content, flat)
	chunk.ComputeTokenCount()
	assert.Equal(t, chunk, got)
}

func TestRelativePathFilter(t *testing.T) {
	f := relativePathFilter("a/b.go")
	require.Len(t, f.GetMust(), 1)
	field := f.GetMust()[0].GetField()
	assert.Equal(t, FieldRelativePath, field.GetKey())
	assert.Equal(t, "a/b.go", field.GetMatch().GetKeyword())
}

// newTestQdrant connects to the server named by REPOINDEX_TEST_QDRANT
// (host:port of the gRPC listener) and skips the test when it is unset.
func newTestQdrant(t *testing.T) *QdrantStore {
	t.Helper()
	addr := os.Getenv("REPOINDEX_TEST_QDRANT")
	if addr == "" {
		t.Skip("REPOINDEX_TEST_QDRANT not set")
	}
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := NewQdrantStore(ctx, QdrantConfig{Host: host, Port: port}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestQdrantStore(t *testing.T) {
	store := newTestQdrant(t)
	ctx := context.Background()
	collection := fmt.Sprintf("repoindex_test_%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = store.DeleteCollection(context.Background(), collection) })

	require.NoError(t, store.EnsureCollection(ctx, collection, 3))
	require.NoError(t, store.EnsureCollection(ctx, collection, 3))
	assert.ErrorIs(t, store.EnsureCollection(ctx, collection, 4), ErrDimensionMismatch)

	chunks := []types.CodeChunk{
		testChunk("a1", "a.go", 1),
		testChunk("a2", "a.go", 10),
		testChunk("b1", "pkg/b.go", 1),
	}
	vectors := [][]float32{
		{1, 0, 0},
		{0.8, 0.6, 0},
		{0, 0, 1},
	}
	require.NoError(t, store.UpsertChunks(ctx, collection, chunks, vectors))
	// Re-upserting the same IDs overwrites.
	require.NoError(t, store.UpsertChunks(ctx, collection, chunks, vectors))

	n, err := store.Count(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	t.Run("search orders by score and applies threshold", func(t *testing.T) {
		hits, err := store.Search(ctx, collection, []float32{1, 0, 0}, 10, 0.5)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "a1", hits[0].Chunk.ID)
		assert.Equal(t, "a2", hits[1].Chunk.ID)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
		assert.InDelta(t, 0.8, hits[1].Score, 1e-5)
		assert.Equal(t, "a.go", hits[0].Chunk.RelativePath)
		assert.Equal(t, "content of a1", hits[0].Chunk.Content)
	})

	t.Run("search limit", func(t *testing.T) {
		hits, err := store.Search(ctx, collection, []float32{1, 0, 0}, 1, -1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "a1", hits[0].Chunk.ID)
	})

	t.Run("delete by file path", func(t *testing.T) {
		require.NoError(t, store.DeleteByFilePath(ctx, collection, "a.go"))
		n, err := store.Count(ctx, collection)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		hits, err := store.Search(ctx, collection, []float32{1, 0, 0}, 10, -1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "pkg/b.go", hits[0].Chunk.RelativePath)

		// Deleting a path with no points is not an error.
		assert.NoError(t, store.DeleteByFilePath(ctx, collection, "missing.go"))
	})

	t.Run("delete collection", func(t *testing.T) {
		require.NoError(t, store.DeleteCollection(ctx, collection))
		require.NoError(t, store.DeleteCollection(ctx, collection))
		_, err := store.Count(ctx, collection)
		assert.ErrorIs(t, err, ErrCollectionNotFound)
	})
}
