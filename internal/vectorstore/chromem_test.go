package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoindex/pkg/types"
)

func testChunk(id, rel string, start int) types.CodeChunk {
	return types.CodeChunk{
		ID:           id,
		Content:      "content of " + id,
		FilePath:     "/repo/" + rel,
		RelativePath: rel,
		Language:     "go",
		StartLine:    start,
		EndLine:      start + 2,
		Kind:         types.ChunkFunction,
		Name:         "fn" + id,
	}
}

func TestChromemStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewChromemStore("", false, nil)
	require.NoError(t, err)
	defer s.Close()

	const coll = "myrepo"
	require.NoError(t, s.EnsureCollection(ctx, coll, 3))
	require.NoError(t, s.EnsureCollection(ctx, coll, 3), "ensure is idempotent")
	assert.ErrorIs(t, s.EnsureCollection(ctx, coll, 4), ErrDimensionMismatch)

	chunks := []types.CodeChunk{
		testChunk("a1", "a.go", 1),
		testChunk("a2", "a.go", 10),
		testChunk("b1", "pkg/b.go", 1),
	}
	vectors := [][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 0, 1}}
	require.NoError(t, s.UpsertChunks(ctx, coll, chunks, vectors))

	n, err := s.Count(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	t.Run("upsert overwrites by id", func(t *testing.T) {
		require.NoError(t, s.UpsertChunks(ctx, coll, chunks[:1], vectors[:1]))
		n, err := s.Count(ctx, coll)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("search orders by similarity", func(t *testing.T) {
		hits, err := s.Search(ctx, coll, []float32{1, 0, 0}, 10, 0)
		require.NoError(t, err)
		require.Len(t, hits, 3, "limit is capped at the collection size")
		assert.Equal(t, "a1", hits[0].Chunk.ID)
		assert.Equal(t, "a2", hits[1].Chunk.ID)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-5)

		got := hits[0].Chunk
		assert.Equal(t, "a.go", got.RelativePath)
		assert.Equal(t, "/repo/a.go", got.FilePath)
		assert.Equal(t, 1, got.StartLine)
		assert.Equal(t, 3, got.EndLine)
		assert.Equal(t, types.ChunkFunction, got.Kind)
		assert.Equal(t, "content of a1", got.Content)
	})

	t.Run("min score filters", func(t *testing.T) {
		hits, err := s.Search(ctx, coll, []float32{1, 0, 0}, 10, 0.9)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("wrong query dimension", func(t *testing.T) {
		_, err := s.Search(ctx, coll, []float32{1, 0}, 10, 0)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("wrong upsert dimension", func(t *testing.T) {
		err := s.UpsertChunks(ctx, coll, chunks[:1], [][]float32{{1, 0}})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("delete by file path", func(t *testing.T) {
		require.NoError(t, s.DeleteByFilePath(ctx, coll, "a.go"))
		n, err := s.Count(ctx, coll)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		hits, err := s.Search(ctx, coll, []float32{1, 0, 0}, 5, -1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "pkg/b.go", hits[0].Chunk.RelativePath)
	})

	t.Run("delete collection", func(t *testing.T) {
		require.NoError(t, s.DeleteCollection(ctx, coll))
		require.NoError(t, s.DeleteCollection(ctx, coll), "missing collection is not an error")
		_, err := s.Count(ctx, coll)
		assert.ErrorIs(t, err, ErrCollectionNotFound)
		_, err = s.Search(ctx, coll, []float32{1, 0, 0}, 5, 0)
		assert.ErrorIs(t, err, ErrCollectionNotFound)
	})
}

func TestChromemStoreEmptyCollectionSearch(t *testing.T) {
	ctx := context.Background()
	s, err := NewChromemStore("", false, nil)
	require.NoError(t, err)

	require.NoError(t, s.EnsureCollection(ctx, "empty", 2))
	hits, err := s.Search(ctx, "empty", []float32{1, 0}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemStorePersistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewChromemStore(dir, false, nil)
	require.NoError(t, err)
	require.NoError(t, s.EnsureCollection(ctx, "repo", 2))
	require.NoError(t, s.UpsertChunks(ctx, "repo", []types.CodeChunk{testChunk("x", "x.go", 1)}, [][]float32{{0, 1}}))
	require.NoError(t, s.Close())

	reopened, err := NewChromemStore(dir, false, nil)
	require.NoError(t, err)
	n, err := reopened.Count(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestValidateUpsert(t *testing.T) {
	chunks := []types.CodeChunk{testChunk("a", "a.go", 1)}
	assert.ErrorIs(t, ValidateUpsert(chunks, nil, 0), ErrInvalidInput)
	assert.ErrorIs(t, ValidateUpsert([]types.CodeChunk{{}}, [][]float32{{1}}, 0), ErrInvalidInput)
	assert.ErrorIs(t, ValidateUpsert(chunks, [][]float32{{1, 2}}, 3), ErrDimensionMismatch)
	assert.NoError(t, ValidateUpsert(chunks, [][]float32{{1, 2, 3}}, 3))
}

func TestValidateSearch(t *testing.T) {
	assert.ErrorIs(t, ValidateSearch(nil, 5), ErrInvalidInput)
	assert.ErrorIs(t, ValidateSearch([]float32{1}, 0), ErrInvalidInput)
	assert.NoError(t, ValidateSearch([]float32{1}, 1))
}
