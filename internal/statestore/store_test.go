package statestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoindex/pkg/types"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)

	boltStore, err := NewBoltStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = fileStore.Close()
		_ = boltStore.Close()
	})

	return map[string]Store{"file": fileStore, "bolt": boltStore}
}

func sampleManifest() *types.IndexManifest {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	m := types.NewManifest("My-Repo", "/src/my-repo")
	m.CreatedAt = now
	m.UpdatedAt = now
	m.EmbeddingModel = "local-hash-v1"
	m.Files["a.py"] = types.IndexedFile{
		RelativePath: "a.py",
		Fingerprint:  "abc",
		ModTime:      now,
		IndexedAt:    now,
		ChunkCount:   2,
		ChunkIDs:     []string{"c1", "c2"},
	}
	return m
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(ctx, "My-Repo")
			require.ErrorIs(t, err, ErrNotFound)

			want := sampleManifest()
			require.NoError(t, store.Save(ctx, "My-Repo", want))

			// Any display name that sanitizes to the same key resolves to the same manifest.
			got, err := store.Load(ctx, "MYREPO")
			require.NoError(t, err)
			assert.Equal(t, want.Repository, got.Repository)
			assert.Equal(t, want.Files["a.py"].ChunkIDs, got.Files["a.py"].ChunkIDs)
			assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))

			keys, err := store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"myrepo"}, keys)
		})
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			m := sampleManifest()
			require.NoError(t, store.Save(ctx, "repo", m))

			m.Files = map[string]types.IndexedFile{
				"b.py": {RelativePath: "b.py", Fingerprint: "def", ChunkCount: 1, ChunkIDs: []string{"c3"}},
			}
			require.NoError(t, store.Save(ctx, "repo", m))

			got, err := store.Load(ctx, "repo")
			require.NoError(t, err)
			assert.Len(t, got.Files, 1)
			assert.Contains(t, got.Files, "b.py")
		})
	}
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(ctx, "repo", sampleManifest()))
			require.NoError(t, store.Delete(ctx, "repo"))

			_, err := store.Load(ctx, "repo")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, store.Delete(ctx, "repo"), "deleting twice is fine")
		})
	}
}

func TestStore_NilFilesNormalized(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(ctx, "empty", &types.IndexManifest{Repository: "empty"}))
			got, err := store.Load(ctx, "empty")
			require.NoError(t, err)
			assert.NotNil(t, got.Files)
		})
	}
}
