// Package statestore persists one IndexManifest per repository.
//
// Manifests are keyed by types.SanitizeName of the repository name and are
// always written in full; there is no partial update. Two backends live here:
// FileStore (one JSON document per repository) and BoltStore (a single bbolt
// database). The SQLite backend is provided by internal/storage.
package statestore

import (
	"context"
	"errors"

	"github.com/dshills/repoindex/pkg/types"
)

// ErrNotFound is returned by Load when no manifest exists for a repository.
var ErrNotFound = errors.New("manifest not found")

// Store loads and saves repository manifests.
type Store interface {
	// Load returns the manifest for name, or ErrNotFound.
	Load(ctx context.Context, name string) (*types.IndexManifest, error)
	// Save overwrites the manifest for name.
	Save(ctx context.Context, name string, manifest *types.IndexManifest) error
	// Delete removes the manifest for name. Deleting a missing manifest is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the keys of all stored manifests in sorted order.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Key returns the storage key for a repository name.
func Key(name string) string {
	return types.SanitizeName(name)
}

func normalize(m *types.IndexManifest) *types.IndexManifest {
	if m.Files == nil {
		m.Files = make(map[string]types.IndexedFile)
	}
	return m
}
