package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/repoindex/internal/statestore"
	"github.com/dshills/repoindex/pkg/types"
)

// ErrNotIndexed is returned when a repository has no manifest.
var ErrNotIndexed = errors.New("repository not indexed")

// Status summarizes a repository's stored manifest.
type Status struct {
	Repository        string    `json:"repository"`
	Collection        string    `json:"collection"`
	RootPath          string    `json:"root_path"`
	Revision          string    `json:"revision,omitempty"`
	Files             int       `json:"files"`
	Chunks            int       `json:"chunks"`
	EmbeddingProvider string    `json:"embedding_provider"`
	EmbeddingModel    string    `json:"embedding_model"`
	Dimension         int       `json:"dimension"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Indexing          bool      `json:"indexing"`
	ModelMismatch     bool      `json:"model_mismatch"`
}

// Status returns the manifest summary for the named repository, or
// ErrNotIndexed.
func (idx *Indexer) Status(ctx context.Context, name string) (*Status, error) {
	m, err := idx.state.Load(ctx, name)
	if errors.Is(err, statestore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexed, name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	return idx.status(m), nil
}

// List returns the status of every repository with a stored manifest.
func (idx *Indexer) List(ctx context.Context) ([]Status, error) {
	keys, err := idx.state.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing manifests: %w", err)
	}

	out := make([]Status, 0, len(keys))
	for _, key := range keys {
		m, err := idx.state.Load(ctx, key)
		if errors.Is(err, statestore.ErrNotFound) {
			continue // deleted since List
		}
		if err != nil {
			return nil, fmt.Errorf("loading manifest %s: %w", key, err)
		}
		out = append(out, *idx.status(m))
	}
	return out, nil
}

func (idx *Indexer) status(m *types.IndexManifest) *Status {
	collection := m.Collection
	if collection == "" {
		collection = types.SanitizeName(m.Repository)
	}
	return &Status{
		Repository:        m.Repository,
		Collection:        collection,
		RootPath:          m.RootPath,
		Revision:          m.Revision,
		Files:             len(m.Files),
		Chunks:            m.TotalChunks(),
		EmbeddingProvider: m.EmbeddingProvider,
		EmbeddingModel:    m.EmbeddingModel,
		Dimension:         m.Dimension,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		Indexing:          idx.locks.get(collection).Held(),
		ModelMismatch:     idx.modelChanged(m),
	}
}

// Reset deletes the repository's manifest and drops its whole collection.
// Resetting a repository that was never indexed is not an error.
func (idx *Indexer) Reset(ctx context.Context, name string) error {
	collection := types.SanitizeName(name)
	lock := idx.locks.get(collection)
	if !lock.TryAcquire() {
		return fmt.Errorf("%w: %s", ErrIndexInProgress, name)
	}
	defer lock.Release()

	if err := idx.vectors.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("dropping collection: %w", err)
	}
	if err := idx.state.Delete(ctx, name); err != nil {
		return fmt.Errorf("deleting manifest: %w", err)
	}

	idx.logger.Info("index reset", zap.String("repository", name), zap.String("collection", collection))
	return nil
}
