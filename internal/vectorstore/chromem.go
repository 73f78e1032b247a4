package vectorstore

import (
	"context"
	"fmt"
	"os"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/dshills/repoindex/pkg/types"
)

// ChromemStore is an embedded Store backed by chromem-go. With an empty path
// it is purely in memory; otherwise collections persist under path.
type ChromemStore struct {
	db     *chromem.DB
	logger *zap.Logger

	mu   sync.Mutex
	dims map[string]int
}

var _ Store = (*ChromemStore)(nil)

// NewChromemStore opens a chromem database. compress applies only to the
// persistent form.
func NewChromemStore(path string, compress bool, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	logger.Debug("chromem store opened",
		zap.String("path", path),
		zap.Bool("compress", compress),
		zap.Int("collections", len(db.ListCollections())),
	)

	return &ChromemStore{db: db, logger: logger, dims: make(map[string]int)}, nil
}

// EnsureCollection implements Store. chromem does not record a collection's
// dimension, so it is tracked for collections created or written through
// this store; a reopened collection adopts the dimension of its next write.
func (s *ChromemStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dim, ok := s.dims[name]; ok {
		if dim != dimension {
			return fmt.Errorf("%w: collection %s has %d, requested %d", ErrDimensionMismatch, name, dim, dimension)
		}
		return nil
	}

	if _, err := s.db.GetOrCreateCollection(name, nil, nil); err != nil {
		return fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	s.dims[name] = dimension
	return nil
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	c := s.db.GetCollection(name, nil)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return c, nil
}

func (s *ChromemStore) dimension(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dims[name]
}

// UpsertChunks implements Store.
func (s *ChromemStore) UpsertChunks(ctx context.Context, collection string, chunks []types.CodeChunk, vectors [][]float32) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	if err := ValidateUpsert(chunks, vectors, s.dimension(collection)); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chromem.Document{
			ID:        chunk.ID,
			Content:   chunk.Content,
			Metadata:  chunkPayload(chunk),
			Embedding: vectors[i],
		}
	}

	// Vectors are precomputed, so no embedding concurrency is needed.
	if err := c.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	s.mu.Lock()
	if _, ok := s.dims[collection]; !ok {
		s.dims[collection] = len(vectors[0])
	}
	s.mu.Unlock()

	s.logger.Debug("upserted chunks",
		zap.String("collection", collection),
		zap.Int("count", len(chunks)),
	)
	return nil
}

// DeleteByFilePath implements Store.
func (s *ChromemStore) DeleteByFilePath(ctx context.Context, collection, relativePath string) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, map[string]string{FieldRelativePath: relativePath}, nil); err != nil {
		return fmt.Errorf("deleting %s from %s: %w", relativePath, collection, err)
	}
	return nil
}

// DeleteCollection implements Store.
func (s *ChromemStore) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	delete(s.dims, name)
	s.mu.Unlock()

	if s.db.GetCollection(name, nil) == nil {
		return nil
	}
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

// Search implements Store.
func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, limit int, minScore float64) ([]types.SearchHit, error) {
	if err := ValidateSearch(vector, limit); err != nil {
		return nil, err
	}
	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if dim := s.dimension(collection); dim > 0 && dim != len(vector) {
		return nil, fmt.Errorf("%w: query has %d, collection has %d", ErrDimensionMismatch, len(vector), dim)
	}

	// chromem requires nResults <= document count.
	count := c.Count()
	if count == 0 {
		return []types.SearchHit{}, nil
	}
	if limit > count {
		limit = count
	}

	results, err := c.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	hits := make([]types.SearchHit, 0, len(results))
	for _, r := range results {
		score := float64(r.Similarity)
		if score < minScore {
			continue
		}
		hits = append(hits, types.SearchHit{
			Chunk: chunkFromPayload(r.Content, r.Metadata),
			Score: score,
		})
	}
	return hits, nil
}

// Count implements Store.
func (s *ChromemStore) Count(ctx context.Context, collection string) (int, error) {
	c, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

// Close implements Store. chromem persists on every write, so there is
// nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}
