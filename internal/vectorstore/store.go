// Package vectorstore defines the vector database gateway used by the
// indexer and searcher, with chromem-go (embedded) and Qdrant backends.
//
// A collection holds the chunk vectors of one repository. Chunk IDs are
// primary keys: upserting a chunk with an existing ID overwrites it. Every
// stored point carries the chunk's relative path so a file's vectors can be
// deleted without knowing their IDs.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/repoindex/pkg/types"
)

var (
	// ErrCollectionNotFound is returned when an operation targets a collection
	// that was never ensured.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrDimensionMismatch is returned when a vector does not match the
	// collection's dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidInput is returned for malformed upsert or search arguments.
	ErrInvalidInput = errors.New("invalid input")
)

// Payload keys stored with every point.
const (
	FieldChunkID       = "chunk_id"
	FieldRelativePath  = "relative_path"
	FieldFilePath      = "file_path"
	FieldLanguage      = "language"
	FieldStartLine     = "start_line"
	FieldEndLine       = "end_line"
	FieldKind          = "kind"
	FieldName          = "name"
	FieldContextBefore = "context_before"
)

// Store is the vector database gateway.
type Store interface {
	// EnsureCollection creates the collection if it does not exist. It is
	// idempotent and fails with ErrDimensionMismatch if the collection exists
	// with a different dimension.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// UpsertChunks stores chunks[i] with vectors[i].
	UpsertChunks(ctx context.Context, collection string, chunks []types.CodeChunk, vectors [][]float32) error

	// DeleteByFilePath removes every point whose relative path equals relativePath.
	DeleteByFilePath(ctx context.Context, collection, relativePath string) error

	// DeleteCollection drops the collection. A missing collection is not an error.
	DeleteCollection(ctx context.Context, name string) error

	// Search returns at most limit hits with score >= minScore, ordered by
	// descending cosine similarity.
	Search(ctx context.Context, collection string, vector []float32, limit int, minScore float64) ([]types.SearchHit, error)

	// Count returns the number of points in the collection.
	Count(ctx context.Context, collection string) (int, error)

	Close() error
}

// ValidateUpsert checks the shape of an UpsertChunks call.
func ValidateUpsert(chunks []types.CodeChunk, vectors [][]float32, dimension int) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks but %d vectors", ErrInvalidInput, len(chunks), len(vectors))
	}
	for i := range chunks {
		if chunks[i].ID == "" {
			return fmt.Errorf("%w: chunk %d has no id", ErrInvalidInput, i)
		}
		if dimension > 0 && len(vectors[i]) != dimension {
			return fmt.Errorf("%w: chunk %s has %d dimensions, collection has %d",
				ErrDimensionMismatch, chunks[i].ID, len(vectors[i]), dimension)
		}
	}
	return nil
}

// ValidateSearch checks the arguments of a Search call.
func ValidateSearch(vector []float32, limit int) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty query vector", ErrInvalidInput)
	}
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrCollectionNotFound)
}
