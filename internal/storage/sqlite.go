package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/repoindex/internal/statestore"
	"github.com/dshills/repoindex/internal/vectorstore"
	"github.com/dshills/repoindex/pkg/types"
)

// ErrNotFound is returned when a requested entity doesn't exist
var ErrNotFound = errors.New("not found")

// Compile-time checks that SQLiteStorage serves as both backends.
var (
	_ statestore.Store  = (*SQLiteStorage)(nil)
	_ vectorstore.Store = (*SQLiteStorage)(nil)
)

// SQLiteStorage keeps manifests and chunk vectors in one SQLite database.
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Manifest operations

// Load implements statestore.Store.
func (s *SQLiteStorage) Load(ctx context.Context, name string) (*types.IndexManifest, error) {
	var document string
	err := s.db.QueryRowContext(ctx, "SELECT document FROM manifests WHERE repo_key = ?", statestore.Key(name)).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, statestore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	var m types.IndexManifest
	if err := json.Unmarshal([]byte(document), &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if m.Files == nil {
		m.Files = make(map[string]types.IndexedFile)
	}
	return &m, nil
}

// Save implements statestore.Store.
func (s *SQLiteStorage) Save(ctx context.Context, name string, manifest *types.IndexManifest) error {
	document, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	query := `
		INSERT INTO manifests (repo_key, repository, document, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(repo_key) DO UPDATE SET
			repository = excluded.repository,
			document = excluded.document,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, statestore.Key(name), manifest.Repository, string(document), time.Now()); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	return nil
}

// Delete implements statestore.Store.
func (s *SQLiteStorage) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM manifests WHERE repo_key = ?", statestore.Key(name)); err != nil {
		return fmt.Errorf("failed to delete manifest: %w", err)
	}
	return nil
}

// List implements statestore.Store.
func (s *SQLiteStorage) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT repo_key FROM manifests ORDER BY repo_key")
	if err != nil {
		return nil, fmt.Errorf("failed to list manifests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Collection operations

func (s *SQLiteStorage) collectionDimension(ctx context.Context, q querier, name string) (int, error) {
	var dim int
	err := q.QueryRowContext(ctx, "SELECT dimension FROM collections WHERE name = ?", name).Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, name)
	}
	if err != nil {
		return 0, err
	}
	return dim, nil
}

// EnsureCollection implements vectorstore.Store.
func (s *SQLiteStorage) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", vectorstore.ErrInvalidInput)
	}
	dim, err := s.collectionDimension(ctx, s.db, name)
	switch {
	case err == nil:
		if dim != dimension {
			return fmt.Errorf("%w: collection %s has %d dimensions, want %d",
				vectorstore.ErrDimensionMismatch, name, dim, dimension)
		}
		return nil
	case errors.Is(err, vectorstore.ErrCollectionNotFound):
	default:
		return fmt.Errorf("failed to check collection: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO collections (name, dimension, created_at) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING",
		name, dimension, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// DeleteCollection implements vectorstore.Store. Chunks are removed by the
// foreign key cascade.
func (s *SQLiteStorage) DeleteCollection(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Chunk operations

// UpsertChunks implements vectorstore.Store. All rows are written in one
// transaction so a failed batch leaves nothing behind.
func (s *SQLiteStorage) UpsertChunks(ctx context.Context, collection string, chunks []types.CodeChunk, vectors [][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	dim, err := s.collectionDimension(ctx, tx, collection)
	if err != nil {
		return err
	}
	if err := vectorstore.ValidateUpsert(chunks, vectors, dim); err != nil {
		return err
	}

	query := `
		INSERT INTO chunks (collection, id, relative_path, file_path, language, start_line, end_line,
			content, vector, kind, name, context_before, token_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			relative_path = excluded.relative_path,
			file_path = excluded.file_path,
			language = excluded.language,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			content = excluded.content,
			vector = excluded.vector,
			kind = excluded.kind,
			name = excluded.name,
			context_before = excluded.context_before,
			token_count = excluded.token_count
	`
	for i := range chunks {
		c := &chunks[i]
		_, err := tx.ExecContext(ctx, query,
			collection, c.ID, c.RelativePath, c.FilePath, c.Language, c.StartLine, c.EndLine,
			c.Content, serializeVector(vectors[i]), string(c.Kind), c.Name, c.ContextBefore, c.TokenCount)
		if err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteByFilePath implements vectorstore.Store.
func (s *SQLiteStorage) DeleteByFilePath(ctx context.Context, collection, relativePath string) error {
	if _, err := s.collectionDimension(ctx, s.db, collection); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE collection = ? AND relative_path = ?", collection, relativePath)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", relativePath, err)
	}
	return nil
}

// Count implements vectorstore.Store.
func (s *SQLiteStorage) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.collectionDimension(ctx, s.db, collection); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE collection = ?", collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// GetChunk returns a stored chunk by id.
func (s *SQLiteStorage) GetChunk(ctx context.Context, collection, id string) (*types.CodeChunk, error) {
	query := `
		SELECT id, relative_path, file_path, language, start_line, end_line, content, kind, name, context_before, token_count
		FROM chunks WHERE collection = ? AND id = ?
	`
	c, err := scanChunk(s.db.QueryRowContext(ctx, query, collection, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return c, nil
}

// Search implements vectorstore.Store. Similarity is computed in Go over
// every vector in the collection.
func (s *SQLiteStorage) Search(ctx context.Context, collection string, vector []float32, limit int, minScore float64) ([]types.SearchHit, error) {
	if err := vectorstore.ValidateSearch(vector, limit); err != nil {
		return nil, err
	}
	dim, err := s.collectionDimension(ctx, s.db, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			vectorstore.ErrDimensionMismatch, len(vector), dim)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, vector FROM chunks WHERE collection = ?", collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	candidates, err := computeSimilarityScores(rows, vector, minScore)
	_ = rows.Close()
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	hits := make([]types.SearchHit, 0, len(candidates))
	for _, cand := range candidates {
		chunk, err := s.GetChunk(ctx, collection, cand.chunkID)
		if err != nil {
			return nil, err
		}
		hits = append(hits, types.SearchHit{Chunk: *chunk, Score: cand.score})
	}
	return hits, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row rowScanner) (*types.CodeChunk, error) {
	var (
		c        types.CodeChunk
		language sql.NullString
		kind     string
	)
	err := row.Scan(&c.ID, &c.RelativePath, &c.FilePath, &language, &c.StartLine, &c.EndLine,
		&c.Content, &kind, &c.Name, &c.ContextBefore, &c.TokenCount)
	if err != nil {
		return nil, err
	}
	c.Language = language.String
	c.Kind = types.ChunkKind(strings.TrimSpace(kind))
	return &c, nil
}
