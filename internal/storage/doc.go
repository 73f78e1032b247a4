// Package storage provides a single-file SQLite backend that serves both as
// the manifest store and as the vector store.
//
// # Database Schema
//
// Tables:
//   - schema_version: applied migrations (semver)
//   - manifests: one JSON manifest document per repository key
//   - collections: vector collections and their dimension
//   - chunks: chunk content, metadata and the vector as a little-endian float32 blob
//
// Deleting a collection cascades to its chunks.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage(filepath.Join(dataDir, "repoindex.db"))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	// As a statestore.Store
//	m, err := db.Load(ctx, "my-repo")
//
//	// As a vectorstore.Store
//	err = db.EnsureCollection(ctx, "myrepo", 384)
//	err = db.UpsertChunks(ctx, "myrepo", chunks, vectors)
//	hits, err := db.Search(ctx, "myrepo", queryVector, 10, 0.3)
//
// # Vector Search
//
// Similarity is cosine similarity computed in Go over every vector in the
// collection. This is linear in collection size, which is fine for a single
// repository; use the Qdrant backend for large corpora.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go). Building with
// -tags sqlite_cgo switches to github.com/mattn/go-sqlite3.
package storage
