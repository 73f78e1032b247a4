// Package types provides the data model shared by the indexer, the searcher
// and the storage backends.
//
// # Core Types
//
// CodeChunk is one embeddable piece of a source file. Its ID doubles as the
// vector-store primary key:
//
//	chunk := types.CodeChunk{
//	    ID:           types.ChunkID("pkg/a.py", 1, 10, fingerprint),
//	    Content:      body,
//	    RelativePath: "pkg/a.py",
//	    Language:     "python",
//	}
//
// IndexManifest is the persisted per-repository record mapping relative paths
// to IndexedFile entries (fingerprint and chunk IDs). It is rewritten in full
// at the end of every run.
//
// IndexingResult and SearchResult are per-call outcomes and are never stored.
//
// # Naming
//
// SanitizeName derives the manifest key and collection name from a display
// name:
//
//	types.SanitizeName("My-Repo.v2") // "myrepov2"
package types
