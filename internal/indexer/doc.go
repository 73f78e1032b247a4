// Package indexer keeps a repository's vector collection and manifest in
// step with the files on disk.
//
// # Basic Usage
//
//	idx := indexer.New(emb, vectors, state,
//	    indexer.WithConfig(indexer.Config{Workers: 4, BatchSize: 32}),
//	    indexer.WithLogger(logger),
//	)
//
//	result, err := idx.Index(ctx, indexer.IndexRequest{Path: "/src/project"})
//	if err != nil {
//	    // result.Success is false; result.FailedFiles lists what was not indexed
//	}
//
// # Indexing Pipeline
//
//  1. Setup: ensure the embedding model and the collection, load the manifest
//  2. Discover: walk the root with include/exclude globs
//  3. Classify: fingerprint every file and diff against the manifest
//  4. Remove: delete vectors of files that disappeared
//  5. Chunk: added and updated files, on a bounded worker pool
//  6. Embed: sequential batches, each embedded then upserted
//  7. Save: write the merged manifest in full
//
// # Incremental Indexing
//
// Files are compared by the SHA-256 of their bytes. Unchanged files keep
// their manifest entry verbatim and are never re-read, re-chunked or
// re-embedded, so a second run over an untouched tree performs no embedding
// work at all.
//
// Chunk IDs include the file fingerprint, so every edit replaces all of a
// file's chunk IDs. The old vectors are deleted by path before the file is
// re-chunked.
//
// # Failure Handling
//
// A file that cannot be read or chunked is listed in FailedFiles and left
// out of the new manifest; the run continues. A failed embedding or upsert
// batch aborts the run, but the manifest is still saved with every file
// whose chunks were all stored, so the manifest never references a vector
// that does not exist.
//
// Changing the embedding model (or dimension) is detected from the manifest
// and triggers a full rebuild of the collection.
//
// # Concurrency
//
// One run per repository at a time: a second Index or Reset on the same
// repository fails fast with ErrIndexInProgress. Different repositories may
// be indexed concurrently.
package indexer
