// Package chunker divides source files into chunks for embedding and search.
//
// Chunkers are selected per file by a Registry keyed on language tag. The
// default registry knows:
//   - go: declaration-level chunks from go/ast, with package and imports as context
//   - python, javascript, typescript: definition-level chunks from tree-sitter
//     queries (cgo builds; line-based otherwise)
//   - everything else: LineChunker, the mandatory fallback
//
// # Basic Usage
//
//	reg := chunker.NewDefaultRegistry(chunker.Options{})
//	lang, c := reg.Select("pkg/service.py")
//	chunks, err := c.ChunkCode(content, absPath, "pkg/service.py", lang)
//
// # Chunk Boundaries
//
// Structural chunkers emit one chunk per definition. Definitions larger than
// the token budget are split into overlapping line windows, and code between
// definitions (module-level statements, build tags) is line-chunked so
// nothing in a file is left out. Blank files produce no chunks.
//
// # Chunk IDs
//
// IDs are derived from the relative path, the line span and the fingerprint of
// the whole file (see types.ChunkID). Re-chunking unchanged content
// reproduces the same IDs; any edit to a file gives all of its chunks new IDs.
//
// Token estimation uses a simple heuristic (chars/4).
package chunker
