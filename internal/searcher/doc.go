// Package searcher answers natural-language queries against an indexed
// repository.
//
// A query is embedded with the same Embedder used for indexing and handed to
// the vector store together with the repository's collection name, a result
// limit and a similarity floor:
//
//	s := searcher.New(emb, vectors, state)
//	res, err := s.Search(ctx, searcher.SearchRequest{
//	    Repository: "myproject",
//	    Query:      "where are retries configured",
//	})
//
// Hits come back in the vector store's order (descending similarity) and are
// never re-ranked. When the repository's manifest records a different
// embedding model, the result is flagged with ModelMismatch.
//
// An optional LRU query cache with a TTL avoids re-embedding repeated
// queries; InvalidateCache must be called after re-indexing.
package searcher
