// Package embedder turns chunk text into vector embeddings.
//
// Four providers implement Embedder: Ollama (local model server, the
// default for repository indexing), OpenAI and Jina AI (hosted
// /embeddings APIs), and a local feature-hashing provider that needs no
// network and is deterministic, which makes it the provider of choice for
// tests and air-gapped use.
//
// # Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "ollama", CacheSize: 10000})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	if err := emb.EnsureModelAvailable(ctx); err != nil {
//	    return err // server down or model could not be pulled
//	}
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: texts,
//	})
//
// Batches are limited to MaxBatchSize texts. Embeddings come back in input
// order.
//
// # Caching
//
// With CacheSize > 0 each provider keeps an LRU of vectors keyed by the
// SHA-256 of model and text, and only cache misses are sent to the backend.
//
// # Errors
//
// Transport failures and 5xx/429 responses are retried with exponential
// backoff; other 4xx responses fail immediately. Failures surface as
// ErrProviderFailed, or ErrModelUnavailable from EnsureModelAvailable.
package embedder
