// Package embedder turns text into fixed-dimension vectors for similarity search.
//
// Every provider returns L2-normalized vectors, so the dot product of two
// embeddings is their cosine similarity. Identical (model, text) pairs always
// produce identical vectors.
//
// # Providers
//
//   - local: offline feature hashing over lowercase tokens (xxhash), 384 dimensions.
//     Blank text yields the zero vector.
//   - openai, jina: OpenAI-compatible /embeddings endpoint.
//   - ollama: a local Ollama server's /api/embeddings endpoint.
//
// Remote providers share a token-bucket rate limiter, exponential-backoff retry
// for transport and 5xx failures, and an optional LRU cache keyed by model and
// content hash.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "local", CacheSize: 10000})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	vec, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: "morning run"})
package embedder
