// Package searcher ranks the memory corpus against a free-text query.
//
// Every document in the engine's current snapshot is scored with
//
//	score = VectorWeight*cos(query, doc) + LexicalWeight*bm25(doc)/max(bm25)
//
// where embeddings are unit length, so cosine similarity is a dot product,
// and BM25 is divided by the best BM25 score in the corpus for this query
// (zero for every document when nothing matches). The default weights are
// 0.7 and 0.3. Results are sorted by descending score with ties kept in
// corpus order, which makes ranking deterministic for a given snapshot.
//
// # Basic Usage
//
//	s := searcher.New(engine, searcher.DefaultConfig())
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query: "how did the long run feel",
//	    Limit: 5,
//	})
//	if err != nil {
//	    return err
//	}
//	if resp.IndexEmpty {
//	    // nothing ingested yet
//	}
//
//	prompt := searcher.FormatContext(resp.Results, 300)
//
// # Freshness
//
// Search asks the engine for a fresh snapshot first. A store write since the
// last rebuild triggers a rebuild unless an ingest is running, in which case
// the previous snapshot is searched and the ingest publishes its own.
//
// # Caching
//
// With Config.CacheSize > 0, responses are kept in an LRU keyed by snapshot
// revision, limit and query text. Cached responses are copied on the way in
// and out.
//
// # Scale
//
// Scoring is a linear scan. Corpora above Config.LinearScanThreshold still
// work, but a warning is logged once per Searcher.
package searcher
