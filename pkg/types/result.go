package types

import "math"

// SourceHybrid marks a result ranked by the fused vector and lexical score
const SourceHybrid = "hybrid"

// SearchResult represents a single search result with relevance information
type SearchResult struct {
	// Identification
	Rank int    // Position in result set (1-based)
	Path string // Relative to vault root

	// Scoring
	Score        float64 // VectorWeight*VectorScore + LexicalWeight*LexicalScore
	VectorScore  float64 // Cosine similarity with the query, [-1, 1]
	LexicalScore float64 // BM25 divided by the best BM25 in the corpus, [0, 1]
	Source       string

	Content string // Full document content
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.Path == "" {
		return ErrMissingPath
	}

	for _, s := range []float64{sr.Score, sr.VectorScore} {
		if math.IsNaN(s) || s < -1 || s > 1 {
			return ErrInvalidScore
		}
	}
	if math.IsNaN(sr.LexicalScore) || sr.LexicalScore < 0 || sr.LexicalScore > 1 {
		return ErrInvalidScore
	}

	if sr.Content == "" {
		return ErrEmptyContent
	}

	return nil
}

// Snippet returns at most maxChars characters of the content, counted in runes
func (sr *SearchResult) Snippet(maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	runes := []rune(sr.Content)
	if len(runes) <= maxChars {
		return sr.Content
	}
	return string(runes[:maxChars])
}
