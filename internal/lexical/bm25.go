// Package lexical implements an in-memory BM25 index over a fixed corpus.
//
// An Index is built once from an ordered list of documents and never changes
// afterwards, so it can be scored from many goroutines. Scores are aligned
// with the build order: Score(q)[i] belongs to corpus[i].
package lexical

import (
	"math"
	"strings"
)

// Params are the BM25 tuning constants
type Params struct {
	K1 float64 // Term frequency saturation
	B  float64 // Document length normalization
}

// DefaultParams returns k1=1.5, b=0.75
func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75}
}

// Index is an immutable BM25 index
type Index struct {
	params    Params
	termFreqs []map[string]int
	docLens   []int
	docFreq   map[string]int
	idf       map[string]float64
	avgDocLen float64
}

// Tokenize lowercases text and splits it on whitespace
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Build indexes corpus in order. Out-of-range params fall back to the defaults.
func Build(corpus []string, params Params) *Index {
	defaults := DefaultParams()
	if params.K1 < 0 || math.IsNaN(params.K1) {
		params.K1 = defaults.K1
	}
	if params.B < 0 || params.B > 1 || math.IsNaN(params.B) {
		params.B = defaults.B
	}

	idx := &Index{
		params:    params,
		termFreqs: make([]map[string]int, len(corpus)),
		docLens:   make([]int, len(corpus)),
		docFreq:   make(map[string]int),
	}

	var totalLen int
	for i, doc := range corpus {
		tokens := Tokenize(doc)
		tf := make(map[string]int, len(tokens))
		for _, token := range tokens {
			tf[token]++
		}
		for term := range tf {
			idx.docFreq[term]++
		}
		idx.termFreqs[i] = tf
		idx.docLens[i] = len(tokens)
		totalLen += len(tokens)
	}

	if len(corpus) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(corpus))
	}

	n := float64(len(corpus))
	idx.idf = make(map[string]float64, len(idx.docFreq))
	for term, df := range idx.docFreq {
		nq := float64(df)
		idx.idf[term] = math.Log(1 + (n-nq+0.5)/(nq+0.5))
	}

	return idx
}

// Score returns one non-negative BM25 score per corpus document.
// A blank query scores every document zero; an empty corpus yields an empty slice.
func (idx *Index) Score(query string) []float64 {
	scores := make([]float64, len(idx.docLens))
	if len(scores) == 0 {
		return scores
	}

	k1, b := idx.params.K1, idx.params.B
	for _, term := range Tokenize(query) {
		idf, ok := idx.idf[term]
		if !ok {
			continue
		}
		for i, tf := range idx.termFreqs {
			freq := float64(tf[term])
			if freq == 0 {
				continue
			}

			lenNorm := 1.0
			if idx.avgDocLen > 0 {
				lenNorm = 1 - b + b*float64(idx.docLens[i])/idx.avgDocLen
			}
			scores[i] += idf * freq * (k1 + 1) / (freq + k1*lenNorm)
		}
	}

	return scores
}

// Len returns the number of indexed documents
func (idx *Index) Len() int {
	return len(idx.docLens)
}

// AvgDocLen returns the mean token count per document
func (idx *Index) AvgDocLen() float64 {
	return idx.avgDocLen
}

// DocFreq returns how many documents contain term (after lowercasing)
func (idx *Index) DocFreq(term string) int {
	return idx.docFreq[strings.ToLower(term)]
}

// Params returns the constants the index was built with
func (idx *Index) Params() Params {
	return idx.params
}
