// Package embed computes fixed-dimension text embeddings and relevance
// scores for semantic ranking.
package embed

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/webintel/webintel/internal/scrape"
)

// DefaultDimension matches the index layout written by snapshots.
const DefaultDimension = 256

// HashingEmbedder is a deterministic feature-hashing embedder: tokens are
// hashed into a fixed number of buckets, weighted by log term frequency, and
// the vector is L2-normalized. It needs no model download and gives identical
// vectors for identical text, which is what the ranking contract requires.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder builds an embedder. A non-positive dimension falls back
// to DefaultDimension.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &HashingEmbedder{dim: dim}
}

// Dimension implements scrape.Embedder.
func (e *HashingEmbedder) Dimension() int {
	return e.dim
}

// Embed implements scrape.Embedder. Text without any usable tokens fails
// with ErrEmbeddingFailed; the caller keeps the page without semantic search.
func (e *HashingEmbedder) Embed(text string) ([]float32, error) {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no usable tokens", scrape.ErrEmbeddingFailed)
	}

	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}

	vec := make([]float32, e.dim)
	for tok, n := range counts {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		bucket := int(h.Sum32()) % e.dim
		if bucket < 0 {
			bucket += e.dim
		}
		// Sign hash decorrelates colliding tokens.
		sign := float32(1)
		if h.Sum32()&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign * float32(1+math.Log(float64(n)))
	}

	normalize(vec)
	return vec, nil
}

// Tokenize lowercases and splits on non-alphanumeric runes.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// Cosine returns the cosine similarity of two vectors in [-1, 1]. Mismatched
// lengths and zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Relevance rescales cosine similarity from [-1, 1] to [0, 1].
func Relevance(query, doc []float32) float64 {
	score := (Cosine(query, doc) + 1) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
