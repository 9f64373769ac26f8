// Package local provides a deterministic in-process embedder.
//
// Text is tokenized into lower-cased words, word unigrams and bigrams are hashed into
// a fixed number of signed buckets (the hashing trick), weighted by sublinear term
// frequency and L2-normalized. Identical text always maps to the identical vector, and
// texts sharing vocabulary land close together under cosine distance.
package local

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultDimensions matches the width of common small sentence-embedding models.
const DefaultDimensions = 384

var tokenPattern = regexp.MustCompile(`\p{L}+|\p{N}+`)

// Embedder is immutable after construction and safe for concurrent use.
type Embedder struct {
	dims int
}

// New creates an embedder producing vectors of the given width.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: dims}
}

// Embed maps each text to a unit-length vector (or the zero vector for text without words).
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = e.vector(text)
	}
	return vectors, nil
}

// Dimensions returns the vector width.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// ModelName identifies the embedding space. It includes the width, so an index
// built at one width refuses to open with another.
func (e *Embedder) ModelName() string {
	return fmt.Sprintf("local-hash-%d", e.dims)
}

func (e *Embedder) vector(text string) []float32 {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)

	counts := make(map[string]int, len(tokens)*2)
	for i, tok := range tokens {
		counts["w:"+tok]++
		if i > 0 {
			counts["b:"+tokens[i-1]+" "+tok]++
		}
	}

	acc := make([]float64, e.dims)
	for feature, tf := range counts {
		h := xxhash.Sum64String(feature)
		weight := 1 + math.Log(float64(tf))
		if h>>63 == 1 {
			weight = -weight
		}
		acc[h%uint64(e.dims)] += weight
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	out := make([]float32, e.dims)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out
}
