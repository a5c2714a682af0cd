package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is an offline embedder that hashes word unigrams and
// bigrams into a signed bag-of-words vector. Texts sharing vocabulary land
// close together under cosine distance.
type HashEmbedder struct {
	dims int
}

var _ Embedder = (*HashEmbedder)(nil)

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, h.dims)
	tokens := tokenize(text)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := h.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (h *HashEmbedder) add(vec []float32, token string, weight float32) {
	f := fnv.New32a()
	_, _ = f.Write([]byte(token))
	sum := f.Sum32()

	idx := int(sum % uint32(h.dims))
	if sum&(1<<31) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func (h *HashEmbedder) Dimensions() int {
	return h.dims
}

func (h *HashEmbedder) Name() string {
	return fmt.Sprintf("hash:%d", h.dims)
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true, "by": true,
	"for": true, "from": true, "has": true, "in": true, "is": true, "it": true, "its": true, "of": true,
	"on": true, "or": true, "that": true, "the": true, "to": true, "was": true, "were": true, "with": true,
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
