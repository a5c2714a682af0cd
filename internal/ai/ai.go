// Package ai holds the embedding and generation model clients. Clients are
// built once per process and are safe for concurrent use.
package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrEmptyGeneration is returned when the model answered with no text.
var ErrEmptyGeneration = errors.New("model returned an empty answer")

// Embedder maps text to fixed-size vectors. Identical input yields
// identical output.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// Prompt is one generation request.
type Prompt struct {
	System string
	User   string
}

type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
	Name() string
}

// Checker is implemented by clients that can verify their backend is reachable.
type Checker interface {
	Ready(ctx context.Context) error
}

// Ready runs the readiness check of c when it implements Checker.
func Ready(ctx context.Context, c any) error {
	if c == nil {
		return errors.New("model client is not configured")
	}
	if checker, ok := c.(Checker); ok {
		return checker.Ready(ctx)
	}
	return nil
}

// CosineSimilarity returns 0 for zero-magnitude or mismatched vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, aMag, bMag float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag))
}

// CosineDistance is 1 - CosineSimilarity, in [0, 2].
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

type timeoutEmbedder struct {
	Embedder
	timeout time.Duration
}

// WithEmbedTimeout bounds every call on e by d.
func WithEmbedTimeout(e Embedder, d time.Duration) Embedder {
	if e == nil || d <= 0 {
		return e
	}
	return &timeoutEmbedder{Embedder: e, timeout: d}
}

func (t *timeoutEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Embedder.Embed(ctx, text)
}

func (t *timeoutEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Embedder.EmbedBatch(ctx, texts)
}

func (t *timeoutEmbedder) Ready(ctx context.Context) error {
	return Ready(ctx, t.Embedder)
}

type timeoutGenerator struct {
	Generator
	timeout time.Duration
}

// WithGenerateTimeout bounds every call on g by d.
func WithGenerateTimeout(g Generator, d time.Duration) Generator {
	if g == nil || d <= 0 {
		return g
	}
	return &timeoutGenerator{Generator: g, timeout: d}
}

func (t *timeoutGenerator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Generator.Generate(ctx, prompt)
}

func (t *timeoutGenerator) Ready(ctx context.Context) error {
	return Ready(ctx, t.Generator)
}

func checkBatch(name string, want int, got [][]float32) error {
	if len(got) != want {
		return fmt.Errorf("%s returned %d embeddings for %d inputs", name, len(got), want)
	}
	return nil
}

func trimAnswer(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}
