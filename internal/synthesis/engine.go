// Package synthesis answers a query from a retrieval index using a
// grounded generation model.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ObiAU/newsrag/internal/ai"
	"github.com/ObiAU/newsrag/internal/index"
	"github.com/ObiAU/newsrag/internal/models"
)

const (
	DefaultTopK            = 5
	DefaultMaxContextChars = 15000
)

// Answers returned in place of a generated one. Sources are empty with all
// of them.
const (
	MsgModelsUnavailable   = "Error: the language models are not available."
	MsgInsufficientContent = "No articles with enough content to build an answer."
	MsgIndexFailed         = "Error: failed to build the retrieval index."
	MsgQueryFailed         = "Error: the AI query failed."
	MsgNoAnswer            = "No answer could be generated."
)

const contextSeparator = "\n\n---\n\n"

type Engine struct {
	embedder        ai.Embedder
	generator       ai.Generator
	topK            int
	maxContextChars int
	logger          *zap.Logger
}

func NewEngine(embedder ai.Embedder, generator ai.Generator, topK, maxContextChars int, logger *zap.Logger) *Engine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if maxContextChars <= 0 {
		maxContextChars = DefaultMaxContextChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		embedder:        embedder,
		generator:       generator,
		topK:            topK,
		maxContextChars: maxContextChars,
		logger:          logger.Named("synthesis"),
	}
}

// WithTopK returns a copy of e retrieving k chunks per query.
func (e *Engine) WithTopK(k int) *Engine {
	clone := *e
	if k > 0 {
		clone.topK = k
	}
	return &clone
}

func (e *Engine) TopK() int {
	return e.topK
}

// Synthesize answers query from idx under the instructions of task. It
// never fails: every problem is reported through AnswerText with no
// sources.
func (e *Engine) Synthesize(ctx context.Context, query string, idx *index.Index, task models.Task) models.SynthesisResult {
	logger := e.logger.With(zap.String("task", string(task)))

	if e.embedder == nil || e.generator == nil {
		return failed(MsgModelsUnavailable)
	}
	if idx == nil || idx.Len() == 0 {
		return failed(MsgInsufficientContent)
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		logger.Error("failed to embed query", zap.Error(err))
		return failed(MsgQueryFailed)
	}

	hits := idx.Search(vec, e.topK)
	if len(hits) == 0 {
		return failed(MsgInsufficientContent)
	}

	block, used := e.assemble(hits)
	answer, err := e.generator.Generate(ctx, buildPrompt(task, block, query))
	if errors.Is(err, ai.ErrEmptyGeneration) {
		logger.Warn("model returned an empty answer")
		return failed(MsgNoAnswer)
	}
	if err != nil {
		logger.Error("generation failed", zap.Error(err))
		return failed(MsgQueryFailed)
	}

	logger.Debug("answer generated",
		zap.Int("chunks", len(used)),
		zap.Int("context_chars", utf8.RuneCountInString(block)))
	return models.SynthesisResult{
		AnswerText: answer,
		Sources:    sourcesOf(used),
	}
}

// assemble joins hits in rank order until the context bound is reached.
// Each block opens with a header naming its article so claims can be
// attributed. The first hit is always kept, truncated if it alone is too
// long.
func (e *Engine) assemble(hits []index.Hit) (string, []models.Chunk) {
	var (
		parts []string
		used  []models.Chunk
		size  int
	)
	for i, hit := range hits {
		header := blockHeader(i+1, hit.Chunk.Meta) + "\n"
		text := hit.Chunk.Text
		n := utf8.RuneCountInString(header) + utf8.RuneCountInString(text)
		if i > 0 {
			n += utf8.RuneCountInString(contextSeparator)
		}

		if size+n > e.maxContextChars {
			if i > 0 {
				break
			}
			room := max(e.maxContextChars-utf8.RuneCountInString(header), 0)
			text = string([]rune(text)[:min(room, utf8.RuneCountInString(text))])
			n = utf8.RuneCountInString(header) + utf8.RuneCountInString(text)
		}

		parts = append(parts, header+text)
		used = append(used, hit.Chunk)
		size += n
	}
	return strings.Join(parts, contextSeparator), used
}

// blockHeader renders "[n] Title (Source, 2006-01-02)", leaving out the
// parts the article does not have.
func blockHeader(n int, meta models.ChunkMeta) string {
	title := meta.Title
	if title == "" {
		title = meta.URL
	}

	var details []string
	if meta.SourceName != "" {
		details = append(details, meta.SourceName)
	}
	if !meta.PublishedAt.IsZero() {
		details = append(details, meta.PublishedAt.UTC().Format(time.DateOnly))
	}

	header := fmt.Sprintf("[%d] %s", n, title)
	if len(details) > 0 {
		header += " (" + strings.Join(details, ", ") + ")"
	}
	return header
}

// sourcesOf lists each chunk's article once, in the order first seen.
func sourcesOf(chunks []models.Chunk) []models.Source {
	sources := make([]models.Source, 0, len(chunks))
	seen := make(map[string]bool)
	for _, c := range chunks {
		if c.Meta.URL == "" || seen[c.Meta.URL] {
			continue
		}
		seen[c.Meta.URL] = true
		sources = append(sources, models.Source{Title: c.Meta.Title, URL: c.Meta.URL})
	}
	return sources
}

// Unavailable reports whether res stands in for an answer because a model
// call failed, as opposed to a real answer or a lack of content.
func Unavailable(res models.SynthesisResult) bool {
	switch res.AnswerText {
	case MsgModelsUnavailable, MsgIndexFailed, MsgQueryFailed:
		return true
	}
	return false
}

func failed(message string) models.SynthesisResult {
	return models.SynthesisResult{AnswerText: message, Sources: []models.Source{}}
}
