// Package index builds the per-request retrieval index over article chunks.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ObiAU/newsrag/internal/ai"
	"github.com/ObiAU/newsrag/internal/chunker"
	"github.com/ObiAU/newsrag/internal/models"
)

// DefaultMinTextLen is the shortest article text that gets chunked.
const DefaultMinTextLen = 100

// ErrEmpty is returned by Build when no article produced a chunk.
var ErrEmpty = errors.New("no article has enough text to index")

// Hit is one search result. Score is cosine similarity.
type Hit struct {
	Chunk models.Chunk
	Score float64
}

// Index is an ephemeral nearest-neighbour index owned by one request.
// Call Release when the request is done with it.
type Index struct {
	mu     sync.RWMutex
	graph  *hnsw
	chunks []models.Chunk
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks)
}

// Chunks returns a copy of the indexed chunks in insertion order.
func (idx *Index) Chunks() []models.Chunk {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]models.Chunk(nil), idx.chunks...)
}

// Search returns up to k chunks most similar to vec, best first.
func (idx *Index) Search(vec []float32, k int) []Hit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph == nil {
		return nil
	}

	found := idx.graph.search(vec, k)
	hits := make([]Hit, 0, len(found))
	for _, nb := range found {
		hits = append(hits, Hit{Chunk: idx.chunks[nb.id], Score: 1 - nb.dist})
	}
	return hits
}

// Release drops the graph and chunks. It is safe to call more than once
// and on a nil index.
func (idx *Index) Release() {
	if idx == nil {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.graph = nil
	idx.chunks = nil
}

type Builder struct {
	embedder   ai.Embedder
	splitter   chunker.Splitter
	minTextLen int
	seed       int64
	logger     *zap.Logger
}

func NewBuilder(embedder ai.Embedder, splitter chunker.Splitter, minTextLen int, logger *zap.Logger) *Builder {
	if minTextLen <= 0 {
		minTextLen = DefaultMinTextLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		embedder:   embedder,
		splitter:   splitter,
		minTextLen: minTextLen,
		seed:       1,
		logger:     logger.Named("index"),
	}
}

// Build chunks every article with enough text, embeds the chunks and
// indexes them. It returns ErrEmpty when there is nothing to index.
func (b *Builder) Build(ctx context.Context, articles []models.Article) (*Index, error) {
	chunks := b.chunk(articles)
	if len(chunks) == 0 {
		return nil, ErrEmpty
	}
	if b.embedder == nil {
		return nil, errors.New("no embedder configured")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(chunks))
	}

	graph := newHNSW(b.seed)
	for _, vec := range vectors {
		graph.add(vec)
	}

	b.logger.Debug("index built",
		zap.Int("articles", len(articles)),
		zap.Int("chunks", len(chunks)))
	return &Index{graph: graph, chunks: chunks}, nil
}

func (b *Builder) chunk(articles []models.Article) []models.Chunk {
	var chunks []models.Chunk
	for _, a := range articles {
		if a.URL == "" || utf8.RuneCountInString(a.FullText) < b.minTextLen {
			continue
		}

		meta := models.ChunkMeta{
			URL:         a.URL,
			Title:       a.Title,
			SourceName:  a.SourceName,
			PublishedAt: a.PublishedAt,
			TopicID:     a.Topic(),
			Snippet:     a.Snippet,
		}
		for i, span := range b.splitter.Split(a.FullText) {
			chunks = append(chunks, models.Chunk{
				ID:    fmt.Sprintf("%s#%d", a.URL, i),
				Text:  span.Text,
				Start: span.Start,
				End:   span.End,
				Meta:  meta,
			})
		}
	}
	return chunks
}
