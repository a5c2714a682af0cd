// Package cluster groups articles into topics by density over their
// embeddings.
package cluster

import (
	"context"
	"errors"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ObiAU/newsrag/internal/ai"
	"github.com/ObiAU/newsrag/internal/models"
)

const (
	DefaultEps        = 0.25
	DefaultMinSamples = 2
	DefaultMinTextLen = 50
)

var errNoEmbedder = errors.New("no embedder configured")

type Clusterer struct {
	embedder   ai.Embedder
	eps        float64
	minSamples int
	minTextLen int
	logger     *zap.Logger
}

// NewClusterer uses the default parameters for any value <= 0.
func NewClusterer(embedder ai.Embedder, eps float64, minSamples, minTextLen int, logger *zap.Logger) *Clusterer {
	if eps <= 0 {
		eps = DefaultEps
	}
	if minSamples < 2 {
		minSamples = DefaultMinSamples
	}
	if minTextLen <= 0 {
		minTextLen = DefaultMinTextLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Clusterer{
		embedder:   embedder,
		eps:        eps,
		minSamples: minSamples,
		minTextLen: minTextLen,
		logger:     logger.Named("cluster"),
	}
}

// Assign sets a topic on every article, in place and in order. Articles
// with too little text are noise. When embedding fails every article is
// noise.
func (c *Clusterer) Assign(ctx context.Context, articles []models.Article) []models.Article {
	var (
		texts []string
		idx   []int
	)
	for i := range articles {
		articles[i].SetTopic(models.NoiseTopic)
		if utf8.RuneCountInString(articles[i].FullText) > c.minTextLen {
			texts = append(texts, articles[i].FullText)
			idx = append(idx, i)
		}
	}
	if len(texts) == 0 {
		return articles
	}

	vectors, err := c.embed(ctx, texts)
	if err != nil {
		c.logger.Warn("embedding failed, all articles marked as noise",
			zap.Int("articles", len(articles)),
			zap.Error(err))
		return articles
	}

	labels := DBSCAN(vectors, c.eps, c.minSamples)
	for j, label := range labels {
		articles[idx[j]].SetTopic(label)
	}

	c.logger.Debug("articles clustered",
		zap.Int("articles", len(articles)),
		zap.Int("embedded", len(texts)),
		zap.Int("topics", countTopics(labels)))
	return articles
}

func (c *Clusterer) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.embedder == nil {
		return nil, errNoEmbedder
	}
	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, errors.New("embedding count does not match article count")
	}
	return vectors, nil
}

// TopicSizes counts articles per topic id, noise included.
func TopicSizes(articles []models.Article) map[int]int {
	sizes := make(map[int]int)
	for _, a := range articles {
		sizes[a.Topic()]++
	}
	return sizes
}

func countTopics(labels []int) int {
	seen := make(map[int]struct{})
	for _, l := range labels {
		if l != models.NoiseTopic {
			seen[l] = struct{}{}
		}
	}
	return len(seen)
}
