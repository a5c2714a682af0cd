// Package acquire searches for articles and scrapes their full text
// concurrently.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ObiAU/newsrag/internal/models"
)

// ErrSearchUnavailable wraps any failure of the search step.
var ErrSearchUnavailable = errors.New("article search unavailable")

const snippetRunes = 150

// PageFetcher returns the extracted text of the page at url.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type Acquirer struct {
	search  models.SearchSource
	fetcher PageFetcher
	limit   int
	logger  *zap.Logger
}

func NewAcquirer(search models.SearchSource, fetcher PageFetcher, limit int, logger *zap.Logger) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acquirer{
		search:  search,
		fetcher: fetcher,
		limit:   limit,
		logger:  logger.Named("acquire"),
	}
}

type outcome struct {
	text string
	err  error
}

// Acquire returns the articles found for query whose page could be scraped,
// in search order. A search failure yields no articles and an error
// wrapping ErrSearchUnavailable. Scrape failures only drop their article.
func (a *Acquirer) Acquire(ctx context.Context, query string) ([]models.Article, error) {
	start := time.Now()

	found, err := a.search.Search(ctx, query, a.limit)
	if err != nil {
		a.logger.Error("search failed",
			zap.String("source", a.search.GetName()),
			zap.String("query", query),
			zap.Error(err))
		return []models.Article{}, fmt.Errorf("%w: %w", ErrSearchUnavailable, err)
	}
	if len(found) == 0 {
		a.logger.Info("search returned no articles", zap.String("query", query))
		return []models.Article{}, nil
	}

	outcomes := a.scrapeAll(ctx, found)

	articles := make([]models.Article, 0, len(found))
	failures := 0
	for i, article := range found {
		res := outcomes[i]
		if res.err != nil {
			failures++
			a.logger.Warn("failed to scrape article",
				zap.String("url", article.URL),
				zap.Error(res.err))
			continue
		}

		article.FullText = res.text
		if strings.TrimSpace(article.Snippet) == "" {
			article.Snippet = snippetFrom(res.text)
		}
		articles = append(articles, article)
	}

	a.logger.Info("articles acquired",
		zap.String("query", query),
		zap.Int("found", len(found)),
		zap.Int("scraped", len(articles)),
		zap.Int("failed", failures),
		zap.Duration("duration", time.Since(start)))
	return articles, nil
}

// scrapeAll fetches every url at once and waits for all of them. The
// group has no shared context, so one failure never cancels its siblings.
func (a *Acquirer) scrapeAll(ctx context.Context, found []models.Article) []outcome {
	outcomes := make([]outcome, len(found))

	var g errgroup.Group
	for i := range found {
		url := found[i].URL
		g.Go(func() error {
			if url == "" {
				outcomes[i] = outcome{err: errors.New("article has no url")}
				return nil
			}
			text, err := a.fetcher.Fetch(ctx, url)
			if err == nil && strings.TrimSpace(text) == "" {
				err = errors.New("empty page text")
			}
			outcomes[i] = outcome{text: text, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func snippetFrom(text string) string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) <= snippetRunes {
		return string(runes)
	}
	return string(runes[:snippetRunes]) + "..."
}
