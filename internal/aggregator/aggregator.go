// Package aggregator runs one query through the full pipeline and serves
// the result over HTTP.
package aggregator

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ObiAU/newsrag/internal/ai"
	"github.com/ObiAU/newsrag/internal/cache"
	"github.com/ObiAU/newsrag/internal/chunker"
	"github.com/ObiAU/newsrag/internal/cluster"
	"github.com/ObiAU/newsrag/internal/config"
	"github.com/ObiAU/newsrag/internal/index"
	"github.com/ObiAU/newsrag/internal/logging"
	"github.com/ObiAU/newsrag/internal/models"
	"github.com/ObiAU/newsrag/internal/synthesis"
)

// Messages set on reports that end before synthesis.
const (
	MsgSearchUnavailable = "The news search service is unavailable right now. Please try again later."
	MsgNoArticles        = "No articles were found for this query."
)

// Acquirer finds and scrapes the articles for a query.
type Acquirer interface {
	Acquire(ctx context.Context, query string) ([]models.Article, error)
}

// Deps are the long-lived collaborators shared by every request.
type Deps struct {
	Providers ai.Providers
	Acquirer  Acquirer
	Cache     *cache.Cache
}

type Aggregator struct {
	config    *config.Config
	cache     *cache.Cache
	providers ai.Providers
	acquirer  Acquirer
	clusterer *cluster.Clusterer
	builder   *index.Builder
	engine    *synthesis.Engine
	logger    *zap.Logger

	server   *http.Server
	handlers map[string]http.Handler
	mu       sync.RWMutex
	running  bool
}

func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Aggregator {
	logger = logging.OrNop(logger)
	embedder := deps.Providers.Embedder

	return &Aggregator{
		config:    cfg,
		cache:     deps.Cache,
		providers: deps.Providers,
		acquirer:  deps.Acquirer,
		clusterer: cluster.NewClusterer(embedder, cfg.Cluster.Eps, cfg.Cluster.MinSamples, cfg.Cluster.MinTextLen, logger),
		builder: index.NewBuilder(embedder, chunker.NewSplitter(cfg.Chunk.Size, cfg.Chunk.Overlap),
			cfg.Chunk.MinTextLen, logger),
		engine: synthesis.NewEngine(embedder, deps.Providers.Generator,
			cfg.Synthesis.TopKSingle, cfg.Synthesis.MaxContextChars, logger),
		logger:   logger.Named("aggregator"),
		handlers: make(map[string]http.Handler),
	}
}

// Answer runs one query-processing cycle. Every outcome, including
// upstream failures, is reported through the returned Report.
func (a *Aggregator) Answer(ctx context.Context, query string, tasks []models.Task) models.Report {
	if len(tasks) == 0 {
		tasks = []models.Task{models.TaskReport}
	}

	key := cache.Key(query, tasks)
	if a.cache != nil {
		if report, ok := a.cache.Get(key); ok {
			a.logger.Info("serving cached report",
				zap.String("request_id", report.RequestID),
				zap.String("query", query))
			return report
		}
	}

	report := a.run(ctx, query, tasks)
	if ctx.Err() != nil {
		report.Degraded = true
	}
	if a.cache != nil {
		a.cache.Put(key, report)
	}
	return report
}

func (a *Aggregator) run(ctx context.Context, query string, tasks []models.Task) models.Report {
	start := time.Now()
	requestID := uuid.NewString()
	logger := a.logger.With(zap.String("request_id", requestID))

	report := models.Report{
		RequestID:   requestID,
		Query:       query,
		Status:      models.StatusOK,
		Articles:    []models.Article{},
		Topics:      map[int]int{},
		Results:     make(map[models.Task]models.SynthesisResult, len(tasks)),
		GeneratedAt: start.UTC(),
	}

	articles, err := a.acquirer.Acquire(ctx, query)
	if err != nil {
		logger.Warn("acquisition failed", zap.String("query", query), zap.Error(err))
		report.Status = models.StatusSearchUnavailable
		report.Message = MsgSearchUnavailable
		return report
	}
	if len(articles) == 0 {
		report.Status = models.StatusNoArticles
		report.Message = MsgNoArticles
		return report
	}

	articles = a.clusterer.Assign(ctx, articles)
	report.Articles = articles
	report.Topics = cluster.TopicSizes(articles)

	if a.providers.Embedder == nil || a.providers.Generator == nil {
		fillAll(report.Results, tasks, synthesis.MsgModelsUnavailable)
		report.Degraded = true
		return report
	}

	idx, err := a.builder.Build(ctx, articles)
	defer idx.Release()
	switch {
	case errors.Is(err, index.ErrEmpty):
		fillAll(report.Results, tasks, synthesis.MsgInsufficientContent)
		return report
	case err != nil:
		logger.Error("failed to build index", zap.Error(err))
		fillAll(report.Results, tasks, synthesis.MsgIndexFailed)
		report.Degraded = true
		return report
	}

	engine := a.engine.WithTopK(a.topK(len(tasks)))
	for _, task := range tasks {
		res := engine.Synthesize(ctx, query, idx, task)
		if synthesis.Unavailable(res) {
			report.Degraded = true
		}
		report.Results[task] = res
	}

	logger.Info("query answered",
		zap.String("query", query),
		zap.Int("articles", len(articles)),
		zap.Int("chunks", idx.Len()),
		zap.Int("tasks", len(tasks)),
		zap.Bool("degraded", report.Degraded),
		zap.Duration("duration", time.Since(start)))
	return report
}

// topK uses the narrower retrieval for a single task.
func (a *Aggregator) topK(tasks int) int {
	if tasks > 1 {
		return a.config.Synthesis.TopKMulti
	}
	return a.config.Synthesis.TopKSingle
}

func fillAll(results map[models.Task]models.SynthesisResult, tasks []models.Task, message string) {
	for _, task := range tasks {
		results[task] = models.SynthesisResult{AnswerText: message, Sources: []models.Source{}}
	}
}
