package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ObiAU/newsrag/internal/acquire"
	"github.com/ObiAU/newsrag/internal/ai"
	"github.com/ObiAU/newsrag/internal/cache"
	"github.com/ObiAU/newsrag/internal/config"
	"github.com/ObiAU/newsrag/internal/models"
	"github.com/ObiAU/newsrag/internal/synthesis"
)

type fakeAcquirer struct {
	articles []models.Article
	err      error
	calls    atomic.Int32
}

func (f *fakeAcquirer) Acquire(context.Context, string) ([]models.Article, error) {
	f.calls.Add(1)
	return append([]models.Article(nil), f.articles...), f.err
}

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, p ai.Prompt) (string, error) {
	return fmt.Sprintf("answer with %d context blocks", strings.Count(p.User, "\n\n---\n\n")+1), nil
}

func (echoGenerator) Name() string { return "echo" }

// flakyGenerator fails its first failures calls and then echoes.
type flakyGenerator struct {
	failures int32
	calls    atomic.Int32
}

func (g *flakyGenerator) Generate(ctx context.Context, p ai.Prompt) (string, error) {
	if g.calls.Add(1) <= g.failures {
		return "", errors.New("model overloaded")
	}
	return echoGenerator{}.Generate(ctx, p)
}

func (g *flakyGenerator) Name() string { return "flaky" }

// slowAcquirer behaves like a scrape whose fetches all fail once ctx is
// cancelled: it returns no articles and no error.
type slowAcquirer struct {
	fakeAcquirer
	delay time.Duration
}

func (s *slowAcquirer) Acquire(ctx context.Context, query string) ([]models.Article, error) {
	select {
	case <-ctx.Done():
		s.calls.Add(1)
		return []models.Article{}, nil
	case <-time.After(s.delay):
		return s.fakeAcquirer.Acquire(ctx, query)
	}
}

func storyArticles() []models.Article {
	var out []models.Article
	for i := 0; i < 6; i++ {
		out = append(out, models.Article{
			URL:      fmt.Sprintf("https://news.test/wildfire-%d", i),
			Title:    fmt.Sprintf("Wildfire update %d", i),
			FullText: strings.Repeat(fmt.Sprintf("Crews battled the wildfire near the ridge on day %d while residents evacuated. ", i), 25),
		})
	}
	out = append(out, models.Article{
		URL:      "https://news.test/short",
		Title:    "Short",
		FullText: "Brief.",
	})
	return out
}

func newTestAggregator(t *testing.T, acq Acquirer, providers ai.Providers, c *cache.Cache) *Aggregator {
	t.Helper()
	return New(config.Default(), Deps{Providers: providers, Acquirer: acq, Cache: c}, zaptest.NewLogger(t))
}

func testProviders() ai.Providers {
	return ai.Providers{Embedder: ai.NewHashEmbedder(128), Generator: echoGenerator{}}
}

func TestAnswerAllTasks(t *testing.T) {
	acq := &fakeAcquirer{articles: storyArticles()}
	a := newTestAggregator(t, acq, testProviders(), nil)

	report := a.Answer(context.Background(), "wildfire evacuation", models.AllTasks())

	assert.Equal(t, models.StatusOK, report.Status)
	assert.NotEmpty(t, report.RequestID)
	require.Len(t, report.Articles, 7)
	for _, art := range report.Articles {
		assert.NotNil(t, art.TopicID)
	}
	assert.Equal(t, 7, sum(report.Topics))

	require.Len(t, report.Results, 3)
	for _, task := range models.AllTasks() {
		res := report.Results[task]
		assert.True(t, strings.HasPrefix(res.AnswerText, "answer with"), "task %s: %s", task, res.AnswerText)
		assert.NotEmpty(t, res.Sources)
	}
}

func TestAnswerTopKDependsOnTaskCount(t *testing.T) {
	acq := &fakeAcquirer{articles: storyArticles()}
	a := newTestAggregator(t, acq, testProviders(), nil)

	single := a.Answer(context.Background(), "wildfire", []models.Task{models.TaskReport})
	assert.Equal(t, "answer with 5 context blocks", single.Results[models.TaskReport].AnswerText)

	multi := a.Answer(context.Background(), "wildfire", []models.Task{models.TaskReport, models.TaskTimeline})
	assert.Equal(t, "answer with 10 context blocks", multi.Results[models.TaskReport].AnswerText)
}

func sum(m map[int]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

func TestAnswerSearchUnavailable(t *testing.T) {
	acq := &fakeAcquirer{err: fmt.Errorf("%w: boom", acquire.ErrSearchUnavailable)}
	c := cache.New(time.Minute)
	defer c.Close()
	a := newTestAggregator(t, acq, testProviders(), c)

	report := a.Answer(context.Background(), "anything", nil)
	assert.Equal(t, models.StatusSearchUnavailable, report.Status)
	assert.Equal(t, MsgSearchUnavailable, report.Message)
	assert.Empty(t, report.Articles)

	a.Answer(context.Background(), "anything", nil)
	assert.Equal(t, int32(2), acq.calls.Load(), "failed searches are not cached")
}

func TestAnswerNoArticles(t *testing.T) {
	a := newTestAggregator(t, &fakeAcquirer{}, testProviders(), nil)

	report := a.Answer(context.Background(), "nothing here", nil)
	assert.Equal(t, models.StatusNoArticles, report.Status)
	assert.Equal(t, MsgNoArticles, report.Message)
	assert.Empty(t, report.Results)
}

func TestAnswerWithoutModels(t *testing.T) {
	acq := &fakeAcquirer{articles: storyArticles()}
	a := newTestAggregator(t, acq, ai.Providers{Embedder: ai.NewHashEmbedder(32)}, nil)

	report := a.Answer(context.Background(), "wildfire", []models.Task{models.TaskReport})
	assert.Equal(t, synthesis.MsgModelsUnavailable, report.Results[models.TaskReport].AnswerText)
	assert.Empty(t, report.Results[models.TaskReport].Sources)
}

func TestAnswerInsufficientContent(t *testing.T) {
	acq := &fakeAcquirer{articles: []models.Article{{URL: "https://news.test/s", FullText: "Too short."}}}
	a := newTestAggregator(t, acq, testProviders(), nil)

	report := a.Answer(context.Background(), "wildfire", []models.Task{models.TaskTimeline})
	assert.Equal(t, models.StatusOK, report.Status)
	assert.Equal(t, synthesis.MsgInsufficientContent, report.Results[models.TaskTimeline].AnswerText)
}

func TestAnswerUsesCache(t *testing.T) {
	acq := &fakeAcquirer{articles: storyArticles()}
	c := cache.New(time.Minute)
	defer c.Close()
	a := newTestAggregator(t, acq, testProviders(), c)

	first := a.Answer(context.Background(), "Wildfire", nil)
	second := a.Answer(context.Background(), "  wildfire ", nil)

	assert.Equal(t, int32(1), acq.calls.Load())
	assert.Equal(t, first.RequestID, second.RequestID)
}

func TestAnswerModelFailureNotCached(t *testing.T) {
	acq := &fakeAcquirer{articles: storyArticles()}
	c := cache.New(time.Minute)
	defer c.Close()
	gen := &flakyGenerator{failures: 1}
	a := newTestAggregator(t, acq, ai.Providers{Embedder: ai.NewHashEmbedder(128), Generator: gen}, c)

	first := a.Answer(context.Background(), "wildfire", nil)
	assert.Equal(t, synthesis.MsgQueryFailed, first.Results[models.TaskReport].AnswerText)
	assert.True(t, first.Degraded)

	second := a.Answer(context.Background(), "wildfire", nil)
	assert.Equal(t, "answer with 5 context blocks", second.Results[models.TaskReport].AnswerText)
	assert.False(t, second.Degraded)
	assert.Equal(t, int32(2), acq.calls.Load())
	assert.Equal(t, int32(2), gen.calls.Load())

	third := a.Answer(context.Background(), "wildfire", nil)
	assert.Equal(t, second.RequestID, third.RequestID)
	assert.Equal(t, int32(2), acq.calls.Load())
}

func TestAnswerWithoutModelsNotCached(t *testing.T) {
	acq := &fakeAcquirer{articles: storyArticles()}
	c := cache.New(time.Minute)
	defer c.Close()
	a := newTestAggregator(t, acq, ai.Providers{Embedder: ai.NewHashEmbedder(32)}, c)

	a.Answer(context.Background(), "wildfire", nil)
	a.Answer(context.Background(), "wildfire", nil)
	assert.Equal(t, int32(2), acq.calls.Load())
}

func TestAnswerCancelledNotCached(t *testing.T) {
	acq := &slowAcquirer{fakeAcquirer: fakeAcquirer{articles: storyArticles()}, delay: time.Second}
	c := cache.New(time.Minute)
	defer c.Close()
	a := newTestAggregator(t, acq, testProviders(), c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := a.Answer(ctx, "wildfire", nil)
	assert.Equal(t, models.StatusNoArticles, report.Status)
	assert.True(t, report.Degraded)

	acq.delay = 0
	report = a.Answer(context.Background(), "wildfire", nil)
	assert.Equal(t, models.StatusOK, report.Status)
	assert.Equal(t, int32(2), acq.calls.Load())
}

func TestAnswerHandlerOutlivesClient(t *testing.T) {
	acq := &slowAcquirer{fakeAcquirer: fakeAcquirer{articles: storyArticles()}, delay: 20 * time.Millisecond}
	c := cache.New(time.Minute)
	defer c.Close()
	a := newTestAggregator(t, acq, testProviders(), c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/answer?q=wildfire", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	a.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, models.StatusOK, report.Status)
	assert.NotEmpty(t, report.Articles)

	later := a.Answer(context.Background(), "wildfire", nil)
	assert.Equal(t, models.StatusOK, later.Status)
	assert.Equal(t, report.RequestID, later.RequestID)
	assert.Equal(t, int32(1), acq.calls.Load())
}

func TestAnswerHandler(t *testing.T) {
	a := newTestAggregator(t, &fakeAcquirer{articles: storyArticles()}, testProviders(), nil)
	handler := a.Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/answer?q=wildfire&task=report,timeline", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "wildfire", report.Query)
	assert.Len(t, report.Results, 2)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/answer",
		strings.NewReader(`{"query":"wildfire","task":"contradictions"}`)))
	// POST without a JSON content type falls back to form values
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/answer", strings.NewReader(`{"query":"wildfire","task":"contradictions"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	report = models.Report{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Len(t, report.Results, 1)
	assert.Contains(t, report.Results, models.TaskContradictions)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/answer?q=x&task=poem", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/answer?q=x", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	a := newTestAggregator(t, &fakeAcquirer{}, testProviders(), nil)
	rec := httptest.NewRecorder()
	a.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	a = newTestAggregator(t, &fakeAcquirer{}, ai.Providers{Embedder: ai.NewHashEmbedder(8)}, nil)
	rec = httptest.NewRecorder()
	a.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")
}

func TestStatsAndExtraHandlers(t *testing.T) {
	c := cache.New(time.Minute)
	defer c.Close()
	a := newTestAggregator(t, &fakeAcquirer{}, testProviders(), c)
	a.Handle("/webhook", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	handler := a.Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cache_stats")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.ServerPort = "0"
	a := New(cfg, Deps{Providers: testProviders(), Acquirer: &fakeAcquirer{}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, a.isRunning, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, a.isRunning())
}
