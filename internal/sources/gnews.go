package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ObiAU/newsrag/internal/models"
)

type GNewsClient struct {
	apiKey   string
	baseURL  string
	language string
	client   *http.Client
}

type GNewsResponse struct {
	TotalArticles int `json:"totalArticles"`
	Articles      []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"source"`
	} `json:"articles"`
	Errors []string `json:"errors"`
}

func NewGNewsClient(apiKey, baseURL, language string, timeout time.Duration) *GNewsClient {
	if baseURL == "" {
		baseURL = "https://gnews.io"
	}
	if language == "" {
		language = "en"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GNewsClient{
		apiKey:   apiKey,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		language: language,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *GNewsClient) Search(ctx context.Context, query string, limit int) ([]models.Article, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("lang", c.language)
	params.Set("max", strconv.Itoa(clampLimit(limit)))
	params.Set("sortby", "relevance")
	params.Set("token", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v4/search?"+params.Encode(), nil)
	if err != nil {
		return nil, &APIError{Provider: c.GetName(), Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &APIError{Provider: c.GetName(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: c.GetName(), StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", resp.Status)}
	}

	var apiResp GNewsResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &APIError{Provider: c.GetName(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(apiResp.Errors) > 0 {
		return nil, &APIError{Provider: c.GetName(), Err: fmt.Errorf("gnews error: %s", strings.Join(apiResp.Errors, "; "))}
	}

	articles := make([]models.Article, 0, len(apiResp.Articles))
	for _, item := range apiResp.Articles {
		publishedAt, _ := time.Parse(time.RFC3339, item.PublishedAt)

		articles = append(articles, models.Article{
			ID:          fmt.Sprintf("gnews_%s", item.URL),
			Title:       item.Title,
			SourceName:  item.Source.Name,
			URL:         item.URL,
			Snippet:     item.Description,
			PublishedAt: publishedAt,
			Hash:        generateHash(item.URL),
		})
	}

	return dedupeByURL(articles), nil
}

func (c *GNewsClient) GetName() string {
	return "gnews"
}
