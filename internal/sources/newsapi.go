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

// MaxResults caps how many articles one search may return.
const MaxResults = 30

type NewsAPIClient struct {
	apiKey   string
	baseURL  string
	language string
	client   *http.Client
}

type NewsAPIResponse struct {
	Status       string `json:"status"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"source"`
		Author      string `json:"author"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Content     string `json:"content"`
	} `json:"articles"`
}

func NewNewsAPIClient(apiKey, baseURL, language string, timeout time.Duration) *NewsAPIClient {
	if baseURL == "" {
		baseURL = "https://newsapi.org"
	}
	if language == "" {
		language = "en"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NewsAPIClient{
		apiKey:   apiKey,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		language: language,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *NewsAPIClient) Search(ctx context.Context, query string, limit int) ([]models.Article, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("apiKey", c.apiKey)
	params.Set("pageSize", strconv.Itoa(clampLimit(limit)))
	params.Set("language", c.language)
	params.Set("sortBy", "relevancy")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, &APIError{Provider: c.GetName(), Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &APIError{Provider: c.GetName(), Err: err}
	}
	defer resp.Body.Close()

	var apiResp NewsAPIResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&apiResp)

	if resp.StatusCode != http.StatusOK {
		msg := apiResp.Message
		if msg == "" {
			msg = resp.Status
		}
		return nil, &APIError{Provider: c.GetName(), StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", msg)}
	}
	if decodeErr != nil {
		return nil, &APIError{Provider: c.GetName(), Err: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if apiResp.Status != "ok" {
		return nil, &APIError{Provider: c.GetName(), Err: fmt.Errorf("newsapi error: %s %s", apiResp.Code, apiResp.Message)}
	}

	articles := make([]models.Article, 0, len(apiResp.Articles))
	for _, apiArticle := range apiResp.Articles {
		publishedAt, _ := time.Parse(time.RFC3339, apiArticle.PublishedAt)

		articles = append(articles, models.Article{
			ID:          fmt.Sprintf("newsapi_%s", apiArticle.URL),
			Title:       apiArticle.Title,
			SourceName:  apiArticle.Source.Name,
			URL:         apiArticle.URL,
			Snippet:     apiArticle.Description,
			PublishedAt: publishedAt,
			Hash:        generateHash(apiArticle.URL),
		})
	}

	return dedupeByURL(articles), nil
}

func (c *NewsAPIClient) GetName() string {
	return "newsapi"
}
