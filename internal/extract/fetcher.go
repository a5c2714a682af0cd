package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxPageBytes = 2 << 20

// ErrNoContent means the page loaded but no extraction heuristic found
// enough article text.
var ErrNoContent = errors.New("no article text extracted")

// Fetcher downloads one page and extracts its article text.
type Fetcher struct {
	client    *http.Client
	extractor *Extractor
	timeout   time.Duration
	userAgent string
}

func NewFetcher(client *http.Client, extractor *Extractor, timeout time.Duration, userAgent string) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if extractor == nil {
		extractor = NewExtractor(DefaultMinLength)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; newsrag/1.0)"
	}
	return &Fetcher{client: client, extractor: extractor, timeout: timeout, userAgent: userAgent}
}

// Fetch runs under its own timeout so one slow page cannot hold others.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("page returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}

	var text string
	if strings.Contains(resp.Header.Get("Content-Type"), "text/plain") {
		text = cleanText(string(body))
		if !f.extractor.longEnough(text) {
			text = ""
		}
	} else {
		text = f.extractor.Extract(body)
	}

	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}
