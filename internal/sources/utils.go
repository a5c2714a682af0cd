package sources

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/ObiAU/newsrag/internal/models"
)

// ErrUpstream is wrapped by every search provider failure.
var ErrUpstream = errors.New("search provider unavailable")

// APIError describes a failed call to a search provider.
type APIError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s returned status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *APIError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

func generateHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxResults {
		return MaxResults
	}
	return limit
}

// dedupeByURL drops results without a url and repeated urls, keeping the
// first occurrence so relevance order survives.
func dedupeByURL(articles []models.Article) []models.Article {
	seen := make(map[string]bool, len(articles))
	out := articles[:0]
	for _, a := range articles {
		u := strings.TrimSpace(a.URL)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		a.URL = u
		out = append(out, a)
	}
	return out
}
