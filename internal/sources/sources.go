package sources

import (
	"fmt"

	"github.com/ObiAU/newsrag/internal/config"
	"github.com/ObiAU/newsrag/internal/models"
)

var (
	_ models.SearchSource = (*NewsAPIClient)(nil)
	_ models.SearchSource = (*GNewsClient)(nil)
)

// New returns the search provider named by cfg.Provider.
func New(cfg config.SearchConfig) (models.SearchSource, error) {
	switch cfg.Provider {
	case "", "newsapi":
		return NewNewsAPIClient(cfg.NewsAPIKey, cfg.NewsAPIURL, cfg.Language, cfg.Timeout), nil
	case "gnews":
		return NewGNewsClient(cfg.GNewsAPIKey, cfg.GNewsURL, cfg.Language, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported search provider: %s (use 'newsapi' or 'gnews')", cfg.Provider)
	}
}
