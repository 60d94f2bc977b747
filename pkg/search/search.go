package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

const maxErrorBodyBytes = 8 * 1024
const maxQueryWords = 50

var ErrMissingAPIKey = errors.New("search api key is not configured")

// APIError is a non-2xx response from a search backend.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Provider, e.StatusCode, e.Body)
}

// New returns the provider selected by SEARCH_PROVIDER.
func New(ctx context.Context, cfg *config.Config, httpClient *http.Client) (research.SearchProvider, error) {
	var (
		provider research.SearchProvider
		err      error
	)
	switch cfg.SearchProvider {
	case "", "tavily":
		provider, err = NewTavilyClient(cfg, httpClient)
	case "brave":
		provider, err = NewBraveClient(cfg, httpClient)
	case "arxiv":
		provider = NewArxivClient(cfg, httpClient)
	case "gemini", "google":
		provider, err = NewGroundingClient(ctx, cfg)
	default:
		err = fmt.Errorf("unknown search provider %q", cfg.SearchProvider)
	}
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func trimToWordLimit(input string, maxWords int) string {
	if maxWords <= 0 {
		return ""
	}
	words := strings.Fields(strings.TrimSpace(input))
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ")
}
