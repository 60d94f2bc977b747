package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mikeboe/deep-research/pkg/config"
)

// TavilyClient calls the Tavily search API. It returns the response body
// undecoded; the retriever normalizes its shape.
type TavilyClient struct {
	apiKey      string
	baseURL     string
	maxResults  int
	searchDepth string
	httpClient  *http.Client
}

type tavilyRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth,omitempty"`
	IncludeAnswer bool   `json:"include_answer"`
}

func NewTavilyClient(cfg *config.Config, httpClient *http.Client) (*TavilyClient, error) {
	apiKey := strings.TrimSpace(cfg.TavilyApiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("tavily: %w", ErrMissingAPIKey)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	maxResults := cfg.SearchResultsPerQuery
	if maxResults <= 0 {
		maxResults = 8
	}
	return &TavilyClient{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.TavilyBaseURL), "/"),
		maxResults:  maxResults,
		searchDepth: cfg.TavilySearchDepth,
		httpClient:  httpClient,
	}, nil
}

func (c *TavilyClient) Search(ctx context.Context, query string) (any, error) {
	trimmedQuery := trimToWordLimit(query, maxQueryWords)
	if trimmedQuery == "" {
		return json.RawMessage(`{"results":[]}`), nil
	}

	body, err := json.Marshal(tavilyRequest{
		Query:       trimmedQuery,
		MaxResults:  c.maxResults,
		SearchDepth: c.searchDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tavily request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tavily request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request tavily: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, APIError{
			Provider:   "tavily",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(errBody)),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tavily response: %w", err)
	}
	return json.RawMessage(raw), nil
}
