package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// BraveClient calls the Brave web search API.
type BraveClient struct {
	apiKey     string
	baseURL    string
	count      int
	httpClient *http.Client
}

type braveAPIResponse struct {
	Web struct {
		Results []braveAPIResult `json:"results"`
	} `json:"web"`
	Results []braveAPIResult `json:"results"`
}

type braveAPIResult struct {
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Snippet       string   `json:"snippet"`
	ExtraSnippets []string `json:"extra_snippets"`
	Age           string   `json:"age"`
}

func NewBraveClient(cfg *config.Config, httpClient *http.Client) (*BraveClient, error) {
	apiKey := strings.TrimSpace(cfg.BraveApiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("brave: %w", ErrMissingAPIKey)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	count := cfg.SearchResultsPerQuery
	if count <= 0 {
		count = 5
	}
	return &BraveClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BraveBaseURL), "/"),
		count:      count,
		httpClient: httpClient,
	}, nil
}

func (c *BraveClient) Search(ctx context.Context, query string) (any, error) {
	trimmedQuery := trimToWordLimit(query, maxQueryWords)
	if trimmedQuery == "" {
		return []research.RawResult{}, nil
	}

	endpoint, err := url.Parse(c.baseURL + "/web/search")
	if err != nil {
		return nil, fmt.Errorf("parse brave endpoint: %w", err)
	}

	params := endpoint.Query()
	params.Set("q", trimmedQuery)
	params.Set("count", fmt.Sprintf("%d", c.count))
	params.Set("spellcheck", "0")
	params.Set("text_decorations", "0")
	endpoint.RawQuery = params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build brave request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request brave: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, APIError{
			Provider:   "brave",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var parsed braveAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode brave response: %w", err)
	}

	rawResults := parsed.Web.Results
	if len(rawResults) == 0 {
		rawResults = parsed.Results
	}

	results := make([]research.RawResult, 0, len(rawResults))
	for _, item := range rawResults {
		rawURL := strings.TrimSpace(item.URL)
		if rawURL == "" {
			continue
		}

		snippet := strings.TrimSpace(item.Description)
		if snippet == "" {
			snippet = strings.TrimSpace(item.Snippet)
		}
		if len(item.ExtraSnippets) > 0 {
			snippet = strings.TrimSpace(snippet + "\n" + strings.Join(item.ExtraSnippets, "\n"))
		}

		results = append(results, research.RawResult{
			URL:           rawURL,
			Title:         strings.TrimSpace(item.Title),
			Content:       snippet,
			PublishedDate: item.Age,
		})

		if len(results) >= c.count {
			break
		}
	}

	return results, nil
}
