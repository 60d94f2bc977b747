package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// ArxivClient searches arXiv papers. Useful for academic topics; it needs
// no API key.
type ArxivClient struct {
	baseURL    string
	maxResults int
	httpClient *http.Client
}

func NewArxivClient(cfg *config.Config, httpClient *http.Client) *ArxivClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	maxResults := cfg.SearchResultsPerQuery
	if maxResults <= 0 {
		maxResults = 5
	}
	baseURL := strings.TrimSpace(cfg.ArxivBaseURL)
	if baseURL == "" {
		baseURL = "https://export.arxiv.org/api/query"
	}
	return &ArxivClient{baseURL: baseURL, maxResults: maxResults, httpClient: httpClient}
}

func (c *ArxivClient) Search(ctx context.Context, query string) (any, error) {
	trimmedQuery := trimToWordLimit(query, maxQueryWords)
	if trimmedQuery == "" {
		return []research.RawResult{}, nil
	}

	params := url.Values{}
	params.Add("search_query", "all:"+trimmedQuery)
	params.Add("max_results", strconv.Itoa(c.maxResults))
	params.Add("start", "0")
	apiURL := c.baseURL + "?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build arxiv request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, APIError{
			Provider:   "arxiv",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(bodyBytes)),
		}
	}

	var feed ArxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	results := make([]research.RawResult, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		results = append(results, research.RawResult{
			URL:           entry.pageURL(),
			Title:         strings.Join(strings.Fields(entry.Title), " "),
			Content:       strings.Join(strings.Fields(entry.Summary), " "),
			PublishedDate: entry.Published,
		})
	}
	return results, nil
}

// pageURL prefers the abstract page over the PDF link.
func (e ArxivEntry) pageURL() string {
	var pdf string
	for _, link := range e.Link {
		switch {
		case link.Rel == "alternate" && link.Href != "":
			return link.Href
		case link.Type == "application/pdf" && pdf == "":
			pdf = link.Href
		}
	}
	if pdf != "" {
		return pdf
	}
	return strings.TrimSpace(e.ID)
}
