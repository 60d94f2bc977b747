package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mikeboe/deep-research/pkg/metrics"
)

// shapeMatcher recognizes one provider response shape.
type shapeMatcher struct {
	name  string
	match func(payload any) ([]RawResult, bool)
}

// decodedMatchers apply to an already-decoded JSON value.
var decodedMatchers = []shapeMatcher{
	{name: "array", match: matchArray},
	{name: "results-object", match: matchWrapped("results")},
	{name: "content-object", match: matchWrapped("content")},
}

// shapeMatchers is the full priority order, first match wins.
var shapeMatchers = append([]shapeMatcher{
	{name: "typed", match: matchTyped},
	{name: "json-string", match: matchJSONString},
}, decodedMatchers...)

// ParseResults normalizes a provider payload. It returns an empty slice
// when no known shape matches.
func ParseResults(payload any) []RawResult {
	results, _ := parseResults(payload)
	return results
}

func parseResults(payload any) ([]RawResult, string) {
	if payload == nil {
		return []RawResult{}, ""
	}
	for _, m := range shapeMatchers {
		if results, ok := m.match(payload); ok {
			return results, m.name
		}
	}
	return []RawResult{}, ""
}

func matchTyped(payload any) ([]RawResult, bool) {
	switch v := payload.(type) {
	case []RawResult:
		return cleanResults(v), true
	case *[]RawResult:
		if v == nil {
			return nil, false
		}
		return cleanResults(*v), true
	}
	return nil, false
}

func matchJSONString(payload any) ([]RawResult, bool) {
	var raw []byte
	switch v := payload.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	default:
		return nil, false
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, false
	}
	for _, m := range decodedMatchers {
		if results, ok := m.match(decoded); ok {
			return results, true
		}
	}
	return nil, false
}

func matchArray(payload any) ([]RawResult, bool) {
	items, ok := payload.([]any)
	if !ok {
		return nil, false
	}
	return resultsFromItems(items), true
}

func matchWrapped(key string) func(any) ([]RawResult, bool) {
	return func(payload any) ([]RawResult, bool) {
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil, false
		}
		items, ok := obj[key].([]any)
		if !ok {
			return nil, false
		}
		return resultsFromItems(items), true
	}
}

func resultsFromItems(items []any) []RawResult {
	results := make([]RawResult, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		result := RawResult{
			URL:           firstString(obj, "url", "link", "href"),
			Title:         firstString(obj, "title", "name"),
			Content:       firstString(obj, "content", "snippet", "description", "body"),
			Score:         firstNumber(obj, "score", "relevance"),
			PublishedDate: firstString(obj, "published_date", "date"),
		}
		if result.URL == "" && result.Content == "" {
			continue
		}
		results = append(results, result)
	}
	return results
}

func cleanResults(in []RawResult) []RawResult {
	out := make([]RawResult, 0, len(in))
	for _, r := range in {
		r.URL = strings.TrimSpace(r.URL)
		r.Title = strings.TrimSpace(r.Title)
		r.Content = strings.TrimSpace(r.Content)
		if r.URL == "" && r.Content == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := obj[key].(string); ok {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func firstNumber(obj map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := obj[key].(float64); ok {
			return v
		}
	}
	return 0
}

// Retriever wraps one SearchProvider behind a contract that never fails:
// provider errors, timeouts and unknown shapes all yield no results.
type Retriever struct {
	provider SearchProvider
	timeout  time.Duration
	logger   *slog.Logger
}

func NewRetriever(provider SearchProvider, timeout time.Duration, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Retriever{provider: provider, timeout: timeout, logger: logger}
}

func (r *Retriever) Search(ctx context.Context, query string) []RawResult {
	if r == nil || r.provider == nil {
		return []RawResult{}
	}

	payload, err := r.call(ctx, query)
	if err != nil {
		r.logger.Warn("Search failed, continuing without results", "query", query, "error", err)
		metrics.ProviderCalls.WithLabelValues("retrieval", "failed").Inc()
		return []RawResult{}
	}

	results, shape := parseResults(payload)
	if shape == "" {
		r.logger.Warn("Unrecognized search response shape", "query", query, "type", fmt.Sprintf("%T", payload))
		metrics.ProviderCalls.WithLabelValues("retrieval", "unrecognized").Inc()
		return []RawResult{}
	}

	metrics.ProviderCalls.WithLabelValues("retrieval", "ok").Inc()
	r.logger.Debug("Search completed", "query", query, "shape", shape, "count", len(results))
	return results
}

func (r *Retriever) call(ctx context.Context, query string) (payload any, err error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: provider panic: %v", ErrProviderUnavailable, rec)
		}
	}()

	payload, err = r.provider.Search(callCtx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	if callErr := callCtx.Err(); callErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, callErr)
	}
	return payload, nil
}
