package research

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResults(t *testing.T) {
	typed := []RawResult{{URL: "https://example.com/a", Title: " A ", Content: "alpha"}, {}}

	tests := []struct {
		name    string
		payload any
		want    []RawResult
	}{
		{"Nil", nil, []RawResult{}},
		{"Typed slice", typed, []RawResult{{URL: "https://example.com/a", Title: "A", Content: "alpha"}}},
		{"Typed pointer", &typed, []RawResult{{URL: "https://example.com/a", Title: "A", Content: "alpha"}}},
		{
			"JSON string with results",
			`{"results":[{"url":"https://example.com/a","title":"A","content":"alpha","score":0.5}]}`,
			[]RawResult{{URL: "https://example.com/a", Title: "A", Content: "alpha", Score: 0.5}},
		},
		{
			"JSON raw message array",
			json.RawMessage(`[{"link":"https://example.com/b","name":"B","snippet":"beta","date":"2025-01-01"}]`),
			[]RawResult{{URL: "https://example.com/b", Title: "B", Content: "beta", PublishedDate: "2025-01-01"}},
		},
		{
			"Decoded content object",
			map[string]any{"content": []any{map[string]any{"href": "https://example.com/c", "description": "gamma"}}},
			[]RawResult{{URL: "https://example.com/c", Content: "gamma"}},
		},
		{
			"Decoded array skips junk",
			[]any{"string item", map[string]any{"title": "no url or content"}, map[string]any{"url": "https://example.com/d"}},
			[]RawResult{{URL: "https://example.com/d"}},
		},
		{"Unknown object", map[string]any{"items": []any{}}, []RawResult{}},
		{"Invalid JSON string", "not json", []RawResult{}},
		{"Unsupported type", 42, []RawResult{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseResults(tt.payload))
		})
	}
}

func TestRetrieverNeverFails(t *testing.T) {
	tests := []struct {
		name     string
		provider SearchProvider
	}{
		{"Error", failingSearch()},
		{"Panic", fakeSearch{fn: func(context.Context, string) (any, error) { panic("boom") }}},
		{"Unknown shape", fakeSearch{fn: func(context.Context, string) (any, error) { return 3.14, nil }}},
		{"Timeout", fakeSearch{fn: func(ctx context.Context, _ string) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}},
		{"Late payload after timeout", fakeSearch{fn: func(ctx context.Context, _ string) (any, error) {
			<-ctx.Done()
			return []RawResult{{URL: "https://example.com/late"}}, nil
		}}},
		{"Nil provider", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetriever(tt.provider, 20*time.Millisecond, nil)
			results := r.Search(context.Background(), "chairs")
			require.NotNil(t, results)
			assert.Empty(t, results)
		})
	}
}

func TestRetrieverReturnsResults(t *testing.T) {
	provider := fakeSearch{fn: func(_ context.Context, query string) (any, error) {
		return `[{"url":"https://example.com/` + query + `","content":"x"}]`, nil
	}}

	results := NewRetriever(provider, time.Second, nil).Search(context.Background(), "chairs")

	require.Len(t, results, 1)
	assert.Equal(t, "https://example.com/chairs", results[0].URL)
}

func TestCompleterRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	llm := newFakeLLM(func(string, string) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	c := NewCompleter(llm, Config{MaxRetries: 2, CallTimeout: time.Second}, nil)
	c.Backoff = time.Millisecond

	out, err := c.GenerateText(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, attempts)
}

func TestCompleterWrapsFailures(t *testing.T) {
	c := testCompleter(failingLLM())

	_, err := c.GenerateText(context.Background(), "", "hello")
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = (*Completer)(nil).GenerateText(context.Background(), "", "hello")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Queries []string `json:"queries"`
	}

	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{"Plain", `{"queries":["a"]}`, []string{"a"}, false},
		{"Fenced", "```json\n{\"queries\":[\"b\"]}\n```", []string{"b"}, false},
		{"Surrounded by prose", `Here you go: {"queries":["c"]} hope it helps`, []string{"c"}, false},
		{"No object", "no json here", nil, true},
		{"Broken", `{"queries":[}`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeJSON[payload](tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSchemaValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Queries)
		})
	}
}
