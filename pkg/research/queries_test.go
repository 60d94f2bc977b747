package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFallsBackOnModelFailure(t *testing.T) {
	g := NewQueryGenerator(testCompleter(failingLLM()), nil)

	plan := g.Generate(context.Background(), "office chairs", 8)

	assert.True(t, plan.Degraded)
	assert.Equal(t, FallbackQueries("office chairs", 8), plan.Queries)
	assert.Len(t, dedupeQueries(plan.Queries), 8)
	assert.Contains(t, plan.Rationale, "fallback")
}

func TestGenerateFitsCount(t *testing.T) {
	tests := []struct {
		name     string
		response string
		count    int
		want     []string
	}{
		{
			name:     "Truncates",
			response: `{"queries":["a","b","c","d"],"rationale":"r"}`,
			count:    2,
			want:     []string{"a", "b"},
		},
		{
			name:     "Pads with fallback",
			response: `{"queries":["a","A"],"rationale":"r"}`,
			count:    3,
			want:     []string{"a", "lamps overview", "best lamps expert reviews"},
		},
		{
			name:     "Accepts query key",
			response: `{"query":["x  y","z"]}`,
			count:    2,
			want:     []string{"x y", "z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := newFakeLLM(func(string, string) (string, error) { return tt.response, nil })
			plan := NewQueryGenerator(testCompleter(llm), nil).Generate(context.Background(), "lamps", tt.count)

			assert.False(t, plan.Degraded)
			assert.Equal(t, tt.want, plan.Queries)
			assert.NotEmpty(t, plan.Rationale)
		})
	}
}

func TestGenerateRejectsEmptyQueries(t *testing.T) {
	llm := newFakeLLM(func(string, string) (string, error) { return `{"queries":["  "],"rationale":"r"}`, nil })

	plan := NewQueryGenerator(testCompleter(llm), nil).Generate(context.Background(), "lamps", 4)

	assert.True(t, plan.Degraded)
	assert.Len(t, plan.Queries, 4)
}

func TestFallbackQueriesFrom(t *testing.T) {
	queries := fallbackQueriesFrom("desks", 12, 5)

	require.Len(t, queries, 12)
	assert.Equal(t, "desks buying guide", queries[0])
	assert.Equal(t, "desks overview (perspective 2)", queries[5])
	assert.Len(t, dedupeQueries(queries), 12)

	assert.Equal(t, "research topic overview", FallbackQueries("  ", 1)[0])
}
