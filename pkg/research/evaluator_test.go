package research

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionAtLoop(loop int) *Session {
	s := NewSession("standing desks")
	s.LoopCount = loop
	s.Findings = []Finding{{Query: "standing desks overview"}}
	s.SummaryNarratives = []string{"Desks vary in motor quality."}
	s.TotalQueriesExecuted = 1
	return s
}

func TestEvaluateLoopGate(t *testing.T) {
	llm := newFakeLLM(func(string, string) (string, error) {
		return `{"is_sufficient":true,"knowledge_gap":"","follow_up_queries":[]}`, nil
	})
	e := NewEvaluator(testCompleter(llm), testConfig(), nil)

	for loop := 0; loop < 3; loop++ {
		t.Run(fmt.Sprintf("loop %d", loop), func(t *testing.T) {
			verdict := e.Evaluate(context.Background(), sessionAtLoop(loop))
			assert.False(t, verdict.IsSufficient)
			assert.NotEmpty(t, verdict.FollowUpQueries)
		})
	}

	verdict := e.Evaluate(context.Background(), sessionAtLoop(3))
	assert.True(t, verdict.IsSufficient)
	assert.Empty(t, verdict.FollowUpQueries)
}

func TestEvaluateFailurePolicy(t *testing.T) {
	e := NewEvaluator(testCompleter(failingLLM()), testConfig(), nil)

	tests := []struct {
		loop       int
		sufficient bool
	}{
		{0, false},
		{1, false},
		{2, false},
		{3, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("loop %d", tt.loop), func(t *testing.T) {
			verdict := e.Evaluate(context.Background(), sessionAtLoop(tt.loop))
			assert.Equal(t, tt.sufficient, verdict.IsSufficient)
			if tt.sufficient {
				assert.Empty(t, verdict.FollowUpQueries)
				return
			}
			assert.NotEmpty(t, verdict.FollowUpQueries)
			assert.LessOrEqual(t, len(verdict.FollowUpQueries), 5)
		})
	}
}

func TestEvaluateFailsClosedBeforeLastLoop(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLoops = 6
	e := NewEvaluator(testCompleter(failingLLM()), cfg, nil)

	assert.False(t, e.Evaluate(context.Background(), sessionAtLoop(3)).IsSufficient)
	assert.False(t, e.Evaluate(context.Background(), sessionAtLoop(4)).IsSufficient)
	assert.True(t, e.Evaluate(context.Background(), sessionAtLoop(5)).IsSufficient)
}

func TestEvaluateMissingFieldIsSchemaFailure(t *testing.T) {
	llm := newFakeLLM(func(string, string) (string, error) {
		return `{"knowledge_gap":"pricing","follow_up_queries":["a"]}`, nil
	})
	e := NewEvaluator(testCompleter(llm), testConfig(), nil)

	verdict := e.Evaluate(context.Background(), sessionAtLoop(3))
	assert.True(t, verdict.IsSufficient)
}

func TestEvaluateCapsFollowUps(t *testing.T) {
	llm := newFakeLLM(func(string, string) (string, error) {
		return `{"is_sufficient":false,"knowledge_gap":"pricing","follow_up_queries":[
			"standing desks overview","q1","q2","Q2","q3","q4","q5","q6","q7"]}`, nil
	})
	e := NewEvaluator(testCompleter(llm), testConfig(), nil)

	verdict := e.Evaluate(context.Background(), sessionAtLoop(1))

	assert.False(t, verdict.IsSufficient)
	assert.Equal(t, "pricing", verdict.KnowledgeGap)
	assert.Equal(t, []string{"q1", "q2", "q3", "q4", "q5"}, verdict.FollowUpQueries)
}

func TestEvaluateFallbackSkipsExecutedQueries(t *testing.T) {
	e := NewEvaluator(testCompleter(failingLLM()), testConfig(), nil)
	session := sessionAtLoop(0)
	session.TotalQueriesExecuted = 0

	verdict := e.Evaluate(context.Background(), session)

	require.Len(t, verdict.FollowUpQueries, 5)
	for _, q := range verdict.FollowUpQueries {
		assert.False(t, strings.EqualFold(q, "standing desks overview"))
	}
}
