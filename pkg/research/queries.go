package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mikeboe/deep-research/pkg/metrics"
)

const queryWriterInstructions = `You are a research planner conducting deep, multi-angle web research.
Generate %d specific, distinct search queries for the research topic.

Query rules:
- Prefer concrete names, products, organisations and sites over generic wording
- Mix expert reviews, community experience, technical detail, pricing and trends
- Include the current year where recency matters
- Every query must target a different angle

Current Date: %s

# Response Format:
Return the JSON object directly without any formatting or additional text:
{
  "type": "object",
  "properties": {
    "queries": {"type": "array", "items": {"type": "string"}, "description": "List of %d search queries"},
    "rationale": {"type": "string", "description": "Why these queries cover the topic"}
  },
  "required": ["queries", "rationale"]
}`

// fallbackQueryTemplates are topic-agnostic angles used when the model is
// unavailable. %s is the topic.
var fallbackQueryTemplates = []string{
	"%s overview",
	"best %s expert reviews",
	"%s comparison of top options",
	"%s reddit long term experience",
	"%s common problems and complaints",
	"%s buying guide",
	"%s price and value analysis",
	"%s latest trends",
	"%s technical specifications explained",
	"%s alternatives",
}

type queryPlanResponse struct {
	Queries   []string `json:"queries"`
	Query     []string `json:"query"`
	Rationale string   `json:"rationale"`
}

func (r queryPlanResponse) list() []string {
	if len(r.Queries) > 0 {
		return r.Queries
	}
	return r.Query
}

// QueryGenerator produces the initial batch of search queries.
type QueryGenerator struct {
	completer *Completer
	logger    *slog.Logger
	now       func() time.Time
}

func NewQueryGenerator(completer *Completer, logger *slog.Logger) *QueryGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryGenerator{completer: completer, logger: logger, now: time.Now}
}

// Generate never fails: on model or decode failure it returns the
// deterministic fallback plan. The result always holds exactly count queries.
func (g *QueryGenerator) Generate(ctx context.Context, topic string, count int) QueryPlan {
	if count < 1 {
		count = defaultInitialQueryCount
	}
	topic = strings.TrimSpace(topic)

	system := fmt.Sprintf(queryWriterInstructions, count, g.now().Format("January 2, 2006"), count)
	input := fmt.Sprintf("Research Topic: %s", topic)

	resp, err := completeJSON(ctx, g.completer, system, input, func(r queryPlanResponse) error {
		if len(dedupeQueries(r.list())) == 0 {
			return errors.New("empty queries list")
		}
		return nil
	})
	if err != nil {
		g.logger.Warn("Query generation failed, using fallback queries", "topic", topic, "error", err)
		metrics.ProviderCalls.WithLabelValues("query_generator", "fallback").Inc()
		return QueryPlan{
			Queries:   FallbackQueries(topic, count),
			Rationale: fmt.Sprintf("Query generation unavailable (%v); using fallback research queries.", err),
			Degraded:  true,
		}
	}

	metrics.ProviderCalls.WithLabelValues("query_generator", "ok").Inc()
	queries := fitQueries(dedupeQueries(resp.list()), FallbackQueries(topic, 2*count), count)
	rationale := strings.TrimSpace(resp.Rationale)
	if rationale == "" {
		rationale = "Multi-angle research plan"
	}
	g.logger.Info("Generated queries", "count", len(queries), "queries", queries)
	return QueryPlan{Queries: queries, Rationale: rationale}
}

// FallbackQueries returns count deterministic queries for topic.
func FallbackQueries(topic string, count int) []string {
	return fallbackQueriesFrom(topic, count, 0)
}

// fallbackQueriesFrom starts at offset in the template list so later rounds
// ask different questions.
func fallbackQueriesFrom(topic string, count, offset int) []string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = "research topic"
	}
	queries := make([]string, 0, count)
	n := len(fallbackQueryTemplates)
	for i := 0; len(queries) < count; i++ {
		idx := offset + i
		query := fmt.Sprintf(fallbackQueryTemplates[idx%n], topic)
		if round := idx / n; round > 0 {
			query = fmt.Sprintf("%s (perspective %d)", query, round+1)
		}
		queries = append(queries, query)
	}
	return queries
}

// fitQueries truncates or pads queries to exactly count entries.
func fitQueries(queries, padding []string, count int) []string {
	if len(queries) >= count {
		return queries[:count]
	}
	out := append([]string(nil), queries...)
	seen := make(map[string]struct{}, count)
	for _, q := range out {
		seen[strings.ToLower(q)] = struct{}{}
	}
	for _, q := range padding {
		if len(out) == count {
			break
		}
		if _, ok := seen[strings.ToLower(q)]; ok {
			continue
		}
		seen[strings.ToLower(q)] = struct{}{}
		out = append(out, q)
	}
	return out
}

func dedupeQueries(queries []string) []string {
	if len(queries) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	for _, query := range queries {
		normalized := strings.Join(strings.Fields(query), " ")
		if normalized == "" {
			continue
		}
		key := strings.ToLower(normalized)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
