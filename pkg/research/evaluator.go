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

const reflectionInstructions = `You are an expert research assistant analyzing summaries about "%s".
This is research round %d of at most %d.

Instructions:
- Decide whether the summaries answer the topic comprehensively: concrete options, expert opinion, real user experience, pricing and current trends
- If they do not, name the knowledge gap and write up to %d follow-up search queries that close it
- Follow-up queries must be self-contained, specific and different from the queries already run
- Current Date: %s

# Response Format:
Return the JSON object directly without any formatting or additional text:
{
  "type": "object",
  "properties": {
    "is_sufficient": {"type": "boolean"},
    "knowledge_gap": {"type": "string", "description": "What is missing, empty when sufficient"},
    "follow_up_queries": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["is_sufficient", "knowledge_gap", "follow_up_queries"]
}`

type reflectionResponse struct {
	IsSufficient    *bool    `json:"is_sufficient"`
	KnowledgeGap    string   `json:"knowledge_gap"`
	FollowUpQueries []string `json:"follow_up_queries"`
}

// Evaluator decides whether the research gathered so far is enough.
type Evaluator struct {
	completer *Completer
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

func NewEvaluator(completer *Completer, cfg Config, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{completer: completer, cfg: cfg.withDefaults(), logger: logger, now: time.Now}
}

// Evaluate never fails. Below MinLoopsBeforeSufficient completed rounds the
// verdict is insufficient whatever the model says. On model failure it is
// insufficient unless this is the last allowed round, where it fails open.
func (e *Evaluator) Evaluate(ctx context.Context, session *Session) Verdict {
	gated := session.LoopCount < e.cfg.MinLoopsBeforeSufficient

	system := fmt.Sprintf(reflectionInstructions,
		session.Topic,
		session.LoopCount+1,
		e.cfg.MaxLoops,
		e.cfg.FollowUpQueryCap,
		e.now().Format("January 2, 2006"),
	)
	input := fmt.Sprintf("Queries already run:\n%s\n\nSummaries:\n\n%s",
		strings.Join(executedQueries(session), "\n"),
		strings.Join(session.SummaryNarratives, "\n\n---\n\n"),
	)

	resp, err := completeJSON(ctx, e.completer, system, input, func(r reflectionResponse) error {
		if r.IsSufficient == nil {
			return errors.New("missing is_sufficient")
		}
		return nil
	})
	if err != nil {
		sufficient := !gated && session.LoopCount >= e.cfg.MaxLoops-1
		e.logger.Warn("Reflection failed", "loop", session.LoopCount, "fail_open", sufficient, "error", err)
		metrics.ProviderCalls.WithLabelValues("evaluator", "fallback").Inc()

		verdict := Verdict{
			IsSufficient: sufficient,
			KnowledgeGap: "Reflection unavailable; continuing with broader coverage of the topic.",
		}
		if sufficient {
			verdict.KnowledgeGap = ""
		} else {
			verdict.FollowUpQueries = e.fallbackFollowUps(session)
		}
		return verdict
	}
	metrics.ProviderCalls.WithLabelValues("evaluator", "ok").Inc()

	verdict := Verdict{
		IsSufficient: *resp.IsSufficient && !gated,
		KnowledgeGap: strings.TrimSpace(resp.KnowledgeGap),
	}
	if gated && *resp.IsSufficient {
		e.logger.Info("Sufficiency claim overridden by loop gate", "loop", session.LoopCount)
	}
	if !verdict.IsSufficient {
		verdict.FollowUpQueries = e.followUps(session, resp.FollowUpQueries)
	}

	e.logger.Info("Reflection complete",
		"loop", session.LoopCount,
		"is_sufficient", verdict.IsSufficient,
		"follow_ups", len(verdict.FollowUpQueries),
	)
	return verdict
}

// followUps dedupes the model's queries, drops ones already run and keeps
// the first FollowUpQueryCap. An empty result is replaced by fallbacks.
func (e *Evaluator) followUps(session *Session, proposed []string) []string {
	queries := capQueries(withoutExecuted(session, dedupeQueries(proposed)), e.cfg.FollowUpQueryCap)
	if len(queries) == 0 {
		return e.fallbackFollowUps(session)
	}
	return queries
}

func (e *Evaluator) fallbackFollowUps(session *Session) []string {
	limit := e.cfg.FollowUpQueryCap
	candidates := fallbackQueriesFrom(session.Topic, 2*limit, session.TotalQueriesExecuted)
	return capQueries(withoutExecuted(session, candidates), limit)
}

func executedQueries(session *Session) []string {
	out := make([]string, 0, len(session.Findings))
	for _, f := range session.Findings {
		out = append(out, f.Query)
	}
	return out
}

func withoutExecuted(session *Session, queries []string) []string {
	seen := make(map[string]struct{}, len(session.Findings))
	for _, q := range executedQueries(session) {
		seen[strings.ToLower(q)] = struct{}{}
	}
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		if _, ok := seen[strings.ToLower(q)]; ok {
			continue
		}
		out = append(out, q)
	}
	return out
}

// capQueries keeps the first n entries.
func capQueries(queries []string, n int) []string {
	if len(queries) > n {
		return queries[:n]
	}
	return queries
}
