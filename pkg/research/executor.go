package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mikeboe/deep-research/pkg/metrics"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

const (
	snippetLength       = 300
	fallbackResultLimit = 5
)

const webSearcherInstructions = `You are a web researcher summarizing search results for one query.
Write a concise, factual summary of what the results say about the query.

Instructions:
- Only use information present in the search results
- Name products, organisations, figures and dates where the results mention them
- Note disagreements between sources
- Do not invent sources or URLs
- Plain prose, at most three short paragraphs`

// Executor runs a batch of queries through retrieval, source extraction and
// per-query summarization.
type Executor struct {
	retriever *Retriever
	completer *Completer
	pool      *Pool
	splitter  *splitter.TextSplitter
	logger    *slog.Logger
}

func NewExecutor(retriever *Retriever, completer *Completer, pool *Pool, cfg Config, logger *slog.Logger) *Executor {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if pool == nil {
		pool = NewPool(cfg.MaxConcurrentRetrievals)
	}
	return &Executor{
		retriever: retriever,
		completer: completer,
		pool:      pool,
		splitter:  splitter.NewRecursiveCharacterTextSplitter(cfg.ResultChunkSize, 0),
		logger:    logger,
	}
}

// Run researches every query and appends the findings to session in input
// order, whichever retrieval finishes first.
func (e *Executor) Run(ctx context.Context, queries []string, session *Session) []Finding {
	findings := make([]Finding, len(queries))

	var wg sync.WaitGroup
	for i, query := range queries {
		wg.Add(1)
		go func(i int, query string) {
			defer wg.Done()
			findings[i] = e.researchRecovered(ctx, query)
		}(i, query)
	}
	wg.Wait()

	for _, f := range findings {
		session.Findings = append(session.Findings, f)
		session.SummaryNarratives = append(session.SummaryNarratives, f.ExtractedContent)
		session.Sources.Union(f.SourcesFound)
	}
	session.TotalQueriesExecuted += len(queries)

	e.logger.Info("Research batch complete", "queries", len(queries), "sources_total", session.Sources.Len())
	return findings
}

// researchRecovered turns a panic while researching one query into a
// finding without results, so the rest of the batch still completes.
func (e *Executor) researchRecovered(ctx context.Context, query string) (f Finding) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("Research for query panicked", "query", query, "panic", rec)
			metrics.ProviderCalls.WithLabelValues("executor", "failed").Inc()
			f = Finding{
				Query:            query,
				ExtractedContent: fmt.Sprintf("Research for %q could not be completed.", query),
				SourcesFound:     []Source{},
			}
		}
	}()
	return e.research(ctx, query)
}

func (e *Executor) research(ctx context.Context, query string) Finding {
	results := e.retrieve(ctx, query)
	sources := sourcesFromResults(query, results)

	e.logger.Info("Search successful", "query", query, "results", len(results), "sources", len(sources))

	return Finding{
		Query:            query,
		RawResultCount:   len(results),
		ExtractedContent: e.summarize(ctx, query, results),
		SourcesFound:     sources,
	}
}

// retrieve holds a pool slot only for the duration of the provider call.
func (e *Executor) retrieve(ctx context.Context, query string) []RawResult {
	if err := e.pool.Acquire(ctx); err != nil {
		e.logger.Warn("Retrieval skipped", "query", query, "error", err)
		return []RawResult{}
	}
	defer e.pool.Release()
	return e.retriever.Search(ctx, query)
}

// sourcesFromResults collects the result URLs first, then links embedded in
// the result content.
func sourcesFromResults(query string, results []RawResult) []Source {
	set := NewSourceSet()
	for _, r := range results {
		if src, ok := NewSource(r.URL, r.Title, clipRunes(r.Content, snippetLength)); ok {
			set.Add(src)
		}
	}
	for _, r := range results {
		for _, src := range ExtractSources(r.Content) {
			src.Snippet = fmt.Sprintf("Found during research for: %s", query)
			set.Add(src)
		}
	}
	return set.List()
}

func (e *Executor) summarize(ctx context.Context, query string, results []RawResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No search results were returned for %q.", query)
	}

	input := fmt.Sprintf("Query: %s\n\nSearch Results:\n%s", query, e.formatResults(results))
	summary, err := e.completer.GenerateText(ctx, webSearcherInstructions, input)
	if err != nil {
		e.logger.Warn("Summary failed, using result digest", "query", query, "error", err)
		metrics.ProviderCalls.WithLabelValues("summarizer", "fallback").Inc()
		return resultDigest(query, results)
	}
	metrics.ProviderCalls.WithLabelValues("summarizer", "ok").Inc()
	return summary
}

func (e *Executor) formatResults(results []RawResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\nURL: %s\n", i+1, r.Title, r.URL)
		if r.PublishedDate != "" {
			fmt.Fprintf(&b, "Published: %s\n", r.PublishedDate)
		}
		fmt.Fprintf(&b, "%s\n\n", e.splitter.Clip(r.Content))
	}
	return b.String()
}

// resultDigest is the narrative used when the model is unavailable. It is
// never empty for a non-empty result list.
func resultDigest(query string, results []RawResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n", query)
	for i, r := range results {
		if i == fallbackResultLimit {
			fmt.Fprintf(&b, "- and %d more results\n", len(results)-i)
			break
		}
		title := r.Title
		if title == "" {
			if src, ok := NewSource(r.URL, "", ""); ok {
				title = src.Domain
			}
		}
		if title == "" {
			title = "Untitled result"
		}
		if snippet := clipRunes(r.Content, snippetLength); snippet != "" {
			fmt.Fprintf(&b, "- %s: %s\n", title, snippet)
		} else {
			fmt.Fprintf(&b, "- %s\n", title)
		}
	}
	return strings.TrimSpace(b.String())
}

func clipRunes(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
