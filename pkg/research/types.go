package research

import (
	"context"
	"time"
)

// Config holds the bounds of a research run. It is passed into the
// controller explicitly so tests can run with different limits in parallel.
type Config struct {
	MaxLoops                 int
	MinLoopsBeforeSufficient int
	InitialQueryCount        int
	FollowUpQueryCap         int
	MaxConcurrentRetrievals  int
	CallTimeout              time.Duration
	MaxRetries               int
	ResultChunkSize          int
}

const (
	defaultMaxLoops          = 4
	defaultMinLoops          = 3
	defaultInitialQueryCount = 8
	defaultFollowUpQueryCap  = 5
	defaultMaxConcurrent     = 4
	defaultCallTimeout       = 60 * time.Second
	defaultMaxRetries        = 2
	defaultResultChunkSize   = 1500
)

// DefaultConfig returns the deep research bounds: 8 initial queries, at most
// 4 rounds, sufficiency allowed from round 4.
func DefaultConfig() Config {
	return Config{
		MaxLoops:                 defaultMaxLoops,
		MinLoopsBeforeSufficient: defaultMinLoops,
		InitialQueryCount:        defaultInitialQueryCount,
		FollowUpQueryCap:         defaultFollowUpQueryCap,
		MaxConcurrentRetrievals:  defaultMaxConcurrent,
		CallTimeout:              defaultCallTimeout,
		MaxRetries:               defaultMaxRetries,
		ResultChunkSize:          defaultResultChunkSize,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxLoops < 1 {
		c.MaxLoops = defaultMaxLoops
	}
	if c.MinLoopsBeforeSufficient < 0 {
		c.MinLoopsBeforeSufficient = 0
	}
	if c.InitialQueryCount < 1 {
		c.InitialQueryCount = defaultInitialQueryCount
	}
	if c.FollowUpQueryCap < 1 {
		c.FollowUpQueryCap = defaultFollowUpQueryCap
	}
	if c.MaxConcurrentRetrievals < 1 {
		c.MaxConcurrentRetrievals = defaultMaxConcurrent
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.ResultChunkSize < 1 {
		c.ResultChunkSize = defaultResultChunkSize
	}
	return c
}

// SearchProvider is one external search capability. The payload shape is
// provider specific and is normalized by the Retriever.
type SearchProvider interface {
	Search(ctx context.Context, query string) (any, error)
}

// RawResult is a single normalized retrieval hit.
type RawResult struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	Score         float64 `json:"score,omitempty"`
	PublishedDate string  `json:"published_date,omitempty"`
}

// Source is a discovered reference. Identity is the canonical URL.
type Source struct {
	URL     string `json:"url"`
	Domain  string `json:"domain"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Finding is the result of researching one query.
type Finding struct {
	Query            string   `json:"query"`
	RawResultCount   int      `json:"raw_result_count"`
	ExtractedContent string   `json:"extracted_content"`
	SourcesFound     []Source `json:"sources_found"`
}

// Verdict is the output of one sufficiency evaluation.
type Verdict struct {
	IsSufficient    bool     `json:"is_sufficient"`
	KnowledgeGap    string   `json:"knowledge_gap"`
	FollowUpQueries []string `json:"follow_up_queries"`
}

// QueryPlan is the Query Generator output.
type QueryPlan struct {
	Queries   []string `json:"queries"`
	Rationale string   `json:"rationale"`
	Degraded  bool     `json:"degraded"`
}

// Session is the unit of work of one research run. It is owned by exactly
// one Controller and never shared.
type Session struct {
	Topic                string
	State                State
	LoopCount            int
	TotalQueriesExecuted int
	InitialQueries       []string
	FollowUpQueries      []string
	Findings             []Finding
	Sources              *SourceSet
	SummaryNarratives    []string
	FinalReport          string
	KnowledgeGap         string
	Strategy             string
	StartedAt            time.Time
}

// NewSession creates a session in the INITIAL state.
func NewSession(topic string) *Session {
	return &Session{
		Topic:     topic,
		State:     StateInitial,
		Sources:   NewSourceSet(),
		StartedAt: time.Now(),
	}
}

// ReportStatus marks whether the artifact is a full report or an error artifact.
type ReportStatus string

const (
	ReportCompleted ReportStatus = "completed"
	ReportFailed    ReportStatus = "failed"
)

// StopReason records why the loop ended.
type StopReason string

const (
	StopSufficient StopReason = "sufficient"
	StopMaxLoops   StopReason = "max_loops"
	StopCanceled   StopReason = "canceled"
	StopError      StopReason = "error"
)

// Report is the final artifact returned by a run.
type Report struct {
	RunID           string        `json:"run_id"`
	Topic           string        `json:"topic"`
	Status          ReportStatus  `json:"status"`
	Content         string        `json:"content"`
	Error           string        `json:"error,omitempty"`
	LoopsCompleted  int           `json:"loops_completed"`
	QueriesExecuted int           `json:"queries_executed"`
	Sources         []Source      `json:"sources"`
	Findings        []Finding     `json:"findings"`
	KnowledgeGap    string        `json:"knowledge_gap,omitempty"`
	Strategy        string        `json:"strategy,omitempty"`
	StopReason      StopReason    `json:"stop_reason"`
	Duration        time.Duration `json:"duration_ns"`
}
