package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/metrics"
)

// Progress is emitted on every state transition of a run.
type Progress struct {
	RunID           string   `json:"run_id"`
	State           State    `json:"state"`
	Loop            int      `json:"loop"`
	Message         string   `json:"message"`
	Queries         []string `json:"queries,omitempty"`
	QueriesExecuted int      `json:"queries_executed"`
	SourcesFound    int      `json:"sources_found"`
}

// Controller sequences one research run: generate queries, then alternate
// research and reflection for at most MaxLoops rounds, then synthesize.
type Controller struct {
	Config Config
	LLM    llms.Model
	// FastLLM writes the per-query summaries; LLM is used when it is nil.
	FastLLM    llms.Model
	Search     SearchProvider
	Pool       *Pool
	Logger     *slog.Logger
	OnProgress func(Progress)
}

func NewController(cfg Config, model llms.Model, provider SearchProvider, pool *Pool, logger *slog.Logger) *Controller {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if pool == nil {
		pool = NewPool(cfg.MaxConcurrentRetrievals)
	}
	return &Controller{
		Config: cfg,
		LLM:    model,
		Search: provider,
		Pool:   pool,
		Logger: logger,
	}
}

// stages holds the per-run components, each logging with the run's id.
type stages struct {
	generator   *QueryGenerator
	executor    *Executor
	evaluator   *Evaluator
	synthesizer *Synthesizer
}

func (c *Controller) newStages(logger *slog.Logger) stages {
	completer := NewCompleter(c.LLM, c.Config, logger)
	summarizer := completer
	if c.FastLLM != nil {
		summarizer = NewCompleter(c.FastLLM, c.Config, logger)
	}
	retriever := NewRetriever(c.Search, c.Config.CallTimeout, logger)
	return stages{
		generator:   NewQueryGenerator(completer, logger),
		executor:    NewExecutor(retriever, summarizer, c.Pool, c.Config, logger),
		evaluator:   NewEvaluator(completer, c.Config, logger),
		synthesizer: NewSynthesizer(completer, logger),
	}
}

// Run never returns an error: failures become a Report with status failed
// that still carries the findings and sources gathered so far.
func (c *Controller) Run(ctx context.Context, topic string) Report {
	runID := uuid.NewString()
	logger := c.Logger.With("run_id", runID)
	session := NewSession(strings.TrimSpace(topic))

	logger.Info("Starting research loop", "topic", session.Topic, "max_loops", c.Config.MaxLoops)

	if session.Topic == "" {
		return c.fail(runID, session, StopError, fmt.Errorf("%w: topic is empty", ErrMalformedInput), logger)
	}

	stop, err := c.loop(ctx, runID, session, c.newStages(logger))
	if err != nil {
		reason := StopError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			reason = StopCanceled
		}
		return c.fail(runID, session, reason, err, logger)
	}

	logger.Info("Research complete", "loops", session.LoopCount, "queries", session.TotalQueriesExecuted, "sources", session.Sources.Len(), "stop_reason", stop)
	c.emit(runID, session, "Research complete", nil)
	return c.finish(runID, session, ReportCompleted, stop, "")
}

func (c *Controller) loop(ctx context.Context, runID string, session *Session, st stages) (StopReason, error) {
	err := c.stage(ctx, "generate", func() error {
		plan := st.generator.Generate(ctx, session.Topic, c.Config.InitialQueryCount)
		session.InitialQueries = plan.Queries
		session.Strategy = plan.Rationale
		session.LoopCount = 0
		return session.advance(StateQueriesGenerated)
	})
	if err != nil {
		return "", err
	}
	c.emit(runID, session, fmt.Sprintf("Generated %d search queries", len(session.InitialQueries)), session.InitialQueries)

	batch := session.InitialQueries
	for {
		if err := session.advance(StateResearching); err != nil {
			return "", err
		}
		c.emit(runID, session, fmt.Sprintf("Researching %d queries (loop %d of %d)", len(batch), session.LoopCount+1, c.Config.MaxLoops), batch)

		err := c.stage(ctx, "research", func() error {
			st.executor.Run(ctx, batch, session)
			return nil
		})
		if err != nil {
			return "", err
		}

		if err := session.advance(StateReflecting); err != nil {
			return "", err
		}
		c.emit(runID, session, "Reflecting on findings", nil)

		var verdict Verdict
		err = c.stage(ctx, "reflect", func() error {
			verdict = st.evaluator.Evaluate(ctx, session)
			return nil
		})
		if err != nil {
			return "", err
		}
		session.LoopCount++
		session.KnowledgeGap = verdict.KnowledgeGap

		if verdict.IsSufficient {
			return c.synthesize(ctx, runID, session, st, StopSufficient)
		}
		if session.LoopCount >= c.Config.MaxLoops {
			return c.synthesize(ctx, runID, session, st, StopMaxLoops)
		}

		batch = verdict.FollowUpQueries
		if len(batch) == 0 {
			batch = fallbackQueriesFrom(session.Topic, c.Config.FollowUpQueryCap, session.TotalQueriesExecuted)
		}
		session.FollowUpQueries = append(session.FollowUpQueries, batch...)
	}
}

func (c *Controller) synthesize(ctx context.Context, runID string, session *Session, st stages, stop StopReason) (StopReason, error) {
	if err := session.advance(StateSynthesizing); err != nil {
		return "", err
	}
	c.emit(runID, session, "Synthesizing final report", nil)

	err := c.stage(ctx, "synthesize", func() error {
		report, err := st.synthesizer.Synthesize(ctx, session)
		if err != nil {
			return err
		}
		session.FinalReport = report
		return nil
	})
	if err != nil {
		return "", err
	}
	return stop, session.advance(StateDone)
}

// stage runs fn unless ctx is already done, converting a panic into an
// error and recording the stage duration.
func (c *Controller) stage(ctx context.Context, name string, fn func() error) (err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s stage not started: %w", name, ctxErr)
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s stage panicked: %v", name, rec)
		}
		metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s stage failed: %w", name, err)
	}
	return nil
}

func (c *Controller) fail(runID string, session *Session, reason StopReason, cause error, logger *slog.Logger) Report {
	logger.Error("Research failed", "topic", session.Topic, "state", session.State, "error", cause)
	if err := session.advance(StateFailed); err != nil {
		logger.Warn("Could not mark session failed", "error", err)
	}
	session.FinalReport = renderFailure(session, cause)
	c.emit(runID, session, cause.Error(), nil)
	return c.finish(runID, session, ReportFailed, reason, cause.Error())
}

func (c *Controller) finish(runID string, session *Session, status ReportStatus, stop StopReason, errMsg string) Report {
	duration := time.Since(session.StartedAt)

	metrics.ResearchRuns.WithLabelValues(string(status), string(stop)).Inc()
	metrics.ResearchDuration.Observe(duration.Seconds())
	metrics.LoopsCompleted.Observe(float64(session.LoopCount))
	metrics.SourcesFound.Observe(float64(session.Sources.Len()))

	findings := make([]Finding, len(session.Findings))
	copy(findings, session.Findings)

	return Report{
		RunID:           runID,
		Topic:           session.Topic,
		Status:          status,
		Content:         session.FinalReport,
		Error:           errMsg,
		LoopsCompleted:  session.LoopCount,
		QueriesExecuted: session.TotalQueriesExecuted,
		Sources:         session.Sources.List(),
		Findings:        findings,
		KnowledgeGap:    session.KnowledgeGap,
		Strategy:        session.Strategy,
		StopReason:      stop,
		Duration:        duration,
	}
}

func (c *Controller) emit(runID string, session *Session, message string, queries []string) {
	if c.OnProgress == nil {
		return
	}
	c.OnProgress(Progress{
		RunID:           runID,
		State:           session.State,
		Loop:            session.LoopCount,
		Message:         message,
		Queries:         queries,
		QueriesExecuted: session.TotalQueriesExecuted,
		SourcesFound:    session.Sources.Len(),
	})
}
