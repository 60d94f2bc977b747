package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
)

var ErrLogsUnavailable = errors.New("run logs need DATABASE_URL")

// Service runs research for the HTTP and MCP surfaces. Every run gets its
// own controller; the retrieval pool is shared.
type Service struct {
	Cfg     research.Config
	LLM     llms.Model
	FastLLM llms.Model
	Search  research.SearchProvider
	Pool    *research.Pool
	DB      *database.PostgresDB
	Logger  *slog.Logger
}

func NewService(cfg research.Config, llm, fastLLM llms.Model, provider research.SearchProvider, db *database.PostgresDB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Cfg:     cfg,
		LLM:     llm,
		FastLLM: fastLLM,
		Search:  provider,
		Pool:    research.NewPool(cfg.MaxConcurrentRetrievals),
		DB:      db,
		Logger:  logger,
	}
}

// Run executes one research session. It never fails; errors are carried in
// the returned report.
func (s *Service) Run(ctx context.Context, topic string, onProgress func(research.Progress)) research.Report {
	logger := s.Logger
	if s.DB != nil {
		logger = slog.New(NewDBLogHandler(s.DB.Pool, s.Logger.Handler()))
	}

	controller := research.NewController(s.Cfg, s.LLM, s.Search, s.Pool, logger)
	controller.FastLLM = s.FastLLM
	controller.OnProgress = onProgress
	return controller.Run(ctx, topic)
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetRunLogs(ctx context.Context, runID string) ([]LogEntry, error) {
	if s.DB == nil {
		return nil, ErrLogsUnavailable
	}

	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE run_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
