package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const logWriteTimeout = 2 * time.Second

// LogExecer is the part of the pgx pool the log handler needs.
type LogExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// DBLogHandler is a slog.Handler that writes records carrying a run_id to
// the research_logs table and passes every record on to next.
type DBLogHandler struct {
	DB    LogExecer
	next  slog.Handler
	runID string
	attrs []slog.Attr
}

func NewDBLogHandler(db LogExecer, next slog.Handler) *DBLogHandler {
	return &DBLogHandler{DB: db, next: next}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.runID != "" || h.next.Enabled(ctx, level)
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	var nextErr error
	if h.next.Enabled(ctx, r.Level) {
		nextErr = h.next.Handle(ctx, r)
	}
	if h.runID == "" {
		return nextErr
	}

	// Extract attributes to JSON
	attrs := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = logValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = logValue(a.Value)
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		// Fallback for marshal error
		metaJSON = []byte("{}")
	}

	query := `
		INSERT INTO research_logs (run_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`

	// Detached from the request so lines are kept when the client goes away
	writeCtx, cancel := context.WithTimeout(context.Background(), logWriteTimeout)
	defer cancel()
	if _, err := h.DB.Exec(writeCtx, query, h.runID, r.Time, r.Level.String(), r.Message, metaJSON); err != nil {
		return err
	}
	return nextErr
}

// WithAttrs picks up the run_id attribute the research controller attaches
// to its logger.
func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	for _, a := range attrs {
		if a.Key == "run_id" {
			clone.runID = a.Value.String()
		}
	}
	return &clone
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}

func logValue(v slog.Value) interface{} {
	v = v.Resolve()
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	return v.Any()
}
