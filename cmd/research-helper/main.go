package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/search"
)

var (
	topic          string
	maxLoops       int
	queryCount     int
	outputPath     string
	searchProvider string
)

func main() {
	// Setup structured logging
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	// It's okay if .env doesn't exist, as long as env vars are set
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "research-helper",
		Short: "A terminal-based deep research agent",
		Long:  `research-helper researches a topic on the web through bounded rounds of searching and reflection, then writes a source-backed Markdown report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("topic") {
				// Interactive Mode
				reader := bufio.NewReader(os.Stdin)
				fmt.Fprint(os.Stderr, "Enter research topic: ")
				input, _ := reader.ReadString('\n')
				topic = input
			}
			topic = strings.TrimSpace(topic)
			if topic == "" {
				return fmt.Errorf("%w: topic cannot be empty", research.ErrMalformedInput)
			}

			cfg := config.Load()
			if cmd.Flags().Changed("max-loops") {
				cfg.MaxLoops = maxLoops
			}
			if cmd.Flags().Changed("queries") {
				cfg.InitialQueryCount = queryCount
			}
			if searchProvider != "" {
				cfg.SearchProvider = strings.ToLower(searchProvider)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}

	rootCmd.Flags().StringVarP(&topic, "topic", "t", "", "The research topic")
	rootCmd.Flags().IntVar(&maxLoops, "max-loops", research.DefaultConfig().MaxLoops, "Maximum research/reflection rounds")
	rootCmd.Flags().IntVarP(&queryCount, "queries", "q", research.DefaultConfig().InitialQueryCount, "Number of initial search queries")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the report to this file instead of stdout")
	rootCmd.Flags().StringVar(&searchProvider, "search-provider", "", "Search provider: tavily, brave, arxiv or gemini")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	models, err := clients.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init llm: %w", err)
	}
	provider, err := search.New(ctx, cfg, &http.Client{Timeout: cfg.CallTimeout})
	if err != nil {
		return fmt.Errorf("init search provider: %w", err)
	}

	controller := research.NewController(cfg.Research(), models.Reasoning, provider, nil, slog.Default())
	controller.FastLLM = models.Fast
	controller.OnProgress = func(p research.Progress) {
		slog.Info(p.Message, "state", p.State, "loop", p.Loop, "sources", p.SourcesFound)
	}

	report := controller.Run(ctx, topic)

	out := os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if _, err := fmt.Fprintln(out, report.Content); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	slog.Info("Research finished",
		"status", report.Status,
		"stop_reason", report.StopReason,
		"loops", report.LoopsCompleted,
		"queries", report.QueriesExecuted,
		"sources", len(report.Sources),
		"duration", report.Duration,
	)
	if report.Status != research.ReportCompleted {
		return fmt.Errorf("research failed: %s", report.Error)
	}
	return nil
}
