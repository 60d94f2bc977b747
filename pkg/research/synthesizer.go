package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/mikeboe/deep-research/pkg/metrics"
)

const answerInstructions = `Write a comprehensive research report on "%s".

Instructions:
- Use only the research summaries and sources provided
- Structure it as Markdown with an introduction, key findings, recommendations and a conclusion
- Cite sources by their number in square brackets, e.g. [3]; do not write URLs
- Current Date: %s`

var reportFuncs = template.FuncMap{
	"inc":   func(i int) int { return i + 1 },
	"label": sourceLabel,
}

var reportTemplate = template.Must(template.New("report").Funcs(reportFuncs).Parse(`# Research Report: {{.Topic}}

## Research Statistics
- Research time: {{.Elapsed}}
- Queries executed: {{.QueriesExecuted}}
- Research loops: {{.LoopsCompleted}}
- Sources found: {{len .Sources}}
- Findings: {{len .Findings}}
{{- if .Strategy}}

## Research Strategy
{{.Strategy}}
{{- end}}

## Report
{{.Narrative}}
{{- if .Findings}}

## Research Analysis
{{- range $i, $f := .Findings}}

### {{inc $i}}. {{$f.Query}}
{{$f.ExtractedContent}}
{{- end}}
{{- end}}

## Sources
{{- range $i, $s := .Sources}}
{{inc $i}}. {{label $s}} ({{$s.Domain}}): {{$s.URL}}
{{- else}}
No sources were found.
{{- end}}
`))

type reportView struct {
	Topic           string
	Elapsed         time.Duration
	QueriesExecuted int
	LoopsCompleted  int
	Strategy        string
	Narrative       string
	Findings        []Finding
	Sources         []Source
}

// Synthesizer renders the final report. The Sources section lists every
// session source, so each session URL appears in every report.
type Synthesizer struct {
	completer *Completer
	logger    *slog.Logger
	now       func() time.Time
}

func NewSynthesizer(completer *Completer, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{completer: completer, logger: logger, now: time.Now}
}

// Synthesize only fails when the document itself cannot be rendered.
func (s *Synthesizer) Synthesize(ctx context.Context, session *Session) (string, error) {
	sources := session.Sources.List()

	narrative, err := s.narrative(ctx, session, sources)
	if err != nil {
		s.logger.Warn("Report synthesis failed, using template narrative", "topic", session.Topic, "error", err)
		metrics.ProviderCalls.WithLabelValues("synthesizer", "fallback").Inc()
		narrative = degradedNarrative(session, len(sources))
	} else {
		metrics.ProviderCalls.WithLabelValues("synthesizer", "ok").Inc()
	}

	cite := citer(sources)
	view := reportView{
		Topic:           session.Topic,
		Elapsed:         s.now().Sub(session.StartedAt).Round(time.Second),
		QueriesExecuted: session.TotalQueriesExecuted,
		LoopsCompleted:  session.LoopCount,
		Strategy:        session.Strategy,
		Narrative:       cite(narrative),
		Findings:        citedFindings(session.Findings, cite),
		Sources:         sources,
	}

	var b strings.Builder
	if err := reportTemplate.Execute(&b, view); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	s.logger.Info("Final report generated", "length", b.Len(), "sources", len(sources))
	return b.String(), nil
}

func (s *Synthesizer) narrative(ctx context.Context, session *Session, sources []Source) (string, error) {
	var input strings.Builder
	input.WriteString("Research Summaries:\n\n")
	for i, summary := range session.SummaryNarratives {
		fmt.Fprintf(&input, "Summary %d:\n%s\n\n", i+1, summary)
	}
	if session.KnowledgeGap != "" {
		fmt.Fprintf(&input, "Known gaps: %s\n\n", session.KnowledgeGap)
	}
	input.WriteString("Sources:\n")
	for i, src := range sources {
		fmt.Fprintf(&input, "[%d] %s (%s)\n", i+1, sourceLabel(src), src.Domain)
	}

	system := fmt.Sprintf(answerInstructions, session.Topic, s.now().Format("January 2, 2006"))
	return s.completer.GenerateText(ctx, system, input.String())
}

// citer returns a rewriter that turns inline links to known sources into
// numbered citations, so a source URL is printed only in the Sources section.
func citer(sources []Source) func(string) string {
	index := make(map[string]int, len(sources))
	for i, src := range sources {
		index[src.URL] = i + 1
	}
	return func(text string) string {
		return ReplaceLinks(text, func(canonical string) (string, bool) {
			n, ok := index[canonical]
			if !ok {
				return "", false
			}
			return fmt.Sprintf("[%d]", n), true
		})
	}
}

func citedFindings(findings []Finding, cite func(string) string) []Finding {
	out := make([]Finding, len(findings))
	for i, f := range findings {
		f.ExtractedContent = cite(f.ExtractedContent)
		out[i] = f
	}
	return out
}

func degradedNarrative(session *Session, sourceCount int) string {
	return fmt.Sprintf("Automated synthesis was unavailable for this run. Research on %q executed %d queries over %d loops and found %d unique sources. The per-query analysis and the complete source list follow.",
		session.Topic, session.TotalQueriesExecuted, session.LoopCount, sourceCount)
}

func sourceLabel(src Source) string {
	if src.Title != "" {
		return src.Title
	}
	if src.Domain != "" {
		return src.Domain
	}
	return "Untitled source"
}

var failureTemplate = template.Must(template.New("failure").Funcs(reportFuncs).Parse(`# Research Failed: {{.Topic}}

Error: {{.Error}}

## Research Statistics
- Queries executed: {{.QueriesExecuted}}
- Research loops: {{.LoopsCompleted}}
- Sources found: {{len .Sources}}
{{- if .Findings}}

## Partial Findings
{{- range $i, $f := .Findings}}

### {{inc $i}}. {{$f.Query}}
{{$f.ExtractedContent}}
{{- end}}
{{- end}}

## Sources
{{- range $i, $s := .Sources}}
{{inc $i}}. {{label $s}} ({{$s.Domain}}): {{$s.URL}}
{{- else}}
No sources were found.
{{- end}}
`))

// renderFailure builds the error artifact. It keeps whatever was gathered
// before the failure.
func renderFailure(session *Session, cause error) string {
	view := struct {
		Topic           string
		Error           string
		QueriesExecuted int
		LoopsCompleted  int
		Findings        []Finding
		Sources         []Source
	}{
		Topic:           session.Topic,
		Error:           cause.Error(),
		QueriesExecuted: session.TotalQueriesExecuted,
		LoopsCompleted:  session.LoopCount,
		Sources:         session.Sources.List(),
	}
	view.Findings = citedFindings(session.Findings, citer(view.Sources))

	var b strings.Builder
	if err := failureTemplate.Execute(&b, view); err != nil {
		return fmt.Sprintf("# Research Failed: %s\n\nError: %s\n", session.Topic, cause.Error())
	}
	return b.String()
}
