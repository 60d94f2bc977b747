package research

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// stage names used by fakeLLM to route prompts.
const (
	stagePlan      = "plan"
	stageSummary   = "summary"
	stageReflect   = "reflect"
	stageSynthesis = "synthesis"
)

var errModelDown = errors.New("model down")

func stageOf(system string) string {
	switch {
	case strings.Contains(system, "research planner"):
		return stagePlan
	case strings.Contains(system, "web researcher"):
		return stageSummary
	case strings.Contains(system, "expert research assistant"):
		return stageReflect
	case strings.Contains(system, "comprehensive research report"):
		return stageSynthesis
	}
	return ""
}

// fakeLLM answers each prompt through respond, keyed by pipeline stage.
type fakeLLM struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(stage, input string) (string, error)
}

func newFakeLLM(respond func(stage, input string) (string, error)) *fakeLLM {
	return &fakeLLM{calls: make(map[string]int), respond: respond}
}

func failingLLM() *fakeLLM {
	return newFakeLLM(func(string, string) (string, error) { return "", errModelDown })
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	var system, input string
	for _, m := range messages {
		for _, part := range m.Parts {
			text, ok := part.(llms.TextContent)
			if !ok {
				continue
			}
			if m.Role == llms.ChatMessageTypeSystem {
				system += text.Text
			} else {
				input += text.Text
			}
		}
	}

	stage := stageOf(system)
	f.mu.Lock()
	f.calls[stage]++
	f.mu.Unlock()

	out, err := f.respond(stage, input)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: out}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

func (f *fakeLLM) callCount(stage string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[stage]
}

// fakeSearch serves results through fn.
type fakeSearch struct {
	fn func(ctx context.Context, query string) (any, error)
}

func (f fakeSearch) Search(ctx context.Context, query string) (any, error) {
	return f.fn(ctx, query)
}

func failingSearch() fakeSearch {
	return fakeSearch{fn: func(context.Context, string) (any, error) {
		return nil, errors.New("search down")
	}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	return cfg
}

func testCompleter(model llms.Model) *Completer {
	return NewCompleter(model, testConfig(), nil)
}
