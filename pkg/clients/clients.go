package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/config"
)

// Models is the pair of completion models a research run uses. Fast serves
// the per-query summaries, Reasoning everything else.
type Models struct {
	Reasoning llms.Model
	Fast      llms.Model
}

// New builds the models for the configured LLM_PROVIDER.
func New(ctx context.Context, cfg *config.Config) (Models, error) {
	reasoning, err := newModel(ctx, cfg, ModelType(cfg.ReasoningModel), true)
	if err != nil {
		return Models{}, err
	}
	if cfg.FastModel == "" || cfg.FastModel == cfg.ReasoningModel {
		return Models{Reasoning: reasoning, Fast: reasoning}, nil
	}
	fast, err := newModel(ctx, cfg, ModelType(cfg.FastModel), false)
	if err != nil {
		return Models{}, err
	}
	return Models{Reasoning: reasoning, Fast: fast}, nil
}

func newModel(ctx context.Context, cfg *config.Config, model ModelType, reasoning bool) (llms.Model, error) {
	switch cfg.LLMProvider {
	case "", "google", "gemini":
		if model == "" && reasoning {
			model = ProModel
		}
		return GoogleAi(ctx, cfg.GoogleApiKey, model)
	case "openai":
		if model == "" && reasoning {
			model = GPT41
		}
		return OpenAI(cfg.OpenAIApiKey, model)
	case "anthropic":
		return AnthropicAI(cfg.AnthropicApiKey, model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
