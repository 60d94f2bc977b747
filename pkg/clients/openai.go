package clients

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
)

const (
	GPT41     ModelType = "gpt-4.1"
	GPT41Mini ModelType = "gpt-4.1-mini"
)

func OpenAI(apiKey string, model ModelType) (*openai.LLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	if model == "" {
		model = GPT41Mini
	}

	llm, err := openai.New(openai.WithToken(apiKey), openai.WithModel(string(model)))
	if err != nil {
		return nil, fmt.Errorf("init openai: %w", err)
	}

	return llm, nil
}
