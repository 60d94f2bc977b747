package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Completer is the text-completion capability shared by the pipeline
// stages. Every call is bounded by Timeout and retried MaxRetries times.
type Completer struct {
	LLM        llms.Model
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	Logger     *slog.Logger
}

func NewCompleter(model llms.Model, cfg Config, logger *slog.Logger) *Completer {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Completer{
		LLM:        model,
		Timeout:    cfg.CallTimeout,
		MaxRetries: cfg.MaxRetries,
		Backoff:    time.Second,
		Logger:     logger,
	}
}

// GenerateStructured asks for a JSON response and validates it. It retries
// when the model fails or the validator rejects the content.
func (c *Completer) GenerateStructured(ctx context.Context, system, input string, validator func(string) error) (string, error) {
	return c.generate(ctx, system, input, validator, llms.WithJSONMode(), llms.WithTemperature(1.0))
}

// GenerateText asks for free-form prose.
func (c *Completer) GenerateText(ctx context.Context, system, input string) (string, error) {
	return c.generate(ctx, system, input, nil, llms.WithTemperature(0))
}

func (c *Completer) generate(ctx context.Context, system, input string, validator func(string) error, opts ...llms.CallOption) (string, error) {
	if c == nil || c.LLM == nil {
		return "", fmt.Errorf("%w: no completion model configured", ErrProviderUnavailable)
	}

	prompts := make([]llms.MessageContent, 0, 2)
	if system != "" {
		prompts = append(prompts, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	prompts = append(prompts, llms.TextParts(llms.ChatMessageTypeHuman, input))

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			c.Logger.Warn("Retrying LLM generation", "attempt", attempt+1, "last_error", lastErr)
			if err := sleepContext(ctx, c.Backoff*time.Duration(attempt)); err != nil {
				return "", fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
			}
		}

		content, err := c.once(ctx, prompts, opts...)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if validator != nil {
			if err := validator(content); err != nil {
				lastErr = err
				continue
			}
		}
		return content, nil
	}

	return "", fmt.Errorf("operation failed after %d attempts: %w", c.MaxRetries+1, lastErr)
}

func (c *Completer) once(ctx context.Context, prompts []llms.MessageContent, opts ...llms.CallOption) (content string, err error) {
	callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: model panic: %v", ErrProviderUnavailable, rec)
		}
	}()

	resp, err := c.LLM.GenerateContent(callCtx, prompts, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: llm generation failed: %w", ErrProviderUnavailable, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", fmt.Errorf("%w: llm returned no choices", ErrProviderUnavailable)
	}
	content = strings.TrimSpace(resp.Choices[0].Content)
	if content == "" {
		return "", fmt.Errorf("%w: llm returned empty content", ErrProviderUnavailable)
	}
	return content, nil
}

// completeJSON runs a schema-constrained call and decodes the response into T.
func completeJSON[T any](ctx context.Context, c *Completer, system, input string, validate func(T) error) (T, error) {
	var out T
	_, err := c.GenerateStructured(ctx, system, input, func(content string) error {
		decoded, err := decodeJSON[T](content)
		if err != nil {
			return err
		}
		if validate != nil {
			if err := validate(decoded); err != nil {
				return fmt.Errorf("%w: %w", ErrSchemaValidation, err)
			}
		}
		out = decoded
		return nil
	})
	return out, err
}

// decodeJSON extracts the JSON object from a completion and decodes it.
func decodeJSON[T any](raw string) (T, error) {
	var out T
	block := extractJSONBlock(raw)
	if block == "" {
		return out, fmt.Errorf("%w: response did not include json", ErrSchemaValidation)
	}
	if err := json.Unmarshal([]byte(block), &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrSchemaValidation, err)
	}
	return out, nil
}

func extractJSONBlock(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "```json")
	value = strings.TrimPrefix(value, "```")
	value = strings.TrimSuffix(value, "```")
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "{") && strings.HasSuffix(value, "}") {
		return value
	}
	start := strings.Index(value, "{")
	end := strings.LastIndex(value, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return strings.TrimSpace(value[start : end+1])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
