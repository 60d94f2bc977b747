package clients

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/config"
)

func TestNewRejectsMissingKeys(t *testing.T) {
	for _, provider := range []string{"google", "openai", "anthropic"} {
		t.Run(provider, func(t *testing.T) {
			_, err := New(context.Background(), &config.Config{LLMProvider: provider})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingAPIKey)
		})
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), &config.Config{LLMProvider: "mystery"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestNewSharesModelWhenFastUnset(t *testing.T) {
	models, err := New(context.Background(), &config.Config{LLMProvider: "openai", OpenAIApiKey: "sk-test"})
	require.NoError(t, err)
	assert.Same(t, models.Reasoning, models.Fast)
}
