package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "MAX_LOOPS", "MIN_LOOPS", "CALL_TIMEOUT", "SEARCH_PROVIDER", "LLM_PROVIDER", "CORS_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "tavily", cfg.SearchProvider)
	assert.Equal(t, "google", cfg.LLMProvider)
	assert.Equal(t, 4, cfg.MaxLoops)
	assert.Equal(t, 3, cfg.MinLoops)
	assert.Equal(t, 60*time.Second, cfg.CallTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_LOOPS", "6")
	t.Setenv("INITIAL_QUERY_COUNT", "5")
	t.Setenv("CALL_TIMEOUT", "15s")
	t.Setenv("SEARCH_PROVIDER", "Brave")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com,")

	cfg := Load()
	rc := cfg.Research()

	assert.Equal(t, 6, rc.MaxLoops)
	assert.Equal(t, 5, rc.InitialQueryCount)
	assert.Equal(t, 15*time.Second, rc.CallTimeout)
	assert.Equal(t, "brave", cfg.SearchProvider)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "empty uses default", value: "", want: time.Minute},
		{name: "go duration", value: "90s", want: 90 * time.Second},
		{name: "plain seconds", value: "45", want: 45 * time.Second},
		{name: "garbage uses default", value: "soon", want: time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			assert.Equal(t, tt.want, getEnvAsDuration("TEST_DURATION", time.Minute))
		})
	}
}

func TestGetEnvAsIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT", "four")
	assert.Equal(t, 4, getEnvAsInt("TEST_INT", 4))
}
