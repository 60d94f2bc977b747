package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mikeboe/deep-research/pkg/research"
)

type Config struct {
	Port        string
	DatabaseURL string
	CORSOrigins []string

	LLMProvider     string
	GoogleApiKey    string
	OpenAIApiKey    string
	AnthropicApiKey string
	ReasoningModel  string
	FastModel       string

	SearchProvider        string
	SearchResultsPerQuery int
	TavilyApiKey          string
	TavilyBaseURL         string
	TavilySearchDepth     string
	BraveApiKey           string
	BraveBaseURL          string
	ArxivBaseURL          string
	GroundingModel        string

	MaxLoops                int
	MinLoops                int
	InitialQueryCount       int
	FollowUpQueryCap        int
	MaxConcurrentRetrievals int
	CallTimeout             time.Duration
	LLMMaxRetries           int
	ResultChunkSize         int
}

// Load reads the configuration from the environment. Callers load .env first.
func Load() *Config {
	defaults := research.DefaultConfig()

	return &Config{
		Port:        getEnv("PORT", "3000"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000"}),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "google")),
		GoogleApiKey:    getEnv("GOOGLE_API_KEY", os.Getenv("GEMINI_API_KEY")),
		OpenAIApiKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicApiKey: getEnv("ANTHROPIC_API_KEY", ""),
		ReasoningModel:  getEnv("REASONING_MODEL", ""),
		FastModel:       getEnv("FAST_MODEL", ""),

		SearchProvider:        strings.ToLower(getEnv("SEARCH_PROVIDER", "tavily")),
		SearchResultsPerQuery: getEnvAsInt("SEARCH_RESULTS_PER_QUERY", 8),
		TavilyApiKey:          getEnv("TAVILY_API_KEY", ""),
		TavilyBaseURL:         getEnv("TAVILY_BASE_URL", "https://api.tavily.com"),
		TavilySearchDepth:     getEnv("TAVILY_SEARCH_DEPTH", "advanced"),
		BraveApiKey:           getEnv("BRAVE_API_KEY", ""),
		BraveBaseURL:          getEnv("BRAVE_BASE_URL", "https://api.search.brave.com/res/v1"),
		ArxivBaseURL:          getEnv("ARXIV_BASE_URL", "https://export.arxiv.org/api/query"),
		GroundingModel:        getEnv("GROUNDING_MODEL", "gemini-2.5-flash"),

		MaxLoops:                getEnvAsInt("MAX_LOOPS", defaults.MaxLoops),
		MinLoops:                getEnvAsInt("MIN_LOOPS", defaults.MinLoopsBeforeSufficient),
		InitialQueryCount:       getEnvAsInt("INITIAL_QUERY_COUNT", defaults.InitialQueryCount),
		FollowUpQueryCap:        getEnvAsInt("FOLLOW_UP_QUERY_CAP", defaults.FollowUpQueryCap),
		MaxConcurrentRetrievals: getEnvAsInt("MAX_CONCURRENT_RETRIEVALS", defaults.MaxConcurrentRetrievals),
		CallTimeout:             getEnvAsDuration("CALL_TIMEOUT", defaults.CallTimeout),
		LLMMaxRetries:           getEnvAsInt("LLM_MAX_RETRIES", defaults.MaxRetries),
		ResultChunkSize:         getEnvAsInt("RESULT_CHUNK_SIZE", defaults.ResultChunkSize),
	}
}

// Research returns the loop bounds for the research controller.
func (c *Config) Research() research.Config {
	return research.Config{
		MaxLoops:                 c.MaxLoops,
		MinLoopsBeforeSufficient: c.MinLoops,
		InitialQueryCount:        c.InitialQueryCount,
		FollowUpQueryCap:         c.FollowUpQueryCap,
		MaxConcurrentRetrievals:  c.MaxConcurrentRetrievals,
		CallTimeout:              c.CallTimeout,
		MaxRetries:               c.LLMMaxRetries,
		ResultChunkSize:          c.ResultChunkSize,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
