// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8080"`

	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	EmbeddingsModel string `env:"EMBEDDINGS_MODEL" envDefault:"text-embedding-3-small"`
	ChatModel       string `env:"CHAT_MODEL" envDefault:"gpt-4o"`
	// ChatMaxTokens caps the generated recommendation length.
	ChatMaxTokens int `env:"CHAT_MAX_TOKENS" envDefault:"1024"`
	// PromptTokenBudget caps the assembled recommendation prompt; per-match
	// sections are truncated when the prompt would exceed it.
	PromptTokenBudget int `env:"PROMPT_TOKEN_BUDGET" envDefault:"6000"`

	QdrantURL        string `env:"QDRANT_URL" envDefault:"http://localhost:6333"`
	QdrantAPIKey     string `env:"QDRANT_API_KEY"`
	QdrantCollection string `env:"QDRANT_COLLECTION" envDefault:"subsidies"`
	// VectorSize must match the embeddings model output dimension.
	VectorSize int `env:"VECTOR_SIZE" envDefault:"1536"`
	SearchTopK int `env:"SEARCH_TOP_K" envDefault:"5"`

	RedisURL string        `env:"REDIS_URL"`
	RecTTL   time.Duration `env:"RECOMMENDATION_CACHE_TTL" envDefault:"1h"`

	CatalogPath  string `env:"CATALOG_PATH"`
	SynonymsPath string `env:"SYNONYMS_PATH"`

	// MatchTimeout bounds the whole matching call; on expiry the keyword
	// fallback result is used.
	MatchTimeout time.Duration `env:"MATCH_TIMEOUT" envDefault:"20s"`
	// RecommendTimeout bounds recommendation generation; on expiry a default
	// one-line recommendation is returned.
	RecommendTimeout time.Duration `env:"RECOMMEND_TIMEOUT" envDefault:"15s"`
	// FallbackSuggestCount is the number of leading catalog records returned
	// when no strategy matched anything. 0 disables the policy and lets the
	// engine return an empty set.
	FallbackSuggestCount int `env:"FALLBACK_SUGGEST_COUNT" envDefault:"3"`

	EmbedCacheSize int `env:"EMBED_CACHE_SIZE" envDefault:"2048"`

	// AI retry configuration (chat completions only; search is never retried).
	AIBackoffMaxElapsedTime  time.Duration `env:"AI_BACKOFF_MAX_ELAPSED_TIME" envDefault:"30s"`
	AIBackoffInitialInterval time.Duration `env:"AI_BACKOFF_INITIAL_INTERVAL" envDefault:"1s"`
	AIBackoffMaxInterval     time.Duration `env:"AI_BACKOFF_MAX_INTERVAL" envDefault:"8s"`
	AIBackoffMultiplier      float64       `env:"AI_BACKOFF_MULTIPLIER" envDefault:"2.0"`

	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"subsidy-matcher"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// GetAIBackoffConfig returns backoff settings appropriate for the current
// environment. Test runs use much shorter intervals.
func (c Config) GetAIBackoffConfig() (maxElapsedTime, initialInterval, maxInterval time.Duration, multiplier float64) {
	if c.IsTest() {
		return 2 * time.Second, 50 * time.Millisecond, 500 * time.Millisecond, 2.0
	}
	return c.AIBackoffMaxElapsedTime, c.AIBackoffInitialInterval, c.AIBackoffMaxInterval, c.AIBackoffMultiplier
}
