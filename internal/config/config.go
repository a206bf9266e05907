// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers defaults, an optional YAML file and RYNO_ environment variables.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"context"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// QueueSize bounds the in-memory round queue.
	QueueSize int `koanf:"queue_size" validate:"gte=1"`

	// WorkerCount sets the number of round workers.
	WorkerCount int `koanf:"worker_count" validate:"gte=1"`

	// DedupeSize sets how many round IDs are remembered.
	DedupeSize int `koanf:"dedupe_size" validate:"gte=1"`

	// StatePath is the JSON file holding the item queue state.
	StatePath string `koanf:"state_path" validate:"required"`

	// StateSaveIntervalMS is how often the item queue state is flushed; 0 saves on shutdown only.
	StateSaveIntervalMS int `koanf:"state_save_interval_ms" validate:"gte=0"`

	// AnswerTimeoutMS bounds a single provider call.
	AnswerTimeoutMS int `koanf:"answer_timeout_ms" validate:"gte=1"`

	// ScoringConcurrency limits answering and scoring tasks per round; 0 is unbounded.
	ScoringConcurrency int `koanf:"scoring_concurrency" validate:"gte=0"`

	// QuestionsPerBatch is how many questions a refill asks for.
	QuestionsPerBatch int `koanf:"questions_per_batch" validate:"gte=1"`

	// ThemesFile optionally replaces the built-in theme lists.
	ThemesFile string `koanf:"themes_file"`

	// DefaultProvider answers queries naming a provider that is not configured,
	// and generates questions.
	DefaultProvider string `koanf:"default_provider" validate:"required"`
	DefaultModel    string `koanf:"default_model"`

	// LLMRateLimit is requests per second per provider; 0 disables limiting.
	LLMRateLimit float64 `koanf:"llm_rate_limit" validate:"gte=0"`
	LLMRateBurst int     `koanf:"llm_rate_burst" validate:"gte=1"`
	LLMRetries   int     `koanf:"llm_retries" validate:"gte=1"`

	// Provider credentials. A provider without credentials is not registered;
	// bedrock is enabled by a region and uses the default AWS credential chain.
	OpenAIAPIKey    string `koanf:"openai_api_key"`
	AnthropicAPIKey string `koanf:"anthropic_api_key"`
	GoogleAPIKey    string `koanf:"google_api_key"`
	BedrockRegion   string `koanf:"bedrock_region"`

	// PixabayAPIKey binds image URLs to generated "images" questions.
	PixabayAPIKey string `koanf:"pixabay_api_key"`

	// RedisAddr enables the shared answer cache; empty uses an in-process cache.
	RedisAddr       string `koanf:"redis_addr"`
	RedisPassword   string `koanf:"redis_password"`
	AnswerCacheTTLS int    `koanf:"answer_cache_ttl_s" validate:"gte=0"`

	// EMAAlpha is the smoothing factor of worker weights.
	EMAAlpha float64 `koanf:"ema_alpha" validate:"gt=0,lte=1"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit" validate:"gte=1"`

	// TextWeight is the scoring weight of text queries that carry none.
	TextWeight float64 `koanf:"text_weight" validate:"gte=0"`
}

// New creates a Config with defaults. The context is reserved for future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		QueueSize:           1024,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          50_000,
		StatePath:           "state.json",
		StateSaveIntervalMS: 30_000,
		AnswerTimeoutMS:     60_000,
		ScoringConcurrency:  32,
		QuestionsPerBatch:   10,
		DefaultProvider:     "openai",
		DefaultModel:        "gpt-4o-mini",
		LLMRateLimit:        5,
		LLMRateBurst:        5,
		LLMRetries:          3,
		AnswerCacheTTLS:     3600,
		EMAAlpha:            0.1,
		MaxLeaderboardLimit: 100,
		TextWeight:          1,
	}
}

// StateSaveInterval returns StateSaveIntervalMS as a duration.
func (c *Config) StateSaveInterval() time.Duration {
	return time.Duration(c.StateSaveIntervalMS) * time.Millisecond
}

// AnswerTimeout returns AnswerTimeoutMS as a duration.
func (c *Config) AnswerTimeout() time.Duration {
	return time.Duration(c.AnswerTimeoutMS) * time.Millisecond
}

// AnswerCacheTTL returns AnswerCacheTTLS as a duration.
func (c *Config) AnswerCacheTTL() time.Duration {
	return time.Duration(c.AnswerCacheTTLS) * time.Second
}
