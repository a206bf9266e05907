package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/ryno/internal/adapters/answer"
	"github.com/okian/ryno/internal/adapters/llm"
	"github.com/okian/ryno/internal/adapters/report"
	"github.com/okian/ryno/internal/adapters/repository"
	"github.com/okian/ryno/internal/adapters/supplier"
	"github.com/okian/ryno/internal/config"
	"github.com/okian/ryno/internal/domain/itemqueue"
	"github.com/okian/ryno/internal/domain/scoring"
	"github.com/okian/ryno/pkg/logger"
)

const (
	llmRetryBackoff = 500 * time.Millisecond
	redisAttempts   = 5
)

// ProviderConfigs returns the provider settings enabled by cfg.
func ProviderConfigs(cfg *config.Config) map[string]llm.Config {
	out := make(map[string]llm.Config)
	add := func(name, key string) {
		if key == "" {
			return
		}
		c := llm.Config{APIKey: key}
		if name == cfg.DefaultProvider {
			c.DefaultModel = cfg.DefaultModel
		}
		out[name] = c
	}
	add(llm.ProviderOpenAI, cfg.OpenAIAPIKey)
	add(llm.ProviderAnthropic, cfg.AnthropicAPIKey)
	add(llm.ProviderGoogle, cfg.GoogleAPIKey)
	if cfg.BedrockRegion != "" {
		c := llm.Config{Region: cfg.BedrockRegion}
		if cfg.DefaultProvider == llm.ProviderBedrock {
			c.DefaultModel = cfg.DefaultModel
		}
		out[llm.ProviderBedrock] = c
	}
	return out
}

// Middlewares returns the call chain wrapped around every provider, outermost first.
func Middlewares(cfg *config.Config) []llm.Middleware {
	mw := []llm.Middleware{llm.WithMetrics(), llm.WithRetry(cfg.LLMRetries, llmRetryBackoff)}
	if cfg.LLMRateLimit > 0 {
		mw = append(mw, llm.WithRateLimit(cfg.LLMRateLimit, cfg.LLMRateBurst))
	}
	return append(mw, llm.WithTimeout(cfg.AnswerTimeout()))
}

// FromConfig builds the service options for cfg: provider registry, answer
// cache, item suppliers, reporting and the state file.
func FromConfig(ctx context.Context, cfg *config.Config, log logger.Logger) ([]Option, error) {
	if log == nil {
		log = logger.Nop()
	}

	reg, failed := llm.Build(ctx, ProviderConfigs(cfg), Middlewares(cfg)...)
	for name, err := range failed {
		log.Warn(ctx, "provider disabled", logger.String("provider", name), logger.Error(err))
	}
	log.Info(ctx, "providers configured", logger.Any("providers", reg.Names()))

	opts := []Option{
		WithLogger(log),
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithConcurrency(cfg.ScoringConcurrency),
		WithAlpha(cfg.EMAAlpha),
		WithTextWeight(cfg.TextWeight),
		WithReporter(report.Multi{
			report.NewTableSink(os.Stdout, log.Named("report")),
			report.NewLogSink(log.Named("score")),
		}),
		WithStateFile(repository.NewStateFile(cfg.StatePath, repository.WithStateLogger(log.Named("state")))),
	}

	var text scoring.AnsweringTask = answer.Passthrough{}
	if len(reg.Names()) > 0 {
		cache, closer, err := answerCache(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithCloser(closer))
		llmAnswerer := answer.NewLLMAnswerer(reg,
			answer.WithLogger(log.Named("answer")),
			answer.WithFallbackProvider(cfg.DefaultProvider),
		)
		text = answer.NewCached(llmAnswerer, cache, answer.WithLogger(log.Named("answer")))
	} else {
		log.Warn(ctx, "no provider configured; text references fall back to the prompt")
	}
	opts = append(opts, WithAnswerer(answer.ByKind{Text: text, Media: answer.Passthrough{}}))

	sup, err := itemSupplier(cfg, reg, log)
	if err != nil {
		return nil, err
	}
	return append(opts, WithSupplier(sup)), nil
}

func answerCache(ctx context.Context, cfg *config.Config, log logger.Logger) (answer.Cache, io.Closer, error) {
	if cfg.RedisAddr == "" {
		return answer.NewMemoryCache(cfg.AnswerCacheTTL()), nil, nil
	}
	client, err := answer.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, redisAttempts, log.Named("redis"))
	if err != nil {
		return nil, nil, fmt.Errorf("answer cache: %w", err)
	}
	return answer.NewRedisCache(client, cfg.AnswerCacheTTL()), client, nil
}

func itemSupplier(cfg *config.Config, reg *llm.Registry, log logger.Logger) (itemqueue.Supplier, error) {
	themes := supplier.DefaultThemes()
	if cfg.ThemesFile != "" {
		var err error
		if themes, err = supplier.LoadThemes(cfg.ThemesFile); err != nil {
			return nil, fmt.Errorf("themes file: %w", err)
		}
	}

	sup := supplier.Composite{Themes: themes}
	if c, err := reg.Get(cfg.DefaultProvider); err == nil {
		sup.Questions = supplier.NewQuestions(c,
			supplier.WithModel(cfg.DefaultModel),
			supplier.WithBatchSize(cfg.QuestionsPerBatch),
			supplier.WithQuestionsLogger(log.Named("questions")),
		)
		if cfg.PixabayAPIKey != "" {
			sup.Questions = supplier.WithImages{
				Next:   sup.Questions,
				Source: supplier.NewPixabay(cfg.PixabayAPIKey),
				Logger: log.Named("images"),
			}
		}
	}
	return sup, nil
}
