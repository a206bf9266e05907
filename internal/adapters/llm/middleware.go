package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/ryno/pkg/metrics"
)

// completerFunc lets middleware be written as closures.
type completerFunc struct {
	provider string
	fn       func(ctx context.Context, req Request) (string, error)
}

func (c completerFunc) Complete(ctx context.Context, req Request) (string, error) { return c.fn(ctx, req) }
func (c completerFunc) Provider() string                                        { return c.provider }

// WithTimeout bounds every call to d.
func WithTimeout(d time.Duration) Middleware {
	return func(next Completer) Completer {
		if d <= 0 {
			return next
		}
		return completerFunc{provider: next.Provider(), fn: func(ctx context.Context, req Request) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Complete(ctx, req)
		}}
	}
}

// WithRateLimit enforces a token bucket of limit requests per second.
func WithRateLimit(limit float64, burst int) Middleware {
	return func(next Completer) Completer {
		if limit <= 0 {
			return next
		}
		limiter := rate.NewLimiter(rate.Limit(limit), max(burst, 1))
		return completerFunc{provider: next.Provider(), fn: func(ctx context.Context, req Request) (string, error) {
			if err := limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limit: %w", err)
			}
			return next.Complete(ctx, req)
		}}
	}
}

// WithRetry retries failed calls up to attempts times in total with
// exponential backoff and jitter. Cancellation and request errors are not retried.
func WithRetry(attempts int, initial time.Duration) Middleware {
	return func(next Completer) Completer {
		if attempts <= 1 {
			return next
		}
		return completerFunc{provider: next.Provider(), fn: func(ctx context.Context, req Request) (string, error) {
			var lastErr error
			for i := 0; i < attempts; i++ {
				out, err := next.Complete(ctx, req)
				if err == nil {
					return out, nil
				}
				lastErr = err
				if !retryable(err) || i == attempts-1 {
					break
				}
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(backoff(i, initial)):
				}
			}
			return "", fmt.Errorf("after %d attempts: %w", attempts, lastErr)
		}}
	}
}

// WithMetrics records request counts and latency per provider.
func WithMetrics() Middleware {
	return func(next Completer) Completer {
		return completerFunc{provider: next.Provider(), fn: func(ctx context.Context, req Request) (string, error) {
			start := time.Now()
			out, err := next.Complete(ctx, req)
			metrics.RecordLLMLatency(next.Provider(), float64(time.Since(start).Microseconds())/1000.0)
			status := "ok"
			if err != nil {
				status = "error"
			}
			metrics.RecordLLMRequest(next.Provider(), status)
			return out, err
		}}
	}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, ErrNoMessages),
		errors.Is(err, ErrEmptyAPIKey):
		return false
	}
	return true
}

// backoff doubles initial per attempt with +/-20% jitter.
func backoff(attempt int, initial time.Duration) time.Duration {
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	d := float64(initial) * float64(int(1)<<min(attempt, 10))
	d += d * 0.2 * (2*rand.Float64() - 1)
	return time.Duration(d)
}
