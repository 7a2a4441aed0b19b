package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/berth-ops/notify-api/pkg/errors"
	"github.com/berth-ops/notify-api/pkg/logger"
)

// Config controls the backoff schedule. The delay before attempt n is
// BaseDelay * 2^(n-2), capped at MaxDelay; attempt 1 runs immediately.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Retryable decides whether a failure is worth another attempt.
	// Defaults to errors.IsRetryable.
	Retryable func(error) bool

	// OnAttempt is invoked after every failed attempt, before the backoff
	// sleep. Attempt numbering is 1-based.
	OnAttempt func(attempt int, err error)

	Logger *logger.Logger
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Do runs op until it succeeds, the attempt budget is exhausted, a failure
// is classified non-retryable, or the context is cancelled. It returns the
// last error. Callers must pass operations whose logged output carries no
// secrets; Do logs error strings verbatim.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = errors.IsRetryable
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(cfg.BaseDelay, cfg.MaxDelay, attempt)
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry aborted after %d attempts: %w", attempt-1, ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.Info("operation succeeded after retries",
					"attempts", attempt,
					"elapsed", time.Since(start).String())
			}
			return nil
		}

		if cfg.OnAttempt != nil {
			cfg.OnAttempt(attempt, lastErr)
		}
		if cfg.Logger != nil {
			cfg.Logger.Warn("operation attempt failed",
				"attempt", attempt,
				"max_attempts", cfg.MaxAttempts,
				"error", lastErr.Error())
		}

		if !retryable(lastErr) {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	if cfg.Logger != nil {
		cfg.Logger.Error(lastErr, "operation failed permanently",
			"max_attempts", cfg.MaxAttempts,
			"elapsed", time.Since(start).String())
	}
	return lastErr
}

func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 2; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
