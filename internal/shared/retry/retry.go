package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config bounds a retry loop. The delay before attempt n+1 is n*BaseDelay,
// so pressure on a struggling provider grows linearly, not exponentially.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
	}
}

// DoWithResult runs fn until it returns without error or MaxAttempts is
// reached. Only errors trigger another attempt; any normal return stops the
// loop. Context cancellation aborts between attempts.
func DoWithResult[T any](ctx context.Context, cfg Config, logger *slog.Logger, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		logger.WarnContext(ctx, "retry attempt failed",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"err", err)

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(time.Duration(attempt) * cfg.BaseDelay):
		}
	}

	return zero, fmt.Errorf("max attempts reached: %w", lastErr)
}
