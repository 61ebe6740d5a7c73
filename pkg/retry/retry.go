package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool // spread each delay over ±25%
	// Permanent errors stop the loop immediately.
	Permanent []error
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     3 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Do calls fn until it succeeds, returns a permanent error, runs out of
// attempts or ctx is done.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, errors.Join(ctx.Err(), lastErr))
			case <-time.After(backoff(cfg, attempt-1)):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		for _, permanent := range cfg.Permanent {
			if errors.Is(err, permanent) {
				return err
			}
		}
	}

	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

// backoff returns the delay after the given zero-based failed attempt.
func backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		delay *= 0.75 + rand.Float64()*0.5
	}
	return time.Duration(delay)
}
