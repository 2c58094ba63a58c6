// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"
)

// ErrMaxAttemptsExceeded is wrapped when every attempt failed with a
// retryable error.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// Config configures retry behavior.
type Config struct {
	// MaxAttempts includes the initial attempt.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// IsRetryable decides whether an error is worth another attempt.
	IsRetryable func(error) bool
	// OnRetry is called before each backoff wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig returns three attempts starting at 500ms.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		IsRetryable:  DefaultIsRetryable,
	}
}

// Transient is implemented by errors that know whether they are retryable.
type Transient interface {
	Transient() bool
}

// DefaultIsRetryable retries network errors and timeouts. Errors that
// implement Transient decide for themselves. Cancellation is never retried.
func DefaultIsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var t Transient
	if errors.As(err, &t) {
		return t.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"no such host",
		"temporary failure",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = d.Multiplier
	}
	if c.IsRetryable == nil {
		c.IsRetryable = d.IsRetryable
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. Each call of fn receives ctx.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	cfg.setDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !cfg.IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := Backoff(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, cfg.MaxAttempts, lastErr)
}

// Backoff returns the wait before the attempt following attempt.
func Backoff(cfg Config, attempt int) time.Duration {
	wait := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1)))
	if cfg.MaxDelay > 0 && wait > cfg.MaxDelay {
		wait = cfg.MaxDelay
	}
	return wait
}
