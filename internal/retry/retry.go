// Package retry runs operations against external services with exponential
// backoff. Only errors marked retryable are retried; everything else is
// returned on the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/schemadoc/internal/logging"
	"go.uber.org/zap"
)

// Config configures retry behavior.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	// Zero means the default (3); negative disables retries.
	MaxRetries int

	// InitialBackoff is the wait before the first retry. Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps every wait, including server-provided delays. Default: 30s.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the wait after each retry. Default: 2.
	BackoffMultiplier float64

	// Jitter spreads each computed wait uniformly over ±Jitter of its
	// value. Default: 0.2; negative disables it. Server-provided delays
	// are never jittered.
	Jitter float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.2,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()

	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if c.Jitter == 0 {
		c.Jitter = defaults.Jitter
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.Jitter > 1 {
		c.Jitter = 1
	}
}

// Error marks a transient failure. RetryAfter, when set, replaces the
// computed backoff for the next attempt.
type Error struct {
	Err        error
	StatusCode int
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable wraps err as a transient failure.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Err: err}
}

// IsRetryable reports whether err should be retried: it is marked with
// Retryable, or it is a network timeout.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re *Error
	if errors.As(err, &re) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsRetryableStatus reports whether an HTTP status is transient.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return false
	}
	return code >= 500 && code < 600
}

// FromResponse classifies a failed HTTP response. Transient statuses are
// wrapped as *Error carrying the Retry-After delay.
func FromResponse(resp *http.Response, err error) error {
	if resp == nil || !IsRetryableStatus(resp.StatusCode) {
		return err
	}
	return &Error{
		Err:        err,
		StatusCode: resp.StatusCode,
		RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// ParseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// withJitter returns d moved by a uniform random amount within ±frac of d.
func withJitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * frac
	return time.Duration(float64(d) - spread + rand.Float64()*2*spread)
}

// ExhaustedError reports that every attempt failed.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do calls fn until it succeeds, returns a non-retryable error, the retry
// budget runs out or ctx is done.
func Do(ctx context.Context, cfg Config, operation string, fn func(ctx context.Context) error) error {
	cfg.ApplyDefaults()
	log := logging.FromContext(ctx)

	backoff := cfg.InitialBackoff
	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				log.Info(ctx, "operation recovered after retries",
					zap.String("operation", operation),
					zap.Int("attempts", attempt+1),
					zap.Duration("total_time", time.Since(start)),
				)
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		wait := withJitter(backoff, cfg.Jitter)
		var re *Error
		if errors.As(err, &re) && re.RetryAfter > 0 {
			wait = re.RetryAfter
		}
		if wait > cfg.MaxBackoff {
			wait = cfg.MaxBackoff
		}

		log.Debug(ctx, "retrying after transient error",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", cfg.MaxRetries+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s canceled: %w", operation, ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	log.Warn(ctx, "operation failed after all retries",
		zap.String("operation", operation),
		zap.Int("attempts", cfg.MaxRetries+1),
		zap.Duration("total_time", time.Since(start)),
		zap.Error(lastErr),
	)
	return &ExhaustedError{Operation: operation, Attempts: cfg.MaxRetries + 1, Err: lastErr}
}
