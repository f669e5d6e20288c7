package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/fyrsmithlabs/schemadoc/internal/retry"
)

// Error is a classified provider failure.
type Error struct {
	Provider  string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s: %s error: %v", e.Provider, kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches ErrRetryable or ErrPermanent according to the classification.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrRetryable:
		return e.Retryable
	case ErrPermanent:
		return !e.Retryable
	}
	return false
}

var (
	permanentMarkers = []string{
		"insufficient_quota", "quota", "billing",
		"401", "unauthorized", "invalid api key", "invalid_api_key", "incorrect api key",
		"authentication", "permission", "403", "forbidden",
		"400", "bad request", "invalid_request", "404", "model not found", "does not exist",
	}
	retryableMarkers = []string{
		"429", "rate limit", "rate_limit", "too many requests",
		"500", "502", "503", "504", "internal server error", "bad gateway",
		"service unavailable", "overloaded", "timeout", "timed out",
		"connection reset", "connection refused", "broken pipe", "eof", "temporarily",
	}
)

// classify wraps err from a provider call. Retryable errors are also marked
// for retry.Do. Cancellation of the parent context is returned unchanged.
func classify(parent context.Context, provider string, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if isRetryable(err) {
		return retry.Retryable(&Error{Provider: provider, Retryable: true, Err: err})
	}
	return &Error{Provider: provider, Retryable: false, Err: err}
}

func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range permanentMarkers {
		if strings.Contains(msg, m) {
			return false
		}
	}
	for _, m := range retryableMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
