package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
)

// FromGitHub classifies a failed GitHub API call. Transient failures are
// marked retryable; rate limits carry the delay until the limit resets.
func FromGitHub(resp *github.Response, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &Error{Err: err, StatusCode: http.StatusForbidden, RetryAfter: untilReset(rateErr.Rate.Reset.Time)}
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &Error{Err: err, StatusCode: http.StatusForbidden, RetryAfter: abuseErr.GetRetryAfter()}
	}

	if resp == nil || resp.Response == nil {
		// No response at all: a network failure.
		return Retryable(err)
	}

	code := resp.Response.StatusCode
	if isRateLimited(resp) {
		return &Error{Err: err, StatusCode: code, RetryAfter: untilReset(resp.Rate.Reset.Time)}
	}
	return FromResponse(resp.Response, err)
}

// isRateLimited reports a 429, or a 403 that carries rate limit headers.
func isRateLimited(resp *github.Response) bool {
	if resp == nil || resp.Response == nil {
		return false
	}
	switch resp.Response.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Rate.Limit > 0 && resp.Rate.Remaining == 0
	}
	return false
}

func untilReset(reset time.Time) time.Duration {
	if reset.IsZero() {
		return time.Minute
	}
	d := time.Until(reset) + time.Second
	if d < time.Second {
		d = time.Second
	}
	return d
}
