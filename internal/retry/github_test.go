package retry

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromGitHub(t *testing.T) {
	base := assert.AnError
	resp := func(code int) *github.Response {
		return &github.Response{Response: &http.Response{StatusCode: code, Header: http.Header{}}}
	}

	tests := []struct {
		name      string
		resp      *github.Response
		err       error
		retryable bool
	}{
		{"network failure", nil, base, true},
		{"server error", resp(http.StatusBadGateway), base, true},
		{"too many requests", resp(http.StatusTooManyRequests), base, true},
		{"validation failed", resp(http.StatusUnprocessableEntity), base, false},
		{"unauthorized", resp(http.StatusUnauthorized), base, false},
		{"plain forbidden", resp(http.StatusForbidden), base, false},
		{"cancelled", nil, context.Canceled, false},
		{"rate limit error", nil, &github.RateLimitError{Message: "rate limited"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(FromGitHub(tt.resp, tt.err)))
		})
	}
}

func TestFromGitHub_RateLimitedForbidden(t *testing.T) {
	resp := &github.Response{
		Response: &http.Response{StatusCode: http.StatusForbidden, Header: http.Header{}},
		Rate: github.Rate{
			Limit:     5000,
			Remaining: 0,
			Reset:     github.Timestamp{Time: time.Now().Add(10 * time.Second)},
		},
	}
	err := FromGitHub(resp, assert.AnError)
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Greater(t, re.RetryAfter, 5*time.Second)
}
