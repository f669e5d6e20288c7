// Package llm provides the language model clients used to generate schema
// documentation.
//
// Every provider is reached through langchaingo and exposed behind the
// Client interface, so callers never depend on provider identity. Calls are
// rate limited, bounded by a per-call timeout and retried with exponential
// backoff when the failure is transient. Errors are classified as
// ErrRetryable (network, 429, 5xx, timeouts) or ErrPermanent (auth, quota,
// bad request).
package llm
