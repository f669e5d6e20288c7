package llm

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/fyrsmithlabs/schemadoc/internal/retry"
	"github.com/fyrsmithlabs/schemadoc/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderMistral   = "mistral"
	ProviderOllama    = "ollama"
	ProviderAzure     = "azure"
)

// DefaultModels maps each provider to the model used when none is configured.
var DefaultModels = map[string]string{
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-3-haiku-20240307",
	ProviderGoogle:    "gemini-1.5-flash",
	ProviderMistral:   "mistral-small-latest",
	ProviderOllama:    "llama3.2",
	ProviderAzure:     "gpt-4o-mini",
}

const (
	defaultOllamaURL       = "http://localhost:11434"
	defaultAzureAPIVersion = "2024-02-01"
	defaultTimeout         = 60 * time.Second
	defaultMaxTokens       = 2048
)

var (
	// ErrRetryable marks transient failures: network errors, timeouts,
	// rate limiting and server errors.
	ErrRetryable = errors.New("retryable model error")

	// ErrPermanent marks failures retrying cannot fix: authentication,
	// exhausted quota, invalid requests.
	ErrPermanent = errors.New("permanent model error")

	// ErrUnknownProvider is returned by New for an unrecognised provider.
	ErrUnknownProvider = errors.New("unknown llm provider")

	// ErrMissingCredentials is returned by New when a provider's API key or
	// endpoint is not configured.
	ErrMissingCredentials = errors.New("missing llm credentials")
)

// Prompt is one model request.
type Prompt struct {
	System string
	User   string

	// JSON asks providers that support it to constrain output to JSON.
	JSON bool
}

// Client generates text from a prompt.
type Client interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Config selects and tunes a provider.
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	APIVersion string

	Temperature float64
	MaxTokens   int

	// Timeout bounds each attempt.
	Timeout time.Duration

	// RateLimit is the sustained number of calls per second; Burst allows
	// short spikes above it.
	RateLimit float64
	Burst     int

	Retry retry.Config

	// Tracer records one span per Generate call. Nil uses the global
	// provider.
	Tracer trace.Tracer

	// Instruments counts calls and records their latency and attempts.
	Instruments *telemetry.Instruments
}

// Providers returns the supported provider names, sorted.
func Providers() []string {
	out := make([]string, 0, len(DefaultModels))
	for p := range DefaultModels {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// RequiresAPIKey reports whether provider needs an API key.
func RequiresAPIKey(provider string) bool {
	return provider != ProviderOllama
}

// ResolveModel returns cfg.Model, or the provider default.
func (c Config) ResolveModel() string {
	if c.Model != "" {
		return c.Model
	}
	return DefaultModels[c.Provider]
}

// Func adapts an ordinary function to Client.
type Func func(ctx context.Context, p Prompt) (string, error)

// Generate calls f(ctx, p).
func (f Func) Generate(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}
