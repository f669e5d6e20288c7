package llm

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/schemadoc/internal/retry"
	"github.com/fyrsmithlabs/schemadoc/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel/attribute"
)

type call struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
}

type fakeModel struct {
	mu      sync.Mutex
	calls   []call
	replies []func() (*llms.ContentResponse, error)
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	f.calls = append(f.calls, call{messages: messages, opts: opts})

	i := len(f.calls) - 1
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return f.replies[i]()
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func text(s string) func() (*llms.ContentResponse, error) {
	return func() (*llms.ContentResponse, error) {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s}}}, nil
	}
}

func fail(err error) func() (*llms.ContentResponse, error) {
	return func() (*llms.ContentResponse, error) { return nil, err }
}

func testConfig() Config {
	return Config{
		Provider:    ProviderOpenAI,
		Temperature: 0.2,
		MaxTokens:   512,
		Retry:       retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}
}

func TestModel_Generate(t *testing.T) {
	fm := &fakeModel{replies: []func() (*llms.ContentResponse, error){text("ELEMENT #1:\nDOC: ok")}}
	m := NewWithModel(testConfig(), fm)

	out, err := m.Generate(context.Background(), Prompt{System: "sys", User: "user", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, "ELEMENT #1:\nDOC: ok", out)

	require.Len(t, fm.calls, 1)
	c := fm.calls[0]
	require.Len(t, c.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, c.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, c.messages[1].Role)
	assert.Equal(t, llms.TextContent{Text: "user"}, c.messages[1].Parts[0])
	assert.InDelta(t, 0.2, c.opts.Temperature, 1e-9)
	assert.Equal(t, 512, c.opts.MaxTokens)
	assert.True(t, c.opts.JSONMode)
}

func TestModel_GenerateOmitsEmptySystem(t *testing.T) {
	fm := &fakeModel{replies: []func() (*llms.ContentResponse, error){text("x")}}
	m := NewWithModel(testConfig(), fm)

	_, err := m.Generate(context.Background(), Prompt{User: "only"})
	require.NoError(t, err)
	require.Len(t, fm.calls[0].messages, 1)
	assert.False(t, fm.calls[0].opts.JSONMode)
}

func TestModel_GenerateRetriesTransientErrors(t *testing.T) {
	fm := &fakeModel{replies: []func() (*llms.ContentResponse, error){
		fail(errors.New("API returned unexpected status code: 429: rate limit exceeded")),
		fail(errors.New("503 service unavailable")),
		text("done"),
	}}
	m := NewWithModel(testConfig(), fm)

	out, err := m.Generate(context.Background(), Prompt{User: "u"})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Len(t, fm.calls, 3)
}

func TestModel_GenerateRetryBudgetExhausted(t *testing.T) {
	fm := &fakeModel{replies: []func() (*llms.ContentResponse, error){
		fail(errors.New("502 bad gateway")),
	}}
	m := NewWithModel(testConfig(), fm)

	_, err := m.Generate(context.Background(), Prompt{User: "u"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryable)
	assert.Len(t, fm.calls, 3)

	var exhausted *retry.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestModel_GeneratePermanentErrorNotRetried(t *testing.T) {
	fm := &fakeModel{replies: []func() (*llms.ContentResponse, error){
		fail(errors.New("401 Unauthorized: invalid api key")),
	}}
	m := NewWithModel(testConfig(), fm)

	_, err := m.Generate(context.Background(), Prompt{User: "u"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.NotErrorIs(t, err, ErrRetryable)
	assert.Len(t, fm.calls, 1)
}

func TestModel_GenerateEmptyResponseIsRetried(t *testing.T) {
	fm := &fakeModel{replies: []func() (*llms.ContentResponse, error){
		func() (*llms.ContentResponse, error) { return &llms.ContentResponse{}, nil },
		text("second"),
	}}
	m := NewWithModel(testConfig(), fm)

	out, err := m.Generate(context.Background(), Prompt{User: "u"})
	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestModel_GenerateCanceled(t *testing.T) {
	fm := &fakeModel{replies: []func() (*llms.ContentResponse, error){text("x")}}
	m := NewWithModel(testConfig(), fm)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Generate(ctx, Prompt{User: "u"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fm.calls)
}

func TestModel_GenerateRecordsSpan(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	cfg := testConfig()
	cfg.Model = "gpt-test"
	cfg.Tracer = tt.Tracer("test")
	cfg.Instruments = tt.Instruments()

	fm := &fakeModel{replies: []func() (*llms.ContentResponse, error){text("x")}}
	m := NewWithModel(cfg, fm)

	_, err := m.Generate(context.Background(), Prompt{User: "u"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), tt.Sum(t, "schemadoc.model.calls",
		attribute.String("provider", "openai"),
		attribute.String("model", "gpt-test"),
		attribute.String("outcome", telemetry.OutcomeOK)))
	assert.Equal(t, uint64(1), tt.HistogramCount(t, "schemadoc.model.duration"))

	tt.AssertSpanExists(t, "llm.generate")
	tt.AssertSpanAttribute(t, "llm.generate", "llm.provider", "openai")
	tt.AssertSpanAttribute(t, "llm.generate", "llm.model", "gpt-test")
	tt.AssertSpanAttribute(t, "llm.generate", "llm.attempts", int64(1))
}

func TestModel_GenerateRecordsFailedCall(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	cfg := testConfig()
	cfg.Instruments = tt.Instruments()

	fm := &fakeModel{replies: []func() (*llms.ContentResponse, error){fail(errors.New("401 unauthorized"))}}
	m := NewWithModel(cfg, fm)

	_, err := m.Generate(context.Background(), Prompt{User: "u"})
	require.Error(t, err)
	assert.Equal(t, int64(1), tt.Sum(t, "schemadoc.model.calls", attribute.String("outcome", telemetry.OutcomeFailed)))
	assert.Equal(t, int64(0), tt.Sum(t, "schemadoc.model.calls", attribute.String("outcome", telemetry.OutcomeOK)))
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limited", errors.New("status 429 Too Many Requests"), true},
		{"server error", errors.New("500 internal server error"), true},
		{"overloaded", errors.New("anthropic: overloaded_error"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"quota", errors.New("429 insufficient_quota: You exceeded your current quota"), false},
		{"auth", errors.New("401 unauthorized"), false},
		{"bad request", errors.New("400 bad request: max_tokens too large"), false},
		{"unknown", errors.New("something odd"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(ctx, "openai", tt.err)
			assert.Equal(t, tt.retryable, retry.IsRetryable(err))
			assert.Equal(t, tt.retryable, errors.Is(err, ErrRetryable))
			assert.Equal(t, !tt.retryable, errors.Is(err, ErrPermanent))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_ParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := classify(ctx, "openai", errors.New("500"))
	assert.Equal(t, context.Canceled, err)
	assert.Nil(t, classify(context.Background(), "openai", nil))
}

func TestNew(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(context.Background(), Config{Provider: "cohere"})
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})
	t.Run("missing key", func(t *testing.T) {
		_, err := New(context.Background(), Config{Provider: ProviderAnthropic})
		assert.ErrorIs(t, err, ErrMissingCredentials)
	})
	t.Run("azure needs endpoint", func(t *testing.T) {
		_, err := New(context.Background(), Config{Provider: ProviderAzure, APIKey: "k"})
		assert.ErrorIs(t, err, ErrMissingCredentials)
	})
	t.Run("openai default model", func(t *testing.T) {
		m, err := New(context.Background(), Config{Provider: ProviderOpenAI, APIKey: "sk-test"})
		require.NoError(t, err)
		assert.Equal(t, "openai", m.Provider())
		assert.Equal(t, "gpt-4o-mini", m.Name())
	})
	t.Run("ollama without key", func(t *testing.T) {
		m, err := New(context.Background(), Config{Provider: ProviderOllama, Model: "qwen2.5"})
		require.NoError(t, err)
		assert.Equal(t, "qwen2.5", m.Name())
	})
	t.Run("azure", func(t *testing.T) {
		m, err := New(context.Background(), Config{Provider: ProviderAzure, APIKey: "k", BaseURL: "https://example.openai.azure.com"})
		require.NoError(t, err)
		assert.Equal(t, "azure", m.Provider())
	})
}

func TestProviders(t *testing.T) {
	assert.Equal(t, []string{"anthropic", "azure", "google", "mistral", "ollama", "openai"}, Providers())
	assert.False(t, RequiresAPIKey(ProviderOllama))
	assert.True(t, RequiresAPIKey(ProviderGoogle))
}

func TestFunc(t *testing.T) {
	var c Client = Func(func(_ context.Context, p Prompt) (string, error) {
		return "echo:" + p.User, nil
	})
	out, err := c.Generate(context.Background(), Prompt{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", out)
}
