package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/schemadoc/internal/logging"
	"github.com/fyrsmithlabs/schemadoc/internal/retry"
	"github.com/fyrsmithlabs/schemadoc/internal/telemetry"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/fyrsmithlabs/schemadoc/internal/llm"

// Model is a rate-limited, retrying Client over a langchaingo model.
type Model struct {
	provider string
	name     string
	llm      llms.Model
	limiter  *rate.Limiter
	cfg      Config
	tracer   trace.Tracer
}

var _ Client = (*Model)(nil)

// New builds the client for cfg.Provider.
func New(ctx context.Context, cfg Config) (*Model, error) {
	name := cfg.ResolveModel()
	if _, ok := DefaultModels[cfg.Provider]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if RequiresAPIKey(cfg.Provider) && cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s api key required", ErrMissingCredentials, cfg.Provider)
	}

	var (
		m   llms.Model
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(name)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		m, err = openai.New(opts...)
	case ProviderAzure:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("%w: azure endpoint required", ErrMissingCredentials)
		}
		version := cfg.APIVersion
		if version == "" {
			version = defaultAzureAPIVersion
		}
		m, err = openai.New(
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithToken(cfg.APIKey),
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithAPIVersion(version),
			openai.WithModel(name),
		)
	case ProviderAnthropic:
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey), anthropic.WithModel(name)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		m, err = anthropic.New(opts...)
	case ProviderGoogle:
		m, err = googleai.New(ctx, googleai.WithAPIKey(cfg.APIKey), googleai.WithDefaultModel(name))
	case ProviderMistral:
		opts := []mistral.Option{mistral.WithAPIKey(cfg.APIKey), mistral.WithModel(name)}
		if cfg.BaseURL != "" {
			opts = append(opts, mistral.WithEndpoint(cfg.BaseURL))
		}
		m, err = mistral.New(opts...)
	case ProviderOllama:
		url := cfg.BaseURL
		if url == "" {
			url = defaultOllamaURL
		}
		m, err = ollama.New(ollama.WithModel(name), ollama.WithServerURL(url))
	}
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", cfg.Provider, err)
	}
	return NewWithModel(cfg, m), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(cfg Config, m llms.Model) *Model {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Model{
		provider: cfg.Provider,
		name:     cfg.ResolveModel(),
		llm:      m,
		limiter:  rate.NewLimiter(limit, burst),
		cfg:      cfg,
		tracer:   tracer,
	}
}

// Provider returns the provider name.
func (m *Model) Provider() string { return m.provider }

// Name returns the model identifier.
func (m *Model) Name() string { return m.name }

// Generate sends p to the model and returns the text of the first choice.
func (m *Model) Generate(ctx context.Context, p Prompt) (string, error) {
	ctx, span := m.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.provider", m.provider),
		attribute.String("llm.model", m.name),
		attribute.Int("llm.prompt_chars", len(p.System)+len(p.User)),
	))
	defer span.End()
	start := time.Now()

	messages := make([]llms.MessageContent, 0, 2)
	if p.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, p.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, p.User))

	opts := []llms.CallOption{
		llms.WithTemperature(m.cfg.Temperature),
		llms.WithMaxTokens(m.cfg.MaxTokens),
	}
	if p.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	var text string
	attempts := 0
	err := retry.Do(ctx, m.cfg.Retry, "llm.generate", func(ctx context.Context) error {
		attempts++
		if err := m.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()

		resp, err := m.llm.GenerateContent(callCtx, messages, opts...)
		if err != nil {
			return classify(ctx, m.provider, err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
			return retry.Retryable(&Error{Provider: m.provider, Retryable: true, Err: errors.New("empty response")})
		}
		text = resp.Choices[0].Content
		return nil
	})
	span.SetAttributes(attribute.Int("llm.attempts", attempts))
	m.cfg.Instruments.RecordModelCall(context.WithoutCancel(ctx), m.provider, m.name, callOutcome(ctx, err), attempts, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		logging.FromContext(ctx).Warn(ctx, "model call failed",
			zap.String("provider", m.provider),
			zap.String("model", m.name),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return "", err
	}
	span.SetAttributes(attribute.Int("llm.response_chars", len(text)))
	logging.FromContext(ctx).Trace(ctx, "model call",
		zap.String("provider", m.provider),
		zap.Int("attempts", attempts),
		zap.String("system", p.System),
		zap.String("prompt", p.User),
		zap.String("response", text),
	)
	return text, nil
}

func callOutcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeOK
	case ctx.Err() != nil:
		return telemetry.OutcomeCanceled
	}
	return telemetry.OutcomeFailed
}
