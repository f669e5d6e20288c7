package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/schemadoc/internal/config"
	"github.com/fyrsmithlabs/schemadoc/internal/llm"
	"github.com/fyrsmithlabs/schemadoc/internal/logging"
	"github.com/fyrsmithlabs/schemadoc/internal/metrics"
	"github.com/fyrsmithlabs/schemadoc/internal/orchestrator"
	"github.com/fyrsmithlabs/schemadoc/internal/registry"
	"github.com/fyrsmithlabs/schemadoc/internal/retry"
	"github.com/fyrsmithlabs/schemadoc/internal/secrets"
	"github.com/fyrsmithlabs/schemadoc/internal/telemetry"
)

const tracerName = telemetry.ScopeName

// services holds the ambient services shared by every command that talks to
// a schema source.
type services struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	metrics   *metrics.Metrics
	scrubber  *secrets.Scrubber
}

// newServices builds logging, telemetry, metrics and the prompt scrubber from
// cfg. The returned context carries the logger.
func newServices(ctx context.Context, cfg *config.Config) (context.Context, *services, error) {
	telCfg := telemetry.NewDefaultConfig()
	if err := cfg.Section("telemetry", telCfg); err != nil {
		return ctx, nil, &config.ConfigurationError{Field: "telemetry", Reason: "invalid section", Err: err}
	}
	telCfg.ServiceVersion = version
	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		return ctx, nil, &config.ConfigurationError{Field: "telemetry", Reason: "invalid section", Err: err}
	}

	logCfg := logging.NewDefaultConfig()
	if err := cfg.Section("logging", logCfg); err != nil {
		return ctx, nil, &config.ConfigurationError{Field: "logging", Reason: "invalid section", Err: err}
	}
	if verbose {
		logCfg.Level = zapcore.DebugLevel
	}
	if logLevel != "" {
		lvl, err := logging.LevelFromString(logLevel)
		if err != nil {
			return ctx, nil, &config.ConfigurationError{Field: "log-level", Reason: fmt.Sprintf("unknown level %q", logLevel), Err: err}
		}
		logCfg.Level = lvl
	}
	var logOpts []logging.Option
	if lp := tel.LoggerProvider(); lp != nil {
		logOpts = append(logOpts, logging.WithOTELProvider(lp))
	}
	logger, err := logging.NewLogger(logCfg, logOpts...)
	if err != nil {
		return ctx, nil, &config.ConfigurationError{Field: "logging", Reason: "invalid section", Err: err}
	}

	secCfg := secrets.DefaultConfig()
	if err := cfg.Section("secrets", secCfg); err != nil {
		return ctx, nil, &config.ConfigurationError{Field: "secrets", Reason: "invalid section", Err: err}
	}
	scrubber, err := secrets.New(secCfg)
	if err != nil {
		return ctx, nil, &config.ConfigurationError{Field: "secrets", Reason: "invalid rules", Err: err}
	}

	rt := &services{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		metrics:   metrics.New(),
		scrubber:  scrubber,
	}
	return logging.WithLogger(ctx, logger), rt, nil
}

// close pushes metrics when a gateway is configured, then flushes telemetry
// and logs. It runs on a fresh context so an interrupted run still reports.
func (rt *services) close(ctx context.Context, runID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if url := rt.cfg.Metrics.PushgatewayURL; url != "" {
		grouping := map[string]string{"provider": rt.cfg.LLM.DefaultProvider}
		if runID != "" {
			grouping["run_id"] = runID
		}
		if err := rt.metrics.Push(ctx, url, rt.cfg.Metrics.Job, grouping); err != nil {
			rt.logger.Warn(ctx, "metrics push failed", zap.Error(err))
		}
	}
	if err := rt.telemetry.Shutdown(ctx); err != nil {
		rt.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = rt.logger.Sync()
}

// loadConfig reads the configuration and applies command line overrides.
// Every failure is a *config.ConfigurationError or a join of them.
func loadConfig(overrides ...func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(configPath, overrides...)
	if err != nil {
		if config.IsConfigurationError(err) {
			return nil, err
		}
		return nil, &config.ConfigurationError{Field: "config", Reason: "cannot load configuration", Err: err}
	}
	return cfg, nil
}

// newSource returns the GitHub repository source when source.github is set,
// the local directory source when source.schemas_dir is set, otherwise the
// registry client.
func newSource(ctx context.Context, cfg *config.Config) (orchestrator.SchemaSource, error) {
	if cfg.Source.GitHub {
		src, err := registry.NewRepoSource(ctx, registry.RepoConfig{
			Token:      cfg.GitHub.Token.Value(),
			Owner:      cfg.GitHub.Owner(),
			Repo:       cfg.GitHub.Name(),
			Ref:        cfg.GitHub.BaseBranch,
			SchemaPath: cfg.GitHub.SchemaPath,
			Retry:      retry.Config{MaxRetries: cfg.GitHub.MaxRetries},
		})
		if err != nil {
			return nil, &config.ConfigurationError{Field: "github.repo", Reason: "invalid repository source", Err: err}
		}
		return src, nil
	}
	if dir := cfg.Source.SchemasDir; dir != "" {
		src, err := registry.NewDirSource(dir)
		if err != nil {
			return nil, &config.ConfigurationError{Field: "source.schemas_dir", Reason: "cannot read schemas", Err: err}
		}
		return src, nil
	}
	client, err := registry.NewClient(registry.Config{
		URL:      cfg.Registry.URL,
		Username: cfg.Registry.Username,
		Password: cfg.Registry.Password.Value(),
		Timeout:  cfg.Registry.Timeout.Duration(),
		Retry:    retry.Config{MaxRetries: cfg.Registry.MaxRetries},
	})
	if err != nil {
		return nil, &config.ConfigurationError{Field: "registry.url", Reason: "invalid registry settings", Err: err}
	}
	return client, nil
}

// newModel builds the language model client for the configured provider.
func newModel(ctx context.Context, cfg *config.Config, rt *services) (*llm.Model, error) {
	name := cfg.LLM.DefaultProvider
	p := cfg.LLM.Provider(name)
	m, err := llm.New(ctx, llm.Config{
		Provider:    name,
		Model:       p.Model,
		APIKey:      p.APIKey.Value(),
		BaseURL:     p.BaseURL,
		APIVersion:  p.APIVersion,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout.Duration(),
		RateLimit:   cfg.LLM.RateLimit,
		Burst:       cfg.LLM.Burst,
		Retry:       retry.Config{MaxRetries: cfg.LLM.MaxRetries},
		Tracer:      rt.telemetry.Tracer(tracerName),
		Instruments: rt.telemetry.Instruments(),
	})
	if err != nil {
		if errors.Is(err, llm.ErrUnknownProvider) || errors.Is(err, llm.ErrMissingCredentials) {
			return nil, &config.ConfigurationError{Field: "llm.providers." + name, Reason: "cannot create model client", Err: err}
		}
		return nil, fmt.Errorf("create %s client: %w", name, err)
	}
	return m, nil
}
