// Package logging provides structured logging for schemadoc on top of Zap.
//
// The Logger adds:
//   - a Trace level (-2, below Debug) for full prompt and response bodies
//   - console (stderr) and OpenTelemetry outputs
//   - run, phase, subject and batch correlation taken from the context
//   - redaction of credential fields and token patterns (API keys, GitHub
//     tokens, bearer headers) in messages, fields and errors
//   - per-level sampling, with errors never sampled
//
// Usage:
//
//	cfg := logging.NewDefaultConfig()
//	_ = appCfg.Section("logging", cfg)
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithSubject(ctx, "user-events-value")
//	logger.Info(ctx, "batch generated", zap.Int("elements", 10))
//
// Packages that do not receive a Logger explicitly use FromContext, which
// falls back to a no-op logger.
//
// Tests use NewTestLogger and its assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Warn(ctx, "subject skipped", zap.String("reason", "parse error"))
//	tl.AssertLogged(t, zapcore.WarnLevel, "subject skipped")
//	tl.AssertNoSecrets(t)
package logging
