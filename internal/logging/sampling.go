// internal/logging/sampling.go
package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore wraps core with per-level sampling. Each level listed in
// cfg.Levels gets its own sampler; unlisted levels pass through. Error and
// above are never sampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	cores := []zapcore.Core{
		&levelFilterCore{Core: core, allow: func(l zapcore.Level) bool {
			if l >= zapcore.ErrorLevel {
				return true
			}
			_, sampled := cfg.Levels[l]
			return !sampled
		}},
	}

	for lvl, rate := range cfg.Levels {
		if lvl >= zapcore.ErrorLevel {
			continue
		}
		lvl := lvl
		only := &levelFilterCore{Core: core, allow: func(l zapcore.Level) bool { return l == lvl }}
		cores = append(cores, zapcore.NewSamplerWithOptions(only, cfg.Tick.Duration(), rate.Initial, rate.Thereafter))
	}

	return zapcore.NewTee(cores...)
}

// levelFilterCore admits only the levels accepted by allow.
type levelFilterCore struct {
	zapcore.Core
	allow func(zapcore.Level) bool
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return c.allow(lvl) && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

// With creates a child core that preserves level filtering.
func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{
		Core:  c.Core.With(fields),
		allow: c.allow,
	}
}
