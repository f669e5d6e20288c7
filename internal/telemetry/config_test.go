package telemetry

import (
	"testing"

	"github.com/fyrsmithlabs/schemadoc/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "schemadoc", cfg.ServiceName)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, 1.0, cfg.Sampling.Rate)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	enabled := func(mutate func(*Config)) *Config {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		mutate(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{"disabled skips checks", &Config{Enabled: false}, ""},
		{"enabled defaults", enabled(func(*Config) {}), ""},
		{"http protocol", enabled(func(c *Config) { c.Protocol = ProtocolHTTP }), ""},
		{"missing endpoint", enabled(func(c *Config) { c.Endpoint = "" }), "endpoint is required"},
		{"missing service", enabled(func(c *Config) { c.ServiceName = "" }), "service_name is required"},
		{"missing version", enabled(func(c *Config) { c.ServiceVersion = "" }), "service_version is required"},
		{"bad protocol", enabled(func(c *Config) { c.Protocol = "udp" }), "protocol must be"},
		{"insecure remote", enabled(func(c *Config) { c.Endpoint = "otel.example.com:4317" }), "insecure connections"},
		{"secure remote", enabled(func(c *Config) {
			c.Endpoint = "otel.example.com:4317"
			c.Insecure = false
		}), ""},
		{"sampling rate too high", enabled(func(c *Config) { c.Sampling.Rate = 1.5 }), "sampling.rate"},
		{"metrics interval", enabled(func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.ExportInterval = config.Duration(0)
		}), "export_interval"},
		{"logs over http", enabled(func(c *Config) {
			c.Protocol = ProtocolHTTP
			c.Logs.Enabled = true
		}), "logs export requires"},
		{"shutdown timeout", enabled(func(c *Config) { c.Shutdown.Timeout = 0 }), "shutdown.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	tests := map[string]bool{
		"localhost:4317":           true,
		"127.0.0.1:4317":           true,
		"[::1]:4317":               true,
		"http://localhost:4318":    true,
		"collector:4317":           false,
		"otel.example.com:4317":    false,
		"https://otel.example.com": false,
	}
	for endpoint, want := range tests {
		cfg := &Config{Endpoint: endpoint}
		assert.Equal(t, want, cfg.isLocalEndpoint(), endpoint)
	}
}
