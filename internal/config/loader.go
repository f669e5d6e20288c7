package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every structured environment override.
	EnvPrefix = "SCHEMADOC_"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// wellKnownEnv maps conventional environment variables onto config keys.
var wellKnownEnv = map[string]string{
	"SCHEMA_REGISTRY_URL":      "registry.url",
	"SCHEMA_REGISTRY_USER":     "registry.username",
	"SCHEMA_REGISTRY_PASSWORD": "registry.password",
	"GITHUB_TOKEN":             "github.token",
	"GITHUB_REPO":              "github.repo",
	"OPENAI_API_KEY":           "llm.providers.openai.api_key",
	"ANTHROPIC_API_KEY":        "llm.providers.anthropic.api_key",
	"GOOGLE_API_KEY":           "llm.providers.google.api_key",
	"MISTRAL_API_KEY":          "llm.providers.mistral.api_key",
	"AZURE_OPENAI_API_KEY":     "llm.providers.azure.api_key",
	"AZURE_OPENAI_ENDPOINT":    "llm.providers.azure.base_url",
	"OLLAMA_BASE_URL":          "llm.providers.ollama.base_url",
}

// SearchPaths returns the config file candidates tried when no path is given.
func SearchPaths() []string {
	paths := []string{"schemadoc.yaml", "schemadoc.yml", "schemadoc.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "schemadoc", "config.yaml"))
	}
	return paths
}

// Load builds the configuration from defaults, a config file and the
// environment, applies overrides (usually CLI flags) and validates the result.
//
// Precedence (highest to lowest):
//  1. overrides
//  2. SCHEMADOC_<SECTION>_<FIELD> environment variables
//  3. well-known variables (GITHUB_TOKEN, OPENAI_API_KEY, ...)
//  4. the config file (YAML or TOML, chosen by extension)
//  5. built-in defaults
//
// An explicit configPath that does not exist is an error. When configPath is
// empty the first existing file from SearchPaths is used, if any.
//
// Environment variables split on the first underscore after the prefix:
//
//	SCHEMADOC_AGENT_BATCH_SIZE -> agent.batch_size
//	SCHEMADOC_LLM_MIN_CONFIDENCE -> llm.min_confidence
func Load(configPath string, overrides ...func(*Config)) (*Config, error) {
	k, err := loadKoanf(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{k: k}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	normalize(cfg)

	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadKoanf(configPath string) (*koanf.Koanf, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path, err := resolvePath(configPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), parserFor(path)); err != nil {
			return nil, &ConfigurationError{Field: "config", Reason: fmt.Sprintf("failed to parse %s", path), Err: err}
		}
	}

	for name, key := range wellKnownEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("failed to apply %s: %w", name, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	return k, nil
}

// envKey maps SCHEMADOC_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func resolvePath(configPath string) (string, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return "", &ConfigurationError{Field: "config", Reason: fmt.Sprintf("cannot read %s", configPath), Err: err}
		}
		return configPath, nil
	}
	for _, candidate := range SearchPaths() {
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}
	return "", nil
}

// readConfigFile validates size through the opened descriptor before reading.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, &ConfigurationError{Field: "config", Reason: fmt.Sprintf("%s is not a regular file", path)}
	}
	if info.Size() > maxConfigFileSize {
		return nil, &ConfigurationError{Field: "config", Reason: fmt.Sprintf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)}
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func parserFor(path string) koanf.Parser {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return TOMLParser()
	}
	return yaml.Parser()
}

// normalize canonicalises case-insensitive values after unmarshalling.
func normalize(cfg *Config) {
	cfg.LLM.MinConfidence = strings.ToLower(strings.TrimSpace(cfg.LLM.MinConfidence))
	cfg.LLM.DefaultProvider = strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	cfg.Output.Publisher = strings.ToLower(strings.TrimSpace(cfg.Output.Publisher))
	cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]ProviderConfig{}
	}
}

// IsConfigurationError reports whether err carries a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
