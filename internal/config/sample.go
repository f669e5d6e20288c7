package config

import (
	"fmt"
	"io"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const sampleHeader = `# schemadoc configuration
#
# Credentials are read from the environment and are never written here:
#   SCHEMA_REGISTRY_URL, SCHEMA_REGISTRY_USER, SCHEMA_REGISTRY_PASSWORD,
#   GITHUB_TOKEN, GITHUB_REPO, OPENAI_API_KEY, ANTHROPIC_API_KEY,
#   GOOGLE_API_KEY, MISTRAL_API_KEY, AZURE_OPENAI_API_KEY
#
# Any key can also be overridden with SCHEMADOC_<SECTION>_<FIELD>.

`

// Defaults returns the built-in configuration without reading files or the
// environment. It is not validated.
func Defaults() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	cfg := &Config{k: k}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal defaults: %w", err)
	}
	normalize(cfg)
	return cfg, nil
}

// WriteSample writes cfg as a commented YAML file. Secret values are emitted
// empty.
func WriteSample(w io.Writer, cfg *Config) error {
	if _, err := io.WriteString(w, sampleHeader); err != nil {
		return err
	}
	enc := yamlv3.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode sample config: %w", err)
	}
	return enc.Close()
}
