// Package config provides configuration loading for schemadoc.
//
// Configuration is assembled from built-in defaults, an optional YAML or TOML
// file and environment variables. Credentials are carried as Secret values so
// they never leak through logs or the generated sample file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/v2"
)

// Confidence levels accepted by llm.min_confidence.
var confidenceLevels = []string{"low", "medium", "high"}

// ProviderNames lists the language model providers llm.default_provider
// may select.
var ProviderNames = []string{"openai", "anthropic", "google", "mistral", "ollama", "azure"}

// Publisher names accepted by output.publisher.
const (
	PublisherGitHub    = "github"
	PublisherGit       = "git"
	PublisherDirectory = "directory"
)

// Config holds the complete schemadoc configuration.
type Config struct {
	Registry RegistryConfig `koanf:"registry" yaml:"registry"`
	Source   SourceConfig   `koanf:"source" yaml:"source"`
	LLM      LLMConfig      `koanf:"llm" yaml:"llm"`
	Agent    AgentConfig    `koanf:"agent" yaml:"agent"`
	Review   ReviewConfig   `koanf:"review" yaml:"review"`
	Output   OutputConfig   `koanf:"output" yaml:"output"`
	GitHub   GitHubConfig   `koanf:"github" yaml:"github"`
	Git      GitConfig      `koanf:"git" yaml:"git"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`

	// k keeps the merged tree so packages that own their config types
	// (logging, telemetry) can unmarshal their own section.
	k *koanf.Koanf
}

// RegistryConfig holds schema registry connection settings.
type RegistryConfig struct {
	URL             string   `koanf:"url" yaml:"url"`
	Username        string   `koanf:"username" yaml:"username"`
	Password        Secret   `koanf:"password" yaml:"password"`
	IncludeSubjects []string `koanf:"include_subjects" yaml:"include_subjects"`
	ExcludeSubjects []string `koanf:"exclude_subjects" yaml:"exclude_subjects"`
	Timeout         Duration `koanf:"timeout" yaml:"timeout"`
	MaxRetries      int      `koanf:"max_retries" yaml:"max_retries"`
}

// SourceConfig selects schema files instead of a registry: a local
// directory, or the GitHub repository named by github.repo, read under
// github.schema_path at github.base_branch.
type SourceConfig struct {
	SchemasDir string `koanf:"schemas_dir" yaml:"schemas_dir"`
	GitHub     bool   `koanf:"github" yaml:"github"`
}

// LLMConfig holds language model settings shared by every provider.
type LLMConfig struct {
	DefaultProvider string                    `koanf:"default_provider" yaml:"default_provider"`
	MinConfidence   string                    `koanf:"min_confidence" yaml:"min_confidence"`
	Temperature     float64                   `koanf:"temperature" yaml:"temperature"`
	MaxTokens       int                       `koanf:"max_tokens" yaml:"max_tokens"`
	Timeout         Duration                  `koanf:"timeout" yaml:"timeout"`
	RateLimit       float64                   `koanf:"rate_limit" yaml:"rate_limit"`
	Burst           int                       `koanf:"burst" yaml:"burst"`
	MaxRetries      int                       `koanf:"max_retries" yaml:"max_retries"`
	Providers       map[string]ProviderConfig `koanf:"providers" yaml:"providers"`
}

// ProviderConfig holds per-provider credentials and model selection.
type ProviderConfig struct {
	APIKey     Secret `koanf:"api_key" yaml:"api_key"`
	Model      string `koanf:"model" yaml:"model"`
	BaseURL    string `koanf:"base_url" yaml:"base_url"`
	APIVersion string `koanf:"api_version" yaml:"api_version"`
}

// Provider returns the settings for name, or a zero value.
func (c LLMConfig) Provider(name string) ProviderConfig {
	if c.Providers == nil {
		return ProviderConfig{}
	}
	return c.Providers[name]
}

// AgentConfig controls planning thresholds, batching and refinement.
type AgentConfig struct {
	SingleBatchMax       int      `koanf:"single_batch_max" yaml:"single_batch_max"`
	BatchedMax           int      `koanf:"batched_max" yaml:"batched_max"`
	BatchSize            int      `koanf:"batch_size" yaml:"batch_size"`
	ProgressiveBatchSize int      `koanf:"progressive_batch_size" yaml:"progressive_batch_size"`
	RefineBatchSize      int      `koanf:"refine_batch_size" yaml:"refine_batch_size"`
	MaxRefineRounds      int      `koanf:"max_refine_rounds" yaml:"max_refine_rounds"`
	Concurrency          int      `koanf:"concurrency" yaml:"concurrency"`
	PerElementCost       Duration `koanf:"per_element_cost" yaml:"per_element_cost"`
	AcceptBestEffort     bool     `koanf:"accept_best_effort" yaml:"accept_best_effort"`
}

// ReviewConfig tunes the quality predicates.
type ReviewConfig struct {
	MinWords         int `koanf:"min_words" yaml:"min_words"`
	GenericMaxLength int `koanf:"generic_max_length" yaml:"generic_max_length"`
}

// OutputConfig controls rendering and publication.
type OutputConfig struct {
	DryRun    bool   `koanf:"dry_run" yaml:"dry_run"`
	Publisher string `koanf:"publisher" yaml:"publisher"`
	Format    string `koanf:"format" yaml:"format"`
	OutputDir string `koanf:"output_dir" yaml:"output_dir"`
	TUI       bool   `koanf:"tui" yaml:"tui"`
}

// GitHubConfig holds pull request publication settings.
type GitHubConfig struct {
	Token        Secret   `koanf:"token" yaml:"token"`
	Repo         string   `koanf:"repo" yaml:"repo"`
	BaseBranch   string   `koanf:"base_branch" yaml:"base_branch"`
	SchemaPath   string   `koanf:"schema_path" yaml:"schema_path"`
	BranchPrefix string   `koanf:"branch_prefix" yaml:"branch_prefix"`
	Timeout      Duration `koanf:"timeout" yaml:"timeout"`
	MaxRetries   int      `koanf:"max_retries" yaml:"max_retries"`
}

// Owner returns the owner half of Repo ("owner/name").
func (c GitHubConfig) Owner() string {
	owner, _, _ := strings.Cut(c.Repo, "/")
	return owner
}

// Name returns the repository half of Repo ("owner/name").
func (c GitHubConfig) Name() string {
	_, name, _ := strings.Cut(c.Repo, "/")
	return name
}

// GitConfig holds local clone publication settings.
type GitConfig struct {
	RepoPath     string `koanf:"repo_path" yaml:"repo_path"`
	BaseBranch   string `koanf:"base_branch" yaml:"base_branch"`
	SchemaPath   string `koanf:"schema_path" yaml:"schema_path"`
	BranchPrefix string `koanf:"branch_prefix" yaml:"branch_prefix"`
	AuthorName   string `koanf:"author_name" yaml:"author_name"`
	AuthorEmail  string `koanf:"author_email" yaml:"author_email"`
}

// MetricsConfig configures the Prometheus Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `koanf:"pushgateway_url" yaml:"pushgateway_url"`
	Job            string `koanf:"job" yaml:"job"`
}

// ConfigurationError reports a configuration problem detected before any
// external call is made. It is always fatal for a run.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func invalid(field, reason string) error {
	return &ConfigurationError{Field: field, Reason: reason}
}

// Validate checks the configuration and returns every problem found, joined.
// Each element of the joined error is a *ConfigurationError.
func (c *Config) Validate() error {
	var errs []error

	switch {
	case c.Source.GitHub:
		if c.Source.SchemasDir != "" {
			errs = append(errs, invalid("source.github", "cannot be combined with source.schemas_dir"))
		}
		if !c.GitHub.Token.IsSet() {
			errs = append(errs, invalid("github.token", "GITHUB_TOKEN is required to read schemas from GitHub"))
		}
		if c.GitHub.Owner() == "" || c.GitHub.Name() == "" {
			errs = append(errs, invalid("github.repo", fmt.Sprintf("must be owner/name, got %q", c.GitHub.Repo)))
		}
	case c.Registry.URL == "" && c.Source.SchemasDir == "":
		errs = append(errs, invalid("registry.url", "a registry url, source.schemas_dir or source.github is required"))
	}
	for _, p := range append(append([]string{}, c.Registry.IncludeSubjects...), c.Registry.ExcludeSubjects...) {
		if _, err := glob.Compile(p); err != nil {
			errs = append(errs, &ConfigurationError{Field: "registry.include_subjects", Reason: fmt.Sprintf("invalid glob %q", p), Err: err})
		}
	}

	if !contains(confidenceLevels, strings.ToLower(c.LLM.MinConfidence)) {
		errs = append(errs, invalid("llm.min_confidence", fmt.Sprintf("must be one of %v, got %q", confidenceLevels, c.LLM.MinConfidence)))
	}
	if !contains(ProviderNames, c.LLM.DefaultProvider) {
		errs = append(errs, invalid("llm.default_provider", fmt.Sprintf("unknown provider %q, expected one of %v", c.LLM.DefaultProvider, ProviderNames)))
	}
	if c.LLM.RateLimit <= 0 {
		errs = append(errs, invalid("llm.rate_limit", "must be positive"))
	}
	if c.LLM.Burst <= 0 {
		errs = append(errs, invalid("llm.burst", "must be positive"))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, invalid("llm.max_retries", "cannot be negative"))
	}

	a := c.Agent
	if a.SingleBatchMax <= 0 {
		errs = append(errs, invalid("agent.single_batch_max", "must be positive"))
	}
	if a.BatchedMax <= a.SingleBatchMax {
		errs = append(errs, invalid("agent.batched_max", "must be greater than agent.single_batch_max"))
	}
	if a.BatchSize <= 0 || a.ProgressiveBatchSize <= 0 || a.RefineBatchSize <= 0 {
		errs = append(errs, invalid("agent.batch_size", "batch sizes must be positive"))
	}
	if a.MaxRefineRounds < 0 {
		errs = append(errs, invalid("agent.max_refine_rounds", "cannot be negative"))
	}
	if a.Concurrency <= 0 {
		errs = append(errs, invalid("agent.concurrency", "must be positive"))
	}

	if c.Review.MinWords <= 0 {
		errs = append(errs, invalid("review.min_words", "must be positive"))
	}

	switch c.Output.Publisher {
	case PublisherGitHub:
		if !c.Output.DryRun {
			if !c.GitHub.Token.IsSet() {
				errs = append(errs, invalid("github.token", "GITHUB_TOKEN is required to open pull requests"))
			}
			if c.GitHub.Owner() == "" || c.GitHub.Name() == "" {
				errs = append(errs, invalid("github.repo", fmt.Sprintf("must be owner/name, got %q", c.GitHub.Repo)))
			}
		}
	case PublisherGit:
		if c.Git.RepoPath == "" {
			errs = append(errs, invalid("git.repo_path", "path to a local clone is required"))
		}
	case PublisherDirectory:
		if c.Output.OutputDir == "" {
			errs = append(errs, invalid("output.output_dir", "directory is required"))
		}
	default:
		errs = append(errs, invalid("output.publisher", fmt.Sprintf("unknown publisher %q", c.Output.Publisher)))
	}
	if c.Output.Format != "text" && c.Output.Format != "json" {
		errs = append(errs, invalid("output.format", fmt.Sprintf("must be 'text' or 'json', got %q", c.Output.Format)))
	}

	return errors.Join(errs...)
}

// Section unmarshals the raw configuration subtree at key into out.
// It is used by packages that own their configuration types.
func (c *Config) Section(key string, out interface{}) error {
	if c.k == nil || !c.k.Exists(key) {
		return nil
	}
	if err := c.k.Unmarshal(key, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", key, err)
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
