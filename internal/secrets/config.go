package secrets

import (
	"fmt"
	"regexp"
)

// Config configures the scrubber.
type Config struct {
	// Enabled controls whether scrubbing is active (default: true).
	Enabled bool `koanf:"enabled"`

	// Rules defines the detection rules.
	Rules []Rule `koanf:"rules"`

	// Redaction replaces each detected secret (default: "[REDACTED]").
	Redaction string `koanf:"redaction"`

	// AllowList holds patterns for matches that are never redacted.
	AllowList []string `koanf:"allow_list"`

	// Gitleaks also runs the gitleaks default rule set (default: true).
	Gitleaks bool `koanf:"gitleaks"`

	compiledRules     []*compiledRule
	compiledAllowList []*regexp.Regexp
}

// Rule defines a secret detection rule.
type Rule struct {
	ID          string `koanf:"id"`
	Description string `koanf:"description"`
	Pattern     string `koanf:"pattern"`

	// Keywords gate the rule: it only runs when one of them appears
	// (case-insensitive) in the content.
	Keywords []string `koanf:"keywords"`

	// Entropy is the minimum Shannon entropy, in bits per byte, a match must
	// reach. Zero disables the check.
	Entropy float64 `koanf:"entropy"`
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig returns a configuration with the standard rules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Redaction: "[REDACTED]",
		Rules:     DefaultRules(),
		Gitleaks:  true,
	}
}

// Validate compiles the rules and allow list.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Redaction == "" {
		c.Redaction = "[REDACTED]"
	}

	c.compiledRules = make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: ID is required", i)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}
		compiled := &compiledRule{Rule: rule, pattern: pattern}
		for _, kw := range rule.Keywords {
			compiled.keywords = append(compiled.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		c.compiledRules = append(c.compiledRules, compiled)
	}

	c.compiledAllowList = make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, pattern := range c.AllowList {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		c.compiledAllowList = append(c.compiledAllowList, compiled)
	}
	return nil
}
