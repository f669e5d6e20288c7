package secrets

// DefaultRules returns the built-in detection rules. They cover credentials
// that show up in schema default values and hand-written descriptions:
// connection strings, cloud and SaaS API keys, tokens and key material.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "aws-access-key-id",
			Description: "AWS Access Key ID",
			Pattern:     `\b(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}\b`,
		},
		{
			ID:          "generic-api-key",
			Description: "Generic API Key",
			Pattern:     `(?i)(?:api[_-]?key|apikey|access[_-]?token)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`,
			Keywords:    []string{"key", "token"},
			Entropy:     3.0,
		},
		{
			ID:          "generic-secret",
			Description: "Generic Secret",
			Pattern:     `(?i)(?:secret|password|passwd|pwd)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
			Keywords:    []string{"secret", "password", "passwd", "pwd"},
		},
		{
			ID:          "private-key",
			Description: "Private Key",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY(?:[- ]BLOCK)?-----`,
		},
		{
			ID:          "github-token",
			Description: "GitHub Token",
			Pattern:     `\b(?:gh[pousr]_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,})\b`,
		},
		{
			ID:          "slack-token",
			Description: "Slack Token",
			Pattern:     `xox[baprs]-[A-Za-z0-9\-]{10,}`,
		},
		{
			ID:          "stripe-key",
			Description: "Stripe API Key",
			Pattern:     `(?:sk|pk|rk)_(?:live|test)_[A-Za-z0-9]{24,}`,
		},
		{
			ID:          "connection-url",
			Description: "Connection URL with embedded credentials",
			Pattern:     `(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|rediss|amqps?|kafka|sasl_ssl|https?|jdbc:[a-z]+)://[^\s:/@'"]+:[^\s@'"]+@[^\s'"]+`,
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
		},
		{
			ID:          "google-api-key",
			Description: "Google API Key",
			Pattern:     `AIza[A-Za-z0-9_\-]{35}`,
		},
		{
			ID:          "anthropic-api-key",
			Description: "Anthropic API Key",
			Pattern:     `sk-ant-[A-Za-z0-9_\-]{32,}`,
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API Key",
			Pattern:     `\bsk-(?:proj-)?[A-Za-z0-9_\-]{32,}`,
		},
		{
			ID:          "confluent-api-secret",
			Description: "Confluent Cloud API Secret",
			Pattern:     `(?i)(?:sasl\.jaas\.config|basic\.auth\.user\.info)\s*[:=]\s*[^\s]+`,
			Keywords:    []string{"sasl", "basic.auth"},
		},
		{
			ID:          "bearer-token",
			Description: "Bearer Token",
			Pattern:     `(?i)\bbearer\s+[A-Za-z0-9_\-\.=]{20,}`,
			Keywords:    []string{"bearer"},
		},
	}
}
