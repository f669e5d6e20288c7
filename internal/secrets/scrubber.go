package secrets

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Finding is one detected secret. The matched text is never recorded.
type Finding struct {
	RuleID string `json:"rule_id"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// Result holds the scrubbed content and what was removed.
type Result struct {
	Scrubbed string
	Findings []Finding
}

// HasFindings reports whether anything was redacted.
func (r Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// ByRule counts findings per rule ID.
func (r Result) ByRule() map[string]int {
	out := make(map[string]int)
	for _, f := range r.Findings {
		out[f.RuleID]++
	}
	return out
}

// Scrubber detects and redacts secrets. It is safe for concurrent use once
// constructed.
type Scrubber struct {
	config   *Config
	detector *detect.Detector
}

// The gitleaks default config compiles a few hundred patterns; every
// scrubber shares one detector.
var (
	loadDetector = sync.OnceValues(detect.NewDetectorDefaultConfig)
	detectorMu   sync.Mutex
)

// New creates a Scrubber. A nil config uses DefaultConfig.
func New(cfg *Config) (*Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scrubber{config: cfg}
	if cfg.Enabled && cfg.Gitleaks {
		d, err := loadDetector()
		if err != nil {
			return nil, fmt.Errorf("load gitleaks rules: %w", err)
		}
		s.detector = d
	}
	return s, nil
}

// MustNew is New that panics on an invalid config.
func MustNew(cfg *Config) *Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Enabled reports whether scrubbing is active.
func (s *Scrubber) Enabled() bool {
	return s != nil && s.config.Enabled
}

// String returns content with secrets redacted.
func (s *Scrubber) String(content string) string {
	return s.Scrub(content).Scrubbed
}

// Scrub redacts secrets from content. Overlapping matches are merged into a
// single redaction.
func (s *Scrubber) Scrub(content string) Result {
	result := Result{Scrubbed: content}
	if !s.Enabled() || content == "" {
		return result
	}

	for _, rule := range s.config.compiledRules {
		if !rule.applies(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			match := content[m[0]:m[1]]
			if s.allowed(match) {
				continue
			}
			if rule.Entropy > 0 && shannonEntropy(match) < rule.Entropy {
				continue
			}
			result.Findings = append(result.Findings, Finding{RuleID: rule.ID, Start: m[0], End: m[1]})
		}
	}
	result.Findings = append(result.Findings, s.gitleaks(content)...)
	if len(result.Findings) == 0 {
		return result
	}

	spans := make([]Finding, len(result.Findings))
	copy(spans, result.Findings)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	merged := spans[:1]
	for _, f := range spans[1:] {
		last := &merged[len(merged)-1]
		if f.Start <= last.End {
			if f.End > last.End {
				last.End = f.End
			}
			continue
		}
		merged = append(merged, f)
	}

	out := content
	for i := len(merged) - 1; i >= 0; i-- {
		out = out[:merged[i].Start] + s.config.Redaction + out[merged[i].End:]
	}
	result.Scrubbed = out
	return result
}

// gitleaks runs the gitleaks detector and locates every occurrence of each
// secret it reports.
func (s *Scrubber) gitleaks(content string) []Finding {
	if s.detector == nil {
		return nil
	}
	detectorMu.Lock()
	found := s.detector.DetectString(content)
	detectorMu.Unlock()

	var out []Finding
	for _, f := range found {
		secret := f.Secret
		if secret == "" {
			secret = f.Match
		}
		if secret == "" || s.allowed(secret) {
			continue
		}
		for from := 0; ; {
			i := strings.Index(content[from:], secret)
			if i < 0 {
				break
			}
			start := from + i
			out = append(out, Finding{RuleID: f.RuleID, Start: start, End: start + len(secret)})
			from = start + len(secret)
		}
	}
	return out
}

func (r *compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

func (s *Scrubber) allowed(match string) bool {
	for _, p := range s.config.compiledAllowList {
		if p.MatchString(match) {
			return true
		}
	}
	return false
}

func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}
	n := float64(len(s))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}
