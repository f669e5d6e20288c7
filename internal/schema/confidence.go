package schema

import "strings"

// Confidence is the model's self-assessed certainty in a description.
// The zero value is unset.
type Confidence int

const (
	ConfidenceLow Confidence = iota + 1
	ConfidenceMedium
	ConfidenceHigh
)

// ParseConfidence is case-insensitive. Absent or unrecognised values map
// to ConfidenceMedium.
func ParseConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ConfidenceLow
	case "high":
		return ConfidenceHigh
	}
	return ConfidenceMedium
}

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	}
	return ""
}

// AtLeast reports whether c meets min.
func (c Confidence) AtLeast(min Confidence) bool {
	return c >= min
}

// MarshalText implements encoding.TextMarshaler.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Confidence) UnmarshalText(text []byte) error {
	*c = ParseConfidence(string(text))
	return nil
}
