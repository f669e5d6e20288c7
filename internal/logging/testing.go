package logging

import (
	"reflect"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger whose entries are kept in memory for assertions.
// It records every level, trace included.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger creates a logger for testing with full observation.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger: &Logger{
			zap:    zap.New(core),
			config: NewDefaultConfig(),
		},
		observed: observed,
	}
}

// All returns all logged entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries matching message substring.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessage(msg)
}

// Reset clears all logged entries.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// AssertLogged verifies a log at level containing message was logged.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			return
		}
	}
	tb.Errorf("expected log at %v containing %q, logs: %+v", level, msgContains, t.observed.All())
}

// AssertNotLogged verifies no log at level containing message was logged.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			tb.Errorf("unexpected log at %v containing %q", level, msgContains)
		}
	}
}

// AssertField verifies a field with key and value exists in message.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected interface{}) {
	tb.Helper()
	for _, entry := range t.observed.FilterMessage(msg).All() {
		for _, field := range entry.Context {
			if field.Key == key {
				if field.Type == zapcore.StringType && field.String == expected {
					return
				}
				if reflect.DeepEqual(field.Interface, expected) {
					return
				}
			}
		}
	}
	tb.Errorf("field %q=%v not found in message %q", key, expected, msg)
}

// AssertNoSecrets fails tb when an entry carries an unredacted value under
// one of the default redaction keys, or text matching a redaction pattern.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	redaction := NewDefaultConfig().Redaction
	patterns := make([]*regexp.Regexp, 0, len(redaction.Patterns))
	for _, p := range redaction.Patterns {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	leaks := func(s string) bool {
		for _, re := range patterns {
			if re.MatchString(s) {
				return true
			}
		}
		return false
	}

	for _, entry := range t.observed.All() {
		if leaks(entry.Message) {
			tb.Errorf("sensitive pattern in message: %q", entry.Message)
		}
		for _, field := range entry.Context {
			if field.Type != zapcore.StringType {
				continue
			}
			if isSensitiveKey(field.Key, redaction.Fields) && field.String != "" && !strings.Contains(field.String, "[REDACTED]") {
				tb.Errorf("sensitive field %q not redacted: %q", field.Key, field.String)
			}
			if leaks(field.String) {
				tb.Errorf("sensitive pattern in field %q: %q", field.Key, field.String)
			}
		}
	}
}

func isSensitiveKey(key string, sensitive []string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitive {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// Count returns the number of entries whose message contains msg.
func (t *TestLogger) Count(msg string) int {
	return t.observed.FilterMessageSnippet(msg).Len()
}
