package orchestrator

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// unifiedDiff renders the change from before to after as a unified diff
// with three lines of context. It is empty when nothing changed.
func unifiedDiff(subject, before, after string) string {
	if before == after || after == "" {
		return ""
	}
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(ensureNewline(before)),
		B:        difflib.SplitLines(ensureNewline(after)),
		FromFile: subject + " (registry)",
		ToFile:   subject + " (documented)",
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return out
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
