package registry

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Filter selects subjects by glob. A subject is selected when it matches any
// include pattern (or no include patterns are given) and matches no exclude
// pattern. Exclusion always wins.
type Filter struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewFilter compiles include and exclude patterns. Patterns use shell glob
// syntax with {a,b} alternatives.
func NewFilter(include, exclude []string) (*Filter, error) {
	inc, err := compileAll(include)
	if err != nil {
		return nil, err
	}
	exc, err := compileAll(exclude)
	if err != nil {
		return nil, err
	}
	return &Filter{include: inc, exclude: exc}, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid subject pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Match reports whether subject is selected.
func (f *Filter) Match(subject string) bool {
	if f == nil {
		return true
	}
	if len(f.include) > 0 && !matchAny(f.include, subject) {
		return false
	}
	return !matchAny(f.exclude, subject)
}

// Apply returns the selected subjects, preserving order.
func (f *Filter) Apply(subjects []string) []string {
	out := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	return out
}

func matchAny(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}
