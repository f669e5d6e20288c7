// Package ignore reads gitignore-style files that hide schema files from a
// directory source.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// FileName is the ignore file looked up at the root of a schemas directory.
const FileName = ".schemadocignore"

// rule is one compiled ignore line.
type rule struct {
	pattern string
	globs   []glob.Glob
	dirOnly bool
}

// Matcher reports whether slash-separated paths relative to a root are
// ignored. The zero value and nil ignore nothing.
type Matcher struct {
	rules []rule
}

// Load reads FileName from root. A missing file yields an empty Matcher.
func Load(root string) (*Matcher, error) {
	f, err := os.Open(filepath.Join(root, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Matcher{}, nil
		}
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse compiles gitignore-style lines. Blank lines and comments are
// skipped; negations are not supported and are skipped too. A pattern
// without a slash matches at any depth, a leading slash anchors it to the
// root and a trailing slash matches directories only.
func Parse(r io.Reader) (*Matcher, error) {
	m := &Matcher{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		ru, ok, err := parseLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if ok {
			m.rules = append(m.rules, ru)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

func parseLine(line string) (rule, bool, error) {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return rule{}, false, nil
	}

	ru := rule{pattern: line}
	p := line
	if strings.HasSuffix(p, "/") {
		ru.dirOnly = true
		p = strings.TrimRight(p, "/")
	}
	anchored := strings.HasPrefix(p, "/")
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return rule{}, false, nil
	}

	candidates := []string{p}
	if !anchored && !strings.Contains(p, "/") {
		candidates = append(candidates, "**/"+p)
	}
	for _, c := range candidates {
		g, err := glob.Compile(c, '/')
		if err != nil {
			return rule{}, false, fmt.Errorf("invalid pattern %q: %w", line, err)
		}
		ru.globs = append(ru.globs, g)
	}
	return ru, true, nil
}

// Match reports whether rel is ignored. isDir tells directory-only rules
// whether they apply.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil {
		return false
	}
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
	for _, ru := range m.rules {
		if ru.dirOnly && !isDir {
			continue
		}
		for _, g := range ru.globs {
			if g.Match(rel) {
				return true
			}
		}
	}
	return false
}

// Patterns returns the source lines of the active rules.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.rules))
	for _, ru := range m.rules {
		out = append(out, ru.pattern)
	}
	return out
}
