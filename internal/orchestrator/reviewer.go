package orchestrator

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

// Predicate names, in evaluation order.
const (
	FlagGeneric          = "generic"
	FlagTooShort         = "too-short"
	FlagLowConfidence    = "low-confidence"
	FlagDuplicateSibling = "duplicate-sibling"
	FlagPlaceholder      = "placeholder"
)

// Predicate is one named quality check. Check returns true when the text
// should be rejected.
type Predicate struct {
	Name  string
	Check func(text string, e *schema.Element, rc *ReviewContext) bool
}

// Predicates returns the review predicates in evaluation order.
func Predicates() []Predicate {
	return []Predicate{
		{Name: FlagGeneric, Check: func(text string, e *schema.Element, rc *ReviewContext) bool {
			return IsGeneric(text, e, rc.opts)
		}},
		{Name: FlagTooShort, Check: func(text string, _ *schema.Element, rc *ReviewContext) bool {
			return len(strings.Fields(text)) < rc.opts.MinWords
		}},
		{Name: FlagLowConfidence, Check: func(_ string, e *schema.Element, rc *ReviewContext) bool {
			c := e.Confidence
			if c == 0 {
				c = schema.ConfidenceMedium
			}
			return c == schema.ConfidenceLow || !c.AtLeast(rc.opts.MinConfidence)
		}},
		{Name: FlagDuplicateSibling, Check: func(text string, e *schema.Element, rc *ReviewContext) bool {
			return rc.duplicated(e, text)
		}},
		{Name: FlagPlaceholder, Check: func(text string, _ *schema.Element, _ *ReviewContext) bool {
			return placeholderRe.MatchString(text)
		}},
	}
}

var (
	genericPrefixes = []string{
		"this field",
		"the value of",
		"a field for",
		"a field that",
		"field for",
		"represents the",
		"contains the",
		"stores the",
		"holds the",
		"this is the",
		"this property",
	}

	placeholderRe = regexp.MustCompile(`(?i)\b(todo|tbd|fixme|xxx)\b|\?\?\?|lorem ipsum`)

	// filler words carry no information about an element.
	filler = map[string]bool{
		"the": true, "a": true, "an": true, "of": true, "for": true, "is": true,
		"this": true, "field": true, "value": true, "property": true,
		"element": true, "type": true, "record": true, "object": true, "message": true,
	}
)

// IsGeneric reports whether text is boilerplate: a short description that
// opens with a stock phrase, or a bare restatement of the element's name
// and type.
func IsGeneric(text string, e *schema.Element, opts *Options) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return true
	}
	maxLen := 50
	if opts != nil && opts.GenericMaxLength > 0 {
		maxLen = opts.GenericMaxLength
	}
	if len(t) < maxLen {
		for _, p := range genericPrefixes {
			if strings.HasPrefix(t, p) {
				return true
			}
		}
	}
	return restatesName(t, e)
}

// restatesName reports whether every content word of text comes from the
// element's name or type.
func restatesName(text string, e *schema.Element) bool {
	if e == nil {
		return false
	}
	known := make(map[string]bool)
	for _, w := range words(e.Name) {
		known[w] = true
	}
	for _, w := range words(e.Type) {
		known[w] = true
	}
	content := 0
	for _, w := range words(text) {
		if filler[w] {
			continue
		}
		if !known[w] {
			return false
		}
		content++
	}
	return content > 0
}

// words splits s into lower-case words at punctuation, underscores and
// camelCase boundaries.
func words(s string) []string {
	var (
		out  []string
		cur  []rune
		prev rune
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && unicode.IsLower(prev) {
				flush()
			}
			cur = append(cur, r)
		default:
			flush()
		}
		prev = r
	}
	flush()
	return out
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// ReviewContext carries what predicates need beyond the element itself:
// the options and the texts assigned across the job.
type ReviewContext struct {
	opts *Options

	// texts counts elements per parent path and normalized text.
	texts map[string]int
}

// NewReviewContext indexes the texts currently assigned in catalog.
// Candidates count for pipeline elements, existing docs for documented ones.
func NewReviewContext(opts *Options, catalog schema.Catalog) *ReviewContext {
	rc := &ReviewContext{opts: opts, texts: make(map[string]int)}
	for _, e := range catalog {
		text := e.CandidateDoc
		if e.Status == schema.StatusDocumented {
			text = e.ExistingDoc
		}
		if text == "" {
			continue
		}
		rc.texts[siblingKey(e, text)]++
	}
	return rc
}

func siblingKey(e *schema.Element, text string) string {
	return e.ParentPath.String() + "\x00" + normalize(text)
}

func (rc *ReviewContext) duplicated(e *schema.Element, text string) bool {
	if e.ParentPath == nil {
		return false
	}
	return rc.texts[siblingKey(e, text)] > 1
}

// Review evaluates every predicate against the element's candidate and
// returns the names of those that rejected it. Reasons are computed fresh
// on every call.
func Review(e *schema.Element, rc *ReviewContext) []string {
	var reasons []string
	for _, p := range Predicates() {
		if p.Check(e.CandidateDoc, e, rc) {
			reasons = append(reasons, p.Name)
		}
	}
	return reasons
}

// Reviewer accepts or flags generated and refined elements.
type Reviewer struct {
	opts *Options
}

// NewReviewer creates a Reviewer.
func NewReviewer(opts *Options) *Reviewer {
	return &Reviewer{opts: opts}
}

// ReviewJob reviews every generated or refined element of job and returns
// how many were accepted and flagged.
func (r *Reviewer) ReviewJob(job *schema.Job) (accepted, flagged int, err error) {
	rc := NewReviewContext(r.opts, job.Catalog)
	for _, e := range job.Catalog.WithStatus(schema.StatusGenerated, schema.StatusRefined) {
		reasons := Review(e, rc)
		if len(reasons) == 0 {
			if err := e.Transition(schema.StatusAccepted); err != nil {
				return accepted, flagged, err
			}
			e.FlagReasons = nil
			accepted++
			continue
		}
		if err := e.Transition(schema.StatusFlagged); err != nil {
			return accepted, flagged, err
		}
		e.FlagReasons = reasons
		flagged++
	}
	return accepted, flagged, nil
}
