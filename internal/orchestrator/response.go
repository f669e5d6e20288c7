package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

// ErrInvalidResponse wraps every reason a model reply cannot be used.
var ErrInvalidResponse = errors.New("invalid model response")

// GeneratedDoc is the model's answer for one element.
type GeneratedDoc struct {
	Path        string `json:"path" jsonschema:"required,description=Element path exactly as listed in the request"`
	Description string `json:"description" jsonschema:"required,minLength=1,description=One or two sentences documenting the element"`
	Confidence  string `json:"confidence,omitempty" jsonschema:"enum=high,enum=medium,enum=low,description=HIGH when the meaning is obvious; MEDIUM for a reasonable inference; LOW when guessing"`
}

// GenerationResponse is the JSON object the model is asked to return.
type GenerationResponse struct {
	Elements []GeneratedDoc `json:"elements" jsonschema:"required,description=One entry per requested element"`
}

var (
	responseSchemaOnce sync.Once
	responseSchema     string
)

// ResponseSchema returns the JSON Schema of GenerationResponse.
func ResponseSchema() string {
	responseSchemaOnce.Do(func() {
		r := jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}
		s := r.Reflect(&GenerationResponse{})
		s.Version = ""
		s.ID = ""
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			panic(fmt.Sprintf("reflect response schema: %v", err))
		}
		responseSchema = string(b)
	})
	return responseSchema
}

var (
	fenceRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	elementRe = regexp.MustCompile(`(?i)ELEMENT\s*#?\s*(\d+)\s*:?[ \t]*\r?\n`)
	docRe     = regexp.MustCompile(`(?is)DOC:\s*(.+?)(?:\n\s*CONFIDENCE:|\n\s*\n|\n---|$)`)
	confRe    = regexp.MustCompile(`(?i)CONFIDENCE:\s*(\w+)`)
)

// ParseResponse reads a model reply for a batch whose elements have the
// given paths, in order. JSON replies are preferred; the block format
// (ELEMENT #N / DOC / CONFIDENCE) is accepted as a fallback. The result is
// validated: every path exactly once, no unknown paths, no empty text.
func ParseResponse(raw string, paths []string) (map[string]GeneratedDoc, error) {
	docs, err := parseJSONResponse(raw)
	if err != nil {
		var blockErr error
		docs, blockErr = parseBlockResponse(raw, paths)
		if blockErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}
	return validateDocs(docs, paths)
}

func parseJSONResponse(raw string) ([]GeneratedDoc, error) {
	body := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	start, end := strings.IndexAny(body, "{["), strings.LastIndexAny(body, "}]")
	if start < 0 || end < start {
		return nil, errors.New("no JSON object in reply")
	}
	body = body[start : end+1]

	if strings.HasPrefix(body, "[") {
		var list []GeneratedDoc
		if err := json.Unmarshal([]byte(body), &list); err != nil {
			return nil, fmt.Errorf("decode reply: %w", err)
		}
		return list, nil
	}
	var resp GenerationResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if resp.Elements == nil {
		return nil, errors.New(`reply has no "elements" array`)
	}
	return resp.Elements, nil
}

func parseBlockResponse(raw string, paths []string) ([]GeneratedDoc, error) {
	locs := elementRe.FindAllStringSubmatchIndex(raw, -1)
	if len(locs) == 0 {
		return nil, errors.New("no ELEMENT blocks in reply")
	}
	var docs []GeneratedDoc
	for i, loc := range locs {
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		n, err := strconv.Atoi(raw[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		block := raw[loc[1]:end]

		doc := GeneratedDoc{Path: fmt.Sprintf("#%d", n)}
		if n >= 1 && n <= len(paths) {
			doc.Path = paths[n-1]
		}
		if m := docRe.FindStringSubmatch(block); m != nil {
			doc.Description = strings.Join(strings.Fields(m[1]), " ")
		}
		if m := confRe.FindStringSubmatch(block); m != nil {
			doc.Confidence = m[1]
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func validateDocs(docs []GeneratedDoc, paths []string) (map[string]GeneratedDoc, error) {
	want := make(map[string]bool, len(paths))
	for _, p := range paths {
		want[p] = true
	}

	out := make(map[string]GeneratedDoc, len(docs))
	var problems []string
	for _, d := range docs {
		d.Path = strings.TrimSpace(d.Path)
		d.Description = strings.TrimSpace(d.Description)
		switch {
		case !want[d.Path]:
			problems = append(problems, fmt.Sprintf("unknown path %q", d.Path))
		case out[d.Path].Path != "":
			problems = append(problems, fmt.Sprintf("path %q answered twice", d.Path))
		case d.Description == "":
			problems = append(problems, fmt.Sprintf("empty description for %q", d.Path))
		default:
			out[d.Path] = d
		}
	}
	for _, p := range paths {
		if _, ok := out[p]; !ok && !mentions(problems, p) {
			problems = append(problems, fmt.Sprintf("missing path %q", p))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, strings.Join(problems, "; "))
	}
	return out, nil
}

// mentions reports whether a problem already names path.
func mentions(problems []string, path string) bool {
	q := strconv.Quote(path)
	for _, p := range problems {
		if strings.HasSuffix(p, q) {
			return true
		}
	}
	return false
}

// confidence maps the reply's confidence onto schema.Confidence.
func (d GeneratedDoc) confidence() schema.Confidence {
	return schema.ParseConfidence(d.Confidence)
}
