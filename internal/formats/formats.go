package formats

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

var (
	// ErrUnsupportedFormat is returned when no codec handles a format.
	ErrUnsupportedFormat = errors.New("unsupported schema format")

	// ErrParse wraps every extraction failure.
	ErrParse = errors.New("schema parse failed")

	// ErrUnknownPath is returned by Apply when a description targets a path
	// the definition does not contain.
	ErrUnknownPath = errors.New("unknown element path")
)

// Parser builds the element catalog of a raw definition.
type Parser interface {
	Extract(subject, raw string) (schema.Catalog, error)
}

// Updater writes descriptions, keyed by path string, into a raw definition.
// Existing documentation at a targeted path is overwritten.
type Updater interface {
	Apply(subject, raw string, docs map[string]string) (string, error)
}

// Codec is the parser and updater pair for one format.
type Codec interface {
	Parser
	Updater
	Format() schema.Format
	// Extension is the file extension used when publishing, e.g. ".avsc".
	Extension() string
}

// Registry maps formats to codecs.
type Registry struct {
	codecs map[schema.Format]Codec
}

// NewRegistry creates a registry holding codecs. A later codec replaces an
// earlier one for the same format.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[schema.Format]Codec, len(codecs))}
	for _, c := range codecs {
		r.codecs[c.Format()] = c
	}
	return r
}

// Default returns a registry with the Avro, JSON Schema and Protobuf codecs.
func Default() *Registry {
	return NewRegistry(Avro{}, JSONSchema{}, Protobuf{})
}

// Lookup returns the codec for f.
func (r *Registry) Lookup(f schema.Format) (Codec, error) {
	c, ok := r.codecs[f]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	return c, nil
}

// Formats lists the registered formats in name order.
func (r *Registry) Formats() []schema.Format {
	out := make([]schema.Format, 0, len(r.codecs))
	for f := range r.codecs {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func parseError(f schema.Format, subject, msg string) error {
	return fmt.Errorf("%w: %s %s: %s", ErrParse, f, subject, msg)
}

// unknownPaths reports the keys of docs that are not in seen.
func unknownPaths(docs map[string]string, seen map[string]bool) error {
	var missing []string
	for k := range docs {
		if !seen[k] {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %v", ErrUnknownPath, missing)
}
