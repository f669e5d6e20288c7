package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Format identifies a schema definition language.
type Format string

const (
	FormatAvro       Format = "avro"
	FormatJSONSchema Format = "json-schema"
	FormatProtobuf   Format = "protobuf"
)

// ErrUnknownFormat is returned by ParseFormat for unrecognised names.
var ErrUnknownFormat = errors.New("unknown schema format")

// ParseFormat maps a registry schemaType (AVRO, JSON, PROTOBUF) or a
// canonical format name onto a Format. An empty type means Avro, as in the
// registry API.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "avro":
		return FormatAvro, nil
	case "json", "json-schema", "jsonschema":
		return FormatJSONSchema, nil
	case "protobuf", "proto":
		return FormatProtobuf, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// RegistryType returns the registry schemaType for f.
func (f Format) RegistryType() string {
	switch f {
	case FormatJSONSchema:
		return "JSON"
	case FormatProtobuf:
		return "PROTOBUF"
	}
	return "AVRO"
}

// Kind classifies an element.
type Kind string

const (
	KindRecord   Kind = "record"
	KindField    Kind = "field"
	KindEnum     Kind = "enum"
	KindObject   Kind = "object"
	KindProperty Kind = "property"
	KindMessage  Kind = "message"
)

// Container reports whether elements of this kind enclose other elements.
func (k Kind) Container() bool {
	return k == KindRecord || k == KindObject || k == KindMessage
}

// Path addresses an element from the schema root.
type Path []string

// ParsePath splits a dotted key back into a Path.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "."))
}

// String returns the dotted key, unique within a schema.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Child returns a new path with name appended.
func (p Path) Child(name string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, name)
}

// Parent returns the enclosing path, or nil at the root.
func (p Path) Parent() Path {
	if len(p) <= 1 {
		return nil
	}
	return p[:len(p)-1]
}

// Last returns the final path segment.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}
