package formats

import (
	"strconv"

	"github.com/fyrsmithlabs/schemadoc/internal/schema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// docNode pairs an element with the location of the JSON object holding its
// documentation.
type docNode struct {
	elem *schema.Element
	loc  location
}

// location is the sjson path of a JSON object that carries a doc key.
type location string

func (l location) index(i int) location {
	return l.key(strconv.Itoa(i))
}

func (l location) key(k string) location {
	k = gjson.Escape(k)
	if l == "" {
		return location(k)
	}
	return l + "." + location(k)
}

// setStrings writes each value at its sjson path and pretty-prints the result.
func setStrings(raw string, values map[location]string) (string, error) {
	out := []byte(raw)
	for loc, v := range values {
		var err error
		out, err = sjson.SetBytes(out, string(loc), v)
		if err != nil {
			return "", err
		}
	}
	return string(pretty.PrettyOptions(out, &pretty.Options{Width: 80, Indent: "  "})), nil
}

// rawValue returns the compact JSON text of r, or "" if r does not exist.
func rawValue(r gjson.Result) string {
	if !r.Exists() {
		return ""
	}
	if r.Type == gjson.String {
		return r.Str
	}
	return string(pretty.Ugly([]byte(r.Raw)))
}

func stringList(r gjson.Result) []string {
	var out []string
	r.ForEach(func(_, v gjson.Result) bool {
		out = append(out, v.String())
		return true
	})
	return out
}
