package formats

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/schemadoc/internal/schema"
	"github.com/tidwall/gjson"
)

// Avro handles Avro schemas. Records, their fields and named enums are
// documentable through the "doc" attribute.
type Avro struct{}

func (Avro) Format() schema.Format { return schema.FormatAvro }
func (Avro) Extension() string     { return ".avsc" }

func (a Avro) Extract(subject, raw string) (schema.Catalog, error) {
	nodes, err := a.walk(subject, raw)
	if err != nil {
		return nil, err
	}
	catalog := make(schema.Catalog, 0, len(nodes))
	for _, n := range nodes {
		catalog = append(catalog, n.elem)
	}
	catalog.LinkSiblings()
	return catalog, nil
}

func (a Avro) Apply(subject, raw string, docs map[string]string) (string, error) {
	nodes, err := a.walk(subject, raw)
	if err != nil {
		return "", err
	}
	seen := make(map[string]bool, len(nodes))
	values := make(map[location]string, len(docs))
	for _, n := range nodes {
		key := n.elem.Key()
		seen[key] = true
		if doc, ok := docs[key]; ok {
			values[n.loc.key("doc")] = doc
		}
	}
	if err := unknownPaths(docs, seen); err != nil {
		return "", err
	}
	return setStrings(raw, values)
}

func (Avro) walk(subject, raw string) ([]docNode, error) {
	if !gjson.Valid(raw) {
		return nil, parseError(schema.FormatAvro, subject, "invalid JSON")
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		// Primitive and union top-level schemas have nothing to document.
		if root.Type == gjson.String || root.IsArray() {
			return nil, nil
		}
		return nil, parseError(schema.FormatAvro, subject, "top-level schema must be an object")
	}

	w := &avroWalker{}
	switch root.Get("type").String() {
	case "record", "error":
		if err := w.record(root, nil, ""); err != nil {
			return nil, parseError(schema.FormatAvro, subject, err.Error())
		}
	case "enum":
		w.enum(root, nil, "")
	}
	return w.nodes, nil
}

type avroWalker struct {
	nodes []docNode
}

func (w *avroWalker) record(rec gjson.Result, prefix schema.Path, loc location) error {
	name := rec.Get("name").String()
	if name == "" {
		return fmt.Errorf("record at %q has no name", prefix.String())
	}
	path := prefix.Child(name)

	w.nodes = append(w.nodes, docNode{
		elem: &schema.Element{
			Path:        path,
			Kind:        schema.KindRecord,
			Name:        name,
			Type:        "record",
			Parent:      prefix.Last(),
			ExistingDoc: strings.TrimSpace(rec.Get("doc").String()),
		},
		loc: loc,
	})

	var err error
	rec.Get("fields").ForEach(func(k, f gjson.Result) bool {
		fname := f.Get("name").String()
		if fname == "" {
			err = fmt.Errorf("field %d of record %s has no name", k.Int(), path)
			return false
		}
		fpath := path.Child(fname)
		floc := loc.key("fields").index(int(k.Int()))
		typ := f.Get("type")

		w.nodes = append(w.nodes, docNode{
			elem: &schema.Element{
				Path:        fpath,
				Kind:        schema.KindField,
				Name:        fname,
				Type:        avroTypeString(typ),
				Parent:      name,
				ParentPath:  path,
				Default:     rawValue(f.Get("default")),
				ExistingDoc: strings.TrimSpace(f.Get("doc").String()),
			},
			loc: floc,
		})
		err = w.nested(typ, fpath, floc.key("type"))
		return err == nil
	})
	return err
}

func (w *avroWalker) enum(e gjson.Result, prefix schema.Path, loc location) {
	name := e.Get("name").String()
	if name == "" {
		name = "unknown"
	}
	w.nodes = append(w.nodes, docNode{
		elem: &schema.Element{
			Path:        prefix.Child(name),
			Kind:        schema.KindEnum,
			Name:        name,
			Type:        "enum",
			Parent:      prefix.Last(),
			Symbols:     stringList(e.Get("symbols")),
			Default:     rawValue(e.Get("default")),
			ExistingDoc: strings.TrimSpace(e.Get("doc").String()),
		},
		loc: loc,
	})
}

func (w *avroWalker) nested(t gjson.Result, prefix schema.Path, loc location) error {
	switch {
	case t.IsArray():
		var err error
		t.ForEach(func(k, variant gjson.Result) bool {
			err = w.nested(variant, prefix, loc.index(int(k.Int())))
			return err == nil
		})
		return err
	case t.IsObject():
		switch t.Get("type").String() {
		case "record", "error":
			return w.record(t, prefix, loc)
		case "enum":
			w.enum(t, prefix, loc)
		case "array":
			return w.nested(t.Get("items"), prefix, loc.key("items"))
		case "map":
			return w.nested(t.Get("values"), prefix, loc.key("values"))
		}
	}
	return nil
}

// avroTypeString renders an Avro type as a short human-readable string such
// as union<null, string> or array<record(Address)>.
func avroTypeString(t gjson.Result) string {
	switch {
	case t.Type == gjson.String:
		return t.Str
	case t.IsArray():
		var parts []string
		t.ForEach(func(_, v gjson.Result) bool {
			parts = append(parts, avroTypeString(v))
			return true
		})
		return "union<" + strings.Join(parts, ", ") + ">"
	case t.IsObject():
		name := t.Get("name").String()
		if name == "" {
			name = "unknown"
		}
		switch typ := t.Get("type").String(); typ {
		case "array":
			return "array<" + avroTypeString(t.Get("items")) + ">"
		case "map":
			return "map<" + avroTypeString(t.Get("values")) + ">"
		case "enum", "record", "fixed":
			return typ + "(" + name + ")"
		case "":
			return "unknown"
		default:
			if lt := t.Get("logicalType").String(); lt != "" {
				return typ + "(" + lt + ")"
			}
			return typ
		}
	}
	return "unknown"
}
