package formats

import (
	"strings"

	"github.com/fyrsmithlabs/schemadoc/internal/schema"
	"github.com/tidwall/gjson"
)

// JSONSchema handles JSON Schema documents. Objects and their properties are
// documentable through the "description" keyword. The root object is named
// after the subject; array items of object type are named "<property>[]".
type JSONSchema struct{}

func (JSONSchema) Format() schema.Format { return schema.FormatJSONSchema }
func (JSONSchema) Extension() string     { return ".json" }

func (j JSONSchema) Extract(subject, raw string) (schema.Catalog, error) {
	nodes, err := j.walk(subject, raw)
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

func (j JSONSchema) Apply(subject, raw string, docs map[string]string) (string, error) {
	nodes, err := j.walk(subject, raw)
	if err != nil {
		return "", err
	}
	seen := make(map[string]bool, len(nodes))
	values := make(map[location]string, len(docs))
	for _, n := range nodes {
		key := n.elem.Key()
		seen[key] = true
		if doc, ok := docs[key]; ok {
			values[n.loc.key("description")] = doc
		}
	}
	if err := unknownPaths(docs, seen); err != nil {
		return "", err
	}
	return setStrings(raw, values)
}

func (JSONSchema) walk(subject, raw string) ([]docNode, error) {
	if !gjson.Valid(raw) {
		return nil, parseError(schema.FormatJSONSchema, subject, "invalid JSON")
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return nil, parseError(schema.FormatJSONSchema, subject, "top-level schema must be an object")
	}
	if !isObjectSchema(root) {
		return nil, nil
	}
	w := &jsonSchemaWalker{}
	w.object(root, schema.Path{subject}, nil, "", true)
	return w.nodes, nil
}

type jsonSchemaWalker struct {
	nodes []docNode
}

// object walks an object schema. emit is false for objects nested directly
// under a property, which the property element already documents.
func (w *jsonSchemaWalker) object(obj gjson.Result, path, parent schema.Path, loc location, emit bool) {
	if emit {
		w.nodes = append(w.nodes, docNode{
			elem: &schema.Element{
				Path:        path,
				Kind:        schema.KindObject,
				Name:        path.Last(),
				Type:        "object",
				Parent:      parent.Last(),
				ExistingDoc: strings.TrimSpace(obj.Get("description").String()),
			},
			loc: loc,
		})
	}

	obj.Get("properties").ForEach(func(k, prop gjson.Result) bool {
		name := k.String()
		ppath := path.Child(name)
		ploc := loc.key("properties").key(name)

		w.nodes = append(w.nodes, docNode{
			elem: &schema.Element{
				Path:        ppath,
				Kind:        schema.KindProperty,
				Name:        name,
				Type:        jsonTypeString(prop),
				Parent:      path.Last(),
				ParentPath:  path,
				Default:     rawValue(prop.Get("default")),
				Symbols:     stringList(prop.Get("enum")),
				ExistingDoc: strings.TrimSpace(prop.Get("description").String()),
			},
			loc: ploc,
		})

		switch {
		case isObjectSchema(prop):
			w.object(prop, ppath, path, ploc, false)
		case prop.Get("type").String() == "array" && isObjectSchema(prop.Get("items")):
			items := path.Child(name + "[]")
			w.object(prop.Get("items"), items, path, ploc.key("items"), true)
		}
		return true
	})
}

func isObjectSchema(r gjson.Result) bool {
	return r.IsObject() && (r.Get("type").String() == "object" || r.Get("properties").IsObject())
}

// jsonTypeString renders a property type. Kafka Connect type hints win over
// the JSON type; a oneOf with a null branch renders as nullable<T>.
func jsonTypeString(prop gjson.Result) string {
	if one := prop.Get("oneOf"); one.IsArray() {
		var types []string
		nullable := false
		one.ForEach(func(_, opt gjson.Result) bool {
			t := jsonSingleType(opt)
			if t == "null" {
				nullable = true
				return true
			}
			types = append(types, t)
			return true
		})
		switch {
		case len(types) == 0:
			return "null"
		case nullable && len(types) == 1:
			return "nullable<" + types[0] + ">"
		case nullable:
			return "nullable<oneOf<" + strings.Join(types, ", ") + ">>"
		default:
			return "oneOf<" + strings.Join(types, ", ") + ">"
		}
	}
	return jsonSingleType(prop)
}

func jsonSingleType(r gjson.Result) string {
	if ct := r.Get(`connect\.type`); ct.Exists() {
		return ct.String()
	}
	t := r.Get("type")
	switch {
	case t.IsArray():
		var parts []string
		nullable := false
		t.ForEach(func(_, v gjson.Result) bool {
			if v.String() == "null" {
				nullable = true
			} else {
				parts = append(parts, v.String())
			}
			return true
		})
		s := strings.Join(parts, "|")
		if nullable {
			return "nullable<" + s + ">"
		}
		return s
	case t.String() == "array":
		if items := r.Get("items"); items.IsObject() {
			return "array<" + jsonSingleType(items) + ">"
		}
		return "array"
	case t.Exists():
		if f := r.Get("format").String(); f != "" {
			return t.String() + "(" + f + ")"
		}
		return t.String()
	case r.Get("$ref").Exists():
		return "ref(" + r.Get("$ref").String() + ")"
	}
	return "unknown"
}
