package formats

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/emicklei/proto"

	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

// Protobuf handles .proto definitions. Schema registries strip comments, so
// documentation lives in options: messages and enums carry
// `option (description) = "...";`, fields carry `[(description) = "..."]`.
// The aliases doc, comment, field_doc, message_doc and
// confluent.field_meta = { doc: "..." } are recognised when reading.
type Protobuf struct{}

func (Protobuf) Format() schema.Format { return schema.FormatProtobuf }
func (Protobuf) Extension() string     { return ".proto" }

var (
	protoContainerDocOptions = map[string]bool{
		"(description)": true, "(doc)": true, "(comment)": true,
		"(message_doc)": true, "(enum_doc)": true,
	}
	protoFieldDocOptions = map[string]bool{
		"(description)": true, "(doc)": true, "(comment)": true, "(field_doc)": true,
	}
)

type insertMode int

const (
	insertAfterBrace insertMode = iota
	insertBeforeSemicolon
	insertBeforeBracket
)

type protoNode struct {
	elem *schema.Element

	// docStart and docEnd delimit the quoted doc string, or are -1.
	docStart, docEnd int
	insertAt         int
	mode             insertMode
	indent           string
}

func (p Protobuf) Extract(subject, raw string) (schema.Catalog, error) {
	nodes, err := p.walk(subject, raw)
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

func (p Protobuf) Apply(subject, raw string, docs map[string]string) (string, error) {
	nodes, err := p.walk(subject, raw)
	if err != nil {
		return "", err
	}

	type edit struct {
		start, end int
		text       string
	}
	var edits []edit
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		key := n.elem.Key()
		seen[key] = true
		doc, ok := docs[key]
		if !ok {
			continue
		}
		quoted := strconv.Quote(doc)
		switch {
		case n.docStart >= 0:
			edits = append(edits, edit{n.docStart, n.docEnd, quoted})
		case n.mode == insertAfterBrace:
			edits = append(edits, edit{n.insertAt, n.insertAt, "\n" + n.indent + "option (description) = " + quoted + ";"})
		case n.mode == insertBeforeSemicolon:
			edits = append(edits, edit{n.insertAt, n.insertAt, " [(description) = " + quoted + "]"})
		case n.mode == insertBeforeBracket:
			edits = append(edits, edit{n.insertAt, n.insertAt, ", (description) = " + quoted})
		}
	}
	if err := unknownPaths(docs, seen); err != nil {
		return "", err
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	out := raw
	for _, e := range edits {
		out = out[:e.start] + e.text + out[e.end:]
	}
	return out, nil
}

// walk parses raw with emicklei/proto and locates, from the positions it
// reports, the byte spans Apply rewrites.
func (Protobuf) walk(subject, raw string) ([]protoNode, error) {
	parser := proto.NewParser(strings.NewReader(raw))
	parser.Filename(subject)
	def, err := parser.Parse()
	if err != nil {
		return nil, parseError(schema.FormatProtobuf, subject, strings.TrimSpace(err.Error()))
	}

	w := &protoWalker{src: raw}
	for _, e := range def.Elements {
		if err := w.element(e, schema.Path{subject}, nil); err != nil {
			return nil, parseError(schema.FormatProtobuf, subject, err.Error())
		}
	}
	return w.nodes, nil
}

type protoWalker struct {
	src   string
	nodes []protoNode
}

func (w *protoWalker) element(v proto.Visitee, prefix, parent schema.Path) error {
	switch e := v.(type) {
	case *proto.Message:
		if e.IsExtend {
			return nil
		}
		return w.message(e, prefix, parent)
	case *proto.Enum:
		return w.enum(e, prefix, parent)
	}
	return nil
}

func (w *protoWalker) message(m *proto.Message, prefix, parent schema.Path) error {
	path := prefix.Child(m.Name)
	node, err := w.container(m.Position, &schema.Element{
		Path:   path,
		Kind:   schema.KindMessage,
		Name:   m.Name,
		Type:   "message",
		Parent: parent.Last(),
	})
	if err != nil {
		return err
	}
	idx := len(w.nodes)
	w.nodes = append(w.nodes, node)

	for _, v := range m.Elements {
		switch e := v.(type) {
		case *proto.Option:
			err = w.containerOption(idx, e)
		case *proto.NormalField:
			err = w.field(e.Field, fieldLabel(e)+e.Type, path, m.Name)
		case *proto.MapField:
			err = w.field(e.Field, "map<"+e.KeyType+", "+e.Type+">", path, m.Name)
		case *proto.Oneof:
			for _, of := range e.Elements {
				f, ok := of.(*proto.OneOfField)
				if !ok {
					continue
				}
				if err = w.field(f.Field, f.Type, path, m.Name); err != nil {
					break
				}
			}
		case *proto.Message, *proto.Enum:
			err = w.element(e, path, path)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func fieldLabel(f *proto.NormalField) string {
	switch {
	case f.Repeated:
		return "repeated "
	case f.Optional:
		return "optional "
	case f.Required:
		return "required "
	}
	return ""
}

func (w *protoWalker) enum(e *proto.Enum, prefix, parent schema.Path) error {
	node, err := w.container(e.Position, &schema.Element{
		Path:   prefix.Child(e.Name),
		Kind:   schema.KindEnum,
		Name:   e.Name,
		Type:   "enum",
		Parent: parent.Last(),
	})
	if err != nil {
		return err
	}
	idx := len(w.nodes)
	w.nodes = append(w.nodes, node)

	for _, v := range e.Elements {
		switch v := v.(type) {
		case *proto.Option:
			if err := w.containerOption(idx, v); err != nil {
				return err
			}
		case *proto.EnumField:
			w.nodes[idx].elem.Symbols = append(w.nodes[idx].elem.Symbols, v.Name)
		}
	}
	return nil
}

// container builds the node of a message or enum declared at pos. New
// documentation goes right after its opening brace.
func (w *protoWalker) container(pos scanner.Position, elem *schema.Element) (protoNode, error) {
	open := -1
	w.scan(pos.Offset, func(tok rune, start, _ int) bool {
		if tok == '{' {
			open = start
			return false
		}
		return true
	})
	if open < 0 {
		return protoNode{}, fmt.Errorf("line %d: %s has no body", pos.Line, elem.Name)
	}
	return protoNode{
		elem:     elem,
		docStart: -1,
		docEnd:   -1,
		insertAt: open + 1,
		mode:     insertAfterBrace,
		indent:   indentOf(w.src, pos.Offset) + "  ",
	}, nil
}

func (w *protoWalker) containerOption(idx int, o *proto.Option) error {
	n := &w.nodes[idx]
	if n.docStart >= 0 || !protoContainerDocOptions[o.Name] || !o.Constant.IsString {
		return nil
	}
	start, end, ok := w.valueSpan(o.Position.Offset, false)
	if !ok {
		return fmt.Errorf("line %d: option %s has no string value", o.Position.Line, o.Name)
	}
	n.elem.ExistingDoc = literalText(o.Constant, w.src[start:end])
	n.docStart, n.docEnd = start, end
	return nil
}

func (w *protoWalker) field(f *proto.Field, typ string, msgPath schema.Path, msgName string) error {
	node := protoNode{
		elem: &schema.Element{
			Path:       msgPath.Child(f.Name),
			Kind:       schema.KindField,
			Name:       f.Name,
			Type:       typ,
			Parent:     msgName,
			ParentPath: msgPath,
		},
		docStart: -1,
		docEnd:   -1,
	}

	for _, o := range f.Options {
		if node.docStart >= 0 {
			break
		}
		switch {
		case protoFieldDocOptions[o.Name] && o.Constant.IsString:
			if start, end, ok := w.valueSpan(o.Position.Offset, false); ok {
				node.elem.ExistingDoc = literalText(o.Constant, w.src[start:end])
				node.docStart, node.docEnd = start, end
			}
		case o.Name == "confluent.field_meta":
			lit, found := o.Constant.OrderedMap.Get("doc")
			if !found || !lit.IsString {
				continue
			}
			if start, end, ok := w.valueSpan(o.Position.Offset, true); ok {
				node.elem.ExistingDoc = literalText(*lit, w.src[start:end])
				node.docStart, node.docEnd = start, end
			}
		case o.Name == "default":
			node.elem.Default = o.Constant.Source
			if o.Constant.IsString {
				if start, end, ok := w.valueSpan(o.Position.Offset, false); ok {
					node.elem.Default = literalText(o.Constant, w.src[start:end])
				}
			}
		}
	}

	depth, closing, semi := 0, -1, -1
	w.scan(f.Position.Offset, func(tok rune, start, _ int) bool {
		switch tok {
		case '[', '{', '(':
			depth++
		case ']', '}', ')':
			depth--
			if tok == ']' && depth == 0 {
				closing = start
			}
		case ';':
			if depth == 0 {
				semi = start
				return false
			}
		}
		return true
	})
	switch {
	case semi < 0:
		return fmt.Errorf("line %d: field %s is not terminated", f.Position.Line, f.Name)
	case len(f.Options) > 0 && closing >= 0:
		node.insertAt, node.mode = closing, insertBeforeBracket
	default:
		node.insertAt, node.mode = semi, insertBeforeSemicolon
	}
	w.nodes = append(w.nodes, node)
	return nil
}

// scan feeds the tokens of the source from offset on to fn until fn returns
// false. Comments are skipped; strings arrive whole in either quote style.
func (w *protoWalker) scan(offset int, fn func(tok rune, start, end int) bool) {
	var s scanner.Scanner
	s.Init(strings.NewReader(w.src[offset:]))
	s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats |
		scanner.ScanChars | scanner.ScanStrings | scanner.ScanComments | scanner.SkipComments
	s.Error = func(*scanner.Scanner, string) {}
	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		if !fn(tok, offset+s.Position.Offset, offset+s.Pos().Offset) {
			return
		}
	}
}

// valueSpan finds the string assigned by the option starting at offset.
// Adjacent strings are concatenated into one span. With aggregate set the
// value is the "doc" entry of a { ... } literal.
func (w *protoWalker) valueSpan(offset int, aggregate bool) (start, end int, ok bool) {
	start = -1
	assigned := false
	depth := 0
	key := ""
	w.scan(offset, func(tok rune, s, e int) bool {
		str := tok == scanner.String || tok == scanner.Char
		switch {
		case start >= 0:
			if str {
				end = e
				return true
			}
			return false
		case !assigned:
			assigned = tok == '='
			return true
		case !aggregate:
			if str {
				start, end = s, e
				return true
			}
			return false
		}

		switch {
		case tok == '{':
			depth++
		case tok == '}':
			depth--
			return depth > 0
		case depth != 1:
		case tok == scanner.Ident:
			key = w.src[s:e]
		case tok == ':':
		case str && key == "doc":
			start, end = s, e
		default:
			key = ""
		}
		return true
	})
	return start, end, start >= 0
}

// literalText decodes a string literal. raw is its source span, used for
// single quoted strings whose whitespace the parser does not keep.
func literalText(lit proto.Literal, raw string) string {
	if lit.QuoteRune == '\'' {
		return unquoteProto(raw)
	}
	return unquoteProto(`"` + lit.Source + `"`)
}

func indentOf(src string, offset int) string {
	lineStart := strings.LastIndexByte(src[:offset], '\n') + 1
	end := lineStart
	for end < len(src) && (src[end] == ' ' || src[end] == '\t') {
		end++
	}
	return src[lineStart:end]
}

func unquoteProto(s string) string {
	if strings.HasPrefix(s, "'") {
		s = `"` + strings.ReplaceAll(strings.Trim(s, "'"), `"`, `\"`) + `"`
	}
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return strings.Trim(s, `"'`)
}
