package wire

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// XMLOptions controls XML emission.
type XMLOptions struct {
	// DeclareNamespace adds the simpl namespace declaration to the root.
	DeclareNamespace bool
	Indent           string
}

// EncodeXML writes root as an XML element.
func EncodeXML(buf *bytes.Buffer, root *Node, opt XMLOptions) {
	w := xmlWriter{buf: buf, indent: opt.Indent}
	w.element(root, 0, opt.DeclareNamespace)
}

type xmlWriter struct {
	buf    *bytes.Buffer
	indent string
}

func (w *xmlWriter) newline(depth int) {
	if w.indent == "" {
		return
	}
	w.buf.WriteByte('\n')
	for i := 0; i < depth; i++ {
		w.buf.WriteString(w.indent)
	}
}

func (w *xmlWriter) element(n *Node, depth int, declareNS bool) {
	w.buf.WriteByte('<')
	w.buf.WriteString(n.Name)
	if declareNS {
		w.attr("xmlns:"+NamespacePrefix, NamespaceURI, true)
	}
	if n.SimplID != "" {
		w.attr(XMLID, n.SimplID, true)
	}
	if n.SimplRef != "" {
		w.attr(XMLRef, n.SimplRef, true)
	}
	if n.OrderedIDRefs != "" {
		w.attr(XMLOrderedIDRefs, n.OrderedIDRefs, true)
	}
	for _, a := range n.Attrs {
		w.attr(a.Name, a.Value, a.Escape)
	}
	if !n.HasText && len(n.Children) == 0 {
		w.buf.WriteString("/>")
		return
	}
	w.buf.WriteByte('>')
	if n.HasText {
		w.text(n.Text, n.Escape, n.CDATA)
	}
	// Mixed content is not indented; the indentation would become text.
	for _, c := range n.Children {
		if !n.HasText {
			w.newline(depth + 1)
		}
		w.element(c, depth+1, false)
	}
	if len(n.Children) > 0 && !n.HasText {
		w.newline(depth)
	}
	w.buf.WriteString("</")
	w.buf.WriteString(n.Name)
	w.buf.WriteByte('>')
}

func (w *xmlWriter) attr(name, value string, escape bool) {
	w.buf.WriteByte(' ')
	w.buf.WriteString(name)
	w.buf.WriteString(`="`)
	if escape {
		_ = xml.EscapeText(w.buf, []byte(value))
	} else {
		w.buf.WriteString(value)
	}
	w.buf.WriteByte('"')
}

func (w *xmlWriter) text(s string, escape, cdata bool) {
	switch {
	case cdata && cdataSafe(s):
		w.buf.WriteString("<![CDATA[")
		w.buf.WriteString(strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>"))
		w.buf.WriteString("]]>")
	case escape || cdata:
		_ = xml.EscapeText(w.buf, []byte(s))
	default:
		w.buf.WriteString(s)
	}
}

// cdataSafe reports whether s survives a CDATA section unchanged: valid
// UTF-8 made only of XML characters, with no carriage return (parsers fold
// line ends inside CDATA).
func cdataSafe(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		switch {
		case r == '\r':
			return false
		case r == '\t' || r == '\n':
		case r < 0x20, r > 0xD7FF && r < 0xE000, r == 0xFFFE, r == 0xFFFF:
			return false
		}
	}
	return true
}

// DecodeXML parses one XML document into a tree. Namespace declarations are
// dropped; simpl markers are recognised whether or not the namespace was
// declared.
func DecodeXML(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	var (
		stack []*Node
		texts []*xmlText
		root  *Node
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if root != nil && len(stack) == 0 {
				return nil, fmt.Errorf("%w: multiple root elements", ErrMalformed)
			}
			n := &Node{Name: t.Name.Local}
			for _, a := range t.Attr {
				readXMLAttr(n, a)
			}
			if len(stack) > 0 {
				texts[len(texts)-1].flush()
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else {
				root = n
			}
			stack = append(stack, n)
			texts = append(texts, &xmlText{})
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unbalanced end element %q", ErrMalformed, t.Name.Local)
			}
			n := stack[len(stack)-1]
			tb := texts[len(texts)-1]
			tb.flush()
			txt := tb.all.String()
			if len(n.Children) == 0 {
				n.Text, n.HasText = txt, true
			} else if trimmed := strings.TrimSpace(txt); trimmed != "" {
				n.Text, n.HasText = trimmed, true
				n.RawText = tb.kept.String()
			}
			stack = stack[:len(stack)-1]
			texts = texts[:len(texts)-1]
		case xml.CharData:
			if len(texts) > 0 {
				texts[len(texts)-1].all.Write(t)
				texts[len(texts)-1].run.Write(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformed)
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: unclosed element %q", ErrMalformed, stack[len(stack)-1].Name)
	}
	return root, nil
}

// xmlText collects the character data of one open element.
type xmlText struct {
	all  strings.Builder
	kept strings.Builder
	run  strings.Builder
}

// flush ends a run of character data at a child boundary. Whitespace-only
// runs are indentation and are not kept.
func (t *xmlText) flush() {
	if r := t.run.String(); strings.TrimSpace(r) != "" {
		t.kept.WriteString(r)
	}
	t.run.Reset()
}

func readXMLAttr(n *Node, a xml.Attr) {
	if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
		return
	}
	if a.Name.Space == NamespaceURI || a.Name.Space == NamespacePrefix {
		switch a.Name.Local {
		case "id":
			n.SimplID = a.Value
			return
		case "ref":
			n.SimplRef = a.Value
			return
		case "ordered_id_refs":
			n.OrderedIDRefs = a.Value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
}
