package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	j "github.com/goccy/go-json"

	eng "github.com/reoring/simpl/internal/engine"
)

// JSON layout: the document is an object with a single member named after the
// root tag. Elements are objects; scalars and leaves are strings; members of
// one sequence group become an array, and an item whose tag differs from its
// group name is wrapped as {"tag": item}.

// EncodeJSON writes root as a JSON document, re-indented when indent is set.
func EncodeJSON(buf *bytes.Buffer, root *Node, indent string) error {
	var body bytes.Buffer
	body.WriteByte('{')
	if err := writeJSONString(&body, root.Name, true); err != nil {
		return err
	}
	body.WriteByte(':')
	if err := writeJSONValue(&body, root); err != nil {
		return err
	}
	body.WriteByte('}')
	if indent == "" {
		buf.Write(body.Bytes())
		return nil
	}
	return j.Indent(buf, body.Bytes(), "", indent)
}

func writeJSONString(buf *bytes.Buffer, s string, escape bool) error {
	if !escape {
		buf.WriteByte('"')
		buf.WriteString(s)
		buf.WriteByte('"')
		return nil
	}
	enc := j.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates each value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

func writeJSONValue(buf *bytes.Buffer, n *Node) error {
	if n.Leaf() {
		return writeJSONString(buf, n.Text, n.Escape)
	}
	return writeJSONObject(buf, n)
}

func writeJSONObject(buf *bytes.Buffer, n *Node) error {
	buf.WriteByte('{')
	first := true
	member := func(key string) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err := writeJSONString(buf, key, true); err != nil {
			return err
		}
		buf.WriteByte(':')
		return nil
	}
	scalar := func(key, value string, escape bool) error {
		if err := member(key); err != nil {
			return err
		}
		return writeJSONString(buf, value, escape)
	}
	if n.SimplID != "" {
		if err := scalar(JSONID, n.SimplID, true); err != nil {
			return err
		}
	}
	if n.SimplRef != "" {
		if err := scalar(JSONRef, n.SimplRef, true); err != nil {
			return err
		}
	}
	if n.OrderedIDRefs != "" {
		if err := scalar(JSONOrderedIDRefs, n.OrderedIDRefs, true); err != nil {
			return err
		}
	}
	for _, a := range n.Attrs {
		if err := scalar(a.Name, a.Value, a.Escape); err != nil {
			return err
		}
	}
	if n.HasText {
		if err := scalar(JSONText, n.Text, n.Escape); err != nil {
			return err
		}
	}
	kids := n.Children
	for i := 0; i < len(kids); {
		c := kids[i]
		if !c.List {
			if err := member(c.Name); err != nil {
				return err
			}
			if err := writeJSONValue(buf, c); err != nil {
				return err
			}
			i++
			continue
		}
		group := groupName(c)
		if err := member(group); err != nil {
			return err
		}
		buf.WriteByte('[')
		for k := i; k < len(kids) && kids[k].List && groupName(kids[k]) == group; k++ {
			if k > i {
				buf.WriteByte(',')
			}
			if err := writeJSONItem(buf, kids[k], group); err != nil {
				return err
			}
			i = k + 1
		}
		buf.WriteByte(']')
	}
	buf.WriteByte('}')
	return nil
}

func writeJSONItem(buf *bytes.Buffer, n *Node, group string) error {
	if n.Name == group {
		return writeJSONValue(buf, n)
	}
	buf.WriteByte('{')
	if err := writeJSONString(buf, n.Name, true); err != nil {
		return err
	}
	buf.WriteByte(':')
	if err := writeJSONValue(buf, n); err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

func groupName(n *Node) string {
	if n.Group != "" {
		return n.Group
	}
	return n.Name
}

// DecodeJSON reads one document from src. Numbers and booleans become text;
// nulls are dropped.
func DecodeJSON(src eng.TokenSource) (*Node, error) {
	r := jsonReader{src: src}
	tok, err := r.next()
	if err != nil {
		return nil, err
	}
	if tok.Kind != eng.KindBeginObject {
		return nil, fmt.Errorf("%w: json document must be an object, got %s", ErrMalformed, tok.Kind)
	}
	key, err := r.next()
	if err != nil {
		return nil, err
	}
	if key.Kind != eng.KindKey {
		return nil, fmt.Errorf("%w: json document has no root member", ErrMalformed)
	}
	val, err := r.next()
	if err != nil {
		return nil, err
	}
	if val.Kind != eng.KindBeginObject {
		if s, ok := val.Scalar(); ok {
			return &Node{Name: key.String, Text: s, HasText: true, Escape: true}, r.end()
		}
		return nil, fmt.Errorf("%w: json root %q must be an object", ErrMalformed, key.String)
	}
	root := &Node{Name: key.String}
	if err := r.object(root); err != nil {
		return nil, err
	}
	return root, r.end()
}

type jsonReader struct {
	src eng.TokenSource
}

func (r *jsonReader) next() (eng.Token, error) {
	tok, err := r.src.NextToken()
	if err != nil {
		var ie eng.IssueError
		if errors.As(err, &ie) {
			return eng.Token{}, fmt.Errorf("%w: %w", ErrMalformed, ie)
		}
		if errors.Is(err, io.EOF) {
			return eng.Token{}, fmt.Errorf("%w: unexpected end of json input", ErrMalformed)
		}
		return eng.Token{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return tok, nil
}

// end consumes the closing brace of the document and checks for EOF.
func (r *jsonReader) end() error {
	tok, err := r.next()
	if err != nil {
		return err
	}
	if tok.Kind != eng.KindEndObject {
		return fmt.Errorf("%w: json document has more than one root member", ErrMalformed)
	}
	if _, err := r.src.NextToken(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after json document", ErrMalformed)
	}
	return nil
}

func (r *jsonReader) object(n *Node) error {
	for {
		tok, err := r.next()
		if err != nil {
			return err
		}
		switch tok.Kind {
		case eng.KindEndObject:
			return nil
		case eng.KindKey:
		default:
			return fmt.Errorf("%w: expected key, got %s", ErrMalformed, tok.Kind)
		}
		key := tok.String
		val, err := r.next()
		if err != nil {
			return err
		}
		switch key {
		case JSONID, JSONRef, JSONOrderedIDRefs, JSONText:
			s, ok := val.Scalar()
			if !ok {
				return fmt.Errorf("%w: %s must be a scalar", ErrMalformed, key)
			}
			switch key {
			case JSONID:
				n.SimplID = s
			case JSONRef:
				n.SimplRef = s
			case JSONOrderedIDRefs:
				n.OrderedIDRefs = s
			default:
				n.Text, n.HasText, n.Escape = s, true, true
			}
			continue
		}
		kids, err := r.value(key, val, false)
		if err != nil {
			return err
		}
		n.Children = append(n.Children, kids...)
	}
}

func (r *jsonReader) value(name string, tok eng.Token, inList bool) ([]*Node, error) {
	switch tok.Kind {
	case eng.KindBeginObject:
		n := &Node{Name: name, List: inList}
		if err := r.object(n); err != nil {
			return nil, err
		}
		return []*Node{n}, nil
	case eng.KindBeginArray:
		var out []*Node
		for {
			it, err := r.next()
			if err != nil {
				return nil, err
			}
			if it.Kind == eng.KindEndArray {
				return out, nil
			}
			kids, err := r.value(name, it, true)
			if err != nil {
				return nil, err
			}
			out = append(out, kids...)
		}
	case eng.KindNull:
		return nil, nil
	case eng.KindString, eng.KindNumber, eng.KindBool:
		s, _ := tok.Scalar()
		return []*Node{{Name: name, Text: s, HasText: true, Escape: true, List: inList}}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %s", ErrMalformed, tok.Kind)
	}
}
