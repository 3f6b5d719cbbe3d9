package simpl

import (
	"bytes"
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/reoring/simpl/internal/wire"
)

// Marshal writes the graph rooted at root in format. Objects reachable along
// more than one path are written once with an id and referenced afterwards.
func (s *Scope) Marshal(root any, format Format, opts ...MarshalOpt) ([]byte, error) {
	var opt MarshalOpt
	if len(opts) > 0 {
		opt = opts[len(opts)-1]
	}
	rv := reflect.ValueOf(root)
	if !rv.IsValid() || rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, singleIssue(CodeConfigError, "nil root", nil)
	}
	cd := s.ClassByType(rv.Type())
	if cd == nil {
		var err error
		if cd, err = s.reg.Describe(rv.Type()); err != nil {
			return nil, singleIssue(CodeConfigError, rv.Type().String(), err)
		}
	}
	tc := opt.Context
	if tc == nil {
		tc = &TranslationContext{}
	}
	tc.reset(s)
	if opt.BaseURI != nil {
		tc.BaseURI = opt.BaseURI
	}

	m := marshaller{tc: tc}
	m.analyze(rv, cd)
	node := m.element(rv, cd, cd.tag)

	var buf bytes.Buffer
	var err error
	switch format {
	case FormatXML:
		wire.EncodeXML(&buf, node, wire.XMLOptions{DeclareNamespace: tc.IsGraph(), Indent: opt.Indent})
	case FormatJSON:
		err = wire.EncodeJSON(&buf, node, opt.Indent)
	case FormatTLV:
		err = wire.EncodeTLV(&buf, node)
	default:
		return nil, singleIssue(CodeConfigError, "cannot marshal format "+format.String(), nil)
	}
	if err != nil {
		return nil, singleIssue(CodeParseError, err.Error(), err)
	}
	return buf.Bytes(), nil
}

// Marshal writes root using scope.
func Marshal(root any, scope *Scope, format Format, opts ...MarshalOpt) ([]byte, error) {
	if scope == nil {
		return nil, singleIssue(CodeConfigError, "nil scope", nil)
	}
	return scope.Marshal(root, format, opts...)
}

type marshaller struct {
	tc *TranslationContext
}

// classOf unwraps an item and finds its class; polymorphic fields look the
// dynamic type up in their candidate table.
func (m *marshaller) classOf(fd *FieldDescriptor, v reflect.Value, report bool) (reflect.Value, *ClassDescriptor) {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, nil
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return reflect.Value{}, nil
	}
	if fd.poly == nil {
		return v, fd.elem
	}
	cd := fd.poly.classForType(v.Type())
	if cd == nil && report {
		m.tc.warn(CodeUnknownTag, fd.tag+": no candidate for "+v.Type().String(), nil, map[string]any{"tag": fd.tag})
	}
	return v, cd
}

// each calls fn for the items of a collection or map field, maps in key
// order.
func each(fd *FieldDescriptor, v reflect.Value, fn func(item reflect.Value)) {
	switch fd.kind {
	case CompositeElement:
		fn(v)
	case CollectionScalar, CollectionElement:
		for i := 0; i < v.Len(); i++ {
			fn(v.Index(i))
		}
	case MapElement:
		for _, k := range sortedKeys(v) {
			fn(v.MapIndex(k))
		}
	}
}

func sortedKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		switch {
		case a.CanInt():
			return cmp.Compare(a.Int(), b.Int())
		case a.CanUint():
			return cmp.Compare(a.Uint(), b.Uint())
		case a.CanFloat():
			return cmp.Compare(a.Float(), b.Float())
		case a.Kind() == reflect.String:
			return strings.Compare(a.String(), b.String())
		}
		return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
	})
	return keys
}

// analyze is pass one: a depth-first walk keyed by reference identity that
// marks every object met twice as needing an id. It never descends into an
// object twice, so cycles terminate.
func (m *marshaller) analyze(v reflect.Value, cd *ClassDescriptor) {
	if !m.tc.visit(v) {
		return
	}
	holder := v
	if holder.Kind() == reflect.Pointer {
		holder = holder.Elem()
	}
	for _, fd := range cd.elementFields {
		fv, ok := fd.read(m.tc, holder)
		if !ok {
			continue
		}
		each(fd, fv, func(item reflect.Value) {
			if iv, icd := m.classOf(fd, item, false); icd != nil {
				m.analyze(iv, icd)
			}
		})
	}
}

// element is pass two for one object.
func (m *marshaller) element(v reflect.Value, cd *ClassDescriptor, name string) *wire.Node {
	n := &wire.Node{Name: name, Composite: true}
	id, ref := m.tc.marker(v)
	if ref {
		n.SimplRef = id
		return n
	}
	n.SimplID = id
	m.tc.push(name)
	defer m.tc.pop()

	holder := v
	if holder.Kind() == reflect.Pointer {
		holder = holder.Elem()
	}
	for _, fd := range cd.fields {
		if fd.Ignored() {
			continue
		}
		fv, ok := fd.read(m.tc, holder)
		if !ok {
			continue
		}
		switch fd.kind {
		case Scalar:
			m.scalar(n, fd, fv)
		case CompositeElement:
			m.composite(n, fd, fv)
		case CollectionScalar:
			m.scalarItems(n, fd, fv)
		case CollectionElement, MapElement:
			m.items(n, fd, fv)
		}
	}
	return n
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// scalar places a value by its hint. Defaults are elided from attribute
// position only; nil pointers have no value to write anywhere.
func (m *marshaller) scalar(n *wire.Node, fd *FieldDescriptor, v reflect.Value) {
	if isNil(v) && v.Kind() != reflect.Slice {
		return
	}
	sc := fd.scalar
	switch fd.hint {
	case HintAttr:
		if sc.IsDefault(v) {
			return
		}
		n.Attrs = append(n.Attrs, wire.Attr{Name: fd.tag, Value: sc.Serialize(v, fd.format, m.tc), Escape: sc.NeedsEscaping()})
	case HintText:
		if text := sc.Serialize(v, fd.format, m.tc); text != "" {
			n.Text, n.HasText, n.Escape = text, true, sc.NeedsEscaping()
		}
	default:
		n.Children = append(n.Children, &wire.Node{
			Name:    fd.tag,
			Text:    sc.Serialize(v, fd.format, m.tc),
			HasText: true,
			Escape:  sc.NeedsEscaping(),
			CDATA:   fd.hint == HintCDATA,
		})
	}
}

func (m *marshaller) composite(n *wire.Node, fd *FieldDescriptor, v reflect.Value) {
	item, cd := m.classOf(fd, v, true)
	if cd == nil {
		return
	}
	name := fd.tag
	if fd.poly != nil {
		name = cd.tag
	}
	child := m.element(item, cd, name)
	if fd.wrapper != nil {
		n.Children = append(n.Children, &wire.Node{Name: fd.tag, Composite: true, Children: []*wire.Node{child}})
		return
	}
	n.Children = append(n.Children, child)
}

// container returns where a collection's items go and the group they form.
func (m *marshaller) container(n *wire.Node, fd *FieldDescriptor) (*wire.Node, string) {
	if !fd.wrapped {
		return n, fd.tag
	}
	w := &wire.Node{Name: fd.tag, Composite: true}
	n.Children = append(n.Children, w)
	if fd.poly != nil {
		return w, fd.tag
	}
	return w, fd.itemTag
}

func (m *marshaller) scalarItems(n *wire.Node, fd *FieldDescriptor, v reflect.Value) {
	if v.Len() == 0 {
		return
	}
	parent, group := m.container(n, fd)
	sc := fd.scalar
	for i := 0; i < v.Len(); i++ {
		iv := v.Index(i)
		if isNil(iv) && iv.Kind() != reflect.Slice {
			continue
		}
		parent.Children = append(parent.Children, &wire.Node{
			Name:    fd.itemTag,
			Text:    sc.Serialize(iv, fd.format, m.tc),
			HasText: true,
			Escape:  sc.NeedsEscaping(),
			List:    true,
			Group:   group,
		})
	}
}

func (m *marshaller) items(n *wire.Node, fd *FieldDescriptor, v reflect.Value) {
	if v.Len() == 0 {
		return
	}
	if fd.wrapped {
		if ids, ok := m.allRefs(fd, v); ok {
			n.Children = append(n.Children, &wire.Node{Name: fd.tag, Composite: true, OrderedIDRefs: strings.Join(ids, wire.IDDelimiter)})
			return
		}
	}
	parent, group := m.container(n, fd)
	each(fd, v, func(raw reflect.Value) {
		item, cd := m.classOf(fd, raw, true)
		if cd == nil {
			return
		}
		name := fd.itemTag
		if fd.poly != nil {
			name = cd.tag
		}
		child := m.element(item, cd, name)
		child.List, child.Group = true, group
		parent.Children = append(parent.Children, child)
	})
}

// allRefs reports whether every item was already written with an id, in
// which case the collection can be written as an ordered id list.
func (m *marshaller) allRefs(fd *FieldDescriptor, v reflect.Value) ([]string, bool) {
	var ids []string
	all := true
	each(fd, v, func(raw reflect.Value) {
		if !all {
			return
		}
		item, cd := m.classOf(fd, raw, false)
		if cd == nil {
			all = false
			return
		}
		id, ok := m.tc.assignedID(item)
		if !ok {
			all = false
			return
		}
		ids = append(ids, id)
	})
	return ids, all && len(ids) > 0
}
