package simpl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	eng "github.com/reoring/simpl/internal/engine"
	"github.com/reoring/simpl/internal/wire"
)

// Unmarshal reads one document and returns a pointer to the root object.
// Problems inside the document are absorbed and listed in the context's
// Diagnostics; only unparsable input, an unknown root and references to ids
// that never appear fail the call.
func (s *Scope) Unmarshal(data []byte, opts ...UnmarshalOpt) (any, error) {
	var opt UnmarshalOpt
	if len(opts) > 0 {
		opt = opts[len(opts)-1]
	}
	if opt.MaxBytes > 0 && int64(len(data)) > opt.MaxBytes {
		return nil, singleIssue(CodeParseError, fmt.Sprintf("payload of %d bytes exceeds max bytes %d", len(data), opt.MaxBytes), ErrParse)
	}
	tc := opt.Context
	if tc == nil {
		tc = &TranslationContext{}
	}
	tc.reset(s)
	if opt.BaseURI != nil {
		tc.BaseURI = opt.BaseURI
	}

	format := opt.Format
	if format == FormatAuto {
		format = Sniff(data)
	}
	root, err := parseDocument(data, format, opt, tc)
	if err != nil {
		return nil, parseIssues(err)
	}

	var cd *ClassDescriptor
	if root.Name != "" {
		cd = s.ClassByTag(root.Name)
	} else {
		cd = s.ClassByTLVID(root.TagID())
	}
	if cd == nil {
		tag := root.Name
		if tag == "" {
			tag = "#" + strconv.FormatUint(uint64(root.TagID()), 10)
		}
		return nil, AppendIssues(nil, newIssue(CodeUnknownRoot, "/", tag, ErrUnknownRoot, map[string]any{"tag": tag}))
	}

	d := &decoder{tc: tc, maxDepth: opt.MaxDepth}
	obj, err := d.root(root, cd)
	if err != nil {
		return nil, err
	}
	if dangling := d.drain(); len(dangling) > 0 {
		return nil, dangling
	}
	return obj.Interface(), nil
}

// Unmarshal reads data using scope.
func Unmarshal(data []byte, scope *Scope, opts ...UnmarshalOpt) (any, error) {
	if scope == nil {
		return nil, singleIssue(CodeConfigError, "nil scope", nil)
	}
	return scope.Unmarshal(data, opts...)
}

// UnmarshalAs reads data and asserts the root to T, which may be the root's
// pointer type or its struct type.
func UnmarshalAs[T any](data []byte, scope *Scope, opts ...UnmarshalOpt) (T, error) {
	var zero T
	v, err := Unmarshal(data, scope, opts...)
	if err != nil {
		return zero, err
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if t, ok := rv.Elem().Interface().(T); ok {
			return t, nil
		}
	}
	hint := fmt.Sprintf("root is %T, want %v", v, reflect.TypeFor[T]())
	return zero, AppendIssues(nil, newIssue(CodeUnknownRoot, "/", hint, ErrUnknownRoot, nil))
}

// Sniff guesses the format. Data that frames exactly one TLV element is TLV;
// otherwise the first non-space byte decides.
func Sniff(data []byte) Format {
	if len(data) >= 8 && uint64(binary.BigEndian.Uint32(data[4:8]))+8 == uint64(len(data)) {
		return FormatTLV
	}
	s := strings.TrimLeft(string(data[:min(len(data), 64)]), " \t\r\n\ufeff")
	switch {
	case strings.HasPrefix(s, "<"):
		return FormatXML
	case strings.HasPrefix(s, "{"):
		return FormatJSON
	}
	return FormatTLV
}

func parseDocument(data []byte, format Format, opt UnmarshalOpt, tc *TranslationContext) (*wire.Node, error) {
	switch format {
	case FormatXML:
		return wire.DecodeXML(data)
	case FormatJSON:
		eo := eng.EnforceOptions{MaxDepth: opt.MaxDepth}
		switch opt.OnDuplicateKey {
		case Warn:
			eo.OnDuplicate = eng.DupWarn
			eo.IssueSink = func(si eng.SimpleIssue) {
				tc.warn(CodeDuplicateKey, si.Path, nil, map[string]any{"tag": si.Path})
			}
		case Error:
			eo.OnDuplicate = eng.DupError
		}
		return wire.DecodeJSON(eng.WrapWithEnforcement(eng.NewBytes(data), eo))
	case FormatTLV:
		return wire.DecodeTLV(data)
	}
	return nil, fmt.Errorf("unknown format %v", format)
}

// parseIssues converts a decoding failure into Issues, keeping the code and
// path of enforcement errors.
func parseIssues(err error) Issues {
	cause := fmt.Errorf("%w: %w", ErrParse, err)
	var ie eng.IssueError
	if errors.As(err, &ie) {
		code := ie.Code
		if code != CodeDuplicateKey {
			code = CodeParseError
		}
		return AppendIssues(nil, newIssue(code, ie.Path, ie.Message, cause, nil))
	}
	return AppendIssues(nil, newIssue(CodeParseError, "/", err.Error(), cause, nil))
}

// decoder binds a neutral node tree to objects, following class descriptors.
type decoder struct {
	tc       *TranslationContext
	maxDepth int
	// rebind re-stores map items that were copied into their map before
	// their queued references were bound.
	rebind []func()
}

func (d *decoder) root(n *wire.Node, cd *ClassDescriptor) (reflect.Value, error) {
	fd := rootField(cd)
	if _, err := n.Kids(); err != nil {
		return reflect.Value{}, parseIssues(err)
	}
	if n.SimplRef != "" {
		return reflect.Value{}, AppendIssues(nil, newIssue(CodeDanglingReference, "/"+fd.tag, n.SimplRef, ErrDanglingReference, map[string]any{"id": n.SimplRef}))
	}
	return d.object(n, fd.elem, 1, nil)
}

func nodeTag(n *wire.Node) string {
	if n.Name != "" {
		return n.Name
	}
	return "#" + strconv.FormatUint(uint64(n.ID), 10)
}

// object fills an instance of cd from n. With a nil locator the instance is
// freshly allocated; otherwise it is the struct the locator finds, reset to
// zero. The instance is registered under its id before any child is read.
func (d *decoder) object(n *wire.Node, cd *ClassDescriptor, depth int, at locator) (reflect.Value, error) {
	if d.maxDepth > 0 && depth > d.maxDepth {
		return reflect.Value{}, AppendIssues(nil, newIssue(CodeParseError, d.tc.pathString(), "max depth exceeded", ErrParse, nil))
	}
	kids, err := n.Kids()
	if err != nil {
		return reflect.Value{}, parseIssues(err)
	}
	var obj reflect.Value
	if at == nil {
		obj = reflect.New(cd.typ)
		at = fixed(obj.Elem())
	} else {
		holder := at()
		holder.Set(reflect.Zero(cd.typ))
		obj = holder.Addr()
	}
	if n.SimplID != "" {
		d.tc.define(n.SimplID, obj)
	}
	if h, ok := obj.Interface().(PreDeserializer); ok {
		h.SimplPreDeserialize(d.tc)
	}
	name := n.Name
	if name == "" {
		name = cd.tag
	}
	d.tc.push(name)
	defer d.tc.pop()

	for _, a := range n.Attrs {
		fd := cd.byTag[a.Name]
		if fd == nil || fd.kind != Scalar {
			d.tc.warn(CodeUnknownTag, a.Name, nil, map[string]any{"tag": a.Name})
			continue
		}
		d.setScalar(at(), fd, a.Value)
	}
	if cd.textField != nil {
		if text := n.Content(); text != "" {
			d.setScalar(at(), cd.textField, text)
		}
	}
	for _, k := range kids {
		if err := d.child(k, at, cd, depth); err != nil {
			return reflect.Value{}, err
		}
	}
	if h, ok := at().Addr().Interface().(PostDeserializer); ok {
		h.SimplPostDeserialize(d.tc)
	}
	return obj, nil
}

func (d *decoder) child(k *wire.Node, at locator, cd *ClassDescriptor, depth int) error {
	fd, cls := cd.match(k)
	if fd == nil {
		d.unknown(k)
		return nil
	}
	switch fd.kind {
	case Scalar:
		d.setScalar(at(), fd, k.Value())
	case CollectionScalar:
		d.scalarItem(at(), fd, k)
	case CompositeElement, CollectionElement, MapElement:
		return d.single(k, at, fd, cls, depth)
	case Wrapper:
		return d.wrapper(k, at, fd.inner, depth)
	}
	return nil
}

func (d *decoder) setScalar(holder reflect.Value, fd *FieldDescriptor, s string) {
	v, ok := d.parseScalar(fd, s, fd.typ)
	if ok {
		fd.write(d.tc, holder, v)
	}
}

func (d *decoder) parseScalar(fd *FieldDescriptor, s string, t reflect.Type) (reflect.Value, bool) {
	pv, ok := fd.scalar.Parse(s, fd.format, d.tc)
	if ok {
		pv, ok = fitValue(pv, t)
	}
	if !ok {
		d.tc.warn(CodeInvalidValue, fd.tag+"="+strconv.Quote(s), nil, map[string]any{"tag": fd.tag})
	}
	return pv, ok
}

// scalarItem appends one item of a scalar collection; empty items are
// dropped.
func (d *decoder) scalarItem(holder reflect.Value, fd *FieldDescriptor, k *wire.Node) {
	s := k.Value()
	if s == "" {
		return
	}
	if v, ok := d.parseScalar(fd, s, fd.itemType); ok {
		d.appendTo(holder, fd, v)
	}
}

// dispatch picks the class of a collection item. A polymorphic item that
// arrives still wrapped in its field element is unwrapped.
func (d *decoder) dispatch(k *wire.Node, fd *FieldDescriptor) (*wire.Node, *ClassDescriptor, error) {
	if fd.poly == nil {
		if fd.kind == CompositeElement || hasTag(k, fd.itemTag) {
			return k, fd.elem, nil
		}
	} else {
		if c := fd.poly.classFor(k); c != nil {
			return k, c, nil
		}
		kids, err := k.Kids()
		if err != nil {
			return nil, nil, parseIssues(err)
		}
		if hasTag(k, fd.tag) && len(kids) == 1 && k.SimplID == "" && k.SimplRef == "" {
			return d.dispatch(kids[0], fd)
		}
	}
	d.unknown(k)
	return nil, nil, nil
}

func hasTag(n *wire.Node, tag string) bool {
	if n.Name != "" {
		return n.Name == tag
	}
	return n.ID == TLVID(tag)
}

func (d *decoder) unknown(n *wire.Node) {
	tag := nodeTag(n)
	d.tc.warn(CodeUnknownTag, tag, nil, map[string]any{"tag": tag})
}

// single reads one composite value, a collection item or a map item: a
// reference or a nested element.
func (d *decoder) single(k *wire.Node, at locator, fd *FieldDescriptor, cls *ClassDescriptor, depth int) error {
	if cls == nil {
		var err error
		if k, cls, err = d.dispatch(k, fd); cls == nil {
			return err
		}
	}
	if _, err := k.Kids(); err != nil {
		return parseIssues(err)
	}
	if k.SimplRef != "" {
		d.ref(k.SimplRef, at, fd)
		return nil
	}
	if slot := d.valueSlot(at, fd, cls); slot != nil {
		_, err := d.object(k, cls, depth+1, slot)
		return err
	}
	queued := d.tc.Pending()
	obj, err := d.object(k, cls, depth+1, nil)
	if err != nil {
		return err
	}
	d.bind(at(), fd, -1, obj)
	if fd.kind == MapElement && obj.Elem().Type() == fd.itemType && d.tc.Pending() > queued {
		d.rebind = append(d.rebind, func() { d.bind(at(), fd, -1, obj) })
	}
	return nil
}

// valueSlot returns a locator for the struct a value-typed composite or
// sequence item is decoded into, or nil when the slot holds pointers or
// interfaces. Sequence items are found by index so that references queued
// inside them survive the slice growing.
func (d *decoder) valueSlot(at locator, fd *FieldDescriptor, cls *ClassDescriptor) locator {
	switch {
	case fd.kind == CompositeElement && fd.typ == cls.typ:
		if !fd.write(d.tc, at(), reflect.Zero(fd.typ)) {
			return nil
		}
		return func() reflect.Value {
			v, _ := fd.get(at())
			return v
		}
	case fd.kind == CollectionElement && fd.itemType == cls.typ:
		i := d.appendTo(at(), fd, reflect.Zero(fd.itemType))
		if i < 0 {
			return nil
		}
		return func() reflect.Value {
			cur, _ := fd.get(at())
			return cur.Index(i)
		}
	}
	return nil
}

func (d *decoder) wrapper(k *wire.Node, at locator, fd *FieldDescriptor, depth int) error {
	kids, err := k.Kids()
	if err != nil {
		return parseIssues(err)
	}
	if k.OrderedIDRefs != "" {
		for _, id := range strings.Split(k.OrderedIDRefs, wire.IDDelimiter) {
			if id = strings.TrimSpace(id); id != "" {
				d.ref(id, at, fd)
			}
		}
	}
	d.tc.push(nodeTag(k))
	defer d.tc.pop()
	for _, kid := range kids {
		var err error
		switch fd.kind {
		case CollectionScalar:
			if !hasTag(kid, fd.itemTag) {
				d.unknown(kid)
				continue
			}
			d.scalarItem(at(), fd, kid)
		default:
			err = d.single(kid, at, fd, nil, depth+1)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ref binds a reference now when its target is known, or queues it. A queued
// collection item reserves its position with a zero value.
func (d *decoder) ref(id string, at locator, fd *FieldDescriptor) {
	if target, ok := d.tc.object(id); ok {
		d.bind(at(), fd, -1, target)
		return
	}
	index := -1
	if fd.kind == CollectionElement {
		index = d.appendTo(at(), fd, reflect.Zero(fd.itemType))
	}
	d.tc.enqueue(pendingRef{id: id, holder: at, fd: fd, index: index})
}

// drain binds queued references in the order they were read and reports
// those whose id never appeared.
func (d *decoder) drain() Issues {
	var out Issues
	for _, p := range d.tc.pending {
		target, ok := d.tc.object(p.id)
		if !ok {
			out = append(out, newIssue(CodeDanglingReference, p.path, p.id, ErrDanglingReference, map[string]any{"id": p.id}))
			continue
		}
		d.bind(p.holder(), p.fd, p.index, target)
	}
	d.tc.pending = nil
	for _, f := range d.rebind {
		f()
	}
	d.rebind = nil
	return out
}

// fitObject adapts a decoded *T to a slot of type t.
func fitObject(obj reflect.Value, t reflect.Type) (reflect.Value, bool) {
	if obj.Type().AssignableTo(t) {
		return obj, true
	}
	if obj.Kind() == reflect.Pointer && obj.Elem().Type().AssignableTo(t) {
		return obj.Elem(), true
	}
	return reflect.Value{}, false
}

// bind stores obj into fd's slot on holder. index is a reserved sequence
// position, or -1 to append.
func (d *decoder) bind(holder reflect.Value, fd *FieldDescriptor, index int, obj reflect.Value) {
	slot := fd.typ
	if fd.kind == CollectionElement || fd.kind == MapElement {
		slot = fd.itemType
	}
	v, ok := fitObject(obj, slot)
	if !ok {
		d.tc.warn(CodeInvalidValue, fmt.Sprintf("%s: %v does not fit %v", fd.tag, obj.Type(), slot), nil, map[string]any{"tag": fd.tag})
		return
	}
	switch fd.kind {
	case CollectionElement:
		if index < 0 {
			d.appendTo(holder, fd, v)
			return
		}
		fd.guard(d.tc, func() {
			cur, _ := fd.get(holder)
			cur.Index(index).Set(v)
		})
	case MapElement:
		key, ok := d.mapKey(fd, obj)
		if !ok {
			d.tc.warn(CodeInvalidValue, fd.tag+": item has no usable key", nil, map[string]any{"tag": fd.tag})
			return
		}
		fd.guard(d.tc, func() {
			m, ok := fd.get(holder)
			if !ok || m.IsNil() {
				m = reflect.MakeMap(fd.typ)
				fd.set(holder, m)
			}
			m.SetMapIndex(key, v)
		})
	default:
		fd.write(d.tc, holder, v)
	}
}

func (d *decoder) appendTo(holder reflect.Value, fd *FieldDescriptor, v reflect.Value) int {
	index := -1
	fd.guard(d.tc, func() {
		cur, ok := fd.get(holder)
		if !ok {
			cur = reflect.Zero(fd.typ)
		}
		index = cur.Len()
		fd.set(holder, reflect.Append(cur, v))
	})
	return index
}

// mapKey reads the key of a map item from its key= field or its SimplKey
// method.
func (d *decoder) mapKey(fd *FieldDescriptor, obj reflect.Value) (reflect.Value, bool) {
	var raw reflect.Value
	if fd.key != "" {
		if protect(func() { raw = obj.Elem().FieldByName(fd.key) }) != nil {
			return reflect.Value{}, false
		}
	} else if k, ok := obj.Interface().(Keyed); ok {
		raw = reflect.ValueOf(k.SimplKey())
	}
	if !raw.IsValid() {
		return reflect.Value{}, false
	}
	if raw.Type().AssignableTo(fd.keyType) {
		return raw, true
	}
	if raw.Type().ConvertibleTo(fd.keyType) && raw.Kind() == fd.keyType.Kind() {
		return raw.Convert(fd.keyType), true
	}
	return reflect.Value{}, false
}
