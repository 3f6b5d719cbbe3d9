package simpl

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/reoring/simpl/internal/wire"
)

// ClassDescriptor is the cached description of one struct type: its wire tag,
// its fields in declaration order (inherited fields first) and the tables
// used to match incoming elements to fields. It is immutable once published
// by a Registry, except for polymorphic tables completing lazily.
type ClassDescriptor struct {
	typ       reflect.Type
	tag       string
	otherTags []string
	super     *ClassDescriptor
	generic   bool
	building  bool

	fields        []*FieldDescriptor
	elementFields []*FieldDescriptor
	textField     *FieldDescriptor

	byName map[string]*FieldDescriptor
	byTag  map[string]*FieldDescriptor
	byID   map[uint32]*FieldDescriptor
	// groups maps the field tag of an unwrapped collection to its wrapper,
	// which is how JSON arrays of such a field arrive.
	groups     map[string]*FieldDescriptor
	groupIDs   map[uint32]*FieldDescriptor
	polyFields []*FieldDescriptor

	pendingMu sync.Mutex
	pending   []*FieldDescriptor

	diags Issues
}

func newClassDescriptor(t reflect.Type) *ClassDescriptor {
	return &ClassDescriptor{
		typ:      t,
		building: true,
		byName:   map[string]*FieldDescriptor{},
		byTag:    map[string]*FieldDescriptor{},
		byID:     map[uint32]*FieldDescriptor{},
		groups:   map[string]*FieldDescriptor{},
		groupIDs: map[uint32]*FieldDescriptor{},
	}
}

func (cd *ClassDescriptor) Type() reflect.Type         { return cd.typ }
func (cd *ClassDescriptor) Tag() string                { return cd.tag }
func (cd *ClassDescriptor) TLVID() uint32              { return TLVID(cd.tag) }
func (cd *ClassDescriptor) OtherTags() []string        { return cd.otherTags }
func (cd *ClassDescriptor) Super() *ClassDescriptor    { return cd.super }
func (cd *ClassDescriptor) Fields() []*FieldDescriptor { return cd.fields }

// ElementFields lists the composite, collection and map fields, which are
// the edges followed by graph analysis.
func (cd *ClassDescriptor) ElementFields() []*FieldDescriptor { return cd.elementFields }

// TextField is the field carried as the element's text content, if any.
func (cd *ClassDescriptor) TextField() *FieldDescriptor { return cd.textField }

// IsGeneric reports whether the type is an instantiation of a generic type.
func (cd *ClassDescriptor) IsGeneric() bool { return cd.generic }

// Field returns the descriptor of the Go field name.
func (cd *ClassDescriptor) Field(name string) *FieldDescriptor { return cd.byName[name] }

// FieldByTag returns the descriptor registered under a wire tag.
func (cd *ClassDescriptor) FieldByTag(tag string) *FieldDescriptor {
	if fd := cd.byTag[tag]; fd != nil {
		return fd
	}
	return cd.groups[tag]
}

// Diagnostics lists the problems absorbed while describing the type.
func (cd *ClassDescriptor) Diagnostics() Issues { return cd.diags }

// ResolvePending retries scope resolution of polymorphic fields and returns
// how many remain unresolved.
func (cd *ClassDescriptor) ResolvePending() int {
	cd.pendingMu.Lock()
	defer cd.pendingMu.Unlock()
	left := cd.pending[:0]
	for _, fd := range cd.pending {
		if !fd.poly.resolve() {
			left = append(left, fd)
		}
	}
	cd.pending = left
	return len(left)
}

func (cd *ClassDescriptor) tags() []string {
	return append([]string{cd.tag}, cd.otherTags...)
}

func (cd *ClassDescriptor) String() string { return cd.tag }

func (cd *ClassDescriptor) diag(code, hint string, params map[string]any) {
	cd.diags = append(cd.diags, newIssue(code, "/"+cd.tag, hint, nil, params))
}

// match finds the field an incoming child element belongs to. For
// polymorphic fields dispatched by item tag, cls is the chosen class.
func (cd *ClassDescriptor) match(n *wire.Node) (fd *FieldDescriptor, cls *ClassDescriptor) {
	if n.Name != "" {
		fd = cd.byTag[n.Name]
	} else {
		fd = cd.byID[n.TagID()]
	}
	if fd != nil {
		return fd, nil
	}
	for _, pf := range cd.polyFields {
		if c := pf.poly.classFor(n); c != nil {
			return pf, c
		}
	}
	if n.Name != "" {
		return cd.groups[n.Name], nil
	}
	return cd.groupIDs[n.TagID()], nil
}

// add appends fd, registering the tags it is read under.
func (cd *ClassDescriptor) add(fd *FieldDescriptor) error {
	if prev := cd.byName[fd.name]; prev != nil {
		return &ConfigError{Type: cd.typ, Field: fd.name, Msg: fmt.Sprintf("field declared by both %v and %v", prev.declaringType(), fd.declaringType())}
	}
	cd.byName[fd.name] = fd
	cd.fields = append(cd.fields, fd)
	if fd.Ignored() {
		return nil
	}
	if fd.isElement() {
		cd.elementFields = append(cd.elementFields, fd)
	}
	if fd.poly != nil && !fd.poly.explicit {
		cd.pending = append(cd.pending, fd)
	}
	readTags := append([]string{fd.tag}, fd.otherTags...)
	switch {
	case fd.kind == Scalar && fd.hint == HintText:
		if cd.textField != nil {
			return &ConfigError{Type: cd.typ, Field: fd.name, Msg: "second text field after " + cd.textField.name}
		}
		cd.textField = fd
		return nil
	case fd.kind == Scalar, fd.kind == CompositeElement && fd.poly == nil:
		return cd.register(fd, readTags)
	case fd.kind == CompositeElement:
		if fd.wrapped {
			return cd.register(fd.wrapper, readTags)
		}
		cd.polyFields = append(cd.polyFields, fd)
		return nil
	case fd.wrapped:
		return cd.register(fd.wrapper, readTags)
	case fd.poly != nil:
		cd.polyFields = append(cd.polyFields, fd)
	default:
		if err := cd.register(fd, []string{fd.itemTag}); err != nil {
			return err
		}
	}
	for _, tag := range readTags {
		if _, taken := cd.byTag[tag]; taken {
			continue
		}
		cd.groups[tag] = fd.wrapper
		cd.groupIDs[TLVID(tag)] = fd.wrapper
	}
	return nil
}

func (cd *ClassDescriptor) register(fd *FieldDescriptor, tags []string) error {
	for _, tag := range tags {
		if prev := cd.byTag[tag]; prev != nil {
			return &ConfigError{Type: cd.typ, Field: fd.name, Msg: fmt.Sprintf("tag %q already used by field %s", tag, prev.name)}
		}
		id := TLVID(tag)
		if prev := cd.byID[id]; prev != nil {
			return &ConfigError{Type: cd.typ, Field: fd.name, Msg: fmt.Sprintf("tag %q collides with the tlv id of field %s", tag, prev.name)}
		}
		cd.byTag[tag] = fd
		cd.byID[id] = fd
		delete(cd.groups, tag)
		delete(cd.groupIDs, id)
	}
	return nil
}

func (fd *FieldDescriptor) declaringType() reflect.Type {
	for fd.clonedFrom != nil {
		fd = fd.clonedFrom
	}
	return fd.declaring.typ
}

// builder describes a type and everything it reaches under the registry's
// build lock. Types stay private to the builder until the outermost
// Describe publishes them together.
type builder struct {
	r     *Registry
	built map[reflect.Type]*ClassDescriptor
	order []*ClassDescriptor
}

func (b *builder) describe(t reflect.Type) (*ClassDescriptor, error) {
	if cd := b.r.published(t); cd != nil {
		return cd, nil
	}
	if cd, ok := b.built[t]; ok {
		return cd, nil
	}
	if t.Kind() != reflect.Struct {
		return nil, &ConfigError{Type: t, Msg: "only struct types can be described"}
	}
	cd := newClassDescriptor(t)
	b.built[t] = cd
	if err := b.build(cd); err != nil {
		delete(b.built, t)
		return nil, err
	}
	cd.building = false
	b.order = append(b.order, cd)
	return cd, nil
}

func (b *builder) build(cd *ClassDescriptor) error {
	t := cd.typ
	cfg := typeConfigOf(t)
	cd.tag = cfg.Tag
	if cd.tag == "" {
		cd.tag = TagName(t.Name())
	}
	if cd.tag == "" {
		return &ConfigError{Type: t, Msg: "anonymous struct needs a tag from SimplConfig"}
	}
	cd.otherTags = cfg.OtherTags
	cd.generic = strings.Contains(t.Name(), "[")

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		raw, tagged := sf.Tag.Lookup("simpl")
		if sf.Anonymous && !tagged && cd.super == nil {
			if st := indirect(sf.Type); st.Kind() == reflect.Struct {
				if err := b.inherit(cd, sf, st); err != nil {
					return err
				}
				continue
			}
		}
		fc, err := parseFieldTag(raw)
		if err != nil {
			cd.diag(CodeIgnoredField, sf.Name+": "+err.Error(), map[string]any{"field": sf.Name})
			continue
		}
		if over, ok := cfg.Fields[sf.Name]; ok {
			fc = fc.merge(over)
		}
		if fc.Shape == "" || fc.Shape == "-" {
			continue
		}
		if !sf.IsExported() {
			cd.diag(CodeIgnoredField, sf.Name+": unexported", map[string]any{"field": sf.Name})
			continue
		}
		if err := cd.add(b.field(cd, sf, fc)); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) inherit(cd *ClassDescriptor, sf reflect.StructField, st reflect.Type) error {
	sup, err := b.describe(st)
	if err != nil {
		return &ConfigError{Type: cd.typ, Field: sf.Name, Msg: "supertype: " + err.Error()}
	}
	if sup.building {
		return &ConfigError{Type: cd.typ, Field: sf.Name, Msg: "supertype embeds its own subtype"}
	}
	cd.super = sup
	for _, f := range sup.fields {
		if err := cd.add(f.clone(cd, sf.Index[0])); err != nil {
			return err
		}
	}
	return nil
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func (b *builder) field(cd *ClassDescriptor, sf reflect.StructField, fc FieldConfig) *FieldDescriptor {
	fd := &FieldDescriptor{
		declaring: cd,
		name:      sf.Name,
		tag:       fc.Name,
		itemTag:   fc.ItemTag,
		otherTags: fc.OtherTags,
		hint:      fc.Hint,
		format:    fc.Format,
		typ:       sf.Type,
		index:     append([]int(nil), sf.Index...),
		key:       fc.Key,
		generic:   cd.generic,
		binding:   sf.Type,
	}
	if fd.tag == "" {
		fd.tag = TagName(sf.Name)
	}
	fd.get, fd.set = accessors(fd.index)
	switch fc.Shape {
	case ShapeScalar:
		b.scalarField(fd)
	case ShapeComposite:
		b.compositeField(fd, fc)
	case ShapeCollection:
		b.collectionField(fd, fc)
	case ShapeMap:
		b.mapField(fd, fc)
	}
	if fd.isCollection() || fd.poly != nil && fd.wrapped {
		fd.wrapper = newWrapper(fd)
	}
	return fd
}

func (fd *FieldDescriptor) ignore(kind FieldKind, code, reason string) {
	fd.kind = kind
	fd.declaring.diag(code, fd.name+": "+reason, map[string]any{"field": fd.name, "tag": fd.tag})
}

func (b *builder) scalarField(fd *FieldDescriptor) {
	sc, ok := b.r.scalars.Lookup(fd.typ)
	if !ok {
		fd.ignore(IgnoredAttribute, CodeUnregisteredScalar, fd.typ.String())
		return
	}
	fd.kind, fd.scalar = Scalar, sc
	if fd.hint == "" {
		fd.hint = HintAttr
	}
}

func (b *builder) compositeField(fd *FieldDescriptor, fc FieldConfig) {
	if fd.typ.Kind() == reflect.Interface {
		if b.polymorph(fd, fc, fd.typ) {
			fd.kind, fd.wrapped = CompositeElement, fc.Wrap
		}
		return
	}
	st := indirect(fd.typ)
	if st.Kind() != reflect.Struct {
		fd.ignore(IgnoredElement, CodeIgnoredField, "composite of non-struct type "+fd.typ.String())
		return
	}
	elem, err := b.describe(st)
	if err != nil {
		fd.ignore(IgnoredElement, CodeConfigError, err.Error())
		return
	}
	fd.kind, fd.elem, fd.binding = CompositeElement, elem, st
}

func (b *builder) collectionField(fd *FieldDescriptor, fc FieldConfig) {
	if fd.typ.Kind() != reflect.Slice {
		fd.ignore(IgnoredElement, CodeIgnoredField, "collection must be a slice, got "+fd.typ.String())
		return
	}
	et := fd.typ.Elem()
	fd.itemType, fd.binding, fd.wrapped = et, et, !fc.NoWrap
	if sc, ok := b.r.scalars.Lookup(et); ok {
		if fd.itemTag == "" {
			fd.ignore(IgnoredElement, CodeIgnoredField, "scalar collection without tag=")
			return
		}
		fd.kind, fd.scalar = CollectionScalar, sc
		return
	}
	if et.Kind() == reflect.Interface {
		if b.polymorph(fd, fc, et) {
			fd.kind = CollectionElement
		}
		return
	}
	b.elementItems(fd, et, CollectionElement)
}

func (b *builder) mapField(fd *FieldDescriptor, fc FieldConfig) {
	if fd.typ.Kind() != reflect.Map {
		fd.ignore(IgnoredElement, CodeIgnoredField, "map must be a Go map, got "+fd.typ.String())
		return
	}
	vt := fd.typ.Elem()
	fd.itemType, fd.keyType, fd.binding, fd.wrapped = vt, fd.typ.Key(), vt, !fc.NoWrap
	if vt.Kind() == reflect.Interface {
		if b.polymorph(fd, fc, vt) {
			fd.kind = MapElement
		}
		return
	}
	if !b.elementItems(fd, vt, MapElement) {
		return
	}
	st := indirect(vt)
	if fd.key == "" {
		if !st.Implements(keyedType) && !reflect.PointerTo(st).Implements(keyedType) {
			fd.ignore(IgnoredElement, CodeIgnoredField, "map items need key= or a SimplKey method")
		}
		return
	}
	if kf, ok := st.FieldByName(fd.key); !ok || !kf.IsExported() {
		fd.ignore(IgnoredElement, CodeIgnoredField, "map key field "+fd.key+" not found on "+st.String())
	}
}

// elementItems classifies a non-polymorphic collection or map of composites.
func (b *builder) elementItems(fd *FieldDescriptor, et reflect.Type, kind FieldKind) bool {
	st := indirect(et)
	if st.Kind() != reflect.Struct {
		fd.ignore(IgnoredElement, CodeIgnoredField, "items must be composite, got "+et.String())
		return false
	}
	if fd.itemTag == "" {
		fd.ignore(IgnoredElement, CodeIgnoredField, "collection of composites without tag=")
		return false
	}
	elem, err := b.describe(st)
	if err != nil {
		fd.ignore(IgnoredElement, CodeConfigError, err.Error())
		return false
	}
	fd.kind, fd.elem, fd.binding = kind, elem, st
	return true
}

// polymorph sets up the candidate table of an interface-typed field. Explicit
// class lists are resolved now; scope references wait for the scope.
func (b *builder) polymorph(fd *FieldDescriptor, fc FieldConfig, iface reflect.Type) bool {
	if len(fc.Classes) == 0 && fc.Scope == "" {
		fd.ignore(IgnoredElement, CodeIgnoredField, "interface field without classes or scope=")
		return false
	}
	p := newPolymorphism(b.r, iface, fc.Scope)
	if len(fc.Classes) > 0 {
		for _, c := range fc.Classes {
			ct := classType(c)
			if ct == nil {
				continue
			}
			ccd, err := b.describe(ct)
			if err != nil {
				fd.declaring.diag(CodeConfigError, fd.name+": "+err.Error(), map[string]any{"field": fd.name})
				continue
			}
			if !p.accepts(ccd) {
				fd.declaring.diag(CodeIgnoredField, fd.name+": "+ct.String()+" does not implement "+iface.String(), map[string]any{"field": fd.name})
				continue
			}
			p.add(ccd, nil)
		}
		p.explicit, p.resolved = true, true
	}
	fd.poly = p
	return true
}
