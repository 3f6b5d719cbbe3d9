package simpl

import (
	"fmt"
	"reflect"
)

// FieldKind is the wire shape of a field, decided once when the field is
// described.
type FieldKind int

const (
	Scalar FieldKind = iota
	CompositeElement
	CollectionScalar
	CollectionElement
	MapElement
	Wrapper // container element of a wrapped collection, map or polymorphic composite
	IgnoredAttribute
	IgnoredElement
	Pseudo // stands for the root element, which has no holder
)

func (k FieldKind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case CompositeElement:
		return "composite"
	case CollectionScalar:
		return "collection_scalar"
	case CollectionElement:
		return "collection_element"
	case MapElement:
		return "map"
	case Wrapper:
		return "wrapper"
	case IgnoredAttribute:
		return "ignored_attribute"
	case IgnoredElement:
		return "ignored_element"
	default:
		return "pseudo"
	}
}

// FieldDescriptor describes one serializable field of a ClassDescriptor.
type FieldDescriptor struct {
	declaring *ClassDescriptor
	name      string // Go field name
	tag       string
	itemTag   string
	otherTags []string
	kind      FieldKind
	hint      string
	wrapped   bool
	format    []string

	typ      reflect.Type // declared field type
	itemType reflect.Type // slice element or map value type
	keyType  reflect.Type
	index    []int

	scalar ScalarType
	elem   *ClassDescriptor
	poly   *polymorphism
	key    string // Go field name of the map key on the item type

	// wrapper is the Wrapper-kind descriptor registered under tag for wrapped
	// and grouped fields; inner points back from the wrapper.
	wrapper *FieldDescriptor
	inner   *FieldDescriptor

	generic    bool
	binding    reflect.Type
	clonedFrom *FieldDescriptor

	get func(holder reflect.Value) (reflect.Value, bool)
	set func(holder, v reflect.Value)
}

func (fd *FieldDescriptor) Name() string                 { return fd.name }
func (fd *FieldDescriptor) Tag() string                  { return fd.tag }
func (fd *FieldDescriptor) ItemTag() string              { return fd.itemTag }
func (fd *FieldDescriptor) Kind() FieldKind              { return fd.kind }
func (fd *FieldDescriptor) Hint() string                 { return fd.hint }
func (fd *FieldDescriptor) Wrapped() bool                { return fd.wrapped }
func (fd *FieldDescriptor) Type() reflect.Type           { return fd.typ }
func (fd *FieldDescriptor) Declaring() *ClassDescriptor  { return fd.declaring }
func (fd *FieldDescriptor) Element() *ClassDescriptor    { return fd.elem }
func (fd *FieldDescriptor) ScalarType() ScalarType       { return fd.scalar }
func (fd *FieldDescriptor) IsPolymorphic() bool          { return fd.poly != nil }
func (fd *FieldDescriptor) MapKeyField() string          { return fd.key }
func (fd *FieldDescriptor) ClonedFrom() *FieldDescriptor { return fd.clonedFrom }

// Generic reports whether the field was declared on a generic instantiation.
func (fd *FieldDescriptor) Generic() bool { return fd.generic }

// Binding is the concrete type the field's value (or item) binds to in the
// declaring instantiation.
func (fd *FieldDescriptor) Binding() reflect.Type { return fd.binding }

// Polymorphs resolves and returns the candidate classes of a polymorphic
// field; ok is false while its scope cannot be found.
func (fd *FieldDescriptor) Polymorphs() (classes []*ClassDescriptor, ok bool) {
	if fd.poly == nil {
		return nil, false
	}
	if !fd.poly.resolve() {
		return nil, false
	}
	return fd.poly.list, true
}

// Ignored reports whether the field is neither read nor written.
func (fd *FieldDescriptor) Ignored() bool {
	return fd.kind == IgnoredAttribute || fd.kind == IgnoredElement
}

func (fd *FieldDescriptor) isElement() bool {
	switch fd.kind {
	case CompositeElement, CollectionElement, MapElement:
		return true
	}
	return false
}

func (fd *FieldDescriptor) isCollection() bool {
	switch fd.kind {
	case CollectionScalar, CollectionElement, MapElement:
		return true
	}
	return false
}

// accessors builds the get/set pair for a field reached through index from
// its holder struct. Setting through a nil embedded pointer allocates it.
func accessors(index []int) (func(reflect.Value) (reflect.Value, bool), func(reflect.Value, reflect.Value)) {
	locate := func(holder reflect.Value, alloc bool) (reflect.Value, bool) {
		v := holder
		for i, x := range index {
			if i > 0 && v.Kind() == reflect.Pointer {
				if v.IsNil() {
					if !alloc {
						return reflect.Value{}, false
					}
					v.Set(reflect.New(v.Type().Elem()))
				}
				v = v.Elem()
			}
			v = v.Field(x)
		}
		return v, true
	}
	get := func(holder reflect.Value) (reflect.Value, bool) { return locate(holder, false) }
	set := func(holder, val reflect.Value) {
		f, _ := locate(holder, true)
		f.Set(val)
	}
	return get, set
}

func protect(op func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	op()
	return nil
}

// guard runs a field access, retrying once; a second failure is reported
// and absorbed.
func (fd *FieldDescriptor) guard(tc *TranslationContext, op func()) bool {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = protect(op); err == nil {
			return true
		}
	}
	tc.warn(CodeFieldAccess, fd.declaring.typ.String()+"."+fd.name, err, map[string]any{"tag": fd.tag})
	return false
}

func (fd *FieldDescriptor) read(tc *TranslationContext, holder reflect.Value) (v reflect.Value, ok bool) {
	fd.guard(tc, func() { v, ok = fd.get(holder) })
	return v, ok
}

func (fd *FieldDescriptor) write(tc *TranslationContext, holder, v reflect.Value) bool {
	return fd.guard(tc, func() { fd.set(holder, v) })
}

// clone specializes an inherited descriptor for declaring: the scalar codec,
// element descriptor and polymorphism table are shared, while the access path
// and declaring class are rebound.
func (fd *FieldDescriptor) clone(declaring *ClassDescriptor, prefix int) *FieldDescriptor {
	index := make([]int, 0, len(fd.index)+1)
	index = append(index, prefix)
	index = append(index, fd.index...)
	c := &FieldDescriptor{
		declaring:  declaring,
		name:       fd.name,
		tag:        fd.tag,
		itemTag:    fd.itemTag,
		otherTags:  fd.otherTags,
		kind:       fd.kind,
		hint:       fd.hint,
		wrapped:    fd.wrapped,
		format:     fd.format,
		typ:        fd.typ,
		itemType:   fd.itemType,
		keyType:    fd.keyType,
		index:      index,
		scalar:     fd.scalar,
		elem:       fd.elem,
		poly:       fd.poly,
		key:        fd.key,
		generic:    fd.generic,
		binding:    fd.binding,
		clonedFrom: fd,
	}
	c.get, c.set = accessors(index)
	if fd.wrapper != nil {
		c.wrapper = newWrapper(c)
	}
	return c
}

func newWrapper(fd *FieldDescriptor) *FieldDescriptor {
	return &FieldDescriptor{
		declaring: fd.declaring,
		name:      fd.name,
		tag:       fd.tag,
		kind:      Wrapper,
		typ:       fd.typ,
		inner:     fd,
	}
}

// rootField is the pseudo descriptor a root element is decoded through.
func rootField(cd *ClassDescriptor) *FieldDescriptor {
	return &FieldDescriptor{declaring: cd, tag: cd.tag, kind: Pseudo, typ: reflect.PointerTo(cd.typ), elem: cd}
}
