package simpl

import (
	"encoding"
	"reflect"
	"sync"
)

// ScalarType is a stateless codec for one leaf value type.
//
// Parse never fails loudly: it reports ok=false and the owning field keeps
// its default. Serialize must be a pure function of the value; the context is
// consulted only by reference-like types (URIs, type references).
type ScalarType interface {
	Name() string
	Parse(s string, format []string, tc *TranslationContext) (v reflect.Value, ok bool)
	Serialize(v reflect.Value, format []string, tc *TranslationContext) string
	// IsDefault reports whether v is the declared default, which is elided
	// from attribute position.
	IsDefault(v reflect.Value) bool
	// NeedsEscaping marks reference-like values whose text may contain markup.
	NeedsEscaping() bool
}

// ScalarRegistry maps native types to scalar codecs.
type ScalarRegistry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]ScalarType
	byKind map[reflect.Kind]ScalarType
}

var (
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// NewScalarRegistry returns a registry holding the built-in codecs.
func NewScalarRegistry() *ScalarRegistry {
	r := &ScalarRegistry{
		byType: map[reflect.Type]ScalarType{},
		byKind: map[reflect.Kind]ScalarType{},
	}
	registerBuiltins(r)
	return r
}

// Register binds codec to t, replacing any previous binding.
func (r *ScalarRegistry) Register(t reflect.Type, codec ScalarType) {
	r.mu.Lock()
	r.byType[t] = codec
	r.mu.Unlock()
}

func (r *ScalarRegistry) registerKind(k reflect.Kind, codec ScalarType) {
	r.byKind[k] = codec
}

// Lookup finds the codec for t: an exact registration first, then a pointer
// to a scalar, then the text codec for types implementing both
// encoding.TextMarshaler and encoding.TextUnmarshaler, then the codec for the
// underlying kind (so `type Level int` is a scalar).
func (r *ScalarRegistry) Lookup(t reflect.Type) (ScalarType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(t)
}

func (r *ScalarRegistry) lookup(t reflect.Type) (ScalarType, bool) {
	if c, ok := r.byType[t]; ok {
		return c, true
	}
	if t.Kind() == reflect.Pointer {
		if elem, ok := r.lookup(t.Elem()); ok {
			return pointerScalar{t: t, elem: elem}, true
		}
		return nil, false
	}
	if isTextType(t) {
		return textScalar{t: t}, true
	}
	if c, ok := r.byKind[t.Kind()]; ok {
		return c, true
	}
	return nil, false
}

func isTextType(t reflect.Type) bool {
	pt := reflect.PointerTo(t)
	return (t.Implements(textMarshalerType) || pt.Implements(textMarshalerType)) && pt.Implements(textUnmarshalerType)
}

// fitValue converts a parsed value to the slot's type when the codec works on
// the underlying kind.
func fitValue(v reflect.Value, t reflect.Type) (reflect.Value, bool) {
	if !v.IsValid() {
		return v, false
	}
	if v.Type() == t || v.Type().AssignableTo(t) {
		return v, true
	}
	if v.Type().ConvertibleTo(t) && v.Kind() == t.Kind() {
		return v.Convert(t), true
	}
	return reflect.Value{}, false
}

// pointerScalar adapts the codec of T to *T; nil is the default.
type pointerScalar struct {
	t    reflect.Type
	elem ScalarType
}

func (p pointerScalar) Name() string { return "*" + p.elem.Name() }

func (p pointerScalar) Parse(s string, format []string, tc *TranslationContext) (reflect.Value, bool) {
	v, ok := p.elem.Parse(s, format, tc)
	if !ok {
		return reflect.Value{}, false
	}
	v, ok = fitValue(v, p.t.Elem())
	if !ok {
		return reflect.Value{}, false
	}
	out := reflect.New(p.t.Elem())
	out.Elem().Set(v)
	return out, true
}

func (p pointerScalar) Serialize(v reflect.Value, format []string, tc *TranslationContext) string {
	if v.IsNil() {
		return ""
	}
	return p.elem.Serialize(v.Elem(), format, tc)
}

func (p pointerScalar) IsDefault(v reflect.Value) bool { return v.IsNil() }
func (p pointerScalar) NeedsEscaping() bool            { return p.elem.NeedsEscaping() }

// textScalar is the generic enumeration codec: any type that can render and
// parse itself as text.
type textScalar struct{ t reflect.Type }

func (c textScalar) Name() string { return c.t.String() }

func (c textScalar) Parse(s string, _ []string, _ *TranslationContext) (reflect.Value, bool) {
	p := reflect.New(c.t)
	if err := p.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
		return reflect.Value{}, false
	}
	return p.Elem(), true
}

func (c textScalar) Serialize(v reflect.Value, _ []string, _ *TranslationContext) string {
	p := reflect.New(c.t)
	p.Elem().Set(v)
	b, err := p.Interface().(encoding.TextMarshaler).MarshalText()
	if err != nil {
		return ""
	}
	return string(b)
}

func (c textScalar) IsDefault(v reflect.Value) bool { return v.IsZero() }
func (c textScalar) NeedsEscaping() bool            { return true }
