package simpl

import "reflect"

// PreDeserializer is called on a freshly allocated object before any of its
// fields are read.
type PreDeserializer interface {
	SimplPreDeserialize(tc *TranslationContext)
}

// PostDeserializer is called once an object's element has been fully read.
// Forward references inside it may still be pending.
type PostDeserializer interface {
	SimplPostDeserialize(tc *TranslationContext)
}

// Keyed supplies the map key of an item when the map field names no key=
// field.
type Keyed interface {
	SimplKey() any
}

var keyedType = reflect.TypeFor[Keyed]()
