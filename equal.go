package simpl

import (
	"reflect"
)

// Equal reports whether a and b are the same object graph: equal serialized
// fields, equally shaped collections and the same sharing. Two references
// that point to one object in a must point to one object in b. Ignored
// fields are not compared.
func (r *Registry) Equal(a, b any) bool {
	e := equaler{r: r, fwd: map[identity]identity{}, back: map[identity]identity{}}
	return e.value(reflect.ValueOf(a), reflect.ValueOf(b))
}

// Equal compares a and b using the default registry.
func Equal(a, b any) bool { return Default().Equal(a, b) }

type equaler struct {
	r         *Registry
	fwd, back map[identity]identity
}

func (e *equaler) value(a, b reflect.Value) bool {
	if a.IsValid() && b.IsValid() && a.Type() == b.Type() {
		if sc, ok := e.r.scalars.Lookup(a.Type()); ok {
			return sc.Serialize(a, nil, nil) == sc.Serialize(b, nil, nil)
		}
	}
	for a.IsValid() && a.Kind() == reflect.Interface && !a.IsNil() {
		a = a.Elem()
	}
	for b.IsValid() && b.Kind() == reflect.Interface && !b.IsNil() {
		b = b.Elem()
	}
	if !a.IsValid() || !b.IsValid() || isNil(a) && a.Kind() != reflect.Slice || isNil(b) && b.Kind() != reflect.Slice {
		return absent(a) && absent(b)
	}
	if a.Type() != b.Type() {
		return false
	}
	switch a.Kind() {
	case reflect.Pointer:
		ia, _ := identityOf(a)
		ib, _ := identityOf(b)
		if seen, ok := e.fwd[ia]; ok {
			return seen == ib
		}
		if seen, ok := e.back[ib]; ok {
			return seen == ia
		}
		e.fwd[ia], e.back[ib] = ib, ia
		return e.value(a.Elem(), b.Elem())
	case reflect.Struct:
		cd, err := e.r.Describe(a.Type())
		if err != nil {
			return reflect.DeepEqual(a.Interface(), b.Interface())
		}
		for _, fd := range cd.fields {
			if fd.Ignored() {
				continue
			}
			fa, oka := fd.get(a)
			fb, okb := fd.get(b)
			if oka != okb {
				return false
			}
			if oka && !e.value(fa, fb) {
				return false
			}
		}
		return true
	case reflect.Slice, reflect.Array:
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !e.value(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Map:
		if a.Len() != b.Len() {
			return false
		}
		for _, k := range sortedKeys(a) {
			bv := b.MapIndex(k)
			if !bv.IsValid() || !e.value(a.MapIndex(k), bv) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a.Interface(), b.Interface())
}

// absent treats nil and invalid values, and empty slices, as no value.
func absent(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Map {
		return v.Len() == 0
	}
	return isNil(v)
}
