package simpl

import (
	"encoding/base64"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"
)

func registerBuiltins(r *ScalarRegistry) {
	r.registerKind(reflect.String, stringScalar{})
	r.registerKind(reflect.Bool, boolScalar{})
	for _, k := range []reflect.Kind{reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64} {
		r.registerKind(k, intScalar{kind: k})
	}
	for _, k := range []reflect.Kind{reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr} {
		r.registerKind(k, uintScalar{kind: k})
	}
	r.registerKind(reflect.Float32, floatScalar{bits: 32})
	r.registerKind(reflect.Float64, floatScalar{bits: 64})

	r.byType[reflect.TypeFor[[]byte]()] = bytesScalar{}
	r.byType[reflect.TypeFor[time.Time]()] = timeScalar{}
	r.byType[reflect.TypeFor[time.Duration]()] = durationScalar{}
	r.byType[reflect.TypeFor[*url.URL]()] = uriScalar{}
	r.byType[reflect.TypeFor[reflect.Type]()] = typeRefScalar{}
}

type stringScalar struct{}

func (stringScalar) Name() string { return "string" }
func (stringScalar) Parse(s string, _ []string, _ *TranslationContext) (reflect.Value, bool) {
	return reflect.ValueOf(s), true
}
func (stringScalar) Serialize(v reflect.Value, _ []string, _ *TranslationContext) string {
	return v.String()
}
func (stringScalar) IsDefault(v reflect.Value) bool { return v.Len() == 0 }
func (stringScalar) NeedsEscaping() bool            { return true }

type boolScalar struct{}

func (boolScalar) Name() string { return "bool" }
func (boolScalar) Parse(s string, _ []string, _ *TranslationContext) (reflect.Value, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return reflect.ValueOf(true), true
	case "false", "no", "0":
		return reflect.ValueOf(false), true
	}
	return reflect.Value{}, false
}
func (boolScalar) Serialize(v reflect.Value, _ []string, _ *TranslationContext) string {
	return strconv.FormatBool(v.Bool())
}
func (boolScalar) IsDefault(v reflect.Value) bool { return !v.Bool() }
func (boolScalar) NeedsEscaping() bool            { return false }

var kindTypes = map[reflect.Kind]reflect.Type{
	reflect.Int:     reflect.TypeFor[int](),
	reflect.Int8:    reflect.TypeFor[int8](),
	reflect.Int16:   reflect.TypeFor[int16](),
	reflect.Int32:   reflect.TypeFor[int32](),
	reflect.Int64:   reflect.TypeFor[int64](),
	reflect.Uint:    reflect.TypeFor[uint](),
	reflect.Uint8:   reflect.TypeFor[uint8](),
	reflect.Uint16:  reflect.TypeFor[uint16](),
	reflect.Uint32:  reflect.TypeFor[uint32](),
	reflect.Uint64:  reflect.TypeFor[uint64](),
	reflect.Uintptr: reflect.TypeFor[uintptr](),
}

type intScalar struct{ kind reflect.Kind }

func (c intScalar) Name() string { return c.kind.String() }
func (c intScalar) Parse(s string, _ []string, _ *TranslationContext) (reflect.Value, bool) {
	t := kindTypes[c.kind]
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, t.Bits())
	if err != nil {
		return reflect.Value{}, false
	}
	return reflect.ValueOf(n).Convert(t), true
}
func (c intScalar) Serialize(v reflect.Value, _ []string, _ *TranslationContext) string {
	return strconv.FormatInt(v.Int(), 10)
}
func (c intScalar) IsDefault(v reflect.Value) bool { return v.Int() == 0 }
func (c intScalar) NeedsEscaping() bool            { return false }

type uintScalar struct{ kind reflect.Kind }

func (c uintScalar) Name() string { return c.kind.String() }
func (c uintScalar) Parse(s string, _ []string, _ *TranslationContext) (reflect.Value, bool) {
	t := kindTypes[c.kind]
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, t.Bits())
	if err != nil {
		return reflect.Value{}, false
	}
	return reflect.ValueOf(n).Convert(t), true
}
func (c uintScalar) Serialize(v reflect.Value, _ []string, _ *TranslationContext) string {
	return strconv.FormatUint(v.Uint(), 10)
}
func (c uintScalar) IsDefault(v reflect.Value) bool { return v.Uint() == 0 }
func (c uintScalar) NeedsEscaping() bool            { return false }

type floatScalar struct{ bits int }

func (c floatScalar) Name() string { return "float" + strconv.Itoa(c.bits) }
func (c floatScalar) Parse(s string, _ []string, _ *TranslationContext) (reflect.Value, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), c.bits)
	if err != nil {
		return reflect.Value{}, false
	}
	if c.bits == 32 {
		return reflect.ValueOf(float32(f)), true
	}
	return reflect.ValueOf(f), true
}
func (c floatScalar) Serialize(v reflect.Value, _ []string, _ *TranslationContext) string {
	return strconv.FormatFloat(v.Float(), 'g', -1, c.bits)
}
func (c floatScalar) IsDefault(v reflect.Value) bool { return v.Float() == 0 }
func (c floatScalar) NeedsEscaping() bool            { return false }

// bytesScalar renders binary blobs as standard base64.
type bytesScalar struct{}

func (bytesScalar) Name() string { return "bytes" }
func (bytesScalar) Parse(s string, _ []string, _ *TranslationContext) (reflect.Value, bool) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return reflect.Value{}, false
	}
	return reflect.ValueOf(b), true
}
func (bytesScalar) Serialize(v reflect.Value, _ []string, _ *TranslationContext) string {
	return base64.StdEncoding.EncodeToString(v.Bytes())
}
func (bytesScalar) IsDefault(v reflect.Value) bool { return v.Len() == 0 }
func (bytesScalar) NeedsEscaping() bool            { return false }

// timeScalar writes canonical UTC RFC3339 with trimmed fractional seconds
// and accepts RFC3339 with or without fractions. A format hint replaces the
// layout on both sides.
type timeScalar struct{}

func (timeScalar) Name() string { return "time" }
func (timeScalar) Parse(s string, format []string, _ *TranslationContext) (reflect.Value, bool) {
	s = strings.TrimSpace(s)
	layouts := format
	if len(layouts) == 0 {
		layouts = []string{time.RFC3339Nano, time.RFC3339}
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return reflect.ValueOf(t), true
		}
	}
	return reflect.Value{}, false
}
func (timeScalar) Serialize(v reflect.Value, format []string, _ *TranslationContext) string {
	t := v.Interface().(time.Time)
	if len(format) > 0 {
		return t.Format(format[0])
	}
	return t.UTC().Format(time.RFC3339Nano)
}
func (timeScalar) IsDefault(v reflect.Value) bool { return v.Interface().(time.Time).IsZero() }
func (timeScalar) NeedsEscaping() bool            { return false }

type durationScalar struct{}

func (durationScalar) Name() string { return "duration" }
func (durationScalar) Parse(s string, _ []string, _ *TranslationContext) (reflect.Value, bool) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return reflect.Value{}, false
	}
	return reflect.ValueOf(d), true
}
func (durationScalar) Serialize(v reflect.Value, _ []string, _ *TranslationContext) string {
	return time.Duration(v.Int()).String()
}
func (durationScalar) IsDefault(v reflect.Value) bool { return v.Int() == 0 }
func (durationScalar) NeedsEscaping() bool            { return false }

// uriScalar resolves relative references against the context base URI and
// renders values under that base relative to it.
type uriScalar struct{}

func (uriScalar) Name() string { return "uri" }
func (uriScalar) Parse(s string, _ []string, tc *TranslationContext) (reflect.Value, bool) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return reflect.Value{}, false
	}
	if tc != nil && tc.BaseURI != nil {
		u = tc.BaseURI.ResolveReference(u)
	}
	return reflect.ValueOf(u), true
}
func (uriScalar) Serialize(v reflect.Value, _ []string, tc *TranslationContext) string {
	u, _ := v.Interface().(*url.URL)
	if u == nil {
		return ""
	}
	s := u.String()
	if tc == nil || tc.BaseURI == nil {
		return s
	}
	base := tc.BaseURI.String()
	if !strings.HasSuffix(base, "/") || !strings.HasPrefix(s, base) {
		return s
	}
	rel := s[len(base):]
	// a leading segment with a colon would read back as a scheme
	if i := strings.IndexAny(rel, ":/?#"); i >= 0 && rel[i] == ':' {
		return s
	}
	return rel
}
func (uriScalar) IsDefault(v reflect.Value) bool { return v.IsNil() }
func (uriScalar) NeedsEscaping() bool            { return true }

// typeRefScalar carries a reflect.Type as the tag of its class in the
// context's scope.
type typeRefScalar struct{}

func (typeRefScalar) Name() string { return "type" }
func (typeRefScalar) Parse(s string, _ []string, tc *TranslationContext) (reflect.Value, bool) {
	if tc == nil || tc.scope == nil {
		return reflect.Value{}, false
	}
	cd := tc.scope.ClassByTag(strings.TrimSpace(s))
	if cd == nil {
		return reflect.Value{}, false
	}
	t := cd.Type()
	return reflect.ValueOf(&t).Elem(), true
}
func (typeRefScalar) Serialize(v reflect.Value, _ []string, tc *TranslationContext) string {
	t, _ := v.Interface().(reflect.Type)
	if t == nil {
		return ""
	}
	if tc != nil && tc.scope != nil {
		if cd := tc.scope.ClassByType(t); cd != nil {
			return cd.Tag()
		}
	}
	return TagName(t.Name())
}
func (typeRefScalar) IsDefault(v reflect.Value) bool { return v.IsNil() }
func (typeRefScalar) NeedsEscaping() bool            { return false }
