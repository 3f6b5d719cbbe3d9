package simpl

import (
	"log/slog"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// identity is a reference identity: the pointer's type and address. Value
// structs have no identity and are always written inline.
type identity struct {
	t reflect.Type
	p uintptr
}

func identityOf(v reflect.Value) (identity, bool) {
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return identity{}, false
	}
	return identity{t: v.Type(), p: v.Pointer()}, true
}

// locator finds the struct a decoded object's fields live in. Value structs
// held in slices move when the slice grows, so queued references keep the
// locator and resolve it when they are bound.
type locator func() reflect.Value

func fixed(v reflect.Value) locator { return func() reflect.Value { return v } }

// pendingRef is a reference whose target id had not been defined yet when
// it was read. index is the sequence position for collections, -1 otherwise.
type pendingRef struct {
	id     string
	holder locator
	fd     *FieldDescriptor
	index  int
	path   string
}

// TranslationContext is the state of one Marshal or Unmarshal call: graph
// analysis, id assignment, the id to object table and the queue of forward
// references. It is single-owner and not safe for concurrent use.
type TranslationContext struct {
	// BaseURI resolves relative URI scalars on read and relativizes them on
	// write.
	BaseURI *url.URL

	scope *Scope
	log   *slog.Logger

	visited map[identity]bool
	needsID map[identity]bool
	ids     map[identity]string
	nextID  int

	objects map[string]reflect.Value
	idOrder []string
	pending []pendingRef

	diags Issues
	path  []string
}

// NewTranslationContext creates a context bound to scope.
func NewTranslationContext(scope *Scope) *TranslationContext {
	tc := &TranslationContext{}
	tc.reset(scope)
	return tc
}

func (tc *TranslationContext) reset(scope *Scope) {
	tc.scope = scope
	tc.log = slog.Default()
	if scope != nil {
		tc.log = scope.reg.log
	}
	tc.visited = map[identity]bool{}
	tc.needsID = map[identity]bool{}
	tc.ids = map[identity]string{}
	tc.nextID = 0
	tc.objects = map[string]reflect.Value{}
	tc.idOrder = nil
	tc.pending = nil
	tc.diags = nil
	tc.path = tc.path[:0]
}

func (tc *TranslationContext) Scope() *Scope { return tc.scope }

// Diagnostics lists the problems absorbed during the call.
func (tc *TranslationContext) Diagnostics() Issues { return tc.diags }

// IsGraph reports whether the translated graph carried id markers.
func (tc *TranslationContext) IsGraph() bool { return len(tc.needsID) > 0 || len(tc.objects) > 0 }

// Lookup returns the object read under id.
func (tc *TranslationContext) Lookup(id string) (any, bool) {
	v, ok := tc.objects[id]
	if !ok {
		return nil, false
	}
	return v.Interface(), true
}

// IDs lists the ids read so far, in the order they were first defined.
func (tc *TranslationContext) IDs() []string { return tc.idOrder }

// Pending is the number of forward references not yet bound.
func (tc *TranslationContext) Pending() int { return len(tc.pending) }

func (tc *TranslationContext) push(tag string) { tc.path = append(tc.path, tag) }
func (tc *TranslationContext) pop()            { tc.path = tc.path[:len(tc.path)-1] }

func (tc *TranslationContext) pathString() string {
	if len(tc.path) == 0 {
		return "/"
	}
	return "/" + strings.Join(tc.path, "/")
}

// warn records an absorbed problem and logs it.
func (tc *TranslationContext) warn(code, hint string, cause error, params map[string]any) {
	if tc == nil {
		return
	}
	is := newIssue(code, tc.pathString(), hint, cause, params)
	tc.diags = append(tc.diags, is)
	attrs := []any{"code", code, "path", is.Path}
	if hint != "" {
		attrs = append(attrs, "detail", hint)
	}
	if cause != nil {
		attrs = append(attrs, "err", cause)
	}
	tc.log.Warn("simpl: "+is.Message, attrs...)
}

// ---- marshal side ----

// visit records a pass-one visit and reports whether it was the first.
// A repeat visit marks the object as needing an id.
func (tc *TranslationContext) visit(v reflect.Value) bool {
	key, ok := identityOf(v)
	if !ok {
		return true
	}
	if tc.visited[key] {
		tc.needsID[key] = true
		return false
	}
	tc.visited[key] = true
	return true
}

// marker decides how pass two writes v: with a fresh id, as a reference to
// an earlier id, or plainly.
func (tc *TranslationContext) marker(v reflect.Value) (id string, ref bool) {
	key, ok := identityOf(v)
	if !ok || !tc.needsID[key] {
		return "", false
	}
	if id, seen := tc.ids[key]; seen {
		return id, true
	}
	tc.nextID++
	id = strconv.Itoa(tc.nextID)
	tc.ids[key] = id
	return id, false
}

// assignedID returns the id already emitted for v.
func (tc *TranslationContext) assignedID(v reflect.Value) (string, bool) {
	key, ok := identityOf(v)
	if !ok {
		return "", false
	}
	id, seen := tc.ids[key]
	return id, seen
}

// ---- unmarshal side ----

// define registers obj under id before its children are read, so cycles
// back to it bind immediately. A duplicate keeps the first object.
func (tc *TranslationContext) define(id string, obj reflect.Value) {
	if _, dup := tc.objects[id]; dup {
		tc.warn(CodeDuplicateID, id, nil, map[string]any{"id": id})
		return
	}
	tc.objects[id] = obj
	tc.idOrder = append(tc.idOrder, id)
}

func (tc *TranslationContext) object(id string) (reflect.Value, bool) {
	v, ok := tc.objects[id]
	return v, ok
}

func (tc *TranslationContext) enqueue(p pendingRef) {
	p.path = tc.pathString()
	tc.pending = append(tc.pending, p)
}
