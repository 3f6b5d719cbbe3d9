package simpl

import (
	"log/slog"
	"reflect"
	"slices"
	"sync"
)

// Registry owns the class descriptors, the scalar codecs and the named scopes
// of one type universe. Descriptors are built on first use and then shared by
// every translation; all methods are safe for concurrent use.
type Registry struct {
	log     *slog.Logger
	scalars *ScalarRegistry

	mu      sync.RWMutex
	classes map[reflect.Type]*ClassDescriptor
	buildMu sync.Mutex

	scopeMu sync.RWMutex
	scopes  map[string]*Scope
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOpt) *Registry {
	var opt RegistryOpt
	if len(opts) > 0 {
		opt = opts[len(opts)-1]
	}
	r := &Registry{
		log:     opt.Logger,
		scalars: opt.Scalars,
		classes: map[reflect.Type]*ClassDescriptor{},
		scopes:  map[string]*Scope{},
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.scalars == nil {
		r.scalars = NewScalarRegistry()
	}
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry { return NewRegistry() })

// Default returns the process-wide registry used by the package-level
// helpers.
func Default() *Registry { return defaultRegistry() }

func (r *Registry) Logger() *slog.Logger     { return r.log }
func (r *Registry) Scalars() *ScalarRegistry { return r.scalars }

func (r *Registry) published(t reflect.Type) *ClassDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classes[t]
}

// Describe returns the descriptor of a struct type (pointer types are
// dereferenced), building it and every type it reaches on first use.
// Concurrent first calls converge on one descriptor.
func (r *Registry) Describe(t reflect.Type) (*ClassDescriptor, error) {
	if t == nil {
		return nil, &ConfigError{Msg: "nil type"}
	}
	t = indirect(t)
	if cd := r.published(t); cd != nil {
		return cd, nil
	}
	r.buildMu.Lock()
	defer r.buildMu.Unlock()
	if cd := r.published(t); cd != nil {
		return cd, nil
	}
	b := &builder{r: r, built: map[reflect.Type]*ClassDescriptor{}}
	cd, err := b.describe(t)
	if err != nil {
		r.log.Warn("simpl: describe failed", "type", t.String(), "code", CodeConfigError, "err", err)
		return nil, err
	}
	r.mu.Lock()
	for _, c := range b.order {
		r.classes[c.typ] = c
	}
	r.mu.Unlock()
	for _, c := range b.order {
		for _, is := range c.diags {
			r.log.Warn("simpl: "+is.Message, "type", c.typ.String(), "code", is.Code, "detail", is.Hint)
		}
	}
	return cd, nil
}

// DescribeValue describes the dynamic type of v.
func (r *Registry) DescribeValue(v any) (*ClassDescriptor, error) {
	return r.Describe(reflect.TypeOf(v))
}

// Describe describes the dynamic type of v in the default registry.
func Describe(v any) (*ClassDescriptor, error) { return Default().DescribeValue(v) }

// Scope returns the named scope, or nil.
func (r *Registry) Scope(name string) *Scope {
	r.scopeMu.RLock()
	defer r.scopeMu.RUnlock()
	return r.scopes[name]
}

// Scopes returns the sorted names of the registered scopes.
func (r *Registry) Scopes() []string {
	r.scopeMu.RLock()
	defer r.scopeMu.RUnlock()
	out := make([]string, 0, len(r.scopes))
	for name := range r.scopes {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// registerScope publishes s under its name, replacing an earlier scope of
// the same name.
func (r *Registry) registerScope(s *Scope) {
	if s.name == "" {
		return
	}
	r.scopeMu.Lock()
	if _, dup := r.scopes[s.name]; dup {
		r.log.Debug("simpl: scope replaced", "scope", s.name)
	}
	r.scopes[s.name] = s
	r.scopeMu.Unlock()
}
