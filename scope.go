package simpl

import (
	"fmt"
	"reflect"
	"sync"
)

// Scope (a translation scope) is the set of classes known to one
// conversation. It resolves root tags to classes and backs scope= polymorphic
// fields. A scope sees the classes of the scopes it inherits; its own classes
// win on tag conflicts.
type Scope struct {
	name     string
	reg      *Registry
	inherits []*Scope

	mu      sync.RWMutex
	classes []*ClassDescriptor
	byTag   map[string]*ClassDescriptor
	byID    map[uint32]*ClassDescriptor
	byType  map[reflect.Type]*ClassDescriptor
	aliases map[*ClassDescriptor][]string
}

// NewScope describes types in r and registers the scope under name. An empty
// name makes an anonymous scope that scope= fields cannot refer to.
func (r *Registry) NewScope(name string, inherits []*Scope, types ...any) (*Scope, error) {
	s := &Scope{
		name:     name,
		reg:      r,
		inherits: inherits,
		byTag:    map[string]*ClassDescriptor{},
		byID:     map[uint32]*ClassDescriptor{},
		byType:   map[reflect.Type]*ClassDescriptor{},
		aliases:  map[*ClassDescriptor][]string{},
	}
	if err := s.Add(types...); err != nil {
		return nil, err
	}
	r.registerScope(s)
	return s, nil
}

// NewScope creates a scope in the default registry.
func NewScope(name string, inherits []*Scope, types ...any) (*Scope, error) {
	return Default().NewScope(name, inherits, types...)
}

func (s *Scope) Name() string        { return s.name }
func (s *Scope) Registry() *Registry { return s.reg }
func (s *Scope) Inherits() []*Scope  { return s.inherits }

// Add describes and adds classes, given as zero values, pointers or
// reflect.Types. Polymorphic fields snapshot a scope when they first resolve
// against it, so classes should be added before the first translation.
func (s *Scope) Add(types ...any) error {
	for _, v := range types {
		t := classType(v)
		if t == nil {
			continue
		}
		cd, err := s.reg.Describe(t)
		if err != nil {
			return err
		}
		s.AddClass(cd)
	}
	return nil
}

// AddClass adds an already described class.
func (s *Scope) AddClass(cd *ClassDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byType[cd.typ]; dup {
		return
	}
	s.classes = append(s.classes, cd)
	s.byType[cd.typ] = cd
	for _, tag := range cd.tags() {
		s.bind(tag, cd)
	}
}

func (s *Scope) bind(tag string, cd *ClassDescriptor) {
	if prev, taken := s.byTag[tag]; taken && prev != cd {
		s.reg.log.Warn("simpl: tag already bound in scope", "scope", s.name, "tag", tag, "kept", prev.typ.String(), "dropped", cd.typ.String())
		return
	}
	s.byTag[tag] = cd
	s.byID[TLVID(tag)] = cd
}

// Alias makes the class bound to tag readable under extra tags within this
// scope.
func (s *Scope) Alias(tag string, others ...string) error {
	cd := s.ClassByTag(tag)
	if cd == nil {
		return fmt.Errorf("simpl: scope %q has no class tagged %q", s.name, tag)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range others {
		s.bind(o, cd)
		s.aliases[cd] = append(s.aliases[cd], o)
	}
	return nil
}

func (s *Scope) aliasesFor(cd *ClassDescriptor) []string {
	s.mu.RLock()
	out := append([]string(nil), s.aliases[cd]...)
	s.mu.RUnlock()
	for _, in := range s.inherits {
		out = append(out, in.aliasesFor(cd)...)
	}
	return out
}

// ClassByTag resolves a tag (or alias) to a class.
func (s *Scope) ClassByTag(tag string) *ClassDescriptor {
	s.mu.RLock()
	cd := s.byTag[tag]
	s.mu.RUnlock()
	if cd != nil {
		return cd
	}
	for _, in := range s.inherits {
		if cd := in.ClassByTag(tag); cd != nil {
			return cd
		}
	}
	return nil
}

// ClassByTLVID resolves a TLV tag id to a class.
func (s *Scope) ClassByTLVID(id uint32) *ClassDescriptor {
	s.mu.RLock()
	cd := s.byID[id]
	s.mu.RUnlock()
	if cd != nil {
		return cd
	}
	for _, in := range s.inherits {
		if cd := in.ClassByTLVID(id); cd != nil {
			return cd
		}
	}
	return nil
}

// ClassByType finds the class of t (pointers are dereferenced).
func (s *Scope) ClassByType(t reflect.Type) *ClassDescriptor {
	t = indirect(t)
	s.mu.RLock()
	cd := s.byType[t]
	s.mu.RUnlock()
	if cd != nil {
		return cd
	}
	for _, in := range s.inherits {
		if cd := in.ClassByType(t); cd != nil {
			return cd
		}
	}
	return nil
}

// Classes lists the scope's classes followed by inherited ones, without
// duplicates.
func (s *Scope) Classes() []*ClassDescriptor {
	seen := map[*ClassDescriptor]bool{}
	var out []*ClassDescriptor
	s.collect(seen, &out)
	return out
}

func (s *Scope) collect(seen map[*ClassDescriptor]bool, out *[]*ClassDescriptor) {
	s.mu.RLock()
	own := append([]*ClassDescriptor(nil), s.classes...)
	s.mu.RUnlock()
	for _, cd := range own {
		if !seen[cd] {
			seen[cd] = true
			*out = append(*out, cd)
		}
	}
	for _, in := range s.inherits {
		in.collect(seen, out)
	}
}

// ResolvePending runs the deferred polymorphism resolution of every class in
// the scope and of every class those reach, returning how many fields are
// still unresolved.
func (s *Scope) ResolvePending() int {
	left := 0
	seen := map[*ClassDescriptor]bool{}
	var walk func(cd *ClassDescriptor)
	walk = func(cd *ClassDescriptor) {
		if cd == nil || seen[cd] {
			return
		}
		seen[cd] = true
		left += cd.ResolvePending()
		for _, fd := range cd.elementFields {
			walk(fd.elem)
			if fd.poly != nil && fd.poly.resolve() {
				for _, c := range fd.poly.list {
					walk(c)
				}
			}
		}
	}
	for _, cd := range s.Classes() {
		walk(cd)
	}
	return left
}
