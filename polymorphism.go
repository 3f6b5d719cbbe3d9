package simpl

import (
	"reflect"
	"sync"

	"github.com/reoring/simpl/internal/wire"
)

// polymorphism is the tag to class table of a polymorphic field. Tables built
// from an explicit class list are complete at construction; tables naming a
// scope are filled the first time resolve finds that scope. The table is
// shared by every clone of the field.
type polymorphism struct {
	mu       sync.Mutex
	iface    reflect.Type
	scope    string
	reg      *Registry
	explicit bool
	resolved bool

	byTag  map[string]*ClassDescriptor
	byID   map[uint32]*ClassDescriptor
	byType map[reflect.Type]*ClassDescriptor
	list   []*ClassDescriptor
}

func newPolymorphism(reg *Registry, iface reflect.Type, scope string) *polymorphism {
	return &polymorphism{
		reg:    reg,
		iface:  iface,
		scope:  scope,
		byTag:  map[string]*ClassDescriptor{},
		byID:   map[uint32]*ClassDescriptor{},
		byType: map[reflect.Type]*ClassDescriptor{},
	}
}

// accepts reports whether instances of cd can be stored in the field.
func (p *polymorphism) accepts(cd *ClassDescriptor) bool {
	return cd.typ.Implements(p.iface) || reflect.PointerTo(cd.typ).Implements(p.iface)
}

// add must be called with mu held or before the table is shared.
func (p *polymorphism) add(cd *ClassDescriptor, aliases []string) {
	if _, dup := p.byType[cd.typ]; dup {
		return
	}
	p.byType[cd.typ] = cd
	p.list = append(p.list, cd)
	for _, tag := range cd.tags() {
		p.addTag(tag, cd)
	}
	for _, tag := range aliases {
		p.addTag(tag, cd)
	}
}

func (p *polymorphism) addTag(tag string, cd *ClassDescriptor) {
	if _, taken := p.byTag[tag]; taken {
		return
	}
	p.byTag[tag] = cd
	p.byID[TLVID(tag)] = cd
}

// resolve fills a scope-backed table. It is idempotent and safe for
// concurrent callers; false means the scope is still unknown.
func (p *polymorphism) resolve() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return true
	}
	s := p.reg.Scope(p.scope)
	if s == nil {
		return false
	}
	for _, cd := range s.Classes() {
		if p.accepts(cd) {
			p.add(cd, s.aliasesFor(cd))
		}
	}
	p.resolved = true
	return true
}

// classFor dispatches an element to a candidate by tag, or by tag id when
// the element came from TLV.
func (p *polymorphism) classFor(n *wire.Node) *ClassDescriptor {
	if !p.resolve() {
		return nil
	}
	if n.Name != "" {
		return p.byTag[n.Name]
	}
	return p.byID[n.TagID()]
}

func (p *polymorphism) classForType(t reflect.Type) *ClassDescriptor {
	if !p.resolve() {
		return nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return p.byType[t]
}
