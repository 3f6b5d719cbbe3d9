package simpl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// Manifest composes named scopes out of the classes of a catalog scope.
//
//	scopes:
//	  - name: zoo
//	    inherits: [base]
//	    classes: [dog, cat]
//	aliases:
//	  dog: [hound]
//
// Aliases add read tags to a class in every scope of the same document that
// holds it, or in the catalog when the document declares no scopes.
type Manifest struct {
	Scopes  []ScopeManifest     `yaml:"scopes"`
	Aliases map[string][]string `yaml:"aliases"`
}

type ScopeManifest struct {
	Name     string   `yaml:"name"`
	Inherits []string `yaml:"inherits"`
	Classes  []string `yaml:"classes"`
}

// LoadManifest reads a (possibly multi-document) YAML manifest and registers
// the scopes it declares. Inherited scopes must already be registered or
// appear earlier in the manifest.
func (r *Registry) LoadManifest(catalog *Scope, data []byte) ([]*Scope, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var out []*Scope
	for {
		var m Manifest
		if err := dec.Decode(&m); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return out, fmt.Errorf("simpl: manifest: %w", err)
		}
		scopes, err := r.applyManifest(catalog, m)
		out = append(out, scopes...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (r *Registry) applyManifest(catalog *Scope, m Manifest) ([]*Scope, error) {
	var out []*Scope
	for _, sm := range m.Scopes {
		if sm.Name == "" {
			return out, errors.New("simpl: manifest: scope without a name")
		}
		var inherits []*Scope
		for _, name := range sm.Inherits {
			in := r.Scope(name)
			if in == nil {
				return out, fmt.Errorf("simpl: manifest: scope %q inherits unknown scope %q", sm.Name, name)
			}
			inherits = append(inherits, in)
		}
		types := make([]any, 0, len(sm.Classes))
		for _, tag := range sm.Classes {
			cd := catalog.ClassByTag(tag)
			if cd == nil {
				return out, fmt.Errorf("simpl: manifest: scope %q names class %q missing from catalog %q", sm.Name, tag, catalog.name)
			}
			types = append(types, cd.typ)
		}
		s, err := r.NewScope(sm.Name, inherits, types...)
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}

	targets := out
	if len(targets) == 0 {
		targets = []*Scope{catalog}
	}
	for _, tag := range slices.Sorted(maps.Keys(m.Aliases)) {
		found := false
		for _, s := range targets {
			if s.ClassByTag(tag) == nil {
				continue
			}
			found = true
			if err := s.Alias(tag, m.Aliases[tag]...); err != nil {
				return out, err
			}
		}
		if !found {
			return out, fmt.Errorf("simpl: manifest: alias for unknown class %q", tag)
		}
	}
	return out, nil
}
