package simpl

import (
	"fmt"
	"reflect"
	"strings"
)

// Field shapes accepted as the first element of a `simpl` struct tag.
const (
	ShapeScalar     = "scalar"
	ShapeComposite  = "composite"
	ShapeCollection = "collection"
	ShapeMap        = "map"
)

// Scalar placement hints.
const (
	HintAttr  = "attr"  // attribute of the enclosing element (default)
	HintLeaf  = "leaf"  // child element holding only text
	HintCDATA = "cdata" // leaf written as a CDATA section in XML
	HintText  = "text"  // text content of the enclosing element
)

// FieldConfig is the declarative metadata of one field. It is parsed from the
// `simpl` struct tag and may be extended by TypeConfig.Fields.
//
//	Title string   `simpl:"scalar"`
//	Body  string   `simpl:"scalar,hint=cdata"`
//	Books []*Book  `simpl:"collection,tag=book,nowrap"`
//	Pets  []Animal `simpl:"collection,scope=animals"`
//	Index map[string]*Book `simpl:"map,tag=book,key=ISBN"`
type FieldConfig struct {
	Shape     string
	Name      string   // wire tag of the field; defaults to TagName(field name)
	ItemTag   string   // tag of collection and map items
	NoWrap    bool     // emit items as direct siblings
	Wrap      bool     // wrap a polymorphic composite in an element named after the field
	Scope     string   // named scope supplying polymorphic candidates
	Key       string   // Go field name of the map key on the item type
	Hint      string   // scalar placement
	Format    []string // format hints passed to the scalar codec
	OtherTags []string // alternate tags accepted on read
	// Classes lists the candidate concrete types of a polymorphic field,
	// given as zero values or reflect.Types.
	Classes []any
}

// TypeConfig is type-level metadata that a struct tag cannot carry.
type TypeConfig struct {
	Tag       string
	OtherTags []string
	Fields    map[string]FieldConfig // keyed by Go field name
}

// Configurable types supply their own TypeConfig. The method is called on the
// zero value once, when the type is described.
type Configurable interface {
	SimplConfig() TypeConfig
}

var configurableType = reflect.TypeFor[Configurable]()

func typeConfigOf(t reflect.Type) TypeConfig {
	switch {
	case t.Implements(configurableType):
		return reflect.Zero(t).Interface().(Configurable).SimplConfig()
	case reflect.PointerTo(t).Implements(configurableType):
		return reflect.New(t).Interface().(Configurable).SimplConfig()
	}
	return TypeConfig{}
}

// parseFieldTag reads `simpl:"shape,opt,key=value,..."`.
func parseFieldTag(tag string) (FieldConfig, error) {
	var fc FieldConfig
	if tag == "" {
		return fc, nil
	}
	parts := strings.Split(tag, ",")
	fc.Shape = strings.TrimSpace(parts[0])
	switch fc.Shape {
	case ShapeScalar, ShapeComposite, ShapeCollection, ShapeMap, "-":
	default:
		return fc, fmt.Errorf("unknown shape %q", fc.Shape)
	}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k, v, hasValue := strings.Cut(p, "=")
		switch k {
		case "nowrap":
			fc.NoWrap = true
		case "wrap":
			fc.Wrap = true
		case "name":
			fc.Name = v
		case "tag":
			fc.ItemTag = v
		case "scope":
			fc.Scope = v
		case "key":
			fc.Key = v
		case "hint":
			switch v {
			case HintAttr, HintLeaf, HintCDATA, HintText:
				fc.Hint = v
			default:
				return fc, fmt.Errorf("unknown hint %q", v)
			}
		case "format":
			fc.Format = append(fc.Format, v)
		case "other":
			fc.OtherTags = append(fc.OtherTags, v)
		default:
			return fc, fmt.Errorf("unknown option %q", p)
		}
		if !hasValue && k != "nowrap" && k != "wrap" {
			return fc, fmt.Errorf("option %q needs a value", k)
		}
	}
	return fc, nil
}

// merge overlays the non-zero settings of o.
func (fc FieldConfig) merge(o FieldConfig) FieldConfig {
	if o.Shape != "" {
		fc.Shape = o.Shape
	}
	if o.Name != "" {
		fc.Name = o.Name
	}
	if o.ItemTag != "" {
		fc.ItemTag = o.ItemTag
	}
	fc.NoWrap = fc.NoWrap || o.NoWrap
	fc.Wrap = fc.Wrap || o.Wrap
	if o.Scope != "" {
		fc.Scope = o.Scope
	}
	if o.Key != "" {
		fc.Key = o.Key
	}
	if o.Hint != "" {
		fc.Hint = o.Hint
	}
	fc.Format = append(fc.Format, o.Format...)
	fc.OtherTags = append(fc.OtherTags, o.OtherTags...)
	fc.Classes = append(fc.Classes, o.Classes...)
	return fc
}

// classType accepts a zero value, a pointer to one, or a reflect.Type.
func classType(c any) reflect.Type {
	var t reflect.Type
	switch x := c.(type) {
	case nil:
		return nil
	case reflect.Type:
		t = x
	default:
		t = reflect.TypeOf(c)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
