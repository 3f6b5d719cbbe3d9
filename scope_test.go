package simpl_test

import (
	"reflect"
	"slices"
	"testing"

	simpl "github.com/reoring/simpl"
)

func TestScope_Lookups(t *testing.T) {
	reg := quietRegistry()
	base, err := reg.NewScope("base", nil, Book{})
	if err != nil {
		t.Fatal(err)
	}
	lib, err := reg.NewScope("lib", []*simpl.Scope{base}, Library{})
	if err != nil {
		t.Fatal(err)
	}
	if lib.ClassByTag("book") == nil || lib.ClassByTag("library") == nil {
		t.Fatalf("inherited tag lookup failed")
	}
	if base.ClassByTag("library") != nil {
		t.Fatalf("inheritance must not flow upward")
	}
	if cd := lib.ClassByTLVID(simpl.TLVID("book")); cd == nil || cd.Tag() != "book" {
		t.Fatalf("tlv lookup: %v", cd)
	}
	if cd := lib.ClassByType(reflect.TypeFor[*Book]()); cd == nil || cd.Type() != reflect.TypeFor[Book]() {
		t.Fatalf("type lookup: %v", cd)
	}
	var tags []string
	for _, cd := range lib.Classes() {
		tags = append(tags, cd.Tag())
	}
	if !slices.Equal(tags, []string{"library", "book"}) {
		t.Fatalf("classes: %v", tags)
	}
	if reg.Scope("lib") != lib || !slices.Equal(reg.Scopes(), []string{"base", "lib"}) {
		t.Fatalf("registry scopes: %v", reg.Scopes())
	}
}

func TestScope_Alias(t *testing.T) {
	scope := libraryScope(t)
	if err := scope.Alias("book", "volume"); err != nil {
		t.Fatal(err)
	}
	if err := scope.Alias("pamphlet", "leaflet"); err == nil {
		t.Fatalf("alias of unknown tag must fail")
	}
	b, err := simpl.UnmarshalAs[*Book]([]byte(`<volume isbn="v"/>`), scope)
	if err != nil || b.ISBN != "v" {
		t.Fatalf("got %+v, %v", b, err)
	}
}

func TestScope_AliasReachesPolymorphicFields(t *testing.T) {
	reg := quietRegistry()
	animals, err := reg.NewScope("zoo-animals", nil, Dog{}, Cat{})
	if err != nil {
		t.Fatal(err)
	}
	if err := animals.Alias("dog", "hound"); err != nil {
		t.Fatal(err)
	}
	zoo, err := reg.NewScope("zoo", []*simpl.Scope{animals}, Zoo{})
	if err != nil {
		t.Fatal(err)
	}
	z, err := simpl.UnmarshalAs[*Zoo]([]byte(`<zoo><hound name="h"/></zoo>`), zoo)
	if err != nil {
		t.Fatal(err)
	}
	if d, ok := z.Animals[0].(*Dog); !ok || d.Name != "h" {
		t.Fatalf("animals: %#v", z.Animals)
	}
}

func TestScope_ResolvePending(t *testing.T) {
	reg := quietRegistry()
	zoo, err := reg.NewScope("zoo", nil, Zoo{})
	if err != nil {
		t.Fatal(err)
	}
	if left := zoo.ResolvePending(); left != 3 {
		t.Fatalf("before the animal scope exists: %d", left)
	}
	if _, err := reg.NewScope("zoo-animals", nil, Dog{}, Cat{}); err != nil {
		t.Fatal(err)
	}
	if left := zoo.ResolvePending(); left != 0 {
		t.Fatalf("after: %d", left)
	}
	if !zoo.ClassByTag("zoo").Field("Star").IsPolymorphic() {
		t.Fatalf("star is polymorphic")
	}
}

const manifest = `
scopes:
  - name: pets
    classes: [dog, cat]
  - name: shelter
    inherits: [pets]
    classes: [zoo]
aliases:
  cat: [kitty, puss]
---
aliases:
  book: [tome]
`

func TestLoadManifest(t *testing.T) {
	reg := quietRegistry()
	catalog, err := reg.NewScope("catalog", nil, Dog{}, Cat{}, Zoo{}, Book{})
	if err != nil {
		t.Fatal(err)
	}
	scopes, err := reg.LoadManifest(catalog, []byte(manifest))
	if err != nil {
		t.Fatal(err)
	}
	if len(scopes) != 2 || scopes[0].Name() != "pets" || scopes[1].Name() != "shelter" {
		t.Fatalf("scopes: %v", scopes)
	}
	shelter := reg.Scope("shelter")
	if shelter.ClassByTag("kitty") == nil || shelter.ClassByTag("dog") == nil || shelter.ClassByTag("book") != nil {
		t.Fatalf("shelter lookups wrong")
	}
	if catalog.ClassByTag("tome") == nil {
		t.Fatalf("document without scopes aliases into the catalog")
	}
	if _, err := reg.LoadManifest(catalog, []byte("scopes:\n  - name: x\n    classes: [unicorn]\n")); err == nil {
		t.Fatalf("unknown class must fail")
	}
	if _, err := reg.LoadManifest(catalog, []byte("scopes:\n  - name: y\n    inherits: [nowhere]\n")); err == nil {
		t.Fatalf("unknown inherited scope must fail")
	}
	if _, err := reg.LoadManifest(catalog, []byte("scopez: []\n")); err == nil {
		t.Fatalf("unknown manifest key must fail")
	}
}
