package simpl_test

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	simpl "github.com/reoring/simpl"
)

type Library struct {
	Name     string           `simpl:"scalar"`
	Motto    string           `simpl:"scalar,hint=leaf"`
	Founded  time.Time        `simpl:"scalar"`
	Books    []*Book          `simpl:"collection,tag=book"`
	Shelves  []*Shelf         `simpl:"collection,tag=shelf,nowrap"`
	Featured *Book            `simpl:"composite"`
	Tags     []string         `simpl:"collection,tag=tag"`
	Index    map[string]*Book `simpl:"map,tag=entry,key=ISBN"`
}

type Book struct {
	ISBN  string   `simpl:"scalar"`
	Title string   `simpl:"scalar"`
	Pages int      `simpl:"scalar"`
	Price *float64 `simpl:"scalar"`
	Blurb string   `simpl:"scalar,hint=cdata"`
}

type Shelf struct {
	Label string  `simpl:"scalar"`
	Books []*Book `simpl:"collection,tag=book"`
}

type Person struct {
	Name    string    `simpl:"scalar"`
	Spouse  *Person   `simpl:"composite"`
	Friends []*Person `simpl:"collection,tag=person"`
}

type Animal interface{ Sound() string }

type Dog struct {
	Name  string `simpl:"scalar"`
	Breed string `simpl:"scalar"`
}

func (*Dog) Sound() string { return "woof" }

type Cat struct {
	Name  string `simpl:"scalar"`
	Lives int    `simpl:"scalar"`
}

func (*Cat) Sound() string { return "meow" }

type Zoo struct {
	Name    string   `simpl:"scalar"`
	Animals []Animal `simpl:"collection,scope=zoo-animals,nowrap"`
	Star    Animal   `simpl:"composite,scope=zoo-animals,wrap"`
	Keepers []Animal `simpl:"collection,scope=zoo-animals"`
}

var formats = []simpl.Format{simpl.FormatXML, simpl.FormatJSON, simpl.FormatTLV}

func quietRegistry() *simpl.Registry {
	return simpl.NewRegistry(simpl.RegistryOpt{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func libraryScope(t *testing.T) *simpl.Scope {
	t.Helper()
	s, err := quietRegistry().NewScope("library", nil, Library{}, Book{}, Shelf{})
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	return s
}

func zooScope(t *testing.T) *simpl.Scope {
	t.Helper()
	reg := quietRegistry()
	animals, err := reg.NewScope("zoo-animals", nil, Dog{}, Cat{})
	if err != nil {
		t.Fatalf("animals scope: %v", err)
	}
	s, err := reg.NewScope("zoo", []*simpl.Scope{animals}, Zoo{})
	if err != nil {
		t.Fatalf("zoo scope: %v", err)
	}
	return s
}

func sampleLibrary() *Library {
	price := 12.5
	b1 := &Book{ISBN: "isbn-1", Title: "Go & You", Pages: 320, Price: &price, Blurb: "a <bold> start"}
	b2 := &Book{ISBN: "isbn-2", Title: `"Quoted"`, Pages: 0}
	return &Library{
		Name:     `City & "Co"`,
		Motto:    "read <more>",
		Founded:  time.Date(1999, 3, 4, 5, 6, 7, 8000, time.UTC),
		Books:    []*Book{b1, b2},
		Shelves:  []*Shelf{{Label: "a", Books: []*Book{b1}}, {Label: "b"}},
		Featured: b2,
		Tags:     []string{"x", "y & z"},
		Index:    map[string]*Book{"isbn-1": b1, "isbn-2": b2},
	}
}

func roundTrip[T any](t *testing.T, scope *simpl.Scope, in T, f simpl.Format) T {
	t.Helper()
	data, err := simpl.Marshal(in, scope, f)
	if err != nil {
		t.Fatalf("marshal %v: %v", f, err)
	}
	out, err := simpl.UnmarshalAs[T](data, scope, simpl.UnmarshalOpt{Format: f})
	if err != nil {
		t.Fatalf("unmarshal %v: %v\n%s", f, err, printable(data, f))
	}
	return out
}

func printable(data []byte, f simpl.Format) string {
	if f == simpl.FormatTLV {
		return fmt.Sprintf("% x", data)
	}
	return string(data)
}

func mustContain(t *testing.T, s string, parts ...string) {
	t.Helper()
	for _, p := range parts {
		if !strings.Contains(s, p) {
			t.Fatalf("expected %q in:\n%s", p, s)
		}
	}
}
