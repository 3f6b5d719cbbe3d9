package simpl_test

import (
	"errors"
	"strings"
	"testing"

	simpl "github.com/reoring/simpl"
)

func personScope(t *testing.T) *simpl.Scope {
	t.Helper()
	s, err := quietRegistry().NewScope("people", nil, Person{})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestGraph_SharedReferencesKeepIdentity(t *testing.T) {
	scope := libraryScope(t)
	for _, f := range formats {
		t.Run(f.String(), func(t *testing.T) {
			out := roundTrip(t, scope, sampleLibrary(), f)
			if out.Featured != out.Books[1] {
				t.Fatalf("featured is a copy, not the shared book")
			}
			if out.Shelves[0].Books[0] != out.Books[0] {
				t.Fatalf("shelf book is a copy")
			}
			if out.Index["isbn-1"] != out.Books[0] || out.Index["isbn-2"] != out.Books[1] {
				t.Fatalf("index entries are not the shared books: %v", out.Index)
			}
		})
	}
}

func TestGraph_CycleTerminates(t *testing.T) {
	scope := personScope(t)
	a := &Person{Name: "a"}
	b := &Person{Name: "b", Spouse: a}
	a.Spouse = b
	a.Friends = []*Person{a, b}
	for _, f := range formats {
		t.Run(f.String(), func(t *testing.T) {
			out := roundTrip(t, scope, a, f)
			if out.Spouse == nil || out.Spouse.Spouse != out {
				t.Fatalf("spouse cycle not restored")
			}
			if len(out.Friends) != 2 || out.Friends[0] != out || out.Friends[1] != out.Spouse {
				t.Fatalf("friends: %+v", out.Friends)
			}
			if !simpl.Equal(a, out) {
				t.Fatalf("graphs differ")
			}
		})
	}
}

func TestGraph_IDsAreAssignedOnlyToSharedObjects(t *testing.T) {
	scope := personScope(t)
	a := &Person{Name: "a"}
	b := &Person{Name: "b", Spouse: a}
	a.Spouse = b
	a.Friends = []*Person{{Name: "loner"}}
	data, err := simpl.Marshal(a, scope, simpl.FormatXML)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if got := strings.Count(s, "simpl:id="); got != 1 {
		t.Fatalf("want exactly one id, got %d:\n%s", got, s)
	}
	mustContain(t, s, `<person xmlns:simpl="`, `simpl:id="1" name="a"`, `<spouse simpl:ref="1"/>`, `<person name="loner"/>`)
}

func TestGraph_ForwardReferences(t *testing.T) {
	scope := personScope(t)
	doc := `<person name="a">
  <spouse simpl:ref="9"/>
  <friends>
    <person simpl:ref="7"/>
    <person simpl:id="7" name="b"/>
    <person simpl:id="9" name="c"/>
  </friends>
</person>`
	tc := simpl.NewTranslationContext(scope)
	p, err := simpl.UnmarshalAs[*Person]([]byte(doc), scope, simpl.UnmarshalOpt{Context: tc})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Friends) != 3 {
		t.Fatalf("friends: %d", len(p.Friends))
	}
	if p.Friends[0] == nil || p.Friends[0] != p.Friends[1] || p.Friends[0].Name != "b" {
		t.Fatalf("forward item reference not bound in place: %+v", p.Friends)
	}
	if p.Spouse != p.Friends[2] {
		t.Fatalf("forward field reference not bound")
	}
	if tc.Pending() != 0 {
		t.Fatalf("queue not drained: %d", tc.Pending())
	}
	if ids := tc.IDs(); len(ids) != 2 || ids[0] != "7" || ids[1] != "9" {
		t.Fatalf("ids: %v", ids)
	}
	if v, ok := tc.Lookup("9"); !ok || v.(*Person).Name != "c" {
		t.Fatalf("lookup: %v %v", v, ok)
	}
}

func TestGraph_DanglingReference(t *testing.T) {
	scope := personScope(t)
	for name, doc := range map[string]string{
		"xml":  `<person name="a"><spouse simpl:ref="42"/></person>`,
		"json": `{"person":{"name":"a","friends":{"person":[{"simpl.ref":"42"}]}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			v, err := simpl.Unmarshal([]byte(doc), scope)
			if err == nil {
				t.Fatalf("expected error, got %+v", v)
			}
			if v != nil {
				t.Fatalf("partial graph returned: %+v", v)
			}
			if !errors.Is(err, simpl.ErrDanglingReference) {
				t.Fatalf("want ErrDanglingReference, got %v", err)
			}
			iss, ok := simpl.AsIssues(err)
			if !ok || !iss.HasCode(simpl.CodeDanglingReference) || iss[0].Hint != "42" {
				t.Fatalf("issues: %v", err)
			}
		})
	}
}

func TestGraph_DuplicateIDKeepsFirst(t *testing.T) {
	scope := personScope(t)
	doc := `<person name="a"><friends><person simpl:id="1" name="first"/><person simpl:id="1" name="second"/></friends><spouse simpl:ref="1"/></person>`
	tc := simpl.NewTranslationContext(scope)
	p, err := simpl.UnmarshalAs[*Person]([]byte(doc), scope, simpl.UnmarshalOpt{Context: tc})
	if err != nil {
		t.Fatal(err)
	}
	if p.Spouse == nil || p.Spouse.Name != "first" {
		t.Fatalf("spouse: %+v", p.Spouse)
	}
	if !tc.Diagnostics().HasCode(simpl.CodeDuplicateID) {
		t.Fatalf("duplicate id not reported: %v", tc.Diagnostics())
	}
}

func TestGraph_OrderedIDRefsAreRead(t *testing.T) {
	scope := personScope(t)
	doc := `<person name="root"><spouse simpl:id="2" name="s"><friends><person simpl:id="5" name="f"/></friends></spouse><friends simpl:ordered_id_refs="5, 2"/></person>`
	p, err := simpl.UnmarshalAs[*Person]([]byte(doc), scope)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Friends) != 2 || p.Friends[0] != p.Spouse.Friends[0] || p.Friends[1] != p.Spouse {
		t.Fatalf("friends: %+v", p.Friends)
	}
}

type Anchor struct {
	Name string `simpl:"scalar"`
}

type Mooring struct {
	Code string  `simpl:"scalar"`
	Ref  *Anchor `simpl:"composite"`
}

// Harbor holds its moorings by value.
type Harbor struct {
	Berth    Mooring            `simpl:"composite"`
	Moorings []Mooring          `simpl:"collection,tag=mooring"`
	Slips    map[string]Mooring `simpl:"map,tag=slip,key=Code"`
	Anchor   *Anchor            `simpl:"composite"`
}

func TestGraph_ForwardRefsInsideValueStructs(t *testing.T) {
	scope, err := quietRegistry().NewScope("harbor", nil, Harbor{})
	if err != nil {
		t.Fatal(err)
	}
	doc := `<harbor>` +
		`<berth><ref simpl:ref="7"/></berth>` +
		`<moorings><mooring code="m1"><ref simpl:ref="7"/></mooring><mooring code="m2"><ref simpl:ref="7"/></mooring><mooring code="m3"/></moorings>` +
		`<slips><slip code="s1"><ref simpl:ref="7"/></slip></slips>` +
		`<anchor simpl:id="7" name="t"/></harbor>`
	h, err := simpl.UnmarshalAs[*Harbor]([]byte(doc), scope)
	if err != nil {
		t.Fatal(err)
	}
	if h.Anchor == nil || h.Anchor.Name != "t" {
		t.Fatalf("anchor: %+v", h.Anchor)
	}
	if h.Berth.Ref != h.Anchor {
		t.Fatalf("berth ref lost: %+v", h.Berth)
	}
	if len(h.Moorings) != 3 || h.Moorings[0].Ref != h.Anchor || h.Moorings[1].Ref != h.Anchor || h.Moorings[2].Ref != nil {
		t.Fatalf("moorings: %+v", h.Moorings)
	}
	if h.Moorings[0].Code != "m1" || h.Moorings[2].Code != "m3" {
		t.Fatalf("mooring order: %+v", h.Moorings)
	}
	if s, ok := h.Slips["s1"]; !ok || s.Ref != h.Anchor {
		t.Fatalf("slips: %+v", h.Slips)
	}
}

func TestGraph_ValueStructsRoundTrip(t *testing.T) {
	scope, err := quietRegistry().NewScope("harbor", nil, Harbor{})
	if err != nil {
		t.Fatal(err)
	}
	a := &Anchor{Name: "shared"}
	in := &Harbor{
		Berth:    Mooring{Code: "b", Ref: a},
		Moorings: []Mooring{{Code: "m1", Ref: a}, {Code: "m2"}},
		Slips:    map[string]Mooring{"s1": {Code: "s1", Ref: a}},
		Anchor:   a,
	}
	for _, f := range formats {
		t.Run(f.String(), func(t *testing.T) {
			out := roundTrip(t, scope, in, f)
			if out.Anchor == nil || out.Berth.Ref != out.Anchor || out.Moorings[0].Ref != out.Anchor || out.Slips["s1"].Ref != out.Anchor {
				t.Fatalf("shared anchor split: %+v", out)
			}
			if out.Moorings[1].Code != "m2" || out.Moorings[1].Ref != nil {
				t.Fatalf("moorings: %+v", out.Moorings)
			}
		})
	}
}
