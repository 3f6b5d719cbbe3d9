package simpl_test

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	simpl "github.com/reoring/simpl"
)

type Level int

const (
	Low Level = iota
	High
)

func (l Level) MarshalText() ([]byte, error) {
	switch l {
	case Low:
		return []byte("low"), nil
	case High:
		return []byte("high"), nil
	}
	return nil, fmt.Errorf("bad level %d", int(l))
}

func (l *Level) UnmarshalText(b []byte) error {
	switch string(b) {
	case "low":
		*l = Low
	case "high":
		*l = High
	default:
		return fmt.Errorf("bad level %q", b)
	}
	return nil
}

type Celsius float32

type Sample struct {
	S     string        `simpl:"scalar"`
	B     bool          `simpl:"scalar"`
	I     int           `simpl:"scalar"`
	I8    int8          `simpl:"scalar"`
	I64   int64         `simpl:"scalar,hint=leaf"`
	U16   uint16        `simpl:"scalar"`
	F     float64       `simpl:"scalar"`
	Temp  Celsius       `simpl:"scalar"`
	Raw   []byte        `simpl:"scalar,hint=leaf"`
	At    time.Time     `simpl:"scalar"`
	Day   time.Time     `simpl:"scalar,format=2006-01-02"`
	Wait  time.Duration `simpl:"scalar"`
	Link  *url.URL      `simpl:"scalar"`
	Opt   *int          `simpl:"scalar"`
	Level Level         `simpl:"scalar"`
	Kind  reflect.Type  `simpl:"scalar"`
	Nums  []int         `simpl:"collection,tag=n"`
	Text  string        `simpl:"scalar,hint=cdata"`
}

func sampleScope(t *testing.T) *simpl.Scope {
	t.Helper()
	s, err := quietRegistry().NewScope("scalars", nil, Sample{}, Book{})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestScalars_RoundTrip(t *testing.T) {
	scope := sampleScope(t)
	seven := 7
	link, _ := url.Parse("https://example.com/a?b=c&d=e")
	in := &Sample{
		S: "tab\tand <angle> & \"quote\" 'apos'", B: true, I: -42, I8: -8, I64: 1 << 40, U16: 65535,
		F: 3.25, Temp: 21.5, Raw: []byte{0, 1, 2, 0xff},
		At:   time.Date(2024, 2, 29, 23, 59, 58, 123456789, time.FixedZone("x", 3600)),
		Day:  time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		Wait: 90 * time.Second, Link: link, Opt: &seven, Level: High,
		Kind: reflect.TypeFor[Book](), Nums: []int{3, 1, 2}, Text: "x ]]> y\r\nz",
	}
	for _, f := range formats {
		t.Run(f.String(), func(t *testing.T) {
			out := roundTrip(t, scope, in, f)
			if !simpl.Equal(in, out) {
				t.Fatalf("got %+v", out)
			}
			if out.S != in.S || out.Text != in.Text || string(out.Raw) != string(in.Raw) {
				t.Fatalf("text values: %q %q %v", out.S, out.Text, out.Raw)
			}
			if !out.At.Equal(in.At) || out.At.Location() != time.UTC {
				t.Fatalf("time: %v", out.At)
			}
			if out.Kind != reflect.TypeFor[Book]() || out.Level != High || *out.Opt != 7 {
				t.Fatalf("kind=%v level=%v opt=%v", out.Kind, out.Level, *out.Opt)
			}
		})
	}
}

func TestScalars_CDATAFallsBackToEscapedText(t *testing.T) {
	scope := sampleScope(t)
	// XML cannot carry U+0001 or invalid UTF-8; they become U+FFFD while
	// the rest of the document still reads.
	for in, want := range map[string]string{
		"\x01ctl": "\uFFFDctl",
		"\xffbad": "\uFFFDbad",
		"x\r\ny":  "x\r\ny",
		"a\rb":    "a\rb",
	} {
		data, err := simpl.Marshal(&Sample{S: "kept", Text: in}, scope, simpl.FormatXML)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(string(data), "CDATA") {
			t.Fatalf("%q written as CDATA:\n%s", in, data)
		}
		out, err := simpl.UnmarshalAs[*Sample](data, scope)
		if err != nil {
			t.Fatalf("%q: %v\n%s", in, err, data)
		}
		if out.Text != want || out.S != "kept" {
			t.Fatalf("%q read back as %q (s=%q)", in, out.Text, out.S)
		}
	}
	data, err := simpl.Marshal(&Sample{Text: "a < b\n"}, scope, simpl.FormatXML)
	if err != nil {
		t.Fatal(err)
	}
	mustContain(t, string(data), "<![CDATA[a < b\n]]>")
}

func TestScalars_Rendering(t *testing.T) {
	scope := sampleScope(t)
	in := &Sample{
		B: true, Wait: time.Minute, Level: High, Kind: reflect.TypeFor[Book](),
		Day: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), Raw: []byte("hi"),
	}
	data, err := simpl.Marshal(in, scope, simpl.FormatXML)
	if err != nil {
		t.Fatal(err)
	}
	mustContain(t, string(data), `b="true"`, `wait="1m0s"`, `level="high"`, `kind="book"`, `day="2020-01-02"`, `<raw>aGk=</raw>`, `<i64>0</i64>`)
	for _, absent := range []string{` s=`, ` i=`, ` at=`, ` link=`, ` opt=`, `<nums`} {
		if strings.Contains(string(data), absent) {
			t.Fatalf("default %q written:\n%s", absent, data)
		}
	}
}

func TestScalars_InvalidValuesKeepDefaults(t *testing.T) {
	scope := sampleScope(t)
	tc := simpl.NewTranslationContext(scope)
	doc := `<sample i="twelve" b="maybe" level="medium" s="ok" u16="70000"/>`
	s, err := simpl.UnmarshalAs[*Sample]([]byte(doc), scope, simpl.UnmarshalOpt{Context: tc})
	if err != nil {
		t.Fatal(err)
	}
	if s.I != 0 || s.B || s.Level != Low || s.U16 != 0 || s.S != "ok" {
		t.Fatalf("got %+v", s)
	}
	n := 0
	for _, is := range tc.Diagnostics() {
		if is.Code == simpl.CodeInvalidValue {
			n++
		}
	}
	if n != 4 {
		t.Fatalf("want 4 invalid_value diagnostics, got %v", tc.Diagnostics())
	}
}

func TestScalars_BaseURI(t *testing.T) {
	scope := sampleScope(t)
	base, _ := url.Parse("https://example.com/docs/")
	link, _ := url.Parse("https://example.com/docs/guide/intro.html#top")
	data, err := simpl.Marshal(&Sample{Link: link}, scope, simpl.FormatXML, simpl.MarshalOpt{BaseURI: base})
	if err != nil {
		t.Fatal(err)
	}
	mustContain(t, string(data), `link="guide/intro.html#top"`)
	s, err := simpl.UnmarshalAs[*Sample](data, scope, simpl.UnmarshalOpt{BaseURI: base})
	if err != nil {
		t.Fatal(err)
	}
	if s.Link.String() != link.String() {
		t.Fatalf("link: %s", s.Link)
	}
	// outside the base the absolute form is kept
	other, _ := url.Parse("https://other.org/x")
	data, _ = simpl.Marshal(&Sample{Link: other}, scope, simpl.FormatXML, simpl.MarshalOpt{BaseURI: base})
	mustContain(t, string(data), `link="https://other.org/x"`)
}

func TestScalarRegistry_Lookup(t *testing.T) {
	r := simpl.NewScalarRegistry()
	for _, typ := range []reflect.Type{
		reflect.TypeFor[string](), reflect.TypeFor[*string](), reflect.TypeFor[Level](),
		reflect.TypeFor[Celsius](), reflect.TypeFor[[]byte](), reflect.TypeFor[*url.URL](),
	} {
		if _, ok := r.Lookup(typ); !ok {
			t.Errorf("%v not registered", typ)
		}
	}
	for _, typ := range []reflect.Type{reflect.TypeFor[Book](), reflect.TypeFor[[]string](), reflect.TypeFor[chan int]()} {
		if _, ok := r.Lookup(typ); ok {
			t.Errorf("%v must not be a scalar", typ)
		}
	}
}

type upperScalar struct{}

func (upperScalar) Name() string { return "upper" }
func (upperScalar) Parse(s string, _ []string, _ *simpl.TranslationContext) (reflect.Value, bool) {
	return reflect.ValueOf(Shout(strings.ToLower(s))), true
}
func (upperScalar) Serialize(v reflect.Value, _ []string, _ *simpl.TranslationContext) string {
	return strings.ToUpper(v.String())
}
func (upperScalar) IsDefault(v reflect.Value) bool { return v.Len() == 0 }
func (upperScalar) NeedsEscaping() bool            { return true }

type Shout string

type Megaphone struct {
	Msg Shout `simpl:"scalar"`
}

func TestScalarRegistry_CustomCodec(t *testing.T) {
	sc := simpl.NewScalarRegistry()
	sc.Register(reflect.TypeFor[Shout](), upperScalar{})
	reg := simpl.NewRegistry(simpl.RegistryOpt{Scalars: sc})
	scope, err := reg.NewScope("mega", nil, Megaphone{})
	if err != nil {
		t.Fatal(err)
	}
	data, err := simpl.Marshal(&Megaphone{Msg: "hey"}, scope, simpl.FormatXML)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `<megaphone msg="HEY"/>` {
		t.Fatalf("got %s", data)
	}
	m, err := simpl.UnmarshalAs[*Megaphone](data, scope)
	if err != nil || m.Msg != "hey" {
		t.Fatalf("got %+v, %v", m, err)
	}
}
