package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/reoring/simpl/internal/wire"
)

func TestDumpXML(t *testing.T) {
	root, err := wire.DecodeXML([]byte(`<zoo xmlns:simpl="` + wire.NamespaceURI + `" name="z"><dog simpl:id="1" name="rex"/><keepers simpl:ordered_id_refs="1"/></zoo>`))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := dump(&buf, root, 0); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		`zoo name="z"`,
		`  dog [id=1] name="rex"`,
		`  keepers [ordered_id_refs=1]`,
		``,
	}, "\n")
	if buf.String() != want {
		t.Fatalf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestDumpTLVPrintsIDs(t *testing.T) {
	var buf bytes.Buffer
	if err := wire.EncodeTLV(&buf, &wire.Node{Name: "dog", Composite: true, Attrs: []wire.Attr{{Name: "name", Value: "rex"}}}); err != nil {
		t.Fatal(err)
	}
	root, err := wire.DecodeTLV(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := dump(&out, root, 0); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "#") || !strings.Contains(out.String(), `"rex"`) {
		t.Fatalf("got:\n%s", out.String())
	}
}
