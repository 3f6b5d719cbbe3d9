package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	simpl "github.com/reoring/simpl"
	eng "github.com/reoring/simpl/internal/engine"
	"github.com/reoring/simpl/internal/wire"
)

var log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	sub := os.Args[1]
	switch sub {
	case "tagid":
		tagidCmd(os.Args[2:])
	case "sniff":
		sniffCmd(os.Args[2:])
	case "inspect":
		inspectCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "simpl CLI\n\nUsage:\n  simpl tagid TAG [TAG...]\n  simpl sniff [FILE]\n  simpl inspect [--format xml|json|tlv] [--max-depth N] [--dup warn|error] [-v] [FILE]\n\nNotes:\n  - FILE defaults to stdin.\n  - TLV elements carry no names; inspect prints their tag ids, which tagid computes for known tags.")
}

func tagidCmd(args []string) {
	fs := pflag.NewFlagSet("tagid", pflag.ExitOnError)
	hex := fs.Bool("hex", true, "print ids in hexadecimal")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}
	for _, tag := range fs.Args() {
		if *hex {
			fmt.Printf("%s\t0x%08x\n", tag, simpl.TLVID(tag))
		} else {
			fmt.Printf("%s\t%d\n", tag, simpl.TLVID(tag))
		}
	}
}

func sniffCmd(args []string) {
	fs := pflag.NewFlagSet("sniff", pflag.ExitOnError)
	_ = fs.Parse(args)
	data := readInput(fs.Arg(0))
	fmt.Println(simpl.Sniff(data))
}

func inspectCmd(args []string) {
	fs := pflag.NewFlagSet("inspect", pflag.ExitOnError)
	format := fs.String("format", "auto", "payload format: xml, json, tlv or auto")
	maxDepth := fs.Int("max-depth", 0, "reject JSON nested deeper than this (0 = unlimited)")
	dup := fs.String("dup", "warn", "duplicate JSON keys: warn or error")
	verbose := fs.BoolP("verbose", "v", false, "enable verbose logs")
	_ = fs.Parse(args)
	if *verbose {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	f, err := simpl.ParseFormat(*format)
	if err != nil {
		fatalf("%v", err)
	}
	data := readInput(fs.Arg(0))
	if f == simpl.FormatAuto {
		f = simpl.Sniff(data)
	}
	log.Debug("inspect", "format", f.String(), "bytes", len(data))

	var root *wire.Node
	switch f {
	case simpl.FormatXML:
		root, err = wire.DecodeXML(data)
	case simpl.FormatJSON:
		eo := eng.EnforceOptions{MaxDepth: *maxDepth, OnDuplicate: eng.DupWarn}
		switch *dup {
		case "warn":
			eo.IssueSink = func(si eng.SimpleIssue) {
				log.Warn("duplicate key", "path", si.Path, "code", si.Code)
			}
		case "error":
			eo.OnDuplicate = eng.DupError
		default:
			fatalf("unknown --dup %q", *dup)
		}
		root, err = wire.DecodeJSON(eng.WrapWithEnforcement(eng.NewBytes(data), eo))
	default:
		root, err = wire.DecodeTLV(data)
	}
	if err != nil {
		fatalf("decode %s: %v", f, err)
	}
	if err := dump(os.Stdout, root, 0); err != nil {
		fatalf("decode %s: %v", f, err)
	}
}

// dump prints one line per element: its tag (or tag id), graph markers,
// attributes and text. TLV payloads that do not decode as nested fields are
// printed as scalar values.
func dump(w io.Writer, n *wire.Node, depth int) error {
	kids, err := n.Kids()
	if err != nil {
		if n.Name != "" || depth == 0 {
			return err
		}
		kids = nil
	}
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	if n.Name != "" {
		b.WriteString(n.Name)
	} else {
		fmt.Fprintf(&b, "#%08x", n.TagID())
	}
	for _, m := range [][2]string{{"id", n.SimplID}, {"ref", n.SimplRef}, {"ordered_id_refs", n.OrderedIDRefs}} {
		if m[1] != "" {
			fmt.Fprintf(&b, " [%s=%s]", m[0], m[1])
		}
	}
	for _, a := range n.Attrs {
		if a.Name != "" {
			fmt.Fprintf(&b, " %s=%q", a.Name, a.Value)
		} else {
			fmt.Fprintf(&b, " #%08x=%q", a.TagID(), a.Value)
		}
	}
	if len(kids) == 0 && n.Value() != "" {
		fmt.Fprintf(&b, " %q", n.Value())
	} else if n.HasText && n.Text != "" {
		fmt.Fprintf(&b, " text=%q", n.Text)
	}
	b.WriteByte('\n')
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	for _, k := range kids {
		if err := dump(w, k, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func readInput(path string) []byte {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		fatalf("reading input: %v", err)
	}
	return data
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "simpl: "+format+"\n", a...)
	os.Exit(1)
}
