package simpl_test

import (
	"io"
	"log/slog"
	"strconv"
	"testing"

	simpl "github.com/reoring/simpl"
)

// --- Fixtures ---

type order struct {
	ID       string  `simpl:"scalar"`
	Customer *party  `simpl:"composite"`
	Lines    []*line `simpl:"collection,tag=line"`
}

type party struct {
	Name string `simpl:"scalar"`
}

type line struct {
	SKU   string  `simpl:"scalar"`
	Qty   int     `simpl:"scalar"`
	Price float64 `simpl:"scalar"`
	Buyer *party  `simpl:"composite"`
}

func benchScope(tb testing.TB) *simpl.Scope {
	tb.Helper()
	reg := simpl.NewRegistry(simpl.RegistryOpt{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	s, err := reg.NewScope("bench", nil, order{})
	if err != nil {
		tb.Fatalf("scope: %v", err)
	}
	return s
}

// benchOrder shares one party across every line, so the graph path is
// exercised on each benchmark.
func benchOrder(n int) *order {
	p := &party{Name: "acme"}
	o := &order{ID: "o-1", Customer: p}
	for i := range n {
		o.Lines = append(o.Lines, &line{SKU: "sku-" + strconv.Itoa(i), Qty: i + 1, Price: 9.99, Buyer: p})
	}
	return o
}

func benchMarshal(b *testing.B, f simpl.Format) {
	scope := benchScope(b)
	o := benchOrder(100)
	tc := simpl.NewTranslationContext(scope)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := simpl.Marshal(o, scope, f, simpl.MarshalOpt{Context: tc}); err != nil {
			b.Fatal(err)
		}
	}
}

func benchUnmarshal(b *testing.B, f simpl.Format) {
	scope := benchScope(b)
	data, err := simpl.Marshal(benchOrder(100), scope, f)
	if err != nil {
		b.Fatal(err)
	}
	tc := simpl.NewTranslationContext(scope)
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := simpl.Unmarshal(data, scope, simpl.UnmarshalOpt{Format: f, Context: tc}); err != nil {
			b.Fatal(err)
		}
	}
}

func Benchmark_Marshal_XML(b *testing.B)  { benchMarshal(b, simpl.FormatXML) }
func Benchmark_Marshal_JSON(b *testing.B) { benchMarshal(b, simpl.FormatJSON) }
func Benchmark_Marshal_TLV(b *testing.B)  { benchMarshal(b, simpl.FormatTLV) }

func Benchmark_Unmarshal_XML(b *testing.B)  { benchUnmarshal(b, simpl.FormatXML) }
func Benchmark_Unmarshal_JSON(b *testing.B) { benchUnmarshal(b, simpl.FormatJSON) }
func Benchmark_Unmarshal_TLV(b *testing.B)  { benchUnmarshal(b, simpl.FormatTLV) }
