package simpl

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Format selects the wire representation.
type Format int

const (
	FormatAuto Format = iota // Unmarshal only: sniff the first byte.
	FormatXML
	FormatJSON
	FormatTLV
)

func (f Format) String() string {
	switch f {
	case FormatXML:
		return "xml"
	case FormatJSON:
		return "json"
	case FormatTLV:
		return "tlv"
	default:
		return "auto"
	}
}

// ParseFormat maps a format name ("xml", "json", "tlv", "auto") to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xml":
		return FormatXML, nil
	case "json":
		return FormatJSON, nil
	case "tlv", "binary":
		return FormatTLV, nil
	case "", "auto":
		return FormatAuto, nil
	}
	return FormatAuto, fmt.Errorf("simpl: unknown format %q", s)
}

// Severity expresses the severity level for issues.
type Severity int

const (
	Ignore Severity = iota
	Warn
	Error
)

// RegistryOpt configures a Registry.
type RegistryOpt struct {
	// Logger receives descriptor and translation diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger
	// Scalars overrides the scalar type registry. Defaults to a fresh
	// registry holding the built-in codecs.
	Scalars *ScalarRegistry
}

// MarshalOpt bundles marshalling options.
type MarshalOpt struct {
	// Context is reset and reused when set, so the caller can inspect
	// Diagnostics afterwards.
	Context *TranslationContext
	Indent  string // XML and JSON pretty printing.
	BaseURI *url.URL
}

// UnmarshalOpt bundles unmarshalling options.
type UnmarshalOpt struct {
	Format         Format
	BaseURI        *url.URL
	MaxDepth       int
	MaxBytes       int64
	OnDuplicateKey Severity // JSON only.
	Context        *TranslationContext
}
