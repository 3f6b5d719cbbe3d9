// Package wire holds the format-neutral element tree exchanged between the
// marshalling engine and the XML, JSON and TLV codecs.
//
// A Node is an element: a tag, scalar attributes, optional text, child
// elements and the graph markers (id, ref, ordered id refs). The engine builds
// Nodes when marshalling and walks them, guided by class descriptors, when
// unmarshalling. Codecs only translate between bytes and Nodes.
package wire

import (
	"errors"

	"github.com/cespare/xxhash/v2"
)

// Graph marker names per format.
const (
	NamespaceURI    = "http://ecologylab.net/research/simplGuide/serialization/index.html"
	NamespacePrefix = "simpl"

	XMLID            = "simpl:id"
	XMLRef           = "simpl:ref"
	XMLOrderedIDRefs = "simpl:ordered_id_refs"

	JSONID            = "simpl.id"
	JSONRef           = "simpl.ref"
	JSONOrderedIDRefs = "simpl.ordered_id_refs"
	JSONText          = "simpl.text"

	textMarker = "simpl:text"
)

// IDDelimiter separates ids inside an ordered id refs marker.
const IDDelimiter = ","

// Reserved TLV tag ids carrying the graph markers and element text.
var (
	TLVIDMarker            = TagID(XMLID)
	TLVRefMarker           = TagID(XMLRef)
	TLVOrderedIDRefsMarker = TagID(XMLOrderedIDRefs)
	TLVTextMarker          = TagID(textMarker)
)

// ErrMalformed reports a payload whose structure cannot be parsed.
var ErrMalformed = errors.New("wire: malformed payload")

// TagID derives the stable 32-bit TLV discriminator of a tag name.
func TagID(tag string) uint32 { return uint32(xxhash.Sum64String(tag)) }

// Attr is a scalar carried in attribute position.
type Attr struct {
	Name  string
	ID    uint32
	Value string
	// Escape marks reference-typed values that need format escaping.
	Escape bool
}

// TagID returns the attribute's TLV id.
func (a Attr) TagID() uint32 {
	if a.ID != 0 {
		return a.ID
	}
	return TagID(a.Name)
}

// Node is one element of the neutral tree.
type Node struct {
	Name string // empty when the node was read from TLV
	ID   uint32 // TLV tag id; derived from Name when zero

	Attrs   []Attr
	Text    string
	HasText bool
	// RawText is the untrimmed character data of an XML element that also
	// has children, with whitespace-only runs between children left out.
	RawText  string
	Escape   bool
	CDATA    bool
	Children []*Node
	// Composite marks elements built from a class descriptor, so that an
	// element holding only text is never mistaken for a scalar leaf.
	Composite bool

	// List marks members of a repeated sequence; Group names the sequence
	// (JSON renders consecutive members of one group as an array).
	List  bool
	Group string

	SimplID       string
	SimplRef      string
	OrderedIDRefs string

	raw    []byte
	lazy   bool
	parsed bool
}

// TagID returns the node's TLV id.
func (n *Node) TagID() uint32 {
	if n.ID != 0 {
		return n.ID
	}
	return TagID(n.Name)
}

// Leaf reports whether the node carries nothing but text.
func (n *Node) Leaf() bool {
	return !n.Composite && len(n.Attrs) == 0 && len(n.Children) == 0 && !n.hasMarkers() && !n.lazy
}

func (n *Node) hasMarkers() bool {
	return n.SimplID != "" || n.SimplRef != "" || n.OrderedIDRefs != ""
}

// Value returns the scalar content of a leaf: its text, or its raw payload
// when read from TLV.
func (n *Node) Value() string {
	if n.lazy {
		return string(n.raw)
	}
	return n.Text
}

// Content returns the text of a composite element as written.
func (n *Node) Content() string {
	if n.RawText != "" {
		return n.RawText
	}
	if n.HasText {
		return n.Text
	}
	return ""
}

// Kids returns the child elements, decoding a TLV payload on first use. TLV
// markers and text found in the payload are moved onto the node itself.
func (n *Node) Kids() ([]*Node, error) {
	if !n.lazy || n.parsed {
		return n.Children, nil
	}
	if err := n.expandTLV(); err != nil {
		return nil, err
	}
	n.parsed = true
	return n.Children, nil
}

// Depth returns the height of an already-materialised tree.
func (n *Node) Depth() int {
	d := 0
	for _, c := range n.Children {
		if cd := c.Depth(); cd > d {
			d = cd
		}
	}
	return d + 1
}
