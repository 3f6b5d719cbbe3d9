package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// TLV framing: every element is a 4-byte big-endian tag id, a 4-byte
// big-endian payload length, then the payload. A leaf's payload is its raw
// value; any other element's payload is a sequence of TLV children, with the
// graph markers and element text carried under reserved tag ids.

const tlvHeaderLen = 8

// EncodeTLV writes root in TLV framing.
func EncodeTLV(buf *bytes.Buffer, root *Node) error {
	return writeTLV(buf, root)
}

func writeTLV(buf *bytes.Buffer, n *Node) error {
	if n.Leaf() {
		return writeTLVField(buf, n.TagID(), []byte(n.Text))
	}
	var body bytes.Buffer
	if n.SimplID != "" {
		if err := writeTLVField(&body, TLVIDMarker, []byte(n.SimplID)); err != nil {
			return err
		}
	}
	if n.SimplRef != "" {
		if err := writeTLVField(&body, TLVRefMarker, []byte(n.SimplRef)); err != nil {
			return err
		}
	}
	if n.OrderedIDRefs != "" {
		if err := writeTLVField(&body, TLVOrderedIDRefsMarker, []byte(n.OrderedIDRefs)); err != nil {
			return err
		}
	}
	for _, a := range n.Attrs {
		if err := writeTLVField(&body, a.TagID(), []byte(a.Value)); err != nil {
			return err
		}
	}
	if n.HasText {
		if err := writeTLVField(&body, TLVTextMarker, []byte(n.Text)); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := writeTLV(&body, c); err != nil {
			return err
		}
	}
	return writeTLVField(buf, n.TagID(), body.Bytes())
}

func writeTLVField(buf *bytes.Buffer, id uint32, payload []byte) error {
	if len(payload) > math.MaxUint32 {
		return fmt.Errorf("wire: tlv payload of %d bytes exceeds 4-byte length", len(payload))
	}
	var hdr [tlvHeaderLen]byte
	binary.BigEndian.PutUint32(hdr[0:4], id)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	buf.Write(hdr[:])
	buf.Write(payload)
	return nil
}

// DecodeTLV reads exactly one root element. Children are decoded lazily by
// Node.Kids, since only the class descriptors know whether a payload is a
// raw value or nested elements.
func DecodeTLV(data []byte) (*Node, error) {
	id, payload, rest, err := readTLVField(data)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after root element", ErrMalformed, len(rest))
	}
	return &Node{ID: id, raw: payload, lazy: true}, nil
}

func readTLVField(data []byte) (uint32, []byte, []byte, error) {
	if len(data) < tlvHeaderLen {
		return 0, nil, nil, fmt.Errorf("%w: truncated tlv header (%d bytes)", ErrMalformed, len(data))
	}
	id := binary.BigEndian.Uint32(data[0:4])
	n := binary.BigEndian.Uint32(data[4:8])
	if uint64(n) > uint64(len(data)-tlvHeaderLen) {
		return 0, nil, nil, fmt.Errorf("%w: tlv length %d exceeds remaining %d bytes", ErrMalformed, n, len(data)-tlvHeaderLen)
	}
	end := tlvHeaderLen + int(n)
	return id, data[tlvHeaderLen:end], data[end:], nil
}

func (n *Node) expandTLV() error {
	rest := n.raw
	for len(rest) > 0 {
		id, payload, next, err := readTLVField(rest)
		if err != nil {
			return err
		}
		rest = next
		switch id {
		case TLVIDMarker:
			n.SimplID = string(payload)
		case TLVRefMarker:
			n.SimplRef = string(payload)
		case TLVOrderedIDRefsMarker:
			n.OrderedIDRefs = string(payload)
		case TLVTextMarker:
			n.Text, n.HasText = string(payload), true
		default:
			n.Children = append(n.Children, &Node{ID: id, raw: payload, lazy: true})
		}
	}
	return nil
}
