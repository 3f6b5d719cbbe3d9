package simpl

import (
	"strings"
	"unicode"

	"github.com/reoring/simpl/internal/wire"
)

// Wire markers, re-exported for transports that inspect payloads.
const (
	NamespaceURI      = wire.NamespaceURI
	XMLIDAttr         = wire.XMLID
	XMLRefAttr        = wire.XMLRef
	XMLOrderedIDRefs  = wire.XMLOrderedIDRefs
	JSONIDKey         = wire.JSONID
	JSONRefKey        = wire.JSONRef
	JSONOrderedIDRefs = wire.JSONOrderedIDRefs
)

// TagName canonicalizes a Go identifier into a wire tag: CamelCase becomes
// snake_case, type arguments and package qualifiers are dropped.
//
//	TagName("HTTPServer")                 == "http_server"
//	TagName("Box[example.com/pkg.Item]")  == "box"
func TagName(name string) string {
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	rs := []rune(name)
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := rs[i-1]
				nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TLVID returns the 32-bit binary discriminator of a tag.
func TLVID(tag string) uint32 { return wire.TagID(tag) }
