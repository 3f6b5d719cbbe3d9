// Package engine turns JSON input into a token stream for the wire decoder
// and guards that stream against pathological input.
package engine

// Kind represents token kinds from a generic source.
type Kind int

const (
	KindBeginObject Kind = iota
	KindEndObject
	KindBeginArray
	KindEndArray
	KindKey
	KindString
	KindNumber
	KindBool
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindBeginObject:
		return "begin_object"
	case KindEndObject:
		return "end_object"
	case KindBeginArray:
		return "begin_array"
	case KindEndArray:
		return "end_array"
	case KindKey:
		return "key"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Token represents a streaming token with approximate input offset.
type Token struct {
	Kind   Kind
	String string
	Number string
	Bool   bool
	Offset int64
}

// Scalar renders a value token as text; ok is false for structural tokens
// and null.
func (t Token) Scalar() (string, bool) {
	switch t.Kind {
	case KindString:
		return t.String, true
	case KindNumber:
		return t.Number, true
	case KindBool:
		if t.Bool {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

// TokenSource is a minimal interface required by the wire decoder.
type TokenSource interface {
	NextToken() (Token, error)
	Location() int64
}
