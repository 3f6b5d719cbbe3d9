package simpl

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/reoring/simpl/i18n"
)

// Issue codes (exported consts for IDE completion and type safety by convention)
const (
	// Descriptor construction
	CodeIgnoredField       = "ignored_field"
	CodeUnregisteredScalar = "unregistered_scalar"
	CodeConfigError        = "config_error"
	CodeUnresolvedScope    = "unresolved_scope"
	// Absorbed while translating
	CodeInvalidValue = "invalid_value"
	CodeFieldAccess  = "field_access"
	CodeUnknownTag   = "unknown_tag"
	CodeDuplicateID  = "duplicate_id"
	CodeDuplicateKey = "duplicate_key"
	// Surfaced to the caller
	CodeParseError        = "parse_error"
	CodeDanglingReference = "dangling_reference"
	CodeUnknownRoot       = "unknown_root"
)

// Sentinels matched with errors.Is against the Issues returned by Unmarshal.
var (
	ErrParse             = errors.New("simpl: malformed payload")
	ErrDanglingReference = errors.New("simpl: reference to undefined id")
	ErrUnknownRoot       = errors.New("simpl: root tag not in scope")
)

// Issue represents a single diagnostic entry.
type Issue struct {
	Path    string // Element path in document order (for example: /library/books/2).
	Code    string // One of the codes listed above.
	Message string
	Hint    string // Optional: type or field names, offending values.
	Cause   error  // Optional: underlying error.
	Offset  int64  // Byte offset in the input (-1 when unknown).
	// Params carries structured parameters (e.g., {"tag":"book","id":"7"})
	// for i18n and observability.
	Params map[string]any
}

// Issues is a collection of diagnostics that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := n
	if lim > maxShown {
		lim = maxShown
	}
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		it := iss[i]
		// e.g. dangling_reference at /library/books/0
		fmt.Fprintf(b, "%s at %s", it.Code, it.Path)
		if it.Hint != "" {
			fmt.Fprintf(b, " (%s)", it.Hint)
		}
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// Unwrap exposes the causes so errors.Is can see through an Issues value.
func (iss Issues) Unwrap() []error {
	var out []error
	for _, it := range iss {
		if it.Cause != nil {
			out = append(out, it.Cause)
		}
	}
	return out
}

// HasCode reports whether any issue carries code.
func (iss Issues) HasCode(code string) bool {
	for _, it := range iss {
		if it.Code == code {
			return true
		}
	}
	return false
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	dst = append(dst, more...)
	return dst
}

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}

// newIssue builds an Issue whose message comes from the active translator.
func newIssue(code, path, hint string, cause error, params map[string]any) Issue {
	return Issue{
		Path:    path,
		Code:    code,
		Message: i18n.T(code, stringParams(params)),
		Hint:    hint,
		Cause:   cause,
		Offset:  -1,
		Params:  params,
	}
}

func stringParams(params map[string]any) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func singleIssue(code, hint string, cause error) Issues {
	return AppendIssues(nil, newIssue(code, "/", hint, cause, nil))
}

// ConfigError reports a type whose declared metadata cannot be turned into a
// descriptor, such as a field tag declared twice along the embedding chain.
type ConfigError struct {
	Type  reflect.Type
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("simpl: %v: %s", e.Type, e.Msg)
	}
	return fmt.Sprintf("simpl: %v.%s: %s", e.Type, e.Field, e.Msg)
}
