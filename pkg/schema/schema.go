// Package schema is the "strict map / semi-strict map / tuple / tagged
// value" validation kernel every domain schema in pkg/mdl is built from
// (spec §4.2). It turns decoded CBOR into typed values while emitting
// precise, path-prefixed diagnostics; it never performs cryptographic
// operations.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-mdoc/mdocverify/pkg/cbor"
)

// Path is the dotted route from a validation target's root to the leaf
// that failed, e.g. ["MobileSecurityObject", "validityInfo", "validFrom"].
// A nested map validator receives its parent's Path (rendered with
// Path.String) as its target, so each segment appears exactly once in the
// final diagnostic text.
type Path []string

// Child appends seg and returns a new Path; the receiver is never mutated.
func (p Path) Child(seg string) Path {
	next := make(Path, len(p), len(p)+1)
	copy(next, p)
	return append(next, seg)
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Issue is a single validation failure at a specific Path.
type Issue struct {
	Path    Path
	Message string
}

func (i Issue) String() string {
	if len(i.Path) == 0 {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Path.String(), i.Message)
}

// IssueList aggregates zero or more Issues and implements error so a
// schema validation failure can be returned and wrapped like any other Go
// error.
type IssueList []Issue

func (l IssueList) Error() string {
	if len(l) == 0 {
		return "no issues"
	}
	lines := make([]string, len(l))
	for i, issue := range l {
		lines[i] = issue.String()
	}
	return strings.Join(lines, "; ")
}

// OK reports whether no issues were collected.
func (l IssueList) OK() bool { return len(l) == 0 }

// Result is the outcome of validating some piece of CBOR into a T.
type Result[T any] struct {
	Value  T
	Issues IssueList
}

// OK reports whether the result carries no issues.
func (r Result[T]) OK() bool { return r.Issues.OK() }

// Err returns the issues as an error when the result failed, and nil when
// it succeeded — lets callers write `if err := result.Err(); err != nil`.
func (r Result[T]) Err() error {
	if r.Issues.OK() {
		return nil
	}
	return r.Issues
}

// --- error message vocabulary (spec §4.2) -----------------------------

// InvalidTypeMessage reports a type mismatch at target.
func InvalidTypeMessage(target, expected, received string) string {
	return fmt.Sprintf("%s: Expected %s, received %s", target, expected, received)
}

// NotMapMessage reports that target was not a CBOR map.
func NotMapMessage(target, actualType string) string {
	return fmt.Sprintf("%s: Expected map, received %s", target, actualType)
}

// EmptyMessage reports that target was unexpectedly empty.
func EmptyMessage(target string) string {
	return fmt.Sprintf("%s: must not be empty", target)
}

// TooFewMessage reports that target had fewer than n items.
func TooFewMessage(target string, n int) string {
	return fmt.Sprintf("%s: expected at least %d item(s)", target, n)
}

// TooManyMessage reports that target had more than n items.
func TooManyMessage(target string, n int) string {
	return fmt.Sprintf("%s: expected at most %d item(s)", target, n)
}

// MissingKeysMessage reports keys required by target but absent on the wire.
func MissingKeysMessage(target string, keys []string) string {
	return fmt.Sprintf("%s: missing required key(s): %s", target, strings.Join(keys, ", "))
}

// UnexpectedKeyMessage reports a key StrictMap does not allow.
func UnexpectedKeyMessage(target, key string) string {
	return fmt.Sprintf("%s: unexpected key %q", target, key)
}

// WrapMessage folds a foreign (non-Issue) error into a single message,
// collapsing a redundant path prefix if inner already begins with the
// fully-qualified path — this is the one place spec §4.2's
// containerInvalidValueMessage collapsing rule is still needed, since
// errors originating outside the schema kernel (e.g. a crypto failure)
// arrive as plain strings rather than structured Issues.
func WrapMessage(target string, path Path, inner string) string {
	full := target
	if len(path) > 0 {
		full = target + "." + path.String()
	}
	if strings.HasPrefix(inner, full+":") || strings.HasPrefix(inner, full+".") {
		return inner
	}
	return fmt.Sprintf("%s: %s", full, inner)
}

// --- field/item specs used by StrictMap, SemiStrictMap and Tuple -------

// FieldSchema declares one key of a map schema. Decode is invoked only for
// keys present on the wire, with the entry's raw value and the path to
// report against; it is responsible for writing the decoded value into
// whatever the caller closed over.
type FieldSchema struct {
	Key      string
	Optional bool
	Decode   func(raw cbor.RawMessage, path Path) IssueList
}

// ItemSchema declares one positional element of a Tuple schema.
type ItemSchema struct {
	Decode func(raw cbor.RawMessage, path Path) IssueList
}

// decodeMapFields is shared by StrictMap and SemiStrictMap: it resolves
// declared keys against what is present on the wire, reports missing
// required keys, and decodes each present declared key's value.
func decodeMapFields(target string, m cbor.OrderedMap, fields []FieldSchema) IssueList {
	path := Path{target}
	declared := make(map[string]FieldSchema, len(fields))
	for _, f := range fields {
		declared[f.Key] = f
	}

	seen := make(map[string]bool, len(m.Pairs))
	var issues IssueList
	for _, p := range m.Pairs {
		var key string
		if err := cbor.Unmarshal(p.Key, &key); err != nil {
			issues = append(issues, Issue{path, "map key is not a text string"})
			continue
		}
		seen[key] = true
	}

	var missing []string
	for _, f := range fields {
		if !f.Optional && !seen[f.Key] {
			missing = append(missing, f.Key)
		}
	}
	if len(missing) > 0 {
		issues = append(issues, Issue{path, fmt.Sprintf("missing required key(s): %s", strings.Join(missing, ", "))})
	}

	for _, p := range m.Pairs {
		var key string
		if err := cbor.Unmarshal(p.Key, &key); err != nil {
			continue
		}
		f, ok := declared[key]
		if !ok {
			continue
		}
		issues = append(issues, f.Decode(p.Value, path.Child(key))...)
	}
	return issues
}

// StrictMap validates that raw is a CBOR map containing exactly the keys
// declared in fields (minus ones marked Optional) and no others. Each
// declared, present key's value is parsed through its field schema.
func StrictMap(target string, raw cbor.RawMessage, fields []FieldSchema) IssueList {
	path := Path{target}
	var m cbor.OrderedMap
	if err := cbor.Unmarshal(raw, &m); err != nil {
		return IssueList{{path, "Expected map, received " + cbor.TypeOf(raw)}}
	}

	declared := make(map[string]bool, len(fields))
	for _, f := range fields {
		declared[f.Key] = true
	}
	var issues IssueList
	for _, p := range m.Pairs {
		var key string
		if err := cbor.Unmarshal(p.Key, &key); err != nil {
			issues = append(issues, Issue{path, "map key is not a text string"})
			continue
		}
		if !declared[key] {
			issues = append(issues, Issue{path, fmt.Sprintf("unexpected key %q", key)})
		}
	}

	issues = append(issues, decodeMapFields(target, m, fields)...)
	return issues
}

// SemiStrictMap is StrictMap without the "no additional keys" rule: extra
// keys are retained verbatim on the wire (forward compatibility) rather
// than rejected. Used for DeviceKeyInfo and DeviceAuth.
func SemiStrictMap(target string, raw cbor.RawMessage, fields []FieldSchema) IssueList {
	path := Path{target}
	var m cbor.OrderedMap
	if err := cbor.Unmarshal(raw, &m); err != nil {
		return IssueList{{path, "Expected map, received " + cbor.TypeOf(raw)}}
	}
	return decodeMapFields(target, m, fields)
}

// Tuple validates that raw is a CBOR array of exactly len(items) elements,
// parsing each positionally through its ItemSchema.
func Tuple(target string, raw cbor.RawMessage, items []ItemSchema) IssueList {
	path := Path{target}
	var arr cbor.Array
	if err := cbor.Unmarshal(raw, &arr); err != nil {
		return IssueList{{path, "Expected array, received " + cbor.TypeOf(raw)}}
	}
	if arr.Len() != len(items) {
		return IssueList{{path, fmt.Sprintf("expected exactly %d element(s), received %d", len(items), arr.Len())}}
	}
	var issues IssueList
	for i, it := range items {
		issues = append(issues, it.Decode(arr.Items[i], path.Child(strconv.Itoa(i)))...)
	}
	return issues
}

// TaggedValue validates that raw is a CBOR tag with number tagNumber,
// parsing its content through inner.
func TaggedValue(target string, raw cbor.RawMessage, tagNumber uint64, inner func(content cbor.RawMessage, path Path) IssueList) IssueList {
	path := Path{target}
	content, err := cbor.ExpectTag(raw, tagNumber)
	if err != nil {
		return IssueList{{path, err.Error()}}
	}
	return inner(content, path)
}
