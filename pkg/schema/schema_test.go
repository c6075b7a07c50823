package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-mdoc/mdocverify/pkg/cbor"
)

func marshal(t *testing.T, v interface{}) cbor.RawMessage {
	t.Helper()
	data, err := cbor.Marshal(v)
	require.NoError(t, err)
	return data
}

func textField(dst *string) func(cbor.RawMessage, Path) IssueList {
	return func(r cbor.RawMessage, p Path) IssueList {
		if err := cbor.Unmarshal(r, dst); err != nil {
			return IssueList{{p, "Expected text, received " + cbor.TypeOf(r)}}
		}
		return nil
	}
}

func TestStrictMapRejectsMissingRequiredKey(t *testing.T) {
	raw := marshal(t, map[string]interface{}{"a": "x"})
	var a, b string
	issues := StrictMap("Thing", raw, []FieldSchema{
		{Key: "a", Decode: textField(&a)},
		{Key: "b", Decode: textField(&b)},
	})
	require.False(t, issues.OK())
	assert.Contains(t, issues.Error(), "missing required key(s): b")
	assert.Contains(t, issues.Error(), "Thing")
}

func TestStrictMapRejectsUnknownKey(t *testing.T) {
	raw := marshal(t, map[string]interface{}{"a": "x", "extra": 1})
	var a string
	issues := StrictMap("Thing", raw, []FieldSchema{
		{Key: "a", Decode: textField(&a)},
	})
	require.False(t, issues.OK())
	assert.Contains(t, issues.Error(), `unexpected key "extra"`)
}

func TestSemiStrictMapAllowsExtraKeys(t *testing.T) {
	raw := marshal(t, map[string]interface{}{"a": "x", "extra": 1})
	var a string
	issues := SemiStrictMap("Thing", raw, []FieldSchema{
		{Key: "a", Decode: textField(&a)},
	})
	assert.True(t, issues.OK())
	assert.Equal(t, "x", a)
}

func TestStrictMapOptionalKeyMayBeAbsent(t *testing.T) {
	raw := marshal(t, map[string]interface{}{"a": "x"})
	var a, b string
	issues := StrictMap("Thing", raw, []FieldSchema{
		{Key: "a", Decode: textField(&a)},
		{Key: "b", Optional: true, Decode: textField(&b)},
	})
	assert.True(t, issues.OK())
	assert.Equal(t, "", b)
}

func TestNestedPathHasNoDuplicatedSegments(t *testing.T) {
	raw := marshal(t, map[string]interface{}{
		"outer": map[string]interface{}{"inner": 123},
	})
	var inner string
	issues := StrictMap("Outer", raw, []FieldSchema{
		{Key: "outer", Decode: func(r cbor.RawMessage, p Path) IssueList {
			return StrictMap(p.String(), r, []FieldSchema{
				{Key: "inner", Decode: textField(&inner)},
			})
		}},
	})
	require.False(t, issues.OK())
	msg := issues.Error()
	assert.Contains(t, msg, "Outer.outer.inner")
	assert.NotContains(t, msg, "Outer.outer.Outer")
}

func TestTupleRejectsWrongLength(t *testing.T) {
	raw := marshal(t, []interface{}{1, 2})
	issues := Tuple("Pair", raw, []ItemSchema{
		{Decode: func(cbor.RawMessage, Path) IssueList { return nil }},
	})
	require.False(t, issues.OK())
	assert.Contains(t, issues.Error(), "expected exactly 1 element(s), received 2")
}

func TestTaggedValueRequiresMatchingTagNumber(t *testing.T) {
	tagged, err := cbor.EncodeTag(24, marshal(t, "hi"))
	require.NoError(t, err)

	issues := TaggedValue("Val", tagged, 18, func(content cbor.RawMessage, p Path) IssueList {
		return nil
	})
	assert.False(t, issues.OK())
}
