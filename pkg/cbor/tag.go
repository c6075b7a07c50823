package cbor

import "fmt"

// Tag numbers the mdoc core must preserve as distinct tagged values rather
// than collapsing into their inner primitive (spec §2.1, §4.1).
const (
	TagDateTime   = 0    // RFC 3339 date-time string
	TagFullDate   = 1004 // RFC 3339 full-date string
	TagMac0       = 17   // COSE_Mac0
	TagSign1      = 18   // COSE_Sign1
	TagEmbeddedCBOR = 24 // byte string containing CBOR
)

// DecodeRawTag decodes data as a CBOR tag, returning its number and the raw
// (undecoded) content so the caller's inner schema controls interpretation.
func DecodeRawTag(data []byte) (RawTag, error) {
	var t RawTag
	if err := Unmarshal(data, &t); err != nil {
		return RawTag{}, fmt.Errorf("cbor: decoding tag: %w", err)
	}
	return t, nil
}

// ExpectTag decodes data as a CBOR tag and verifies its number is exactly
// want, returning the inner content bytes on success.
func ExpectTag(data []byte, want uint64) (RawMessage, error) {
	t, err := DecodeRawTag(data)
	if err != nil {
		return nil, err
	}
	if t.Number != want {
		return nil, fmt.Errorf("cbor: expected tag %d, got tag %d", want, t.Number)
	}
	return t.Content, nil
}

// EncodeTag wraps content (already-encoded CBOR) in a tag header for number.
func EncodeTag(number uint64, content RawMessage) (RawMessage, error) {
	raw := RawTag{Number: number, Content: content}
	return Marshal(raw)
}

// DecodeEmbeddedCBOR decodes data as Tag(24, bytes) and returns the inner
// byte string — the bytes the caller must then decode again as a nested
// CBOR item. This two-step decode is what pins the exact bytes a digest or
// signature is computed over (spec glossary: "Tag 24").
func DecodeEmbeddedCBOR(data []byte) ([]byte, error) {
	content, err := ExpectTag(data, TagEmbeddedCBOR)
	if err != nil {
		return nil, err
	}
	var inner []byte
	if err := Unmarshal(content, &inner); err != nil {
		return nil, fmt.Errorf("cbor: tag 24 content is not a byte string: %w", err)
	}
	return inner, nil
}

// EncodeEmbeddedCBOR encodes innerCBOR (already-encoded CBOR bytes) as
// Tag(24, bstr).
func EncodeEmbeddedCBOR(innerCBOR []byte) (RawMessage, error) {
	content, err := Marshal(innerCBOR)
	if err != nil {
		return nil, err
	}
	return EncodeTag(TagEmbeddedCBOR, content)
}
