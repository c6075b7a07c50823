package cbor

import "fmt"

// Pair is one key/value entry of an OrderedMap, still in raw (undecoded)
// CBOR form so the schema kernel can decide how to interpret each value.
type Pair struct {
	Key   RawMessage
	Value RawMessage
}

// OrderedMap decodes a CBOR map while preserving the wire order of its
// entries. Go's built-in map type has no iteration order guarantee, which
// the schema kernel's path-aware diagnostics depend on (errors are reported
// in the order fields appear on the wire, not in randomized map order).
type OrderedMap struct {
	Pairs []Pair
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (m *OrderedMap) UnmarshalCBOR(data []byte) error {
	h, err := parseHead(data)
	if err != nil {
		return fmt.Errorf("cbor: ordered map: %w", err)
	}
	if h.major != MajorMap {
		return fmt.Errorf("cbor: ordered map: expected map, got %s", TypeOf(data))
	}

	rest := data[h.headerLen:]
	items, err := splitItems(rest, h.value*2)
	if err != nil {
		return fmt.Errorf("cbor: ordered map: %w", err)
	}

	pairs := make([]Pair, 0, h.value)
	for i := 0; i < len(items); i += 2 {
		pairs = append(pairs, Pair{Key: items[i], Value: items[i+1]})
	}
	m.Pairs = pairs
	return nil
}

// MarshalCBOR implements cbor.Marshaler, re-emitting entries in their
// stored order (deterministic encoding is only required relative to that
// order, not relative to key sort order).
func (m OrderedMap) MarshalCBOR() ([]byte, error) {
	// Re-encoded field-by-field so the wire order of m.Pairs is preserved
	// exactly; a Go map type would re-sort (or randomize) on replay.
	buf := []byte{}
	head, err := mapHeader(uint64(len(m.Pairs)))
	if err != nil {
		return nil, err
	}
	buf = append(buf, head...)
	for _, p := range m.Pairs {
		buf = append(buf, p.Key...)
		buf = append(buf, p.Value...)
	}
	return buf, nil
}

// Get returns the raw value for the first pair whose key, once decoded as a
// text string, equals name. ok is false if no such key is present.
func (m OrderedMap) Get(name string) (RawMessage, bool) {
	for _, p := range m.Pairs {
		var k string
		if err := Unmarshal(p.Key, &k); err != nil {
			continue
		}
		if k == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Keys returns the text-string keys of the map in wire order. Non-text-string
// keys are rendered with fmt.Sprintf("%v") after best-effort decode.
func (m OrderedMap) Keys() []string {
	keys := make([]string, 0, len(m.Pairs))
	for _, p := range m.Pairs {
		var k string
		if err := Unmarshal(p.Key, &k); err == nil {
			keys = append(keys, k)
			continue
		}
		var any interface{}
		if err := Unmarshal(p.Key, &any); err == nil {
			keys = append(keys, fmt.Sprintf("%v", any))
			continue
		}
		keys = append(keys, "?")
	}
	return keys
}

// Len reports the number of entries.
func (m OrderedMap) Len() int { return len(m.Pairs) }

// mapHeader encodes the CBOR major-type-5 header for a map of n entries.
func mapHeader(n uint64) ([]byte, error) {
	return majorHeader(MajorMap, n)
}

func majorHeader(major byte, n uint64) ([]byte, error) {
	switch {
	case n < 24:
		return []byte{major<<5 | byte(n)}, nil
	case n <= 0xff:
		return []byte{major<<5 | 24, byte(n)}, nil
	case n <= 0xffff:
		return []byte{major<<5 | 25, byte(n >> 8), byte(n)}, nil
	case n <= 0xffffffff:
		return []byte{
			major<<5 | 26,
			byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n),
		}, nil
	default:
		return []byte{
			major<<5 | 27,
			byte(n >> 56), byte(n >> 48), byte(n >> 40), byte(n >> 32),
			byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n),
		}, nil
	}
}
