package cbor

import "fmt"

// Array decodes a CBOR array while keeping each element in raw form, for the
// same reason OrderedMap keeps map entries raw: the schema kernel decides
// how (and in which order) to parse each element, and diagnostics must cite
// the element's index.
type Array struct {
	Items []RawMessage
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (a *Array) UnmarshalCBOR(data []byte) error {
	h, err := parseHead(data)
	if err != nil {
		return fmt.Errorf("cbor: array: %w", err)
	}
	if h.major != MajorArray {
		return fmt.Errorf("cbor: array: expected array, got %s", TypeOf(data))
	}
	items, err := splitItems(data[h.headerLen:], h.value)
	if err != nil {
		return fmt.Errorf("cbor: array: %w", err)
	}
	a.Items = items
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (a Array) MarshalCBOR() ([]byte, error) {
	buf, err := majorHeader(MajorArray, uint64(len(a.Items)))
	if err != nil {
		return nil, err
	}
	for _, item := range a.Items {
		buf = append(buf, item...)
	}
	return buf, nil
}

// Len reports the number of elements.
func (a Array) Len() int { return len(a.Items) }
