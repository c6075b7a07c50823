// Package cbor adapts github.com/fxamacker/cbor/v2 to the needs of the mdoc
// verification core: deterministic encoding on the write path, full tag
// fidelity on the read path, and order-preserving map decoding for the
// schema kernel in pkg/schema.
package cbor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Re-exported so callers of this package never need to import
// fxamacker/cbor/v2 directly; it is the one CBOR codec the core depends on.
type (
	RawMessage = cbor.RawMessage
	RawTag     = cbor.RawTag
	Tag        = cbor.Tag
)

var (
	// encMode produces deterministic (canonical) CBOR, including sorted
	// map keys; OrderedMap and Array emit their own headers and raw
	// entries, so their stored order survives encoding. encMode is used
	// for leaf values and Sig_structure encoding where canonical,
	// shortest-form output is required for interop.
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor: building canonical encode mode: %v", err))
	}
	encMode = m

	dopts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		TimeTag:     cbor.DecTagIgnored,
		IndefLength: cbor.IndefLengthForbidden,
	}
	d, err := dopts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor: building decode mode: %v", err))
	}
	decMode = d
}

// Marshal encodes v using deterministic (canonical) CBOR.
func Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v, forbidding indefinite-length items so that
// every document the core accepts has one unambiguous byte representation.
func Unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}

// NewDecoder returns a streaming decoder over r using the core's strict
// decode mode. Repeated calls to Decode each consume exactly one top-level
// CBOR data item, which OrderedMap relies on to walk map entries in wire
// order (see ordered_map.go).
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// head describes the initial bytes of a CBOR data item.
type head struct {
	major     byte
	info      byte
	value     uint64
	headerLen int
}

// parseHead parses the CBOR major type/length header at the start of data.
// It supports only definite-length items (additional info 0-27); the mdoc
// wire format never uses indefinite-length maps or arrays.
func parseHead(data []byte) (head, error) {
	if len(data) == 0 {
		return head{}, fmt.Errorf("cbor: empty input")
	}
	b := data[0]
	major := b >> 5
	info := b & 0x1f

	switch {
	case info < 24:
		return head{major, info, uint64(info), 1}, nil
	case info == 24:
		if len(data) < 2 {
			return head{}, fmt.Errorf("cbor: truncated 1-byte length header")
		}
		return head{major, info, uint64(data[1]), 2}, nil
	case info == 25:
		if len(data) < 3 {
			return head{}, fmt.Errorf("cbor: truncated 2-byte length header")
		}
		return head{major, info, uint64(binary.BigEndian.Uint16(data[1:3])), 3}, nil
	case info == 26:
		if len(data) < 5 {
			return head{}, fmt.Errorf("cbor: truncated 4-byte length header")
		}
		return head{major, info, uint64(binary.BigEndian.Uint32(data[1:5])), 5}, nil
	case info == 27:
		if len(data) < 9 {
			return head{}, fmt.Errorf("cbor: truncated 8-byte length header")
		}
		return head{major, info, binary.BigEndian.Uint64(data[1:9]), 9}, nil
	case info == 31:
		return head{}, fmt.Errorf("cbor: indefinite-length items are not supported")
	default:
		return head{}, fmt.Errorf("cbor: reserved additional info %d", info)
	}
}

// MajorMap is the CBOR major type for maps (5).
const MajorMap = 5

// MajorTag is the CBOR major type for tags (6).
const MajorTag = 6

// MajorByteString is the CBOR major type for byte strings (2).
const MajorByteString = 2

// MajorArray is the CBOR major type for arrays (4).
const MajorArray = 4

// TypeOf returns a human label for the outermost CBOR major type encoded in
// data, used by schema diagnostics (e.g. "map", "array", "text string").
func TypeOf(data []byte) string {
	h, err := parseHead(data)
	if err != nil {
		return "invalid"
	}
	switch h.major {
	case 0:
		return "unsigned integer"
	case 1:
		return "negative integer"
	case 2:
		return "byte string"
	case 3:
		return "text string"
	case 4:
		return "array"
	case 5:
		return "map"
	case 6:
		return "tag"
	case 7:
		return "simple/float"
	default:
		return "unknown"
	}
}

// splitItems walks a concatenated run of n complete CBOR data items
// starting at the beginning of data and returns their raw encodings. It is
// the primitive both OrderedMap and Array use to preserve wire order
// without re-interpreting item contents.
func splitItems(data []byte, n uint64) ([]RawMessage, error) {
	dec := NewDecoder(bytes.NewReader(data))
	items := make([]RawMessage, 0, n)
	for i := uint64(0); i < n; i++ {
		var raw RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("cbor: decoding item %d of %d: %w", i, n, err)
		}
		items = append(items, raw)
	}
	return items, nil
}
