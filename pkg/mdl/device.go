package mdl

import (
	"github.com/go-mdoc/mdocverify/pkg/cbor"
	"github.com/go-mdoc/mdocverify/pkg/schema"
)

// DeviceAuth is `{ deviceSignature: Tag(18, Sign1Tuple) }` — the only
// accepted form — or `{ deviceMac: … }`, which decodes successfully but is
// always rejected at the verifier layer (spec §3, §4.7 step 5; Non-goals).
type DeviceAuth struct {
	// DeviceSignature holds the raw Tag(18, Sign1Tuple) bytes, nil if
	// the key was absent.
	DeviceSignature cbor.RawMessage
	HasDeviceMac    bool
}

func decodeDeviceAuth(raw cbor.RawMessage, path schema.Path) (DeviceAuth, schema.IssueList) {
	var da DeviceAuth
	fields := []schema.FieldSchema{
		{Key: "deviceSignature", Optional: true, Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			if _, err := cbor.ExpectTag(r, cbor.TagSign1); err != nil {
				return schema.IssueList{{Path: p, Message: err.Error()}}
			}
			da.DeviceSignature = append(cbor.RawMessage{}, r...)
			return nil
		}},
		{Key: "deviceMac", Optional: true, Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			da.HasDeviceMac = true
			return nil
		}},
	}
	issues := schema.SemiStrictMap(path.String(), raw, fields)
	return da, issues
}

// DeviceSigned is `{ nameSpaces: Tag(24, CBOR(map<NameSpace, map<Elem,
// any>>)), deviceAuth: DeviceAuth }` (spec §3). NameSpaces is kept as the
// verbatim Tag-24 bytes: DeviceAuthentication reconstruction (§4.7 step 6)
// requires the original wire bytes, byte-for-byte, not a re-encoding.
type DeviceSigned struct {
	NameSpaces cbor.RawMessage
	DeviceAuth DeviceAuth
}

func decodeDeviceSigned(raw cbor.RawMessage, path schema.Path) (DeviceSigned, schema.IssueList) {
	var ds DeviceSigned
	fields := []schema.FieldSchema{
		{Key: "nameSpaces", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			if _, err := cbor.ExpectTag(r, cbor.TagEmbeddedCBOR); err != nil {
				return schema.IssueList{{Path: p, Message: err.Error()}}
			}
			ds.NameSpaces = append(cbor.RawMessage{}, r...)
			return nil
		}},
		{Key: "deviceAuth", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			v, issues := decodeDeviceAuth(r, p)
			ds.DeviceAuth = v
			return issues
		}},
	}
	issues := schema.StrictMap(path.String(), raw, fields)
	return ds, issues
}

// SessionTranscript is the opaque 3-tuple `[DeviceEngagementBytes | null,
// EReaderKeyBytes | null, Handover]` (spec §3, glossary). The device
// verifier passes it through verbatim and never interprets its elements.
type SessionTranscript struct {
	// Raw holds the already-CBOR-encoded 3-tuple, as produced by the
	// caller's session-establishment logic — this layer treats it as an
	// opaque byte string.
	Raw cbor.RawMessage
}
