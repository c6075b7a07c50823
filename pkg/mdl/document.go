// Package mdl is the ISO/IEC 18013-5 mobile document domain layer: typed
// views over Document, IssuerSigned, MobileSecurityObject, DeviceSigned and
// the issuer/device verification algorithms built on top of them (spec
// §2.3, §2.6, §2.7).
package mdl

import (
	"fmt"
	"strconv"

	"github.com/go-mdoc/mdocverify/pkg/cbor"
	"github.com/go-mdoc/mdocverify/pkg/schema"
)

// IssuerSignedItem is the decoded content of one Tag(24, bytes) entry
// within IssuerNameSpaces.
type IssuerSignedItem struct {
	DigestID          uint64
	Random            []byte
	ElementIdentifier string
	// ElementValue is kept as raw CBOR: the data element's value may be
	// any CBOR type (text, tagged date, nested map), and this layer
	// never coerces it — callers that want a Go value decode it with
	// cbor.Unmarshal into whatever shape they expect.
	ElementValue cbor.RawMessage
}

// decodeIssuerSignedItemFields parses the strict map inside a decoded
// Tag-24 IssuerSignedItem. Used by verifyValueDigests, which decodes each
// item lazily (spec §4.6.1 — decode failures there are fatal single-cause
// errors, not schema issues collected up front).
func decodeIssuerSignedItemFields(raw cbor.RawMessage, path schema.Path) (IssuerSignedItem, schema.IssueList) {
	var item IssuerSignedItem
	fields := []schema.FieldSchema{
		{Key: "digestID", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			if err := cbor.Unmarshal(r, &item.DigestID); err != nil {
				return schema.IssueList{{Path: p, Message: "Expected uint, received " + cbor.TypeOf(r)}}
			}
			return nil
		}},
		{Key: "random", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			if err := cbor.Unmarshal(r, &item.Random); err != nil {
				return schema.IssueList{{Path: p, Message: "Expected bytes, received " + cbor.TypeOf(r)}}
			}
			if len(item.Random) < 16 {
				return schema.IssueList{{Path: p, Message: fmt.Sprintf("random must be at least 16 bytes, got %d", len(item.Random))}}
			}
			return nil
		}},
		{Key: "elementIdentifier", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			if err := cbor.Unmarshal(r, &item.ElementIdentifier); err != nil {
				return schema.IssueList{{Path: p, Message: "Expected text, received " + cbor.TypeOf(r)}}
			}
			if item.ElementIdentifier == "" {
				return schema.IssueList{{Path: p, Message: "must not be empty"}}
			}
			return nil
		}},
		{Key: "elementValue", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			item.ElementValue = append(cbor.RawMessage{}, r...)
			return nil
		}},
	}
	issues := schema.StrictMap(path.String(), raw, fields)
	return item, issues
}

// NameSpaceItems is the ordered (namespace, Tag-24 item sequence) pair
// IssuerNameSpaces preserves in wire order.
type NameSpaceItems struct {
	NameSpace string
	// Items holds each entry's raw Tag(24, bytes) CBOR, verbatim — the
	// exact bytes digest verification hashes (spec §4.6.1).
	Items []cbor.RawMessage
}

// IssuerNameSpaces is NameSpace -> ordered sequence of Tag(24, bytes),
// preserving both namespace and item wire order (spec §3, §5).
type IssuerNameSpaces struct {
	Entries []NameSpaceItems
}

// Get returns the Tag-24 item sequence for nameSpace, if present.
func (ns IssuerNameSpaces) Get(nameSpace string) ([]cbor.RawMessage, bool) {
	for _, e := range ns.Entries {
		if e.NameSpace == nameSpace {
			return e.Items, true
		}
	}
	return nil, false
}

func decodeIssuerNameSpaces(raw cbor.RawMessage, path schema.Path) (IssuerNameSpaces, schema.IssueList) {
	var m cbor.OrderedMap
	if err := cbor.Unmarshal(raw, &m); err != nil {
		return IssuerNameSpaces{}, schema.IssueList{{Path: path, Message: "Expected map, received " + cbor.TypeOf(raw)}}
	}

	var issues schema.IssueList
	entries := make([]NameSpaceItems, 0, len(m.Pairs))
	for _, pair := range m.Pairs {
		var ns string
		if err := cbor.Unmarshal(pair.Key, &ns); err != nil {
			issues = append(issues, schema.Issue{Path: path, Message: "namespace key is not a text string"})
			continue
		}
		nsPath := path.Child(ns)

		var arr cbor.Array
		if err := cbor.Unmarshal(pair.Value, &arr); err != nil {
			issues = append(issues, schema.Issue{Path: nsPath, Message: "Expected array, received " + cbor.TypeOf(pair.Value)})
			continue
		}

		items := make([]cbor.RawMessage, 0, len(arr.Items))
		for i, raw24 := range arr.Items {
			itemPath := nsPath.Child(strconv.Itoa(i))
			if _, err := cbor.ExpectTag(raw24, cbor.TagEmbeddedCBOR); err != nil {
				issues = append(issues, schema.Issue{Path: itemPath, Message: err.Error()})
				continue
			}
			items = append(items, raw24)
		}
		entries = append(entries, NameSpaceItems{NameSpace: ns, Items: items})
	}
	return IssuerNameSpaces{Entries: entries}, issues
}

// IssuerSigned is `{ nameSpaces: IssuerNameSpaces, issuerAuth: Tag(18,
// Sign1Tuple) }` (spec §3). IssuerAuth is kept as raw CBOR — the COSE
// layer (pkg/crypto) owns Sign1 decoding.
type IssuerSigned struct {
	NameSpaces IssuerNameSpaces
	IssuerAuth cbor.RawMessage
}

// DecodeIssuerSigned parses raw as an IssuerSigned structure. path is the
// dotted route to raw itself, so a caller decoding IssuerSigned nested
// inside a Document reports paths rooted at "Document.issuerSigned...."
// rather than a bare "IssuerSigned....".
func DecodeIssuerSigned(raw cbor.RawMessage, path schema.Path) (IssuerSigned, schema.IssueList) {
	var result IssuerSigned
	fields := []schema.FieldSchema{
		{Key: "nameSpaces", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			v, issues := decodeIssuerNameSpaces(r, p)
			result.NameSpaces = v
			return issues
		}},
		{Key: "issuerAuth", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			if _, err := cbor.ExpectTag(r, cbor.TagSign1); err != nil {
				return schema.IssueList{{Path: p, Message: err.Error()}}
			}
			result.IssuerAuth = append(cbor.RawMessage{}, r...)
			return nil
		}},
	}
	issues := schema.StrictMap(path.String(), raw, fields)
	return result, issues
}

// Document is `{ docType: Text, issuerSigned: IssuerSigned, deviceSigned:
// DeviceSigned }` (spec §3). deviceSigned is schema-optional: whether it
// is required is a verifier-level concern (the device verifier demands it,
// the issuer-only verifier never looks at it).
type Document struct {
	DocType         string
	IssuerSigned    IssuerSigned
	DeviceSigned    DeviceSigned
	HasDeviceSigned bool
}

// DecodeDocument parses raw as a Document.
func DecodeDocument(raw cbor.RawMessage) (Document, schema.IssueList) {
	var doc Document
	fields := []schema.FieldSchema{
		{Key: "docType", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			if err := cbor.Unmarshal(r, &doc.DocType); err != nil {
				return schema.IssueList{{Path: p, Message: "Expected text, received " + cbor.TypeOf(r)}}
			}
			return nil
		}},
		{Key: "issuerSigned", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			v, issues := DecodeIssuerSigned(r, p)
			doc.IssuerSigned = v
			return issues
		}},
		{Key: "deviceSigned", Optional: true, Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			v, issues := decodeDeviceSigned(r, p)
			doc.DeviceSigned = v
			doc.HasDeviceSigned = true
			return issues
		}},
	}
	issues := schema.StrictMap("Document", raw, fields)
	return doc, issues
}
