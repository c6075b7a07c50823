package mdl

import (
	"fmt"
	"strconv"

	"github.com/go-mdoc/mdocverify/pkg/cbor"
	"github.com/go-mdoc/mdocverify/pkg/digest"
	"github.com/go-mdoc/mdocverify/pkg/schema"
)

// ValueDigests is NameSpace -> (digestID -> digest bytes), the MSO's
// manifest of expected per-element digests (spec §3).
type ValueDigests map[string]map[uint64][]byte

// Get looks up the expected digest for (nameSpace, digestID).
func (v ValueDigests) Get(nameSpace string, digestID uint64) ([]byte, bool) {
	ns, ok := v[nameSpace]
	if !ok {
		return nil, false
	}
	d, ok := ns[digestID]
	return d, ok
}

func decodeValueDigests(raw cbor.RawMessage, path schema.Path) (ValueDigests, schema.IssueList) {
	var m cbor.OrderedMap
	if err := cbor.Unmarshal(raw, &m); err != nil {
		return nil, schema.IssueList{{Path: path, Message: "Expected map, received " + cbor.TypeOf(raw)}}
	}

	var issues schema.IssueList
	result := make(ValueDigests, len(m.Pairs))
	for _, pair := range m.Pairs {
		var ns string
		if err := cbor.Unmarshal(pair.Key, &ns); err != nil {
			issues = append(issues, schema.Issue{Path: path, Message: "namespace key is not a text string"})
			continue
		}
		nsPath := path.Child(ns)

		var digests cbor.OrderedMap
		if err := cbor.Unmarshal(pair.Value, &digests); err != nil {
			issues = append(issues, schema.Issue{Path: nsPath, Message: "Expected map, received " + cbor.TypeOf(pair.Value)})
			continue
		}

		inner := make(map[uint64][]byte, len(digests.Pairs))
		for _, dp := range digests.Pairs {
			var id uint64
			if err := cbor.Unmarshal(dp.Key, &id); err != nil {
				issues = append(issues, schema.Issue{Path: nsPath, Message: "digestID key is not a uint"})
				continue
			}
			var b []byte
			if err := cbor.Unmarshal(dp.Value, &b); err != nil {
				issues = append(issues, schema.Issue{Path: nsPath.Child(strconv.FormatUint(id, 10)), Message: "Expected bytes, received " + cbor.TypeOf(dp.Value)})
				continue
			}
			inner[id] = b
		}
		result[ns] = inner
	}
	return result, issues
}

// DeviceKeyInfo is `{ deviceKey: COSE_Key, … }` — a semi-strict map, since
// issuers may attach keyAuthorizations/keyInfo entries this layer ignores
// (spec §4.2).
type DeviceKeyInfo struct {
	// DeviceKey is the decoded COSE_Key, label-keyed as RFC 9053 §7
	// mandates (int keys: 1=kty, -1=crv, -2=x, -3=y).
	DeviceKey map[int64]interface{}
}

func decodeDeviceKeyInfo(raw cbor.RawMessage, path schema.Path) (DeviceKeyInfo, schema.IssueList) {
	var info DeviceKeyInfo
	fields := []schema.FieldSchema{
		{Key: "deviceKey", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			var m map[int64]interface{}
			if err := cbor.Unmarshal(r, &m); err != nil {
				return schema.IssueList{{Path: p, Message: "Expected COSE_Key map, received " + cbor.TypeOf(r)}}
			}
			info.DeviceKey = m
			return nil
		}},
	}
	issues := schema.SemiStrictMap(path.String(), raw, fields)
	return info, issues
}

// ValidityInfo is `{ signed, validFrom, validUntil, expectedUpdate? }`
// (spec §3). The three required-by-spec dates are schema-optional here:
// per §7's propagation policy, "missing validFrom" is a domain invariant
// (ValidFromMissing/ValidUntilMissing), not a generic schema issue, so
// verifyValidityInfo (§4.6.2) is the layer that reports it.
type ValidityInfo struct {
	Signed         *cbor.DateTime
	ValidFrom      *cbor.DateTime
	ValidUntil     *cbor.DateTime
	ExpectedUpdate *cbor.DateTime
}

func decodeValidityInfo(raw cbor.RawMessage, path schema.Path) (ValidityInfo, schema.IssueList) {
	var info ValidityInfo
	dateField := func(dst **cbor.DateTime) func(cbor.RawMessage, schema.Path) schema.IssueList {
		return func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			var dt cbor.DateTime
			if err := cbor.Unmarshal(r, &dt); err != nil {
				return schema.IssueList{{Path: p, Message: err.Error()}}
			}
			*dst = &dt
			return nil
		}
	}
	fields := []schema.FieldSchema{
		{Key: "signed", Optional: true, Decode: dateField(&info.Signed)},
		{Key: "validFrom", Optional: true, Decode: dateField(&info.ValidFrom)},
		{Key: "validUntil", Optional: true, Decode: dateField(&info.ValidUntil)},
		{Key: "expectedUpdate", Optional: true, Decode: dateField(&info.ExpectedUpdate)},
	}
	issues := schema.StrictMap(path.String(), raw, fields)

	if issues.OK() && info.Signed != nil && info.ValidFrom != nil && info.ValidUntil != nil {
		if info.Signed.Time.After(info.ValidFrom.Time) {
			issues = append(issues, schema.Issue{Path: path, Message: "signed must be <= validFrom"})
		} else if info.ValidFrom.Time.After(info.ValidUntil.Time) {
			issues = append(issues, schema.Issue{Path: path, Message: "validFrom must be <= validUntil"})
		}
	}
	return info, issues
}

// MobileSecurityObject is the issuer's signed manifest (spec §3): version,
// digest algorithm, expected digests, device key, docType and validity
// window. It is carried as the payload of IssuerAuth, itself boxed in
// Tag 24.
type MobileSecurityObject struct {
	Version         string
	DigestAlgorithm digest.Algorithm
	ValueDigests    ValueDigests
	DeviceKeyInfo   DeviceKeyInfo
	DocType         string
	ValidityInfo    ValidityInfo
}

// DecodeMobileSecurityObject parses raw as a MobileSecurityObject.
func DecodeMobileSecurityObject(raw cbor.RawMessage) (MobileSecurityObject, schema.IssueList) {
	var mso MobileSecurityObject
	fields := []schema.FieldSchema{
		{Key: "version", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			if err := cbor.Unmarshal(r, &mso.Version); err != nil {
				return schema.IssueList{{Path: p, Message: "Expected text, received " + cbor.TypeOf(r)}}
			}
			if mso.Version != "1.0" {
				return schema.IssueList{{Path: p, Message: fmt.Sprintf("unsupported version %q", mso.Version)}}
			}
			return nil
		}},
		{Key: "digestAlgorithm", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			var s string
			if err := cbor.Unmarshal(r, &s); err != nil {
				return schema.IssueList{{Path: p, Message: "Expected text, received " + cbor.TypeOf(r)}}
			}
			mso.DigestAlgorithm = digest.Algorithm(s)
			if !mso.DigestAlgorithm.Valid() {
				return schema.IssueList{{Path: p, Message: fmt.Sprintf("unsupported digest algorithm %q", s)}}
			}
			return nil
		}},
		{Key: "valueDigests", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			v, issues := decodeValueDigests(r, p)
			mso.ValueDigests = v
			return issues
		}},
		{Key: "deviceKeyInfo", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			v, issues := decodeDeviceKeyInfo(r, p)
			mso.DeviceKeyInfo = v
			return issues
		}},
		{Key: "docType", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			if err := cbor.Unmarshal(r, &mso.DocType); err != nil {
				return schema.IssueList{{Path: p, Message: "Expected text, received " + cbor.TypeOf(r)}}
			}
			return nil
		}},
		{Key: "validityInfo", Decode: func(r cbor.RawMessage, p schema.Path) schema.IssueList {
			v, issues := decodeValidityInfo(r, p)
			mso.ValidityInfo = v
			return issues
		}},
	}
	issues := schema.StrictMap("MobileSecurityObject", raw, fields)
	return mso, issues
}
