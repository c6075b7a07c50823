package mdl

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-mdoc/mdocverify/pkg/cbor"
	xcrypto "github.com/go-mdoc/mdocverify/pkg/crypto"
	"github.com/go-mdoc/mdocverify/pkg/digest"
	"github.com/go-mdoc/mdocverify/pkg/mdlerrors"
	"github.com/go-mdoc/mdocverify/pkg/schema"
)

// DefaultClockSkew is the tolerance §4.6.2 applies to validity-window
// checks when a caller does not specify one.
const DefaultClockSkew = 60 * time.Second

// IssuerVerifyResult is what verifyIssuerSigned returns on success (spec
// §6.2): the validated MSO and the issuer namespaces it was checked
// against.
type IssuerVerifyResult struct {
	MSO        MobileSecurityObject
	NameSpaces IssuerNameSpaces
}

// IssuerVerifier runs the issuer-verification algorithm of spec §4.6. The
// zero value is usable; Chain defaults to a validator that accepts
// self-signed leaves (the reference suite's default, spec §4.5, §9).
type IssuerVerifier struct {
	Chain *xcrypto.ChainValidator
}

// NewIssuerVerifier returns an IssuerVerifier using chain for certificate
// trust decisions, or a self-signed-accepting default if chain is nil.
func NewIssuerVerifier(chain *xcrypto.ChainValidator) *IssuerVerifier {
	if chain == nil {
		chain = xcrypto.NewChainValidator()
	}
	return &IssuerVerifier{Chain: chain}
}

// VerifyIssuerSigned runs spec §4.6's ten-step algorithm against the raw
// CBOR bytes of an IssuerSigned structure.
func (v *IssuerVerifier) VerifyIssuerSigned(raw cbor.RawMessage, now time.Time, clockSkew time.Duration) (*IssuerVerifyResult, error) {
	// Step 1: the two required keys get their own domain codes rather
	// than a generic schema issue (spec §4.6 step 1, §7 propagation
	// policy), so presence is checked before the full decode runs.
	var top cbor.OrderedMap
	if err := cbor.Unmarshal(raw, &top); err != nil {
		return nil, mdlerrors.New(mdlerrors.CborDecodingError, err)
	}
	if _, ok := top.Get("nameSpaces"); !ok {
		return nil, mdlerrors.New(mdlerrors.IssuerNameSpacesMissing, nil)
	}
	if _, ok := top.Get("issuerAuth"); !ok {
		return nil, mdlerrors.New(mdlerrors.IssuerAuthMissing, nil)
	}

	issuerSigned, issues := DecodeIssuerSigned(raw, schema.Path{}.Child("IssuerSigned"))
	if !issues.OK() {
		return nil, mdlerrors.New(mdlerrors.CborValidationError, issues)
	}
	return v.verifyDecoded(issuerSigned, now, clockSkew)
}

// VerifyIssuerSignedDecoded runs the same algorithm as VerifyIssuerSigned
// (steps 2-10) against an IssuerSigned value the caller already decoded —
// e.g. as part of decoding a full Document, where step 1's presence
// checks were already performed by DecodeDocument.
func (v *IssuerVerifier) VerifyIssuerSignedDecoded(issuerSigned IssuerSigned, now time.Time, clockSkew time.Duration) (*IssuerVerifyResult, error) {
	return v.verifyDecoded(issuerSigned, now, clockSkew)
}

func (v *IssuerVerifier) verifyDecoded(issuerSigned IssuerSigned, now time.Time, clockSkew time.Duration) (*IssuerVerifyResult, error) {
	// Step 2: issuerAuth as Tag(18, Sign1Tuple).
	sign1, err := xcrypto.NewSign1FromTaggedCBOR(issuerSigned.IssuerAuth)
	if err != nil {
		return nil, err
	}

	// Step 3: x5chain (protected takes precedence).
	chainDER, err := sign1.X5Chain()
	if err != nil {
		return nil, mdlerrors.New(mdlerrors.X5ChainVerificationFailed, err)
	}
	chain, err := xcrypto.ParseChain(chainDER)
	if err != nil {
		return nil, mdlerrors.New(mdlerrors.X5ChainVerificationFailed, err)
	}

	// Step 4: chain validation at now ± clockSkew. A nil Chain falls back
	// to the self-signed-accepting default, and clockSkew replaces the
	// validator's own ClockSkew for this call.
	chainValidator := xcrypto.NewChainValidator()
	if v.Chain != nil {
		*chainValidator = *v.Chain
	}
	chainValidator.ClockSkew = clockSkew
	if err := chainValidator.ValidateChain(chain, now); err != nil {
		return nil, err
	}

	// Step 5: leaf public key, algorithm cross-check.
	leafKey := xcrypto.SubjectPublicKey(chain[0])
	alg, err := sign1.Algorithm()
	if err != nil {
		return nil, mdlerrors.New(mdlerrors.IssuerAuthAlgorithmMismatch, err)
	}
	if err := xcrypto.AlgorithmMatchesKey(alg, leafKey); err != nil {
		return nil, mdlerrors.New(mdlerrors.IssuerAuthAlgorithmMismatch, err)
	}

	// Step 6: verify the Sign1 signature; payload is the embedded MSO
	// bytes carried in the tuple (not detached).
	if err := sign1.Verify(leafKey, nil); err != nil {
		return nil, err
	}

	// Step 7: payload is Tag(24, bytes) whose content is the MSO.
	msoBytes, err := cbor.DecodeEmbeddedCBOR(sign1.Payload())
	if err != nil {
		return nil, mdlerrors.New(mdlerrors.IssuerAuthPayloadDecodingFailed, err)
	}
	mso, issues := DecodeMobileSecurityObject(msoBytes)
	if !issues.OK() {
		return nil, mdlerrors.New(mdlerrors.MobileSecurityObjectInvalid, issues)
	}

	// Step 8: digest verification.
	if err := verifyValueDigests(issuerSigned.NameSpaces, mso.ValueDigests, mso.DigestAlgorithm); err != nil {
		return nil, err
	}

	// Step 9: validity window.
	if err := verifyValidityInfo(mso.ValidityInfo, now, clockSkew); err != nil {
		return nil, err
	}

	// Step 10.
	return &IssuerVerifyResult{MSO: mso, NameSpaces: issuerSigned.NameSpaces}, nil
}

// verifyValueDigests implements spec §4.6.1. Per-item decode failures are
// fatal (CborDecodingError/CborValidationError, single-cause); missing or
// mismatched digests instead accumulate into an aggregated ErrorsError so
// the whole document's digest state is reported at once.
func verifyValueDigests(nameSpaces IssuerNameSpaces, valueDigests ValueDigests, alg digest.Algorithm) error {
	elementErrs := mdlerrors.ElementErrors{}

	for _, entry := range nameSpaces.Entries {
		digestsForNS, ok := valueDigests[entry.NameSpace]
		if !ok {
			return mdlerrors.New(mdlerrors.ValueDigestsMissingForNamespace, fmt.Errorf("namespace %q", entry.NameSpace))
		}

		for i, raw24 := range entry.Items {
			content, err := cbor.DecodeEmbeddedCBOR(raw24)
			if err != nil {
				return mdlerrors.New(mdlerrors.CborDecodingError, fmt.Errorf("%s[%d]: %w", entry.NameSpace, i, err))
			}

			item, issues := decodeIssuerSignedItemFields(content, schema.Path{fmt.Sprintf("%s[%d]", entry.NameSpace, i)})
			if !issues.OK() {
				return mdlerrors.New(mdlerrors.CborValidationError, issues)
			}

			computed, err := digest.Sum(alg, raw24)
			if err != nil {
				return mdlerrors.New(mdlerrors.CborDecodingError, err)
			}

			expected, ok := digestsForNS[item.DigestID]
			if !ok {
				elementErrs.Set(entry.NameSpace, item.ElementIdentifier, mdlerrors.ValueDigestsMissingForDigestId)
				continue
			}
			if !bytes.Equal(computed, expected) {
				elementErrs.Set(entry.NameSpace, item.ElementIdentifier, mdlerrors.MsoDigestMismatch)
			}
		}
	}

	if elementErrs.Len() > 0 {
		return mdlerrors.NewErrorsError(elementErrs)
	}
	return nil
}

// verifyValidityInfo implements spec §4.6.2.
func verifyValidityInfo(vi ValidityInfo, now time.Time, clockSkew time.Duration) error {
	if vi.ValidFrom == nil {
		return mdlerrors.New(mdlerrors.ValidFromMissing, nil)
	}
	if vi.ValidUntil == nil {
		return mdlerrors.New(mdlerrors.ValidUntilMissing, nil)
	}
	if now.Add(clockSkew).Before(vi.ValidFrom.Time) {
		return mdlerrors.New(mdlerrors.DocumentNotValidYet, nil)
	}
	if now.Add(-clockSkew).After(vi.ValidUntil.Time) {
		return mdlerrors.New(mdlerrors.DocumentExpired, nil)
	}
	return nil
}
