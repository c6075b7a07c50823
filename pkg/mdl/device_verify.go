package mdl

import (
	"fmt"
	"time"

	"github.com/go-mdoc/mdocverify/pkg/cbor"
	xcrypto "github.com/go-mdoc/mdocverify/pkg/crypto"
	"github.com/go-mdoc/mdocverify/pkg/mdlerrors"
)

// DeviceVerifier runs the device-verification algorithm of spec §4.7. It
// delegates issuer verification to an embedded IssuerVerifier (step 2).
type DeviceVerifier struct {
	Issuer *IssuerVerifier
}

// NewDeviceVerifier returns a DeviceVerifier built on issuer, or a
// default IssuerVerifier if issuer is nil.
func NewDeviceVerifier(issuer *IssuerVerifier) *DeviceVerifier {
	if issuer == nil {
		issuer = NewIssuerVerifier(nil)
	}
	return &DeviceVerifier{Issuer: issuer}
}

// VerifyDeviceSignedDocument runs spec §4.7's seven-step algorithm against
// the raw CBOR bytes of a Document. Presence of docType/issuerSigned/
// deviceSigned, and of nameSpaces/deviceAuth within deviceSigned, is
// checked against the raw wire map first (as VerifyIssuerSigned does for
// IssuerSigned) so that each missing key gets its own domain code rather
// than a generic schema issue.
func (v *DeviceVerifier) VerifyDeviceSignedDocument(raw cbor.RawMessage, sessionTranscript SessionTranscript, now time.Time, clockSkew time.Duration) error {
	// Step 1: top-level presence.
	var top cbor.OrderedMap
	if err := cbor.Unmarshal(raw, &top); err != nil {
		return mdlerrors.New(mdlerrors.CborDecodingError, err)
	}
	if _, ok := top.Get("docType"); !ok {
		return mdlerrors.New(mdlerrors.DocTypeMissing, nil)
	}
	if _, ok := top.Get("issuerSigned"); !ok {
		return mdlerrors.New(mdlerrors.IssuerSignedMissing, nil)
	}
	deviceSignedRaw, ok := top.Get("deviceSigned")
	if !ok {
		return mdlerrors.New(mdlerrors.DeviceSignedMissing, nil)
	}

	// Step 4 presence, checked ahead of the full schema decode so a
	// missing nameSpaces/deviceAuth key gets its own domain code.
	var deviceSignedMap cbor.OrderedMap
	if err := cbor.Unmarshal(deviceSignedRaw, &deviceSignedMap); err != nil {
		return mdlerrors.New(mdlerrors.CborDecodingError, err)
	}
	if _, ok := deviceSignedMap.Get("nameSpaces"); !ok {
		return mdlerrors.New(mdlerrors.DeviceNameSpacesMissing, nil)
	}
	if _, ok := deviceSignedMap.Get("deviceAuth"); !ok {
		return mdlerrors.New(mdlerrors.DeviceAuthMissing, nil)
	}

	doc, issues := DecodeDocument(raw)
	if !issues.OK() {
		return mdlerrors.New(mdlerrors.CborValidationError, issues)
	}

	return v.verifyDecoded(doc, sessionTranscript, now, clockSkew)
}

func (v *DeviceVerifier) verifyDecoded(doc Document, sessionTranscript SessionTranscript, now time.Time, clockSkew time.Duration) error {
	// Step 2: issuer verification.
	issuerResult, err := v.Issuer.verifyDecoded(doc.IssuerSigned, now, clockSkew)
	if err != nil {
		return err
	}

	// Document invariant (spec §3): docType must match the one encoded
	// inside the MSO.
	if issuerResult.MSO.DocType != doc.DocType {
		return mdlerrors.New(mdlerrors.DocTypeMismatch,
			fmt.Errorf("document docType %q does not match MSO docType %q", doc.DocType, issuerResult.MSO.DocType))
	}

	// Step 3: device public key from the MSO's deviceKeyInfo.
	devicePublicKey, err := xcrypto.PublicKeyFromCOSEKey(issuerResult.MSO.DeviceKeyInfo.DeviceKey)
	if err != nil {
		return mdlerrors.New(mdlerrors.DeviceKeyUnsupported, err)
	}

	// Step 5: deviceAuth mode.
	deviceSigned := doc.DeviceSigned
	if deviceSigned.DeviceAuth.HasDeviceMac {
		return mdlerrors.New(mdlerrors.DeviceMacNotSupported, nil)
	}
	if deviceSigned.DeviceAuth.DeviceSignature == nil {
		return mdlerrors.New(mdlerrors.DeviceSignatureMissing, nil)
	}

	// Step 6: reconstruct DeviceAuthentication, byte-for-byte over the
	// original Tag(24, bytes) nameSpaces value.
	deviceAuthentication, err := buildDeviceAuthentication(sessionTranscript.Raw, doc.DocType, deviceSigned.NameSpaces)
	if err != nil {
		return mdlerrors.New(mdlerrors.DeviceSignatureVerificationFailed, err)
	}

	// Step 7: verify the detached Sign1 against the device key.
	sign1, err := xcrypto.NewSign1FromTaggedCBOR(deviceSigned.DeviceAuth.DeviceSignature)
	if err != nil {
		return err
	}
	if err := sign1.Verify(devicePublicKey, deviceAuthentication); err != nil {
		return mdlerrors.New(mdlerrors.DeviceSignatureVerificationFailed, err)
	}
	return nil
}

// buildDeviceAuthentication CBOR-encodes
// ["DeviceAuthentication", sessionTranscript, docType, nameSpaces] (spec
// §4.7 step 6). nameSpacesRaw must be the original Tag(24, bytes) value
// exactly as decoded, not a re-encoding of its inner contents.
func buildDeviceAuthentication(sessionTranscript cbor.RawMessage, docType string, nameSpacesRaw cbor.RawMessage) (cbor.RawMessage, error) {
	label, err := cbor.Marshal("DeviceAuthentication")
	if err != nil {
		return nil, err
	}
	docTypeEnc, err := cbor.Marshal(docType)
	if err != nil {
		return nil, err
	}
	arr := cbor.Array{Items: []cbor.RawMessage{label, sessionTranscript, docTypeEnc, nameSpacesRaw}}
	return arr.MarshalCBOR()
}
