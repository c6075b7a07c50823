// Package crypto adapts github.com/veraison/go-cose and the standard
// library's X.509/ECDSA/Ed25519 primitives to the mdoc core's needs: the
// COSE_Sign1/COSE_Mac0 envelope (spec §2.4, §4.4), certificate chain
// validation (spec §2.5, §4.5), and device-key extraction from COSE_Key
// (spec §6.1).
package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	gocbor "github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/go-mdoc/mdocverify/pkg/mdlerrors"
)

// AlgorithmMatchesKey reports whether alg is the correct signature scheme
// for publicKey's curve (spec §4.6 step 5): ES256/ES384/ES512 each pin a
// specific NIST curve, EdDSA pins Ed25519.
func AlgorithmMatchesKey(alg cose.Algorithm, publicKey crypto.PublicKey) error {
	switch key := publicKey.(type) {
	case *ecdsa.PublicKey:
		bitSize := key.Curve.Params().BitSize
		switch alg {
		case cose.AlgorithmES256:
			if bitSize != 256 {
				return fmt.Errorf("ES256 requires a P-256 key, got a %d-bit curve", bitSize)
			}
		case cose.AlgorithmES384:
			if bitSize != 384 {
				return fmt.Errorf("ES384 requires a P-384 key, got a %d-bit curve", bitSize)
			}
		case cose.AlgorithmES512:
			if bitSize != 521 {
				return fmt.Errorf("ES512 requires a P-521 key, got a %d-bit curve", bitSize)
			}
		default:
			return fmt.Errorf("algorithm %v does not match an EC2 key", alg)
		}
		return nil
	case ed25519.PublicKey:
		if alg != cose.AlgorithmEdDSA {
			return fmt.Errorf("algorithm %v does not match an Ed25519 key", alg)
		}
		return nil
	default:
		return fmt.Errorf("unsupported public key type %T", publicKey)
	}
}

// Sign1Encodable is the "opaque instance" input form of spec §4.4: a value
// that knows how to serialize itself as a Sign1 tuple.
type Sign1Encodable interface {
	// ContentForEncoding returns the Sign1 tuple bytes (untagged,
	// 4-element array) this value should be encoded as.
	ContentForEncoding() ([]byte, error)
}

// Sign1 wraps a COSE_Sign1 structure (CBOR Tag 18) together with the
// operations the issuer and device verifiers need: reconstructing the
// Sig_structure and verifying against a public key, or detached-signing
// one (spec §4.4).
type Sign1 struct {
	msg *cose.Sign1Message
}

// NewSign1FromTaggedCBOR decodes data as Tag(18, Sign1Tuple) and returns
// the normalised Sign1. This is the common case: the wire form the mdoc
// spec mandates (spec §3, Sign1Tuple).
func NewSign1FromTaggedCBOR(data []byte) (*Sign1, error) {
	msg := &cose.Sign1Message{}
	if err := msg.UnmarshalCBOR(data); err != nil {
		return nil, mdlerrors.New(mdlerrors.Sign1ConversionFailed, fmt.Errorf("decoding COSE_Sign1: %w", err))
	}
	return &Sign1{msg: msg}, nil
}

// NewSign1FromUntaggedCBOR decodes data as a bare Sign1Tuple (no Tag 18
// wrapper) — the "raw 4-tuple" input form of spec §4.4.
func NewSign1FromUntaggedCBOR(data []byte) (*Sign1, error) {
	msg := &cose.Sign1Message{}
	if err := (*cose.UntaggedSign1Message)(msg).UnmarshalCBOR(data); err != nil {
		return nil, mdlerrors.New(mdlerrors.Sign1ConversionFailed, fmt.Errorf("decoding untagged COSE_Sign1: %w", err))
	}
	return &Sign1{msg: msg}, nil
}

// NewSign1FromEncodable normalises a Sign1Encodable by asking it to
// serialize itself and decoding the result as an untagged Sign1 tuple.
func NewSign1FromEncodable(v Sign1Encodable) (*Sign1, error) {
	data, err := v.ContentForEncoding()
	if err != nil {
		return nil, mdlerrors.New(mdlerrors.Sign1ConversionFailed, fmt.Errorf("getContentForEncoding: %w", err))
	}
	return NewSign1FromUntaggedCBOR(data)
}

// ProtectedHeaders returns the decoded protected header map.
func (s *Sign1) ProtectedHeaders() cose.ProtectedHeader { return s.msg.Headers.Protected }

// UnprotectedHeaders returns the decoded unprotected header map.
func (s *Sign1) UnprotectedHeaders() cose.UnprotectedHeader { return s.msg.Headers.Unprotected }

// Payload returns the tuple's payload field, or nil if it was CBOR null
// (the detached-payload case).
func (s *Sign1) Payload() []byte { return s.msg.Payload }

// Algorithm returns the algorithm announced in the protected header, or an
// error if it is absent or not one of the closed set mdoc supports
// (spec §4.4: ES256, ES384, ES512, EdDSA).
func (s *Sign1) Algorithm() (cose.Algorithm, error) {
	raw, ok := s.msg.Headers.Protected[cose.HeaderLabelAlgorithm]
	if !ok {
		return 0, fmt.Errorf("no algorithm (label 1) in protected header")
	}
	alg, ok := asAlgorithm(raw)
	if !ok {
		return 0, fmt.Errorf("protected header alg has unexpected type %T", raw)
	}
	switch alg {
	case cose.AlgorithmES256, cose.AlgorithmES384, cose.AlgorithmES512, cose.AlgorithmEdDSA:
		return alg, nil
	default:
		return 0, fmt.Errorf("unsupported algorithm %v", alg)
	}
}

func asAlgorithm(raw interface{}) (cose.Algorithm, bool) {
	switch v := raw.(type) {
	case cose.Algorithm:
		return v, true
	case int64:
		return cose.Algorithm(v), true
	case int:
		return cose.Algorithm(v), true
	default:
		return 0, false
	}
}

// X5Chain extracts the x5chain header value (label 33), preferring the
// protected header over the unprotected one, and returns the leaf-first
// DER certificate chain (spec §4.6 step 3). A single bare byte string is
// treated as a singleton chain.
func (s *Sign1) X5Chain() ([][]byte, error) {
	if raw, ok := s.msg.Headers.Protected[cose.HeaderLabelX5Chain]; ok {
		return decodeX5Chain(raw)
	}
	if raw, ok := s.msg.Headers.Unprotected[cose.HeaderLabelX5Chain]; ok {
		return decodeX5Chain(raw)
	}
	return nil, fmt.Errorf("no x5chain (label 33) in protected or unprotected header")
}

func decodeX5Chain(raw interface{}) ([][]byte, error) {
	switch v := raw.(type) {
	case []byte:
		return [][]byte{v}, nil
	case []interface{}:
		if len(v) == 0 {
			return nil, fmt.Errorf("empty x5chain array")
		}
		chain := make([][]byte, 0, len(v))
		for i, item := range v {
			der, ok := item.([]byte)
			if !ok {
				return nil, fmt.Errorf("x5chain[%d] is not a byte string", i)
			}
			chain = append(chain, der)
		}
		return chain, nil
	default:
		return nil, fmt.Errorf("unexpected x5chain type %T", v)
	}
}

// Verify checks the Sign1's signature against publicKey. When the tuple's
// payload is CBOR null, detachedPayload must be supplied (spec §4.4); a
// nil detachedPayload and nil tuple payload together fail
// DetachedPayloadRequired before any cryptographic operation runs.
func (s *Sign1) Verify(publicKey crypto.PublicKey, detachedPayload []byte) error {
	payload := s.msg.Payload
	if payload == nil {
		if detachedPayload == nil {
			return mdlerrors.New(mdlerrors.DetachedPayloadRequired, nil)
		}
		payload = detachedPayload
	}

	alg, err := s.Algorithm()
	if err != nil {
		return mdlerrors.New(mdlerrors.IssuerAuthAlgorithmMismatch, err)
	}
	verifier, err := cose.NewVerifier(alg, publicKey)
	if err != nil {
		return mdlerrors.New(mdlerrors.IssuerAuthAlgorithmMismatch, fmt.Errorf("building verifier: %w", err))
	}

	verifyMsg := *s.msg
	verifyMsg.Payload = payload
	if err := verifyMsg.Verify(nil, verifier); err != nil {
		return mdlerrors.New(mdlerrors.IssuerAuthSignatureVerificationFailed, err)
	}
	return nil
}

// SignOptions parameterises Sign1Sign.
type SignOptions struct {
	ProtectedHeaders   cose.ProtectedHeader
	UnprotectedHeaders cose.UnprotectedHeader
	// Payload is embedded verbatim in the tuple's payload field.
	// DetachedPayload, if set and Payload is nil, is signed over but not
	// embedded (the tuple's payload field stays null on the wire).
	Payload         []byte
	DetachedPayload []byte
	PrivateKey      crypto.Signer
	Algorithm       cose.Algorithm
	Rand            io.Reader
}

// Sign1Sign builds and signs a new Sign1 per spec §4.4's sign operation,
// returning the tagged COSE_Sign1 CBOR bytes.
func Sign1Sign(opts SignOptions) ([]byte, error) {
	if opts.Payload == nil && opts.DetachedPayload == nil {
		return nil, mdlerrors.New(mdlerrors.DetachedPayloadRequired, nil)
	}
	signingPayload := opts.Payload
	if signingPayload == nil {
		signingPayload = opts.DetachedPayload
	}

	signer, err := cose.NewSigner(opts.Algorithm, opts.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("building signer: %w", err)
	}

	msg := cose.NewSign1Message()
	if opts.ProtectedHeaders != nil {
		msg.Headers.Protected = opts.ProtectedHeaders
	}
	if msg.Headers.Protected == nil {
		msg.Headers.Protected = cose.ProtectedHeader{}
	}
	msg.Headers.Protected[cose.HeaderLabelAlgorithm] = opts.Algorithm
	if opts.UnprotectedHeaders != nil {
		msg.Headers.Unprotected = opts.UnprotectedHeaders
	}
	msg.Payload = signingPayload

	randSrc := opts.Rand
	if randSrc == nil {
		randSrc = rand.Reader
	}
	if err := msg.Sign(randSrc, nil, signer); err != nil {
		return nil, fmt.Errorf("signing Sign1: %w", err)
	}

	// The wire payload field is only populated when the caller embedded
	// it; a detached signature carries a null payload on the wire.
	msg.Payload = opts.Payload
	return msg.MarshalCBOR()
}

// Mac0Present reports whether data decodes as a COSE_Mac0 structure
// (Tag 17). The mdoc core never verifies a MAC — DeviceMac is an
// explicitly rejected device-auth mode (spec §1, §4.7 step 5) — but it
// must still be decodable so that rejection can be diagnosed precisely
// rather than surfacing as a generic decode failure.
func Mac0Present(data []byte) bool {
	var raw gocbor.RawTag
	if err := gocbor.Unmarshal(data, &raw); err != nil {
		return false
	}
	return raw.Number == 17
}
