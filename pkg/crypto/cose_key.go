package crypto

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"fmt"
	"math/big"
)

// COSE_Key labels (RFC 9053 §7).
const (
	coseKeyKty = int64(1)
	coseKeyCrv = int64(-1)
	coseKeyX   = int64(-2)
	coseKeyY   = int64(-3)
)

// COSE_Key key types (kty).
const (
	ktyOKP = int64(1)
	ktyEC2 = int64(2)
)

// COSE_Key curves (crv).
const (
	crvP256   = int64(1)
	crvP384   = int64(2)
	crvP521   = int64(3)
	crvEd25519 = int64(6)
)

// PublicKeyFromCOSEKey extracts a Go public key from a decoded COSE_Key map
// (spec §6.1): EC2 (kty=2) yields an *ecdsa.PublicKey on P-256/P-384/P-521;
// OKP (kty=1) with crv=Ed25519 yields an ed25519.PublicKey. Any other
// combination is DeviceKeyUnsupported.
func PublicKeyFromCOSEKey(coseKey map[int64]interface{}) (interface{}, error) {
	ktyRaw, ok := coseKey[coseKeyKty]
	if !ok {
		return nil, fmt.Errorf("missing kty in COSE_Key")
	}
	kty, err := asInt64(ktyRaw)
	if err != nil {
		return nil, fmt.Errorf("kty: %w", err)
	}

	switch kty {
	case ktyEC2:
		return ec2PublicKey(coseKey)
	case ktyOKP:
		return okpPublicKey(coseKey)
	default:
		return nil, fmt.Errorf("unsupported COSE_Key kty %d", kty)
	}
}

func ec2PublicKey(coseKey map[int64]interface{}) (*ecdsa.PublicKey, error) {
	crvRaw, ok := coseKey[coseKeyCrv]
	if !ok {
		return nil, fmt.Errorf("missing crv in COSE_Key")
	}
	crv, err := asInt64(crvRaw)
	if err != nil {
		return nil, fmt.Errorf("crv: %w", err)
	}

	var curve elliptic.Curve
	switch crv {
	case crvP256:
		curve = elliptic.P256()
	case crvP384:
		curve = elliptic.P384()
	case crvP521:
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported EC2 curve %d", crv)
	}

	x, err := asBytes(coseKey, coseKeyX, "x")
	if err != nil {
		return nil, err
	}
	y, err := asBytes(coseKey, coseKeyY, "y")
	if err != nil {
		return nil, err
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}, nil
}

func okpPublicKey(coseKey map[int64]interface{}) (ed25519.PublicKey, error) {
	crvRaw, ok := coseKey[coseKeyCrv]
	if !ok {
		return nil, fmt.Errorf("missing crv in COSE_Key")
	}
	crv, err := asInt64(crvRaw)
	if err != nil {
		return nil, fmt.Errorf("crv: %w", err)
	}
	if crv != crvEd25519 {
		return nil, fmt.Errorf("unsupported OKP curve %d", crv)
	}

	x, err := asBytes(coseKey, coseKeyX, "x")
	if err != nil {
		return nil, err
	}
	if len(x) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("Ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(x))
	}
	return ed25519.PublicKey(x), nil
}

func asInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func asBytes(m map[int64]interface{}, key int64, name string) ([]byte, error) {
	raw, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("missing %s coordinate in COSE_Key", name)
	}
	b, ok := raw.([]byte)
	if !ok {
		return nil, fmt.Errorf("%s coordinate has unexpected type %T", name, raw)
	}
	return b, nil
}
