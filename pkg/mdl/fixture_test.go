package mdl

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/veraison/go-cose"

	"github.com/go-mdoc/mdocverify/pkg/cbor"
	xcrypto "github.com/go-mdoc/mdocverify/pkg/crypto"
	"github.com/go-mdoc/mdocverify/pkg/digest"
)

func genKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return priv
}

func selfSignedCert(t *testing.T, priv *ecdsa.PrivateKey, notBefore, notAfter time.Time) *x509.Certificate {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "mdocverify fixture issuer"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func coseKeyFromECDSA(pub *ecdsa.PublicKey) map[int64]interface{} {
	return map[int64]interface{}{
		1:  int64(2), // kty: EC2
		-1: int64(1), // crv: P-256
		-2: pub.X.Bytes(),
		-3: pub.Y.Bytes(),
	}
}

// itemSpec describes one data element to embed in an issuer namespace.
type itemSpec struct {
	digestID          uint64
	elementIdentifier string
	elementValue      interface{}
}

func issuerItemRaw(t *testing.T, spec itemSpec) cbor.RawMessage {
	t.Helper()
	random := make([]byte, 16)
	_, err := rand.Read(random)
	require.NoError(t, err)
	content, err := cbor.Marshal(map[string]interface{}{
		"digestID":          spec.digestID,
		"random":            random,
		"elementIdentifier": spec.elementIdentifier,
		"elementValue":      spec.elementValue,
	})
	require.NoError(t, err)
	raw, err := cbor.EncodeEmbeddedCBOR(content)
	require.NoError(t, err)
	return raw
}

// buildNamespace encodes specs as a namespace's Tag-24 item sequence and
// returns both the raw items and their expected digests.
func buildNamespace(t *testing.T, alg digest.Algorithm, specs []itemSpec) ([]cbor.RawMessage, map[uint64][]byte) {
	t.Helper()
	items := make([]cbor.RawMessage, 0, len(specs))
	digests := make(map[uint64][]byte, len(specs))
	for _, s := range specs {
		raw := issuerItemRaw(t, s)
		items = append(items, raw)
		sum, err := digest.Sum(alg, raw)
		require.NoError(t, err)
		digests[s.digestID] = sum
	}
	return items, digests
}

func marshalNameSpaces(t *testing.T, namespaces map[string][]cbor.RawMessage) cbor.RawMessage {
	t.Helper()
	raw, err := cbor.Marshal(namespaces)
	require.NoError(t, err)
	return raw
}

type msoParams struct {
	docType         string
	digestAlgorithm digest.Algorithm
	valueDigests    ValueDigests
	devicePub       *ecdsa.PublicKey
	signed          time.Time
	validFrom       time.Time
	validUntil      time.Time
}

func buildMSOBytes(t *testing.T, p msoParams) []byte {
	t.Helper()
	m := map[string]interface{}{
		"version":         "1.0",
		"digestAlgorithm": string(p.digestAlgorithm),
		"valueDigests":    p.valueDigests,
		"deviceKeyInfo": map[string]interface{}{
			"deviceKey": coseKeyFromECDSA(p.devicePub),
		},
		"docType": p.docType,
		"validityInfo": map[string]interface{}{
			"signed":     cbor.NewDateTime(p.signed),
			"validFrom":  cbor.NewDateTime(p.validFrom),
			"validUntil": cbor.NewDateTime(p.validUntil),
		},
	}
	raw, err := cbor.Marshal(m)
	require.NoError(t, err)
	return raw
}

type signIssuerAuthOpts struct {
	embedPayload bool
	omitX5Chain  bool
}

func signIssuerAuth(t *testing.T, priv *ecdsa.PrivateKey, cert *x509.Certificate, msoBytes []byte, opts signIssuerAuthOpts) cbor.RawMessage {
	t.Helper()
	payload, err := cbor.EncodeEmbeddedCBOR(msoBytes)
	require.NoError(t, err)

	protected := cose.ProtectedHeader{cose.HeaderLabelAlgorithm: cose.AlgorithmES256}
	if !opts.omitX5Chain {
		protected[cose.HeaderLabelX5Chain] = cert.Raw
	}

	signOpts := xcrypto.SignOptions{
		PrivateKey:       priv,
		Algorithm:        cose.AlgorithmES256,
		ProtectedHeaders: protected,
	}
	if opts.embedPayload {
		signOpts.Payload = payload
	} else {
		signOpts.DetachedPayload = payload
	}

	data, err := xcrypto.Sign1Sign(signOpts)
	require.NoError(t, err)
	return cbor.RawMessage(data)
}

func marshalIssuerSigned(t *testing.T, nameSpaces, issuerAuth cbor.RawMessage) cbor.RawMessage {
	t.Helper()
	raw, err := cbor.Marshal(map[string]interface{}{
		"nameSpaces": nameSpaces,
		"issuerAuth": issuerAuth,
	})
	require.NoError(t, err)
	return raw
}

// issuerFixture is a complete, happy-path IssuerSigned structure plus the
// pieces needed to tamper with it per scenario.
type issuerFixture struct {
	issuerPriv   *ecdsa.PrivateKey
	issuerCert   *x509.Certificate
	devicePriv   *ecdsa.PrivateKey
	docType      string
	nameSpaces   map[string][]cbor.RawMessage
	valueDigests ValueDigests
	validFrom    time.Time
	validUntil   time.Time
}

func newIssuerFixture(t *testing.T) issuerFixture {
	t.Helper()
	issuerPriv := genKey(t)
	now := time.Now()
	cert := selfSignedCert(t, issuerPriv, now.Add(-time.Hour), now.Add(24*time.Hour))
	devicePriv := genKey(t)

	items, digests := buildNamespace(t, digest.SHA256, []itemSpec{
		{digestID: 1, elementIdentifier: "given_name", elementValue: "Alex"},
		{digestID: 2, elementIdentifier: "family_name", elementValue: "Doe"},
	})

	return issuerFixture{
		issuerPriv: issuerPriv,
		issuerCert: cert,
		devicePriv: devicePriv,
		docType:    "org.iso.18013.5.1.mDL",
		nameSpaces: map[string][]cbor.RawMessage{"org.iso.18013.5.1": items},
		valueDigests: ValueDigests{
			"org.iso.18013.5.1": digests,
		},
		validFrom:  now.Add(-time.Hour),
		validUntil: now.Add(24 * time.Hour),
	}
}

// issuerSignedRaw assembles the fixture into IssuerSigned wire bytes,
// applying opts to the issuerAuth signing step.
func (f issuerFixture) issuerSignedRaw(t *testing.T, opts signIssuerAuthOpts) cbor.RawMessage {
	t.Helper()
	msoBytes := buildMSOBytes(t, msoParams{
		docType:         f.docType,
		digestAlgorithm: digest.SHA256,
		valueDigests:    f.valueDigests,
		devicePub:       &f.devicePriv.PublicKey,
		signed:          f.validFrom,
		validFrom:       f.validFrom,
		validUntil:      f.validUntil,
	})
	issuerAuth := signIssuerAuth(t, f.issuerPriv, f.issuerCert, msoBytes, opts)
	return marshalIssuerSigned(t, marshalNameSpaces(t, f.nameSpaces), issuerAuth)
}

func sessionTranscriptRaw(t *testing.T) cbor.RawMessage {
	t.Helper()
	raw, err := cbor.Marshal([]interface{}{nil, nil, "fixture-handover"})
	require.NoError(t, err)
	return raw
}

func deviceNameSpacesRaw(t *testing.T) cbor.RawMessage {
	t.Helper()
	content, err := cbor.Marshal(map[string]interface{}{})
	require.NoError(t, err)
	raw, err := cbor.EncodeEmbeddedCBOR(content)
	require.NoError(t, err)
	return raw
}

type deviceSignedOpts struct {
	useMac bool
}

func buildDeviceSignedRaw(t *testing.T, devicePriv *ecdsa.PrivateKey, docType string, sessionTranscript, nameSpaces cbor.RawMessage, opts deviceSignedOpts) cbor.RawMessage {
	t.Helper()
	var deviceAuth map[string]interface{}
	if opts.useMac {
		deviceAuth = map[string]interface{}{"deviceMac": []byte("0123456789abcdef")}
	} else {
		deviceAuthenticationBytes, err := buildDeviceAuthentication(sessionTranscript, docType, nameSpaces)
		require.NoError(t, err)
		sig, err := xcrypto.Sign1Sign(xcrypto.SignOptions{
			PrivateKey:      devicePriv,
			Algorithm:       cose.AlgorithmES256,
			DetachedPayload: deviceAuthenticationBytes,
		})
		require.NoError(t, err)
		deviceAuth = map[string]interface{}{"deviceSignature": cbor.RawMessage(sig)}
	}

	raw, err := cbor.Marshal(map[string]interface{}{
		"nameSpaces": nameSpaces,
		"deviceAuth": deviceAuth,
	})
	require.NoError(t, err)
	return raw
}

func marshalDocument(t *testing.T, docType string, issuerSigned cbor.RawMessage, deviceSigned cbor.RawMessage, includeDeviceSigned bool) cbor.RawMessage {
	t.Helper()
	m := map[string]interface{}{
		"docType":      docType,
		"issuerSigned": issuerSigned,
	}
	if includeDeviceSigned {
		m["deviceSigned"] = deviceSigned
	}
	raw, err := cbor.Marshal(m)
	require.NoError(t, err)
	return raw
}
