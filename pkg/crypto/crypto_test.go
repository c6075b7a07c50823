package crypto

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veraison/go-cose"
)

func selfSignedCert(t *testing.T, priv *ecdsa.PrivateKey, notBefore, notAfter time.Time) *x509.Certificate {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "mdocverify test"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestSign1SignAndVerifyEmbeddedPayload(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	payload := []byte("hello sign1")
	data, err := Sign1Sign(SignOptions{
		PrivateKey: priv,
		Algorithm:  cose.AlgorithmES256,
		Payload:    payload,
	})
	require.NoError(t, err)

	sign1, err := NewSign1FromTaggedCBOR(data)
	require.NoError(t, err)
	assert.Equal(t, payload, sign1.Payload())

	require.NoError(t, sign1.Verify(&priv.PublicKey, nil))
}

func TestSign1VerifyDetachedPayloadRequiresSupplying(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	payload := []byte("detached content")
	data, err := Sign1Sign(SignOptions{
		PrivateKey:      priv,
		Algorithm:       cose.AlgorithmES256,
		DetachedPayload: payload,
	})
	require.NoError(t, err)

	sign1, err := NewSign1FromTaggedCBOR(data)
	require.NoError(t, err)
	assert.Nil(t, sign1.Payload())

	err = sign1.Verify(&priv.PublicKey, nil)
	assert.Error(t, err, "nil detached payload and nil tuple payload must fail")

	require.NoError(t, sign1.Verify(&priv.PublicKey, payload))
}

func TestSign1VerifyRejectsTamperedPayload(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	data, err := Sign1Sign(SignOptions{
		PrivateKey:      priv,
		Algorithm:       cose.AlgorithmES256,
		DetachedPayload: []byte("original"),
	})
	require.NoError(t, err)

	sign1, err := NewSign1FromTaggedCBOR(data)
	require.NoError(t, err)

	err = sign1.Verify(&priv.PublicKey, []byte("tampered"))
	assert.Error(t, err)
}

func TestAlgorithmMatchesKey(t *testing.T) {
	p256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	assert.NoError(t, AlgorithmMatchesKey(cose.AlgorithmES256, &p256.PublicKey))
	assert.Error(t, AlgorithmMatchesKey(cose.AlgorithmES384, &p256.PublicKey))

	edPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	assert.NoError(t, AlgorithmMatchesKey(cose.AlgorithmEdDSA, edPub))
	assert.Error(t, AlgorithmMatchesKey(cose.AlgorithmES256, edPub))
}

func TestSign1X5ChainRoundTrip(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	cert := selfSignedCert(t, priv, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	data, err := Sign1Sign(SignOptions{
		PrivateKey: priv,
		Algorithm:  cose.AlgorithmES256,
		Payload:    []byte("x"),
		ProtectedHeaders: cose.ProtectedHeader{
			cose.HeaderLabelAlgorithm: cose.AlgorithmES256,
			cose.HeaderLabelX5Chain:   cert.Raw,
		},
	})
	require.NoError(t, err)

	sign1, err := NewSign1FromTaggedCBOR(data)
	require.NoError(t, err)

	chain, err := sign1.X5Chain()
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, cert.Raw, chain[0])
}

func TestMac0PresentIsFalseForSign1(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	sign1Data, err := Sign1Sign(SignOptions{
		PrivateKey: priv,
		Algorithm:  cose.AlgorithmES256,
		Payload:    []byte("x"),
	})
	require.NoError(t, err)
	assert.False(t, Mac0Present(sign1Data))
}

func TestChainValidatorAcceptsSelfSignedByDefault(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	cert := selfSignedCert(t, priv, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	v := NewChainValidator()
	assert.NoError(t, v.ValidateChain([]*x509.Certificate{cert}, time.Now()))
}

func TestChainValidatorRejectsExpiredCertificate(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	cert := selfSignedCert(t, priv, time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour))

	v := NewChainValidator()
	err = v.ValidateChain([]*x509.Certificate{cert}, time.Now())
	assert.Error(t, err)
}

func TestChainValidatorDisallowsSelfSignedWhenConfigured(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	cert := selfSignedCert(t, priv, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	v := NewChainValidator()
	v.AllowSelfSigned = false
	err = v.ValidateChain([]*x509.Certificate{cert}, time.Now())
	assert.Error(t, err)
}

func TestChainValidatorLoadTrustedRootsPEM(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	cert := selfSignedCert(t, priv, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	bundle := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})

	v := NewChainValidator()
	v.AllowSelfSigned = false
	require.NoError(t, v.LoadTrustedRootsPEM(bundle))
	assert.NoError(t, v.ValidateChain([]*x509.Certificate{cert}, time.Now()))
}

func TestChainValidatorLoadTrustedRootsPEMRejectsEmptyBundle(t *testing.T) {
	v := NewChainValidator()
	err := v.LoadTrustedRootsPEM([]byte("not a pem bundle"))
	assert.Error(t, err)
}

func TestPublicKeyFromCOSEKeyEC2(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	coseKey := map[int64]interface{}{
		coseKeyKty: ktyEC2,
		coseKeyCrv: crvP256,
		coseKeyX:   priv.PublicKey.X.Bytes(),
		coseKeyY:   priv.PublicKey.Y.Bytes(),
	}
	pub, err := PublicKeyFromCOSEKey(coseKey)
	require.NoError(t, err)
	ecPub, ok := pub.(*ecdsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, priv.PublicKey.X, ecPub.X)
}

func TestPublicKeyFromCOSEKeyOKP(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	coseKey := map[int64]interface{}{
		coseKeyKty: ktyOKP,
		coseKeyCrv: crvEd25519,
		coseKeyX:   []byte(pub),
	}
	got, err := PublicKeyFromCOSEKey(coseKey)
	require.NoError(t, err)
	edPub, ok := got.(ed25519.PublicKey)
	require.True(t, ok)
	assert.Equal(t, pub, edPub)
}

func TestPublicKeyFromCOSEKeyUnsupportedKty(t *testing.T) {
	_, err := PublicKeyFromCOSEKey(map[int64]interface{}{coseKeyKty: int64(99)})
	assert.Error(t, err)
}
