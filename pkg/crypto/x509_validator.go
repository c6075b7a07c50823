package crypto

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/go-mdoc/mdocverify/pkg/mdlerrors"
)

// ChainValidator validates the leaf-first DER certificate chain carried in
// a Sign1's x5chain header (spec §4.5). It validates a single leaf against
// a provided or embedded chain rather than building general X.509 paths
// (spec Non-goals).
type ChainValidator struct {
	trustedRoots *x509.CertPool
	// AllowSelfSigned permits a self-signed leaf when no chain to a
	// trusted root exists — the reference test suite's default
	// (spec §4.5, §9 open question).
	AllowSelfSigned bool
	// ClockSkew tolerates drift between the verifier's clock and the
	// certificate issuer's, widening the NotBefore/NotAfter window.
	ClockSkew time.Duration
}

// NewChainValidator returns a ChainValidator with no trusted roots and the
// reference suite's defaults: self-signed leaves accepted, zero clock skew.
func NewChainValidator() *ChainValidator {
	return &ChainValidator{
		trustedRoots:    x509.NewCertPool(),
		AllowSelfSigned: true,
	}
}

// AddTrustedRoot registers cert as a trust anchor.
func (v *ChainValidator) AddTrustedRoot(cert *x509.Certificate) {
	v.trustedRoots.AddCert(cert)
}

// ParseChain parses a leaf-first sequence of DER certificates (the decoded
// x5chain header value).
func ParseChain(der [][]byte) ([]*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0, len(der))
	for i, d := range der {
		cert, err := x509.ParseCertificate(d)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate %d: %w", i, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// ValidateChain validates that chain[0] (the leaf) is trustworthy at time
// now, with ClockSkew tolerance on every certificate's validity window
// (spec §4.5, §4.6 step 4). On any failure it returns
// X5ChainVerificationFailed with the underlying cause attached.
func (v *ChainValidator) ValidateChain(chain []*x509.Certificate, now time.Time) error {
	if len(chain) == 0 {
		return mdlerrors.New(mdlerrors.X5ChainVerificationFailed, fmt.Errorf("empty certificate chain"))
	}

	for i, cert := range chain {
		if !v.validAt(cert, now) {
			return mdlerrors.New(mdlerrors.X5ChainVerificationFailed,
				fmt.Errorf("certificate %d not valid at %s (window %s to %s, skew %s)",
					i, now.Format(time.RFC3339), cert.NotBefore, cert.NotAfter, v.ClockSkew))
		}
	}

	leaf := chain[0]
	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}

	opts := x509.VerifyOptions{
		Roots:         v.trustedRoots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if _, err := leaf.Verify(opts); err != nil {
		if v.AllowSelfSigned && isSelfSigned(leaf) {
			return nil
		}
		return mdlerrors.New(mdlerrors.X5ChainVerificationFailed, fmt.Errorf("chain validation: %w", err))
	}
	return nil
}

// validAt reports whether cert's validity window, widened by ClockSkew,
// contains t.
func (v *ChainValidator) validAt(cert *x509.Certificate, t time.Time) bool {
	return !t.Before(cert.NotBefore.Add(-v.ClockSkew)) && !t.After(cert.NotAfter.Add(v.ClockSkew))
}

func isSelfSigned(cert *x509.Certificate) bool {
	return cert.CheckSignatureFrom(cert) == nil
}

// SubjectPublicKey returns cert's subject public key (an *ecdsa.PublicKey
// or ed25519.PublicKey, per spec §2.5).
func SubjectPublicKey(cert *x509.Certificate) interface{} {
	return cert.PublicKey
}

// LoadTrustedRootsPEM parses a PEM bundle of CERTIFICATE blocks and adds
// each as a trust anchor.
func (v *ChainValidator) LoadTrustedRootsPEM(data []byte) error {
	rest := data
	count := 0
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("parsing trusted root %d: %w", count, err)
		}
		v.AddTrustedRoot(cert)
		count++
	}
	if count == 0 {
		return fmt.Errorf("no CERTIFICATE blocks found")
	}
	return nil
}
