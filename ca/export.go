package ca

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/roarinpenguin/roarinca/registry"
)

// FullchainPEM concatenates certificate and chain material with a single
// newline separator. When no chain is stored, the certificate alone is
// the fullchain.
func FullchainPEM(cert *registry.Certificate) string {
	if cert.ChainPEM == "" {
		return cert.CertificatePEM
	}
	return cert.CertificatePEM + "\n" + cert.ChainPEM
}

// ExportPKCS12 bundles a certificate, its private key and any stored
// chain into a password-protected PKCS#12 archive. A password is
// mandatory, and certificates without stored key material cannot be
// exported.
func ExportPKCS12(cert *registry.Certificate, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrExportPasswordRequired
	}
	if cert.PrivateKeyPEM == "" {
		return nil, ErrKeyUnavailable
	}

	key, err := parseRSAKeyPEM(cert.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	leaf, err := parseCertPEM(cert.CertificatePEM)
	if err != nil {
		return nil, err
	}
	caCerts, err := parseChainPEM(cert.ChainPEM)
	if err != nil {
		return nil, err
	}

	bundle, err := pkcs12.Encode(rand.Reader, key, leaf, caCerts, password)
	if err != nil {
		return nil, fmt.Errorf("encoding PKCS#12 bundle: %w", err)
	}
	return bundle, nil
}

// parseCertPEM decodes a single PEM certificate.
func parseCertPEM(certPEM string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, ErrInvalidCertificate
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return cert, nil
}

// parseChainPEM decodes every certificate block in chain material. Empty
// input yields an empty chain.
func parseChainPEM(chainPEM string) ([]*x509.Certificate, error) {
	var chain []*x509.Certificate
	rest := []byte(chainPEM)
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
			return nil, fmt.Errorf("%w: parsing chain certificate: %v", ErrInvalidCertificate, err)
		}
		chain = append(chain, cert)
	}
	return chain, nil
}
