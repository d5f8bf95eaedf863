package ca

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/roarinpenguin/roarinca/internal/uuid"
	"github.com/roarinpenguin/roarinca/registry"
	"github.com/roarinpenguin/roarinca/storage"
)

// DefaultValidityDays is the issuance validity period used when the
// caller does not specify one.
const DefaultValidityDays = 365

// maxSerial bounds random serial numbers to 128 bits.
var maxSerial = new(big.Int).Lsh(big.NewInt(1), 128)

// newSerialNumber draws a random 128-bit serial number. Uniqueness rests
// on the randomness alone; serials are not checked against previously
// issued certificates.
func newSerialNumber() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, maxSerial)
	if err != nil {
		return nil, fmt.Errorf("%w: drawing serial number: %v", ErrGenerationFailed, err)
	}
	return serial, nil
}

// Sign issues a certificate for a pending signing request: extension
// profile and SAN set are rebuilt from the stored request, the subject
// and public key come from its PKCS#10 material, and the result is signed
// with the CA key under SHA-256. The certificate insert and the request's
// pending-to-signed transition are one atomic write; when two signers
// race on the same request, exactly one wins and the loser gets
// ErrAlreadySigned with nothing persisted.
func (e *Engine) Sign(ctx context.Context, requestID string, validityDays int) (*registry.Certificate, error) {
	if validityDays <= 0 {
		validityDays = DefaultValidityDays
	}

	materials, err := e.loadMaterials()
	if err != nil {
		return nil, err
	}
	req, err := e.reg.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if req.Status != registry.StatusPending {
		return nil, ErrAlreadySigned
	}

	profile, err := ResolveProfile(Purpose(req.Purpose))
	if err != nil {
		return nil, err
	}
	dns, ips, emails, err := sanMaterial(ParseSANs(req.SANText))
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode([]byte(req.RequestPEM))
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return nil, fmt.Errorf("%w: stored request material is not a certificate request", ErrInvalidCertificate)
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing stored request: %v", ErrInvalidCertificate, err)
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("%w: request signature: %v", ErrInvalidCertificate, err)
	}
	leafPub, ok := csr.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: request public key is not RSA", ErrInvalidCertificate)
	}

	serial, err := newSerialNumber()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	template := &x509.Certificate{
		SerialNumber:          serial,
		RawSubject:            csr.RawSubject,
		NotBefore:             now,
		NotAfter:              now.AddDate(0, 0, validityDays),
		KeyUsage:              profile.KeyUsage,
		ExtKeyUsage:           profile.ExtKeyUsage,
		BasicConstraintsValid: true,
		DNSNames:              dns,
		IPAddresses:           ips,
		EmailAddresses:        emails,
		SubjectKeyId:          subjectKeyID(leafPub),
		SignatureAlgorithm:    x509.SHA256WithRSA,
	}

	caKey, err := materials.Signer()
	if err != nil {
		return nil, err
	}
	der, err := x509.CreateCertificate(rand.Reader, template, materials.Certificate, leafPub, caKey)
	if err != nil {
		return nil, fmt.Errorf("%w: signing certificate: %v", ErrGenerationFailed, err)
	}

	certPEM := encodeCertPEM(der)
	meta, err := ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, err
	}

	cert := &registry.Certificate{
		ID:             uuid.New(),
		RequestID:      req.ID,
		CommonName:     meta.CommonName,
		SerialNumber:   meta.SerialNumber,
		Issuer:         meta.Issuer,
		Subject:        meta.Subject,
		NotBefore:      meta.NotBefore,
		NotAfter:       meta.NotAfter,
		CertificatePEM: certPEM,
		PrivateKeyPEM:  req.PrivateKeyPEM,
		Source:         registry.SourceSigned,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.reg.CompleteSigning(ctx, cert, req); err != nil {
		if errors.Is(err, storage.ErrCASFailed) {
			return nil, ErrAlreadySigned
		}
		return nil, fmt.Errorf("recording issued certificate: %w", err)
	}
	return cert, nil
}
