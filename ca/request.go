package ca

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/roarinpenguin/roarinca/internal/uuid"
	"github.com/roarinpenguin/roarinca/registry"
)

// DefaultKeySize is the RSA modulus size used when a request does not
// specify one.
const DefaultKeySize = 2048

// RequestSpec describes a signing request to generate.
type RequestSpec struct {
	Purpose Purpose
	Subject Subject
	SANText string
	KeySize int
}

// GeneratedRequest is the key and PKCS#10 material produced by
// GenerateRequest, not yet persisted.
type GeneratedRequest struct {
	PrivateKeyPEM string
	RequestPEM    string
}

// GenerateRequest produces an RSA private key of exactly keySize bits and
// a PKCS#10 request whose requested-extensions block carries the purpose
// profile plus the parsed SAN set. Nothing is persisted; the caller owns
// the returned material.
func GenerateRequest(subject Subject, sanText string, purpose Purpose, keySize int) (*GeneratedRequest, error) {
	profile, err := ResolveProfile(purpose)
	if err != nil {
		return nil, err
	}
	rawDN, err := subject.RawDN()
	if err != nil {
		return nil, err
	}
	dns, ips, emails, err := sanMaterial(ParseSANs(sanText))
	if err != nil {
		return nil, err
	}
	exts, err := requestExtensions(profile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	if keySize == 0 {
		keySize = DefaultKeySize
	}
	key, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		return nil, fmt.Errorf("%w: generating %d-bit RSA key: %v", ErrGenerationFailed, keySize, err)
	}

	template := &x509.CertificateRequest{
		RawSubject:         rawDN,
		SignatureAlgorithm: x509.SHA256WithRSA,
		DNSNames:           dns,
		IPAddresses:        ips,
		EmailAddresses:     emails,
		ExtraExtensions:    exts,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return nil, fmt.Errorf("%w: creating certificate request: %v", ErrGenerationFailed, err)
	}

	return &GeneratedRequest{
		PrivateKeyPEM: encodeRSAKeyPEM(key),
		RequestPEM:    encodeRequestPEM(der),
	}, nil
}

// CreateRequest generates a key and PKCS#10 request and persists them as
// one pending signing request. Nothing is stored when generation fails.
func (e *Engine) CreateRequest(ctx context.Context, spec RequestSpec) (*registry.SigningRequest, error) {
	if spec.KeySize == 0 {
		spec.KeySize = DefaultKeySize
	}
	generated, err := GenerateRequest(spec.Subject, spec.SANText, spec.Purpose, spec.KeySize)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	req := &registry.SigningRequest{
		ID:                 uuid.New(),
		Purpose:            string(spec.Purpose),
		CommonName:         spec.Subject.CommonName,
		Organization:       spec.Subject.Organization,
		OrganizationalUnit: spec.Subject.OrganizationalUnit,
		Country:            spec.Subject.Country,
		State:              spec.Subject.State,
		Locality:           spec.Subject.Locality,
		Email:              spec.Subject.Email,
		SANText:            spec.SANText,
		KeyAlgorithm:       registry.KeyAlgorithmRSA,
		KeySize:            spec.KeySize,
		RequestPEM:         generated.RequestPEM,
		PrivateKeyPEM:      generated.PrivateKeyPEM,
		Status:             registry.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := e.reg.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("storing signing request: %w", err)
	}
	return req, nil
}
