package ca

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/roarinpenguin/roarinca/registry"
	"github.com/roarinpenguin/roarinca/storage"
)

// caValidityDays is the fixed validity period of the self-signed root.
const caValidityDays = 3650

// Initialize creates the self-signed root key and certificate from the
// stored identity and flips the identity to initialized. Initialization
// is refused while artifacts exist unless force is set; force removes the
// existing artifacts first, which invalidates the chain of trust of every
// certificate the previous root issued.
func (e *Engine) Initialize(ctx context.Context, force bool) (*registry.CAIdentity, error) {
	identity, err := e.reg.GetIdentity(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrMissingCommonName
		}
		return nil, err
	}
	subject := Subject{
		Country:            identity.Country,
		State:              identity.State,
		Locality:           identity.Locality,
		Organization:       identity.Organization,
		OrganizationalUnit: identity.OrganizationalUnit,
		CommonName:         identity.CommonName,
	}
	rawDN, err := subject.RawDN()
	if err != nil {
		return nil, err
	}

	exists, err := e.store.Exists()
	if err != nil {
		return nil, err
	}
	if exists {
		if !force {
			return nil, ErrAlreadyInitialized
		}
		if err := e.store.Remove(); err != nil {
			return nil, err
		}
	}

	keySize := identity.KeySize
	if keySize == 0 {
		keySize = DefaultKeySize
	}
	key, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		return nil, fmt.Errorf("%w: generating %d-bit CA key: %v", ErrGenerationFailed, keySize, err)
	}

	serial, err := newSerialNumber()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	template := &x509.Certificate{
		SerialNumber:          serial,
		RawSubject:            rawDN,
		NotBefore:             now,
		NotAfter:              now.AddDate(0, 0, caValidityDays),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          subjectKeyID(&key.PublicKey),
		SignatureAlgorithm:    x509.SHA256WithRSA,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("%w: creating CA certificate: %v", ErrGenerationFailed, err)
	}

	// Exclusive creation is the race guard: of two concurrent
	// initializations both may generate material, but only one lands its
	// artifacts.
	if err := e.store.CreateExclusive([]byte(encodeRSAKeyPEM(key)), []byte(encodeCertPEM(der))); err != nil {
		return nil, err
	}

	identity.KeyAlgorithm = registry.KeyAlgorithmRSA
	identity.KeySize = keySize
	identity.Initialized = true
	identity.UpdatedAt = now
	if err := e.reg.SaveIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("updating CA identity: %w", err)
	}
	return identity, nil
}

// Initialized reports whether the CA is usable. Both the stored identity
// flag and the artifacts must be present; artifacts can disappear out of
// band, so the flag is never trusted alone.
func (e *Engine) Initialized(ctx context.Context) (bool, error) {
	identity, err := e.reg.GetIdentity(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !identity.Initialized {
		return false, nil
	}
	return e.store.Exists()
}

// CACertificatePEM returns the root certificate artifact. This is public
// material, servable without authentication.
func (e *Engine) CACertificatePEM() (string, error) {
	materials, err := e.loadMaterials()
	if err != nil {
		return "", err
	}
	return string(materials.CertPEM), nil
}
