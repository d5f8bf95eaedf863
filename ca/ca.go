// Package ca implements the certificate-issuance engine: CA lifecycle,
// signing-request generation, request signing, certificate import, and
// PEM/PKCS#12 export. Durable state lives in the record registry and the
// CA artifact store; the engine itself keeps nothing between operations.
package ca

import (
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/roarinpenguin/roarinca/registry"
)

// Engine performs the CA's issuance operations against a record registry
// and an artifact store. The CA key and certificate are resolved fresh
// from the artifact store on every operation so concurrent operations
// observe a consistent view and out-of-band artifact changes are seen
// immediately.
type Engine struct {
	reg   *registry.Registry
	store ArtifactStore
}

// NewEngine returns an Engine over the given registry and artifact store.
func NewEngine(reg *registry.Registry, store ArtifactStore) *Engine {
	return &Engine{reg: reg, store: store}
}

// ---------------------------------------------------------------------------
// CA material
// ---------------------------------------------------------------------------

// Materials is the CA signing material resolved for a single operation.
// The private key PEM is held in a sealed enclave and opened only for the
// duration of a signing call.
type Materials struct {
	Certificate *x509.Certificate
	CertPEM     []byte

	keyEnclave *memguard.Enclave
}

// loadMaterials resolves CA material from the artifact store. The key PEM
// is sealed immediately; the enclave wipes the plaintext copy.
func (e *Engine) loadMaterials() (*Materials, error) {
	keyPEM, certPEM, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	enclave := memguard.NewEnclave(keyPEM)

	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("CA certificate artifact: %w", ErrInvalidCertificate)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing CA certificate artifact: %v", ErrInvalidCertificate, err)
	}
	return &Materials{Certificate: cert, CertPEM: certPEM, keyEnclave: enclave}, nil
}

// Signer opens the key enclave and parses the CA private key.
func (m *Materials) Signer() (*rsa.PrivateKey, error) {
	keyBuf, err := m.keyEnclave.Open()
	if err != nil {
		return nil, fmt.Errorf("opening CA key enclave: %w", err)
	}
	defer keyBuf.Destroy()

	block, _ := pem.Decode(keyBuf.Bytes())
	if block == nil {
		return nil, fmt.Errorf("CA key artifact: %w", ErrInvalidCertificate)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing CA private key: %w", err)
	}
	return key, nil
}

// ---------------------------------------------------------------------------
// PEM helpers
// ---------------------------------------------------------------------------

func encodeCertPEM(der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func encodeRequestPEM(der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}))
}

func encodeRSAKeyPEM(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
}

// parseRSAKeyPEM decodes an RSA private key in PKCS#1 or PKCS#8 form.
// Generated keys are always PKCS#1; imported material may use either.
func parseRSAKeyPEM(keyPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, fmt.Errorf("%w: private key is not valid PEM", ErrInvalidCertificate)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing private key: %v", ErrInvalidCertificate, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is not RSA", ErrInvalidCertificate)
	}
	return key, nil
}

// subjectKeyID computes the RFC 5280 method-1 key identifier: the SHA-1
// digest of the subject public key bytes.
func subjectKeyID(pub *rsa.PublicKey) []byte {
	sum := sha1.Sum(x509.MarshalPKCS1PublicKey(pub))
	return sum[:]
}
