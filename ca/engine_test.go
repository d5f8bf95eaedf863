package ca_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roarinpenguin/roarinca/ca"
	"github.com/roarinpenguin/roarinca/registry"
	"github.com/roarinpenguin/roarinca/storage/memory"
)

var (
	testOIDBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}
	testOIDKeyUsage         = asn1.ObjectIdentifier{2, 5, 29, 15}
	testOIDExtKeyUsage      = asn1.ObjectIdentifier{2, 5, 29, 37}
	testOIDSubjectAltName   = asn1.ObjectIdentifier{2, 5, 29, 17}
	testOIDEmailAddress     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}
)

func newTestEngine(t *testing.T) (*ca.Engine, *registry.Registry) {
	t.Helper()

	reg := registry.New(memory.NewRepository())
	store := ca.NewFileArtifactStore(t.TempDir())
	return ca.NewEngine(reg, store), reg
}

func saveTestIdentity(t *testing.T, reg *registry.Registry) {
	t.Helper()

	now := time.Now().UTC()
	err := reg.SaveIdentity(context.Background(), &registry.CAIdentity{
		CommonName:   "Test Root CA",
		Organization: "TestOrg",
		Country:      "US",
		KeyAlgorithm: registry.KeyAlgorithmRSA,
		KeySize:      2048,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
}

func parseCertPEM(t *testing.T, certPEM string) *x509.Certificate {
	t.Helper()

	block, _ := pem.Decode([]byte(certPEM))
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	return cert
}

func findExtension(t *testing.T, exts []pkix.Extension, oid asn1.ObjectIdentifier) pkix.Extension {
	t.Helper()

	for _, ext := range exts {
		if ext.Id.Equal(oid) {
			return ext
		}
	}
	t.Fatalf("extension %v not found", oid)
	return pkix.Extension{}
}

func hasExtension(exts []pkix.Extension, oid asn1.ObjectIdentifier) bool {
	for _, ext := range exts {
		if ext.Id.Equal(oid) {
			return true
		}
	}
	return false
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)
	saveTestIdentity(t, reg)

	identity, err := engine.Initialize(ctx, false)
	require.NoError(t, err)
	assert.True(t, identity.Initialized)
	assert.Equal(t, registry.KeyAlgorithmRSA, identity.KeyAlgorithm)
	assert.Equal(t, 2048, identity.KeySize)

	ok, err := engine.Initialized(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	certPEM, err := engine.CACertificatePEM()
	require.NoError(t, err)
	assert.Contains(t, certPEM, "BEGIN CERTIFICATE")

	caCert := parseCertPEM(t, certPEM)
	assert.True(t, caCert.IsCA)
	assert.Equal(t, "Test Root CA", caCert.Subject.CommonName)
	assert.NotZero(t, caCert.KeyUsage&x509.KeyUsageCertSign)
	assert.NotZero(t, caCert.KeyUsage&x509.KeyUsageCRLSign)
	assert.NotEmpty(t, caCert.SubjectKeyId)
	assert.Equal(t, 3650*24*time.Hour, caCert.NotAfter.Sub(caCert.NotBefore))

	// Self-signed root: issuer and subject are the same DN.
	meta, err := ca.ParseCertificatePEM(certPEM)
	require.NoError(t, err)
	assert.Equal(t, meta.Subject, meta.Issuer)
	assert.Contains(t, meta.Subject, "/CN=Test Root CA")
}

func TestInitialize_NotInitialized(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	ok, err := engine.Initialized(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = engine.CACertificatePEM()
	assert.ErrorIs(t, err, ca.ErrCANotInitialized)
}

func TestInitialize_MissingCommonName(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)

	// No identity configured at all.
	_, err := engine.Initialize(ctx, false)
	assert.ErrorIs(t, err, ca.ErrMissingCommonName)

	// Identity configured without a common name.
	require.NoError(t, reg.SaveIdentity(ctx, &registry.CAIdentity{Organization: "TestOrg"}))
	_, err = engine.Initialize(ctx, false)
	assert.ErrorIs(t, err, ca.ErrMissingCommonName)
}

func TestInitialize_AlreadyInitialized(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)
	saveTestIdentity(t, reg)

	_, err := engine.Initialize(ctx, false)
	require.NoError(t, err)
	before, err := engine.CACertificatePEM()
	require.NoError(t, err)

	_, err = engine.Initialize(ctx, false)
	assert.ErrorIs(t, err, ca.ErrAlreadyInitialized)

	// Force replaces the root material.
	_, err = engine.Initialize(ctx, true)
	require.NoError(t, err)
	after, err := engine.CACertificatePEM()
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestCreateRequest(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)

	req, err := engine.CreateRequest(ctx, ca.RequestSpec{
		Purpose: ca.PurposeServerTLS,
		Subject: ca.Subject{
			Country:      "US",
			Organization: "Acme",
			CommonName:   "server.acme.example",
			Email:        "ops@acme.example",
		},
		SANText: "DNS:server.acme.example, 10.0.0.1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, registry.StatusPending, req.Status)
	assert.Equal(t, registry.KeyAlgorithmRSA, req.KeyAlgorithm)
	assert.Equal(t, 2048, req.KeySize)
	assert.Contains(t, req.RequestPEM, "BEGIN CERTIFICATE REQUEST")
	assert.Contains(t, req.PrivateKeyPEM, "BEGIN RSA PRIVATE KEY")

	// Round-trips through storage.
	stored, err := reg.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "server.acme.example", stored.CommonName)
	assert.Equal(t, string(ca.PurposeServerTLS), stored.Purpose)

	// The PKCS#10 material carries subject, SANs and requested extensions.
	block, _ := pem.Decode([]byte(req.RequestPEM))
	require.NotNil(t, block)
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	require.NoError(t, err)
	require.NoError(t, csr.CheckSignature())

	assert.Equal(t, "server.acme.example", csr.Subject.CommonName)
	assert.Contains(t, csr.DNSNames, "server.acme.example")
	require.Len(t, csr.IPAddresses, 1)
	assert.True(t, csr.IPAddresses[0].Equal(net.ParseIP("10.0.0.1")))

	email := findAttribute(csr.Subject.Names, testOIDEmailAddress)
	assert.Equal(t, "ops@acme.example", email)

	kuExt := findExtension(t, csr.Extensions, testOIDKeyUsage)
	assert.True(t, kuExt.Critical)
	var kuBits asn1.BitString
	_, err = asn1.Unmarshal(kuExt.Value, &kuBits)
	require.NoError(t, err)
	assert.Equal(t, byte(0xa0), kuBits.Bytes[0]) // digitalSignature | keyEncipherment

	bcExt := findExtension(t, csr.Extensions, testOIDBasicConstraints)
	assert.False(t, bcExt.Critical)

	findExtension(t, csr.Extensions, testOIDExtKeyUsage)
}

func findAttribute(names []pkix.AttributeTypeAndValue, oid asn1.ObjectIdentifier) string {
	for _, attr := range names {
		if !attr.Type.Equal(oid) {
			continue
		}
		if value, ok := attr.Value.(string); ok {
			return value
		}
	}
	return ""
}

func TestCreateRequest_EmptySANText(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	req, err := engine.CreateRequest(ctx, ca.RequestSpec{
		Purpose: ca.PurposeClientTLS,
		Subject: ca.Subject{CommonName: "client.acme.example"},
		SANText: "   ",
	})
	require.NoError(t, err)

	block, _ := pem.Decode([]byte(req.RequestPEM))
	require.NotNil(t, block)
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	require.NoError(t, err)

	assert.Empty(t, csr.DNSNames)
	assert.Empty(t, csr.IPAddresses)
	assert.Empty(t, csr.EmailAddresses)
	assert.False(t, hasExtension(csr.Extensions, testOIDSubjectAltName))
}

func TestCreateRequest_NothingStoredOnFailure(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)

	_, err := engine.CreateRequest(ctx, ca.RequestSpec{
		Purpose: "vpn_gateway",
		Subject: ca.Subject{CommonName: "gw.acme.example"},
	})
	assert.ErrorIs(t, err, ca.ErrInvalidProfile)

	_, err = engine.CreateRequest(ctx, ca.RequestSpec{
		Purpose: ca.PurposeServerTLS,
		Subject: ca.Subject{Organization: "Acme"},
	})
	assert.ErrorIs(t, err, ca.ErrMissingCommonName)

	_, err = engine.CreateRequest(ctx, ca.RequestSpec{
		Purpose: ca.PurposeServerTLS,
		Subject: ca.Subject{CommonName: "srv.acme.example"},
		SANText: "ip:999.999.0.1",
	})
	assert.ErrorIs(t, err, ca.ErrGenerationFailed)

	requests, err := reg.ListRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, requests)
}

func TestSign(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)
	saveTestIdentity(t, reg)

	_, err := engine.Initialize(ctx, false)
	require.NoError(t, err)

	req, err := engine.CreateRequest(ctx, ca.RequestSpec{
		Purpose: ca.PurposeServerTLS,
		Subject: ca.Subject{Organization: "Acme", CommonName: "server.acme.example"},
		SANText: "DNS:server.acme.example, 10.0.0.1, admin@acme.example",
	})
	require.NoError(t, err)

	cert, err := engine.Sign(ctx, req.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, req.ID, cert.RequestID)
	assert.Equal(t, "server.acme.example", cert.CommonName)
	assert.Equal(t, registry.SourceSigned, cert.Source)
	assert.NotEmpty(t, cert.SerialNumber)
	assert.Equal(t, req.PrivateKeyPEM, cert.PrivateKeyPEM)
	assert.Contains(t, cert.Subject, "/O=Acme/CN=server.acme.example")
	assert.Contains(t, cert.Issuer, "/CN=Test Root CA")

	// The request flips to signed.
	stored, err := reg.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusSigned, stored.Status)

	// The leaf chains to the root and carries the profile extensions.
	caCertPEM, err := engine.CACertificatePEM()
	require.NoError(t, err)
	caCert := parseCertPEM(t, caCertPEM)
	leaf := parseCertPEM(t, cert.CertificatePEM)

	require.NoError(t, leaf.CheckSignatureFrom(caCert))
	assert.Equal(t, x509.KeyUsageDigitalSignature|x509.KeyUsageKeyEncipherment, leaf.KeyUsage)
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, leaf.ExtKeyUsage)
	assert.True(t, leaf.BasicConstraintsValid)
	assert.False(t, leaf.IsCA)
	assert.Equal(t, caCert.SubjectKeyId, leaf.AuthorityKeyId)
	assert.NotEmpty(t, leaf.SubjectKeyId)
	assert.Equal(t, hex.EncodeToString(leaf.SerialNumber.Bytes()), cert.SerialNumber)
	assert.Equal(t, 365*24*time.Hour, leaf.NotAfter.Sub(leaf.NotBefore))

	// Issued certificates mark basic constraints critical.
	bcExt := findExtension(t, leaf.Extensions, testOIDBasicConstraints)
	assert.True(t, bcExt.Critical)

	assert.Contains(t, leaf.DNSNames, "server.acme.example")
	require.Len(t, leaf.IPAddresses, 1)
	assert.True(t, leaf.IPAddresses[0].Equal(net.ParseIP("10.0.0.1")))
	assert.Contains(t, leaf.EmailAddresses, "admin@acme.example")
}

func TestSign_CustomValidity(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)
	saveTestIdentity(t, reg)

	_, err := engine.Initialize(ctx, false)
	require.NoError(t, err)

	req, err := engine.CreateRequest(ctx, ca.RequestSpec{
		Purpose: ca.PurposeCodeSigning,
		Subject: ca.Subject{CommonName: "release.acme.example"},
	})
	require.NoError(t, err)

	cert, err := engine.Sign(ctx, req.ID, 30)
	require.NoError(t, err)

	leaf := parseCertPEM(t, cert.CertificatePEM)
	assert.Equal(t, 30*24*time.Hour, leaf.NotAfter.Sub(leaf.NotBefore))
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning}, leaf.ExtKeyUsage)
}

func TestSign_NotInitialized(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)

	req, err := engine.CreateRequest(ctx, ca.RequestSpec{
		Purpose: ca.PurposeServerTLS,
		Subject: ca.Subject{CommonName: "server.acme.example"},
	})
	require.NoError(t, err)

	_, err = engine.Sign(ctx, req.ID, 0)
	assert.ErrorIs(t, err, ca.ErrCANotInitialized)

	certs, err := reg.ListCertificates(ctx)
	require.NoError(t, err)
	assert.Empty(t, certs)
}

func TestSign_RequestNotFound(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)
	saveTestIdentity(t, reg)

	_, err := engine.Initialize(ctx, false)
	require.NoError(t, err)

	_, err = engine.Sign(ctx, "b7f9620d-0000-0000-0000-000000000000", 0)
	assert.ErrorIs(t, err, ca.ErrRequestNotFound)
}

func TestSign_AlreadySigned(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)
	saveTestIdentity(t, reg)

	_, err := engine.Initialize(ctx, false)
	require.NoError(t, err)

	req, err := engine.CreateRequest(ctx, ca.RequestSpec{
		Purpose: ca.PurposeServerTLS,
		Subject: ca.Subject{CommonName: "once.acme.example"},
	})
	require.NoError(t, err)

	_, err = engine.Sign(ctx, req.ID, 0)
	require.NoError(t, err)

	_, err = engine.Sign(ctx, req.ID, 0)
	assert.ErrorIs(t, err, ca.ErrAlreadySigned)

	certs, err := reg.ListCertificates(ctx)
	require.NoError(t, err)
	assert.Len(t, certs, 1)
}

func TestSign_Concurrent(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)
	saveTestIdentity(t, reg)

	_, err := engine.Initialize(ctx, false)
	require.NoError(t, err)

	// Whatever the interleaving, one signer wins and the rest observe
	// the request as already signed.
	for trial := 0; trial < 4; trial++ {
		req, err := engine.CreateRequest(ctx, ca.RequestSpec{
			Purpose: ca.PurposeClientTLS,
			Subject: ca.Subject{CommonName: "contended.acme.example"},
		})
		require.NoError(t, err)

		const signers = 6
		errs := make(chan error, signers)
		var wg sync.WaitGroup
		for i := 0; i < signers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := engine.Sign(ctx, req.ID, 0)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		var won, lost int
		for err := range errs {
			switch {
			case err == nil:
				won++
			case errors.Is(err, ca.ErrAlreadySigned):
				lost++
			default:
				t.Fatalf("unexpected signing error: %v", err)
			}
		}
		assert.Equal(t, 1, won)
		assert.Equal(t, signers-1, lost)
	}

	certs, err := reg.ListCertificates(ctx)
	require.NoError(t, err)
	assert.Len(t, certs, 4)
}

func TestImportCertificate(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)
	saveTestIdentity(t, reg)

	_, err := engine.Initialize(ctx, false)
	require.NoError(t, err)
	certPEM, err := engine.CACertificatePEM()
	require.NoError(t, err)

	cert, err := engine.ImportCertificate(ctx, certPEM, "", "")
	require.NoError(t, err)
	assert.Equal(t, registry.SourceImported, cert.Source)
	assert.Empty(t, cert.RequestID)
	assert.Equal(t, "Test Root CA", cert.CommonName)
	assert.NotEmpty(t, cert.SerialNumber)

	stored, err := reg.GetCertificate(ctx, cert.ID)
	require.NoError(t, err)
	assert.Equal(t, certPEM, stored.CertificatePEM)
}

func TestImportCertificate_NoCommonName(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"Acme"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	certPEM := string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))

	cert, err := engine.ImportCertificate(ctx, certPEM, "", "")
	require.NoError(t, err)
	assert.Equal(t, ca.UnknownCommonName, cert.CommonName)
}

func TestImportCertificate_Invalid(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)

	_, err := engine.ImportCertificate(ctx, "not a certificate", "", "")
	assert.ErrorIs(t, err, ca.ErrInvalidCertificate)

	certs, err := reg.ListCertificates(ctx)
	require.NoError(t, err)
	assert.Empty(t, certs)
}
