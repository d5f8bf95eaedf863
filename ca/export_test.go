package ca_test

import (
	"context"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/roarinpenguin/roarinca/ca"
	"github.com/roarinpenguin/roarinca/registry"
)

func TestFullchainPEM(t *testing.T) {
	cert := &registry.Certificate{CertificatePEM: "-----BEGIN CERTIFICATE-----\nleaf\n-----END CERTIFICATE-----"}
	assert.Equal(t, cert.CertificatePEM, ca.FullchainPEM(cert))

	cert.ChainPEM = "-----BEGIN CERTIFICATE-----\nroot\n-----END CERTIFICATE-----"
	assert.Equal(t, cert.CertificatePEM+"\n"+cert.ChainPEM, ca.FullchainPEM(cert))
}

func TestExportPKCS12(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)
	saveTestIdentity(t, reg)

	_, err := engine.Initialize(ctx, false)
	require.NoError(t, err)

	req, err := engine.CreateRequest(ctx, ca.RequestSpec{
		Purpose: ca.PurposeServerTLS,
		Subject: ca.Subject{CommonName: "bundle.acme.example"},
	})
	require.NoError(t, err)
	cert, err := engine.Sign(ctx, req.ID, 0)
	require.NoError(t, err)

	bundle, err := ca.ExportPKCS12(cert, "secret")
	require.NoError(t, err)
	require.NotEmpty(t, bundle)

	// The bundle opens with the same password and carries the leaf key pair.
	key, leaf, _, err := pkcs12.DecodeChain(bundle, "secret")
	require.NoError(t, err)
	assert.Equal(t, "bundle.acme.example", leaf.Subject.CommonName)
	rsaKey, ok := key.(*rsa.PrivateKey)
	require.True(t, ok)
	assert.True(t, leaf.PublicKey.(*rsa.PublicKey).Equal(&rsaKey.PublicKey))

	_, _, _, err = pkcs12.DecodeChain(bundle, "wrong")
	assert.Error(t, err)
}

func TestExportPKCS12_PasswordRequired(t *testing.T) {
	cert := &registry.Certificate{CertificatePEM: "x", PrivateKeyPEM: "y"}
	_, err := ca.ExportPKCS12(cert, "")
	assert.ErrorIs(t, err, ca.ErrExportPasswordRequired)
}

func TestExportPKCS12_KeyUnavailable(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)
	saveTestIdentity(t, reg)

	_, err := engine.Initialize(ctx, false)
	require.NoError(t, err)
	certPEM, err := engine.CACertificatePEM()
	require.NoError(t, err)

	// Imported without key material.
	imported, err := engine.ImportCertificate(ctx, certPEM, "", "")
	require.NoError(t, err)

	_, err = ca.ExportPKCS12(imported, "secret")
	assert.ErrorIs(t, err, ca.ErrKeyUnavailable)
}
