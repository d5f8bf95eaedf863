package ca_test

import (
	"context"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roarinpenguin/roarinca/ca"
)

func TestParseCertificatePEM(t *testing.T) {
	ctx := context.Background()
	engine, reg := newTestEngine(t)
	saveTestIdentity(t, reg)

	_, err := engine.Initialize(ctx, false)
	require.NoError(t, err)
	certPEM, err := engine.CACertificatePEM()
	require.NoError(t, err)

	meta, err := ca.ParseCertificatePEM(certPEM)
	require.NoError(t, err)
	assert.Equal(t, "Test Root CA", meta.CommonName)
	assert.Contains(t, meta.Subject, "/O=TestOrg")
	assert.Contains(t, meta.Subject, "/CN=Test Root CA")
	assert.Equal(t, meta.Subject, meta.Issuer)
	assert.NotEmpty(t, meta.SerialNumber)
	assert.True(t, meta.NotAfter.After(meta.NotBefore))
}

func TestParseCertificatePEM_Malformed(t *testing.T) {
	_, err := ca.ParseCertificatePEM("no pem here")
	assert.ErrorIs(t, err, ca.ErrInvalidCertificate)

	// Wrong block type.
	wrongType := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: []byte{0x30, 0x00}}))
	_, err = ca.ParseCertificatePEM(wrongType)
	assert.ErrorIs(t, err, ca.ErrInvalidCertificate)

	// Right block type, garbage DER.
	garbage := string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("junk")}))
	_, err = ca.ParseCertificatePEM(garbage)
	assert.ErrorIs(t, err, ca.ErrInvalidCertificate)
}
