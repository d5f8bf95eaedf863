package ca_test

import (
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roarinpenguin/roarinca/ca"
)

func TestResolveProfile(t *testing.T) {
	tests := []struct {
		purpose     ca.Purpose
		keyUsage    x509.KeyUsage
		extKeyUsage []x509.ExtKeyUsage
	}{
		{ca.PurposeServerTLS, x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}},
		{ca.PurposeClientTLS, x509.KeyUsageDigitalSignature, []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}},
		{ca.PurposeCodeSigning, x509.KeyUsageDigitalSignature, []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning}},
	}
	for _, tc := range tests {
		t.Run(string(tc.purpose), func(t *testing.T) {
			profile, err := ca.ResolveProfile(tc.purpose)
			require.NoError(t, err)
			assert.Equal(t, tc.keyUsage, profile.KeyUsage)
			assert.Equal(t, tc.extKeyUsage, profile.ExtKeyUsage)
		})
	}
}

func TestResolveProfile_UnknownPurpose(t *testing.T) {
	_, err := ca.ResolveProfile("intermediate_ca")
	assert.ErrorIs(t, err, ca.ErrInvalidProfile)

	_, err = ca.ResolveProfile("")
	assert.ErrorIs(t, err, ca.ErrInvalidProfile)

	// Purposes are exact tags, not case-insensitive.
	_, err = ca.ResolveProfile("Server_TLS")
	assert.ErrorIs(t, err, ca.ErrInvalidProfile)
}
