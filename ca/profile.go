package ca

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
)

// Purpose names a certificate usage profile.
type Purpose string

// Supported certificate purposes.
const (
	PurposeServerTLS   Purpose = "server_tls"
	PurposeClientTLS   Purpose = "client_tls"
	PurposeCodeSigning Purpose = "code_signing"
)

// Profile is the key-usage and extended-key-usage pair applied to
// certificates of a given purpose. All profiles are end-entity profiles;
// basic constraints are always CA:FALSE.
type Profile struct {
	KeyUsage    x509.KeyUsage
	ExtKeyUsage []x509.ExtKeyUsage
}

// ResolveProfile maps a purpose to its fixed extension profile. Unknown
// purposes fail with ErrInvalidProfile.
func ResolveProfile(purpose Purpose) (Profile, error) {
	switch purpose {
	case PurposeServerTLS:
		return Profile{
			KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
			ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		}, nil
	case PurposeClientTLS:
		return Profile{
			KeyUsage:    x509.KeyUsageDigitalSignature,
			ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		}, nil
	case PurposeCodeSigning:
		return Profile{
			KeyUsage:    x509.KeyUsageDigitalSignature,
			ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
		}, nil
	default:
		return Profile{}, fmt.Errorf("%w: %q", ErrInvalidProfile, purpose)
	}
}

// ---------------------------------------------------------------------------
// Requested-extension encoding (RFC 5280 section 4.2)
// ---------------------------------------------------------------------------

var (
	oidExtensionBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}
	oidExtensionKeyUsage         = asn1.ObjectIdentifier{2, 5, 29, 15}
	oidExtensionExtendedKeyUsage = asn1.ObjectIdentifier{2, 5, 29, 37}
)

var (
	oidExtKeyUsageServerAuth  = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 1}
	oidExtKeyUsageClientAuth  = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 2}
	oidExtKeyUsageCodeSigning = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 3}
)

// basicConstraints is the ASN.1 structure of the basicConstraints
// extension. DEFAULT FALSE and an absent path length are both omitted
// from the encoding.
type basicConstraints struct {
	IsCA       bool `asn1:"optional"`
	MaxPathLen int  `asn1:"optional,default:-1"`
}

// requestExtensions builds the extension set embedded in a PKCS#10
// request: key usage (critical), extended key usage, and a non-critical
// CA:FALSE basic constraint. The signing path re-derives its own set from
// the profile, where basic constraints come out critical.
func requestExtensions(profile Profile) ([]pkix.Extension, error) {
	kuDER, err := asn1.Marshal(encodeKeyUsage(profile.KeyUsage))
	if err != nil {
		return nil, fmt.Errorf("encoding key usage: %w", err)
	}
	ekuDER, err := encodeExtKeyUsage(profile.ExtKeyUsage)
	if err != nil {
		return nil, fmt.Errorf("encoding extended key usage: %w", err)
	}
	bcDER, err := asn1.Marshal(basicConstraints{IsCA: false, MaxPathLen: -1})
	if err != nil {
		return nil, fmt.Errorf("encoding basic constraints: %w", err)
	}
	return []pkix.Extension{
		{Id: oidExtensionBasicConstraints, Critical: false, Value: bcDER},
		{Id: oidExtensionKeyUsage, Critical: true, Value: kuDER},
		{Id: oidExtensionExtendedKeyUsage, Critical: false, Value: ekuDER},
	}, nil
}

// encodeKeyUsage encodes a key usage bitmask as an ASN.1 BIT STRING.
// RFC 5280 numbers the bits from the most significant end of the byte.
func encodeKeyUsage(ku x509.KeyUsage) asn1.BitString {
	var bits byte
	if ku&x509.KeyUsageDigitalSignature != 0 {
		bits |= 0x80 // bit 0
	}
	if ku&x509.KeyUsageContentCommitment != 0 {
		bits |= 0x40 // bit 1
	}
	if ku&x509.KeyUsageKeyEncipherment != 0 {
		bits |= 0x20 // bit 2
	}
	if ku&x509.KeyUsageDataEncipherment != 0 {
		bits |= 0x10 // bit 3
	}
	if ku&x509.KeyUsageKeyAgreement != 0 {
		bits |= 0x08 // bit 4
	}
	if ku&x509.KeyUsageCertSign != 0 {
		bits |= 0x04 // bit 5
	}
	if ku&x509.KeyUsageCRLSign != 0 {
		bits |= 0x02 // bit 6
	}
	if ku&x509.KeyUsageEncipherOnly != 0 {
		bits |= 0x01 // bit 7
	}

	bitLength := 8
	for i := 0; i < 8; i++ {
		if bits&(1<<i) != 0 {
			bitLength = 8 - i
			break
		}
	}

	return asn1.BitString{Bytes: []byte{bits}, BitLength: bitLength}
}

// encodeExtKeyUsage encodes an extended key usage list as an ASN.1
// sequence of OIDs.
func encodeExtKeyUsage(ekus []x509.ExtKeyUsage) ([]byte, error) {
	oids := make([]asn1.ObjectIdentifier, 0, len(ekus))
	for _, eku := range ekus {
		switch eku {
		case x509.ExtKeyUsageServerAuth:
			oids = append(oids, oidExtKeyUsageServerAuth)
		case x509.ExtKeyUsageClientAuth:
			oids = append(oids, oidExtKeyUsageClientAuth)
		case x509.ExtKeyUsageCodeSigning:
			oids = append(oids, oidExtKeyUsageCodeSigning)
		default:
			return nil, fmt.Errorf("unsupported extended key usage %d", eku)
		}
	}
	return asn1.Marshal(oids)
}
