package ca

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"time"
)

// UnknownCommonName is the fallback value for certificates whose subject
// carries no CN attribute.
const UnknownCommonName = "Unknown"

// Metadata is the parsed summary of one PEM certificate.
type Metadata struct {
	CommonName   string    `json:"common_name"`
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	SerialNumber string    `json:"serial_number"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`
}

// ParseCertificatePEM extracts metadata from a PEM certificate. Malformed
// material fails with ErrInvalidCertificate; a subject without a CN is
// not an error and yields UnknownCommonName.
func ParseCertificatePEM(certPEM string) (*Metadata, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, ErrInvalidCertificate
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	cn := firstAttribute(cert.Subject.Names, oidCommonName)
	if cn == "" {
		cn = UnknownCommonName
	}
	return &Metadata{
		CommonName:   cn,
		Subject:      subjectFromName(cert.Subject).String(),
		Issuer:       subjectFromName(cert.Issuer).String(),
		SerialNumber: hex.EncodeToString(cert.SerialNumber.Bytes()),
		NotBefore:    cert.NotBefore.UTC(),
		NotAfter:     cert.NotAfter.UTC(),
	}, nil
}

// firstAttribute returns the first string value of the given attribute
// OID in DN encounter order.
func firstAttribute(names []pkix.AttributeTypeAndValue, oid asn1.ObjectIdentifier) string {
	for _, attr := range names {
		if attr.Type.Equal(oid) {
			if value, ok := attr.Value.(string); ok {
				return value
			}
		}
	}
	return ""
}
