package ca

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"strings"
)

// Distinguished-name attribute OIDs, in canonical emission order.
var (
	oidCountry            = asn1.ObjectIdentifier{2, 5, 4, 6}
	oidState              = asn1.ObjectIdentifier{2, 5, 4, 8}
	oidLocality           = asn1.ObjectIdentifier{2, 5, 4, 7}
	oidOrganization       = asn1.ObjectIdentifier{2, 5, 4, 10}
	oidOrganizationalUnit = asn1.ObjectIdentifier{2, 5, 4, 11}
	oidCommonName         = asn1.ObjectIdentifier{2, 5, 4, 3}
	oidEmailAddress       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}
)

// Subject holds the distinguished-name attributes of a CA identity or a
// signing request. Email is carried on signing requests only; CA
// identities leave it empty.
type Subject struct {
	Country            string
	State              string
	Locality           string
	Organization       string
	OrganizationalUnit string
	CommonName         string
	Email              string
}

// Validate checks that the subject can be emitted. The common name is
// the only mandatory attribute.
func (s Subject) Validate() error {
	if strings.TrimSpace(s.CommonName) == "" {
		return ErrMissingCommonName
	}
	return nil
}

// attributes returns the non-empty DN attributes in canonical order:
// C, ST, L, O, OU, CN, emailAddress.
func (s Subject) attributes() []pkix.AttributeTypeAndValue {
	attrs := make([]pkix.AttributeTypeAndValue, 0, 7)
	add := func(oid asn1.ObjectIdentifier, value string) {
		if value != "" {
			attrs = append(attrs, pkix.AttributeTypeAndValue{Type: oid, Value: value})
		}
	}
	add(oidCountry, s.Country)
	add(oidState, s.State)
	add(oidLocality, s.Locality)
	add(oidOrganization, s.Organization)
	add(oidOrganizationalUnit, s.OrganizationalUnit)
	add(oidCommonName, s.CommonName)
	add(oidEmailAddress, s.Email)
	return attrs
}

// RawDN encodes the subject as a DER distinguished name, one RDN per
// attribute, preserving the canonical attribute order. Empty attributes
// are omitted entirely.
func (s Subject) RawDN() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	var rdns pkix.RDNSequence
	for _, attr := range s.attributes() {
		rdns = append(rdns, []pkix.AttributeTypeAndValue{attr})
	}
	der, err := asn1.Marshal(rdns)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding subject: %v", ErrGenerationFailed, err)
	}
	return der, nil
}

// String renders the subject in one-line slash form, e.g.
// "/C=US/O=Acme/CN=example.com". Empty attributes are omitted.
func (s Subject) String() string {
	var b strings.Builder
	for _, part := range []struct{ key, value string }{
		{"C", s.Country},
		{"ST", s.State},
		{"L", s.Locality},
		{"O", s.Organization},
		{"OU", s.OrganizationalUnit},
		{"CN", s.CommonName},
		{"emailAddress", s.Email},
	} {
		if part.value != "" {
			b.WriteByte('/')
			b.WriteString(part.key)
			b.WriteByte('=')
			b.WriteString(part.value)
		}
	}
	return b.String()
}

// subjectFromName rebuilds a Subject from a parsed pkix.Name so parsed
// certificates render through the same canonical form.
func subjectFromName(name pkix.Name) Subject {
	first := func(values []string) string {
		if len(values) > 0 {
			return values[0]
		}
		return ""
	}
	s := Subject{
		Country:            first(name.Country),
		State:              first(name.Province),
		Locality:           first(name.Locality),
		Organization:       first(name.Organization),
		OrganizationalUnit: first(name.OrganizationalUnit),
		CommonName:         name.CommonName,
	}
	for _, attr := range name.Names {
		if attr.Type.Equal(oidEmailAddress) {
			if email, ok := attr.Value.(string); ok {
				s.Email = email
			}
			break
		}
	}
	return s
}
