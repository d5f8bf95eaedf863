package registry

import "time"

// Signing request status values. A request moves from pending to signed
// exactly once and never back.
const (
	StatusPending = "pending"
	StatusSigned  = "signed"
)

// Certificate source values.
const (
	SourceSigned   = "signed"
	SourceImported = "imported"
)

// KeyAlgorithmRSA is the only supported key algorithm.
const KeyAlgorithmRSA = "RSA"

// CAIdentity is the singleton record describing the authority's subject
// and key parameters. It is created on the first settings save and marked
// initialized once the root key and certificate artifacts exist.
type CAIdentity struct {
	CommonName         string    `json:"common_name"`
	Organization       string    `json:"organization"`
	OrganizationalUnit string    `json:"organizational_unit"`
	Country            string    `json:"country"`
	State              string    `json:"state"`
	Locality           string    `json:"locality"`
	KeyAlgorithm       string    `json:"key_algorithm"`
	KeySize            int       `json:"key_size"`
	Initialized        bool      `json:"initialized"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	// Version is the storage record version, maintained by the registry.
	Version uint64 `json:"-"`
}

// SigningRequest is one generated certificate signing request together
// with its private key material. The request owns its key for the
// lifetime of the record.
type SigningRequest struct {
	ID                 string    `json:"id"`
	Purpose            string    `json:"purpose"`
	CommonName         string    `json:"common_name"`
	Organization       string    `json:"organization"`
	OrganizationalUnit string    `json:"organizational_unit"`
	Country            string    `json:"country"`
	State              string    `json:"state"`
	Locality           string    `json:"locality"`
	Email              string    `json:"email"`
	SANText            string    `json:"san_text"`
	KeyAlgorithm       string    `json:"key_algorithm"`
	KeySize            int       `json:"key_size"`
	RequestPEM         string    `json:"request_pem"`
	PrivateKeyPEM      string    `json:"private_key_pem"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	Version uint64 `json:"-"`
}

// Certificate is one issued or imported certificate. RequestID references
// the originating signing request and is empty for imports. Key and chain
// material are optional; imported certificates may carry neither.
type Certificate struct {
	ID             string    `json:"id"`
	RequestID      string    `json:"request_id,omitempty"`
	CommonName     string    `json:"common_name"`
	SerialNumber   string    `json:"serial_number"`
	Issuer         string    `json:"issuer"`
	Subject        string    `json:"subject"`
	NotBefore      time.Time `json:"not_before"`
	NotAfter       time.Time `json:"not_after"`
	CertificatePEM string    `json:"certificate_pem"`
	PrivateKeyPEM  string    `json:"private_key_pem,omitempty"`
	ChainPEM       string    `json:"chain_pem,omitempty"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Version uint64 `json:"-"`
}
