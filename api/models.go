package api

import "time"

// SetupRequest is the JSON body for POST /auth/setup.
type SetupRequest struct {
	SetupToken string `json:"setup_token"`
	Passphrase string `json:"passphrase"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Passphrase string `json:"passphrase"`
}

// SessionResponse is returned from GET /auth/session.
type SessionResponse struct {
	Authenticated bool      `json:"authenticated"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// CAIdentityRequest is the JSON body for PUT /ca.
type CAIdentityRequest struct {
	CommonName         string `json:"common_name"`
	Organization       string `json:"organization,omitempty"`
	OrganizationalUnit string `json:"organizational_unit,omitempty"`
	Country            string `json:"country,omitempty"`
	State              string `json:"state,omitempty"`
	Locality           string `json:"locality,omitempty"`
	KeySize            int    `json:"key_size,omitempty"`
}

// CAIdentityResponse is returned from GET /ca and PUT /ca.
type CAIdentityResponse struct {
	CommonName         string    `json:"common_name"`
	Organization       string    `json:"organization,omitempty"`
	OrganizationalUnit string    `json:"organizational_unit,omitempty"`
	Country            string    `json:"country,omitempty"`
	State              string    `json:"state,omitempty"`
	Locality           string    `json:"locality,omitempty"`
	KeyAlgorithm       string    `json:"key_algorithm"`
	KeySize            int       `json:"key_size"`
	Initialized        bool      `json:"initialized"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// InitCARequest is the JSON body for POST /ca/init.
type InitCARequest struct {
	Force bool `json:"force,omitempty"`
}

// CreateRequestRequest is the JSON body for POST /requests.
type CreateRequestRequest struct {
	Purpose            string `json:"purpose"`
	CommonName         string `json:"common_name"`
	Organization       string `json:"organization,omitempty"`
	OrganizationalUnit string `json:"organizational_unit,omitempty"`
	Country            string `json:"country,omitempty"`
	State              string `json:"state,omitempty"`
	Locality           string `json:"locality,omitempty"`
	Email              string `json:"email,omitempty"`
	SAN                string `json:"san,omitempty"`
	KeySize            int    `json:"key_size,omitempty"`
}

// RequestResponse describes one signing request.
type RequestResponse struct {
	ID                 string    `json:"id"`
	Purpose            string    `json:"purpose"`
	CommonName         string    `json:"common_name"`
	Organization       string    `json:"organization,omitempty"`
	OrganizationalUnit string    `json:"organizational_unit,omitempty"`
	Country            string    `json:"country,omitempty"`
	State              string    `json:"state,omitempty"`
	Locality           string    `json:"locality,omitempty"`
	Email              string    `json:"email,omitempty"`
	SAN                string    `json:"san,omitempty"`
	KeyAlgorithm       string    `json:"key_algorithm"`
	KeySize            int       `json:"key_size"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ListRequestsResponse is returned from GET /requests.
type ListRequestsResponse struct {
	Requests []RequestResponse `json:"requests"`
}

// SignRequestRequest is the JSON body for POST /requests/{requestID}/sign.
type SignRequestRequest struct {
	ValidityDays int `json:"validity_days,omitempty"`
}

// CertificateResponse describes one certificate record. PEM material is
// not inlined; it is fetched through the download endpoints.
type CertificateResponse struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"request_id,omitempty"`
	CommonName    string    `json:"common_name"`
	SerialNumber  string    `json:"serial_number"`
	Issuer        string    `json:"issuer"`
	Subject       string    `json:"subject"`
	NotBefore     time.Time `json:"not_before"`
	NotAfter      time.Time `json:"not_after"`
	Source        string    `json:"source"`
	HasPrivateKey bool      `json:"has_private_key"`
	HasChain      bool      `json:"has_chain"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListCertificatesResponse is returned from GET /certificates.
type ListCertificatesResponse struct {
	Certificates []CertificateResponse `json:"certificates"`
}

// ImportCertificateRequest is the JSON body for POST /certificates/import.
type ImportCertificateRequest struct {
	CertificatePEM string `json:"certificate_pem"`
	PrivateKeyPEM  string `json:"private_key_pem,omitempty"`
	ChainPEM       string `json:"chain_pem,omitempty"`
}

// ExportCertificateRequest is the JSON body for
// POST /certificates/{certID}/export.
type ExportCertificateRequest struct {
	Password string `json:"password"`
}

// AuditEntryResponse describes one audit trail entry.
type AuditEntryResponse struct {
	ID         string `json:"id"`
	Action     string `json:"action"`
	Actor      string `json:"actor,omitempty"`
	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
	Detail     string `json:"detail,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	PrevHash   string `json:"prev_hash"`
	CreatedAt  string `json:"created_at"`
}

// ListAuditResponse is returned from GET /audit.
type ListAuditResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
}

// AuditExportResponse is returned from GET /audit/export: the full chain,
// oldest first, suitable for offline verification.
type AuditExportResponse struct {
	ExportedAt string               `json:"exported_at"`
	Entries    []AuditEntryResponse `json:"entries"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error string `json:"error"`
}
