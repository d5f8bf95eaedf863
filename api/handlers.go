package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roarinpenguin/roarinca/ca"
	"github.com/roarinpenguin/roarinca/registry"
)

// validKeySizes lists the accepted RSA modulus sizes.
var validKeySizes = map[int]bool{2048: true, 3072: true, 4096: true}

// ---------------------------------------------------------------------------
// CA identity and lifecycle
// ---------------------------------------------------------------------------

// DownloadCACertificate handles GET /ca/certificate. It requires no
// authentication so clients can fetch the trust anchor directly.
func (a *API) DownloadCACertificate(w http.ResponseWriter, r *http.Request) {
	certPEM, err := a.engine.CACertificatePEM()
	if err != nil {
		a.mapError(w, err)
		return
	}
	writePEMDownload(w, "ca.pem", certPEM)
}

// GetCAIdentity handles GET /ca.
func (a *API) GetCAIdentity(w http.ResponseWriter, r *http.Request) {
	identity, err := a.reg.GetIdentity(r.Context())
	if err != nil {
		a.mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, identityToResponse(identity))
}

// SaveCAIdentity handles PUT /ca. Saving after initialization records the
// new settings but never rewrites the existing root certificate; a force
// re-initialization is required for that.
func (a *API) SaveCAIdentity(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CAIdentityRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	if req.CommonName == "" {
		writeError(w, http.StatusBadRequest, "common_name is required")
		return
	}
	if req.KeySize != 0 && !validKeySizes[req.KeySize] {
		writeError(w, http.StatusBadRequest, "key_size must be 2048, 3072 or 4096")
		return
	}

	now := time.Now().UTC()
	identity := &registry.CAIdentity{
		CommonName:         req.CommonName,
		Organization:       req.Organization,
		OrganizationalUnit: req.OrganizationalUnit,
		Country:            req.Country,
		State:              req.State,
		Locality:           req.Locality,
		KeyAlgorithm:       registry.KeyAlgorithmRSA,
		KeySize:            req.KeySize,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if identity.KeySize == 0 {
		identity.KeySize = ca.DefaultKeySize
	}

	// Carry forward lifecycle state from the existing record.
	if existing, err := a.reg.GetIdentity(r.Context()); err == nil {
		identity.Initialized = existing.Initialized
		identity.CreatedAt = existing.CreatedAt
		identity.Version = existing.Version
	}

	if err := a.reg.SaveIdentity(r.Context(), identity); err != nil {
		a.mapError(w, err)
		return
	}

	a.recordAudit(r, AuditCASettingsSaved, "admin", "ca", "", identity.CommonName)
	writeJSON(w, http.StatusOK, identityToResponse(identity))
}

// InitializeCA handles POST /ca/init.
func (a *API) InitializeCA(w http.ResponseWriter, r *http.Request) {
	var req InitCARequest
	if r.ContentLength != 0 {
		var ok bool
		req, ok = decodeJSON[InitCARequest](w, r, maxSmallBodySize)
		if !ok {
			return
		}
	}

	identity, err := a.engine.Initialize(r.Context(), req.Force)
	if err != nil {
		a.mapError(w, err)
		return
	}

	detail := identity.CommonName
	if req.Force {
		detail += " (forced)"
	}
	a.recordAudit(r, AuditCAInitialized, "admin", "ca", "", detail)
	writeJSON(w, http.StatusCreated, identityToResponse(identity))
}

// ---------------------------------------------------------------------------
// Signing requests
// ---------------------------------------------------------------------------

// CreateRequest handles POST /requests.
func (a *API) CreateRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateRequestRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	if req.KeySize != 0 && !validKeySizes[req.KeySize] {
		writeError(w, http.StatusBadRequest, "key_size must be 2048, 3072 or 4096")
		return
	}

	spec := ca.RequestSpec{
		Purpose: ca.Purpose(req.Purpose),
		Subject: ca.Subject{
			Country:            req.Country,
			State:              req.State,
			Locality:           req.Locality,
			Organization:       req.Organization,
			OrganizationalUnit: req.OrganizationalUnit,
			CommonName:         req.CommonName,
			Email:              req.Email,
		},
		SANText: req.SAN,
		KeySize: req.KeySize,
	}
	request, err := a.engine.CreateRequest(r.Context(), spec)
	if err != nil {
		a.mapError(w, err)
		return
	}

	a.recordAudit(r, AuditRequestCreated, "admin", "request", request.ID, request.CommonName)
	writeJSON(w, http.StatusCreated, requestToResponse(request))
}

// ListRequests handles GET /requests.
func (a *API) ListRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := a.reg.ListRequests(r.Context())
	if err != nil {
		a.mapError(w, err)
		return
	}

	page, perPage := parsePagination(r)
	start, end := paginateSlice(len(requests), page, perPage)
	writePaginationHeaders(w, len(requests), page, perPage)

	out := make([]RequestResponse, 0, end-start)
	for _, request := range requests[start:end] {
		out = append(out, requestToResponse(request))
	}
	writeJSON(w, http.StatusOK, ListRequestsResponse{Requests: out})
}

// GetRequest handles GET /requests/{requestID}.
func (a *API) GetRequest(w http.ResponseWriter, r *http.Request) {
	request, err := a.reg.GetRequest(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		a.mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requestToResponse(request))
}

// DeleteRequest handles DELETE /requests/{requestID}. Deleting a request
// discards its private key; certificates already issued from it survive.
func (a *API) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	if err := a.reg.DeleteRequest(r.Context(), requestID); err != nil {
		a.mapError(w, err)
		return
	}
	a.recordAudit(r, AuditRequestDeleted, "admin", "request", requestID, "")
	writeJSON(w, http.StatusOK, struct{}{})
}

// DownloadRequestPEM handles GET /requests/{requestID}/request.pem.
func (a *API) DownloadRequestPEM(w http.ResponseWriter, r *http.Request) {
	request, err := a.reg.GetRequest(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		a.mapError(w, err)
		return
	}
	writePEMDownload(w, fmt.Sprintf("request-%s.pem", request.ID), request.RequestPEM)
}

// DownloadRequestKeyPEM handles GET /requests/{requestID}/key.pem.
func (a *API) DownloadRequestKeyPEM(w http.ResponseWriter, r *http.Request) {
	request, err := a.reg.GetRequest(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		a.mapError(w, err)
		return
	}

	a.recordAudit(r, AuditPrivateKeyAccessed, "admin", "request", request.ID, request.CommonName)
	writePEMDownload(w, fmt.Sprintf("key-%s.pem", request.ID), request.PrivateKeyPEM)
}

// SignRequest handles POST /requests/{requestID}/sign. The body is
// optional; without one the default validity applies.
func (a *API) SignRequest(w http.ResponseWriter, r *http.Request) {
	var req SignRequestRequest
	if r.ContentLength != 0 {
		var ok bool
		req, ok = decodeJSON[SignRequestRequest](w, r, maxSmallBodySize)
		if !ok {
			return
		}
	}
	if req.ValidityDays < 0 {
		writeError(w, http.StatusBadRequest, "validity_days must not be negative")
		return
	}

	cert, err := a.engine.Sign(r.Context(), chi.URLParam(r, "requestID"), req.ValidityDays)
	if err != nil {
		a.mapError(w, err)
		return
	}

	a.recordAudit(r, AuditCSRSigned, "admin", "certificate", cert.ID,
		fmt.Sprintf("%s serial=%s", cert.CommonName, cert.SerialNumber))
	writeJSON(w, http.StatusCreated, certificateToResponse(cert))
}

// ---------------------------------------------------------------------------
// Certificates
// ---------------------------------------------------------------------------

// ListCertificates handles GET /certificates.
func (a *API) ListCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := a.reg.ListCertificates(r.Context())
	if err != nil {
		a.mapError(w, err)
		return
	}

	page, perPage := parsePagination(r)
	start, end := paginateSlice(len(certs), page, perPage)
	writePaginationHeaders(w, len(certs), page, perPage)

	out := make([]CertificateResponse, 0, end-start)
	for _, cert := range certs[start:end] {
		out = append(out, certificateToResponse(cert))
	}
	writeJSON(w, http.StatusOK, ListCertificatesResponse{Certificates: out})
}

// ImportCertificate handles POST /certificates/import.
func (a *API) ImportCertificate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ImportCertificateRequest](w, r, maxPEMBodySize)
	if !ok {
		return
	}
	if req.CertificatePEM == "" {
		writeError(w, http.StatusBadRequest, "certificate_pem is required")
		return
	}

	cert, err := a.engine.ImportCertificate(r.Context(), req.CertificatePEM, req.PrivateKeyPEM, req.ChainPEM)
	if err != nil {
		a.mapError(w, err)
		return
	}

	a.recordAudit(r, AuditCertImported, "admin", "certificate", cert.ID, cert.CommonName)
	writeJSON(w, http.StatusCreated, certificateToResponse(cert))
}

// GetCertificate handles GET /certificates/{certID}.
func (a *API) GetCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := a.reg.GetCertificate(r.Context(), chi.URLParam(r, "certID"))
	if err != nil {
		a.mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, certificateToResponse(cert))
}

// DeleteCertificate handles DELETE /certificates/{certID}.
func (a *API) DeleteCertificate(w http.ResponseWriter, r *http.Request) {
	certID := chi.URLParam(r, "certID")
	if err := a.reg.DeleteCertificate(r.Context(), certID); err != nil {
		a.mapError(w, err)
		return
	}
	a.recordAudit(r, AuditCertDeleted, "admin", "certificate", certID, "")
	writeJSON(w, http.StatusOK, struct{}{})
}

// DownloadCertificatePEM handles GET /certificates/{certID}/certificate.pem.
func (a *API) DownloadCertificatePEM(w http.ResponseWriter, r *http.Request) {
	cert, err := a.reg.GetCertificate(r.Context(), chi.URLParam(r, "certID"))
	if err != nil {
		a.mapError(w, err)
		return
	}
	writePEMDownload(w, fmt.Sprintf("certificate-%s.pem", cert.ID), cert.CertificatePEM)
}

// DownloadCertificateKeyPEM handles GET /certificates/{certID}/key.pem.
func (a *API) DownloadCertificateKeyPEM(w http.ResponseWriter, r *http.Request) {
	cert, err := a.reg.GetCertificate(r.Context(), chi.URLParam(r, "certID"))
	if err != nil {
		a.mapError(w, err)
		return
	}
	if cert.PrivateKeyPEM == "" {
		a.mapError(w, ca.ErrKeyUnavailable)
		return
	}

	a.recordAudit(r, AuditPrivateKeyAccessed, "admin", "certificate", cert.ID, cert.CommonName)
	writePEMDownload(w, fmt.Sprintf("key-%s.pem", cert.ID), cert.PrivateKeyPEM)
}

// DownloadFullchainPEM handles GET /certificates/{certID}/fullchain.pem.
func (a *API) DownloadFullchainPEM(w http.ResponseWriter, r *http.Request) {
	cert, err := a.reg.GetCertificate(r.Context(), chi.URLParam(r, "certID"))
	if err != nil {
		a.mapError(w, err)
		return
	}
	writePEMDownload(w, fmt.Sprintf("fullchain-%s.pem", cert.ID), ca.FullchainPEM(cert))
}

// ExportCertificate handles POST /certificates/{certID}/export. The
// response is a PKCS#12 bundle protected by the supplied password.
func (a *API) ExportCertificate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ExportCertificateRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	cert, err := a.reg.GetCertificate(r.Context(), chi.URLParam(r, "certID"))
	if err != nil {
		a.mapError(w, err)
		return
	}

	bundle, err := ca.ExportPKCS12(cert, req.Password)
	if err != nil {
		a.mapError(w, err)
		return
	}

	a.recordAudit(r, AuditPKCS12Exported, "admin", "certificate", cert.ID, cert.CommonName)

	w.Header().Set("Content-Type", "application/x-pkcs12")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("certificate-%s.p12", cert.ID)))
	w.WriteHeader(http.StatusOK)
	w.Write(bundle)
}

// ---------------------------------------------------------------------------
// Audit trail
// ---------------------------------------------------------------------------

// ListAudit handles GET /audit, newest entries first.
func (a *API) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := a.listAuditEntries()
	if err != nil {
		a.mapError(w, err)
		return
	}

	page, perPage := parsePagination(r)
	start, end := paginateSlice(len(entries), page, perPage)
	writePaginationHeaders(w, len(entries), page, perPage)

	out := make([]AuditEntryResponse, 0, end-start)
	for _, entry := range entries[start:end] {
		out = append(out, auditEntryToResponse(entry))
	}
	writeJSON(w, http.StatusOK, ListAuditResponse{Entries: out})
}

// ExportAudit handles GET /audit/export. The export carries the complete
// chain oldest-first so it can be verified offline; the export event
// itself lands in the trail after the snapshot is taken.
func (a *API) ExportAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := a.loadAuditEntries()
	if err != nil {
		a.mapError(w, err)
		return
	}

	out := make([]AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, auditEntryToResponse(entry))
	}

	a.recordAudit(r, AuditTrailExported, "admin", "audit", "", fmt.Sprintf("%d entries", len(out)))
	writeJSON(w, http.StatusOK, AuditExportResponse{
		ExportedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Entries:    out,
	})
}

// ---------------------------------------------------------------------------
// Response mapping
// ---------------------------------------------------------------------------

func writePEMDownload(w http.ResponseWriter, filename, pemText string) {
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, pemText)
}

func identityToResponse(identity *registry.CAIdentity) CAIdentityResponse {
	return CAIdentityResponse{
		CommonName:         identity.CommonName,
		Organization:       identity.Organization,
		OrganizationalUnit: identity.OrganizationalUnit,
		Country:            identity.Country,
		State:              identity.State,
		Locality:           identity.Locality,
		KeyAlgorithm:       identity.KeyAlgorithm,
		KeySize:            identity.KeySize,
		Initialized:        identity.Initialized,
		CreatedAt:          identity.CreatedAt,
		UpdatedAt:          identity.UpdatedAt,
	}
}

func requestToResponse(request *registry.SigningRequest) RequestResponse {
	return RequestResponse{
		ID:                 request.ID,
		Purpose:            request.Purpose,
		CommonName:         request.CommonName,
		Organization:       request.Organization,
		OrganizationalUnit: request.OrganizationalUnit,
		Country:            request.Country,
		State:              request.State,
		Locality:           request.Locality,
		Email:              request.Email,
		SAN:                request.SANText,
		KeyAlgorithm:       request.KeyAlgorithm,
		KeySize:            request.KeySize,
		Status:             request.Status,
		CreatedAt:          request.CreatedAt,
		UpdatedAt:          request.UpdatedAt,
	}
}

func certificateToResponse(cert *registry.Certificate) CertificateResponse {
	return CertificateResponse{
		ID:            cert.ID,
		RequestID:     cert.RequestID,
		CommonName:    cert.CommonName,
		SerialNumber:  cert.SerialNumber,
		Issuer:        cert.Issuer,
		Subject:       cert.Subject,
		NotBefore:     cert.NotBefore,
		NotAfter:      cert.NotAfter,
		Source:        cert.Source,
		HasPrivateKey: cert.PrivateKeyPEM != "",
		HasChain:      cert.ChainPEM != "",
		CreatedAt:     cert.CreatedAt,
	}
}

func auditEntryToResponse(entry auditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:         entry.ID,
		Action:     entry.Action,
		Actor:      entry.Actor,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		Detail:     entry.Detail,
		RemoteAddr: entry.RemoteAddr,
		PrevHash:   entry.PrevHash,
		CreatedAt:  entry.CreatedAt,
	}
}
