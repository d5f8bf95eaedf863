// Package registry persists the certificate authority's typed records on
// top of the generic storage layer: the singleton identity, signing
// requests and issued certificates. Records are stored as JSON payloads;
// the registry owns version bookkeeping so state transitions can rely on
// the storage layer's compare-and-swap semantics.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/roarinpenguin/roarinca/storage"
)

// Record type tags under which registry records are persisted.
const (
	typeIdentity    = "ca_identity"
	typeRequest     = "signing_request"
	typeCertificate = "certificate"
)

// identityID is the fixed record ID of the singleton CA identity.
const identityID = "ca"

// Registry provides typed access to the CA's durable records.
type Registry struct {
	repo storage.Repository
}

// New returns a Registry backed by repo.
func New(repo storage.Repository) *Registry {
	return &Registry{repo: repo}
}

// ---------------------------------------------------------------------------
// CA identity
// ---------------------------------------------------------------------------

// SaveIdentity persists the singleton CA identity, creating the record on
// first save and replacing it afterwards.
func (r *Registry) SaveIdentity(ctx context.Context, identity *CAIdentity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	current, err := r.repo.Get(typeIdentity, identityID)
	switch {
	case err == nil:
		identity.Version = current.Version + 1
	case errors.Is(err, storage.ErrNotFound):
		identity.Version = 1
	default:
		return fmt.Errorf("loading CA identity: %w", err)
	}
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encoding CA identity: %w", err)
	}
	return r.repo.Put(typeIdentity, identityID, &storage.Record{Data: data, Version: identity.Version})
}

// GetIdentity loads the singleton CA identity. storage.ErrNotFound is
// returned when no identity has been saved yet.
func (r *Registry) GetIdentity(ctx context.Context) (*CAIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := r.repo.Get(typeIdentity, identityID)
	if err != nil {
		return nil, err
	}
	var identity CAIdentity
	if err := json.Unmarshal(rec.Data, &identity); err != nil {
		return nil, fmt.Errorf("decoding CA identity: %w", err)
	}
	identity.Version = rec.Version
	return &identity, nil
}

// ---------------------------------------------------------------------------
// Signing requests
// ---------------------------------------------------------------------------

// CreateRequest persists a new signing request. The write is conditional
// on the ID being unused.
func (r *Registry) CreateRequest(ctx context.Context, req *SigningRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req.Version = 1
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding signing request: %w", err)
	}
	return r.repo.PutCAS(typeRequest, req.ID, 0, &storage.Record{Data: data, Version: 1})
}

// GetRequest loads one signing request by ID.
func (r *Registry) GetRequest(ctx context.Context, id string) (*SigningRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := r.repo.Get(typeRequest, id)
	if err != nil {
		return nil, err
	}
	var req SigningRequest
	if err := json.Unmarshal(rec.Data, &req); err != nil {
		return nil, fmt.Errorf("decoding signing request %s: %w", id, err)
	}
	req.Version = rec.Version
	return &req, nil
}

// ListRequests returns all signing requests, newest first.
func (r *Registry) ListRequests(ctx context.Context) ([]*SigningRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, err := r.repo.List(typeRequest)
	if err != nil {
		return nil, err
	}
	requests := make([]*SigningRequest, 0, len(ids))
	for _, id := range ids {
		req, err := r.GetRequest(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		requests = append(requests, req)
	}
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
	return requests, nil
}

// DeleteRequest removes a signing request and its key material.
// storage.ErrNotFound is returned when no such request exists.
func (r *Registry) DeleteRequest(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.repo.Delete(typeRequest, id)
}

// ---------------------------------------------------------------------------
// Certificates
// ---------------------------------------------------------------------------

// CreateCertificate persists a certificate record. Used for imports; the
// signing path goes through CompleteSigning instead.
func (r *Registry) CreateCertificate(ctx context.Context, cert *Certificate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cert.Version = 1
	data, err := json.Marshal(cert)
	if err != nil {
		return fmt.Errorf("encoding certificate: %w", err)
	}
	return r.repo.PutCAS(typeCertificate, cert.ID, 0, &storage.Record{Data: data, Version: 1})
}

// GetCertificate loads one certificate by ID.
func (r *Registry) GetCertificate(ctx context.Context, id string) (*Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := r.repo.Get(typeCertificate, id)
	if err != nil {
		return nil, err
	}
	var cert Certificate
	if err := json.Unmarshal(rec.Data, &cert); err != nil {
		return nil, fmt.Errorf("decoding certificate %s: %w", id, err)
	}
	cert.Version = rec.Version
	return &cert, nil
}

// ListCertificates returns all certificates, newest first.
func (r *Registry) ListCertificates(ctx context.Context) ([]*Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, err := r.repo.List(typeCertificate)
	if err != nil {
		return nil, err
	}
	certs := make([]*Certificate, 0, len(ids))
	for _, id := range ids {
		cert, err := r.GetCertificate(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		certs = append(certs, cert)
	}
	sort.Slice(certs, func(i, j int) bool {
		return certs[i].CreatedAt.After(certs[j].CreatedAt)
	})
	return certs, nil
}

// DeleteCertificate removes a certificate record. storage.ErrNotFound is
// returned when no such certificate exists.
func (r *Registry) DeleteCertificate(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.repo.Delete(typeCertificate, id)
}

// ---------------------------------------------------------------------------
// Signing transition
// ---------------------------------------------------------------------------

// CompleteSigning records an issued certificate and flips its originating
// request from pending to signed as one atomic write. The request update
// is conditional on the version observed when the request was loaded;
// storage.ErrCASFailed means another signer won the race and nothing was
// written, including the certificate.
func (r *Registry) CompleteSigning(ctx context.Context, cert *Certificate, req *SigningRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cert.Version = 1
	certData, err := json.Marshal(cert)
	if err != nil {
		return fmt.Errorf("encoding certificate: %w", err)
	}

	signed := *req
	signed.Status = StatusSigned
	signed.UpdatedAt = time.Now().UTC()
	signed.Version = req.Version + 1
	reqData, err := json.Marshal(&signed)
	if err != nil {
		return fmt.Errorf("encoding signing request: %w", err)
	}

	err = r.repo.Batch(func(tx storage.BatchTx) error {
		if err := tx.Put(typeCertificate, cert.ID, &storage.Record{Data: certData, Version: 1}); err != nil {
			return err
		}
		return tx.PutCAS(typeRequest, req.ID, req.Version, &storage.Record{Data: reqData, Version: signed.Version})
	})
	if err != nil {
		return err
	}
	req.Status = signed.Status
	req.UpdatedAt = signed.UpdatedAt
	req.Version = signed.Version
	return nil
}
