package ca

import (
	"context"
	"fmt"
	"time"

	"github.com/roarinpenguin/roarinca/internal/uuid"
	"github.com/roarinpenguin/roarinca/registry"
)

// ImportCertificate records an externally issued certificate. The
// certificate PEM must parse; key and chain material are optional and
// stored as given. Imported records carry no originating request and
// their serial numbers are not guaranteed unique against locally issued
// ones.
func (e *Engine) ImportCertificate(ctx context.Context, certPEM, keyPEM, chainPEM string) (*registry.Certificate, error) {
	meta, err := ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cert := &registry.Certificate{
		ID:             uuid.New(),
		CommonName:     meta.CommonName,
		SerialNumber:   meta.SerialNumber,
		Issuer:         meta.Issuer,
		Subject:        meta.Subject,
		NotBefore:      meta.NotBefore,
		NotAfter:       meta.NotAfter,
		CertificatePEM: certPEM,
		PrivateKeyPEM:  keyPEM,
		ChainPEM:       chainPEM,
		Source:         registry.SourceImported,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.reg.CreateCertificate(ctx, cert); err != nil {
		return nil, fmt.Errorf("storing imported certificate: %w", err)
	}
	return cert, nil
}
