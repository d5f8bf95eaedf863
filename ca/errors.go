package ca

import "errors"

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// ErrInvalidProfile is returned when a certificate purpose does not
	// match any known extension profile.
	ErrInvalidProfile = errors.New("unknown certificate purpose")

	// ErrMissingCommonName is returned when a subject or CA identity has
	// no common name.
	ErrMissingCommonName = errors.New("common name is required")

	// ErrGenerationFailed is returned when key generation, request
	// encoding or certificate signing fails in the crypto backend.
	ErrGenerationFailed = errors.New("cryptographic material generation failed")

	// ErrCANotInitialized is returned when an operation needs the CA key
	// and certificate but the artifacts do not exist.
	ErrCANotInitialized = errors.New("certificate authority is not initialized")

	// ErrAlreadyInitialized is returned when initialization is attempted
	// while CA artifacts already exist and no force flag was given.
	ErrAlreadyInitialized = errors.New("certificate authority is already initialized")

	// ErrRequestNotFound is returned when the referenced signing request
	// does not exist.
	ErrRequestNotFound = errors.New("signing request not found")

	// ErrAlreadySigned is returned when signing is attempted on a request
	// that has already been signed.
	ErrAlreadySigned = errors.New("signing request is already signed")

	// ErrInvalidCertificate is returned when PEM material cannot be
	// decoded or parsed.
	ErrInvalidCertificate = errors.New("invalid certificate material")

	// ErrExportPasswordRequired is returned when a PKCS#12 export is
	// requested without a password.
	ErrExportPasswordRequired = errors.New("export password is required")

	// ErrKeyUnavailable is returned when an operation needs private key
	// material that was never stored for the record.
	ErrKeyUnavailable = errors.New("no private key material stored")
)
