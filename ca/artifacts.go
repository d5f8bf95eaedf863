package ca

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names inside the artifact directory.
const (
	caKeyFile  = "ca.key"
	caCertFile = "ca.crt"
)

// ArtifactStore persists the CA private key and certificate at fixed,
// well-known locations. CreateExclusive must fail when artifacts already
// exist so two racing initializations cannot both win.
type ArtifactStore interface {
	// CreateExclusive writes both artifacts, failing with
	// ErrAlreadyInitialized when they already exist. No partial state
	// may remain after a failure.
	CreateExclusive(keyPEM, certPEM []byte) error

	// Load reads both artifacts. ErrCANotInitialized is returned when
	// they do not exist.
	Load() (keyPEM, certPEM []byte, err error)

	// Exists reports whether both artifacts are present.
	Exists() (bool, error)

	// Remove deletes the artifacts. Missing files are not an error.
	Remove() error
}

// FileArtifactStore stores the CA artifacts as ca.key and ca.crt inside a
// directory. The key file is created with mode 0600.
type FileArtifactStore struct {
	dir string
}

var _ ArtifactStore = (*FileArtifactStore)(nil)

// NewFileArtifactStore returns a store rooted at dir. The directory is
// created on first write.
func NewFileArtifactStore(dir string) *FileArtifactStore {
	return &FileArtifactStore{dir: dir}
}

func (s *FileArtifactStore) keyPath() string  { return filepath.Join(s.dir, caKeyFile) }
func (s *FileArtifactStore) certPath() string { return filepath.Join(s.dir, caCertFile) }

// CreateExclusive writes the key with O_EXCL so concurrent initializations
// race on file creation and exactly one wins. On any failure after the key
// file is created, the partial artifacts are removed.
func (s *FileArtifactStore) CreateExclusive(keyPEM, certPEM []byte) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	keyFile, err := os.OpenFile(s.keyPath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrAlreadyInitialized
		}
		return fmt.Errorf("creating CA key artifact: %w", err)
	}
	if _, err := keyFile.Write(keyPEM); err != nil {
		keyFile.Close()
		os.Remove(s.keyPath())
		return fmt.Errorf("writing CA key artifact: %w", err)
	}
	if err := keyFile.Close(); err != nil {
		os.Remove(s.keyPath())
		return fmt.Errorf("closing CA key artifact: %w", err)
	}
	if err := os.WriteFile(s.certPath(), certPEM, 0o644); err != nil {
		os.Remove(s.keyPath())
		return fmt.Errorf("writing CA certificate artifact: %w", err)
	}
	return nil
}

// Load reads both artifact files, mapping missing files to
// ErrCANotInitialized.
func (s *FileArtifactStore) Load() ([]byte, []byte, error) {
	keyPEM, err := os.ReadFile(s.keyPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrCANotInitialized
		}
		return nil, nil, fmt.Errorf("reading CA key artifact: %w", err)
	}
	certPEM, err := os.ReadFile(s.certPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrCANotInitialized
		}
		return nil, nil, fmt.Errorf("reading CA certificate artifact: %w", err)
	}
	return keyPEM, certPEM, nil
}

// Exists reports whether both artifact files are present.
func (s *FileArtifactStore) Exists() (bool, error) {
	for _, path := range []string{s.keyPath(), s.certPath()} {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return false, nil
			}
			return false, fmt.Errorf("checking CA artifact: %w", err)
		}
	}
	return true, nil
}

// Remove deletes both artifact files if present.
func (s *FileArtifactStore) Remove() error {
	for _, path := range []string{s.keyPath(), s.certPath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing CA artifact: %w", err)
		}
	}
	return nil
}
