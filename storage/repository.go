// Package storage provides the record persistence abstraction for the CA
// manager. Records are opaque JSON payloads keyed by (recordType, recordID);
// the domain layer in package registry owns their shape.
package storage

import "errors"

// ErrNotFound is returned when no record exists under the requested key.
var ErrNotFound = errors.New("record not found")

// ErrCASFailed is returned when a compare-and-swap version check fails.
var ErrCASFailed = errors.New("CAS version mismatch")

// Record is a stored row: the serialized payload plus the version counter
// the backends maintain for conditional updates.
type Record struct {
	Data    []byte `json:"data"`
	Version uint64 `json:"version"`
}

// BatchTx provides Put and PutCAS within an atomic transaction. Either every
// operation in the batch is applied or none is.
type BatchTx interface {
	Put(recordType string, recordID string, record *Record) error
	PutCAS(recordType string, recordID string, expectedVersion uint64, record *Record) error
}

// Repository defines the interface for record storage.
//
// PutCAS applies the write only when the stored version equals
// expectedVersion; expectedVersion 0 means the record must not exist yet.
// Version bookkeeping is the caller's: the supplied record is stored as
// given, so callers bump Record.Version themselves. Delete reports
// ErrNotFound when no record matched, so callers can surface missing-row
// semantics to their own clients.
type Repository interface {
	Put(recordType string, recordID string, record *Record) error
	Get(recordType string, recordID string) (*Record, error)
	List(recordType string) ([]string, error)
	Delete(recordType string, recordID string) error
	PutCAS(recordType string, recordID string, expectedVersion uint64, record *Record) error
	Batch(fn func(tx BatchTx) error) error
}
