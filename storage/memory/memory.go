// Package memory provides an in-memory storage.Repository for tests, the
// examples, and single-process servers that do not need persistence.
package memory

import (
	"sync"

	"github.com/roarinpenguin/roarinca/storage"
)

// Repository keeps records in nested maps (record type, then record ID)
// guarded by one RWMutex. Records are deep-copied on the way in and out so
// callers never alias stored state.
type Repository struct {
	mu    sync.RWMutex
	types map[string]map[string]*storage.Record
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository returns an empty Repository.
func NewRepository() *Repository {
	return &Repository{types: make(map[string]map[string]*storage.Record)}
}

func clone(rec *storage.Record) *storage.Record {
	if rec == nil {
		return nil
	}
	return &storage.Record{
		Data:    append([]byte(nil), rec.Data...),
		Version: rec.Version,
	}
}

func (r *Repository) Put(recordType, recordID string, record *storage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putLocked(recordType, recordID, record)
	return nil
}

func (r *Repository) putLocked(recordType, recordID string, record *storage.Record) {
	bucket, ok := r.types[recordType]
	if !ok {
		bucket = make(map[string]*storage.Record)
		r.types[recordType] = bucket
	}
	bucket[recordID] = clone(record)
}

func (r *Repository) Get(recordType, recordID string) (*storage.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Indexing a nil inner map is fine, so a missing type and a missing
	// ID collapse into one lookup.
	rec, ok := r.types[recordType][recordID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(rec), nil
}

func (r *Repository) List(recordType string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket := r.types[recordType]
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *Repository) Delete(recordType, recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.types[recordType]
	if _, ok := bucket[recordID]; !ok {
		return storage.ErrNotFound
	}
	delete(bucket, recordID)
	return nil
}

func (r *Repository) PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putCASLocked(recordType, recordID, expectedVersion, record)
}

func (r *Repository) putCASLocked(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	existing, ok := r.types[recordType][recordID]
	if !ok {
		if expectedVersion != 0 {
			return storage.ErrCASFailed
		}
		r.putLocked(recordType, recordID, record)
		return nil
	}
	if existing.Version != expectedVersion {
		return storage.ErrCASFailed
	}
	r.putLocked(recordType, recordID, record)
	return nil
}

// Batch runs fn against the live maps under the write lock and restores a
// pre-batch snapshot if fn returns an error.
func (r *Repository) Batch(fn func(tx storage.BatchTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.snapshotLocked()
	if err := fn(&batchTx{repo: r}); err != nil {
		r.types = snapshot
		return err
	}
	return nil
}

func (r *Repository) snapshotLocked() map[string]map[string]*storage.Record {
	cp := make(map[string]map[string]*storage.Record, len(r.types))
	for recordType, bucket := range r.types {
		inner := make(map[string]*storage.Record, len(bucket))
		for id, rec := range bucket {
			inner[id] = clone(rec)
		}
		cp[recordType] = inner
	}
	return cp
}

type batchTx struct {
	repo *Repository
}

var _ storage.BatchTx = (*batchTx)(nil)

func (tx *batchTx) Put(recordType, recordID string, record *storage.Record) error {
	tx.repo.putLocked(recordType, recordID, record)
	return nil
}

func (tx *batchTx) PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return tx.repo.putCASLocked(recordType, recordID, expectedVersion, record)
}
