// Package bbolt persists records in a single-file bbolt database, the
// default backend for single-node deployments.
package bbolt

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/roarinpenguin/roarinca/storage"
)

// Store implements storage.Repository on a bbolt database. Each record
// type becomes a bucket and record IDs are keys inside it, so listing a
// type never scans unrelated records.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository wraps an already-open bbolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens or creates the database file at path with
// owner-only permissions.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func notFound(recordType, recordID string) error {
	return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
}

func (s *Store) Put(recordType, recordID string, record *storage.Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(recordType))
		if err != nil {
			return err
		}
		return writeRecord(b, recordID, record)
	})
}

func (s *Store) Get(recordType, recordID string) (*storage.Record, error) {
	var record storage.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		var data []byte
		if b := tx.Bucket([]byte(recordType)); b != nil {
			data = b.Get([]byte(recordID))
		}
		if data == nil {
			return notFound(recordType, recordID)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) List(recordType string) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(recordType))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			ids = append(ids, string(k))
		}
		return nil
	})
	return ids, err
}

func (s *Store) Delete(recordType, recordID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(recordType))
		if b == nil || b.Get([]byte(recordID)) == nil {
			return notFound(recordType, recordID)
		}
		return b.Delete([]byte(recordID))
	})
}

func (s *Store) PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(recordType))
		if err != nil {
			return err
		}
		return casWrite(b, recordID, expectedVersion, record)
	})
}

// Batch runs fn inside one update transaction, so either every write in
// the batch lands or none does.
func (s *Store) Batch(fn func(tx storage.BatchTx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&batchTx{tx: tx})
	})
}

type batchTx struct {
	tx *bbolt.Tx
}

var _ storage.BatchTx = (*batchTx)(nil)

func (t *batchTx) bucket(recordType string) (*bbolt.Bucket, error) {
	return t.tx.CreateBucketIfNotExists([]byte(recordType))
}

func (t *batchTx) Put(recordType, recordID string, record *storage.Record) error {
	b, err := t.bucket(recordType)
	if err != nil {
		return err
	}
	return writeRecord(b, recordID, record)
}

func (t *batchTx) PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	b, err := t.bucket(recordType)
	if err != nil {
		return err
	}
	return casWrite(b, recordID, expectedVersion, record)
}

func writeRecord(b *bbolt.Bucket, recordID string, record *storage.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return b.Put([]byte(recordID), data)
}

// casWrite enforces the version contract inside an open transaction:
// expectedVersion 0 requires the key to be absent, anything else must
// equal the stored record's version.
func casWrite(b *bbolt.Bucket, recordID string, expectedVersion uint64, record *storage.Record) error {
	existing := b.Get([]byte(recordID))
	if expectedVersion == 0 {
		if existing != nil {
			return storage.ErrCASFailed
		}
		return writeRecord(b, recordID, record)
	}
	if existing == nil {
		return storage.ErrCASFailed
	}
	var prev storage.Record
	if err := json.Unmarshal(existing, &prev); err != nil {
		return err
	}
	if prev.Version != expectedVersion {
		return storage.ErrCASFailed
	}
	return writeRecord(b, recordID, record)
}
