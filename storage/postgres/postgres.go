// Package postgres implements storage.Repository on top of PostgreSQL.
//
// All records share one table keyed by (record_type, record_id), the same
// key space the bbolt and memory backends use, with the payload in a BYTEA
// column. Compare-and-swap takes a row lock (SELECT ... FOR UPDATE) so
// concurrent writers to the same record serialize inside the database
// rather than in the process.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roarinpenguin/roarinca/storage"
)

//go:embed schema.sql
var schemaSQL string

const (
	upsertSQL = `
		INSERT INTO records (record_type, record_id, data, version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (record_type, record_id)
		DO UPDATE SET data = EXCLUDED.data, version = EXCLUDED.version`

	insertSQL = `
		INSERT INTO records (record_type, record_id, data, version)
		VALUES ($1, $2, $3, $4)`

	updateSQL = `
		UPDATE records SET data = $3, version = $4
		WHERE record_type = $1 AND record_id = $2`
)

// EnsureSchema applies schema.sql. Every statement in it is idempotent, so
// startup can run this unconditionally.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

// Store is the PostgreSQL-backed storage.Repository.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository wraps an existing pgx pool. The caller keeps ownership of
// the pool's lifecycle.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN dials PostgreSQL, applies the schema, and returns a
// Store that owns the resulting pool.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Pool exposes the underlying pgx pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the pool and all its connections.
func (s *Store) Close() { s.pool.Close() }

func (s *Store) Put(recordType, recordID string, record *storage.Record) error {
	_, err := s.pool.Exec(context.Background(), upsertSQL,
		recordType, recordID, record.Data, record.Version)
	return err
}

func (s *Store) Get(recordType, recordID string) (*storage.Record, error) {
	var rec storage.Record
	err := s.pool.QueryRow(context.Background(),
		`SELECT data, version FROM records
		 WHERE record_type = $1 AND record_id = $2`,
		recordType, recordID).Scan(&rec.Data, &rec.Version)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	case err != nil:
		return nil, err
	}
	return &rec, nil
}

func (s *Store) List(recordType string) ([]string, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT record_id FROM records
		 WHERE record_type = $1
		 ORDER BY record_id`, recordType)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) Delete(recordType, recordID string) error {
	tag, err := s.pool.Exec(context.Background(),
		`DELETE FROM records WHERE record_type = $1 AND record_id = $2`,
		recordType, recordID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return nil
}

// PutCAS wraps the version check and the write in a single transaction.
func (s *Store) PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return s.inTx(func(tx pgx.Tx) error {
		return putCASLocked(context.Background(), tx, recordType, recordID, expectedVersion, record)
	})
}

// Batch runs fn inside one transaction; any error rolls the whole batch back.
func (s *Store) Batch(fn func(tx storage.BatchTx) error) error {
	return s.inTx(func(tx pgx.Tx) error {
		return fn(&pgBatchTx{tx: tx})
	})
}

// inTx begins a transaction, runs fn, and commits unless fn failed.
func (s *Store) inTx(fn func(pgx.Tx) error) error {
	ctx := context.Background()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// pgBatchTx exposes the storage.BatchTx surface over an open transaction.
type pgBatchTx struct {
	tx pgx.Tx
}

var _ storage.BatchTx = (*pgBatchTx)(nil)

func (b *pgBatchTx) Put(recordType, recordID string, record *storage.Record) error {
	_, err := b.tx.Exec(context.Background(), upsertSQL,
		recordType, recordID, record.Data, record.Version)
	return err
}

func (b *pgBatchTx) PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return putCASLocked(context.Background(), b.tx, recordType, recordID, expectedVersion, record)
}

// putCASLocked performs the compare-and-swap under a row lock. A zero
// expectedVersion means the record must not exist yet; any other value
// must match the stored version exactly.
func putCASLocked(ctx context.Context, tx pgx.Tx, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	var current uint64
	err := tx.QueryRow(ctx,
		`SELECT version FROM records
		 WHERE record_type = $1 AND record_id = $2
		 FOR UPDATE`,
		recordType, recordID).Scan(&current)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if expectedVersion != 0 {
			return storage.ErrCASFailed
		}
		_, err = tx.Exec(ctx, insertSQL, recordType, recordID, record.Data, record.Version)
		return err
	case err != nil:
		return err
	case expectedVersion == 0, current != expectedVersion:
		return storage.ErrCASFailed
	}

	_, err = tx.Exec(ctx, updateSQL, recordType, recordID, record.Data, record.Version)
	return err
}
