package bbolt

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/roarinpenguin/roarinca/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewRepositoryFromFile(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	want := &storage.Record{Data: []byte(`{"status":"pending"}`), Version: 1}

	if err := s.Put("request", "r1", want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get("request", "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Data) != string(want.Data) || got.Version != want.Version {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put("request", "r1", &storage.Record{Version: 1}); err != nil {
		t.Fatalf("put: %v", err)
	}

	for _, k := range [][2]string{{"no-such-type", "r1"}, {"request", "no-such-id"}} {
		if _, err := s.Get(k[0], k[1]); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Get(%s, %s) = %v, want ErrNotFound", k[0], k[1], err)
		}
	}
}

func TestStoreListSortedPerBucket(t *testing.T) {
	s := newTestStore(t)
	rec := &storage.Record{Version: 1}
	for _, id := range []string{"bravo", "alpha", "charlie"} {
		if err := s.Put("request", id, rec); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	if err := s.Put("certificate", "other", rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	ids, err := s.List("request")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// Bucket cursors walk keys in order, so List comes back sorted.
	if want := []string{"alpha", "bravo", "charlie"}; !slices.Equal(ids, want) {
		t.Errorf("listed %v, want %v", ids, want)
	}

	if ids, _ := s.List("no-such-type"); len(ids) != 0 {
		t.Errorf("unknown type listed %v", ids)
	}
}

func TestStoreDelete(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put("request", "doomed", &storage.Record{Version: 1}); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := s.Delete("request", "doomed"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get("request", "doomed"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("record still readable after delete")
	}
	if err := s.Delete("request", "doomed"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("repeat delete = %v, want ErrNotFound", err)
	}
}

func TestStorePutCAS(t *testing.T) {
	s := newTestStore(t)

	if err := s.PutCAS("request", "r1", 0, &storage.Record{Version: 1}); err != nil {
		t.Fatalf("create with version 0: %v", err)
	}
	if err := s.PutCAS("request", "r1", 0, &storage.Record{Version: 1}); !errors.Is(err, storage.ErrCASFailed) {
		t.Errorf("second create = %v, want ErrCASFailed", err)
	}
	if err := s.PutCAS("request", "missing", 4, &storage.Record{Version: 5}); !errors.Is(err, storage.ErrCASFailed) {
		t.Errorf("nonzero version against missing record = %v, want ErrCASFailed", err)
	}
	if err := s.PutCAS("request", "r1", 1, &storage.Record{Version: 2}); err != nil {
		t.Fatalf("matched update: %v", err)
	}
	if err := s.PutCAS("request", "r1", 1, &storage.Record{Version: 3}); !errors.Is(err, storage.ErrCASFailed) {
		t.Errorf("stale update = %v, want ErrCASFailed", err)
	}

	got, err := s.Get("request", "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("version = %d after failed CAS, want 2", got.Version)
	}
}

func TestStoreReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")

	s, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.Put("request", "durable", &storage.Record{Data: []byte("x"), Version: 7}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get("request", "durable")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Version != 7 || string(got.Data) != "x" {
		t.Errorf("got %+v after reopen", got)
	}
}

func TestNewRepositoryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "from-file.db")

	repo, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer repo.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file was not created: %v", err)
	}

	if _, err := NewRepositoryFromFile("/no/such/dir/roarinca.db", nil); err == nil {
		t.Error("open under a missing directory should fail")
	}
}

func TestStoreBatchCommit(t *testing.T) {
	s := newTestStore(t)

	err := s.Batch(func(tx storage.BatchTx) error {
		if err := tx.Put("certificate", "c1", &storage.Record{Data: []byte("a")}); err != nil {
			return err
		}
		if err := tx.PutCAS("request", "r1", 0, &storage.Record{Data: []byte("b"), Version: 1}); err != nil {
			return err
		}
		return tx.PutCAS("request", "r1", 1, &storage.Record{Data: []byte("b"), Version: 2})
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}

	if _, err := s.Get("certificate", "c1"); err != nil {
		t.Errorf("c1 missing after commit: %v", err)
	}
	got, err := s.Get("request", "r1")
	if err != nil {
		t.Fatalf("get r1: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("r1 version = %d, want 2", got.Version)
	}
}

func TestStoreBatchRollback(t *testing.T) {
	s := newTestStore(t)

	err := s.Batch(func(tx storage.BatchTx) error {
		if err := tx.Put("certificate", "phantom", &storage.Record{Version: 1}); err != nil {
			return err
		}
		return storage.ErrCASFailed
	})
	if !errors.Is(err, storage.ErrCASFailed) {
		t.Fatalf("batch = %v, want ErrCASFailed", err)
	}

	if _, err := s.Get("certificate", "phantom"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("write survived the failed batch")
	}
}
