package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"chatdesk/pkg/logger"
	"chatdesk/pkg/store/keys"
)

// PebbleStore keeps every key in a single pebble instance.
type PebbleStore struct {
	db     *pebble.DB
	path   string
	sync   bool
	writeM sync.Mutex
}

// OpenPebble opens (or creates) a pebble database at path.
func OpenPebble(path string, syncWrites bool) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db, path: path, sync: syncWrites}, nil
}

// OpenPebbleMem opens a pebble database backed by an in-memory filesystem.
func OpenPebbleMem() (*PebbleStore, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db, path: ":memory:"}, nil
}

func (s *PebbleStore) writeOpt() *pebble.WriteOptions {
	if s.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (s *PebbleStore) Ready() bool {
	return s != nil && s.db != nil
}

func (s *PebbleStore) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Flush(); err != nil {
		logger.Error("pebble_flush_failed", "path", s.path, "error", err)
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *PebbleStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.db == nil {
		return nil, fmt.Errorf("pebble not opened")
	}
	return getCopy(s.db, key)
}

func (s *PebbleStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db == nil {
		return fmt.Errorf("pebble not opened")
	}
	if err := s.db.Set([]byte(key), value, s.writeOpt()); err != nil {
		logger.Error("save_key_failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (s *PebbleStore) ScanPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.db == nil {
		return nil, fmt.Errorf("pebble not opened")
	}
	iter, err := s.db.NewIter(prefixIterOptions(prefix))
	if err != nil {
		return nil, err
	}
	return collect(iter)
}

func (s *PebbleStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db == nil {
		return fmt.Errorf("pebble not opened")
	}
	// indexed batches are not isolated from each other; serializing
	// writers makes read-modify-write sequences atomic.
	s.writeM.Lock()
	defer s.writeM.Unlock()

	b := s.db.NewIndexedBatch()
	defer b.Close()
	if err := fn(&pebbleTx{b: b}); err != nil {
		return err
	}
	if err := b.Commit(s.writeOpt()); err != nil {
		logger.Error("pebble_commit_failed", "error", err)
		return err
	}
	return nil
}

type pebbleTx struct {
	b *pebble.Batch
}

func (t *pebbleTx) Get(key string) ([]byte, error) {
	v, closer, err := t.b.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func (t *pebbleTx) Set(key string, value []byte) error {
	return t.b.Set([]byte(key), value, nil)
}

func (t *pebbleTx) Delete(key string) error {
	return t.b.Delete([]byte(key), nil)
}

func (t *pebbleTx) ScanPrefix(prefix string) ([]Entry, error) {
	iter, err := t.b.NewIter(prefixIterOptions(prefix))
	if err != nil {
		return nil, err
	}
	return collect(iter)
}

func getCopy(db *pebble.DB, key string) ([]byte, error) {
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			logger.Debug("get_key_missing", "key", key)
			return nil, ErrNotFound
		}
		logger.Error("get_key_failed", "key", key, "error", err)
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func prefixIterOptions(prefix string) *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: keys.PrefixEnd([]byte(prefix)),
	}
}

func collect(iter *pebble.Iterator) ([]Entry, error) {
	var out []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, Entry{
			Key:   string(iter.Key()),
			Value: append([]byte(nil), iter.Value()...),
		})
	}
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return nil, err
	}
	return out, iter.Close()
}
