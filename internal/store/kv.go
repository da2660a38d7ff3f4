package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

// ErrRecordNotFound is returned by KV.Get for a missing key.
var ErrRecordNotFound = errors.New("record_not_found")

// KV persists the venue's fixed-size binary records in BadgerDB.
type KV struct {
	db *badger.DB
}

// OpenKV opens the store at dir. An empty dir keeps everything in memory.
func OpenKV(dir string) (*KV, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // disable internal logging
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &KV{db: db}, nil
}

// WriteBatch stores every record in one transaction: either all of them
// become visible or none do.
func (kv *KV) WriteBatch(ctx context.Context, records map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return kv.db.Update(func(txn *badger.Txn) error {
		for k, v := range records {
			if err := txn.Set([]byte(k), v); err != nil {
				return fmt.Errorf("writing %s: %w", k, err)
			}
		}
		return nil
	})
}

// Get returns a copy of the record stored under key.
func (kv *KV) Get(key string) ([]byte, error) {
	var out []byte
	err := kv.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s: %w", key, ErrRecordNotFound)
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

// Scan calls fn for every record whose key starts with prefix, in key
// order. Values passed to fn are copies.
func (kv *KV) Scan(prefix string, fn func(key string, value []byte) error) error {
	return kv.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.KeyCopy(nil)), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the underlying database.
func (kv *KV) Close() error {
	return kv.db.Close()
}
