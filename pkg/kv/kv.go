// Package kv is the key-value persistence substrate: string keys, JSON values,
// exact get/set, key-ordered prefix scans and serialized read-modify-write
// transactions.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("kv: key not found")

// Entry is one key/value pair returned by a prefix scan.
type Entry struct {
	Key   string
	Value json.RawMessage
}

// Tx is the view of the store inside Update. Reads observe the
// transaction's own writes.
type Tx interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	ScanPrefix(prefix string) ([]Entry, error)
}

// Store is implemented by the pebble and gorm drivers.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// ScanPrefix returns every entry whose key starts with prefix, ordered
	// by key bytes.
	ScanPrefix(ctx context.Context, prefix string) ([]Entry, error)
	// Update runs fn atomically. Calls are serialized within the process.
	Update(ctx context.Context, fn func(tx Tx) error) error
	Ready() bool
	Close() error
}

// GetJSON decodes the value under key into out.
func GetJSON(ctx context.Context, s Store, key string, out any) error {
	b, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, b)
}

// TxGetJSON is GetJSON inside a transaction.
func TxGetJSON(tx Tx, key string, out any) error {
	b, err := tx.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// TxSetJSON is SetJSON inside a transaction.
func TxSetJSON(tx Tx, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Set(key, b)
}
