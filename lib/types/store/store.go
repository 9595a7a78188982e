package store

import (
	"errors"
)

var ErrNotFound = errors.New("key not found")

type Store interface {
	Put(key, value []byte) error
	// Get returns nil, nil for a missing key.
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	Size() int64
	Close() error
}

type KVStore interface {
	Store

	Iter(prefix []byte, fn func(k, v []byte) error) int64
	IterKeys(prefix []byte, fn func(k []byte) error) int64

	Sync() error

	NewTxnStore(update bool) (TxnStore, error)
}

// TxnStore buffers writes until Commit; Discard drops them.
type TxnStore interface {
	Store
	Commit() error
	Discard()
}
