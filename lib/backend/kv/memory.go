package kv

import (
	"bytes"
	"sort"
	"sync"

	"github.com/memoio/go-mefs-pre/lib/types/store"
)

var _ store.KVStore = (*MemStore)(nil)

// MemStore is a KVStore held in a map, for tests and ephemeral nodes.
type MemStore struct {
	lk     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string][]byte),
	}
}

func (m *MemStore) Put(key, value []byte) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[string(key)] = append([]byte{}, value...)
	return nil
}

func (m *MemStore) Get(key []byte) ([]byte, error) {
	m.lk.RLock()
	defer m.lk.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.data[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, v...), nil
}

func (m *MemStore) Has(key []byte) (bool, error) {
	m.lk.RLock()
	defer m.lk.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *MemStore) Delete(key []byte) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.data, string(key))
	return nil
}

func (m *MemStore) Size() int64 {
	m.lk.RLock()
	defer m.lk.RUnlock()
	var n int64
	for k, v := range m.data {
		n += int64(len(k) + len(v))
	}
	return n
}

func (m *MemStore) sortedKeys(prefix []byte) []string {
	keys := make([]string, 0)
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *MemStore) Iter(prefix []byte, fn func(k, v []byte) error) int64 {
	m.lk.RLock()
	defer m.lk.RUnlock()
	var total int64
	for _, k := range m.sortedKeys(prefix) {
		if err := fn([]byte(k), append([]byte{}, m.data[k]...)); err == nil {
			total++
		}
	}
	return total
}

func (m *MemStore) IterKeys(prefix []byte, fn func(k []byte) error) int64 {
	m.lk.RLock()
	defer m.lk.RUnlock()
	var total int64
	for _, k := range m.sortedKeys(prefix) {
		if err := fn([]byte(k)); err == nil {
			total++
		}
	}
	return total
}

func (m *MemStore) Sync() error {
	return nil
}

func (m *MemStore) Close() error {
	m.lk.Lock()
	defer m.lk.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.closed = true
	return nil
}

// NewTxnStore buffers writes and applies them under the store lock on Commit.
func (m *MemStore) NewTxnStore(update bool) (store.TxnStore, error) {
	return &memTxn{
		m:       m,
		update:  update,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}, nil
}

type memTxn struct {
	m       *MemStore
	update  bool
	done    bool
	writes  map[string][]byte
	deletes map[string]struct{}
}

var errReadOnly = ErrReadOnlyTxn

func (t *memTxn) Put(key, value []byte) error {
	if !t.update {
		return errReadOnly
	}
	delete(t.deletes, string(key))
	t.writes[string(key)] = append([]byte{}, value...)
	return nil
}

func (t *memTxn) Get(key []byte) ([]byte, error) {
	if _, ok := t.deletes[string(key)]; ok {
		return nil, nil
	}
	if v, ok := t.writes[string(key)]; ok {
		return append([]byte{}, v...), nil
	}
	return t.m.Get(key)
}

func (t *memTxn) Has(key []byte) (bool, error) {
	v, err := t.Get(key)
	if err != nil {
		return false, err
	}
	if v != nil {
		return true, nil
	}
	_, ok := t.writes[string(key)]
	if ok {
		return true, nil
	}
	return t.m.Has(key)
}

func (t *memTxn) Delete(key []byte) error {
	if !t.update {
		return errReadOnly
	}
	delete(t.writes, string(key))
	t.deletes[string(key)] = struct{}{}
	return nil
}

func (t *memTxn) Size() int64 {
	return int64(len(t.writes))
}

func (t *memTxn) Commit() error {
	if t.done {
		return ErrTxnDone
	}
	t.done = true

	t.m.lk.Lock()
	defer t.m.lk.Unlock()
	if t.m.closed {
		return ErrClosed
	}
	for k := range t.deletes {
		delete(t.m.data, k)
	}
	for k, v := range t.writes {
		t.m.data[k] = v
	}
	return nil
}

func (t *memTxn) Discard() {
	t.done = true
}

func (t *memTxn) Close() error {
	t.Discard()
	return nil
}
