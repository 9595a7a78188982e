package repo

import (
	"sync"

	"github.com/memoio/go-mefs-pre/config"
	"github.com/memoio/go-mefs-pre/lib/backend/kv"
	"github.com/memoio/go-mefs-pre/lib/types/store"
	"github.com/memoio/go-mefs-pre/submodule/wallet"
)

// MemRepo keeps state in memory; only the wallet touches disk.
type MemRepo struct {
	// lk guards the config
	lk   sync.RWMutex
	C    *config.Config
	Meta store.KVStore
	W    *wallet.Wallet

	path string
}

var _ Repo = (*MemRepo)(nil)

// NewInMemoryRepo makes a new instance of MemRepo with its wallet under dir.
func NewInMemoryRepo(dir string) (*MemRepo, error) {
	w, err := wallet.NewLight(dir, "memory")
	if err != nil {
		return nil, err
	}
	return &MemRepo{
		C:    config.NewDefaultConfig(),
		Meta: kv.NewMemStore(),
		W:    w,
		path: dir,
	}, nil
}

func (mr *MemRepo) Config() *config.Config {
	mr.lk.RLock()
	defer mr.lk.RUnlock()

	return mr.C
}

// ReplaceConfig replaces the current config with the newly passed in one.
func (mr *MemRepo) ReplaceConfig(cfg *config.Config) error {
	mr.lk.Lock()
	defer mr.lk.Unlock()

	mr.C = cfg
	return nil
}

func (mr *MemRepo) MetaStore() store.KVStore {
	return mr.Meta
}

func (mr *MemRepo) Wallet() *wallet.Wallet {
	return mr.W
}

func (mr *MemRepo) Path() (string, error) {
	return mr.path, nil
}

func (mr *MemRepo) Close() error {
	return mr.Meta.Close()
}
