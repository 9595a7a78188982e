package repo

import (
	"github.com/memoio/go-mefs-pre/config"
	"github.com/memoio/go-mefs-pre/lib/types/store"
	"github.com/memoio/go-mefs-pre/submodule/wallet"
)

// Repo is a representation of all persistent data of a node.
type Repo interface {
	Config() *config.Config

	// ReplaceConfig replaces the current config, with the newly passed in one.
	ReplaceConfig(cfg *config.Config) error

	// MetaStore holds the ledger state and the granted kfrags.
	MetaStore() store.KVStore

	Wallet() *wallet.Wallet

	// Path returns the repo path.
	Path() (string, error)

	// Close shuts down the repo.
	Close() error
}
