package minit

import (
	"context"

	"github.com/memoio/go-mefs-pre/lib/repo"
)

// Create fills the wallet of a fresh repo with a stamp key and a default
// PRE key and records both in the config. It is a no-op once a stamp is set.
func Create(ctx context.Context, r repo.Repo) error {
	cfg := r.Config()
	if cfg.Identity.Stamp != "" {
		return nil
	}

	w := r.Wallet()

	logger.Info("generating stamp key...")
	stamp, err := w.NewStamp()
	if err != nil {
		return err
	}
	logger.Info("generated stamp: ", stamp.String())

	logger.Info("generating pre key...")
	key, err := w.NewPRE()
	if err != nil {
		return err
	}
	logger.Info("generated pre key: ", key.String())

	cfg.Identity.Stamp = stamp.String()
	cfg.Identity.Key = key.String()

	return r.ReplaceConfig(cfg)
}
