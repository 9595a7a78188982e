package node

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/address"
	"github.com/memoio/go-mefs-pre/lib/repo"
	"github.com/memoio/go-mefs-pre/lib/tx"
	"github.com/memoio/go-mefs-pre/service/ursula"
	"github.com/memoio/go-mefs-pre/submodule/ledger"
)

// Builder is a helper to aid in the construction of a node.
type Builder struct {
	repo  repo.Repo
	clock ledger.Clock

	// proxy enables the kfrag store and the commitment loop
	proxy bool
}

// BuilderOpt is an option for building a node.
type BuilderOpt func(*Builder) error

// WithClock replaces the system clock, mostly for tests.
func WithClock(c ledger.Clock) BuilderOpt {
	return func(b *Builder) error {
		if c == nil {
			return errors.New("nil clock")
		}
		b.clock = c
		return nil
	}
}

// Proxy makes the node serve re-encryption under its stamp.
func Proxy(enable bool) BuilderOpt {
	return func(b *Builder) error {
		b.proxy = enable
		return nil
	}
}

// New opens the ledger kept in the repo and, for a proxy, the ursula node
// signing with the configured stamp.
func New(ctx context.Context, rep repo.Repo, opts ...BuilderOpt) (*Node, error) {
	b := &Builder{
		repo:  rep,
		clock: ledger.SystemClock{},
	}
	for _, o := range opts {
		if err := o(b); err != nil {
			return nil, errors.Wrap(err, "option(s) didn't apply")
		}
	}
	return b.build(ctx)
}

func (b *Builder) build(ctx context.Context) (*Node, error) {
	cfg := b.repo.Config()

	params, err := LedgerParams(cfg)
	if err != nil {
		return nil, err
	}

	l, err := ledger.New(ctx, b.repo.MetaStore(), params)
	if err != nil {
		return nil, xerrors.Errorf("open ledger: %w", err)
	}

	txs, err := tx.NewTxStore(ctx, b.repo.MetaStore())
	if err != nil {
		return nil, err
	}

	n := &Node{
		ctx:    ctx,
		repo:   b.repo,
		clock:  b.clock,
		Ledger: l,
		Chain:  newChain(l, txs),
	}

	if cfg.Identity.Stamp == "" {
		return n, nil
	}

	n.StampAddr, err = address.NewFromString(cfg.Identity.Stamp)
	if err != nil {
		return nil, xerrors.Errorf("identity stamp %q: %w", cfg.Identity.Stamp, err)
	}
	n.stamp, err = b.repo.Wallet().Stamp(n.StampAddr)
	if err != nil {
		return nil, err
	}

	if b.proxy {
		n.Ursula, err = ursula.New(ctx, b.repo.MetaStore(), n.stamp, n.Chain, ursula.Options{
			CacheSize:      cfg.Ursula.CacheSize,
			CommitInterval: cfg.CommitInterval(),
			Clock:          b.clock,
		})
		if err != nil {
			return nil, err
		}
	}

	return n, nil
}
