package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"

	"github.com/memoio/go-mefs-pre/build"
	"github.com/memoio/go-mefs-pre/lib/address"
	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
	logging "github.com/memoio/go-mefs-pre/lib/log"
	"github.com/memoio/go-mefs-pre/lib/repo"
	"github.com/memoio/go-mefs-pre/service/retrieval"
	"github.com/memoio/go-mefs-pre/service/ursula"
	"github.com/memoio/go-mefs-pre/submodule/ledger"
	"github.com/memoio/go-mefs-pre/submodule/metrics"
)

var logger = logging.Logger("basenode")

var ErrNoStamp = errors.New("node has no stamp key; run init")

// Node ties the repo to the ledger and, for a proxy, the ursula service.
type Node struct {
	ctx  context.Context
	repo repo.Repo

	clock ledger.Clock

	Ledger *ledger.Ledger
	Chain  *Chain
	Ursula *ursula.Node

	StampAddr address.Address
	stamp     sig_common.PrivKey

	ShutdownChan chan struct{}
}

func (n *Node) Repo() repo.Repo {
	return n.repo
}

func (n *Node) Clock() ledger.Clock {
	return n.clock
}

// Account is the ledger address the stamp signs for.
func (n *Node) Account() (common.Address, error) {
	if n.stamp == nil {
		return common.Address{}, ErrNoStamp
	}
	return n.StampAddr.Account()
}

// Reporter submits evidence of bad re-encryption signed by the stamp.
func (n *Node) Reporter() (*retrieval.LedgerReporter, error) {
	if n.stamp == nil {
		return nil, ErrNoStamp
	}
	return retrieval.NewLedgerReporter(n.Chain, n.stamp, n.clock)
}

// Start boots up the background loops.
func (n *Node) Start() error {
	ctx, err := tag.New(n.ctx,
		tag.Upsert(metrics.Version, build.BuildVersion),
		tag.Upsert(metrics.Commit, build.CurrentCommit),
	)
	if err == nil {
		stats.Record(ctx, metrics.PreInfo.M(1))
	}

	if n.Ursula != nil {
		n.Ursula.Start()
	}
	return nil
}

func (n *Node) Stop(ctx context.Context) {
	if err := n.repo.MetaStore().Sync(); err != nil {
		logger.Warn("sync meta store: ", err)
	}
	if err := n.repo.Close(); err != nil {
		fmt.Printf("error closing repo: %s\n", err)
	}

	fmt.Println("\nstopping node :(")
}

// RunDaemon serves metrics when enabled and blocks until a signal or
// ShutdownChan stops the node.
func (n *Node) RunDaemon(ready chan interface{}) error {
	cfg := n.repo.Config()

	var srv *http.Server
	if cfg.Metrics.Enabled {
		exp, err := metrics.Exporter("pre")
		if err != nil {
			return err
		}
		srv = &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           metrics.NewRouter(exp),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("serving metrics at ", cfg.Metrics.Address)
			err := srv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server: ", err)
			}
		}()
	}

	var terminate = make(chan os.Signal, 1)
	signal.Notify(terminate, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(terminate)

	n.ShutdownChan = make(chan struct{})

	if ready != nil {
		close(ready)
	}

	select {
	case <-n.ShutdownChan:
		logger.Warn("received shutdown")
	case <-terminate:
		logger.Warn("received shutdown signal")
	case <-n.ctx.Done():
		logger.Warn("context done")
	}

	logger.Warn("shutdown...")
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	n.Stop(n.ctx)
	return nil
}
