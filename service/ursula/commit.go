package ursula

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/tx"
)

// Start runs the commitment loop until the node context ends.
func (n *Node) Start() {
	go n.commitLoop()
}

func (n *Node) commitLoop() {
	logger.Debug("start commitment loop for ", n.account)

	ticker := time.NewTicker(n.opts.CommitInterval)
	defer ticker.Stop()

	for {
		err := n.CommitNext(n.ctx)
		if err != nil {
			logger.Warn("commit to next period: ", err)
		}

		select {
		case <-n.ctx.Done():
			logger.Debug("commitment loop done")
			return
		case <-ticker.C:
		}
	}
}

// staker resolves the staker the stamp key commits for.
func (n *Node) staker() (common.Address, error) {
	staker, ok, err := n.ledger.GetWorkerStaker(n.account)
	if err != nil {
		return common.Address{}, err
	}
	if ok {
		return staker, nil
	}
	return n.account, nil
}

// CommitNext commits to the period after the current one unless that is
// already done.
func (n *Node) CommitNext(ctx context.Context) error {
	n.lk.Lock()
	defer n.lk.Unlock()

	staker, err := n.staker()
	if err != nil {
		return err
	}

	ts := n.opts.Clock.Now()
	next := n.ledger.Params().Period(ts) + 1
	last, err := n.ledger.GetLastCommittedPeriod(staker)
	if err != nil {
		return err
	}
	if last >= next {
		return nil
	}

	nonce, err := n.ledger.GetNonce(n.account)
	if err != nil {
		return err
	}

	sm, err := tx.Sign(tx.NewMessage(n.account, nonce, tx.CommitToNextPeriod, nil), n.stamp)
	if err != nil {
		return err
	}

	rc, err := n.ledger.ApplyMsg(ctx, sm, ts)
	if err != nil {
		return xerrors.Errorf("commit %d for %s: %w", next, staker, err)
	}
	logger.Debugf("%s committed to period %d at height %d", staker, next, rc.Height)
	return nil
}
