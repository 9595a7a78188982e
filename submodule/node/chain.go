package node

import (
	"context"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/tx"
	"github.com/memoio/go-mefs-pre/lib/types"
	"github.com/memoio/go-mefs-pre/submodule/ledger"
)

// Chain is the ledger as seen by local writers: every applied message is
// also kept as a one-message block so its receipt can be looked up later.
type Chain struct {
	*ledger.Ledger

	lk  sync.Mutex
	txs *tx.TxStoreImpl
}

func newChain(l *ledger.Ledger, txs *tx.TxStoreImpl) *Chain {
	return &Chain{Ledger: l, txs: txs}
}

// ApplyMsg applies sm and records it; rejected messages leave no record.
func (c *Chain) ApplyMsg(ctx context.Context, sm *tx.SignedMessage, ts int64) (*tx.Receipt, error) {
	c.lk.Lock()
	defer c.lk.Unlock()

	rc, err := c.Ledger.ApplyMsg(ctx, sm, ts)
	if err != nil {
		return rc, err
	}

	prev := types.Undef
	if rc.Height > 1 {
		if id, err := c.txs.GetTxBlockByHeight(rc.Height - 1); err == nil {
			prev = id
		}
	}

	b := tx.NewBlock(rc.Height, prev, time.Unix(ts, 0), []tx.SignedMessage{*sm})
	b.Receipts = []tx.Receipt{*rc}
	if err := c.txs.PutTxBlock(b); err != nil {
		// the message is applied; only its history is lost
		logger.Warn("record block: ", rc.Height, err)
	}
	return rc, nil
}

// GetReceipt returns the stored message with the height it was applied at.
func (c *Chain) GetReceipt(mid types.MsgID) (*tx.SignedMessage, *tx.MsgState, error) {
	sm, err := c.txs.GetTxMsg(mid)
	if err != nil {
		return nil, nil, xerrors.Errorf("message %s: %w", mid, err)
	}
	ms, err := c.txs.GetTxMsgState(mid)
	if err != nil {
		return nil, nil, xerrors.Errorf("message %s: %w", mid, err)
	}
	return sm, ms, nil
}

// GetBlockAt returns the block recorded at height.
func (c *Chain) GetBlockAt(height uint64) (*tx.Block, error) {
	bid, err := c.txs.GetTxBlockByHeight(height)
	if err != nil {
		return nil, err
	}
	return c.txs.GetTxBlock(bid)
}
