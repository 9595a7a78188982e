package node

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/tx"
)

// PushMessage signs a message of the stamp account and applies it at the
// current clock time.
func (n *Node) PushMessage(ctx context.Context, method tx.MsgType, params interface{}) (*tx.Receipt, error) {
	from, err := n.Account()
	if err != nil {
		return nil, err
	}

	var pb []byte
	if params != nil {
		pb, err = tx.EncodeParams(params)
		if err != nil {
			return nil, err
		}
	}

	nonce, err := n.Ledger.GetNonce(from)
	if err != nil {
		return nil, err
	}

	sm, err := tx.Sign(tx.NewMessage(from, nonce, method, pb), n.stamp)
	if err != nil {
		return nil, xerrors.Errorf("sign %s: %w", tx.MethodName(method), err)
	}

	logger.Debug("push message: ", from, nonce, tx.MethodName(method))

	rc, err := n.Chain.ApplyMsg(ctx, sm, n.clock.Now())
	if err != nil {
		logger.Warn("push message: ", from, nonce, tx.MethodName(method), err)
		return rc, err
	}
	return rc, nil
}
