package retrieval

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/memoio/go-mefs-pre/lib/crypto/signature"
	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
	"github.com/memoio/go-mefs-pre/lib/tx"
	"github.com/memoio/go-mefs-pre/submodule/ledger"
)

// Ledger is what the reporter needs to submit an evaluation.
type Ledger interface {
	GetNonce(addr common.Address) (uint64, error)
	ApplyMsg(ctx context.Context, sm *tx.SignedMessage, ts int64) (*tx.Receipt, error)
}

// LedgerReporter submits evidence as Evaluate messages signed by the
// investigator, who collects the reward.
type LedgerReporter struct {
	lk     sync.Mutex
	ledger Ledger
	signer sig_common.PrivKey
	from   common.Address
	clock  ledger.Clock
}

func NewLedgerReporter(l Ledger, signer sig_common.PrivKey, clock ledger.Clock) (*LedgerReporter, error) {
	from, err := signature.Address(signer.GetPublic())
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	return &LedgerReporter{
		ledger: l,
		signer: signer,
		from:   from,
		clock:  clock,
	}, nil
}

func (lr *LedgerReporter) Report(ctx context.Context, ev *tx.Evidence) error {
	lr.lk.Lock()
	defer lr.lk.Unlock()

	params, err := tx.EncodeParams(ev)
	if err != nil {
		return err
	}
	nonce, err := lr.ledger.GetNonce(lr.from)
	if err != nil {
		return err
	}
	sm, err := tx.Sign(tx.NewMessage(lr.from, nonce, tx.Evaluate, params), lr.signer)
	if err != nil {
		return err
	}

	rc, err := lr.ledger.ApplyMsg(ctx, sm, lr.clock.Now())
	if err != nil {
		return err
	}
	logger.Infof("evidence %s accepted at height %d", ev.ID(), rc.Height)
	return nil
}
