package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/memoio/go-mefs-pre/build"
	"github.com/memoio/go-mefs-pre/lib/tx"
)

// Strategy is the transition function over the ledger schema. A Ledger
// picks the newest registered strategy active at the applied height.
type Strategy interface {
	Version() uint32
	Apply(o *Overlay, from common.Address, method tx.MsgType, params []byte) error
}

// V1 is the staking escrow, policy manager and adjudicator.
type V1 struct{}

var _ Strategy = V1{}

func (V1) Version() uint32 {
	return build.StrategyV1
}

func (v V1) Apply(o *Overlay, from common.Address, method tx.MsgType, params []byte) error {
	switch method {
	case tx.Transfer:
		p := new(tx.TransferParams)
		if err := decodeParams(params, p); err != nil {
			return err
		}
		return v.transfer(o, from, p)
	case tx.Deposit:
		p := new(tx.DepositParams)
		if err := decodeParams(params, p); err != nil {
			return err
		}
		return v.deposit(o, from, p, true)
	case tx.Lock:
		p := new(tx.DepositParams)
		if err := decodeParams(params, p); err != nil {
			return err
		}
		return v.deposit(o, from, p, false)
	case tx.DivideStake:
		p := new(tx.DivideParams)
		if err := decodeParams(params, p); err != nil {
			return err
		}
		return v.divideStake(o, from, p)
	case tx.ProlongStake:
		p := new(tx.ProlongParams)
		if err := decodeParams(params, p); err != nil {
			return err
		}
		return v.prolongStake(o, from, p)
	case tx.Withdraw:
		p := new(tx.WithdrawParams)
		if err := decodeParams(params, p); err != nil {
			return err
		}
		return v.withdraw(o, from, p)
	case tx.SetWorker:
		p := new(tx.WorkerParams)
		if err := decodeParams(params, p); err != nil {
			return err
		}
		return v.setWorker(o, from, p)
	case tx.SetWindDown:
		p := new(tx.FlagParams)
		if err := decodeParams(params, p); err != nil {
			return err
		}
		return v.setWindDown(o, from, p.Value)
	case tx.SetReStake:
		p := new(tx.FlagParams)
		if err := decodeParams(params, p); err != nil {
			return err
		}
		return v.setReStake(o, from, p.Value)
	case tx.CommitToNextPeriod:
		return v.commitToNextPeriod(o, from)
	case tx.Mint:
		return v.mintFor(o, from)
	case tx.CreatePolicy:
		p := new(tx.PolicyParams)
		if err := decodeParams(params, p); err != nil {
			return err
		}
		return v.createPolicy(o, from, p)
	case tx.RevokePolicy:
		p := new(tx.PolicyRefParams)
		if err := decodeParams(params, p); err != nil {
			return err
		}
		return v.revokePolicy(o, from, p.ID)
	case tx.RevokeArrangement:
		p := new(tx.PolicyRefParams)
		if err := decodeParams(params, p); err != nil {
			return err
		}
		return v.revokeArrangement(o, from, p.ID, p.Node)
	case tx.Refund:
		p := new(tx.PolicyRefParams)
		if err := decodeParams(params, p); err != nil {
			return err
		}
		return v.refund(o, from, p.ID)
	case tx.RefundArrangement:
		p := new(tx.PolicyRefParams)
		if err := decodeParams(params, p); err != nil {
			return err
		}
		return v.refundArrangement(o, from, p.ID, p.Node)
	case tx.WithdrawFee:
		return v.withdrawFee(o, from)
	case tx.Evaluate:
		p := new(tx.Evidence)
		if err := decodeParams(params, p); err != nil {
			return err
		}
		return v.evaluate(o, from, p)
	default:
		return ErrUnknownMsg
	}
}
