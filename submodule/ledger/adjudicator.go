package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/crypto/signature"
	"github.com/memoio/go-mefs-pre/lib/pre"
	"github.com/memoio/go-mefs-pre/lib/tx"
	"github.com/memoio/go-mefs-pre/lib/types"
)

// evaluate slashes the staker behind a proxy that signed an incorrect cfrag.
// Evidence is rejected when the cfrag is correct or cannot be attributed.
func (V1) evaluate(o *Overlay, from common.Address, ev *tx.Evidence) error {
	eid := ev.ID()
	used, err := o.evidenceUsed(eid)
	if err != nil {
		return err
	}
	if used {
		return xerrors.Errorf("%s: %w", eid, ErrEvidenceUsed)
	}

	if len(ev.CFrag) != pre.CapsuleFragSize {
		return xerrors.Errorf("cfrag length %d: %w", len(ev.CFrag), ErrInvalidEvidence)
	}

	capsule, err := pre.CapsuleFromBytes(ev.Capsule)
	if err != nil {
		return xerrors.Errorf("%s: %w", err, pre.ErrInvalidCapsule)
	}

	ok, err := signature.Verify(ev.UrsulaStamp, tx.EvidenceMessage(ev.Capsule, ev.CFrag, ev.Metadata), ev.UrsulaSignature)
	if err != nil || !ok {
		return xerrors.Errorf("response signature: %w", ErrNotAuthorized)
	}

	worker, err := signature.AddressFromPubByte(ev.UrsulaStamp)
	if err != nil {
		return xerrors.Errorf("stamp: %s: %w", err, ErrInvalidEvidence)
	}
	addr, bound, err := o.stakerOf(worker)
	if err != nil {
		return err
	}
	if !bound {
		return xerrors.Errorf("%s: %w", worker, ErrUnknownWorker)
	}

	delegating, err := pre.PublicKeyFromBytes(ev.Delegating)
	if err != nil {
		return xerrors.Errorf("delegating key: %s: %w", err, ErrInvalidEvidence)
	}
	receiving, err := pre.PublicKeyFromBytes(ev.Receiving)
	if err != nil {
		return xerrors.Errorf("receiving key: %s: %w", err, ErrInvalidEvidence)
	}
	verifying, err := pre.PublicKeyFromBytes(ev.Verifying)
	if err != nil {
		return xerrors.Errorf("verifying key: %s: %w", err, ErrInvalidEvidence)
	}

	// a signed cfrag of the right size that does not decode is incorrect
	cfrag, err := pre.CapsuleFragFromBytes(ev.CFrag)
	if err == nil {
		_, err = cfrag.Verify(capsule, verifying, delegating, receiving, ev.Metadata)
		if err == nil {
			return xerrors.Errorf("%s: %w", eid, ErrCorrectCFrag)
		}
		if !xerrors.Is(err, pre.ErrInvalidCorrectnessProof) {
			// the kfrag was never authorized under these keys
			return xerrors.Errorf("%s: %w", err, ErrInvalidEvidence)
		}
	}

	st, err := o.mustStaker(addr)
	if err != nil {
		return err
	}

	params := o.params
	penalty := new(big.Int).Mul(params.PenaltyHistoryCoefficient, new(big.Int).SetUint64(st.PenaltyHistory))
	penalty.Add(penalty, params.BasePenalty)
	maxPenalty := new(big.Int).Quo(st.Value, params.PercentagePenaltyCoefficient)
	if penalty.Cmp(maxPenalty) > 0 {
		penalty = maxPenalty
	}
	reward := new(big.Int).Quo(penalty, params.RewardCoefficient)

	err = slash(o, st, penalty)
	if err != nil {
		return err
	}
	st.PenaltyHistory++

	err = o.addBalance(from, reward)
	if err != nil {
		return err
	}
	burnt := new(big.Int).Sub(penalty, reward)
	o.supply, err = types.SafeSub(o.supply, burnt)
	if err != nil {
		return err
	}

	o.markEvidence(eid)

	o.emit(&types.CFragEvaluated{EvaluationID: eid, Investigator: from, Correct: false})
	o.emit(&types.Slashed{Staker: addr, Penalty: penalty, Reporter: from, Reward: reward})
	return nil
}

// slash takes penalty from unlocked escrow first, then from the sub-stakes
// ending soonest; totals of already committed periods shrink with them.
func slash(o *Overlay, st *types.Staker, penalty *big.Int) error {
	current := o.current
	lc := st.LastCommittedPeriod

	remaining := new(big.Int).Sub(penalty, types.MinToken(penalty, st.Unlocked(current)))

	for _, i := range lockedSubStakes(st, current) {
		if remaining.Sign() == 0 {
			break
		}
		sub := st.SubStakes[i]
		cut := types.MinToken(sub.Value, remaining)

		neg := new(big.Int).Neg(cut)
		for _, q := range st.CommittedPeriods {
			if q >= current && sub.ActiveAt(q, lc) {
				err := o.addLocked(q, neg)
				if err != nil {
					return err
				}
			}
		}

		sub.Value = new(big.Int).Sub(sub.Value, cut)
		remaining.Sub(remaining, cut)
	}

	var err error
	st.Value, err = types.SafeSub(st.Value, penalty)
	return err
}
