package ledger

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/tx"
	"github.com/memoio/go-mefs-pre/lib/types"
)

func (V1) transfer(o *Overlay, from common.Address, p *tx.TransferParams) error {
	if p.Value == nil || p.Value.Sign() <= 0 {
		return xerrors.Errorf("transfer value must be positive: %w", ErrInvalidParam)
	}

	err := o.subBalance(from, p.Value)
	if err != nil {
		return err
	}
	err = o.addBalance(p.To, p.Value)
	if err != nil {
		return err
	}

	o.emit(&types.Transferred{From: from, To: p.To, Value: types.CopyToken(p.Value)})
	return nil
}

func (o *Overlay) mustStaker(addr common.Address) (*types.Staker, error) {
	st, err := o.staker(addr)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, xerrors.Errorf("%s: %w", addr, ErrUnknownStaker)
	}
	return st, nil
}

// freeSlot returns the index of a sub-stake slot that can be reused: empty,
// or ended before the current period with no unminted period left in it.
func freeSlot(st *types.Staker, current uint64) int {
	for i, sub := range st.SubStakes {
		if sub.Value.Sign() == 0 {
			return i
		}
		end := sub.LastPeriodOf(st.LastCommittedPeriod)
		if end >= current {
			continue
		}
		pending := false
		for _, p := range st.CommittedPeriods {
			if p <= end {
				pending = true
				break
			}
		}
		if !pending {
			return i
		}
	}
	return -1
}

func addSubStake(st *types.Staker, sub *types.SubStake, current uint64, max int) error {
	idx := freeSlot(st, current)
	if idx >= 0 {
		st.SubStakes[idx] = sub
		return nil
	}
	if len(st.SubStakes) >= max {
		return xerrors.Errorf("%d sub-stakes: %w", len(st.SubStakes), ErrTooManySubStakes)
	}
	st.SubStakes = append(st.SubStakes, sub)
	return nil
}

// deposit locks value for periods starting next period, from the balance
// or, for Lock, from unlocked escrow.
func (V1) deposit(o *Overlay, from common.Address, p *tx.DepositParams, fromBalance bool) error {
	params := o.params
	if p.Periods < params.MinLockedPeriods {
		return xerrors.Errorf("%d < %d: %w", p.Periods, params.MinLockedPeriods, ErrLockedPeriodsTooShort)
	}
	if p.Value == nil || p.Value.Cmp(params.MinAllowableLockedTokens) < 0 {
		return xerrors.Errorf("%s < %s: %w", p.Value, params.MinAllowableLockedTokens, ErrInsufficientStake)
	}

	current := o.current
	next := current + 1

	st, err := o.staker(from)
	if err != nil {
		return err
	}
	if st == nil {
		if !fromBalance {
			return xerrors.Errorf("%s: %w", from, ErrUnknownStaker)
		}
		st = o.newStaker(from)
		o.putNodeFee(from, types.NewNodeFee(current))
	}

	lockedNext, err := types.SafeAdd(st.LockedAt(next), p.Value)
	if err != nil {
		return err
	}
	if lockedNext.Cmp(params.MaxAllowableLockedTokens) > 0 {
		return xerrors.Errorf("%s > %s: %w", lockedNext, params.MaxAllowableLockedTokens, ErrStakeTooLarge)
	}

	if fromBalance {
		err = o.subBalance(from, p.Value)
		if err != nil {
			return err
		}
		st.Value, err = types.SafeAdd(st.Value, p.Value)
		if err != nil {
			return err
		}
	} else if p.Value.Cmp(st.Unlocked(current)) > 0 {
		return xerrors.Errorf("%s > %s: %w", p.Value, st.Unlocked(current), ErrInsufficientUnlocked)
	}

	sub := &types.SubStake{
		FirstPeriod: next,
		Periods:     p.Periods,
		Value:       types.CopyToken(p.Value),
	}
	err = addSubStake(st, sub, current, params.MaxSubStakes)
	if err != nil {
		return err
	}

	if st.IsCommitted(next) {
		err = o.addLocked(next, p.Value)
		if err != nil {
			return err
		}
	}

	if fromBalance {
		o.emit(&types.Deposited{Staker: from, Value: types.CopyToken(p.Value), Periods: p.Periods})
	}
	o.emit(&types.Locked{Staker: from, Value: types.CopyToken(p.Value), FirstPeriod: next, Periods: p.Periods})
	return nil
}

func subStakeAt(st *types.Staker, index uint32) (*types.SubStake, error) {
	if int(index) >= len(st.SubStakes) || st.SubStakes[index].Value.Sign() == 0 {
		return nil, xerrors.Errorf("index %d: %w", index, ErrUnknownSubStake)
	}
	return st.SubStakes[index], nil
}

// divideStake splits off NewValue into a sub-stake with the same first
// period that ends ExtraPeriods later.
func (V1) divideStake(o *Overlay, from common.Address, p *tx.DivideParams) error {
	params := o.params
	st, err := o.mustStaker(from)
	if err != nil {
		return err
	}
	sub, err := subStakeAt(st, p.Index)
	if err != nil {
		return err
	}

	next := o.current + 1
	if !sub.ActiveAt(next, st.LastCommittedPeriod) {
		return xerrors.Errorf("index %d: %w", p.Index, ErrInactiveSubStake)
	}
	if p.ExtraPeriods == 0 {
		return xerrors.Errorf("extra periods must be positive: %w", ErrInvalidParam)
	}
	if p.NewValue == nil || p.NewValue.Cmp(params.MinAllowableLockedTokens) < 0 {
		return xerrors.Errorf("new value %s: %w", p.NewValue, ErrInsufficientStake)
	}
	rest, err := types.SafeSub(sub.Value, p.NewValue)
	if err != nil || rest.Cmp(params.MinAllowableLockedTokens) < 0 {
		return xerrors.Errorf("remaining value %s: %w", rest, ErrInsufficientStake)
	}

	nsub := &types.SubStake{
		FirstPeriod: sub.FirstPeriod,
		Value:       types.CopyToken(p.NewValue),
	}
	if sub.LastPeriod != 0 {
		nsub.LastPeriod = sub.LastPeriod + p.ExtraPeriods
	} else {
		nsub.Periods = sub.Periods + p.ExtraPeriods
	}

	oldValue := sub.Value
	sub.Value = rest
	err = addSubStake(st, nsub, o.current, params.MaxSubStakes)
	if err != nil {
		sub.Value = oldValue
		return err
	}

	o.emit(&types.Divided{
		Staker:     from,
		OldValue:   types.CopyToken(oldValue),
		LastPeriod: sub.LastPeriodOf(st.LastCommittedPeriod),
		NewValue:   types.CopyToken(p.NewValue),
		Periods:    p.ExtraPeriods,
	})
	return nil
}

func (V1) prolongStake(o *Overlay, from common.Address, p *tx.ProlongParams) error {
	params := o.params
	st, err := o.mustStaker(from)
	if err != nil {
		return err
	}
	sub, err := subStakeAt(st, p.Index)
	if err != nil {
		return err
	}

	lc := st.LastCommittedPeriod
	if !sub.ActiveAt(o.current+1, lc) {
		return xerrors.Errorf("index %d: %w", p.Index, ErrInactiveSubStake)
	}
	if p.Periods == 0 {
		return xerrors.Errorf("periods must be positive: %w", ErrInvalidParam)
	}

	end := sub.LastPeriodOf(lc) + p.Periods
	if end < o.current+params.MinLockedPeriods {
		return xerrors.Errorf("ends at %d: %w", end, ErrLockedPeriodsTooShort)
	}

	if sub.LastPeriod != 0 {
		sub.LastPeriod = end
	} else {
		sub.Periods += p.Periods
	}

	o.emit(&types.Prolonged{Staker: from, Value: types.CopyToken(sub.Value), LastPeriod: end, Periods: p.Periods})
	return nil
}

func (V1) withdraw(o *Overlay, from common.Address, p *tx.WithdrawParams) error {
	st, err := o.mustStaker(from)
	if err != nil {
		return err
	}
	if p.Value == nil || p.Value.Sign() <= 0 {
		return xerrors.Errorf("withdraw value must be positive: %w", ErrInvalidParam)
	}

	unlocked := st.Unlocked(o.current)
	if p.Value.Cmp(unlocked) > 0 {
		return xerrors.Errorf("%s > %s: %w", p.Value, unlocked, ErrInsufficientUnlocked)
	}

	st.Value, err = types.SafeSub(st.Value, p.Value)
	if err != nil {
		return err
	}
	err = o.addBalance(from, p.Value)
	if err != nil {
		return err
	}

	o.emit(&types.Withdrawn{Staker: from, Value: types.CopyToken(p.Value)})
	return nil
}

func (V1) setWorker(o *Overlay, from common.Address, p *tx.WorkerParams) error {
	st, err := o.mustStaker(from)
	if err != nil {
		return err
	}

	if p.Worker != (common.Address{}) && p.Worker != from {
		bound, ok, err := o.stakerOf(p.Worker)
		if err != nil {
			return err
		}
		if ok && bound != from {
			return xerrors.Errorf("%s bound to %s: %w", p.Worker, bound, ErrWorkerInUse)
		}
	}

	if st.Worker != (common.Address{}) {
		o.unbindWorker(st.Worker)
	}
	st.Worker = p.Worker
	if p.Worker != (common.Address{}) && p.Worker != from {
		o.bindWorker(p.Worker, from)
	}

	o.emit(&types.WorkerBonded{Staker: from, Worker: p.Worker, Period: o.current})
	return nil
}

func (V1) setWindDown(o *Overlay, from common.Address, windDown bool) error {
	st, err := o.mustStaker(from)
	if err != nil {
		return err
	}
	st.WindDown = windDown
	o.emit(&types.WindDownSet{Staker: from, WindDown: windDown})
	return nil
}

func (V1) setReStake(o *Overlay, from common.Address, reStake bool) error {
	st, err := o.mustStaker(from)
	if err != nil {
		return err
	}
	st.ReStake = reStake
	o.emit(&types.ReStakeSet{Staker: from, ReStake: reStake})
	return nil
}

// commitToNextPeriod marks the staker, or the staker a worker acts for, as
// active in the next period. Pending rewards are minted first.
func (v V1) commitToNextPeriod(o *Overlay, from common.Address) error {
	addr, ok, err := o.stakerOf(from)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.Errorf("%s: %w", from, ErrUnknownStaker)
	}
	st, err := o.mustStaker(addr)
	if err != nil {
		return err
	}

	current := o.current
	next := current + 1
	if st.IsCommitted(next) {
		return xerrors.Errorf("period %d: %w", next, ErrAlreadyCommitted)
	}

	lc := st.LastCommittedPeriod

	// expired open sub-stakes must not revive when lc moves
	for _, sub := range st.SubStakes {
		if sub.LastPeriod == 0 {
			end := sub.LastPeriodOf(lc)
			if end < current {
				sub.LastPeriod = end
			}
		}
	}

	err = v.mint(o, addr, st)
	if err != nil {
		return err
	}

	if lc == 0 {
		// periods staked before the first commitment were not served either
		if first, ok := firstStakedPeriod(st); ok && first <= current {
			st.Downtime = append(st.Downtime, types.Downtime{Start: first, End: current})
		}
	} else if lc < current {
		st.Downtime = append(st.Downtime, types.Downtime{Start: lc + 1, End: current})
	}

	if st.WindDown {
		for _, sub := range st.SubStakes {
			if sub.LastPeriod != 0 || sub.Periods == 0 || sub.Value.Sign() == 0 {
				continue
			}
			sub.Periods--
			if sub.Periods == 0 {
				sub.LastPeriod = next
			}
		}
	}

	st.LastCommittedPeriod = next
	locked := st.LockedAt(next)
	if locked.Sign() == 0 {
		return xerrors.Errorf("nothing locked for period %d: %w", next, ErrInsufficientStake)
	}

	err = o.addLocked(next, locked)
	if err != nil {
		return err
	}

	snap, err := o.snapshot(next)
	if err != nil {
		return err
	}
	if snap == nil {
		o.setSnapshot(next, o.supply)
	}

	st.AddCommitted(next)

	o.emit(&types.CommitmentMade{Staker: addr, Period: next, Value: locked})
	return nil
}

func firstStakedPeriod(st *types.Staker) (uint64, bool) {
	var first uint64
	ok := false
	for _, sub := range st.SubStakes {
		if !ok || sub.FirstPeriod < first {
			first = sub.FirstPeriod
			ok = true
		}
	}
	return first, ok
}

func (v V1) mintFor(o *Overlay, from common.Address) error {
	addr, ok, err := o.stakerOf(from)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.Errorf("%s: %w", from, ErrUnknownStaker)
	}
	st, err := o.mustStaker(addr)
	if err != nil {
		return err
	}
	return v.mint(o, addr, st)
}

// rewardCoefficient weights a sub-stake by its remaining lock: Max+L of
// 2*Max, L capped at Max.
func rewardCoefficient(sub *types.SubStake, p, lc, max uint64) *big.Int {
	end := sub.LastPeriodOf(lc)
	var l uint64
	if end > p {
		l = end - p
	}
	if l > max {
		l = max
	}
	return new(big.Int).SetUint64(max + l)
}

// mint pays the rewards of every committed period already passed and
// accrues the policy fees of those periods.
func (V1) mint(o *Overlay, addr common.Address, st *types.Staker) error {
	params := o.params
	current := o.current
	lc := st.LastCommittedPeriod
	maxRewarded := params.MaxRewardedPeriods

	pending := make([]uint64, 0, len(st.CommittedPeriods))
	for _, p := range st.CommittedPeriods {
		if p >= current {
			pending = append(pending, p)
			continue
		}

		lockedP, err := o.lockedPerPeriod(p)
		if err != nil {
			return err
		}
		snap, err := o.snapshot(p)
		if err != nil {
			return err
		}

		total := new(big.Int)
		rewards := make([]*big.Int, len(st.SubStakes))
		if lockedP.Sign() > 0 && snap != nil && snap.Cmp(params.MaxSupply) < 0 {
			issuance, err := types.SafeDiv(new(big.Int).Sub(params.MaxSupply, snap), params.MiningCoefficient)
			if err != nil {
				return err
			}
			denom := new(big.Int).Mul(lockedP, new(big.Int).SetUint64(2*maxRewarded))
			for i, sub := range st.SubStakes {
				if !sub.ActiveAt(p, lc) {
					continue
				}
				num, err := types.SafeMul(issuance, sub.Value)
				if err != nil {
					return err
				}
				r, err := types.SafeMulDiv(num, rewardCoefficient(sub, p, lc, maxRewarded), denom)
				if err != nil {
					return err
				}
				rewards[i] = r
				total.Add(total, r)
			}
		}

		// never mint past the max supply
		headroom := new(big.Int).Sub(params.MaxSupply, o.supply)
		if headroom.Sign() < 0 {
			headroom.SetInt64(0)
		}
		if total.Cmp(headroom) > 0 {
			scaled := new(big.Int)
			for i, r := range rewards {
				if r == nil {
					continue
				}
				rs, err := types.SafeMulDiv(r, headroom, total)
				if err != nil {
					return err
				}
				rewards[i] = rs
				scaled.Add(scaled, rs)
			}
			total = scaled
		}

		for i, r := range rewards {
			if r == nil || r.Sign() == 0 || !st.ReStake {
				continue
			}
			sub := st.SubStakes[i]
			if !sub.ActiveAt(current, lc) {
				continue
			}
			// the reward joins periods this sub-stake is already committed to
			for _, q := range st.CommittedPeriods {
				if q >= current && sub.ActiveAt(q, lc) {
					err := o.addLocked(q, r)
					if err != nil {
						return err
					}
				}
			}
			sub.Value.Add(sub.Value, r)
		}

		var err2 error
		st.Value, err2 = types.SafeAdd(st.Value, total)
		if err2 != nil {
			return err2
		}
		o.supply, err2 = types.SafeAdd(o.supply, total)
		if err2 != nil {
			return err2
		}

		err = updateFee(o, addr, p)
		if err != nil {
			return err
		}

		o.emit(&types.Minted{Staker: addr, Period: p, Value: total})
	}
	st.CommittedPeriods = pending
	return nil
}

// updateFee applies rate deltas up to p and accrues the node's fee for p.
func updateFee(o *Overlay, node common.Address, p uint64) error {
	nf, err := o.nodeFee(node)
	if err != nil || nf == nil {
		return err
	}
	if p <= nf.LastFeePeriod {
		return nil
	}

	for _, k := range nf.DeltaPeriods() {
		if k > p {
			break
		}
		nf.FeeRate, err = types.SafeAdd(nf.FeeRate, nf.Deltas[k])
		if err != nil {
			return xerrors.Errorf("fee rate of %s: %w", node, err)
		}
		delete(nf.Deltas, k)
	}

	if nf.FeeRate.Sign() > 0 {
		o.feePool, err = types.SafeSub(o.feePool, nf.FeeRate)
		if err != nil {
			return xerrors.Errorf("fee pool: %w", err)
		}
		nf.Fee, err = types.SafeAdd(nf.Fee, nf.FeeRate)
		if err != nil {
			return err
		}
	}
	nf.LastFeePeriod = p
	return nil
}

// lockedSubStakes returns indexes of sub-stakes locked at current or next,
// those ending soonest first.
func lockedSubStakes(st *types.Staker, current uint64) []int {
	lc := st.LastCommittedPeriod
	idx := make([]int, 0, len(st.SubStakes))
	for i, sub := range st.SubStakes {
		if sub.ActiveAt(current, lc) || sub.ActiveAt(current+1, lc) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return st.SubStakes[idx[a]].LastPeriodOf(lc) < st.SubStakes[idx[b]].LastPeriodOf(lc)
	})
	return idx
}
