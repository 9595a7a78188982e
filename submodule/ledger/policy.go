package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/tx"
	"github.com/memoio/go-mefs-pre/lib/types"
)

// createPolicy escrows Value from the sponsor and pays each node Value /
// (Periods * len(Nodes)) per period from the next period on.
func (V1) createPolicy(o *Overlay, from common.Address, p *tx.PolicyParams) error {
	if p.Periods == 0 || len(p.Nodes) == 0 {
		return xerrors.Errorf("policy needs periods and nodes: %w", ErrInvalidParam)
	}
	if p.Value == nil || p.Value.Sign() <= 0 {
		return xerrors.Errorf("policy value must be positive: %w", ErrInvalidParam)
	}

	old, err := o.policy(p.ID)
	if err != nil {
		return err
	}
	if old != nil {
		return xerrors.Errorf("%s: %w", p.ID, ErrPolicyAlreadyExists)
	}

	parts, err := types.SafeMul(new(big.Int).SetUint64(p.Periods), big.NewInt(int64(len(p.Nodes))))
	if err != nil {
		return err
	}
	rate, mod := new(big.Int).QuoRem(p.Value, parts, new(big.Int))
	if mod.Sign() != 0 || rate.Sign() == 0 {
		return xerrors.Errorf("value %s does not split over %s node periods: %w", p.Value, parts, ErrInvalidParam)
	}

	current := o.current
	first := current + 1
	last := current + p.Periods

	owner := p.Owner
	if owner == (common.Address{}) {
		owner = from
	}

	pol := &types.Policy{
		ID:           p.ID,
		Owner:        owner,
		Sponsor:      from,
		FeeRate:      rate,
		FirstPeriod:  first,
		LastPeriod:   last,
		Arrangements: make([]*types.Arrangement, 0, len(p.Nodes)),
	}

	seen := make(map[common.Address]struct{}, len(p.Nodes))
	for _, node := range p.Nodes {
		if _, ok := seen[node]; ok {
			return xerrors.Errorf("node %s listed twice: %w", node, ErrInvalidParam)
		}
		seen[node] = struct{}{}

		nf, err := o.nodeFee(node)
		if err != nil {
			return err
		}
		st, err := o.staker(node)
		if err != nil {
			return err
		}
		if nf == nil || st == nil {
			return xerrors.Errorf("%s: %w", node, ErrUnknownNode)
		}

		nf.AddDelta(first, rate)
		nf.AddDelta(last+1, new(big.Int).Neg(rate))

		pol.Arrangements = append(pol.Arrangements, &types.Arrangement{
			Node:            node,
			IndexOfDowntime: uint64(len(st.Downtime)),
			Active:          true,
		})
	}

	err = o.subBalance(from, p.Value)
	if err != nil {
		return err
	}
	o.feePool, err = types.SafeAdd(o.feePool, p.Value)
	if err != nil {
		return err
	}

	o.putPolicy(pol)

	o.emit(&types.PolicyCreated{
		PolicyID:    p.ID,
		Sponsor:     from,
		Owner:       owner,
		FeeRate:     types.CopyToken(rate),
		FirstPeriod: first,
		LastPeriod:  last,
		Nodes:       append([]common.Address{}, p.Nodes...),
	})
	return nil
}

// calculateRefund returns the fee for the arrangement's unserved periods
// since its cursor, up to the current period, and advances the cursor so the
// next call only scans newer periods.
func calculateRefund(o *Overlay, pol *types.Policy, arr *types.Arrangement) (*big.Int, error) {
	maxPeriod := o.current
	if pol.LastPeriod < maxPeriod {
		maxPeriod = pol.LastPeriod
	}
	minPeriod := pol.FirstPeriod
	if arr.LastRefundedPeriod > minPeriod {
		minPeriod = arr.LastRefundedPeriod
	}
	if maxPeriod < minPeriod {
		return new(big.Int), nil
	}

	st, err := o.staker(arr.Node)
	if err != nil {
		return nil, err
	}

	var periods uint64
	if st == nil {
		periods = maxPeriod - minPeriod + 1
	} else {
		i := arr.IndexOfDowntime
		for ; i < uint64(len(st.Downtime)); i++ {
			d := st.Downtime[i]
			if d.Start > maxPeriod {
				break
			}
			if d.End >= minPeriod {
				start, end := d.Start, d.End
				if start < minPeriod {
					start = minPeriod
				}
				if end > maxPeriod {
					end = maxPeriod
				}
				periods += end - start + 1
			}
			if d.End > maxPeriod {
				break
			}
		}
		arr.IndexOfDowntime = i

		// periods after the last commitment are not recorded as downtime yet
		lc := st.LastCommittedPeriod
		if lc < maxPeriod {
			start := minPeriod
			if lc+1 > start {
				start = lc + 1
			}
			periods += maxPeriod - start + 1
		}
	}

	arr.LastRefundedPeriod = maxPeriod + 1

	return types.SafeMul(new(big.Int).SetUint64(periods), pol.FeeRate)
}

// revokeArr refunds the downtime and every period after the current one,
// and stops the node's fee from those periods on.
func revokeArr(o *Overlay, pol *types.Policy, arr *types.Arrangement) (*big.Int, error) {
	refund, err := calculateRefund(o, pol, arr)
	if err != nil {
		return nil, err
	}

	start := o.current + 1
	if pol.FirstPeriod > start {
		start = pol.FirstPeriod
	}
	if start <= pol.LastPeriod {
		future, err := types.SafeMul(new(big.Int).SetUint64(pol.LastPeriod-start+1), pol.FeeRate)
		if err != nil {
			return nil, err
		}
		refund.Add(refund, future)

		nf, err := o.nodeFee(arr.Node)
		if err != nil {
			return nil, err
		}
		if nf != nil {
			nf.AddDelta(start, new(big.Int).Neg(pol.FeeRate))
			nf.AddDelta(pol.LastPeriod+1, pol.FeeRate)
		}
	}

	arr.Active = false
	return refund, nil
}

func ownedPolicy(o *Overlay, from common.Address, id types.PolicyID) (*types.Policy, error) {
	pol, err := o.policy(id)
	if err != nil {
		return nil, err
	}
	if pol == nil {
		return nil, xerrors.Errorf("%s: %w", id, ErrUnknownPolicy)
	}
	if pol.Owner != from {
		return nil, xerrors.Errorf("%s is not the owner of %s: %w", from, id, ErrNotAuthorized)
	}
	if pol.Disabled {
		return nil, xerrors.Errorf("%s: %w", id, ErrPolicyInactive)
	}
	return pol, nil
}

func activeArrangement(pol *types.Policy, node common.Address) (*types.Arrangement, error) {
	arr := pol.Arrangement(node)
	if arr == nil || !arr.Active {
		return nil, xerrors.Errorf("%s in %s: %w", node, pol.ID, ErrUnknownArrangement)
	}
	return arr, nil
}

func payRefund(o *Overlay, to common.Address, v *big.Int) error {
	if v.Sign() == 0 {
		return nil
	}
	var err error
	o.feePool, err = types.SafeSub(o.feePool, v)
	if err != nil {
		return xerrors.Errorf("fee pool: %w", err)
	}
	return o.addBalance(to, v)
}

func (V1) revokePolicy(o *Overlay, from common.Address, id types.PolicyID) error {
	pol, err := ownedPolicy(o, from, id)
	if err != nil {
		return err
	}

	total := new(big.Int)
	for _, arr := range pol.Arrangements {
		if !arr.Active {
			continue
		}
		r, err := revokeArr(o, pol, arr)
		if err != nil {
			return err
		}
		total.Add(total, r)
	}
	pol.Disabled = true

	err = payRefund(o, pol.Owner, total)
	if err != nil {
		return err
	}

	o.emit(&types.PolicyRevoked{PolicyID: id, Sender: from, Value: total})
	return nil
}

func (V1) revokeArrangement(o *Overlay, from common.Address, id types.PolicyID, node common.Address) error {
	pol, err := ownedPolicy(o, from, id)
	if err != nil {
		return err
	}
	arr, err := activeArrangement(pol, node)
	if err != nil {
		return err
	}

	r, err := revokeArr(o, pol, arr)
	if err != nil {
		return err
	}
	if pol.ActiveArrangements() == 0 {
		pol.Disabled = true
	}

	err = payRefund(o, pol.Owner, r)
	if err != nil {
		return err
	}

	o.emit(&types.ArrangementRevoked{PolicyID: id, Sender: from, Node: node, Value: r})
	return nil
}

// refundArr settles the downtime refund; an arrangement whose last period
// has passed is settled for good.
func refundArr(o *Overlay, pol *types.Policy, arr *types.Arrangement) (*big.Int, error) {
	r, err := calculateRefund(o, pol, arr)
	if err != nil {
		return nil, err
	}
	if pol.LastPeriod < o.current {
		arr.Active = false
	}
	return r, nil
}

func (V1) refund(o *Overlay, from common.Address, id types.PolicyID) error {
	pol, err := ownedPolicy(o, from, id)
	if err != nil {
		return err
	}

	total := new(big.Int)
	for _, arr := range pol.Arrangements {
		if !arr.Active {
			continue
		}
		r, err := refundArr(o, pol, arr)
		if err != nil {
			return err
		}
		total.Add(total, r)
		o.emit(&types.Refunded{PolicyID: id, Sender: from, Node: arr.Node, Value: r})
	}
	if pol.ActiveArrangements() == 0 {
		pol.Disabled = true
	}

	return payRefund(o, pol.Owner, total)
}

func (V1) refundArrangement(o *Overlay, from common.Address, id types.PolicyID, node common.Address) error {
	pol, err := ownedPolicy(o, from, id)
	if err != nil {
		return err
	}
	arr, err := activeArrangement(pol, node)
	if err != nil {
		return err
	}

	r, err := refundArr(o, pol, arr)
	if err != nil {
		return err
	}
	if pol.ActiveArrangements() == 0 {
		pol.Disabled = true
	}

	err = payRefund(o, pol.Owner, r)
	if err != nil {
		return err
	}

	o.emit(&types.Refunded{PolicyID: id, Sender: from, Node: node, Value: r})
	return nil
}

func (V1) withdrawFee(o *Overlay, from common.Address) error {
	nf, err := o.nodeFee(from)
	if err != nil {
		return err
	}
	if nf == nil || nf.Fee.Sign() == 0 {
		return xerrors.Errorf("%s: %w", from, ErrNothingToWithdraw)
	}

	fee := nf.Fee
	nf.Fee = new(big.Int)
	err = o.addBalance(from, fee)
	if err != nil {
		return err
	}

	o.emit(&types.FeeWithdrawn{Node: from, Value: types.CopyToken(fee)})
	return nil
}
