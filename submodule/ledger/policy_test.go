package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/memoio/go-mefs-pre/lib/tx"
	"github.com/memoio/go-mefs-pre/lib/types"
)

func newPolicy(periods uint64, value int64, nodes ...common.Address) *tx.PolicyParams {
	return &tx.PolicyParams{
		ID:      types.NewPolicyID(),
		Periods: periods,
		Nodes:   nodes,
		Value:   big.NewInt(value),
	}
}

func TestCreatePolicy(t *testing.T) {
	e := newTestEnv(t, 3)
	alice, node, other := e.funded[0], e.funded[1], e.funded[2]

	e.mustSend(node, tx.Deposit, deposit(1000, 10))

	_, err := e.send(alice, tx.CreatePolicy, newPolicy(5, 51, node.addr))
	require.ErrorIs(t, err, ErrInvalidParam)
	_, err = e.send(alice, tx.CreatePolicy, newPolicy(0, 50, node.addr))
	require.ErrorIs(t, err, ErrInvalidParam)
	_, err = e.send(alice, tx.CreatePolicy, newPolicy(5, 50, other.addr))
	require.ErrorIs(t, err, ErrUnknownNode)
	_, err = e.send(alice, tx.CreatePolicy, newPolicy(5, 100, node.addr, node.addr))
	require.ErrorIs(t, err, ErrInvalidParam)
	_, err = e.send(alice, tx.CreatePolicy, newPolicy(5, 2*testFunds, node.addr))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	pp := newPolicy(5, 50, node.addr)
	rc := e.mustSend(alice, tx.CreatePolicy, pp)
	require.Equal(t, types.EvPolicyCreated, rc.Events[0].Kind)

	_, err = e.send(alice, tx.CreatePolicy, pp)
	require.ErrorIs(t, err, ErrPolicyAlreadyExists)

	pol, err := e.l.GetPolicy(pp.ID)
	require.NoError(t, err)
	require.Equal(t, alice.addr, pol.Owner)
	require.Equal(t, alice.addr, pol.Sponsor)
	require.Equal(t, int64(10), pol.FeeRate.Int64())
	require.Equal(t, uint64(11), pol.FirstPeriod)
	require.Equal(t, uint64(15), pol.LastPeriod)
	require.Len(t, pol.Arrangements, 1)
	require.True(t, pol.Arrangements[0].Active)

	nf, err := e.l.GetNodeFee(node.addr)
	require.NoError(t, err)
	require.Equal(t, []uint64{11, 16}, nf.DeltaPeriods())
	require.Equal(t, int64(10), nf.Deltas[11].Int64())
	require.Equal(t, int64(-10), nf.Deltas[16].Int64())

	require.Equal(t, int64(50), e.l.GetFeePool().Int64())
	require.Equal(t, int64(testFunds-50), e.balance(alice.addr))

	_, err = e.l.GetPolicy(types.NewPolicyID())
	require.ErrorIs(t, err, ErrUnknownPolicy)

	e.checkConservation()
}

func TestRevokeRefundsEverything(t *testing.T) {
	e := newTestEnv(t, 3)
	alice, node, other := e.funded[0], e.funded[1], e.funded[2]

	e.mustSend(node, tx.Deposit, deposit(1000, 10))
	pp := newPolicy(5, 50, node.addr)
	e.mustSend(alice, tx.CreatePolicy, pp)

	ref := &tx.PolicyRefParams{ID: pp.ID}
	_, err := e.send(other, tx.RevokePolicy, ref)
	require.ErrorIs(t, err, ErrNotAuthorized)

	rc := e.mustSend(alice, tx.RevokePolicy, ref)
	ev, err := rc.Events[0].Event()
	require.NoError(t, err)
	require.Equal(t, int64(50), ev.(*types.PolicyRevoked).Value.Int64())

	require.Equal(t, int64(testFunds), e.balance(alice.addr))
	require.Equal(t, int64(0), e.l.GetFeePool().Int64())

	nf, err := e.l.GetNodeFee(node.addr)
	require.NoError(t, err)
	require.Empty(t, nf.DeltaPeriods())

	pol, err := e.l.GetPolicy(pp.ID)
	require.NoError(t, err)
	require.True(t, pol.Disabled)
	require.False(t, pol.Arrangements[0].Active)

	_, err = e.send(alice, tx.RevokeArrangement, &tx.PolicyRefParams{ID: pp.ID, Node: node.addr})
	require.ErrorIs(t, err, ErrPolicyInactive)
	_, err = e.send(alice, tx.Refund, ref)
	require.ErrorIs(t, err, ErrPolicyInactive)

	e.checkConservation()
}

func TestRevokeArrangement(t *testing.T) {
	e := newTestEnv(t, 3)
	alice, n1, n2 := e.funded[0], e.funded[1], e.funded[2]

	e.mustSend(n1, tx.Deposit, deposit(1000, 10))
	e.mustSend(n2, tx.Deposit, deposit(1000, 10))
	e.mustSend(n1, tx.CommitToNextPeriod, nil)
	e.mustSend(n2, tx.CommitToNextPeriod, nil)

	// 4 periods at 10 per node
	pp := newPolicy(4, 80, n1.addr, n2.addr)
	e.mustSend(alice, tx.CreatePolicy, pp)

	for p := uint64(11); p <= 12; p++ {
		e.setPeriod(p)
		e.mustSend(n1, tx.CommitToNextPeriod, nil)
		e.mustSend(n2, tx.CommitToNextPeriod, nil)
	}

	// 13 and 14 are still ahead
	e.mustSend(alice, tx.RevokeArrangement, &tx.PolicyRefParams{ID: pp.ID, Node: n2.addr})
	require.Equal(t, int64(testFunds-80+20), e.balance(alice.addr))
	_, err := e.send(alice, tx.RevokeArrangement, &tx.PolicyRefParams{ID: pp.ID, Node: n2.addr})
	require.ErrorIs(t, err, ErrUnknownArrangement)

	pol, err := e.l.GetPolicy(pp.ID)
	require.NoError(t, err)
	require.False(t, pol.Disabled)
	require.Equal(t, 1, pol.ActiveArrangements())

	// n2 keeps the fee of 11 and 12 only
	for p := uint64(13); p <= 16; p++ {
		e.setPeriod(p)
		e.mustSend(n1, tx.CommitToNextPeriod, nil)
		e.mustSend(n2, tx.CommitToNextPeriod, nil)
	}
	nf1, err := e.l.GetNodeFee(n1.addr)
	require.NoError(t, err)
	nf2, err := e.l.GetNodeFee(n2.addr)
	require.NoError(t, err)
	require.Equal(t, int64(40), nf1.Fee.Int64())
	require.Equal(t, int64(20), nf2.Fee.Int64())
	require.Equal(t, int64(0), e.l.GetFeePool().Int64())

	e.mustSend(n1, tx.WithdrawFee, nil)
	require.Equal(t, int64(testFunds-1000+40), e.balance(n1.addr))
	_, err = e.send(n1, tx.WithdrawFee, nil)
	require.ErrorIs(t, err, ErrNothingToWithdraw)

	e.checkConservation()
	e.checkLocked()
}

func TestRefundDowntime(t *testing.T) {
	e := newTestEnv(t, 2)
	alice, node := e.funded[0], e.funded[1]

	e.mustSend(node, tx.Deposit, deposit(1000, 10))
	e.mustSend(node, tx.CommitToNextPeriod, nil)
	pp := newPolicy(5, 50, node.addr)
	e.mustSend(alice, tx.CreatePolicy, pp)
	ref := &tx.PolicyRefParams{ID: pp.ID}

	e.setPeriod(11)
	e.mustSend(node, tx.CommitToNextPeriod, nil)

	// the node skipped 13; that period is refundable before any downtime
	// is recorded
	e.setPeriod(13)
	owed, err := e.l.CalculateRefund(pp.ID, e.ts)
	require.NoError(t, err)
	require.Equal(t, int64(10), owed.Int64())
	rc := e.mustSend(alice, tx.Refund, ref)
	ev, err := rc.Events[0].Event()
	require.NoError(t, err)
	require.Equal(t, int64(10), ev.(*types.Refunded).Value.Int64())

	pol, err := e.l.GetPolicy(pp.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(14), pol.Arrangements[0].LastRefundedPeriod)

	// downtime 13..14 gets recorded; only 14 is still owed
	e.setPeriod(14)
	e.mustSend(node, tx.CommitToNextPeriod, nil)
	dt, err := e.l.GetPastDowntime(node.addr)
	require.NoError(t, err)
	require.Equal(t, []types.Downtime{{Start: 13, End: 14}}, dt)

	nf, err := e.l.GetNodeFee(node.addr)
	require.NoError(t, err)
	require.Equal(t, int64(20), nf.Fee.Int64())

	e.setPeriod(16)
	e.mustSend(alice, tx.Refund, ref)
	require.Equal(t, int64(testFunds-50+20), e.balance(alice.addr))

	pol, err = e.l.GetPolicy(pp.ID)
	require.NoError(t, err)
	require.True(t, pol.Disabled)
	require.Equal(t, uint64(1), pol.Arrangements[0].IndexOfDowntime)

	// the fee of 15 is the last one paid
	e.mustSend(node, tx.CommitToNextPeriod, nil)
	nf, err = e.l.GetNodeFee(node.addr)
	require.NoError(t, err)
	require.Equal(t, int64(30), nf.Fee.Int64())
	require.Equal(t, int64(0), e.l.GetFeePool().Int64())

	e.mustSend(node, tx.WithdrawFee, nil)
	require.Equal(t, int64(testFunds-1000+30), e.balance(node.addr))

	e.checkConservation()
	e.checkLocked()
}

func TestRefundBeforeFirstCommit(t *testing.T) {
	e := newTestEnv(t, 2)
	alice, node := e.funded[0], e.funded[1]

	// the node stakes from 11 but only starts committing at 12, for 13
	e.mustSend(node, tx.Deposit, deposit(1000, 10))
	pp := newPolicy(5, 50, node.addr)
	e.mustSend(alice, tx.CreatePolicy, pp)

	e.setPeriod(12)
	e.mustSend(node, tx.CommitToNextPeriod, nil)
	dt, err := e.l.GetPastDowntime(node.addr)
	require.NoError(t, err)
	require.Equal(t, []types.Downtime{{Start: 11, End: 12}}, dt)

	for p := uint64(13); p <= 16; p++ {
		e.setPeriod(p)
		e.mustSend(node, tx.CommitToNextPeriod, nil)
	}

	e.setPeriod(17)
	owed, err := e.l.CalculateRefund(pp.ID, e.ts)
	require.NoError(t, err)
	require.Equal(t, int64(20), owed.Int64())

	e.mustSend(alice, tx.Refund, &tx.PolicyRefParams{ID: pp.ID})
	require.Equal(t, int64(testFunds-30), e.balance(alice.addr))

	nf, err := e.l.GetNodeFee(node.addr)
	require.NoError(t, err)
	require.Equal(t, int64(30), nf.Fee.Int64())
	require.Equal(t, int64(0), e.l.GetFeePool().Int64())

	pol, err := e.l.GetPolicy(pp.ID)
	require.NoError(t, err)
	require.True(t, pol.Disabled)

	e.checkConservation()
	e.checkLocked()
}

func TestPolicyOwner(t *testing.T) {
	e := newTestEnv(t, 3)
	sponsor, owner, node := e.funded[0], e.funded[1], e.funded[2]

	e.mustSend(node, tx.Deposit, deposit(1000, 10))
	pp := newPolicy(5, 50, node.addr)
	pp.Owner = owner.addr
	e.mustSend(sponsor, tx.CreatePolicy, pp)

	ref := &tx.PolicyRefParams{ID: pp.ID}
	_, err := e.send(sponsor, tx.RevokePolicy, ref)
	require.ErrorIs(t, err, ErrNotAuthorized)

	// refunds go to the owner
	e.mustSend(owner, tx.RevokePolicy, ref)
	require.Equal(t, int64(testFunds-50), e.balance(sponsor.addr))
	require.Equal(t, int64(testFunds+50), e.balance(owner.addr))

	e.checkConservation()
}
