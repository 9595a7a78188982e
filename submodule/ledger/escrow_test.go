package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/memoio/go-mefs-pre/lib/tx"
	"github.com/memoio/go-mefs-pre/lib/types"
)

func deposit(v int64, periods uint64) *tx.DepositParams {
	return &tx.DepositParams{Value: big.NewInt(v), Periods: periods}
}

func TestDeposit(t *testing.T) {
	e := newTestEnv(t, 2)
	a, b := e.funded[0], e.funded[1]

	_, err := e.send(a, tx.Deposit, deposit(50, 5))
	require.ErrorIs(t, err, ErrInsufficientStake)

	_, err = e.send(a, tx.Deposit, deposit(1000, 1))
	require.ErrorIs(t, err, ErrLockedPeriodsTooShort)

	_, err = e.send(a, tx.Deposit, deposit(200000, 5))
	require.ErrorIs(t, err, ErrStakeTooLarge)

	// Lock only spends escrow that already exists
	_, err = e.send(b, tx.Lock, deposit(1000, 5))
	require.ErrorIs(t, err, ErrUnknownStaker)

	rc := e.mustSend(a, tx.Deposit, deposit(1000, 5))
	require.Len(t, rc.Events, 2)
	require.Equal(t, types.EvDeposited, rc.Events[0].Kind)
	require.Equal(t, types.EvLocked, rc.Events[1].Kind)

	st := e.staker(a.addr)
	require.Equal(t, int64(1000), st.Value.Int64())
	require.Len(t, st.SubStakes, 1)
	sub := st.SubStakes[0]
	require.Equal(t, uint64(11), sub.FirstPeriod)
	require.Equal(t, uint64(0), sub.LastPeriod)
	require.Equal(t, uint64(5), sub.Periods)
	require.Equal(t, int64(testFunds-1000), e.balance(a.addr))

	n, err := e.l.GetNonce(a.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	// registered as a node too
	nf, err := e.l.GetNodeFee(a.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(10), nf.LastFeePeriod)

	locked, err := e.l.GetLockedTokens(a.addr, 11)
	require.NoError(t, err)
	require.Equal(t, int64(1000), locked.Int64())
	locked, err = e.l.GetLockedTokens(a.addr, 10)
	require.NoError(t, err)
	require.Equal(t, int64(0), locked.Int64())

	// the cap counts what is already locked next period
	_, err = e.send(a, tx.Deposit, deposit(99001, 5))
	require.ErrorIs(t, err, ErrStakeTooLarge)

	require.Equal(t, []common.Address{a.addr}, e.l.GetStakers())
	e.checkConservation()
}

func TestTooManySubStakes(t *testing.T) {
	e := newTestEnv(t, 1)
	a := e.funded[0]

	for i := 0; i < e.params.MaxSubStakes; i++ {
		e.mustSend(a, tx.Deposit, deposit(100, 5))
	}
	_, err := e.send(a, tx.Deposit, deposit(100, 5))
	require.ErrorIs(t, err, ErrTooManySubStakes)
}

func TestCommitAndMint(t *testing.T) {
	e := newTestEnv(t, 3)
	a := e.funded[0]

	e.mustSend(a, tx.Deposit, deposit(1000, 5))
	supply0 := e.l.GetSupply()

	// nothing to commit yet for an address that never deposited
	_, err := e.send(e.funded[1], tx.CommitToNextPeriod, nil)
	require.ErrorIs(t, err, ErrUnknownStaker)

	e.mustSend(a, tx.CommitToNextPeriod, nil)
	_, err = e.send(a, tx.CommitToNextPeriod, nil)
	require.ErrorIs(t, err, ErrAlreadyCommitted)

	require.Equal(t, uint64(11), e.staker(a.addr).LastCommittedPeriod)
	locked, err := e.l.GetAllLockedTokens(11)
	require.NoError(t, err)
	require.Equal(t, int64(1000), locked.Int64())

	total, active, err := e.l.GetActiveStakers(1)
	require.NoError(t, err)
	require.Equal(t, int64(1000), total.Int64())
	require.Len(t, active, 1)
	require.Equal(t, a.addr, active[0].Address)

	e.setPeriod(11)
	e.mustSend(a, tx.CommitToNextPeriod, nil)
	require.Equal(t, []uint64{11, 12}, e.staker(a.addr).CommittedPeriods)
	e.checkLocked()

	// period 11 is paid out once 12 has started:
	// issuance = (1e9 - 3e6) / 100, coefficient = 10 + (17 - 11)
	e.setPeriod(12)
	rc := e.mustSend(a, tx.CommitToNextPeriod, nil)
	var minted *types.Minted
	for _, rec := range rc.Events {
		if rec.Kind != types.EvMinted {
			continue
		}
		ev, err := rec.Event()
		require.NoError(t, err)
		minted = ev.(*types.Minted)
	}
	require.NotNil(t, minted)
	require.Equal(t, uint64(11), minted.Period)
	require.Equal(t, int64(7976000), minted.Value.Int64())

	st := e.staker(a.addr)
	require.Equal(t, int64(1000+7976000), st.Value.Int64())
	require.Equal(t, []uint64{12, 13}, st.CommittedPeriods)
	require.Equal(t, 0, new(big.Int).Add(supply0, big.NewInt(7976000)).Cmp(e.l.GetSupply()))
	require.Empty(t, st.Downtime)

	// without re-staking the reward is free to withdraw
	require.Equal(t, int64(1000), st.SubStakes[0].Value.Int64())
	e.mustSend(a, tx.Withdraw, &tx.WithdrawParams{Value: big.NewInt(7976000)})

	e.checkConservation()
	e.checkLocked()
}

func TestRewardGrowsWithLockDuration(t *testing.T) {
	e := newTestEnv(t, 2)
	short, long := e.funded[0], e.funded[1]

	e.mustSend(short, tx.Deposit, deposit(1000, 3))
	e.mustSend(long, tx.Deposit, deposit(1000, 8))
	for p := uint64(10); p <= 12; p++ {
		e.setPeriod(p)
		e.mustSend(short, tx.CommitToNextPeriod, nil)
		e.mustSend(long, tx.CommitToNextPeriod, nil)
	}

	rs := e.staker(short.addr).Value
	rl := e.staker(long.addr).Value
	require.True(t, rs.Int64() > 1000)
	require.True(t, rl.Cmp(rs) > 0, "short %s long %s", rs, rl)

	e.checkConservation()
	e.checkLocked()
}

func TestReStake(t *testing.T) {
	e := newTestEnv(t, 1)
	a := e.funded[0]

	e.mustSend(a, tx.Deposit, deposit(1000, 5))
	e.mustSend(a, tx.SetReStake, &tx.FlagParams{Value: true})
	e.mustSend(a, tx.CommitToNextPeriod, nil)
	e.setPeriod(11)
	e.mustSend(a, tx.CommitToNextPeriod, nil)
	e.setPeriod(12)
	e.mustSend(a, tx.CommitToNextPeriod, nil)

	st := e.staker(a.addr)
	require.True(t, st.ReStake)
	require.True(t, st.SubStakes[0].Value.Int64() > 1000)
	require.Equal(t, 0, st.Value.Cmp(st.SubStakes[0].Value))
	require.Equal(t, int64(0), st.Unlocked(12).Int64())

	e.checkConservation()
	e.checkLocked()
}

func TestDowntime(t *testing.T) {
	e := newTestEnv(t, 1)
	a := e.funded[0]

	e.mustSend(a, tx.Deposit, deposit(1000, 5))
	e.mustSend(a, tx.CommitToNextPeriod, nil)

	// missed 12 and 13
	e.setPeriod(13)
	e.mustSend(a, tx.CommitToNextPeriod, nil)

	dt, err := e.l.GetPastDowntime(a.addr)
	require.NoError(t, err)
	require.Equal(t, []types.Downtime{{Start: 12, End: 13}}, dt)

	lc, err := e.l.GetLastCommittedPeriod(a.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(14), lc)

	e.checkConservation()
	e.checkLocked()
}

func TestWindDown(t *testing.T) {
	e := newTestEnv(t, 1)
	a := e.funded[0]

	e.mustSend(a, tx.Deposit, deposit(1000, 3))
	e.mustSend(a, tx.SetWindDown, &tx.FlagParams{Value: true})

	for p := uint64(10); p <= 12; p++ {
		e.setPeriod(p)
		e.mustSend(a, tx.CommitToNextPeriod, nil)
	}
	sub := e.staker(a.addr).SubStakes[0]
	require.Equal(t, uint64(13), sub.LastPeriod)

	e.setPeriod(13)
	_, err := e.send(a, tx.CommitToNextPeriod, nil)
	require.ErrorIs(t, err, ErrInsufficientStake)

	// fully unlocked after the last period
	e.setPeriod(14)
	e.mustSend(a, tx.Mint, nil)
	st := e.staker(a.addr)
	require.Equal(t, 0, st.Unlocked(14).Cmp(st.Value))
	e.mustSend(a, tx.Withdraw, &tx.WithdrawParams{Value: st.Value})
	require.Equal(t, int64(0), e.staker(a.addr).Value.Int64())

	e.checkConservation()
}

func TestDivideProlongWithdraw(t *testing.T) {
	e := newTestEnv(t, 1)
	a := e.funded[0]

	e.mustSend(a, tx.Deposit, deposit(1000, 5))

	_, err := e.send(a, tx.DivideStake, &tx.DivideParams{Index: 0, NewValue: big.NewInt(50), ExtraPeriods: 2})
	require.ErrorIs(t, err, ErrInsufficientStake)
	_, err = e.send(a, tx.DivideStake, &tx.DivideParams{Index: 0, NewValue: big.NewInt(950), ExtraPeriods: 2})
	require.ErrorIs(t, err, ErrInsufficientStake)
	_, err = e.send(a, tx.DivideStake, &tx.DivideParams{Index: 3, NewValue: big.NewInt(400), ExtraPeriods: 2})
	require.ErrorIs(t, err, ErrUnknownSubStake)
	_, err = e.send(a, tx.DivideStake, &tx.DivideParams{Index: 0, NewValue: big.NewInt(400), ExtraPeriods: 0})
	require.ErrorIs(t, err, ErrInvalidParam)

	e.mustSend(a, tx.DivideStake, &tx.DivideParams{Index: 0, NewValue: big.NewInt(400), ExtraPeriods: 2})
	subs, err := e.l.GetSubStakes(a.addr)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.Equal(t, int64(600), subs[0].Value.Int64())
	require.Equal(t, uint64(5), subs[0].Periods)
	require.Equal(t, int64(400), subs[1].Value.Int64())
	require.Equal(t, uint64(7), subs[1].Periods)
	require.Equal(t, subs[0].FirstPeriod, subs[1].FirstPeriod)

	e.mustSend(a, tx.ProlongStake, &tx.ProlongParams{Index: 0, Periods: 3})
	subs, err = e.l.GetSubStakes(a.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(8), subs[0].Periods)

	_, err = e.send(a, tx.Withdraw, &tx.WithdrawParams{Value: big.NewInt(1)})
	require.ErrorIs(t, err, ErrInsufficientUnlocked)

	// never committed, so both sub-stakes end by period 18
	e.setPeriod(19)
	_, err = e.send(a, tx.ProlongStake, &tx.ProlongParams{Index: 0, Periods: 3})
	require.ErrorIs(t, err, ErrInactiveSubStake)

	e.mustSend(a, tx.Lock, deposit(300, 2))
	st := e.staker(a.addr)
	require.Equal(t, int64(700), st.Unlocked(19).Int64())
	require.Len(t, st.SubStakes, 2)

	_, err = e.send(a, tx.Lock, deposit(800, 2))
	require.ErrorIs(t, err, ErrInsufficientUnlocked)

	e.mustSend(a, tx.Withdraw, &tx.WithdrawParams{Value: big.NewInt(700)})
	require.Equal(t, int64(testFunds-300), e.balance(a.addr))

	e.checkConservation()
}

func TestWorker(t *testing.T) {
	e := newTestEnv(t, 2)
	a, b := e.funded[0], e.funded[1]
	w := newAccount(t)
	e.known = append(e.known, w.addr)

	e.mustSend(a, tx.Deposit, deposit(1000, 5))
	e.mustSend(b, tx.Deposit, deposit(1000, 5))

	e.mustSend(a, tx.SetWorker, &tx.WorkerParams{Worker: w.addr})
	staker, ok, err := e.l.GetWorkerStaker(w.addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a.addr, staker)

	_, err = e.send(b, tx.SetWorker, &tx.WorkerParams{Worker: w.addr})
	require.ErrorIs(t, err, ErrWorkerInUse)

	// the worker commits on the staker's behalf
	e.mustSend(w, tx.CommitToNextPeriod, nil)
	require.Equal(t, uint64(11), e.staker(a.addr).LastCommittedPeriod)

	e.mustSend(a, tx.SetWorker, &tx.WorkerParams{})
	_, ok, err = e.l.GetWorkerStaker(w.addr)
	require.NoError(t, err)
	require.False(t, ok)

	e.setPeriod(11)
	_, err = e.send(w, tx.CommitToNextPeriod, nil)
	require.ErrorIs(t, err, ErrUnknownStaker)

	e.mustSend(b, tx.SetWorker, &tx.WorkerParams{Worker: w.addr})
	e.mustSend(w, tx.CommitToNextPeriod, nil)
	require.Equal(t, uint64(12), e.staker(b.addr).LastCommittedPeriod)

	e.checkConservation()
	e.checkLocked()
}
