package ledger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/memoio/go-mefs-pre/lib/backend/kv"
	"github.com/memoio/go-mefs-pre/lib/crypto/signature"
	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
	"github.com/memoio/go-mefs-pre/lib/tx"
	"github.com/memoio/go-mefs-pre/lib/types"
	"github.com/memoio/go-mefs-pre/lib/types/store"
)

const (
	testDuration = 100
	testFunds    = 1000000
)

// testingT is satisfied by *testing.T and *rapid.T.
type testingT interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	FailNow()
}

func testParams() *Params {
	return &Params{
		PeriodDuration:     testDuration,
		MinLockedPeriods:   2,
		MaxRewardedPeriods: 10,
		MaxSubStakes:       4,
		MiningCoefficient:  big.NewInt(100),

		MinAllowableLockedTokens: big.NewInt(100),
		MaxAllowableLockedTokens: big.NewInt(100000),
		MaxSupply:                big.NewInt(1000000000),

		BasePenalty:                  big.NewInt(10),
		PenaltyHistoryCoefficient:    big.NewInt(5),
		PercentagePenaltyCoefficient: big.NewInt(8),
		RewardCoefficient:            big.NewInt(2),
	}
}

type account struct {
	addr common.Address
	priv sig_common.PrivKey
}

func newAccount(t testingT) account {
	t.Helper()
	priv, err := signature.GenerateKey(sig_common.Secp256k1)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := signature.Address(priv.GetPublic())
	if err != nil {
		t.Fatal(err)
	}
	return account{addr: addr, priv: priv}
}

type testEnv struct {
	t      testingT
	ds     store.KVStore
	l      *Ledger
	params *Params
	ts     int64

	funded []account
	known  []common.Address // every address that may hold a balance
}

// newTestEnv funds n accounts with testFunds each and starts at period 10.
func newTestEnv(t testingT, n int) *testEnv {
	t.Helper()
	e := &testEnv{
		t:      t,
		ds:     kv.NewMemStore(),
		params: testParams(),
	}
	for i := 0; i < n; i++ {
		a := newAccount(t)
		e.funded = append(e.funded, a)
		e.known = append(e.known, a.addr)
		e.params.Allocations = append(e.params.Allocations, Allocation{Address: a.addr, Value: big.NewInt(testFunds)})
	}

	l, err := New(context.TODO(), e.ds, e.params)
	if err != nil {
		t.Fatal(err)
	}
	e.l = l
	e.setPeriod(10)
	return e
}

func (e *testEnv) setPeriod(p uint64) {
	e.ts = int64(p*testDuration) + testDuration/2
}

func (e *testEnv) message(from account, nonce uint64, method tx.MsgType, params interface{}) *tx.SignedMessage {
	e.t.Helper()
	var pb []byte
	if params != nil {
		var err error
		pb, err = tx.EncodeParams(params)
		if err != nil {
			e.t.Fatal(err)
		}
	}
	sm, err := tx.Sign(tx.NewMessage(from.addr, nonce, method, pb), from.priv)
	if err != nil {
		e.t.Fatal(err)
	}
	return sm
}

// send signs with the next nonce and applies the message at the env time.
func (e *testEnv) send(from account, method tx.MsgType, params interface{}) (*tx.Receipt, error) {
	e.t.Helper()
	nonce, err := e.l.GetNonce(from.addr)
	if err != nil {
		e.t.Fatal(err)
	}
	return e.l.ApplyMsg(context.TODO(), e.message(from, nonce, method, params), e.ts)
}

func (e *testEnv) mustSend(from account, method tx.MsgType, params interface{}) *tx.Receipt {
	e.t.Helper()
	rc, err := e.send(from, method, params)
	if err != nil {
		e.t.Fatal(err)
	}
	return rc
}

func (e *testEnv) balance(addr common.Address) int64 {
	e.t.Helper()
	b, err := e.l.GetBalance(addr)
	if err != nil {
		e.t.Fatal(err)
	}
	return b.Int64()
}

func (e *testEnv) staker(addr common.Address) *types.Staker {
	e.t.Helper()
	st, err := e.l.GetStakerInfo(addr)
	if err != nil {
		e.t.Fatal(err)
	}
	return st
}

// checkConservation: balances, escrow, the fee pool and accrued fees add
// up to the supply.
func (e *testEnv) checkConservation() {
	e.t.Helper()
	total := new(big.Int)
	for _, addr := range e.known {
		b, err := e.l.GetBalance(addr)
		require.NoError(e.t, err)
		total.Add(total, b)
	}
	for _, addr := range e.l.GetStakers() {
		st, err := e.l.GetStakerInfo(addr)
		require.NoError(e.t, err)
		total.Add(total, st.Value)

		nf, err := e.l.GetNodeFee(addr)
		require.NoError(e.t, err)
		total.Add(total, nf.Fee)
	}
	total.Add(total, e.l.GetFeePool())

	supply := e.l.GetSupply()
	require.Equal(e.t, 0, total.Cmp(supply), "holdings %s, supply %s", total, supply)
	require.True(e.t, supply.Cmp(e.params.MaxSupply) <= 0)
}

// checkLocked: the per-period totals of the last applied period and the one
// after match what the committed stakers have locked.
func (e *testEnv) checkLocked() {
	e.t.Helper()
	cur := e.l.GetPeriod()
	for _, q := range []uint64{cur, cur + 1} {
		sum := new(big.Int)
		for _, addr := range e.l.GetStakers() {
			st, err := e.l.GetStakerInfo(addr)
			require.NoError(e.t, err)
			if st.IsCommitted(q) {
				sum.Add(sum, st.LockedAt(q))
			}
		}
		got, err := e.l.GetAllLockedTokens(q)
		require.NoError(e.t, err)
		require.Equal(e.t, 0, sum.Cmp(got), "period %d: locked %s, committed stakers hold %s", q, got, sum)
	}
}

func TestGenesis(t *testing.T) {
	e := newTestEnv(t, 3)

	require.Equal(t, int64(3*testFunds), e.l.GetSupply().Int64())
	require.Equal(t, uint64(0), e.l.GetHeight())
	require.Equal(t, int64(0), e.l.GetFeePool().Int64())
	for _, a := range e.funded {
		require.Equal(t, int64(testFunds), e.balance(a.addr))
	}
	e.checkConservation()

	// reopening the same store loads instead of writing genesis again
	root := e.l.GetRoot()
	l, err := New(context.TODO(), e.ds, e.params)
	require.NoError(t, err)
	require.Equal(t, root, l.GetRoot())
	require.Equal(t, int64(3*testFunds), l.GetSupply().Int64())
}

func TestBadParams(t *testing.T) {
	p := testParams()
	p.Allocations = []Allocation{{Address: common.HexToAddress("0x1"), Value: new(big.Int).Add(p.MaxSupply, big.NewInt(1))}}
	_, err := New(context.TODO(), kv.NewMemStore(), p)
	require.Error(t, err)

	p = testParams()
	p.MinAllowableLockedTokens = big.NewInt(1000000)
	require.Error(t, p.Validate())
}

func TestNonceAndAtomicity(t *testing.T) {
	e := newTestEnv(t, 2)
	a, b := e.funded[0], e.funded[1]

	root := e.l.GetRoot()

	// a failing message consumes nothing
	_, err := e.send(a, tx.Transfer, &tx.TransferParams{To: b.addr, Value: big.NewInt(testFunds + 1)})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, root, e.l.GetRoot())
	require.Equal(t, uint64(0), e.l.GetHeight())
	n, err := e.l.GetNonce(a.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(0), n)

	rc := e.mustSend(a, tx.Transfer, &tx.TransferParams{To: b.addr, Value: big.NewInt(10)})
	require.Equal(t, tx.Ok, rc.Status)
	require.Len(t, rc.Events, 1)
	require.NotEqual(t, root, e.l.GetRoot())
	require.Equal(t, int64(testFunds-10), e.balance(a.addr))
	require.Equal(t, int64(testFunds+10), e.balance(b.addr))

	// replay
	_, err = e.l.ApplyMsg(context.TODO(), e.message(a, 0, tx.Transfer, &tx.TransferParams{To: b.addr, Value: big.NewInt(10)}), e.ts)
	require.ErrorIs(t, err, ErrBadNonce)

	// signed by someone else
	sm := e.message(a, 1, tx.Transfer, &tx.TransferParams{To: b.addr, Value: big.NewInt(10)})
	sm.From = b.addr
	_, err = e.l.ApplyMsg(context.TODO(), sm, e.ts)
	require.ErrorIs(t, err, tx.ErrBadSign)

	_, err = e.send(a, tx.MsgType(250), nil)
	require.ErrorIs(t, err, ErrUnknownMsg)

	_, err = e.send(a, tx.Transfer, []byte{0xff})
	require.ErrorIs(t, err, ErrInvalidParam)

	e.checkConservation()
}

func TestClockSkew(t *testing.T) {
	e := newTestEnv(t, 2)
	a, b := e.funded[0], e.funded[1]

	e.setPeriod(12)
	e.mustSend(a, tx.Transfer, &tx.TransferParams{To: b.addr, Value: big.NewInt(1)})
	require.Equal(t, uint64(12), e.l.GetPeriod())

	e.setPeriod(11)
	_, err := e.send(a, tx.Transfer, &tx.TransferParams{To: b.addr, Value: big.NewInt(1)})
	require.ErrorIs(t, err, ErrClockSkew)
}

func TestApplyBlock(t *testing.T) {
	e := newTestEnv(t, 2)
	a, b := e.funded[0], e.funded[1]

	msgs := []tx.SignedMessage{
		*e.message(a, 0, tx.Transfer, &tx.TransferParams{To: b.addr, Value: big.NewInt(3)}),
		*e.message(a, 5, tx.Transfer, &tx.TransferParams{To: b.addr, Value: big.NewInt(4)}),
		*e.message(a, 1, tx.Transfer, &tx.TransferParams{To: b.addr, Value: big.NewInt(5)}),
	}
	blk := tx.NewBlock(1, types.Undef, time.Unix(e.ts, 0), msgs)

	rcs, err := e.l.ApplyBlock(context.TODO(), blk)
	require.NoError(t, err)
	require.Len(t, rcs, 3)
	require.Equal(t, tx.Ok, rcs[0].Status)
	require.Equal(t, tx.Failed, rcs[1].Status)
	require.NotEmpty(t, rcs[1].Err)
	require.Equal(t, tx.Ok, rcs[2].Status)
	require.Equal(t, uint32(2), rcs[2].Index)
	require.Equal(t, rcs, blk.Receipts)

	require.Equal(t, uint64(1), e.l.GetHeight())
	require.Equal(t, int64(testFunds+8), e.balance(b.addr))

	evs, err := e.l.GetEvents(1)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	for i, want := range []int64{3, 5} {
		ev, err := evs[i].Event()
		require.NoError(t, err)
		tr, ok := ev.(*types.Transferred)
		require.True(t, ok)
		require.Equal(t, want, tr.Value.Int64())
	}

	_, err = e.l.ApplyBlock(context.TODO(), tx.NewBlock(1, types.Undef, time.Unix(e.ts, 0), nil))
	require.ErrorIs(t, err, ErrBadHeight)

	// the height moves on even when nothing applies
	bad := []tx.SignedMessage{*e.message(a, 9, tx.Transfer, &tx.TransferParams{To: b.addr, Value: big.NewInt(1)})}
	_, err = e.l.ApplyBlock(context.TODO(), tx.NewBlock(2, types.Undef, time.Unix(e.ts, 0), bad))
	require.NoError(t, err)
	require.Equal(t, uint64(2), e.l.GetHeight())

	e.checkConservation()
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	opt := kv.DefaultOptions
	opt.GcInterval = 0

	ds, err := kv.NewBadgerStore(dir, &opt)
	require.NoError(t, err)

	a := newAccount(t)
	p := testParams()
	p.Allocations = []Allocation{{Address: a.addr, Value: big.NewInt(testFunds)}}

	e := &testEnv{t: t, ds: ds, params: p, funded: []account{a}, known: []common.Address{a.addr}}
	e.l, err = New(context.TODO(), ds, p)
	require.NoError(t, err)
	e.setPeriod(10)

	e.mustSend(a, tx.Deposit, &tx.DepositParams{Value: big.NewInt(1000), Periods: 5})
	e.mustSend(a, tx.CommitToNextPeriod, nil)
	root := e.l.GetRoot()
	height := e.l.GetHeight()
	require.NoError(t, ds.Close())

	ds, err = kv.NewBadgerStore(dir, &opt)
	require.NoError(t, err)
	defer ds.Close()

	l, err := New(context.TODO(), ds, p)
	require.NoError(t, err)
	require.Equal(t, root, l.GetRoot())
	require.Equal(t, height, l.GetHeight())
	require.Equal(t, uint64(10), l.GetPeriod())

	st, err := l.GetStakerInfo(a.addr)
	require.NoError(t, err)
	require.Equal(t, int64(1000), st.Value.Int64())
	require.Equal(t, uint64(11), st.LastCommittedPeriod)

	locked, err := l.GetAllLockedTokens(11)
	require.NoError(t, err)
	require.Equal(t, int64(1000), locked.Int64())

	evs, err := l.GetEvents(height)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, types.EvCommitmentMade, evs[0].Kind)
}

func TestUpgrade(t *testing.T) {
	e := newTestEnv(t, 1)
	require.Error(t, e.l.Upgrade(badStrategy{}))
	require.NoError(t, e.l.Upgrade(V1{}))
}

type badStrategy struct{ V1 }

func (badStrategy) Version() uint32 { return 99 }
