package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestMsgID(t *testing.T) {
	id := NewMsgID([]byte("hello"))
	if len(id.Bytes()) != MsgIDLen {
		t.Fatal("wrong length", len(id.Bytes()))
	}

	nid, err := FromString(id.String())
	if err != nil {
		t.Fatal(err)
	}
	if !nid.Equal(id) {
		t.Fatal("not equal")
	}

	nid, err = FromHexString(id.Hex())
	if err != nil {
		t.Fatal(err)
	}
	if nid != id {
		t.Fatal("not equal")
	}

	_, err = FromBytes([]byte("short"))
	if err != ErrMsgIDLen {
		t.Fatal("expected length error")
	}
}

func TestSafeMath(t *testing.T) {
	one := big.NewInt(1)

	_, err := SafeAdd(MaxTokenValue, one)
	require.True(t, xerrors.Is(err, ErrArithmeticOverflow))

	_, err = SafeSub(big.NewInt(0), one)
	require.True(t, xerrors.Is(err, ErrArithmeticOverflow))

	_, err = SafeMul(MaxTokenValue, big.NewInt(2))
	require.True(t, xerrors.Is(err, ErrArithmeticOverflow))

	_, err = SafeDiv(one, big.NewInt(0))
	require.True(t, xerrors.Is(err, ErrArithmeticOverflow))

	res, err := SafeMulDiv(MaxTokenValue, big.NewInt(4), big.NewInt(8))
	require.NoError(t, err)
	require.Equal(t, 0, res.Cmp(new(big.Int).Rsh(MaxTokenValue, 1)))

	res, err = SafeSub(big.NewInt(10), big.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, int64(7), res.Int64())
}

func TestSubStakePeriods(t *testing.T) {
	open := &SubStake{FirstPeriod: 11, Periods: 30, Value: big.NewInt(100)}

	// never committed: counts from the period before it starts
	require.Equal(t, uint64(40), open.LastPeriodOf(0))
	// committed stakers keep pushing the end forward
	require.Equal(t, uint64(50), open.LastPeriodOf(20))

	require.False(t, open.ActiveAt(10, 0))
	require.True(t, open.ActiveAt(11, 0))
	require.True(t, open.ActiveAt(40, 0))
	require.False(t, open.ActiveAt(41, 0))

	closed := &SubStake{FirstPeriod: 11, LastPeriod: 15, Value: big.NewInt(50)}
	require.Equal(t, uint64(15), closed.LastPeriodOf(100))

	st := NewStaker()
	st.Value = big.NewInt(200)
	st.SubStakes = []*SubStake{open, closed}

	require.Equal(t, int64(150), st.LockedAt(12).Int64())
	require.Equal(t, int64(100), st.LockedAt(16).Int64())
	require.Equal(t, int64(0), st.LockedAt(10).Int64())
	require.Equal(t, int64(50), st.Unlocked(12).Int64())
	require.Equal(t, int64(100), st.Unlocked(16).Int64())

	b, err := st.Serialize()
	require.NoError(t, err)
	nst := new(Staker)
	require.NoError(t, nst.Deserialize(b))
	require.Equal(t, int64(150), nst.LockedAt(12).Int64())

	cl := st.Clone()
	cl.SubStakes[0].Value.SetInt64(1)
	require.Equal(t, int64(100), st.SubStakes[0].Value.Int64())
}

func TestNodeFeeDeltas(t *testing.T) {
	nf := NewNodeFee(3)
	nf.AddDelta(7, big.NewInt(10))
	nf.AddDelta(4, big.NewInt(10))
	nf.AddDelta(9, big.NewInt(-10))
	nf.AddDelta(7, big.NewInt(-10))

	require.Equal(t, []uint64{4, 9}, nf.DeltaPeriods())

	b, err := nf.Serialize()
	require.NoError(t, err)
	nn := new(NodeFee)
	require.NoError(t, nn.Deserialize(b))
	require.Equal(t, []uint64{4, 9}, nn.DeltaPeriods())
	require.Equal(t, int64(-10), nn.Deltas[9].Int64())
}

func TestPolicyID(t *testing.T) {
	id := NewPolicyID()
	nid, err := ParsePolicyID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, nid)
}

func TestEventRecord(t *testing.T) {
	pid := NewPolicyID()
	ev := &PolicyCreated{
		PolicyID:    pid,
		Sponsor:     common.HexToAddress("0x01"),
		Owner:       common.HexToAddress("0x02"),
		FeeRate:     big.NewInt(10),
		FirstPeriod: 5,
		LastPeriod:  9,
		Nodes:       []common.Address{common.HexToAddress("0x03")},
	}

	rec, err := NewEventRecord(ev)
	require.NoError(t, err)
	require.Equal(t, EvPolicyCreated, rec.Kind)

	b, err := rec.Serialize()
	require.NoError(t, err)

	nrec := new(EventRecord)
	require.NoError(t, nrec.Deserialize(b))

	nev, err := nrec.Event()
	require.NoError(t, err)
	pc, ok := nev.(*PolicyCreated)
	require.True(t, ok)
	require.Equal(t, pid, pc.PolicyID)
	require.Equal(t, int64(10), pc.FeeRate.Int64())
	require.Equal(t, ev.Nodes, pc.Nodes)

	_, err = EventRecord{Kind: 999}.Event()
	require.True(t, xerrors.Is(err, ErrUnknownEvent))
}
