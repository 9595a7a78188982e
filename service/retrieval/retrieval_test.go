package retrieval

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memoio/go-mefs-pre/lib/backend/kv"
	"github.com/memoio/go-mefs-pre/lib/crypto/curve"
	"github.com/memoio/go-mefs-pre/lib/crypto/signature"
	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
	"github.com/memoio/go-mefs-pre/lib/pre"
	"github.com/memoio/go-mefs-pre/lib/tx"
	"github.com/memoio/go-mefs-pre/lib/types"
	"github.com/memoio/go-mefs-pre/service/ursula"
	"github.com/memoio/go-mefs-pre/submodule/ledger"
)

var plaintext = []byte("peace at dawn")

type proxy struct {
	node  *ursula.Node
	stamp sig_common.PrivKey
	kfrag pre.KFragID
}

type env struct {
	alice   *pre.SecretKey
	bob     *pre.SecretKey
	signing *pre.SecretKey

	capsule    *pre.Capsule
	ciphertext []byte

	proxies []*proxy
}

func newEnv(t *testing.T, m, n int) *env {
	e := &env{
		alice:   pre.GenerateSecretKey(),
		bob:     pre.GenerateSecretKey(),
		signing: pre.GenerateSecretKey(),
	}

	capsule, ct, err := pre.Encrypt(e.alice.PublicKey(), plaintext)
	require.NoError(t, err)
	e.capsule, e.ciphertext = capsule, ct

	kfrags, err := pre.GenerateKFrags(e.alice, e.bob.PublicKey(), e.signing.Signer(), m, n, true, true)
	require.NoError(t, err)

	policy := types.NewPolicyID()
	for _, kf := range kfrags {
		stamp, err := signature.GenerateKey(sig_common.Secp256k1)
		require.NoError(t, err)
		node, err := ursula.New(context.TODO(), kv.NewMemStore(), stamp, nil, ursula.DefaultOptions())
		require.NoError(t, err)
		id, err := node.Grant(context.TODO(), policy, kf.KeyFrag(), e.signing.PublicKey(), e.alice.PublicKey(), e.bob.PublicKey())
		require.NoError(t, err)
		e.proxies = append(e.proxies, &proxy{node: node, stamp: stamp, kfrag: id})
	}
	return e
}

func (e *env) retriever(opts Options) *Retriever {
	return New(e.bob, e.alice.PublicKey(), e.signing.PublicKey(), opts)
}

func (e *env) target(i int) Target {
	return Target{Proxy: e.proxies[i].node, KFragID: e.proxies[i].kfrag}
}

// cheater signs a fragment that does not match the proof.
type cheater struct {
	*proxy
}

func (c cheater) ID() string {
	return c.node.ID()
}

func (c cheater) ReEncrypt(ctx context.Context, req *ursula.Request) (*ursula.Response, error) {
	res, err := c.node.ReEncrypt(ctx, req)
	if err != nil {
		return nil, err
	}
	cf, err := pre.CapsuleFragFromBytes(res.CFrag)
	if err != nil {
		return nil, err
	}
	cf.E1 = cf.E1.Add(curve.Generator())
	res.CFrag = cf.Bytes()
	res.Signature, err = c.stamp.Sign(tx.EvidenceMessage(req.Capsule, res.CFrag, req.Metadata))
	return res, err
}

func (e *env) cheat(i int) Target {
	return Target{Proxy: cheater{e.proxies[i]}, KFragID: e.proxies[i].kfrag}
}

type down struct {
	id string
}

func (d down) ID() string {
	return d.id
}

func (d down) ReEncrypt(ctx context.Context, req *ursula.Request) (*ursula.Response, error) {
	return nil, errors.New("connection refused")
}

type recorder struct {
	sync.Mutex
	evs []*tx.Evidence
}

func (r *recorder) Report(ctx context.Context, ev *tx.Evidence) error {
	r.Lock()
	defer r.Unlock()
	r.evs = append(r.evs, ev)
	return nil
}

func TestDecrypt(t *testing.T) {
	e := newEnv(t, 2, 3)
	r := e.retriever(DefaultOptions())

	pt, err := r.Decrypt(context.TODO(), e.capsule, e.ciphertext, []byte("m"), 2, []Target{e.target(0), e.target(1), e.target(2)})
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)

	res, err := r.Retrieve(context.TODO(), e.capsule, nil, 2, []Target{e.target(2), e.target(0)})
	require.NoError(t, err)
	require.Len(t, res.CFrags, 2)
	require.Empty(t, res.Evidence)

	_, err = r.Retrieve(context.TODO(), e.capsule, nil, 3, []Target{e.target(2), e.target(0)})
	require.ErrorIs(t, err, pre.ErrInvalidThreshold)
}

func TestSkipInvalidFragment(t *testing.T) {
	e := newEnv(t, 2, 3)
	rec := new(recorder)
	r := e.retriever(Options{Concurrency: 1, Reporter: rec})

	pt, err := r.Decrypt(context.TODO(), e.capsule, e.ciphertext, []byte("m"), 2, []Target{e.cheat(0), e.target(1), e.target(2)})
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)

	require.Len(t, rec.evs, 1)
	ev := rec.evs[0]
	require.Equal(t, e.proxies[0].node.Stamp(), ev.UrsulaStamp)
	require.Equal(t, []byte("m"), ev.Metadata)
}

func TestInsufficientFragments(t *testing.T) {
	e := newEnv(t, 2, 3)
	rec := new(recorder)
	r := e.retriever(Options{Concurrency: 2, Reporter: rec})

	off := down{id: "offline"}
	res, err := r.Retrieve(context.TODO(), e.capsule, nil, 2, []Target{e.cheat(0), {Proxy: off, KFragID: e.proxies[1].kfrag}, e.target(2)})
	require.ErrorIs(t, err, pre.ErrInsufficientFragments)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, 1, rerr.Valid)
	require.Len(t, rerr.Failed, 2)
	require.ErrorIs(t, rerr.Failed[e.proxies[0].node.ID()], pre.ErrInvalidCorrectnessProof)
	require.Contains(t, rerr.Failed, "offline")

	require.Len(t, res.CFrags, 1)
	require.Len(t, res.Evidence, 1)
	require.Len(t, rec.evs, 1)
}

func TestDuplicateAndStamp(t *testing.T) {
	e := newEnv(t, 2, 3)
	r := e.retriever(Options{Concurrency: 1})

	// the same kfrag twice counts once
	_, err := r.Retrieve(context.TODO(), e.capsule, nil, 2, []Target{e.target(0), e.target(0)})
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	require.ErrorIs(t, rerr.Failed[e.proxies[0].node.ID()], pre.ErrDuplicateFragment)

	// a response under another stamp is refused
	pinned := e.target(1)
	pinned.Stamp = e.proxies[2].node.Stamp()
	_, err = r.Retrieve(context.TODO(), e.capsule, nil, 2, []Target{e.target(0), pinned, e.target(2)})
	require.NoError(t, err)

	_, err = r.Retrieve(context.TODO(), e.capsule, nil, 2, []Target{e.target(0), pinned})
	require.True(t, errors.As(err, &rerr))
	require.ErrorIs(t, rerr.Failed[e.proxies[1].node.ID()], ErrBadStamp)
}

func TestCancelled(t *testing.T) {
	e := newEnv(t, 2, 3)
	r := e.retriever(DefaultOptions())

	ctx, cancel := context.WithCancel(context.TODO())
	cancel()
	_, err := r.Retrieve(ctx, e.capsule, nil, 2, []Target{e.target(0), e.target(1), e.target(2)})
	require.ErrorIs(t, err, context.Canceled)
}

type clock struct{ ts int64 }

func (c clock) Now() int64 { return c.ts }

// TestReportSlashes runs the whole path: a staked proxy cheats, the
// receiver still decrypts and its report costs the proxy stake.
func TestReportSlashes(t *testing.T) {
	ctx := context.TODO()
	e := newEnv(t, 2, 3)

	cheat := e.proxies[0]
	staker := cheat.node.Account()
	bobKey, err := signature.GenerateKey(sig_common.Secp256k1)
	require.NoError(t, err)
	bob, err := signature.Address(bobKey.GetPublic())
	require.NoError(t, err)

	l, err := ledger.New(ctx, kv.NewMemStore(), &ledger.Params{
		PeriodDuration:     100,
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

		Allocations: []ledger.Allocation{{Address: staker, Value: big.NewInt(10000)}},
	})
	require.NoError(t, err)

	now := clock{ts: 1050}
	pb, err := tx.EncodeParams(&tx.DepositParams{Value: big.NewInt(1000), Periods: 5})
	require.NoError(t, err)
	sm, err := tx.Sign(tx.NewMessage(staker, 0, tx.Deposit, pb), cheat.stamp)
	require.NoError(t, err)
	_, err = l.ApplyMsg(ctx, sm, now.Now())
	require.NoError(t, err)

	rep, err := NewLedgerReporter(l, bobKey, now)
	require.NoError(t, err)
	r := e.retriever(Options{Concurrency: 1, Reporter: rep})

	pt, err := r.Decrypt(ctx, e.capsule, e.ciphertext, []byte("m"), 2, []Target{e.cheat(0), e.target(1), e.target(2)})
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)

	st, err := l.GetStakerInfo(staker)
	require.NoError(t, err)
	require.Equal(t, int64(990), st.Value.Int64())
	bal, err := l.GetBalance(bob)
	require.NoError(t, err)
	require.Equal(t, int64(5), bal.Int64())
}
