package ledger

import (
	"context"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opencensus.io/stats"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/build"
	logging "github.com/memoio/go-mefs-pre/lib/log"
	"github.com/memoio/go-mefs-pre/lib/tx"
	"github.com/memoio/go-mefs-pre/lib/types"
	"github.com/memoio/go-mefs-pre/lib/types/store"
	"github.com/memoio/go-mefs-pre/submodule/metrics"
)

var logger = logging.Logger("ledger")

// Clock supplies block timestamps in unix seconds.
type Clock interface {
	Now() int64
}

type SystemClock struct{}

func (SystemClock) Now() int64 {
	return time.Now().Unix()
}

// Ledger is the stable handle over the state and the active strategy.
// Writers are serialized; readers only see committed state.
type Ledger struct {
	lk sync.RWMutex

	params     *Params
	state      *State
	strategies map[uint32]Strategy
}

// New opens the ledger kept in ds, writing genesis when ds is empty.
func New(ctx context.Context, ds store.KVStore, params *Params) (*Ledger, error) {
	if params == nil {
		params = DefaultParams()
	}
	err := params.Validate()
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		params:     params,
		state:      newState(ds),
		strategies: map[uint32]Strategy{build.StrategyV1: V1{}},
	}

	ok, err := l.state.load()
	if err != nil {
		return nil, xerrors.Errorf("load ledger: %w", err)
	}
	if ok {
		logger.Infow("ledger loaded", "height", l.state.height, "period", l.state.period, "root", l.state.root)
		return l, nil
	}

	err = l.genesis()
	if err != nil {
		return nil, xerrors.Errorf("ledger genesis: %w", err)
	}
	logger.Infow("ledger genesis", "supply", l.state.supply, "root", l.state.root)
	return l, nil
}

func (l *Ledger) genesis() error {
	o := newOverlay(l.state, l.params, 0)
	for _, a := range l.params.Allocations {
		err := o.addBalance(a.Address, a.Value)
		if err != nil {
			return err
		}
		o.supply.Add(o.supply, a.Value)
	}
	_, err := o.commit(beginRoot, 0, 0)
	return err
}

// Upgrade registers a strategy; it takes effect at the height recorded for
// its version in build.StrategyUpdateMap.
func (l *Ledger) Upgrade(s Strategy) error {
	l.lk.Lock()
	defer l.lk.Unlock()

	if _, ok := build.StrategyUpdateMap[s.Version()]; !ok {
		return xerrors.Errorf("strategy version %d has no activation height", s.Version())
	}
	l.strategies[s.Version()] = s
	return nil
}

func (l *Ledger) strategyAt(height uint64) (Strategy, error) {
	ver := build.StrategyAt(height)
	for ; ver > 0; ver-- {
		s, ok := l.strategies[ver]
		if ok {
			return s, nil
		}
	}
	return nil, xerrors.Errorf("no strategy for height %d", height)
}

// ApplyMsg applies one message as its own block at the next height. A
// failed message changes nothing, not even the sender's nonce; the receipt
// is returned alongside the error.
func (l *Ledger) ApplyMsg(ctx context.Context, sm *tx.SignedMessage, ts int64) (*tx.Receipt, error) {
	l.lk.Lock()
	defer l.lk.Unlock()

	height := l.state.height + 1
	rc, err := l.applyMsg(ctx, sm, ts, height, 0, 0)
	if err != nil {
		return rc, err
	}
	stats.Record(ctx, metrics.TxBlockHeight.M(int64(height)))
	return rc, nil
}

// ApplyBlock applies the messages of b in order. Failed messages are
// recorded in their receipts and skipped; the height advances regardless.
func (l *Ledger) ApplyBlock(ctx context.Context, b *tx.Block) ([]tx.Receipt, error) {
	l.lk.Lock()
	defer l.lk.Unlock()

	defer metrics.Timer(ctx, metrics.TxBlockApply)()

	if b.Height != l.state.height+1 {
		return nil, xerrors.Errorf("apply block %d at height %d: %w", b.Height, l.state.height, ErrBadHeight)
	}
	if l.params.Period(b.Time) < l.state.period {
		return nil, xerrors.Errorf("block %d period %d < %d: %w", b.Height, l.params.Period(b.Time), l.state.period, ErrClockSkew)
	}

	receipts := make([]tx.Receipt, 0, len(b.Msgs))
	nextEvent := 0
	for i := range b.Msgs {
		rc, err := l.applyMsg(ctx, &b.Msgs[i], b.Time, b.Height, uint32(i), nextEvent)
		if err != nil {
			logger.Debugw("block message failed", "height", b.Height, "index", i, "error", err)
		}
		nextEvent += len(rc.Events)
		receipts = append(receipts, *rc)
	}

	// commit the height even if every message failed
	err := l.commitHeight(b.Height, b.Time)
	if err != nil {
		return nil, err
	}
	b.Receipts = receipts

	stats.Record(ctx, metrics.TxBlockHeight.M(int64(b.Height)))
	return receipts, nil
}

func (l *Ledger) commitHeight(height uint64, ts int64) error {
	if l.state.height >= height {
		return nil
	}
	o := newOverlay(l.state, l.params, ts)
	_, err := o.commit(l.state.root, height, 0)
	return err
}

func (l *Ledger) applyMsg(ctx context.Context, sm *tx.SignedMessage, ts int64, height uint64, index uint32, firstEvent int) (*tx.Receipt, error) {
	defer metrics.Timer(ctx, metrics.TxMessageApply)()

	rc := &tx.Receipt{
		Height: height,
		Index:  index,
		Status: tx.Failed,
	}

	fail := func(err error) (*tx.Receipt, error) {
		rc.Err = err.Error()
		metrics.RecordWith(ctx, metrics.Method, tx.MethodName(sm.Method), metrics.TxMessageFailure.M(1))
		logger.Debugw("message rejected", "from", sm.From, "nonce", sm.Nonce, "method", tx.MethodName(sm.Method), "error", err)
		return rc, err
	}

	err := sm.Verify()
	rc.MsgID = sm.ID
	if err != nil {
		return fail(err)
	}

	o := newOverlay(l.state, l.params, ts)
	if o.current < l.state.period {
		return fail(xerrors.Errorf("period %d < %d: %w", o.current, l.state.period, ErrClockSkew))
	}

	nonce, err := o.nonce(sm.From)
	if err != nil {
		return fail(err)
	}
	if sm.Nonce != nonce {
		return fail(xerrors.Errorf("%s expected nonce %d, got %d: %w", sm.From, nonce, sm.Nonce, ErrBadNonce))
	}

	s, err := l.strategyAt(height)
	if err != nil {
		return fail(err)
	}

	err = s.Apply(o, sm.From, sm.Method, sm.Params)
	if err != nil {
		return fail(xerrors.Errorf("%s: %w", tx.MethodName(sm.Method), err))
	}
	o.setNonce(sm.From, nonce+1)

	root := newRoot(l.state.root, sm.ID)
	records, err := o.commit(root, height, firstEvent)
	if err != nil {
		return fail(xerrors.Errorf("commit: %w", err))
	}

	rc.Status = tx.Ok
	rc.Events = records

	metrics.RecordWith(ctx, metrics.Method, tx.MethodName(sm.Method), metrics.TxMessageSuccess.M(1))
	stats.Record(ctx, metrics.LedgerPeriod.M(int64(l.state.period)))
	logger.Debugw("message applied", "from", sm.From, "nonce", sm.Nonce, "method", tx.MethodName(sm.Method), "height", height, "root", root)
	return rc, nil
}

func decodeParams(b []byte, v interface{}) error {
	err := tx.DecodeParams(b, v)
	if err != nil {
		return xerrors.Errorf("%s: %w", err, ErrInvalidParam)
	}
	return nil
}

// reads

func (l *Ledger) Params() *Params {
	return l.params
}

func (l *Ledger) GetRoot() types.MsgID {
	l.lk.RLock()
	defer l.lk.RUnlock()
	return l.state.root
}

func (l *Ledger) GetHeight() uint64 {
	l.lk.RLock()
	defer l.lk.RUnlock()
	return l.state.height
}

// GetPeriod is the last period a message was applied in.
func (l *Ledger) GetPeriod() uint64 {
	l.lk.RLock()
	defer l.lk.RUnlock()
	return l.state.period
}

func (l *Ledger) GetSupply() *big.Int {
	l.lk.RLock()
	defer l.lk.RUnlock()
	return types.CopyToken(l.state.supply)
}

func (l *Ledger) GetFeePool() *big.Int {
	l.lk.RLock()
	defer l.lk.RUnlock()
	return types.CopyToken(l.state.feePool)
}

func (l *Ledger) GetNonce(addr common.Address) (uint64, error) {
	l.lk.RLock()
	defer l.lk.RUnlock()
	return l.state.loadNonce(addr)
}

func (l *Ledger) GetBalance(addr common.Address) (*big.Int, error) {
	l.lk.RLock()
	defer l.lk.RUnlock()
	b, err := l.state.loadBalance(addr)
	if err != nil {
		return nil, err
	}
	return types.CopyToken(b), nil
}

// GetStakerInfo returns a copy; ErrUnknownStaker if addr never deposited.
func (l *Ledger) GetStakerInfo(addr common.Address) (*types.Staker, error) {
	l.lk.RLock()
	defer l.lk.RUnlock()
	return l.stakerCopy(addr)
}

func (l *Ledger) stakerCopy(addr common.Address) (*types.Staker, error) {
	st, err := l.state.loadStaker(addr)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, xerrors.Errorf("%s: %w", addr, ErrUnknownStaker)
	}
	return st.Clone(), nil
}

func (l *Ledger) GetSubStakes(addr common.Address) ([]*types.SubStake, error) {
	st, err := l.GetStakerInfo(addr)
	if err != nil {
		return nil, err
	}
	return st.SubStakes, nil
}

func (l *Ledger) GetPastDowntime(addr common.Address) ([]types.Downtime, error) {
	st, err := l.GetStakerInfo(addr)
	if err != nil {
		return nil, err
	}
	return st.Downtime, nil
}

func (l *Ledger) GetLastCommittedPeriod(addr common.Address) (uint64, error) {
	st, err := l.GetStakerInfo(addr)
	if err != nil {
		return 0, err
	}
	return st.LastCommittedPeriod, nil
}

// GetLockedTokens sums the staker's sub-stakes active at period.
func (l *Ledger) GetLockedTokens(addr common.Address, period uint64) (*big.Int, error) {
	st, err := l.GetStakerInfo(addr)
	if err != nil {
		return nil, err
	}
	return st.LockedAt(period), nil
}

// GetAllLockedTokens is the total committed for period, the reward denominator.
func (l *Ledger) GetAllLockedTokens(period uint64) (*big.Int, error) {
	l.lk.RLock()
	defer l.lk.RUnlock()
	v, err := l.state.loadLocked(period)
	if err != nil {
		return nil, err
	}
	return types.CopyToken(v), nil
}

type ActiveStaker struct {
	Address common.Address
	Locked  *big.Int
}

// GetActiveStakers lists, in deposit order, stakers committed to the period
// after the last applied one that stay locked for the next periods.
func (l *Ledger) GetActiveStakers(periods uint64) (*big.Int, []ActiveStaker, error) {
	if periods == 0 {
		return nil, nil, xerrors.Errorf("periods must be positive: %w", ErrInvalidParam)
	}

	l.lk.RLock()
	defer l.lk.RUnlock()

	next := l.state.period + 1
	total := new(big.Int)
	res := make([]ActiveStaker, 0)
	for _, addr := range l.state.stakerList {
		st, err := l.state.loadStaker(addr)
		if err != nil {
			return nil, nil, err
		}
		if st == nil || st.LastCommittedPeriod < next {
			continue
		}
		locked := st.LockedAt(next + periods - 1)
		if locked.Sign() == 0 {
			continue
		}
		total.Add(total, locked)
		res = append(res, ActiveStaker{Address: addr, Locked: locked})
	}
	return total, res, nil
}

func (l *Ledger) GetStakers() []common.Address {
	l.lk.RLock()
	defer l.lk.RUnlock()
	return append([]common.Address{}, l.state.stakerList...)
}

func (l *Ledger) GetPolicy(id types.PolicyID) (*types.Policy, error) {
	l.lk.RLock()
	defer l.lk.RUnlock()
	p, err := l.state.loadPolicy(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, xerrors.Errorf("%s: %w", id, ErrUnknownPolicy)
	}
	return p.Clone(), nil
}

// CalculateRefund is the value a Refund of id would pay at ts. Nothing is
// written.
func (l *Ledger) CalculateRefund(id types.PolicyID, ts int64) (*big.Int, error) {
	l.lk.RLock()
	defer l.lk.RUnlock()
	p, err := l.state.loadPolicy(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, xerrors.Errorf("%s: %w", id, ErrUnknownPolicy)
	}

	o := newOverlay(l.state, l.params, ts)
	pol := p.Clone()
	total := new(big.Int)
	for _, arr := range pol.Arrangements {
		if !arr.Active {
			continue
		}
		r, err := calculateRefund(o, pol, arr)
		if err != nil {
			return nil, err
		}
		total.Add(total, r)
	}
	return total, nil
}

func (l *Ledger) GetNodeFee(addr common.Address) (*types.NodeFee, error) {
	l.lk.RLock()
	defer l.lk.RUnlock()
	nf, err := l.state.loadNodeFee(addr)
	if err != nil {
		return nil, err
	}
	if nf == nil {
		return nil, xerrors.Errorf("%s: %w", addr, ErrUnknownNode)
	}
	return nf.Clone(), nil
}

// GetWorkerStaker resolves the staker a worker is bound to.
func (l *Ledger) GetWorkerStaker(worker common.Address) (common.Address, bool, error) {
	l.lk.RLock()
	defer l.lk.RUnlock()
	return l.state.loadWorker(worker)
}

// GetEvents returns the events persisted at height in emission order.
func (l *Ledger) GetEvents(height uint64) ([]types.EventRecord, error) {
	l.lk.RLock()
	defer l.lk.RUnlock()

	type indexed struct {
		idx int
		rec types.EventRecord
	}
	var evs []indexed
	var ierr error
	l.state.ds.Iter(store.Prefix(store.MetaType_ST_EventKey, height), func(k, v []byte) error {
		parts := store.SplitKey(k)
		if len(parts) != 2 {
			return nil
		}
		idx, err := strconv.Atoi(parts[1])
		if err != nil {
			ierr = err
			return err
		}
		rec := new(types.EventRecord)
		err = rec.Deserialize(v)
		if err != nil {
			ierr = err
			return err
		}
		evs = append(evs, indexed{idx, *rec})
		return nil
	})
	if ierr != nil {
		return nil, ierr
	}

	sort.Slice(evs, func(i, j int) bool { return evs[i].idx < evs[j].idx })
	res := make([]types.EventRecord, len(evs))
	for i, e := range evs {
		res[i] = e.rec
	}
	return res, nil
}
