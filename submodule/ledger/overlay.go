package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/types"
	"github.com/memoio/go-mefs-pre/lib/types/store"
)

// Overlay stages the effects of one message on top of the committed State.
// Entities are cloned on first access; nothing reaches the State unless
// commit succeeds.
type Overlay struct {
	base   *State
	params *Params

	current uint64 // period of the message
	ts      int64

	supply  *big.Int
	feePool *big.Int

	newStakers []common.Address

	stakers   map[common.Address]*types.Staker
	workers   map[common.Address]common.Address // zero value means unbound
	balances  map[common.Address]*big.Int
	nonces    map[common.Address]uint64
	policies  map[types.PolicyID]*types.Policy
	fees      map[common.Address]*types.NodeFee
	locked    map[uint64]*big.Int
	snapshots map[uint64]*big.Int
	evidence  map[types.MsgID]struct{}

	events []types.Event
}

func newOverlay(base *State, params *Params, ts int64) *Overlay {
	return &Overlay{
		base:      base,
		params:    params,
		current:   params.Period(ts),
		ts:        ts,
		supply:    types.CopyToken(base.supply),
		feePool:   types.CopyToken(base.feePool),
		stakers:   make(map[common.Address]*types.Staker),
		workers:   make(map[common.Address]common.Address),
		balances:  make(map[common.Address]*big.Int),
		nonces:    make(map[common.Address]uint64),
		policies:  make(map[types.PolicyID]*types.Policy),
		fees:      make(map[common.Address]*types.NodeFee),
		locked:    make(map[uint64]*big.Int),
		snapshots: make(map[uint64]*big.Int),
		evidence:  make(map[types.MsgID]struct{}),
	}
}

func (o *Overlay) Current() uint64 {
	return o.current
}

func (o *Overlay) Params() *Params {
	return o.params
}

func (o *Overlay) emit(ev types.Event) {
	o.events = append(o.events, ev)
}

// staker returns a mutable copy, or nil for an unknown address.
func (o *Overlay) staker(addr common.Address) (*types.Staker, error) {
	st, ok := o.stakers[addr]
	if ok {
		return st, nil
	}

	bst, err := o.base.loadStaker(addr)
	if err != nil || bst == nil {
		return nil, err
	}
	st = bst.Clone()
	o.stakers[addr] = st
	return st, nil
}

func (o *Overlay) newStaker(addr common.Address) *types.Staker {
	st := types.NewStaker()
	o.stakers[addr] = st
	o.newStakers = append(o.newStakers, addr)
	return st
}

// stakerOf resolves a worker, or a staker acting for itself.
func (o *Overlay) stakerOf(addr common.Address) (common.Address, bool, error) {
	st, ok := o.workers[addr]
	if !ok {
		var err error
		st, ok, err = o.base.loadWorker(addr)
		if err != nil {
			return common.Address{}, false, err
		}
	}
	if ok && st != (common.Address{}) {
		return st, true, nil
	}

	s, err := o.staker(addr)
	if err != nil {
		return common.Address{}, false, err
	}
	return addr, s != nil, nil
}

func (o *Overlay) bindWorker(worker, staker common.Address) {
	o.workers[worker] = staker
}

func (o *Overlay) unbindWorker(worker common.Address) {
	o.workers[worker] = common.Address{}
}

func (o *Overlay) balance(addr common.Address) (*big.Int, error) {
	b, ok := o.balances[addr]
	if ok {
		return b, nil
	}

	bb, err := o.base.loadBalance(addr)
	if err != nil {
		return nil, err
	}
	b = types.CopyToken(bb)
	o.balances[addr] = b
	return b, nil
}

func (o *Overlay) addBalance(addr common.Address, v *big.Int) error {
	b, err := o.balance(addr)
	if err != nil {
		return err
	}
	nb, err := types.SafeAdd(b, v)
	if err != nil {
		return err
	}
	o.balances[addr] = nb
	return nil
}

func (o *Overlay) subBalance(addr common.Address, v *big.Int) error {
	b, err := o.balance(addr)
	if err != nil {
		return err
	}
	if b.Cmp(v) < 0 {
		return xerrors.Errorf("%s has %s, needs %s: %w", addr, b, v, ErrInsufficientBalance)
	}
	o.balances[addr] = new(big.Int).Sub(b, v)
	return nil
}

func (o *Overlay) nonce(addr common.Address) (uint64, error) {
	n, ok := o.nonces[addr]
	if ok {
		return n, nil
	}
	return o.base.loadNonce(addr)
}

func (o *Overlay) setNonce(addr common.Address, n uint64) {
	o.nonces[addr] = n
}

func (o *Overlay) policy(id types.PolicyID) (*types.Policy, error) {
	p, ok := o.policies[id]
	if ok {
		return p, nil
	}

	bp, err := o.base.loadPolicy(id)
	if err != nil || bp == nil {
		return nil, err
	}
	p = bp.Clone()
	o.policies[id] = p
	return p, nil
}

func (o *Overlay) putPolicy(p *types.Policy) {
	o.policies[p.ID] = p
}

func (o *Overlay) nodeFee(addr common.Address) (*types.NodeFee, error) {
	nf, ok := o.fees[addr]
	if ok {
		return nf, nil
	}

	bnf, err := o.base.loadNodeFee(addr)
	if err != nil || bnf == nil {
		return nil, err
	}
	nf = bnf.Clone()
	o.fees[addr] = nf
	return nf, nil
}

func (o *Overlay) putNodeFee(addr common.Address, nf *types.NodeFee) {
	o.fees[addr] = nf
}

func (o *Overlay) lockedPerPeriod(p uint64) (*big.Int, error) {
	v, ok := o.locked[p]
	if ok {
		return v, nil
	}

	bv, err := o.base.loadLocked(p)
	if err != nil {
		return nil, err
	}
	v = types.CopyToken(bv)
	o.locked[p] = v
	return v, nil
}

// addLocked applies a signed delta to the total locked for period p.
func (o *Overlay) addLocked(p uint64, delta *big.Int) error {
	v, err := o.lockedPerPeriod(p)
	if err != nil {
		return err
	}
	nv, err := types.SafeAdd(v, delta)
	if err != nil {
		return xerrors.Errorf("locked for period %d: %w", p, err)
	}
	o.locked[p] = nv
	return nil
}

func (o *Overlay) snapshot(p uint64) (*big.Int, error) {
	v, ok := o.snapshots[p]
	if ok {
		return v, nil
	}
	return o.base.loadSnapshot(p)
}

func (o *Overlay) setSnapshot(p uint64, v *big.Int) {
	o.snapshots[p] = types.CopyToken(v)
}

func (o *Overlay) evidenceUsed(id types.MsgID) (bool, error) {
	if _, ok := o.evidence[id]; ok {
		return true, nil
	}
	return o.base.hasEvidence(id)
}

func (o *Overlay) markEvidence(id types.MsgID) {
	o.evidence[id] = struct{}{}
}

// commit writes every staged entity and the new scalar fields in one
// transaction, then swaps them into the State caches. Events are stored
// under (height, firstEvent+i).
func (o *Overlay) commit(root types.MsgID, height uint64, firstEvent int) ([]types.EventRecord, error) {
	s := o.base

	txn, err := s.ds.NewTxnStore(true)
	if err != nil {
		return nil, err
	}
	defer txn.Discard()

	put := func(key []byte, v interface{}) error {
		b, err := types.Encode(v)
		if err != nil {
			return err
		}
		return txn.Put(key, b)
	}

	for addr, st := range o.stakers {
		if err := put(store.NewKey(store.MetaType_ST_StakerKey, addr), st); err != nil {
			return nil, err
		}
	}

	stakerList := s.stakerList
	if len(o.newStakers) > 0 {
		stakerList = append(append([]common.Address{}, s.stakerList...), o.newStakers...)
		if err := put(store.NewKey(store.MetaType_ST_StakersKey), stakerList); err != nil {
			return nil, err
		}
	}

	for w, st := range o.workers {
		key := store.NewKey(store.MetaType_ST_WorkerKey, w)
		if st == (common.Address{}) {
			err = txn.Delete(key)
		} else {
			err = txn.Put(key, st.Bytes())
		}
		if err != nil {
			return nil, err
		}
	}

	for addr, b := range o.balances {
		if err := put(store.NewKey(store.MetaType_ST_BalanceKey, addr), b); err != nil {
			return nil, err
		}
	}

	for addr, n := range o.nonces {
		if err := txn.Put(store.NewKey(store.MetaType_ST_NonceKey, addr), encodeUint(n)); err != nil {
			return nil, err
		}
	}

	for id, p := range o.policies {
		if err := put(store.NewKey(store.MetaType_ST_PolicyKey, id), p); err != nil {
			return nil, err
		}
	}

	for addr, nf := range o.fees {
		if err := put(store.NewKey(store.MetaType_ST_NodeFeeKey, addr), nf); err != nil {
			return nil, err
		}
	}

	for p, v := range o.locked {
		if err := put(store.NewKey(store.MetaType_ST_LockedKey, p), v); err != nil {
			return nil, err
		}
	}

	for p, v := range o.snapshots {
		if err := put(store.NewKey(store.MetaType_ST_SnapshotKey, p), v); err != nil {
			return nil, err
		}
	}

	for id := range o.evidence {
		if err := txn.Put(store.NewKey(store.MetaType_ST_EvidenceKey, id), []byte{1}); err != nil {
			return nil, err
		}
	}

	records := make([]types.EventRecord, 0, len(o.events))
	for i, ev := range o.events {
		rec, err := types.NewEventRecord(ev)
		if err != nil {
			return nil, err
		}
		if err := put(eventKey(height, firstEvent+i), &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := put(store.NewKey(store.MetaType_ST_SupplyKey), o.supply); err != nil {
		return nil, err
	}
	if err := put(store.NewKey(store.MetaType_ST_FeePoolKey), o.feePool); err != nil {
		return nil, err
	}

	period := s.period
	if o.current > period {
		period = o.current
	}
	if err := txn.Put(store.NewKey(store.MetaType_ST_PeriodKey), encodeUint(period)); err != nil {
		return nil, err
	}
	if err := txn.Put(store.NewKey(store.MetaType_ST_HeightKey), encodeUint(height)); err != nil {
		return nil, err
	}
	if err := txn.Put(store.NewKey(store.MetaType_ST_RootKey), root.Bytes()); err != nil {
		return nil, err
	}

	if err := txn.Commit(); err != nil {
		return nil, err
	}

	// the store is durable; publish to readers
	for addr, st := range o.stakers {
		s.stakers[addr] = st
	}
	s.stakerList = stakerList
	for w, st := range o.workers {
		if st == (common.Address{}) {
			delete(s.workers, w)
		} else {
			s.workers[w] = st
		}
	}
	for addr, b := range o.balances {
		s.balances[addr] = b
	}
	for addr, n := range o.nonces {
		s.nonces[addr] = n
	}
	for id, p := range o.policies {
		s.policies[id] = p
	}
	for addr, nf := range o.fees {
		s.fees[addr] = nf
	}
	for p, v := range o.locked {
		s.locked[p] = v
	}
	for p, v := range o.snapshots {
		s.snapshots[p] = v
	}
	s.supply = o.supply
	s.feePool = o.feePool
	s.period = period
	s.height = height
	s.root = root

	return records, nil
}

func eventKey(height uint64, index int) []byte {
	return store.NewKey(store.MetaType_ST_EventKey, height, index)
}
