package ledger

import (
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/types"
	"github.com/memoio/go-mefs-pre/lib/types/store"
)

var beginRoot = types.NewMsgID([]byte("go-mefs-pre/ledger"))

// State is the committed ledger. Entities are cached in maps and lazily
// loaded from ds; only an Overlay commit writes to them.
type State struct {
	ds store.KVStore

	// guards the caches against concurrent readers
	mu sync.Mutex

	height uint64
	period uint64 // last period a message was applied in
	root   types.MsgID

	supply  *big.Int
	feePool *big.Int

	stakerList []common.Address // insertion order

	stakers   map[common.Address]*types.Staker
	workers   map[common.Address]common.Address // worker -> staker
	balances  map[common.Address]*big.Int
	nonces    map[common.Address]uint64
	policies  map[types.PolicyID]*types.Policy
	fees      map[common.Address]*types.NodeFee
	locked    map[uint64]*big.Int
	snapshots map[uint64]*big.Int
}

func newState(ds store.KVStore) *State {
	return &State{
		ds:        ds,
		root:      beginRoot,
		supply:    new(big.Int),
		feePool:   new(big.Int),
		stakers:   make(map[common.Address]*types.Staker),
		workers:   make(map[common.Address]common.Address),
		balances:  make(map[common.Address]*big.Int),
		nonces:    make(map[common.Address]uint64),
		policies:  make(map[types.PolicyID]*types.Policy),
		fees:      make(map[common.Address]*types.NodeFee),
		locked:    make(map[uint64]*big.Int),
		snapshots: make(map[uint64]*big.Int),
	}
}

func encodeUint(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, xerrors.Errorf("uint64 needs 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func encodeToken(v *big.Int) ([]byte, error) {
	return types.Encode(v)
}

func decodeToken(b []byte) (*big.Int, error) {
	v := new(big.Int)
	err := types.Decode(b, v)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// load reads the scalar fields; false means the store is empty.
func (s *State) load() (bool, error) {
	val, err := s.ds.Get(store.NewKey(store.MetaType_ST_RootKey))
	if err != nil {
		return false, err
	}
	if val == nil {
		return false, nil
	}
	s.root, err = types.FromBytes(val)
	if err != nil {
		return false, err
	}

	val, err = s.ds.Get(store.NewKey(store.MetaType_ST_HeightKey))
	if err != nil {
		return false, err
	}
	if val != nil {
		s.height, err = decodeUint(val)
		if err != nil {
			return false, err
		}
	}

	val, err = s.ds.Get(store.NewKey(store.MetaType_ST_PeriodKey))
	if err != nil {
		return false, err
	}
	if val != nil {
		s.period, err = decodeUint(val)
		if err != nil {
			return false, err
		}
	}

	s.supply, err = s.loadToken(store.NewKey(store.MetaType_ST_SupplyKey))
	if err != nil {
		return false, err
	}
	s.feePool, err = s.loadToken(store.NewKey(store.MetaType_ST_FeePoolKey))
	if err != nil {
		return false, err
	}

	val, err = s.ds.Get(store.NewKey(store.MetaType_ST_StakersKey))
	if err != nil {
		return false, err
	}
	if val != nil {
		err = types.Decode(val, &s.stakerList)
		if err != nil {
			return false, err
		}
	}

	return true, nil
}

func (s *State) loadToken(key []byte) (*big.Int, error) {
	val, err := s.ds.Get(key)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return new(big.Int), nil
	}
	return decodeToken(val)
}

func (s *State) loadStaker(addr common.Address) (*types.Staker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stakers[addr]
	if ok {
		return st, nil
	}

	val, err := s.ds.Get(store.NewKey(store.MetaType_ST_StakerKey, addr))
	if err != nil || val == nil {
		return nil, err
	}

	st = new(types.Staker)
	err = st.Deserialize(val)
	if err != nil {
		return nil, err
	}
	s.stakers[addr] = st
	return st, nil
}

func (s *State) loadWorker(worker common.Address) (common.Address, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.workers[worker]
	if ok {
		return st, true, nil
	}

	val, err := s.ds.Get(store.NewKey(store.MetaType_ST_WorkerKey, worker))
	if err != nil || val == nil {
		return common.Address{}, false, err
	}

	st = common.BytesToAddress(val)
	s.workers[worker] = st
	return st, true, nil
}

func (s *State) loadBalance(addr common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[addr]
	if ok {
		return b, nil
	}

	b, err := s.loadToken(store.NewKey(store.MetaType_ST_BalanceKey, addr))
	if err != nil {
		return nil, err
	}
	s.balances[addr] = b
	return b, nil
}

func (s *State) loadNonce(addr common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nonces[addr]
	if ok {
		return n, nil
	}

	val, err := s.ds.Get(store.NewKey(store.MetaType_ST_NonceKey, addr))
	if err != nil {
		return 0, err
	}
	if val != nil {
		n, err = decodeUint(val)
		if err != nil {
			return 0, err
		}
	}
	s.nonces[addr] = n
	return n, nil
}

func (s *State) loadPolicy(id types.PolicyID) (*types.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.policies[id]
	if ok {
		return p, nil
	}

	val, err := s.ds.Get(store.NewKey(store.MetaType_ST_PolicyKey, id))
	if err != nil || val == nil {
		return nil, err
	}

	p = new(types.Policy)
	err = p.Deserialize(val)
	if err != nil {
		return nil, err
	}
	s.policies[id] = p
	return p, nil
}

func (s *State) loadNodeFee(addr common.Address) (*types.NodeFee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nf, ok := s.fees[addr]
	if ok {
		return nf, nil
	}

	val, err := s.ds.Get(store.NewKey(store.MetaType_ST_NodeFeeKey, addr))
	if err != nil || val == nil {
		return nil, err
	}

	nf = new(types.NodeFee)
	err = nf.Deserialize(val)
	if err != nil {
		return nil, err
	}
	s.fees[addr] = nf
	return nf, nil
}

func (s *State) loadLocked(p uint64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.locked[p]
	if ok {
		return v, nil
	}

	v, err := s.loadToken(store.NewKey(store.MetaType_ST_LockedKey, p))
	if err != nil {
		return nil, err
	}
	s.locked[p] = v
	return v, nil
}

// loadSnapshot returns nil when no staker committed to p yet.
func (s *State) loadSnapshot(p uint64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.snapshots[p]
	if ok {
		return v, nil
	}

	val, err := s.ds.Get(store.NewKey(store.MetaType_ST_SnapshotKey, p))
	if err != nil || val == nil {
		return nil, err
	}
	v, err = decodeToken(val)
	if err != nil {
		return nil, err
	}
	s.snapshots[p] = v
	return v, nil
}

func (s *State) hasEvidence(id types.MsgID) (bool, error) {
	return s.ds.Has(store.NewKey(store.MetaType_ST_EvidenceKey, id))
}

// newRoot chains the applied message into the state root.
func newRoot(prev types.MsgID, mid types.MsgID) types.MsgID {
	buf := make([]byte, 0, 2*types.MsgIDLen)
	buf = append(buf, prev.Bytes()...)
	return types.NewMsgID(append(buf, mid.Bytes()...))
}
