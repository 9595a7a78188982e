package tx

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/types"
	"github.com/memoio/go-mefs-pre/lib/types/store"
)

type TxStore interface {
	GetTxMsg(mid types.MsgID) (*SignedMessage, error)
	PutTxMsg(sm *SignedMessage) error

	GetTxBlock(bid types.MsgID) (*Block, error)
	PutTxBlock(tb *Block) error

	GetTxBlockByHeight(ht uint64) (types.MsgID, error)
	GetTxMsgState(mid types.MsgID) (*MsgState, error)
}

var _ TxStore = (*TxStoreImpl)(nil)

type TxStoreImpl struct {
	ctx context.Context
	ds  store.KVStore

	msgCache *lru.ARCCache
	blkCache *lru.TwoQueueCache

	htCache *lru.ARCCache
}

func NewTxStore(ctx context.Context, ds store.KVStore) (*TxStoreImpl, error) {
	mc, err := lru.NewARC(1024)
	if err != nil {
		return nil, err
	}

	bc, err := lru.New2Q(1024)
	if err != nil {
		return nil, err
	}

	hc, err := lru.NewARC(1024)
	if err != nil {
		return nil, err
	}

	ts := &TxStoreImpl{
		ctx: ctx,
		ds:  ds,

		msgCache: mc,
		blkCache: bc,
		htCache:  hc,
	}

	return ts, nil
}

func (ts *TxStoreImpl) get(key []byte) ([]byte, error) {
	res, err := ts.ds.Get(key)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, xerrors.Errorf("%s: %w", key, store.ErrNotFound)
	}
	return res, nil
}

func (ts *TxStoreImpl) GetTxMsg(mid types.MsgID) (*SignedMessage, error) {
	val, ok := ts.msgCache.Get(mid)
	if ok {
		return val.(*SignedMessage), nil
	}

	key := store.NewKey(store.MetaType_TX_MessageKey, mid.String())

	res, err := ts.get(key)
	if err != nil {
		return nil, err
	}

	sm := new(SignedMessage)
	err = sm.Deserialize(res)
	if err != nil {
		return nil, err
	}

	ts.msgCache.Add(mid, sm)

	return sm, nil
}

func (ts *TxStoreImpl) PutTxMsg(sm *SignedMessage) error {
	mid, err := sm.Hash()
	if err != nil {
		return err
	}

	ok := ts.msgCache.Contains(mid)
	if ok {
		return nil
	}

	key := store.NewKey(store.MetaType_TX_MessageKey, mid.String())
	sbyte, err := sm.Serialize()
	if err != nil {
		return err
	}

	ts.msgCache.Add(mid, sm)

	return ts.ds.Put(key, sbyte)
}

func (ts *TxStoreImpl) GetTxBlock(bid types.MsgID) (*Block, error) {
	val, ok := ts.blkCache.Get(bid)
	if ok {
		return val.(*Block), nil
	}

	key := store.NewKey(store.MetaType_TX_BlockKey, bid.String())

	res, err := ts.get(key)
	if err != nil {
		return nil, err
	}

	tb := new(Block)
	err = tb.Deserialize(res)
	if err != nil {
		return nil, err
	}

	ts.blkCache.Add(bid, tb)

	return tb, nil
}

// PutTxBlock stores the block, its height index and, when receipts are
// present, the state of every message in it.
func (ts *TxStoreImpl) PutTxBlock(tb *Block) error {
	bid, err := tb.Hash()
	if err != nil {
		return err
	}

	ok := ts.blkCache.Contains(bid)
	if ok {
		return nil
	}

	sbyte, err := tb.Serialize()
	if err != nil {
		return err
	}

	txn, err := ts.ds.NewTxnStore(true)
	if err != nil {
		return err
	}
	defer txn.Discard()

	key := store.NewKey(store.MetaType_TX_BlockKey, bid.String())
	err = txn.Put(key, sbyte)
	if err != nil {
		return err
	}

	key = store.NewKey(store.MetaType_TX_HeightKey, tb.Height)
	err = txn.Put(key, bid.Bytes())
	if err != nil {
		return err
	}

	for i, rc := range tb.Receipts {
		ms := &MsgState{
			BlockID: bid,
			Height:  tb.Height,
			Status:  rc.Status,
		}

		msb, err := ms.Serialize()
		if err != nil {
			return err
		}
		key := store.NewKey(store.MetaType_TX_MessageStateKey, rc.MsgID.String())
		err = txn.Put(key, msb)
		if err != nil {
			return err
		}

		if i < len(tb.Msgs) {
			mbyte, err := tb.Msgs[i].Serialize()
			if err != nil {
				return err
			}
			key = store.NewKey(store.MetaType_TX_MessageKey, rc.MsgID.String())
			err = txn.Put(key, mbyte)
			if err != nil {
				return err
			}
		}
	}

	err = txn.Commit()
	if err != nil {
		return err
	}

	ts.blkCache.Add(bid, tb)
	ts.htCache.Add(tb.Height, bid)

	return nil
}

func (ts *TxStoreImpl) GetTxBlockByHeight(ht uint64) (types.MsgID, error) {
	bid := types.MsgID{}
	val, ok := ts.htCache.Get(ht)
	if ok {
		return val.(types.MsgID), nil
	}

	key := store.NewKey(store.MetaType_TX_HeightKey, ht)

	res, err := ts.get(key)
	if err != nil {
		return bid, err
	}

	bid, err = types.FromBytes(res)
	if err != nil {
		return bid, err
	}

	ts.htCache.Add(ht, bid)

	return bid, nil
}

func (ts *TxStoreImpl) GetTxMsgState(mid types.MsgID) (*MsgState, error) {
	key := store.NewKey(store.MetaType_TX_MessageStateKey, mid.String())
	val, err := ts.get(key)
	if err != nil {
		return nil, err
	}

	tms := new(MsgState)
	err = tms.Deserialize(val)
	return tms, err
}
