package tx

import (
	"time"

	"github.com/memoio/go-mefs-pre/lib/types"
)

type BlockHeader struct {
	Version uint32
	Height  uint64
	PrevID  types.MsgID // previous block id
	Time    int64       // unix seconds; drives the period clock
}

func (bh *BlockHeader) Hash() (types.MsgID, error) {
	res, err := bh.Serialize()
	if err != nil {
		return types.Undef, err
	}

	return types.NewMsgID(res), nil
}

func (bh *BlockHeader) Serialize() ([]byte, error) {
	return types.Encode(bh)
}

func (bh *BlockHeader) Deserialize(b []byte) (types.MsgID, error) {
	err := types.Decode(b, bh)
	if err != nil {
		return types.Undef, err
	}

	return types.NewMsgID(b), nil
}

type Block struct {
	BlockHeader
	Msgs []SignedMessage

	Receipts []Receipt // filled when applied
}

func NewBlock(height uint64, prev types.MsgID, t time.Time, msgs []SignedMessage) *Block {
	return &Block{
		BlockHeader: BlockHeader{
			Version: 1,
			Height:  height,
			PrevID:  prev,
			Time:    t.Unix(),
		},
		Msgs: msgs,
	}
}

// Hash commits to the header and the message ids, not the receipts.
func (b *Block) Hash() (types.MsgID, error) {
	hb, err := b.BlockHeader.Serialize()
	if err != nil {
		return types.Undef, err
	}
	for i := range b.Msgs {
		id, err := b.Msgs[i].Hash()
		if err != nil {
			return types.Undef, err
		}
		hb = append(hb, id.Bytes()...)
	}
	return types.NewMsgID(hb), nil
}

func (b *Block) Serialize() ([]byte, error) {
	return types.Encode(b)
}

func (b *Block) Deserialize(d []byte) error {
	err := types.Decode(d, b)
	if err != nil {
		return err
	}
	for i := range b.Msgs {
		id, err := b.Msgs[i].Hash()
		if err != nil {
			return err
		}
		b.Msgs[i].ID = id
	}
	return nil
}
