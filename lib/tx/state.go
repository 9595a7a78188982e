package tx

import (
	"github.com/memoio/go-mefs-pre/lib/types"
)

type ErrCode = uint16

const (
	Ok ErrCode = iota
	Failed
)

// Receipt is the outcome of one applied message.
type Receipt struct {
	MsgID  types.MsgID
	Height uint64
	Index  uint32
	Status ErrCode
	Err    string

	Events []types.EventRecord
}

func (r *Receipt) Serialize() ([]byte, error) {
	return types.Encode(r)
}

func (r *Receipt) Deserialize(b []byte) error {
	return types.Decode(b, r)
}

type MsgState struct {
	BlockID types.MsgID
	Height  uint64
	Status  ErrCode // return code
}

func (m *MsgState) Serialize() ([]byte, error) {
	return types.Encode(m)
}

func (m *MsgState) Deserialize(b []byte) error {
	return types.Decode(b, m)
}
