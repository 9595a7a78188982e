package types

import (
	"encoding/hex"
	"errors"

	"github.com/mr-tron/base58/base58"
	"github.com/zeebo/blake3"
)

const MsgIDLen = 32

var ErrMsgIDLen = errors.New("illegal msg id length")

// MsgID is the blake3 digest identifying messages, blocks, state roots and
// slashing evidence.
type MsgID struct{ str string }

var Undef = MsgID{}

func NewMsgID(data []byte) MsgID {
	res := blake3.Sum256(data)
	return MsgID{string(res[:])}
}

func (m MsgID) Bytes() []byte {
	return []byte(m.str)
}

func (m MsgID) String() string {
	return base58.Encode(m.Bytes())
}

func (m MsgID) Hex() string {
	return hex.EncodeToString(m.Bytes())
}

func (m MsgID) Equal(o MsgID) bool {
	return m.str == o.str
}

func (m MsgID) MarshalBinary() ([]byte, error) {
	return m.Bytes(), nil
}

func (m *MsgID) UnmarshalBinary(b []byte) error {
	if len(b) == 0 {
		*m = Undef
		return nil
	}
	id, err := FromBytes(b)
	if err != nil {
		return err
	}
	*m = id
	return nil
}

func FromString(s string) (MsgID, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Undef, err
	}

	return FromBytes(b)
}

func FromHexString(s string) (MsgID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Undef, err
	}

	return FromBytes(b)
}

func FromBytes(b []byte) (MsgID, error) {
	if len(b) != MsgIDLen {
		return Undef, ErrMsgIDLen
	}

	return MsgID{string(b)}, nil
}
