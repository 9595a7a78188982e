package tx

import (
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/build"
	"github.com/memoio/go-mefs-pre/lib/crypto/signature"
	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
	"github.com/memoio/go-mefs-pre/lib/types"
)

type MsgType = uint32

const MsgMaxLen = 1<<16 - 1

var (
	ErrMsgLen      = errors.New("message length too long")
	ErrMsgLenShort = errors.New("message length too short")
	ErrBadSign     = errors.New("message signature is wrong")
)

const (
	Unknown MsgType = iota

	// tokens
	Transfer

	// staking escrow; by staker
	Deposit
	Lock
	DivideStake
	ProlongStake
	Withdraw
	SetWorker
	SetWindDown
	SetReStake
	CommitToNextPeriod // by staker or its worker
	Mint

	// policy manager; by policy owner
	CreatePolicy
	RevokePolicy
	RevokeArrangement
	Refund
	RefundArrangement
	WithdrawFee // by node

	// adjudicator; by anyone holding evidence
	Evaluate
)

var methodNames = map[MsgType]string{
	Transfer:           "transfer",
	Deposit:            "deposit",
	Lock:               "lock",
	DivideStake:        "divideStake",
	ProlongStake:       "prolongStake",
	Withdraw:           "withdraw",
	SetWorker:          "setWorker",
	SetWindDown:        "setWindDown",
	SetReStake:         "setReStake",
	CommitToNextPeriod: "commitToNextPeriod",
	Mint:               "mint",
	CreatePolicy:       "createPolicy",
	RevokePolicy:       "revokePolicy",
	RevokeArrangement:  "revokeArrangement",
	Refund:             "refund",
	RefundArrangement:  "refundArrangement",
	WithdrawFee:        "withdrawFee",
	Evaluate:           "evaluate",
}

func MethodName(m MsgType) string {
	n, ok := methodNames[m]
	if !ok {
		return "unknown"
	}
	return n
}

// MsgID(message) as key
type Message struct {
	Version uint32

	From  common.Address
	Nonce uint64

	Method uint32
	Params []byte // decode according to method
}

func NewMessage(from common.Address, nonce uint64, method MsgType, params []byte) Message {
	return Message{
		Version: build.Version,
		From:    from,
		Nonce:   nonce,
		Method:  method,
		Params:  params,
	}
}

func (m *Message) Serialize() ([]byte, error) {
	res, err := types.Encode(m)
	if err != nil {
		return nil, err
	}

	if len(res) > int(MsgMaxLen) {
		return nil, ErrMsgLen
	}
	return res, nil
}

// get message hash for sign
func (m *Message) Hash() (types.MsgID, error) {
	res, err := m.Serialize()
	if err != nil {
		return types.Undef, err
	}

	return types.NewMsgID(res), nil
}

func (m *Message) Deserialize(b []byte) (types.MsgID, error) {
	err := types.Decode(b, m)
	if err != nil {
		return types.Undef, err
	}

	return types.NewMsgID(b), nil
}

// verify:
// 1. signature is right according to from
// 2. nonce is right
type SignedMessage struct {
	Message
	Signature []byte // signed by Tx.From

	ID types.MsgID `cbor:"-"`
}

// Sign fills Signature and ID; the signer must own From.
func Sign(m Message, signer sig_common.Signer) (*SignedMessage, error) {
	id, err := m.Hash()
	if err != nil {
		return nil, err
	}

	sig, err := signer.Sign(id.Bytes())
	if err != nil {
		return nil, err
	}

	return &SignedMessage{Message: m, Signature: sig, ID: id}, nil
}

// Verify checks the signature recovers to From.
func (sm *SignedMessage) Verify() error {
	id, err := sm.Hash()
	if err != nil {
		return err
	}
	sm.ID = id

	ok, err := signature.Verify(sm.From.Bytes(), id.Bytes(), sm.Signature)
	if err != nil {
		return xerrors.Errorf("verify message %s: %w", id, err)
	}
	if !ok {
		return xerrors.Errorf("message %s from %s: %w", id, sm.From, ErrBadSign)
	}
	return nil
}

func (sm *SignedMessage) Serialize() ([]byte, error) {
	res, err := sm.Message.Serialize()
	if err != nil {
		return nil, err
	}

	rLen := len(res)

	buf := make([]byte, 2+rLen+len(sm.Signature))
	binary.BigEndian.PutUint16(buf[:2], uint16(rLen))

	copy(buf[2:2+rLen], res)
	copy(buf[2+rLen:], sm.Signature)

	return buf, nil
}

func (sm *SignedMessage) Deserialize(b []byte) error {
	if len(b) < 2 {
		return ErrMsgLenShort
	}

	rLen := binary.BigEndian.Uint16(b[:2])
	if len(b) < 2+int(rLen) {
		return ErrMsgLenShort
	}

	m := new(Message)
	mid, err := m.Deserialize(b[2 : 2+rLen])
	if err != nil {
		return err
	}

	sm.Message = *m
	sm.ID = mid
	sm.Signature = append([]byte{}, b[2+rLen:]...)

	return nil
}
