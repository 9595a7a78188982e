package tx

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/memoio/go-mefs-pre/lib/types"
)

type TransferParams struct {
	To    common.Address
	Value *big.Int
}

// DepositParams serves Deposit (from balance) and Lock (from unlocked escrow).
type DepositParams struct {
	Value   *big.Int
	Periods uint64
}

type DivideParams struct {
	Index        uint32
	NewValue     *big.Int
	ExtraPeriods uint64
}

type ProlongParams struct {
	Index   uint32
	Periods uint64
}

type WithdrawParams struct {
	Value *big.Int
}

type WorkerParams struct {
	Worker common.Address
}

type FlagParams struct {
	Value bool
}

type PolicyParams struct {
	ID      types.PolicyID
	Owner   common.Address // zero means From
	Periods uint64
	Nodes   []common.Address
	Value   *big.Int
}

type PolicyRefParams struct {
	ID   types.PolicyID
	Node common.Address // only for the arrangement-level methods
}

// Evidence is a re-encryption response a client believes to be incorrect,
// together with the proxy's signature over it.
type Evidence struct {
	Capsule    []byte
	CFrag      []byte
	Delegating []byte
	Receiving  []byte
	Verifying  []byte
	Metadata   []byte

	UrsulaStamp     []byte // proxy's stamp public key
	UrsulaSignature []byte // over EvidenceMessage
}

var evidenceTag = []byte("PRE_CFRAG_RESPONSE")

// EvidenceMessage is what a proxy signs when it answers a re-encryption
// request. Metadata is bound too, it takes part in the correctness proof.
// Every field is length prefixed so no boundary can move under the signature.
func EvidenceMessage(capsule, cfrag, metadata []byte) []byte {
	res := make([]byte, 0, len(evidenceTag)+len(capsule)+len(cfrag)+len(metadata)+12)
	res = append(res, evidenceTag...)
	for _, f := range [][]byte{capsule, cfrag, metadata} {
		res = binary.BigEndian.AppendUint32(res, uint32(len(f)))
		res = append(res, f...)
	}
	return res
}

// ID keys evidence so it is evaluated at most once.
func (e *Evidence) ID() types.MsgID {
	return types.NewMsgID(EvidenceMessage(e.Capsule, e.CFrag, e.Metadata))
}

func EncodeParams(v interface{}) ([]byte, error) {
	return types.Encode(v)
}

func DecodeParams(b []byte, v interface{}) error {
	return types.Decode(b, v)
}
