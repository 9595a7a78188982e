package types

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/xerrors"
)

type EventKind uint16

const (
	EvUnknown EventKind = iota
	EvTransferred
	EvDeposited
	EvLocked
	EvDivided
	EvProlonged
	EvWithdrawn
	EvWorkerBonded
	EvWindDownSet
	EvReStakeSet
	EvCommitmentMade
	EvMinted
	EvPolicyCreated
	EvPolicyRevoked
	EvArrangementRevoked
	EvRefunded
	EvFeeWithdrawn
	EvCFragEvaluated
	EvSlashed
)

var ErrUnknownEvent = errors.New("unknown event kind")

// Event payloads are cbor arrays; field order is part of the persisted layout.
type Event interface {
	Kind() EventKind
}

type Transferred struct {
	_     struct{} `cbor:",toarray"`
	From  common.Address
	To    common.Address
	Value *big.Int
}

type Deposited struct {
	_       struct{} `cbor:",toarray"`
	Staker  common.Address
	Value   *big.Int
	Periods uint64
}

type Locked struct {
	_           struct{} `cbor:",toarray"`
	Staker      common.Address
	Value       *big.Int
	FirstPeriod uint64
	Periods     uint64
}

type Divided struct {
	_          struct{} `cbor:",toarray"`
	Staker     common.Address
	OldValue   *big.Int
	LastPeriod uint64
	NewValue   *big.Int
	Periods    uint64
}

type Prolonged struct {
	_          struct{} `cbor:",toarray"`
	Staker     common.Address
	Value      *big.Int
	LastPeriod uint64
	Periods    uint64
}

type Withdrawn struct {
	_      struct{} `cbor:",toarray"`
	Staker common.Address
	Value  *big.Int
}

type WorkerBonded struct {
	_      struct{} `cbor:",toarray"`
	Staker common.Address
	Worker common.Address
	Period uint64
}

type WindDownSet struct {
	_        struct{} `cbor:",toarray"`
	Staker   common.Address
	WindDown bool
}

type ReStakeSet struct {
	_       struct{} `cbor:",toarray"`
	Staker  common.Address
	ReStake bool
}

type CommitmentMade struct {
	_      struct{} `cbor:",toarray"`
	Staker common.Address
	Period uint64
	Value  *big.Int
}

type Minted struct {
	_      struct{} `cbor:",toarray"`
	Staker common.Address
	Period uint64
	Value  *big.Int
}

type PolicyCreated struct {
	_           struct{} `cbor:",toarray"`
	PolicyID    PolicyID
	Sponsor     common.Address
	Owner       common.Address
	FeeRate     *big.Int
	FirstPeriod uint64
	LastPeriod  uint64
	Nodes       []common.Address
}

type PolicyRevoked struct {
	_        struct{} `cbor:",toarray"`
	PolicyID PolicyID
	Sender   common.Address
	Value    *big.Int
}

type ArrangementRevoked struct {
	_        struct{} `cbor:",toarray"`
	PolicyID PolicyID
	Sender   common.Address
	Node     common.Address
	Value    *big.Int
}

type Refunded struct {
	_        struct{} `cbor:",toarray"`
	PolicyID PolicyID
	Sender   common.Address
	Node     common.Address
	Value    *big.Int
}

type FeeWithdrawn struct {
	_     struct{} `cbor:",toarray"`
	Node  common.Address
	Value *big.Int
}

type CFragEvaluated struct {
	_            struct{} `cbor:",toarray"`
	EvaluationID MsgID
	Investigator common.Address
	Correct      bool
}

type Slashed struct {
	_        struct{} `cbor:",toarray"`
	Staker   common.Address
	Penalty  *big.Int
	Reporter common.Address
	Reward   *big.Int
}

func (Transferred) Kind() EventKind        { return EvTransferred }
func (Deposited) Kind() EventKind          { return EvDeposited }
func (Locked) Kind() EventKind             { return EvLocked }
func (Divided) Kind() EventKind            { return EvDivided }
func (Prolonged) Kind() EventKind          { return EvProlonged }
func (Withdrawn) Kind() EventKind          { return EvWithdrawn }
func (WorkerBonded) Kind() EventKind       { return EvWorkerBonded }
func (WindDownSet) Kind() EventKind        { return EvWindDownSet }
func (ReStakeSet) Kind() EventKind         { return EvReStakeSet }
func (CommitmentMade) Kind() EventKind     { return EvCommitmentMade }
func (Minted) Kind() EventKind             { return EvMinted }
func (PolicyCreated) Kind() EventKind      { return EvPolicyCreated }
func (PolicyRevoked) Kind() EventKind      { return EvPolicyRevoked }
func (ArrangementRevoked) Kind() EventKind { return EvArrangementRevoked }
func (Refunded) Kind() EventKind           { return EvRefunded }
func (FeeWithdrawn) Kind() EventKind       { return EvFeeWithdrawn }
func (CFragEvaluated) Kind() EventKind     { return EvCFragEvaluated }
func (Slashed) Kind() EventKind            { return EvSlashed }

func newEvent(k EventKind) (Event, error) {
	switch k {
	case EvTransferred:
		return new(Transferred), nil
	case EvDeposited:
		return new(Deposited), nil
	case EvLocked:
		return new(Locked), nil
	case EvDivided:
		return new(Divided), nil
	case EvProlonged:
		return new(Prolonged), nil
	case EvWithdrawn:
		return new(Withdrawn), nil
	case EvWorkerBonded:
		return new(WorkerBonded), nil
	case EvWindDownSet:
		return new(WindDownSet), nil
	case EvReStakeSet:
		return new(ReStakeSet), nil
	case EvCommitmentMade:
		return new(CommitmentMade), nil
	case EvMinted:
		return new(Minted), nil
	case EvPolicyCreated:
		return new(PolicyCreated), nil
	case EvPolicyRevoked:
		return new(PolicyRevoked), nil
	case EvArrangementRevoked:
		return new(ArrangementRevoked), nil
	case EvRefunded:
		return new(Refunded), nil
	case EvFeeWithdrawn:
		return new(FeeWithdrawn), nil
	case EvCFragEvaluated:
		return new(CFragEvaluated), nil
	case EvSlashed:
		return new(Slashed), nil
	default:
		return nil, xerrors.Errorf("kind %d: %w", k, ErrUnknownEvent)
	}
}

// EventRecord is the persisted form of an event, stored under
// (height, index).
type EventRecord struct {
	_ struct{} `cbor:",toarray"`

	Kind EventKind
	Data []byte
}

func NewEventRecord(e Event) (EventRecord, error) {
	data, err := Encode(e)
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{Kind: e.Kind(), Data: data}, nil
}

// Event decodes the payload into a pointer to its concrete type.
func (r EventRecord) Event() (Event, error) {
	ev, err := newEvent(r.Kind)
	if err != nil {
		return nil, err
	}
	if err := Decode(r.Data, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *EventRecord) Serialize() ([]byte, error) {
	return Encode(r)
}

func (r *EventRecord) Deserialize(b []byte) error {
	return Decode(b, r)
}
