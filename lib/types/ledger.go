package types

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// SubStake is one independently locked slice of a staker's escrow.
// LastPeriod stays 0 while the sub-stake is open; an open sub-stake ends
// Periods after the staker's last committed period.
type SubStake struct {
	FirstPeriod uint64
	LastPeriod  uint64
	Periods     uint64
	Value       *big.Int
}

func (s *SubStake) Clone() *SubStake {
	return &SubStake{
		FirstPeriod: s.FirstPeriod,
		LastPeriod:  s.LastPeriod,
		Periods:     s.Periods,
		Value:       CopyToken(s.Value),
	}
}

func (s *SubStake) LastPeriodOf(lastCommitted uint64) uint64 {
	if s.LastPeriod != 0 {
		return s.LastPeriod
	}
	start := s.FirstPeriod - 1
	if lastCommitted > start {
		start = lastCommitted
	}
	return start + s.Periods
}

func (s *SubStake) ActiveAt(p, lastCommitted uint64) bool {
	if s.Value.Sign() == 0 {
		return false
	}
	return s.FirstPeriod <= p && p <= s.LastPeriodOf(lastCommitted)
}

// Downtime is an inclusive range of periods the staker did not commit to.
type Downtime struct {
	_ struct{} `cbor:",toarray"`

	Start uint64
	End   uint64
}

type Staker struct {
	Value     *big.Int // escrowed, locked and unlocked
	SubStakes []*SubStake

	LastCommittedPeriod uint64
	CommittedPeriods    []uint64 // committed, not yet minted; ascending
	Downtime            []Downtime

	WindDown       bool
	ReStake        bool
	Worker         common.Address
	PenaltyHistory uint64
}

func NewStaker() *Staker {
	return &Staker{
		Value:     new(big.Int),
		SubStakes: make([]*SubStake, 0, 1),
	}
}

func (s *Staker) Clone() *Staker {
	ns := &Staker{
		Value:               CopyToken(s.Value),
		SubStakes:           make([]*SubStake, len(s.SubStakes)),
		LastCommittedPeriod: s.LastCommittedPeriod,
		CommittedPeriods:    append([]uint64{}, s.CommittedPeriods...),
		Downtime:            append([]Downtime{}, s.Downtime...),
		WindDown:            s.WindDown,
		ReStake:             s.ReStake,
		Worker:              s.Worker,
		PenaltyHistory:      s.PenaltyHistory,
	}
	for i, sub := range s.SubStakes {
		ns.SubStakes[i] = sub.Clone()
	}
	return ns
}

func (s *Staker) LockedAt(p uint64) *big.Int {
	sum := new(big.Int)
	for _, sub := range s.SubStakes {
		if sub.ActiveAt(p, s.LastCommittedPeriod) {
			sum.Add(sum, sub.Value)
		}
	}
	return sum
}

// Unlocked is the escrow not bound to the current or the next period.
func (s *Staker) Unlocked(current uint64) *big.Int {
	locked := MaxToken(s.LockedAt(current), s.LockedAt(current+1))
	res := new(big.Int).Sub(s.Value, locked)
	if res.Sign() < 0 {
		return new(big.Int)
	}
	return res
}

func (s *Staker) IsCommitted(p uint64) bool {
	for _, cp := range s.CommittedPeriods {
		if cp == p {
			return true
		}
	}
	return false
}

func (s *Staker) AddCommitted(p uint64) {
	s.CommittedPeriods = append(s.CommittedPeriods, p)
	sort.Slice(s.CommittedPeriods, func(i, j int) bool { return s.CommittedPeriods[i] < s.CommittedPeriods[j] })
}

func (s *Staker) Serialize() ([]byte, error) {
	return Encode(s)
}

func (s *Staker) Deserialize(b []byte) error {
	return Decode(b, s)
}

type PolicyID [16]byte

func NewPolicyID() PolicyID {
	return PolicyID(uuid.New())
}

func ParsePolicyID(s string) (PolicyID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return PolicyID{}, err
	}
	return PolicyID(u), nil
}

func (id PolicyID) String() string {
	return uuid.UUID(id).String()
}

type Arrangement struct {
	Node               common.Address
	IndexOfDowntime    uint64
	LastRefundedPeriod uint64
	Active             bool
}

type Policy struct {
	ID          PolicyID
	Owner       common.Address
	Sponsor     common.Address
	FeeRate     *big.Int // per node per period
	FirstPeriod uint64
	LastPeriod  uint64
	Disabled    bool

	Arrangements []*Arrangement
}

func (p *Policy) Clone() *Policy {
	np := &Policy{
		ID:           p.ID,
		Owner:        p.Owner,
		Sponsor:      p.Sponsor,
		FeeRate:      CopyToken(p.FeeRate),
		FirstPeriod:  p.FirstPeriod,
		LastPeriod:   p.LastPeriod,
		Disabled:     p.Disabled,
		Arrangements: make([]*Arrangement, len(p.Arrangements)),
	}
	for i, a := range p.Arrangements {
		na := *a
		np.Arrangements[i] = &na
	}
	return np
}

func (p *Policy) Arrangement(node common.Address) *Arrangement {
	for _, a := range p.Arrangements {
		if a.Node == node {
			return a
		}
	}
	return nil
}

func (p *Policy) ActiveArrangements() int {
	n := 0
	for _, a := range p.Arrangements {
		if a.Active {
			n++
		}
	}
	return n
}

func (p *Policy) Serialize() ([]byte, error) {
	return Encode(p)
}

func (p *Policy) Deserialize(b []byte) error {
	return Decode(b, p)
}

// NodeFee accrues policy fees for one node. Deltas are sparse rate changes
// keyed by the period they take effect; LastFeePeriod is the last period
// fees were accrued for.
type NodeFee struct {
	Fee           *big.Int
	FeeRate       *big.Int
	LastFeePeriod uint64
	Deltas        map[uint64]*big.Int
}

func NewNodeFee(current uint64) *NodeFee {
	return &NodeFee{
		Fee:           new(big.Int),
		FeeRate:       new(big.Int),
		LastFeePeriod: current,
		Deltas:        make(map[uint64]*big.Int),
	}
}

func (n *NodeFee) Clone() *NodeFee {
	nn := &NodeFee{
		Fee:           CopyToken(n.Fee),
		FeeRate:       CopyToken(n.FeeRate),
		LastFeePeriod: n.LastFeePeriod,
		Deltas:        make(map[uint64]*big.Int, len(n.Deltas)),
	}
	for k, v := range n.Deltas {
		nn.Deltas[k] = CopyToken(v)
	}
	return nn
}

func (n *NodeFee) AddDelta(p uint64, v *big.Int) {
	d, ok := n.Deltas[p]
	if !ok {
		d = new(big.Int)
	}
	d = new(big.Int).Add(d, v)
	if d.Sign() == 0 {
		delete(n.Deltas, p)
		return
	}
	n.Deltas[p] = d
}

// DeltaPeriods returns the delta keys in ascending order.
func (n *NodeFee) DeltaPeriods() []uint64 {
	ps := make([]uint64, 0, len(n.Deltas))
	for p := range n.Deltas {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
	return ps
}

func (n *NodeFee) Serialize() ([]byte, error) {
	return Encode(n)
}

func (n *NodeFee) Deserialize(b []byte) error {
	if err := Decode(b, n); err != nil {
		return err
	}
	if n.Deltas == nil {
		n.Deltas = make(map[uint64]*big.Int)
	}
	return nil
}
