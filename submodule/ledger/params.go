package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/memoio/go-mefs-pre/build"
)

type Allocation struct {
	Address common.Address
	Value   *big.Int
}

// Params are the economic constants of the state machine; every node of a
// network must run with the same values.
type Params struct {
	PeriodDuration uint64 // seconds

	MinLockedPeriods   uint64
	MaxRewardedPeriods uint64
	MaxSubStakes       int
	MiningCoefficient  *big.Int

	MinAllowableLockedTokens *big.Int
	MaxAllowableLockedTokens *big.Int
	MaxSupply                *big.Int

	BasePenalty                  *big.Int
	PenaltyHistoryCoefficient    *big.Int
	PercentagePenaltyCoefficient *big.Int
	RewardCoefficient            *big.Int

	// genesis balances; the initial supply is their sum
	Allocations []Allocation
}

func DefaultParams() *Params {
	return &Params{
		PeriodDuration:     build.DefaultPeriodDuration,
		MinLockedPeriods:   build.MinLockedPeriods,
		MaxRewardedPeriods: build.MaxRewardedPeriods,
		MaxSubStakes:       build.MaxSubStakes,
		MiningCoefficient:  big.NewInt(build.MiningCoefficient),

		MinAllowableLockedTokens: new(big.Int).Set(build.MinAllowableLockedTokens),
		MaxAllowableLockedTokens: new(big.Int).Set(build.MaxAllowableLockedTokens),
		MaxSupply:                new(big.Int).Set(build.MaxSupply),

		BasePenalty:                  new(big.Int).Mul(big.NewInt(build.BasePenalty), build.Decimals),
		PenaltyHistoryCoefficient:    new(big.Int).Mul(big.NewInt(build.PenaltyHistoryCoefficient), build.Decimals),
		PercentagePenaltyCoefficient: big.NewInt(build.PercentagePenaltyCoefficient),
		RewardCoefficient:            big.NewInt(build.RewardCoefficient),
	}
}

func (p *Params) Validate() error {
	if p.PeriodDuration == 0 {
		return errors.New("period duration must be positive")
	}
	if p.MinLockedPeriods == 0 || p.MaxRewardedPeriods == 0 {
		return errors.New("locked and rewarded periods must be positive")
	}
	if p.MaxSubStakes <= 0 {
		return errors.New("max sub-stakes must be positive")
	}
	if p.MiningCoefficient == nil || p.MiningCoefficient.Sign() <= 0 {
		return errors.New("mining coefficient must be positive")
	}
	if p.MinAllowableLockedTokens == nil || p.MaxAllowableLockedTokens == nil ||
		p.MinAllowableLockedTokens.Cmp(p.MaxAllowableLockedTokens) > 0 {
		return errors.New("min allowable locked tokens exceed the max")
	}
	if p.PercentagePenaltyCoefficient == nil || p.PercentagePenaltyCoefficient.Sign() <= 0 ||
		p.RewardCoefficient == nil || p.RewardCoefficient.Sign() <= 0 {
		return errors.New("penalty coefficients must be positive")
	}
	if p.BasePenalty == nil || p.PenaltyHistoryCoefficient == nil {
		return errors.New("penalty is not set")
	}

	total := new(big.Int)
	for _, a := range p.Allocations {
		if a.Value == nil || a.Value.Sign() < 0 {
			return errors.Errorf("negative allocation for %s", a.Address)
		}
		total.Add(total, a.Value)
	}
	if p.MaxSupply == nil || total.Cmp(p.MaxSupply) > 0 {
		return errors.Errorf("allocations %s exceed max supply", total)
	}
	return nil
}

func (p *Params) Period(ts int64) uint64 {
	return build.Period(ts, p.PeriodDuration)
}
