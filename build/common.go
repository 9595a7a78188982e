package build

import (
	"math/big"
)

const (
	Version = 1

	// ledger periods
	DefaultPeriodDuration = 24 * 60 * 60 // seconds

	// staking escrow
	MinLockedPeriods   = 30  // periods
	MaxRewardedPeriods = 365 // duration bonus saturates here
	MaxSubStakes       = 30
	MiningCoefficient  = 1000000 // issuance(p) = (MaxSupply - supply) / MiningCoefficient

	// adjudicator
	BasePenalty                  = 100
	PenaltyHistoryCoefficient    = 10
	PercentagePenaltyCoefficient = 8 // penalty never exceeds value / 8
	RewardCoefficient            = 2 // reporter gets penalty / 2
)

var (
	Decimals = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	MinAllowableLockedTokens = new(big.Int).Mul(big.NewInt(15000), Decimals)
	MaxAllowableLockedTokens = new(big.Int).Mul(big.NewInt(4000000), Decimals)

	MaxSupply = new(big.Int).Mul(big.NewInt(3885390081), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
)

// Period returns the period index of ts (unix seconds) for the given duration.
func Period(ts int64, duration uint64) uint64 {
	if ts < 0 || duration == 0 {
		return 0
	}
	return uint64(ts) / duration
}

// PeriodStart is the first unix second of period p.
func PeriodStart(p uint64, duration uint64) int64 {
	return int64(p * duration)
}
