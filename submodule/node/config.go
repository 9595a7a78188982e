package node

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/memoio/go-mefs-pre/config"
	"github.com/memoio/go-mefs-pre/lib/address"
	"github.com/memoio/go-mefs-pre/submodule/ledger"
)

// LedgerParams applies the config overrides to the default network
// constants. Allocation addresses are hex accounts or printable stamp keys.
func LedgerParams(cfg *config.Config) (*ledger.Params, error) {
	p := ledger.DefaultParams()
	lc := cfg.Ledger

	if lc.PeriodDuration > 0 {
		p.PeriodDuration = lc.PeriodDuration
	}
	if lc.MinLockedPeriods > 0 {
		p.MinLockedPeriods = lc.MinLockedPeriods
	}
	if lc.MaxRewardedPeriods > 0 {
		p.MaxRewardedPeriods = lc.MaxRewardedPeriods
	}
	if lc.MaxSubStakes > 0 {
		p.MaxSubStakes = lc.MaxSubStakes
	}

	for _, a := range lc.Allocations {
		acc, err := ParseAccount(a.Address)
		if err != nil {
			return nil, errors.Wrapf(err, "allocation %s", a.Address)
		}
		v, ok := new(big.Int).SetString(a.Value, 10)
		if !ok {
			return nil, errors.Errorf("allocation %s: bad value %q", a.Address, a.Value)
		}
		p.Allocations = append(p.Allocations, ledger.Allocation{Address: acc, Value: v})
	}

	return p, p.Validate()
}

// ParseAccount accepts a 0x hex account or a printable stamp key.
func ParseAccount(s string) (common.Address, error) {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	addr, err := address.NewFromString(s)
	if err != nil {
		return common.Address{}, err
	}
	return addr.Account()
}
