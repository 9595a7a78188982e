package types

import (
	"errors"
	"math/big"

	"golang.org/x/xerrors"
)

var (
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// MaxTokenValue bounds every token amount to uint256.
	MaxTokenValue = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func NewToken(v int64) *big.Int {
	return big.NewInt(v)
}

func checkBounds(op string, a, b, res *big.Int) (*big.Int, error) {
	if res.Sign() < 0 || res.Cmp(MaxTokenValue) > 0 {
		return nil, xerrors.Errorf("%s %s %s: %w", a, op, b, ErrArithmeticOverflow)
	}
	return res, nil
}

func SafeAdd(a, b *big.Int) (*big.Int, error) {
	return checkBounds("+", a, b, new(big.Int).Add(a, b))
}

func SafeSub(a, b *big.Int) (*big.Int, error) {
	return checkBounds("-", a, b, new(big.Int).Sub(a, b))
}

func SafeMul(a, b *big.Int) (*big.Int, error) {
	return checkBounds("*", a, b, new(big.Int).Mul(a, b))
}

func SafeDiv(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, xerrors.Errorf("%s / 0: %w", a, ErrArithmeticOverflow)
	}
	return checkBounds("/", a, b, new(big.Int).Quo(a, b))
}

// SafeMulDiv computes a*b/c; only the result is bounded.
func SafeMulDiv(a, b, c *big.Int) (*big.Int, error) {
	if c.Sign() == 0 {
		return nil, xerrors.Errorf("%s * %s / 0: %w", a, b, ErrArithmeticOverflow)
	}
	res := new(big.Int).Mul(a, b)
	res.Quo(res, c)
	return checkBounds("*/", a, b, res)
}

func MinToken(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func MaxToken(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func CopyToken(a *big.Int) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a)
}
