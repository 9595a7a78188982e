// Package curve implements the secp256k1 scalar and point arithmetic the
// re-encryption scheme is built on.
package curve

import (
	"errors"
)

const (
	ScalarSize = 32
	PointSize  = 33 // sign byte + x coordinate
)

var (
	ErrInvalidPoint  = errors.New("invalid curve point")
	ErrInvalidScalar = errors.New("invalid scalar")
)
