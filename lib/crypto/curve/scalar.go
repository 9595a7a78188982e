package curve

import (
	"crypto/subtle"
	"encoding/hex"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/xerrors"
	"lukechampine.com/frand"
)

// Scalar is an element of Z_n, n the order of secp256k1. The zero value is 0.
type Scalar struct {
	s secp256k1.ModNScalar
}

// 2^256 mod n, used for wide reductions.
var wideReduce = func() Scalar {
	var c Scalar
	b := [32]byte{
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01,
		0x45, 0x51, 0x23, 0x19, 0x50, 0xb7, 0x5f, 0xc4,
		0x40, 0x2d, 0xa1, 0x73, 0x2f, 0xc9, 0xbe, 0xbf,
	}
	c.s.SetBytes(&b)
	return c
}()

func NewScalar(v uint32) Scalar {
	var sc Scalar
	sc.s.SetInt(v)
	return sc
}

// RandomScalar returns a uniformly random non-zero scalar.
func RandomScalar() Scalar {
	return RandomScalarFrom(frand.Reader)
}

func RandomScalarFrom(r io.Reader) Scalar {
	var buf [64]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			panic(err)
		}
		sc := fromWide(&buf)
		if !sc.IsZero() {
			return sc
		}
	}
}

// fromWide reduces a 512-bit big-endian integer modulo n.
func fromWide(b *[64]byte) Scalar {
	var hi, lo [32]byte
	copy(hi[:], b[:32])
	copy(lo[:], b[32:])

	var h, l Scalar
	h.s.SetBytes(&hi)
	l.s.SetBytes(&lo)
	h.s.Mul(&wideReduce.s)
	h.s.Add(&l.s)
	return h
}

// ScalarFromBytes parses a 32-byte big-endian scalar, rejecting values >= n.
func ScalarFromBytes(b []byte) (Scalar, error) {
	var sc Scalar
	if len(b) != ScalarSize {
		return sc, xerrors.Errorf("scalar length %d: %w", len(b), ErrInvalidScalar)
	}
	var buf [32]byte
	copy(buf[:], b)
	if sc.s.SetBytes(&buf) != 0 {
		return Scalar{}, xerrors.Errorf("scalar overflows group order: %w", ErrInvalidScalar)
	}
	return sc, nil
}

// NonZeroScalarFromBytes is ScalarFromBytes that also rejects zero.
func NonZeroScalarFromBytes(b []byte) (Scalar, error) {
	sc, err := ScalarFromBytes(b)
	if err != nil {
		return sc, err
	}
	if sc.IsZero() {
		return sc, xerrors.Errorf("zero scalar: %w", ErrInvalidScalar)
	}
	return sc, nil
}

func (a Scalar) Bytes() []byte {
	b := a.s.Bytes()
	return b[:]
}

func (a Scalar) String() string {
	return hex.EncodeToString(a.Bytes())
}

func (a Scalar) IsZero() bool {
	return a.s.IsZero()
}

// Equals compares in constant time.
func (a Scalar) Equals(b Scalar) bool {
	ab := a.s.Bytes()
	bb := b.s.Bytes()
	return subtle.ConstantTimeCompare(ab[:], bb[:]) == 1
}

func (a Scalar) Add(b Scalar) Scalar {
	var r Scalar
	r.s.Add2(&a.s, &b.s)
	return r
}

func (a Scalar) Sub(b Scalar) Scalar {
	var nb, r Scalar
	nb.s.NegateVal(&b.s)
	r.s.Add2(&a.s, &nb.s)
	return r
}

func (a Scalar) Mul(b Scalar) Scalar {
	var r Scalar
	r.s.Mul2(&a.s, &b.s)
	return r
}

func (a Scalar) Neg() Scalar {
	var r Scalar
	r.s.NegateVal(&a.s)
	return r
}

// n - 2, the Fermat inversion exponent.
var orderMinusTwo = [32]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe,
	0xba, 0xae, 0xdc, 0xe6, 0xaf, 0x48, 0xa0, 0x3b,
	0xbf, 0xd2, 0x5e, 0x8c, 0xd0, 0x36, 0x41, 0x3f,
}

// Invert returns a^-1 as a^(n-2). The exponent is public so the sequence of
// operations does not depend on a. The inverse of zero is zero.
func (a Scalar) Invert() Scalar {
	var r Scalar
	r.s.SetInt(1)
	for _, b := range orderMinusTwo {
		for i := 7; i >= 0; i-- {
			r.s.Mul2(&r.s, &r.s)
			if (b>>uint(i))&1 == 1 {
				r.s.Mul(&a.s)
			}
		}
	}
	return r
}

// MarshalBinary and UnmarshalBinary let cbor encode scalars as byte strings.
func (a Scalar) MarshalBinary() ([]byte, error) {
	return a.Bytes(), nil
}

func (a *Scalar) UnmarshalBinary(b []byte) error {
	sc, err := ScalarFromBytes(b)
	if err != nil {
		return err
	}
	*a = sc
	return nil
}
