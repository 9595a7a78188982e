package curve

import (
	"encoding/binary"
	"encoding/hex"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/zeebo/blake3"
	"golang.org/x/xerrors"
)

// Point is an affine secp256k1 point. The zero value is the identity.
type Point struct {
	p secp256k1.JacobianPoint
}

var (
	generator Point
	genOnce   sync.Once

	second   Point
	uOnce    sync.Once
	uTag     = []byte("go-mefs-pre/U")
	identity Point
)

// Generator returns G.
func Generator() Point {
	genOnce.Do(func() {
		one := NewScalar(1)
		secp256k1.ScalarBaseMultNonConst(&one.s, &generator.p)
		generator.p.ToAffine()
	})
	return generator
}

// U returns the second generator used for kfrag commitments. It is found by
// hashing a fixed tag onto the curve, so no one knows log_G(U).
func U() Point {
	uOnce.Do(func() {
		var ctr [4]byte
		for i := uint32(0); ; i++ {
			binary.BigEndian.PutUint32(ctr[:], i)
			h := blake3.New()
			h.Write(uTag)
			h.Write(ctr[:])
			x := h.Sum(nil)

			buf := make([]byte, PointSize)
			buf[0] = secp256k1.PubKeyFormatCompressedEven
			copy(buf[1:], x)
			p, err := PointFromBytes(buf)
			if err == nil {
				second = p
				return
			}
		}
	})
	return second
}

// Identity returns the point at infinity.
func Identity() Point {
	return identity
}

// PointFromBytes parses a 33-byte compressed point.
func PointFromBytes(b []byte) (Point, error) {
	var pt Point
	if len(b) != PointSize {
		return pt, xerrors.Errorf("point length %d: %w", len(b), ErrInvalidPoint)
	}
	if b[0] != secp256k1.PubKeyFormatCompressedEven && b[0] != secp256k1.PubKeyFormatCompressedOdd {
		return pt, xerrors.Errorf("point sign byte %#x: %w", b[0], ErrInvalidPoint)
	}

	pk, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return pt, xerrors.Errorf("%s: %w", err, ErrInvalidPoint)
	}
	pk.AsJacobian(&pt.p)
	return pt, nil
}

// Bytes returns the compressed encoding. The identity encodes as zeros, which
// PointFromBytes rejects.
func (a Point) Bytes() []byte {
	if a.IsIdentity() {
		return make([]byte, PointSize)
	}
	pk := secp256k1.NewPublicKey(&a.p.X, &a.p.Y)
	return pk.SerializeCompressed()
}

func (a Point) String() string {
	return hex.EncodeToString(a.Bytes())
}

func (a Point) IsIdentity() bool {
	return (a.p.X.IsZero() && a.p.Y.IsZero()) || a.p.Z.IsZero()
}

func (a Point) Equals(b Point) bool {
	ai, bi := a.IsIdentity(), b.IsIdentity()
	if ai || bi {
		return ai == bi
	}
	return a.p.X.Equals(&b.p.X) && a.p.Y.Equals(&b.p.Y)
}

func (a Point) Add(b Point) Point {
	var r Point
	secp256k1.AddNonConst(&a.p, &b.p, &r.p)
	r.p.ToAffine()
	return r
}

func (a Point) Neg() Point {
	if a.IsIdentity() {
		return a
	}
	r := a
	r.p.Y.Negate(1).Normalize()
	return r
}

func (a Point) Sub(b Point) Point {
	return a.Add(b.Neg())
}

// Mul returns k·a. k is split into two random additive shares so that the
// library's variable-time ladder never runs on k itself.
func (a Point) Mul(k Scalar) Point {
	k1 := RandomScalar()
	k2 := k.Sub(k1)
	return a.MulPublic(k1).Add(a.MulPublic(k2))
}

// MulPublic returns k·a without blinding; for public scalars only.
func (a Point) MulPublic(k Scalar) Point {
	var r Point
	if a.IsIdentity() {
		return r
	}
	secp256k1.ScalarMultNonConst(&k.s, &a.p, &r.p)
	r.p.ToAffine()
	return r
}

// BaseMul returns k·G, blinded like Mul.
func BaseMul(k Scalar) Point {
	k1 := RandomScalar()
	k2 := k.Sub(k1)
	return BaseMulPublic(k1).Add(BaseMulPublic(k2))
}

func BaseMulPublic(k Scalar) Point {
	var r Point
	secp256k1.ScalarBaseMultNonConst(&k.s, &r.p)
	r.p.ToAffine()
	return r
}

func (a Point) MarshalBinary() ([]byte, error) {
	return a.Bytes(), nil
}

func (a *Point) UnmarshalBinary(b []byte) error {
	pt, err := PointFromBytes(b)
	if err != nil {
		return err
	}
	*a = pt
	return nil
}
