package pre

import (
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/crypto/curve"
)

const (
	// SecretSize is the length of the key a capsule encapsulates.
	SecretSize = 32
	// CapsuleSize is E || V || S.
	CapsuleSize = 2*curve.PointSize + curve.ScalarSize
)

const (
	dstCapsule        = "go-mefs-pre capsule"
	dstNonInteractive = "go-mefs-pre non-interactive"
	dstXCoordinate    = "go-mefs-pre x-coordinate"
	dstVerification   = "go-mefs-pre cfrag verification"
	dstProofNonce     = "go-mefs-pre cfrag nonce"
)

// Capsule carries the ephemeral KEM material of one ciphertext. It is
// immutable once created.
type Capsule struct {
	E curve.Point
	V curve.Point
	S curve.Scalar
}

func capsuleChallenge(e, v curve.Point) curve.Scalar {
	return curve.HashToScalar(dstCapsule, e.Bytes(), v.Bytes())
}

// Encapsulate creates a capsule for pk and returns the secret it hides.
func Encapsulate(pk *PublicKey) (*Capsule, []byte) {
	r := curve.RandomScalar()
	u := curve.RandomScalar()

	e := curve.BaseMul(r)
	v := curve.BaseMul(u)
	h := capsuleChallenge(e, v)
	s := u.Add(r.Mul(h))

	shared := pk.p.Mul(r.Add(u))
	return &Capsule{E: e, V: v, S: s}, curve.KDF(shared, SecretSize)
}

// Verify checks S·G == V + H(E,V)·E, which binds E and V together.
func (c *Capsule) Verify() error {
	if c.E.IsIdentity() || c.V.IsIdentity() {
		return ErrInvalidCapsule
	}
	h := capsuleChallenge(c.E, c.V)
	lhs := curve.BaseMulPublic(c.S)
	rhs := c.V.Add(c.E.MulPublic(h))
	if !lhs.Equals(rhs) {
		return ErrInvalidCapsule
	}
	return nil
}

// DecapsulateOriginal opens a capsule with the secret key it was made for.
func DecapsulateOriginal(sk *SecretKey, c *Capsule) ([]byte, error) {
	if err := c.Verify(); err != nil {
		return nil, err
	}
	shared := c.E.Add(c.V).Mul(sk.s)
	return curve.KDF(shared, SecretSize), nil
}

func (c *Capsule) Bytes() []byte {
	return concat(c.E.Bytes(), c.V.Bytes(), c.S.Bytes())
}

// CapsuleFromBytes parses and verifies a capsule.
func CapsuleFromBytes(b []byte) (*Capsule, error) {
	if len(b) != CapsuleSize {
		return nil, xerrors.Errorf("capsule length %d: %w", len(b), ErrInvalidEncoding)
	}
	r := &reader{b: b}
	c := &Capsule{E: r.point(), V: r.point(), S: r.scalar()}
	if err := r.done(); err != nil {
		return nil, err
	}
	if err := c.Verify(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Capsule) Equals(o *Capsule) bool {
	return o != nil && c.E.Equals(o.E) && c.V.Equals(o.V) && c.S.Equals(o.S)
}

func (c Capsule) MarshalBinary() ([]byte, error) {
	return c.Bytes(), nil
}

func (c *Capsule) UnmarshalBinary(b []byte) error {
	nc, err := CapsuleFromBytes(b)
	if err != nil {
		return err
	}
	*c = *nc
	return nil
}
