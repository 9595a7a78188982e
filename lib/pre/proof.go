package pre

import (
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/crypto/curve"
	"github.com/memoio/go-mefs-pre/lib/crypto/signature/secp256k1"
)

// ProofSize is E2, V2, commitment, pok, z and the kfrag signature.
const ProofSize = 4*curve.PointSize + curve.ScalarSize + secp256k1.SignatureSize

// CorrectnessProof is a Fiat-Shamir proof that E1, V1 and the kfrag
// commitment share one discrete log.
type CorrectnessProof struct {
	E2         curve.Point
	V2         curve.Point
	Commitment curve.Point // rk·U
	Pok        curve.Point // t·U
	Z          curve.Scalar
	Signature  []byte // kfrag signature covering both keys
}

// proofChallenge must only be computed once every commitment is fixed.
func proofChallenge(c *Capsule, e1, e2, v1, v2, u1, u2 curve.Point, metadata []byte) curve.Scalar {
	return curve.HashToScalar(dstVerification,
		c.E.Bytes(), e1.Bytes(), e2.Bytes(),
		c.V.Bytes(), v1.Bytes(), v2.Bytes(),
		curve.U().Bytes(), u1.Bytes(), u2.Bytes(),
		metadata,
	)
}

// proveCorrectness derives the nonce from the share and the statement, so
// the same inputs always give the same proof and distinct statements never
// share a nonce.
func proveCorrectness(c *Capsule, kf *KeyFrag, e1, v1 curve.Point, metadata []byte) CorrectnessProof {
	rk := kf.Key
	t := curve.HashToNonZeroScalar(dstProofNonce, rk.Bytes(), c.Bytes(), kf.ID[:], metadata)

	e2 := c.E.Mul(t)
	v2 := c.V.Mul(t)
	u2 := curve.U().Mul(t)

	h := proofChallenge(c, e1, e2, v1, v2, kf.Commitment, u2, metadata)
	z := t.Add(h.Mul(rk))

	return CorrectnessProof{
		E2:         e2,
		V2:         v2,
		Commitment: kf.Commitment,
		Pok:        u2,
		Z:          z,
		Signature:  append([]byte{}, kf.ReceiverSignature...),
	}
}

// check runs the three Schnorr equations.
func (p *CorrectnessProof) check(c *Capsule, e1, v1 curve.Point, metadata []byte) bool {
	h := proofChallenge(c, e1, p.E2, v1, p.V2, p.Commitment, p.Pok, metadata)

	if !c.E.MulPublic(p.Z).Equals(p.E2.Add(e1.MulPublic(h))) {
		return false
	}
	if !c.V.MulPublic(p.Z).Equals(p.V2.Add(v1.MulPublic(h))) {
		return false
	}
	return curve.U().MulPublic(p.Z).Equals(p.Pok.Add(p.Commitment.MulPublic(h)))
}

func (p *CorrectnessProof) Bytes() []byte {
	return concat(p.E2.Bytes(), p.V2.Bytes(), p.Commitment.Bytes(), p.Pok.Bytes(), p.Z.Bytes(), p.Signature)
}

func (p *CorrectnessProof) read(r *reader) {
	p.E2 = r.point()
	p.V2 = r.point()
	p.Commitment = r.point()
	p.Pok = r.point()
	p.Z = r.scalar()
	p.Signature = append([]byte{}, r.next(secp256k1.SignatureSize)...)
}

func CorrectnessProofFromBytes(b []byte) (*CorrectnessProof, error) {
	if len(b) != ProofSize {
		return nil, xerrors.Errorf("proof length %d: %w", len(b), ErrInvalidEncoding)
	}
	r := &reader{b: b}
	p := &CorrectnessProof{}
	p.read(r)
	if err := r.done(); err != nil {
		return nil, err
	}
	return p, nil
}
