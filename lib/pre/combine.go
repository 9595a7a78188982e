package pre

import (
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/crypto/curve"
)

// lagrangeAtZero returns the coefficient of share i when interpolating the
// polynomial through xs at 0.
func lagrangeAtZero(xs []curve.Scalar, i int) curve.Scalar {
	num := curve.NewScalar(1)
	den := curve.NewScalar(1)
	for j, xj := range xs {
		if j == i {
			continue
		}
		num = num.Mul(xj)
		den = den.Mul(xj.Sub(xs[i]))
	}
	return num.Mul(den.Invert())
}

// Combine recovers the capsule secret from at least threshold verified
// fragments. It never returns a secret the capsule does not hold.
func Combine(receiving *SecretKey, delegating *PublicKey, c *Capsule, cfrags []*VerifiedCapsuleFrag, threshold int) ([]byte, error) {
	if threshold < 1 {
		return nil, xerrors.Errorf("threshold %d: %w", threshold, ErrInvalidThreshold)
	}
	if receiving == nil || delegating == nil {
		return nil, xerrors.Errorf("combine: %w", ErrMissingKey)
	}
	if len(cfrags) < threshold {
		return nil, xerrors.Errorf("have %d of %d: %w", len(cfrags), threshold, ErrInsufficientFragments)
	}
	if err := c.Verify(); err != nil {
		return nil, err
	}

	seen := make(map[KFragID]struct{}, len(cfrags))
	precursor := cfrags[0].cfrag.Precursor
	for _, vcf := range cfrags {
		cf := &vcf.cfrag
		if _, ok := seen[cf.KFragID]; ok {
			return nil, &VerificationError{KFragID: cf.KFragID, Err: ErrDuplicateFragment}
		}
		seen[cf.KFragID] = struct{}{}
		if !cf.Precursor.Equals(precursor) {
			return nil, &VerificationError{KFragID: cf.KFragID, Err: ErrMismatchedFragments}
		}
	}

	receivingPK := receiving.PublicKey()
	dh := precursor.Mul(receiving.s)
	d := curve.HashToNonZeroScalar(dstNonInteractive, precursor.Bytes(), receivingPK.Bytes(), dh.Bytes())

	xs := make([]curve.Scalar, len(cfrags))
	for i, vcf := range cfrags {
		xs[i] = xCoordinate(precursor, receivingPK, dh, vcf.cfrag.KFragID)
	}

	e := curve.Identity()
	v := curve.Identity()
	for i, vcf := range cfrags {
		l := lagrangeAtZero(xs, i)
		e = e.Add(vcf.cfrag.E1.MulPublic(l))
		v = v.Add(vcf.cfrag.V1.MulPublic(l))
	}

	// A·(S/d) == h·E' + V' holds iff E' and V' are the capsule under f(0)
	h := capsuleChallenge(c.E, c.V)
	lhs := delegating.p.MulPublic(c.S.Mul(d.Invert()))
	rhs := e.MulPublic(h).Add(v)
	if !lhs.Equals(rhs) {
		return nil, ErrInvalidCombination
	}

	shared := e.Add(v).Mul(d)
	return curve.KDF(shared, SecretSize), nil
}
