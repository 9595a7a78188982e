package pre

import (
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/lib/crypto/curve"
	"github.com/memoio/go-mefs-pre/lib/crypto/signature"
)

// CapsuleFragSize is E1, V1, kfrag id, precursor and the proof.
const CapsuleFragSize = 3*curve.PointSize + KFragIDSize + ProofSize

// CapsuleFrag is one proxy's re-encryption of a capsule.
type CapsuleFrag struct {
	E1        curve.Point
	V1        curve.Point
	KFragID   KFragID
	Precursor curve.Point
	Proof     CorrectnessProof
}

// VerifiedCapsuleFrag has passed Verify and may be combined.
type VerifiedCapsuleFrag struct {
	cfrag CapsuleFrag
}

func (v *VerifiedCapsuleFrag) CapsuleFrag() *CapsuleFrag {
	cf := v.cfrag
	return &cf
}

func (v *VerifiedCapsuleFrag) Bytes() []byte {
	return v.cfrag.Bytes()
}

// ReEncrypt applies one kfrag to a capsule. The capsule is checked before
// the share is touched. The output is a deterministic function of the
// inputs.
func ReEncrypt(c *Capsule, vk *VerifiedKeyFrag, metadata []byte) (*VerifiedCapsuleFrag, error) {
	if err := c.Verify(); err != nil {
		return nil, err
	}

	kf := &vk.kfrag
	e1 := c.E.Mul(kf.Key)
	v1 := c.V.Mul(kf.Key)

	return &VerifiedCapsuleFrag{cfrag: CapsuleFrag{
		E1:        e1,
		V1:        v1,
		KFragID:   kf.ID,
		Precursor: kf.Precursor,
		Proof:     proveCorrectness(c, kf, e1, v1, metadata),
	}}, nil
}

// Verify checks the kfrag signature on the commitment and the correctness
// proof. Failures carry the kfrag id.
func (cf *CapsuleFrag) Verify(c *Capsule, verifying, delegating, receiving *PublicKey, metadata []byte) (*VerifiedCapsuleFrag, error) {
	if verifying == nil {
		return nil, &VerificationError{KFragID: cf.KFragID, Err: ErrMissingKey}
	}
	if err := c.Verify(); err != nil {
		return nil, err
	}

	msg := kfragMessage(cf.KFragID, cf.Proof.Commitment, cf.Precursor, delegating, receiving)
	ok, err := signature.Verify(verifying.Bytes(), msg, cf.Proof.Signature)
	if err != nil || !ok {
		return nil, &VerificationError{KFragID: cf.KFragID, Err: ErrInvalidKFragSignature}
	}

	if cf.E1.IsIdentity() || cf.V1.IsIdentity() || !cf.Proof.check(c, cf.E1, cf.V1, metadata) {
		return nil, &VerificationError{KFragID: cf.KFragID, Err: ErrInvalidCorrectnessProof}
	}

	return &VerifiedCapsuleFrag{cfrag: *cf}, nil
}

func (cf *CapsuleFrag) Bytes() []byte {
	return concat(cf.E1.Bytes(), cf.V1.Bytes(), cf.KFragID[:], cf.Precursor.Bytes(), cf.Proof.Bytes())
}

func CapsuleFragFromBytes(b []byte) (*CapsuleFrag, error) {
	if len(b) != CapsuleFragSize {
		return nil, xerrors.Errorf("cfrag length %d: %w", len(b), ErrInvalidEncoding)
	}
	r := &reader{b: b}
	cf := &CapsuleFrag{}
	cf.E1 = r.point()
	cf.V1 = r.point()
	copy(cf.KFragID[:], r.next(KFragIDSize))
	cf.Precursor = r.point()
	cf.Proof.read(r)
	if err := r.done(); err != nil {
		return nil, err
	}
	return cf, nil
}

func (cf CapsuleFrag) MarshalBinary() ([]byte, error) {
	return cf.Bytes(), nil
}

func (cf *CapsuleFrag) UnmarshalBinary(b []byte) error {
	n, err := CapsuleFragFromBytes(b)
	if err != nil {
		return err
	}
	*cf = *n
	return nil
}
