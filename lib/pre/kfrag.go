package pre

import (
	"encoding/hex"

	"golang.org/x/xerrors"
	"lukechampine.com/frand"

	"github.com/memoio/go-mefs-pre/lib/crypto/curve"
	"github.com/memoio/go-mefs-pre/lib/crypto/signature"
	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
	"github.com/memoio/go-mefs-pre/lib/crypto/signature/secp256k1"
)

const (
	KFragIDSize = 32
	// KeyFragSize is id, key, precursor, commitment, flags and two signatures.
	KeyFragSize = KFragIDSize + curve.ScalarSize + 2*curve.PointSize + 1 + 2*secp256k1.SignatureSize
)

const (
	flagDelegating byte = 1 << iota
	flagReceiving
)

type KFragID [KFragIDSize]byte

func (id KFragID) String() string {
	return hex.EncodeToString(id[:])
}

// KeyFrag is one share of the re-encryption key. ProxySignature lets the
// proxy check the fragment; ReceiverSignature always covers both keys and
// travels inside every proof so the receiver can check the commitment.
type KeyFrag struct {
	ID                KFragID
	Key               curve.Scalar
	Precursor         curve.Point
	Commitment        curve.Point
	SignDelegating    bool
	SignReceiving     bool
	ProxySignature    []byte
	ReceiverSignature []byte
}

// VerifiedKeyFrag is a KeyFrag whose proxy signature has been checked.
// Only verified fragments can re-encrypt.
type VerifiedKeyFrag struct {
	kfrag KeyFrag
}

func (v *VerifiedKeyFrag) KeyFrag() *KeyFrag {
	kf := v.kfrag
	return &kf
}

func (v *VerifiedKeyFrag) ID() KFragID {
	return v.kfrag.ID
}

func (v *VerifiedKeyFrag) Bytes() []byte {
	return v.kfrag.Bytes()
}

// kfragMessage is what both kfrag signatures cover. A nil key is left out.
func kfragMessage(id KFragID, commitment, precursor curve.Point, delegating, receiving *PublicKey) []byte {
	var flags byte
	var dk, rk []byte
	if delegating != nil {
		flags |= flagDelegating
		dk = delegating.Bytes()
	}
	if receiving != nil {
		flags |= flagReceiving
		rk = receiving.Bytes()
	}
	return concat(id[:], commitment.Bytes(), precursor.Bytes(), []byte{flags}, dk, rk)
}

// GenerateKFrags splits the delegating key into shares such that any
// threshold of them re-encrypt capsules for receiving.
func GenerateKFrags(delegating *SecretKey, receiving *PublicKey, signer sig_common.Signer, threshold, shares int, signDelegating, signReceiving bool) ([]*VerifiedKeyFrag, error) {
	if threshold < 1 || shares < 1 || threshold > shares {
		return nil, xerrors.Errorf("m=%d n=%d: %w", threshold, shares, ErrInvalidThreshold)
	}

	delegatingPK := delegating.PublicKey()

	// precursor and the non-interactive DH with the receiver
	xa := curve.RandomScalar()
	precursor := curve.BaseMul(xa)
	dh := receiving.p.Mul(xa)
	d := curve.HashToNonZeroScalar(dstNonInteractive, precursor.Bytes(), receiving.Bytes(), dh.Bytes())

	coeffs := make([]curve.Scalar, threshold)
	coeffs[0] = delegating.s.Mul(d.Invert())
	for i := 1; i < threshold; i++ {
		coeffs[i] = curve.RandomScalar()
	}

	var proxyDK, proxyRK *PublicKey
	if signDelegating {
		proxyDK = delegatingPK
	}
	if signReceiving {
		proxyRK = receiving
	}

	res := make([]*VerifiedKeyFrag, 0, shares)
	for i := 0; i < shares; i++ {
		var id KFragID
		frand.Read(id[:])

		x := xCoordinate(precursor, receiving, dh, id)
		rk := evalPoly(coeffs, x)
		commitment := curve.U().Mul(rk)

		rsig, err := signer.Sign(kfragMessage(id, commitment, precursor, delegatingPK, receiving))
		if err != nil {
			return nil, err
		}
		psig, err := signer.Sign(kfragMessage(id, commitment, precursor, proxyDK, proxyRK))
		if err != nil {
			return nil, err
		}

		res = append(res, &VerifiedKeyFrag{kfrag: KeyFrag{
			ID:                id,
			Key:               rk,
			Precursor:         precursor,
			Commitment:        commitment,
			SignDelegating:    signDelegating,
			SignReceiving:     signReceiving,
			ProxySignature:    psig,
			ReceiverSignature: rsig,
		}})
	}

	return res, nil
}

func xCoordinate(precursor curve.Point, receiving *PublicKey, dh curve.Point, id KFragID) curve.Scalar {
	return curve.HashToNonZeroScalar(dstXCoordinate, precursor.Bytes(), receiving.Bytes(), dh.Bytes(), id[:])
}

// evalPoly evaluates coeffs at x with Horner's rule.
func evalPoly(coeffs []curve.Scalar, x curve.Scalar) curve.Scalar {
	res := coeffs[len(coeffs)-1]
	for i := len(coeffs) - 2; i >= 0; i-- {
		res = res.Mul(x).Add(coeffs[i])
	}
	return res
}

// Verify checks the commitment and the proxy signature. Keys the fragment
// was not signed for may be nil.
func (kf *KeyFrag) Verify(verifying, delegating, receiving *PublicKey) (*VerifiedKeyFrag, error) {
	if verifying == nil {
		return nil, &VerificationError{KFragID: kf.ID, Err: ErrMissingKey}
	}
	if kf.Commitment.IsIdentity() || kf.Key.IsZero() {
		return nil, &VerificationError{KFragID: kf.ID, Err: ErrInvalidKFragSignature}
	}
	if !curve.U().Mul(kf.Key).Equals(kf.Commitment) {
		return nil, &VerificationError{KFragID: kf.ID, Err: ErrInvalidKFragSignature}
	}

	var dk, rk *PublicKey
	if kf.SignDelegating {
		if delegating == nil {
			return nil, &VerificationError{KFragID: kf.ID, Err: ErrMissingKey}
		}
		dk = delegating
	}
	if kf.SignReceiving {
		if receiving == nil {
			return nil, &VerificationError{KFragID: kf.ID, Err: ErrMissingKey}
		}
		rk = receiving
	}

	msg := kfragMessage(kf.ID, kf.Commitment, kf.Precursor, dk, rk)
	ok, err := signature.Verify(verifying.Bytes(), msg, kf.ProxySignature)
	if err != nil || !ok {
		return nil, &VerificationError{KFragID: kf.ID, Err: ErrInvalidKFragSignature}
	}

	return &VerifiedKeyFrag{kfrag: *kf}, nil
}

func (kf *KeyFrag) Bytes() []byte {
	var flags byte
	if kf.SignDelegating {
		flags |= flagDelegating
	}
	if kf.SignReceiving {
		flags |= flagReceiving
	}
	return concat(kf.ID[:], kf.Key.Bytes(), kf.Precursor.Bytes(), kf.Commitment.Bytes(),
		[]byte{flags}, kf.ProxySignature, kf.ReceiverSignature)
}

func KeyFragFromBytes(b []byte) (*KeyFrag, error) {
	if len(b) != KeyFragSize {
		return nil, xerrors.Errorf("kfrag length %d: %w", len(b), ErrInvalidEncoding)
	}
	r := &reader{b: b}
	kf := &KeyFrag{}
	copy(kf.ID[:], r.next(KFragIDSize))
	kf.Key = r.scalar()
	kf.Precursor = r.point()
	kf.Commitment = r.point()
	flags := r.next(1)
	kf.ProxySignature = append([]byte{}, r.next(secp256k1.SignatureSize)...)
	kf.ReceiverSignature = append([]byte{}, r.next(secp256k1.SignatureSize)...)
	if err := r.done(); err != nil {
		return nil, err
	}
	if flags[0]&^(flagDelegating|flagReceiving) != 0 {
		return nil, xerrors.Errorf("kfrag flags %#x: %w", flags[0], ErrInvalidEncoding)
	}
	kf.SignDelegating = flags[0]&flagDelegating != 0
	kf.SignReceiving = flags[0]&flagReceiving != 0
	return kf, nil
}
