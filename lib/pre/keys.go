package pre

import (
	"github.com/memoio/go-mefs-pre/lib/crypto/curve"
	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
	"github.com/memoio/go-mefs-pre/lib/crypto/signature/secp256k1"
)

// SecretKey is a non-zero scalar. Alice's delegating key and Bob's
// receiving key are both SecretKeys.
type SecretKey struct {
	s curve.Scalar
}

type PublicKey struct {
	p curve.Point
}

func GenerateSecretKey() *SecretKey {
	return &SecretKey{s: curve.RandomScalar()}
}

func SecretKeyFromBytes(b []byte) (*SecretKey, error) {
	s, err := curve.NonZeroScalarFromBytes(b)
	if err != nil {
		return nil, err
	}
	return &SecretKey{s: s}, nil
}

func (sk *SecretKey) Bytes() []byte {
	return sk.s.Bytes()
}

func (sk *SecretKey) PublicKey() *PublicKey {
	return &PublicKey{p: curve.BaseMul(sk.s)}
}

// Signer turns the key into a secp256k1 signer. Its public key has the same
// encoding as PublicKey().
func (sk *SecretKey) Signer() sig_common.Signer {
	k := &secp256k1.PrivateKey{}
	if err := k.Deserialize(sk.s.Bytes()); err != nil {
		// unreachable, sk is a non-zero scalar below n
		panic(err)
	}
	return k
}

func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	p, err := curve.PointFromBytes(b)
	if err != nil {
		return nil, err
	}
	return &PublicKey{p: p}, nil
}

// PublicKeyFromSigner returns the verifying key of a signer.
func PublicKeyFromSigner(pk sig_common.PubKey) (*PublicKey, error) {
	raw, err := pk.Raw()
	if err != nil {
		return nil, err
	}
	return PublicKeyFromBytes(raw)
}

func (pk *PublicKey) Bytes() []byte {
	return pk.p.Bytes()
}

func (pk *PublicKey) String() string {
	return pk.p.String()
}

func (pk *PublicKey) Equals(o *PublicKey) bool {
	return o != nil && pk.p.Equals(o.p)
}

func (pk PublicKey) MarshalBinary() ([]byte, error) {
	return pk.p.Bytes(), nil
}

func (pk *PublicKey) UnmarshalBinary(b []byte) error {
	return pk.p.UnmarshalBinary(b)
}
