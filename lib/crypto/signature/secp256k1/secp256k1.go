package secp256k1

import (
	"crypto/subtle"
	"io"

	"github.com/btcsuite/btcd/btcec"
	"github.com/zeebo/blake3"
	"lukechampine.com/frand"

	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
)

const (
	SecretKeySize = 32
	// PublicKeySize is the compressed encoding, the same as a curve point.
	PublicKeySize             = 33
	PublicKeyUncompressedSize = 65
	// SignatureSize is [R || S || V].
	SignatureSize = 65
)

var _ sig_common.PrivKey = (*PrivateKey)(nil)
var _ sig_common.PubKey = (*PublicKey)(nil)

type PrivateKey struct {
	*PublicKey
	secretKey []byte
}

type PublicKey struct {
	pubKey []byte
}

// GenerateKey generates a new Secp256k1 private and public key pair
func GenerateKey() (*PrivateKey, *PublicKey, error) {
	return GenerateKeyFromSeed(frand.Reader)
}

// GenerateKeyFromSeed reads 32 bytes at a time from seed until they form a
// valid secret key.
func GenerateKeyFromSeed(seed io.Reader) (*PrivateKey, *PublicKey, error) {
	buf := make([]byte, SecretKeySize)
	for {
		if _, err := io.ReadFull(seed, buf); err != nil {
			return nil, nil, err
		}
		k := &PrivateKey{}
		if err := k.Deserialize(buf); err == nil {
			return k, k.PublicKey, nil
		}
	}
}

// Equals compares two private keys
func (k *PrivateKey) Equals(o sig_common.Key) bool {
	return equals(k, o)
}

func (k *PrivateKey) Type() sig_common.KeyType {
	return sig_common.Secp256k1
}

func (k *PrivateKey) Raw() ([]byte, error) {
	if len(k.secretKey) != SecretKeySize {
		return nil, sig_common.ErrBadPrivateKey
	}
	return k.secretKey, nil
}

// Sign returns a signature over blake3(msg).
func (k *PrivateKey) Sign(msg []byte) ([]byte, error) {
	sk, err := k.Raw()
	if err != nil {
		return nil, err
	}
	digest := blake3.Sum256(msg)
	return Secp256K1Sign(sk, digest[:])
}

func (k *PrivateKey) GetPublic() sig_common.PubKey {
	return k.PublicKey
}

// Deserialize loads a 32-byte secret and derives its public key.
func (k *PrivateKey) Deserialize(data []byte) error {
	if len(data) != SecretKeySize {
		return sig_common.ErrBadPrivateKey
	}
	priv, pub := btcec.PrivKeyFromBytes(btcec.S256(), data)
	if priv.D.Sign() == 0 || priv.D.Cmp(btcec.S256().N) >= 0 {
		return sig_common.ErrBadPrivateKey
	}

	k.secretKey = make([]byte, SecretKeySize)
	copy(k.secretKey, data)
	k.PublicKey = &PublicKey{pub.SerializeCompressed()}
	return nil
}

func (k *PublicKey) Equals(o sig_common.Key) bool {
	return equals(k, o)
}

func (k *PublicKey) Type() sig_common.KeyType {
	return sig_common.Secp256k1
}

func (k *PublicKey) Raw() ([]byte, error) {
	if len(k.pubKey) != PublicKeySize {
		return nil, sig_common.ErrBadPublickKey
	}
	return k.pubKey, nil
}

func (k *PublicKey) Uncompressed() ([]byte, error) {
	key, err := btcec.ParsePubKey(k.pubKey, btcec.S256())
	if err != nil {
		return nil, err
	}
	return key.SerializeUncompressed(), nil
}

// Deserialize accepts the compressed or uncompressed SEC1 form.
func (k *PublicKey) Deserialize(data []byte) error {
	if len(data) != PublicKeySize && len(data) != PublicKeyUncompressedSize {
		return sig_common.ErrBadPublickKey
	}
	key, err := btcec.ParsePubKey(data, btcec.S256())
	if err != nil {
		return sig_common.ErrBadPublickKey
	}
	k.pubKey = key.SerializeCompressed()
	return nil
}

// Verify checks sig against blake3(msg).
func (k *PublicKey) Verify(msg, sig []byte) (bool, error) {
	if len(sig) != SignatureSize {
		return false, sig_common.ErrBadSign
	}

	pubBytes, err := k.Raw()
	if err != nil {
		return false, err
	}

	digest := blake3.Sum256(msg)
	rePub, err := EcRecover(digest[:], sig)
	if err != nil {
		return false, nil
	}

	return subtle.ConstantTimeCompare(pubBytes, rePub) == 1, nil
}

// EcRecover returns the compressed public key that produced sig over digest.
func EcRecover(digest, sig []byte) ([]byte, error) {
	if len(sig) != SignatureSize {
		return nil, sig_common.ErrBadSign
	}
	full, err := Secp256K1EcRecover(digest, sig)
	if err != nil {
		return nil, err
	}
	key, err := btcec.ParsePubKey(full, btcec.S256())
	if err != nil {
		return nil, err
	}
	return key.SerializeCompressed(), nil
}

func equals(a, b sig_common.Key) bool {
	if a.Type() != b.Type() {
		return false
	}
	ab, err := a.Raw()
	if err != nil {
		return false
	}
	bb, err := b.Raw()
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(ab, bb) == 1
}
