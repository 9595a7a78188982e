package pre

import (
	"github.com/memoio/go-mefs-pre/lib/crypto/dem"
)

const demInfo = "payload"

// Encrypt seals plaintext for pk. The capsule is authenticated as associated
// data, so a ciphertext cannot be moved to another capsule.
func Encrypt(pk *PublicKey, plaintext []byte) (*Capsule, []byte, error) {
	c, secret := Encapsulate(pk)
	key := dem.DeriveKey(secret, demInfo)
	ct, err := dem.Encrypt(key[:], plaintext, c.Bytes())
	if err != nil {
		return nil, nil, err
	}
	return c, ct, nil
}

// DecryptOriginal opens a ciphertext with the key it was encrypted for.
func DecryptOriginal(sk *SecretKey, c *Capsule, ciphertext []byte) ([]byte, error) {
	secret, err := DecapsulateOriginal(sk, c)
	if err != nil {
		return nil, err
	}
	key := dem.DeriveKey(secret, demInfo)
	return dem.Decrypt(key[:], ciphertext, c.Bytes())
}

// DecryptReencrypted opens a ciphertext with fragments re-encrypted for the
// receiving key.
func DecryptReencrypted(receiving *SecretKey, delegating *PublicKey, c *Capsule, cfrags []*VerifiedCapsuleFrag, threshold int, ciphertext []byte) ([]byte, error) {
	secret, err := Combine(receiving, delegating, c, cfrags, threshold)
	if err != nil {
		return nil, err
	}
	key := dem.DeriveKey(secret, demInfo)
	return dem.Decrypt(key[:], ciphertext, c.Bytes())
}
