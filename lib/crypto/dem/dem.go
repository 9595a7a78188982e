// Package dem is the symmetric half of the hybrid scheme: a capsule yields a
// 32-byte secret, dem turns it into an AEAD key and seals the payload.
package dem

import (
	"errors"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"lukechampine.com/frand"
)

const (
	KeySize   = chacha20poly1305.KeySize
	NonceSize = chacha20poly1305.NonceSizeX
	Overhead  = NonceSize + chacha20poly1305.Overhead
)

var (
	ErrKeySize    = errors.New("keysize must be 32")
	ErrCiphertext = errors.New("ciphertext too short")
	ErrDecrypt    = errors.New("dem decryption failed")
)

// DeriveKey binds the KEM secret to a context string.
func DeriveKey(secret []byte, info string) [KeySize]byte {
	var key [KeySize]byte
	blake3.DeriveKey("go-mefs-pre/dem "+info, secret, key[:])
	return key
}

// Encrypt seals plaintext with a random nonce; output is nonce || ciphertext.
// aad, typically the serialized capsule, is authenticated but not encrypted.
func Encrypt(key, plaintext, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	frand.Read(out)
	return aead.Seal(out, out[:NonceSize], plaintext, aad), nil
}

func Decrypt(key, ciphertext, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	if len(ciphertext) < Overhead {
		return nil, ErrCiphertext
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	pt, err := aead.Open(nil, ciphertext[:NonceSize], ciphertext[NonceSize:], aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}
