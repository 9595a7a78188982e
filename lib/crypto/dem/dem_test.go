package dem

import (
	"testing"

	"github.com/stretchr/testify/require"
	"lukechampine.com/frand"
)

func TestEncryptDecrypt(t *testing.T) {
	key := DeriveKey(frand.Bytes(32), "test")
	msg := []byte("attack at dawn")
	aad := []byte("capsule")

	ct, err := Encrypt(key[:], msg, aad)
	require.NoError(t, err)
	require.Len(t, ct, len(msg)+Overhead)

	pt, err := Decrypt(key[:], ct, aad)
	require.NoError(t, err)
	require.Equal(t, msg, pt)

	_, err = Decrypt(key[:], ct, []byte("other capsule"))
	require.ErrorIs(t, err, ErrDecrypt)

	ct[len(ct)-1] ^= 1
	_, err = Decrypt(key[:], ct, aad)
	require.ErrorIs(t, err, ErrDecrypt)

	_, err = Decrypt(key[:], ct[:Overhead-1], aad)
	require.ErrorIs(t, err, ErrCiphertext)

	_, err = Encrypt(key[:16], msg, aad)
	require.ErrorIs(t, err, ErrKeySize)
}

func TestDeriveKeyContext(t *testing.T) {
	secret := frand.Bytes(32)
	require.NotEqual(t, DeriveKey(secret, "a"), DeriveKey(secret, "b"))
	require.Equal(t, DeriveKey(secret, "a"), DeriveKey(secret, "a"))
}
