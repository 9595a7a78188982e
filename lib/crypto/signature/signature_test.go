package signature

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
	"github.com/memoio/go-mefs-pre/lib/crypto/signature/secp256k1"
)

func BenchmarkSign(b *testing.B) {
	sk, pk, err := secp256k1.GenerateKey()
	if err != nil {
		panic(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg := []byte(strconv.Itoa(i))
		sig, err := sk.Sign(msg)
		if err != nil {
			panic(err)
		}

		ok, err := pk.Verify(msg, sig)
		if err != nil {
			panic(err)
		}

		if !ok {
			panic("sign verify wrong")
		}
	}
}

func TestSecpSign(t *testing.T) {
	sk, err := GenerateKey(sig_common.Secp256k1)
	if err != nil {
		t.Fatal(err)
	}
	pk := sk.GetPublic()

	msg := []byte("capsule")
	sig, err := sk.Sign(msg)
	if err != nil {
		t.Fatal(err)
	}
	if len(sig) != secp256k1.SignatureSize {
		t.Fatalf("signature size %d", len(sig))
	}

	ok, err := pk.Verify(msg, sig)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("sign verify wrong")
	}

	ok, _ = pk.Verify([]byte("other"), sig)
	if ok {
		t.Fatal("verified a different message")
	}

	// deterministic
	sig2, err := sk.Sign(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(sig, sig2) {
		t.Fatal("signature not deterministic")
	}
}

func TestKeyRoundTrip(t *testing.T) {
	sk, err := GenerateKey(sig_common.Secp256k1)
	require.NoError(t, err)

	skBytes, err := sk.Raw()
	require.NoError(t, err)
	pkBytes, err := sk.GetPublic().Raw()
	require.NoError(t, err)
	require.Len(t, pkBytes, secp256k1.PublicKeySize)

	newsk, err := ParsePrivateKey(skBytes, sig_common.Secp256k1)
	require.NoError(t, err)
	require.True(t, sk.Equals(newsk))

	newpk, err := ParsePubByte(pkBytes)
	require.NoError(t, err)
	require.True(t, newpk.Equals(sk.GetPublic()))

	full, err := newpk.Uncompressed()
	require.NoError(t, err)
	fromFull, err := ParsePubByte(full)
	require.NoError(t, err)
	require.True(t, fromFull.Equals(newpk))

	_, err = ParsePrivateKey(skBytes, sig_common.Unknown)
	require.ErrorIs(t, err, sig_common.ErrBadKeyType)

	_, err = ParsePrivateKey(make([]byte, 32), sig_common.Secp256k1)
	require.ErrorIs(t, err, sig_common.ErrBadPrivateKey)
}

func TestVerifyByAddress(t *testing.T) {
	sk, err := GenerateKey(sig_common.Secp256k1)
	require.NoError(t, err)
	pkBytes, _ := sk.GetPublic().Raw()

	addr, err := AddressFromPubByte(pkBytes)
	require.NoError(t, err)

	// same derivation as go-ethereum
	skBytes, _ := sk.Raw()
	ek, err := crypto.ToECDSA(skBytes)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(ek.PublicKey), addr)

	msg := []byte("evidence")
	sig, err := sk.Sign(msg)
	require.NoError(t, err)

	ok, err := Verify(addr.Bytes(), msg, sig)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Verify(pkBytes, msg, sig)
	require.NoError(t, err)
	require.True(t, ok)

	digest := blake3.Sum256(msg)
	rec, err := secp256k1.EcRecover(digest[:], sig)
	require.NoError(t, err)
	require.Equal(t, pkBytes, rec)

	bad := append([]byte{}, sig...)
	bad[10] ^= 0x01
	ok, _ = Verify(pkBytes, msg, bad)
	require.False(t, ok)
}
