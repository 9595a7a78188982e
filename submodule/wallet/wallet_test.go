package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memoio/go-mefs-pre/lib/crypto/signature"
	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
	"github.com/memoio/go-mefs-pre/lib/pre"
)

func TestWallet(t *testing.T) {
	p := t.TempDir()

	w, err := NewLight(p, "12345")
	if err != nil {
		t.Fatal(err)
	}

	priv, err := signature.GenerateKey(sig_common.Secp256k1)
	if err != nil {
		t.Fatal(err)
	}
	stamp, err := w.ImportStamp(priv)
	if err != nil {
		t.Fatal(err)
	}
	sk := pre.GenerateSecretKey()
	delegating, err := w.ImportPRE(sk)
	if err != nil {
		t.Fatal(err)
	}

	// a fresh wallet has to decrypt the files
	w2, err := NewLight(p, "12345")
	if err != nil {
		t.Fatal(err)
	}

	npriv, err := w2.Stamp(stamp)
	if err != nil {
		t.Fatal(err)
	}
	if !priv.Equals(npriv) {
		t.Fatal("stamp key changed")
	}

	nsk, err := w2.PRE(delegating)
	require.NoError(t, err)
	require.Equal(t, sk.Bytes(), nsk.Bytes())

	_, err = w2.PRE(stamp)
	require.ErrorIs(t, err, ErrWrongKind)

	list, err := w2.List()
	require.NoError(t, err)
	require.Len(t, list, 2)

	other, err := NewLight(t.TempDir(), "12345")
	require.NoError(t, err)
	_, err = other.Stamp(stamp)
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestWrongPassword(t *testing.T) {
	p := t.TempDir()

	w, err := NewLight(p, "right")
	require.NoError(t, err)
	addr, err := w.NewPRE()
	require.NoError(t, err)

	w2, err := NewLight(p, "wrong")
	require.NoError(t, err)
	_, err = w2.PRE(addr)
	require.ErrorIs(t, err, ErrDecrypt)
}
