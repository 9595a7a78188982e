package address

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memoio/go-mefs-pre/lib/crypto/signature"
	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
	"github.com/memoio/go-mefs-pre/lib/pre"
)

func TestKeyAddress(t *testing.T) {
	assert := assert.New(t)

	pk := pre.GenerateSecretKey().PublicKey()
	addr := FromPublicKey(pk)
	assert.Equal(pk.Bytes(), addr.Bytes())

	str := addr.String()
	assert.Equal(AddrPrefix, str[:AddrPrefixLen])

	maybe, err := NewFromString(str)
	assert.NoError(err)
	assert.Equal(addr, maybe)

	npk, err := maybe.PublicKey()
	assert.NoError(err)
	assert.True(pk.Equals(npk))

	b, err := json.Marshal(addr)
	assert.NoError(err)
	var jaddr Address
	assert.NoError(json.Unmarshal(b, &jaddr))
	assert.Equal(addr, jaddr)
}

func TestStampAccount(t *testing.T) {
	priv, err := signature.GenerateKey(sig_common.Secp256k1)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := priv.GetPublic().Raw()
	if err != nil {
		t.Fatal(err)
	}

	addr, err := NewAddress(raw)
	if err != nil {
		t.Fatal(err)
	}

	acc, err := addr.Account()
	if err != nil {
		t.Fatal(err)
	}
	want, err := signature.Address(priv.GetPublic())
	if err != nil {
		t.Fatal(err)
	}
	if acc != want {
		t.Fatalf("account %s, want %s", acc, want)
	}
}

func TestBadAddress(t *testing.T) {
	assert := assert.New(t)

	str := FromPublicKey(pre.GenerateSecretKey().PublicKey()).String()

	_, err := NewFromString("")
	assert.ErrorIs(err, ErrInvalidLength)
	_, err = NewFromString(UndefAddressString)
	assert.ErrorIs(err, ErrInvalidLength)
	_, err = NewFromString("Xx" + str[AddrPrefixLen:])
	assert.ErrorIs(err, ErrUnknownAddrType)

	// flip one base58 digit
	last := str[len(str)-1]
	flip := byte('2')
	if last == flip {
		flip = '3'
	}
	_, err = NewFromString(str[:len(str)-1] + string(flip))
	assert.Error(err)

	_, err = NewAddress(make([]byte, 20))
	assert.ErrorIs(err, ErrInvalidLength)
	bad := make([]byte, 33)
	bad[0] = 7
	_, err = NewAddress(bad)
	assert.ErrorIs(err, ErrInvalidPayload)

	assert.Equal(UndefAddressString, Undef.String())
	assert.True(Undef.Empty())
}
