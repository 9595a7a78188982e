package signature

import (
	"crypto/subtle"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"

	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
	"github.com/memoio/go-mefs-pre/lib/crypto/signature/secp256k1"
)

func GenerateKey(typ sig_common.KeyType) (sig_common.PrivKey, error) {
	switch typ {
	case sig_common.Secp256k1:
		sk, _, err := secp256k1.GenerateKey()
		if err != nil {
			return nil, err
		}
		return sk, nil
	default:
		return nil, errors.Wrap(sig_common.ErrBadKeyType, strconv.Itoa(int(typ)))
	}
}

func ParsePrivateKey(privatekey []byte, typ sig_common.KeyType) (sig_common.PrivKey, error) {
	switch typ {
	case sig_common.Secp256k1:
		privkey := &secp256k1.PrivateKey{}
		err := privkey.Deserialize(privatekey)
		if err != nil {
			return nil, err
		}
		return privkey, nil
	default:
		return nil, errors.Wrap(sig_common.ErrBadKeyType, strconv.Itoa(int(typ)))
	}
}

// verify related

func ParsePubByte(pubbyte []byte) (sig_common.PubKey, error) {
	switch len(pubbyte) {
	case secp256k1.PublicKeySize, secp256k1.PublicKeyUncompressedSize:
		pubKey := &secp256k1.PublicKey{}
		err := pubKey.Deserialize(pubbyte)
		if err != nil {
			return nil, err
		}
		return pubKey, nil
	default:
		return nil, sig_common.ErrBadKeyType
	}
}

// Verify accepts a public key (33 or 65 bytes) or a 20-byte address.
func Verify(pubBytes []byte, data, sig []byte) (bool, error) {
	if len(pubBytes) == common.AddressLength {
		msg := blake3.Sum256(data)
		rePub, err := secp256k1.EcRecover(msg[:], sig)
		if err != nil {
			return false, err
		}
		addr, err := AddressFromPubByte(rePub)
		if err != nil {
			return false, err
		}
		return subtle.ConstantTimeCompare(pubBytes, addr.Bytes()) == 1, nil
	}

	pk, err := ParsePubByte(pubBytes)
	if err != nil {
		return false, err
	}
	return pk.Verify(data, sig)
}

// Address derives the account address of a public key:
// the last 20 bytes of keccak256 over the uncompressed point.
func Address(pubkey sig_common.PubKey) (common.Address, error) {
	raw, err := pubkey.Uncompressed()
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(crypto.Keccak256(raw[1:])[12:]), nil
}

func AddressFromPubByte(pubbyte []byte) (common.Address, error) {
	pk, err := ParsePubByte(pubbyte)
	if err != nil {
		return common.Address{}, err
	}
	return Address(pk)
}
