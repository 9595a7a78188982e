//go:build !cgo
// +build !cgo

package secp256k1

import (
	"github.com/btcsuite/btcd/btcec"

	sig_common "github.com/memoio/go-mefs-pre/lib/crypto/signature/common"
)

// Secp256K1Sign signs the given digest, which must be 32 bytes long. The
// compact signature [V+27 || R || S] is rotated into [R || S || V].
func Secp256K1Sign(sk, digest []byte) ([]byte, error) {
	if len(digest) != sig_common.MsgBytes {
		return nil, sig_common.ErrBadMsg
	}
	key, _ := btcec.PrivKeyFromBytes(btcec.S256(), sk)

	compact, err := btcec.SignCompact(btcec.S256(), key, digest, false)
	if err != nil {
		return nil, err
	}

	sig := make([]byte, SignatureSize)
	copy(sig, compact[1:])
	sig[64] = compact[0] - 27
	return sig, nil
}

// Secp256K1EcRecover recovers the uncompressed public key from a digest, signature pair.
func Secp256K1EcRecover(digest, sig []byte) ([]byte, error) {
	if len(sig) != SignatureSize || sig[64] > 3 {
		return nil, sig_common.ErrBadSign
	}
	btcsig := make([]byte, SignatureSize)
	btcsig[0] = sig[64] + 27
	copy(btcsig[1:], sig)

	pub, _, err := btcec.RecoverCompact(btcec.S256(), btcsig, digest)
	if err != nil {
		return nil, err
	}
	return pub.SerializeUncompressed(), nil
}
