//go:build cgo
// +build cgo

package secp256k1

import (
	secp256k1 "github.com/ethereum/go-ethereum/crypto/secp256k1"
)

// Secp256K1Sign signs the given digest, which must be 32 bytes long.
func Secp256K1Sign(sk, digest []byte) ([]byte, error) {
	return secp256k1.Sign(digest, sk)
}

// Secp256K1EcRecover recovers the uncompressed public key from a digest, signature pair.
func Secp256K1EcRecover(digest, signature []byte) ([]byte, error) {
	return secp256k1.RecoverPubkey(digest, signature)
}
