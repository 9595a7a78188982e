package sig_common

import (
	"errors"
)

type KeyType = byte

const (
	Unknown KeyType = iota
	// Secp256k1 is the only key type signatures are produced with.
	Secp256k1
)

const (
	MsgBytes = 32
)

var (
	// ErrBadKeyType is returned when a key is not supported
	ErrBadKeyType    = errors.New("invalid or unsupported key type")
	ErrBadSign       = errors.New("invalid signature")
	ErrBadMsg        = errors.New("invalid message")
	ErrBadPrivateKey = errors.New("invalid private key")
	ErrBadPublickKey = errors.New("invalid public key")
)

// Key represents a crypto key that can be compared to another key
type Key interface {
	// Equals checks whether two keys are the same
	Equals(Key) bool

	// Raw returns the fixed-width encoding
	Raw() ([]byte, error)

	Type() KeyType
}

// Signer is the signing capability handed to kfrag generation, proxies and
// ledger clients.
type Signer interface {
	// Sign returns a 65-byte deterministic signature over blake3(msg)
	Sign(msg []byte) ([]byte, error)

	GetPublic() PubKey
}

// PrivKey represents a private key that can be used to generate a public key and sign data
type PrivKey interface {
	Key
	Signer

	Deserialize([]byte) error
}

// PubKey is a public key that can be used to verifiy data signed with the corresponding private key
type PubKey interface {
	Key

	// Verify that 'sig' is a signature of 'data'
	Verify(data []byte, sig []byte) (bool, error)

	// Uncompressed returns the 65-byte SEC1 form, used for addresses
	Uncompressed() ([]byte, error)

	Deserialize([]byte) error
}
