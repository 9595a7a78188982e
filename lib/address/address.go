package address

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	b58 "github.com/mr-tron/base58/base58"
	"github.com/zeebo/blake3"

	"github.com/memoio/go-mefs-pre/lib/crypto/curve"
	"github.com/memoio/go-mefs-pre/lib/crypto/signature"
	"github.com/memoio/go-mefs-pre/lib/pre"
)

var (
	// ErrUnknownAddrType is returned when encountering an unknown prefix in an address.
	ErrUnknownAddrType = errors.New("unknown address type")
	// ErrInvalidPayload is returned when the payload is not a public key.
	ErrInvalidPayload = errors.New("invalid address payload")
	// ErrInvalidLength is returned when encountering an address of invalid length.
	ErrInvalidLength = errors.New("invalid address length")
	// ErrInvalidChecksum is returned when encountering an invalid address checksum.
	ErrInvalidChecksum = errors.New("invalid address checksum")
)

// UndefAddressString is the string used to represent an empty address when encoded to a string.
var UndefAddressString = "<empty>"

// ChecksumHashLength defines the hash length used for calculating address checksums.
const ChecksumHashLength = 4

// MaxAddressStringLength is the max length of an address encoded as a string,
// prefix included.
const MaxAddressStringLength = AddrPrefixLen + 72

// Address is the printable form of a public key: delegating, receiving,
// verifying or a proxy's stamp.
type Address struct{ str string }

// Undef is the type that represents an undefined address.
var Undef = Address{}

const AddrPrefix = "Me"
const AddrPrefixLen = 2

func (a Address) Len() int {
	return len(a.str)
}

// Bytes returns the compressed public key.
func (a Address) Bytes() []byte {
	return []byte(a.str)
}

// String returns an address encoded as a string.
func (a Address) String() string {
	return encode(a)
}

// Empty returns true if the address is empty, false otherwise.
func (a Address) Empty() bool {
	return a == Undef
}

// PublicKey parses the key back; it cannot fail for a decoded address.
func (a Address) PublicKey() (*pre.PublicKey, error) {
	return pre.PublicKeyFromBytes(a.Bytes())
}

// Account is the ledger account a stamp key signs messages for.
func (a Address) Account() (common.Address, error) {
	return signature.AddressFromPubByte(a.Bytes())
}

// UnmarshalJSON implements the json unmarshal interface.
func (a *Address) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	addr, err := decode(s)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// MarshalJSON implements the json marshal interface.
func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// NewAddress wraps a compressed secp256k1 public key.
func NewAddress(payload []byte) (Address, error) {
	if len(payload) != curve.PointSize {
		return Undef, ErrInvalidLength
	}
	if _, err := pre.PublicKeyFromBytes(payload); err != nil {
		return Undef, ErrInvalidPayload
	}
	return newAddress(payload), nil
}

func FromPublicKey(pk *pre.PublicKey) Address {
	return newAddress(pk.Bytes())
}

func newAddress(payload []byte) Address {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	return Address{string(buf)}
}

func NewFromString(s string) (Address, error) {
	return decode(s)
}

func encode(addr Address) string {
	if addr == Undef {
		return UndefAddressString
	}

	cksm := Checksum(addr.Bytes())
	return AddrPrefix + b58.Encode(append(addr.Bytes(), cksm...))
}

func decode(a string) (Address, error) {
	if len(a) == 0 || a == UndefAddressString {
		return Undef, ErrInvalidLength
	}
	if len(a) > MaxAddressStringLength || len(a) < 3 {
		return Undef, ErrInvalidLength
	}

	if a[0:AddrPrefixLen] != AddrPrefix {
		return Undef, ErrUnknownAddrType
	}

	payloadcksm, err := b58.Decode(a[AddrPrefixLen:])
	if err != nil {
		return Undef, err
	}

	if len(payloadcksm) < ChecksumHashLength {
		return Undef, ErrInvalidChecksum
	}

	payload := payloadcksm[:len(payloadcksm)-ChecksumHashLength]
	cksm := payloadcksm[len(payloadcksm)-ChecksumHashLength:]

	if !ValidateChecksum(payload, cksm) {
		return Undef, ErrInvalidChecksum
	}

	return NewAddress(payload)
}

// Checksum returns the checksum of `ingest`.
func Checksum(ingest []byte) []byte {
	res := blake3.Sum256(ingest)
	return res[:ChecksumHashLength]
}

func ValidateChecksum(ingest, expect []byte) bool {
	digest := Checksum(ingest)
	return bytes.Equal(digest, expect)
}
