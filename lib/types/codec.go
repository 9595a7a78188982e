package types

import (
	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
}

// Encode is canonical cbor, so equal values always hash the same.
func Encode(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

func Decode(b []byte, v interface{}) error {
	return cbor.Unmarshal(b, v)
}
