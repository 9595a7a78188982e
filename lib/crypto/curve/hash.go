package curve

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// HashToScalar derives a scalar from length-prefixed parts under a domain
// separation tag. 64 bytes of XOF output are reduced so the bias is negligible.
func HashToScalar(dst string, parts ...[]byte) Scalar {
	h := blake3.NewDeriveKey(dst)
	var l [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(l[:], uint32(len(p)))
		h.Write(l[:])
		h.Write(p)
	}

	var wide [64]byte
	d := h.Digest()
	d.Read(wide[:])
	return fromWide(&wide)
}

// HashToNonZeroScalar is HashToScalar with zero mapped to one.
func HashToNonZeroScalar(dst string, parts ...[]byte) Scalar {
	sc := HashToScalar(dst, parts...)
	if sc.IsZero() {
		return NewScalar(1)
	}
	return sc
}

// KDF derives an n-byte key from a shared point.
func KDF(p Point, n int) []byte {
	out := make([]byte, n)
	blake3.DeriveKey("go-mefs-pre/kdf", p.Bytes(), out)
	return out
}
