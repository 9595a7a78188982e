package pre

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	ErrInvalidThreshold        = errors.New("threshold must satisfy 1 <= m <= n")
	ErrInvalidCapsule          = errors.New("capsule verification failed")
	ErrInvalidKFragSignature   = errors.New("kfrag signature verification failed")
	ErrInvalidCorrectnessProof = errors.New("cfrag correctness proof verification failed")
	ErrInsufficientFragments   = errors.New("not enough capsule fragments")
	ErrDuplicateFragment       = errors.New("duplicate kfrag id among capsule fragments")
	ErrMismatchedFragments     = errors.New("capsule fragments come from different kfrag sets")
	ErrInvalidCombination      = errors.New("combined fragments do not open the capsule")
	ErrMissingKey              = errors.New("a required public key was not supplied")
	ErrInvalidEncoding         = errors.New("invalid encoding")
)

// VerificationError attributes a failed check to the kfrag that produced it.
type VerificationError struct {
	KFragID KFragID
	Err     error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("kfrag %s: %s", hex.EncodeToString(e.KFragID[:8]), e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}
