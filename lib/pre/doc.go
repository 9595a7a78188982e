// Package pre implements threshold proxy re-encryption over secp256k1.
//
// Alice encrypts to her own key with Encrypt. To share with Bob she runs
// GenerateKFrags, producing n fragments of a re-encryption key of which any m
// suffice. Each proxy holding a fragment turns the capsule into a
// CapsuleFrag with ReEncrypt; the fragment carries a proof that Bob checks
// with CapsuleFrag.Verify before Combine recovers the symmetric key. No
// proxy learns the plaintext or either secret key.
package pre
