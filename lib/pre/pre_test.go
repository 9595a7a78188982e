package pre

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/memoio/go-mefs-pre/lib/crypto/curve"
)

type party struct {
	delegating *SecretKey
	receiving  *SecretKey
	signing    *SecretKey
}

func newParty() *party {
	return &party{
		delegating: GenerateSecretKey(),
		receiving:  GenerateSecretKey(),
		signing:    GenerateSecretKey(),
	}
}

func (p *party) kfrags(t testing.TB, m, n int) []*VerifiedKeyFrag {
	kfrags, err := GenerateKFrags(p.delegating, p.receiving.PublicKey(), p.signing.Signer(), m, n, true, true)
	if err != nil {
		t.Fatal(err)
	}
	return kfrags
}

func (p *party) reencrypt(t testing.TB, c *Capsule, kfrags []*VerifiedKeyFrag, metadata []byte) []*VerifiedCapsuleFrag {
	out := make([]*VerifiedCapsuleFrag, 0, len(kfrags))
	for _, kf := range kfrags {
		vcf, err := ReEncrypt(c, kf, metadata)
		if err != nil {
			t.Fatal(err)
		}
		// what the receiver sees is the unverified form
		cf, err := CapsuleFragFromBytes(vcf.Bytes())
		if err != nil {
			t.Fatal(err)
		}
		checked, err := cf.Verify(c, p.signing.PublicKey(), p.delegating.PublicKey(), p.receiving.PublicKey(), metadata)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, checked)
	}
	return out
}

func TestTwoOfThree(t *testing.T) {
	p := newParty()
	capsule, secret := Encapsulate(p.delegating.PublicKey())

	kfrags := p.kfrags(t, 2, 3)
	cfrags := p.reencrypt(t, capsule, kfrags, nil)

	for _, pair := range [][2]int{{0, 2}, {0, 1}, {1, 2}} {
		got, err := Combine(p.receiving, p.delegating.PublicKey(), capsule,
			[]*VerifiedCapsuleFrag{cfrags[pair[0]], cfrags[pair[1]]}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, secret) {
			t.Fatalf("pair %v recovered a different secret", pair)
		}
	}

	orig, err := DecapsulateOriginal(p.delegating, capsule)
	require.NoError(t, err)
	require.Equal(t, secret, orig)
}

func TestAllSubsets(t *testing.T) {
	const m, n = 3, 5
	p := newParty()
	capsule, secret := Encapsulate(p.delegating.PublicKey())
	cfrags := p.reencrypt(t, capsule, p.kfrags(t, m, n), []byte("label"))

	for mask := 1; mask < 1<<n; mask++ {
		var subset []*VerifiedCapsuleFrag
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				subset = append(subset, cfrags[i])
			}
		}

		got, err := Combine(p.receiving, p.delegating.PublicKey(), capsule, subset, m)
		if len(subset) < m {
			require.ErrorIs(t, err, ErrInsufficientFragments)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, secret, got)
	}
}

func TestTooFewSharesNeverOpen(t *testing.T) {
	p := newParty()
	capsule, _ := Encapsulate(p.delegating.PublicKey())
	cfrags := p.reencrypt(t, capsule, p.kfrags(t, 3, 4), nil)

	// lying about the threshold does not produce a wrong secret
	_, err := Combine(p.receiving, p.delegating.PublicKey(), capsule, cfrags[:2], 2)
	require.ErrorIs(t, err, ErrInvalidCombination)
}

func TestInvalidThreshold(t *testing.T) {
	p := newParty()
	for _, c := range [][2]int{{0, 3}, {4, 3}, {0, 0}, {1, 0}} {
		_, err := GenerateKFrags(p.delegating, p.receiving.PublicKey(), p.signing.Signer(), c[0], c[1], false, false)
		require.ErrorIs(t, err, ErrInvalidThreshold, "m=%d n=%d", c[0], c[1])
	}

	kfrags := p.kfrags(t, 1, 1)
	capsule, secret := Encapsulate(p.delegating.PublicKey())
	got, err := Combine(p.receiving, p.delegating.PublicKey(), capsule, p.reencrypt(t, capsule, kfrags, nil), 1)
	require.NoError(t, err)
	require.Equal(t, secret, got)
}

func TestDuplicateAndMismatched(t *testing.T) {
	p := newParty()
	capsule, _ := Encapsulate(p.delegating.PublicKey())
	cfrags := p.reencrypt(t, capsule, p.kfrags(t, 2, 3), nil)

	_, err := Combine(p.receiving, p.delegating.PublicKey(), capsule, []*VerifiedCapsuleFrag{cfrags[0], cfrags[0]}, 2)
	require.ErrorIs(t, err, ErrDuplicateFragment)

	other := p.reencrypt(t, capsule, p.kfrags(t, 2, 3), nil)
	_, err = Combine(p.receiving, p.delegating.PublicKey(), capsule, []*VerifiedCapsuleFrag{cfrags[0], other[1]}, 2)
	require.ErrorIs(t, err, ErrMismatchedFragments)
}

func TestReEncryptDeterministic(t *testing.T) {
	p := newParty()
	capsule, _ := Encapsulate(p.delegating.PublicKey())
	kf := p.kfrags(t, 2, 3)[1]

	a, err := ReEncrypt(capsule, kf, []byte("m"))
	require.NoError(t, err)
	b, err := ReEncrypt(capsule, kf, []byte("m"))
	require.NoError(t, err)
	require.Equal(t, a.Bytes(), b.Bytes())

	c, err := ReEncrypt(capsule, kf, []byte("other"))
	require.NoError(t, err)
	require.NotEqual(t, a.CapsuleFrag().Proof.Bytes(), c.CapsuleFrag().Proof.Bytes())
	require.True(t, a.CapsuleFrag().E1.Equals(c.CapsuleFrag().E1))
}

func TestProofSoundness(t *testing.T) {
	p := newParty()
	kfrags := p.kfrags(t, 2, 3)
	verifying := p.signing.PublicKey()
	delegating := p.delegating.PublicKey()
	receiving := p.receiving.PublicKey()

	rapid.Check(t, func(rt *rapid.T) {
		capsule, _ := Encapsulate(delegating)
		kf := kfrags[rapid.IntRange(0, len(kfrags)-1).Draw(rt, "kfrag")]
		metadata := rapid.SliceOfN(rapid.Byte(), 0, 16).Draw(rt, "metadata")

		vcf, err := ReEncrypt(capsule, kf, metadata)
		if err != nil {
			rt.Fatal(err)
		}
		enc := vcf.Bytes()

		cf, err := CapsuleFragFromBytes(enc)
		if err != nil {
			rt.Fatal(err)
		}
		if _, err := cf.Verify(capsule, verifying, delegating, receiving, metadata); err != nil {
			rt.Fatalf("honest cfrag rejected: %s", err)
		}

		// any single flipped byte is caught by decoding or verification
		pos := rapid.IntRange(0, len(enc)-1).Draw(rt, "pos")
		bit := rapid.IntRange(0, 7).Draw(rt, "bit")
		bad := append([]byte{}, enc...)
		bad[pos] ^= 1 << uint(bit)
		if tampered, err := CapsuleFragFromBytes(bad); err == nil {
			if _, err := tampered.Verify(capsule, verifying, delegating, receiving, metadata); err == nil {
				rt.Fatalf("flipped bit %d of byte %d verified", bit, pos)
			}
		}
	})
}

func TestMissingKeys(t *testing.T) {
	p := newParty()
	capsule, _ := Encapsulate(p.delegating.PublicKey())
	kfrags := p.kfrags(t, 2, 3)
	cfrags := p.reencrypt(t, capsule, kfrags, nil)

	_, err := kfrags[0].KeyFrag().Verify(nil, p.delegating.PublicKey(), p.receiving.PublicKey())
	require.ErrorIs(t, err, ErrMissingKey)

	_, err = cfrags[0].CapsuleFrag().Verify(capsule, nil, p.delegating.PublicKey(), p.receiving.PublicKey(), nil)
	require.ErrorIs(t, err, ErrMissingKey)

	_, err = Combine(p.receiving, nil, capsule, cfrags, 2)
	require.ErrorIs(t, err, ErrMissingKey)
	_, err = Combine(nil, p.delegating.PublicKey(), capsule, cfrags, 2)
	require.ErrorIs(t, err, ErrMissingKey)
}

func TestTamperedE1(t *testing.T) {
	p := newParty()
	capsule, _ := Encapsulate(p.delegating.PublicKey())
	kf := p.kfrags(t, 2, 3)[0]

	vcf, err := ReEncrypt(capsule, kf, nil)
	require.NoError(t, err)
	cf := vcf.CapsuleFrag()
	cf.E1 = cf.E1.Add(curve.Generator())

	_, err = cf.Verify(capsule, p.signing.PublicKey(), p.delegating.PublicKey(), p.receiving.PublicKey(), nil)
	require.ErrorIs(t, err, ErrInvalidCorrectnessProof)

	var verr *VerificationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, kf.ID(), verr.KFragID)

	// wrong metadata or keys fail too
	cf = vcf.CapsuleFrag()
	_, err = cf.Verify(capsule, p.signing.PublicKey(), p.delegating.PublicKey(), p.receiving.PublicKey(), []byte("x"))
	require.ErrorIs(t, err, ErrInvalidCorrectnessProof)
	_, err = cf.Verify(capsule, p.receiving.PublicKey(), p.delegating.PublicKey(), p.receiving.PublicKey(), nil)
	require.ErrorIs(t, err, ErrInvalidKFragSignature)
}

func TestKeyFragVerify(t *testing.T) {
	p := newParty()
	kfrags, err := GenerateKFrags(p.delegating, p.receiving.PublicKey(), p.signing.Signer(), 2, 3, true, false)
	require.NoError(t, err)

	kf, err := KeyFragFromBytes(kfrags[0].Bytes())
	require.NoError(t, err)
	require.Equal(t, kfrags[0].Bytes(), kf.Bytes())

	_, err = kf.Verify(p.signing.PublicKey(), p.delegating.PublicKey(), nil)
	require.NoError(t, err)

	_, err = kf.Verify(p.signing.PublicKey(), nil, nil)
	require.ErrorIs(t, err, ErrMissingKey)

	_, err = kf.Verify(p.delegating.PublicKey(), p.delegating.PublicKey(), nil)
	require.ErrorIs(t, err, ErrInvalidKFragSignature)

	kf.Key = kf.Key.Add(curve.NewScalar(1))
	_, err = kf.Verify(p.signing.PublicKey(), p.delegating.PublicKey(), nil)
	require.ErrorIs(t, err, ErrInvalidKFragSignature)
}

func TestSerializationRoundTrip(t *testing.T) {
	p := newParty()
	capsule, _ := Encapsulate(p.delegating.PublicKey())
	require.Len(t, capsule.Bytes(), CapsuleSize)

	c2, err := CapsuleFromBytes(capsule.Bytes())
	require.NoError(t, err)
	require.True(t, capsule.Equals(c2))

	vcf, err := ReEncrypt(capsule, p.kfrags(t, 2, 3)[2], nil)
	require.NoError(t, err)
	require.Len(t, vcf.Bytes(), CapsuleFragSize)

	cf, err := CapsuleFragFromBytes(vcf.Bytes())
	require.NoError(t, err)
	require.Equal(t, vcf.Bytes(), cf.Bytes())

	proof := cf.Proof.Bytes()
	require.Len(t, proof, ProofSize)
	pr, err := CorrectnessProofFromBytes(proof)
	require.NoError(t, err)
	require.Equal(t, proof, pr.Bytes())

	pk, err := PublicKeyFromBytes(p.receiving.PublicKey().Bytes())
	require.NoError(t, err)
	require.True(t, pk.Equals(p.receiving.PublicKey()))

	sk, err := SecretKeyFromBytes(p.receiving.Bytes())
	require.NoError(t, err)
	require.True(t, sk.PublicKey().Equals(p.receiving.PublicKey()))

	vk, err := PublicKeyFromSigner(p.signing.Signer().GetPublic())
	require.NoError(t, err)
	require.True(t, vk.Equals(p.signing.PublicKey()))
}

func TestInvalidCapsule(t *testing.T) {
	p := newParty()
	capsule, _ := Encapsulate(p.delegating.PublicKey())

	bad := *capsule
	bad.S = bad.S.Add(curve.NewScalar(1))
	_, err := CapsuleFromBytes(bad.Bytes())
	require.ErrorIs(t, err, ErrInvalidCapsule)

	_, err = ReEncrypt(&bad, p.kfrags(t, 1, 1)[0], nil)
	require.ErrorIs(t, err, ErrInvalidCapsule)

	_, err = CapsuleFromBytes(capsule.Bytes()[:CapsuleSize-1])
	require.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestEncryptDecrypt(t *testing.T) {
	p := newParty()
	msg := []byte("the eagle has landed")

	capsule, ct, err := Encrypt(p.delegating.PublicKey(), msg)
	require.NoError(t, err)

	pt, err := DecryptOriginal(p.delegating, capsule, ct)
	require.NoError(t, err)
	require.Equal(t, msg, pt)

	cfrags := p.reencrypt(t, capsule, p.kfrags(t, 2, 3)[1:], nil)
	pt, err = DecryptReencrypted(p.receiving, p.delegating.PublicKey(), capsule, cfrags, 2, ct)
	require.NoError(t, err)
	require.Equal(t, msg, pt)

	_, err = DecryptOriginal(p.receiving, capsule, ct)
	require.Error(t, err)
}
