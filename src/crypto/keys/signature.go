package keys

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

// SignatureSize is the length of an encoded signature: R and S, 32 bytes each.
const SignatureSize = 64

// Signature is a fixed-size secp256k1 signature in R||S form.
type Signature [SignatureSize]byte

// Sign produces a deterministic signature of hash with the private key.
func Sign(priv *ecdsa.PrivateKey, hash []byte) (Signature, error) {
	var sig Signature

	bsig, err := (*btcec.PrivateKey)(priv).Sign(hash)
	if err != nil {
		return sig, err
	}

	bsig.R.FillBytes(sig[:32])
	bsig.S.FillBytes(sig[32:])

	return sig, nil
}

// Verify reports whether sig is a valid signature of hash by the owner of pub.
// It never panics; malformed inputs simply fail verification.
func Verify(pub *ecdsa.PublicKey, hash []byte, sig Signature) bool {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return false
	}
	r, s := sig.RS()
	if r.Sign() == 0 || s.Sign() == 0 {
		return false
	}
	bsig := btcec.Signature{R: r, S: s}
	return bsig.Verify(hash, (*btcec.PublicKey)(pub))
}

// RS splits the signature into its two integers.
func (s Signature) RS() (*big.Int, *big.Int) {
	return new(big.Int).SetBytes(s[:32]), new(big.Int).SetBytes(s[32:])
}

// SignatureFromBytes copies b into a Signature. It returns false if b has the
// wrong length.
func SignatureFromBytes(b []byte) (Signature, bool) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, false
	}
	copy(sig[:], b)
	return sig, true
}
