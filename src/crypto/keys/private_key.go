package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec"
)

// PrivateKeySize is the length of a raw private key.
const PrivateKeySize = 32

// Curve returns the secp256k1 curve.
func Curve() elliptic.Curve {
	return btcec.S256()
}

// GenerateECDSAKey creates a new secp256k1 key pair.
func GenerateECDSAKey() (*ecdsa.PrivateKey, error) {
	priv, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, err
	}
	return priv.ToECDSA(), nil
}

// DumpPrivateKey exports the 32-byte scalar of a private key.
func DumpPrivateKey(priv *ecdsa.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return (*btcec.PrivateKey)(priv).Serialize()
}

// ParsePrivateKey is the inverse of DumpPrivateKey. The scalar must lie in
// [1, N-1].
func ParsePrivateKey(d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) != PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length %d, need %d", len(d), PrivateKeySize)
	}

	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), d)

	switch {
	case priv.D.Sign() == 0:
		return nil, errors.New("invalid private key, zero")
	case priv.D.Cmp(btcec.S256().N) >= 0:
		return nil, errors.New("invalid private key, >=N")
	}

	return priv.ToECDSA(), nil
}

// PrivateKeyHex returns the hex form of DumpPrivateKey.
func PrivateKeyHex(key *ecdsa.PrivateKey) string {
	return hex.EncodeToString(DumpPrivateKey(key))
}
