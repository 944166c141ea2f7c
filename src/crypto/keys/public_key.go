package keys

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/bftnode/src/common"
)

// PublicKeySize is the length of a compressed secp256k1 public key.
const PublicKeySize = btcec.PubKeyBytesLenCompressed

// ToPublicKey parses a compressed (or uncompressed) secp256k1 point. It returns
// an error if the bytes do not describe a point on the curve.
func ToPublicKey(pub []byte) (*ecdsa.PublicKey, error) {
	if len(pub) == 0 {
		return nil, fmt.Errorf("empty public key")
	}
	pk, err := btcec.ParsePubKey(pub, btcec.S256())
	if err != nil {
		return nil, err
	}
	return pk.ToECDSA(), nil
}

// FromPublicKey returns the 33-byte compressed form of the public key.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return (*btcec.PublicKey)(pub).SerializeCompressed()
}

// PublicKeyHex returns the hexadecimal reprentation of the compressed form of
// the public key
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return common.EncodeToString(FromPublicKey(pub))
}

// PublicKeyFromHex parses the output of PublicKeyHex.
func PublicKeyFromHex(s string) (*ecdsa.PublicKey, error) {
	b, err := common.DecodeFromString(s)
	if err != nil {
		return nil, err
	}
	return ToPublicKey(b)
}
