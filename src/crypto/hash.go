package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashSize is the length in bytes of a SHA256 digest.
const HashSize = sha256.Size

// Hash is a SHA256 digest.
type Hash [HashSize]byte

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) Hash {
	return sha256.Sum256(data)
}

// HashFromBytes copies b into a Hash. b must be exactly HashSize bytes long.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash length %d, need %d", len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// Bytes returns a copy of the digest as a slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Hex returns the lowercase hexadecimal representation of the digest.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}
