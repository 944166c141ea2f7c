package messages

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"math"

	"github.com/mosaicnetworks/bftnode/src/crypto"
	"github.com/mosaicnetworks/bftnode/src/crypto/keys"
)

// RawMessage is a signed envelope whose header has been validated. It is
// immutable: the byte slices it hands out must not be modified, and values can
// be shared between goroutines.
type RawMessage struct {
	buf []byte
}

// NewRawMessage copies b and validates its header: minimum size, protocol
// version and declared length. Field-level validation is done by the Decode
// functions.
func NewRawMessage(b []byte) (RawMessage, error) {
	if err := checkEnvelope(b); err != nil {
		return RawMessage{}, err
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	return RawMessage{buf: buf}, nil
}

// sign completes the header of buf, appends the signature and wraps the
// result.
func sign(buf []byte, priv *ecdsa.PrivateKey) (RawMessage, error) {
	total := uint64(len(buf)) + SignatureSize
	if total > math.MaxUint32 {
		return RawMessage{}, fmt.Errorf("message of %d bytes is too large", total)
	}
	le.PutUint32(buf[lengthOffset:], uint32(total))

	hash := crypto.SHA256(buf)
	sig, err := keys.Sign(priv, hash[:])
	if err != nil {
		return RawMessage{}, err
	}

	return RawMessage{buf: append(buf, sig[:]...)}, nil
}

// IsZero reports whether m is the zero value.
func (m RawMessage) IsZero() bool {
	return len(m.buf) == 0
}

// Bytes returns the encoded message. The slice must not be modified.
func (m RawMessage) Bytes() []byte {
	return m.buf
}

// Len is the size of the encoded message.
func (m RawMessage) Len() int {
	return len(m.buf)
}

// NetworkID ...
func (m RawMessage) NetworkID() uint8 {
	if m.IsZero() {
		return 0
	}
	return m.buf[networkIDOffset]
}

// Version ...
func (m RawMessage) Version() uint8 {
	if m.IsZero() {
		return 0
	}
	return m.buf[versionOffset]
}

// Class ...
func (m RawMessage) Class() uint16 {
	if len(m.buf) < HeaderSize {
		return 0
	}
	return le.Uint16(m.buf[classOffset:])
}

// Type ...
func (m RawMessage) Type() uint16 {
	if len(m.buf) < HeaderSize {
		return 0
	}
	return le.Uint16(m.buf[typeOffset:])
}

// Body returns the bytes between the header and the signature.
func (m RawMessage) Body() []byte {
	if len(m.buf) < MinMessageSize {
		return nil
	}
	return m.buf[HeaderSize : len(m.buf)-SignatureSize]
}

// Signature returns the signature trailer.
func (m RawMessage) Signature() keys.Signature {
	var sig keys.Signature
	if len(m.buf) >= MinMessageSize {
		copy(sig[:], m.buf[len(m.buf)-SignatureSize:])
	}
	return sig
}

// Hash is the SHA256 digest of the whole message, signature included.
func (m RawMessage) Hash() crypto.Hash {
	return crypto.SHA256(m.buf)
}

// Equal compares the encoded bytes.
func (m RawMessage) Equal(o RawMessage) bool {
	return bytes.Equal(m.buf, o.buf)
}

// Verify checks the signature trailer against pub. It returns false for any
// buffer too short to carry a signature.
func (m RawMessage) Verify(pub *ecdsa.PublicKey) bool {
	if len(m.buf) < MinMessageSize || pub == nil {
		return false
	}
	signed := m.buf[:len(m.buf)-SignatureSize]
	hash := crypto.SHA256(signed)
	return keys.Verify(pub, hash[:], m.Signature())
}

func (m RawMessage) String() string {
	if s, ok := SchemaFor(m.Class(), m.Type()); ok {
		return fmt.Sprintf("%s(%d bytes, %s)", s.Name, len(m.buf), m.Hash().Hex()[:12])
	}
	return fmt.Sprintf("RawMessage(class %d, type %d, %d bytes)", m.Class(), m.Type(), len(m.buf))
}
