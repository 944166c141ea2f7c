package messages

import (
	"time"

	"github.com/mosaicnetworks/bftnode/src/crypto"
)

// BlockHeaderSize is the inline width of a KindBlockHeader field.
const BlockHeaderSize = 8 + TimeSize + 3*crypto.HashSize

const blockHeaderTimeOffset = 8

// BlockHeader is the content of a committed block.
type BlockHeader struct {
	Height    uint64
	Time      time.Time
	PrevHash  crypto.Hash
	TxHash    crypto.Hash
	StateHash crypto.Hash
}

// NewBlockHeader returns a BlockHeader whose time is normalised to what the
// wire encoding preserves.
func NewBlockHeader(height uint64, t time.Time, prevHash, txHash, stateHash crypto.Hash) BlockHeader {
	return BlockHeader{
		Height:    height,
		Time:      time.Unix(t.Unix(), int64(t.Nanosecond())).UTC(),
		PrevHash:  prevHash,
		TxHash:    txHash,
		StateHash: stateHash,
	}
}

func (h BlockHeader) encode(b []byte) {
	le.PutUint64(b[0:8], h.Height)
	putTime(b[blockHeaderTimeOffset:blockHeaderTimeOffset+TimeSize], h.Time)
	o := blockHeaderTimeOffset + TimeSize
	copy(b[o:o+crypto.HashSize], h.PrevHash[:])
	o += crypto.HashSize
	copy(b[o:o+crypto.HashSize], h.TxHash[:])
	o += crypto.HashSize
	copy(b[o:o+crypto.HashSize], h.StateHash[:])
}

func decodeBlockHeader(b []byte) BlockHeader {
	var h BlockHeader
	h.Height = le.Uint64(b[0:8])
	h.Time = getTime(b[blockHeaderTimeOffset : blockHeaderTimeOffset+TimeSize])
	o := blockHeaderTimeOffset + TimeSize
	copy(h.PrevHash[:], b[o:o+crypto.HashSize])
	o += crypto.HashSize
	copy(h.TxHash[:], b[o:o+crypto.HashSize])
	o += crypto.HashSize
	copy(h.StateHash[:], b[o:o+crypto.HashSize])
	return h
}

// Hash is the SHA256 digest of the encoded header.
func (h BlockHeader) Hash() crypto.Hash {
	b := make([]byte, BlockHeaderSize)
	h.encode(b)
	return crypto.SHA256(b)
}
