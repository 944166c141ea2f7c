package messages

import (
	"encoding/binary"

	"github.com/mosaicnetworks/bftnode/src/crypto/keys"
)

const (
	// HeaderSize is the length of the envelope header.
	HeaderSize = 10
	// SignatureSize is the length of the signature trailer.
	SignatureSize = keys.SignatureSize
	// SegmentSize is the inline width of a segment pointer.
	SegmentSize = 8
	// MinMessageSize is the size of an envelope with an empty body.
	MinMessageSize = HeaderSize + SignatureSize

	// ProtocolVersion is written in every header and required by Check.
	ProtocolVersion uint8 = 0
	// DefaultNetworkID identifies the network a message belongs to.
	DefaultNetworkID uint8 = 0
)

// ClassConsensus is the message class of the consensus catalogue.
const ClassConsensus uint16 = 0

// Consensus message types.
const (
	TypeConnect uint16 = iota
	TypeStatus
	TypePropose
	TypePrevote
	TypePrecommit
	TypeBlock
	TypeRequestBlock
)

// header layout
const (
	networkIDOffset = 0
	versionOffset   = 1
	classOffset     = 2
	typeOffset      = 4
	lengthOffset    = 6
)

var le = binary.LittleEndian

func putSegment(slot []byte, offset, length uint32) {
	le.PutUint32(slot[0:4], offset)
	le.PutUint32(slot[4:8], length)
}

func getSegment(slot []byte) (offset, length uint32) {
	return le.Uint32(slot[0:4]), le.Uint32(slot[4:8])
}

func writeHeader(buf []byte, networkID uint8, class, typ uint16) {
	buf[networkIDOffset] = networkID
	buf[versionOffset] = ProtocolVersion
	le.PutUint16(buf[classOffset:], class)
	le.PutUint16(buf[typeOffset:], typ)
}

// checkEnvelope validates the header of a standalone message buffer,
// signature trailer included.
func checkEnvelope(buf []byte) error {
	if len(buf) < MinMessageSize {
		return malformed("message of %d bytes is shorter than %d", len(buf), MinMessageSize)
	}
	if v := buf[versionOffset]; v != ProtocolVersion {
		return malformed("unsupported protocol version %d", v)
	}
	if n := le.Uint32(buf[lengthOffset:]); uint64(n) != uint64(len(buf)) {
		return malformed("payload length %d does not match buffer length %d", n, len(buf))
	}
	return nil
}
