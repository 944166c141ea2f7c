package messages

import (
	"crypto/ecdsa"
	"fmt"
	"math"
	"net"
	"time"
	"unicode/utf8"

	"github.com/mosaicnetworks/bftnode/src/crypto"
	"github.com/mosaicnetworks/bftnode/src/crypto/keys"
)

// Kind enumerates the encodings a Field can have. The set is closed: every
// encode, check and read operation switches over it.
type Kind uint8

const (
	// KindBool is one byte, 0 or 1. Go type: bool.
	KindBool Kind = iota
	// KindUint8 is one byte. Go type: uint8.
	KindUint8
	// KindUint16 is two bytes. Go type: uint16.
	KindUint16
	// KindUint32 is four bytes. Go type: uint32.
	KindUint32
	// KindUint64 is eight bytes. Go type: uint64.
	KindUint64
	// KindInt64 is eight bytes. Go type: int64.
	KindInt64
	// KindHash is a 32-byte digest. Go type: crypto.Hash.
	KindHash
	// KindPublicKey is a 33-byte compressed secp256k1 point.
	// Go type: *ecdsa.PublicKey.
	KindPublicKey
	// KindTime is seconds (i64) and nanoseconds (u32). Go type: time.Time.
	KindTime
	// KindSocketAddr is an IPv4 address and a port (u16). Go type:
	// *net.TCPAddr.
	KindSocketAddr
	// KindBlockHeader is an inline block header. Go type: BlockHeader.
	KindBlockHeader

	// KindText is a segment holding UTF-8 text. Go type: string.
	KindText
	// KindBytes is a segment holding raw bytes. Go type: []byte.
	KindBytes
	// KindUint16s is a segment of packed u16. Go type: []uint16.
	KindUint16s
	// KindUint32s is a segment of packed u32. Go type: []uint32.
	KindUint32s
	// KindHashes is a segment of packed digests. Go type: []crypto.Hash.
	KindHashes
	// KindMessage is a segment holding a nested envelope. Go type: RawMessage.
	KindMessage
	// KindByteSeqs is a segment of segments of raw bytes. Go type: [][]byte.
	KindByteSeqs
	// KindMessages is a segment of segments holding nested envelopes.
	// Go type: []RawMessage.
	KindMessages
)

// TimeSize is the inline width of a KindTime field.
const TimeSize = 12

var kindNames = [...]string{
	"bool", "u8", "u16", "u32", "u64", "i64", "hash", "public_key", "time",
	"socket_addr", "block_header", "text", "bytes", "u16s", "u32s", "hashes",
	"message", "byte_seqs", "messages",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsSegment reports whether values of this kind live in the variable region.
func (k Kind) IsSegment() bool {
	return k >= KindText && k <= KindMessages
}

// FixedSize is the number of bytes the kind occupies in the fixed region. For
// segment kinds this is the size of the pointer, not of the payload.
func (k Kind) FixedSize() uint32 {
	switch k {
	case KindBool, KindUint8:
		return 1
	case KindUint16:
		return 2
	case KindUint32:
		return 4
	case KindUint64, KindInt64:
		return 8
	case KindHash:
		return crypto.HashSize
	case KindPublicKey:
		return keys.PublicKeySize
	case KindTime:
		return TimeSize
	case KindSocketAddr:
		return 6
	case KindBlockHeader:
		return BlockHeaderSize
	default:
		if k.IsSegment() {
			return SegmentSize
		}
		return 0
	}
}

// elemWidth is the width of one element of a packed array kind.
func (k Kind) elemWidth() uint32 {
	switch k {
	case KindUint16s:
		return 2
	case KindUint32s:
		return 4
	case KindHashes:
		return crypto.HashSize
	default:
		return 1
	}
}

// Field describes one member of a message layout.
type Field struct {
	Name string
	Kind Kind
	// Schema constrains the nested envelopes of KindMessage and KindMessages
	// fields. A nil Schema accepts any well-formed envelope.
	Schema *Schema
}

// FixedSize returns the inline width of the field.
func (f Field) FixedSize() uint32 {
	return f.Kind.FixedSize()
}

// Write encodes v into buf[from:to], appending any payload to the end of buf.
// It returns the grown buffer.
func (f Field) Write(buf []byte, from, to uint32, v interface{}) ([]byte, error) {
	return writeField(buf, f, from, to, v)
}

// Check validates buf[from:to] and, for segment kinds, the region it points
// to. The slot is treated as the end of the fixed region, so segments must
// point at or after to.
func (f Field) Check(buf []byte, from, to uint32) error {
	return checkField(buf, f, from, to, to)
}

// Read decodes the value stored at buf[from:to]. The buffer must have passed
// Check. Byte slices and nested messages alias buf.
func (f Field) Read(buf []byte, from, to uint32) interface{} {
	return readField(buf, f, from, to)
}

/*******************************************************************************
Check
*******************************************************************************/

// checkField validates one field. floor is the end of the fixed region that
// contains the field; segment payloads may not start before it.
func checkField(buf []byte, f Field, from, to, floor uint32) error {
	size := f.Kind.FixedSize()
	if size == 0 {
		return malformed("field %q: unknown kind %d", f.Name, f.Kind)
	}
	if to < from || to-from != size {
		return malformed("field %q: slot [%d, %d) does not match width %d", f.Name, from, to, size)
	}
	if uint64(to) > uint64(len(buf)) {
		return malformed("field %q: slot [%d, %d) beyond buffer of %d bytes", f.Name, from, to, len(buf))
	}

	slot := buf[from:to]

	switch f.Kind {
	case KindBool:
		if slot[0] > 1 {
			return malformed("field %q: invalid bool %d", f.Name, slot[0])
		}
	case KindTime:
		return checkTime(f.Name, slot)
	case KindBlockHeader:
		return checkTime(f.Name, slot[blockHeaderTimeOffset:blockHeaderTimeOffset+TimeSize])
	case KindPublicKey:
		if _, err := keys.ToPublicKey(slot); err != nil {
			return malformed("field %q: invalid public key: %v", f.Name, err)
		}
	case KindUint8, KindUint16, KindUint32, KindUint64, KindInt64, KindHash, KindSocketAddr:
	default:
		return checkSegment(buf, f, slot, floor)
	}

	return nil
}

func checkTime(name string, slot []byte) error {
	if nanos := le.Uint32(slot[8:12]); nanos >= uint32(time.Second) {
		return malformed("field %q: nanoseconds %d out of range", name, nanos)
	}
	return nil
}

// segmentBounds validates a segment pointer against the buffer. A zero-length
// segment is valid wherever it points.
func segmentBounds(buf []byte, slot []byte, floor uint32, name string) (uint32, uint32, error) {
	offset, length := getSegment(slot)
	if length == 0 {
		return offset, 0, nil
	}
	if offset < floor {
		return 0, 0, malformed("field %q: segment offset %d overlaps fixed region ending at %d", name, offset, floor)
	}
	if uint64(offset)+uint64(length) > uint64(len(buf)) {
		return 0, 0, malformed("field %q: segment [%d, +%d) beyond buffer of %d bytes", name, offset, length, len(buf))
	}
	return offset, length, nil
}

func checkSegment(buf []byte, f Field, slot []byte, floor uint32) error {
	offset, length, err := segmentBounds(buf, slot, floor, f.Name)
	if err != nil {
		return err
	}
	if length == 0 {
		if f.Kind == KindMessage {
			return malformed("field %q: empty nested message", f.Name)
		}
		return nil
	}

	data := buf[offset : offset+length]

	switch f.Kind {
	case KindBytes:
	case KindText:
		if !utf8.Valid(data) {
			return malformed("field %q: invalid utf-8", f.Name)
		}
	case KindUint16s, KindUint32s, KindHashes:
		if w := f.Kind.elemWidth(); length%w != 0 {
			return malformed("field %q: length %d is not a multiple of %d", f.Name, length, w)
		}
	case KindMessage:
		if err := checkNested(data, f.Schema); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	case KindByteSeqs, KindMessages:
		return checkSequence(buf, f, offset, length)
	}

	return nil
}

// checkSequence validates a table of inner segment pointers starting at
// offset and every element it points to.
func checkSequence(buf []byte, f Field, offset, length uint32) error {
	if length%SegmentSize != 0 {
		return malformed("field %q: pointer table of %d bytes", f.Name, length)
	}
	tableEnd := offset + length
	for p := offset; p < tableEnd; p += SegmentSize {
		i := (p - offset) / SegmentSize
		name := fmt.Sprintf("%s[%d]", f.Name, i)

		eOff, eLen, err := segmentBounds(buf, buf[p:p+SegmentSize], tableEnd, name)
		if err != nil {
			return err
		}
		if f.Kind != KindMessages {
			continue
		}
		if eLen == 0 {
			return malformed("field %q: empty nested message", name)
		}
		if err := checkNested(buf[eOff:eOff+eLen], f.Schema); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}

func checkNested(data []byte, schema *Schema) error {
	if schema == nil {
		return checkEnvelope(data)
	}
	return schema.check(data)
}

/*******************************************************************************
Write
*******************************************************************************/

func wrongType(f Field, v interface{}) error {
	return fmt.Errorf("field %q of kind %s cannot hold %T", f.Name, f.Kind, v)
}

func writeField(buf []byte, f Field, from, to uint32, v interface{}) ([]byte, error) {
	size := f.Kind.FixedSize()
	if size == 0 || to < from || to-from != size || uint64(to) > uint64(len(buf)) {
		return buf, fmt.Errorf("field %q: invalid slot [%d, %d) in buffer of %d bytes", f.Name, from, to, len(buf))
	}

	if f.Kind.IsSegment() {
		return writeSegment(buf, f, from, to, v)
	}

	slot := buf[from:to]

	switch f.Kind {
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return buf, wrongType(f, v)
		}
		slot[0] = 0
		if b {
			slot[0] = 1
		}
	case KindUint8:
		n, ok := v.(uint8)
		if !ok {
			return buf, wrongType(f, v)
		}
		slot[0] = n
	case KindUint16:
		n, ok := v.(uint16)
		if !ok {
			return buf, wrongType(f, v)
		}
		le.PutUint16(slot, n)
	case KindUint32:
		n, ok := v.(uint32)
		if !ok {
			return buf, wrongType(f, v)
		}
		le.PutUint32(slot, n)
	case KindUint64:
		n, ok := v.(uint64)
		if !ok {
			return buf, wrongType(f, v)
		}
		le.PutUint64(slot, n)
	case KindInt64:
		n, ok := v.(int64)
		if !ok {
			return buf, wrongType(f, v)
		}
		le.PutUint64(slot, uint64(n))
	case KindHash:
		h, ok := v.(crypto.Hash)
		if !ok {
			return buf, wrongType(f, v)
		}
		copy(slot, h[:])
	case KindPublicKey:
		pub, ok := v.(*ecdsa.PublicKey)
		if !ok {
			return buf, wrongType(f, v)
		}
		raw := keys.FromPublicKey(pub)
		if len(raw) != keys.PublicKeySize {
			return buf, fmt.Errorf("field %q: invalid public key", f.Name)
		}
		copy(slot, raw)
	case KindTime:
		t, ok := v.(time.Time)
		if !ok {
			return buf, wrongType(f, v)
		}
		putTime(slot, t)
	case KindSocketAddr:
		addr, ok := v.(*net.TCPAddr)
		if !ok || addr == nil {
			return buf, wrongType(f, v)
		}
		ip4 := addr.IP.To4()
		if ip4 == nil || addr.Port < 0 || addr.Port > math.MaxUint16 {
			return buf, fmt.Errorf("field %q: %v is not an IPv4 socket address", f.Name, addr)
		}
		copy(slot[0:4], ip4)
		le.PutUint16(slot[4:6], uint16(addr.Port))
	case KindBlockHeader:
		h, ok := v.(BlockHeader)
		if !ok {
			return buf, wrongType(f, v)
		}
		h.encode(slot)
	}

	return buf, nil
}

func putTime(slot []byte, t time.Time) {
	le.PutUint64(slot[0:8], uint64(t.Unix()))
	le.PutUint32(slot[8:12], uint32(t.Nanosecond()))
}

func getTime(slot []byte) time.Time {
	return time.Unix(int64(le.Uint64(slot[0:8])), int64(le.Uint32(slot[8:12]))).UTC()
}

// appendSegment appends payload to buf and returns the grown buffer and the
// offset of the payload.
func appendSegment(buf []byte, name string, payload []byte) ([]byte, uint32, error) {
	if uint64(len(buf))+uint64(len(payload)) > math.MaxUint32 {
		return buf, 0, fmt.Errorf("field %q: message exceeds %d bytes", name, uint64(math.MaxUint32))
	}
	offset := uint32(len(buf))
	return append(buf, payload...), offset, nil
}

func writeSegment(buf []byte, f Field, from, to uint32, v interface{}) ([]byte, error) {
	if f.Kind == KindByteSeqs || f.Kind == KindMessages {
		return writeSequence(buf, f, from, to, v)
	}

	var payload []byte

	switch f.Kind {
	case KindText:
		s, ok := v.(string)
		if !ok {
			return buf, wrongType(f, v)
		}
		payload = []byte(s)
	case KindBytes:
		b, ok := v.([]byte)
		if !ok {
			return buf, wrongType(f, v)
		}
		payload = b
	case KindUint16s:
		ns, ok := v.([]uint16)
		if !ok {
			return buf, wrongType(f, v)
		}
		payload = make([]byte, 2*len(ns))
		for i, n := range ns {
			le.PutUint16(payload[2*i:], n)
		}
	case KindUint32s:
		ns, ok := v.([]uint32)
		if !ok {
			return buf, wrongType(f, v)
		}
		payload = make([]byte, 4*len(ns))
		for i, n := range ns {
			le.PutUint32(payload[4*i:], n)
		}
	case KindHashes:
		hs, ok := v.([]crypto.Hash)
		if !ok {
			return buf, wrongType(f, v)
		}
		payload = make([]byte, 0, crypto.HashSize*len(hs))
		for _, h := range hs {
			payload = append(payload, h[:]...)
		}
	case KindMessage:
		raw, ok := v.(RawMessage)
		if !ok {
			return buf, wrongType(f, v)
		}
		if err := matchSchema(f, raw); err != nil {
			return buf, err
		}
		payload = raw.buf
	}

	buf, offset, err := appendSegment(buf, f.Name, payload)
	if err != nil {
		return buf, err
	}
	putSegment(buf[from:to], offset, uint32(len(payload)))

	return buf, nil
}

// writeSequence appends a table of inner pointers followed by the payload of
// every element, in order.
func writeSequence(buf []byte, f Field, from, to uint32, v interface{}) ([]byte, error) {
	var elems [][]byte

	switch f.Kind {
	case KindByteSeqs:
		bs, ok := v.([][]byte)
		if !ok {
			return buf, wrongType(f, v)
		}
		elems = bs
	case KindMessages:
		raws, ok := v.([]RawMessage)
		if !ok {
			return buf, wrongType(f, v)
		}
		elems = make([][]byte, len(raws))
		for i, raw := range raws {
			if err := matchSchema(f, raw); err != nil {
				return buf, err
			}
			elems[i] = raw.buf
		}
	}

	buf, tableOffset, err := appendSegment(buf, f.Name, make([]byte, SegmentSize*len(elems)))
	if err != nil {
		return buf, err
	}
	putSegment(buf[from:to], tableOffset, uint32(SegmentSize*len(elems)))

	for i, e := range elems {
		var offset uint32
		buf, offset, err = appendSegment(buf, f.Name, e)
		if err != nil {
			return buf, err
		}
		p := tableOffset + uint32(i*SegmentSize)
		putSegment(buf[p:p+SegmentSize], offset, uint32(len(e)))
	}

	return buf, nil
}

func matchSchema(f Field, raw RawMessage) error {
	if len(raw.buf) == 0 {
		return fmt.Errorf("field %q: empty message", f.Name)
	}
	if f.Schema == nil {
		return nil
	}
	if raw.Class() != f.Schema.Class || raw.Type() != f.Schema.Type {
		return fmt.Errorf("field %q: expected %s, got class %d type %d",
			f.Name, f.Schema.Name, raw.Class(), raw.Type())
	}
	return nil
}

/*******************************************************************************
Read
*******************************************************************************/

func readField(buf []byte, f Field, from, to uint32) interface{} {
	slot := buf[from:to]

	switch f.Kind {
	case KindBool:
		return slot[0] == 1
	case KindUint8:
		return slot[0]
	case KindUint16:
		return le.Uint16(slot)
	case KindUint32:
		return le.Uint32(slot)
	case KindUint64:
		return le.Uint64(slot)
	case KindInt64:
		return int64(le.Uint64(slot))
	case KindHash:
		var h crypto.Hash
		copy(h[:], slot)
		return h
	case KindPublicKey:
		pub, _ := keys.ToPublicKey(slot)
		return pub
	case KindTime:
		return getTime(slot)
	case KindSocketAddr:
		return &net.TCPAddr{
			IP:   net.IPv4(slot[0], slot[1], slot[2], slot[3]).To4(),
			Port: int(le.Uint16(slot[4:6])),
		}
	case KindBlockHeader:
		return decodeBlockHeader(slot)
	}

	data := segmentData(buf, slot)

	switch f.Kind {
	case KindText:
		return string(data)
	case KindBytes:
		return data
	case KindUint16s:
		ns := make([]uint16, len(data)/2)
		for i := range ns {
			ns[i] = le.Uint16(data[2*i:])
		}
		return ns
	case KindUint32s:
		ns := make([]uint32, len(data)/4)
		for i := range ns {
			ns[i] = le.Uint32(data[4*i:])
		}
		return ns
	case KindHashes:
		hs := make([]crypto.Hash, len(data)/crypto.HashSize)
		for i := range hs {
			copy(hs[i][:], data[i*crypto.HashSize:])
		}
		return hs
	case KindMessage:
		return RawMessage{buf: data}
	case KindByteSeqs:
		return readSequence(buf, data)
	case KindMessages:
		elems := readSequence(buf, data)
		raws := make([]RawMessage, len(elems))
		for i, e := range elems {
			raws[i] = RawMessage{buf: e}
		}
		return raws
	}

	return nil
}

func segmentData(buf []byte, slot []byte) []byte {
	offset, length := getSegment(slot)
	if length == 0 {
		return []byte{}
	}
	return buf[offset : offset+length : offset+length]
}

func readSequence(buf []byte, table []byte) [][]byte {
	elems := make([][]byte, len(table)/SegmentSize)
	for i := range elems {
		elems[i] = segmentData(buf, table[i*SegmentSize:(i+1)*SegmentSize])
	}
	return elems
}
