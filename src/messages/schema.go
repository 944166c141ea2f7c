package messages

import (
	"crypto/ecdsa"
	"fmt"
)

// Layout assigns consecutive offsets, relative to the start of the body, to an
// ordered list of fields.
type Layout struct {
	fields  []Field
	offsets []uint32
	size    uint32
}

// NewLayout computes the offsets of fields in declaration order.
func NewLayout(fields ...Field) Layout {
	l := Layout{
		fields:  fields,
		offsets: make([]uint32, len(fields)),
	}
	for i, f := range fields {
		l.offsets[i] = l.size
		l.size += f.FixedSize()
	}
	return l
}

// Size is the width of the fixed part of the body.
func (l Layout) Size() uint32 {
	return l.size
}

// Len is the number of fields.
func (l Layout) Len() int {
	return len(l.fields)
}

// Field returns the i-th field and its slot relative to the body.
func (l Layout) Field(i int) (Field, uint32, uint32) {
	f := l.fields[i]
	return f, l.offsets[i], l.offsets[i] + f.FixedSize()
}

// Schema binds a Layout to a message class and type.
type Schema struct {
	Name   string
	Class  uint16
	Type   uint16
	Layout Layout
}

// MinSize is the size of a message with every variable-size field empty.
func (s *Schema) MinSize() int {
	return HeaderSize + int(s.Layout.Size()) + SignatureSize
}

// Check validates the header of raw against the schema and every field of the
// body. It does not verify the signature.
func (s *Schema) Check(raw RawMessage) error {
	return s.check(raw.buf)
}

func (s *Schema) check(buf []byte) error {
	if err := checkEnvelope(buf); err != nil {
		return err
	}

	class, typ := le.Uint16(buf[classOffset:]), le.Uint16(buf[typeOffset:])
	if class != s.Class || typ != s.Type {
		return malformed("expected %s, got class %d type %d", s.Name, class, typ)
	}

	if len(buf) < s.MinSize() {
		return malformed("%s of %d bytes is shorter than %d", s.Name, len(buf), s.MinSize())
	}

	body := buf[:len(buf)-SignatureSize]
	floor := uint32(HeaderSize) + s.Layout.Size()

	for i := 0; i < s.Layout.Len(); i++ {
		f, from, to := s.Layout.Field(i)
		if err := checkField(body, f, HeaderSize+from, HeaderSize+to, floor); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}

	return s.checkNestedNetwork(body)
}

// checkNestedNetwork rejects nested messages written for another network than
// the enclosing one. buf must have passed the field checks.
func (s *Schema) checkNestedNetwork(buf []byte) error {
	networkID := buf[networkIDOffset]

	for i := 0; i < s.Layout.Len(); i++ {
		f, from, to := s.Layout.Field(i)

		var nested []RawMessage
		switch f.Kind {
		case KindMessage:
			nested = []RawMessage{readField(buf, f, HeaderSize+from, HeaderSize+to).(RawMessage)}
		case KindMessages:
			nested = readField(buf, f, HeaderSize+from, HeaderSize+to).([]RawMessage)
		default:
			continue
		}

		for j, m := range nested {
			if m.NetworkID() != networkID {
				return malformed("%s: field %q[%d]: network id %d inside a message for network %d",
					s.Name, f.Name, j, m.NetworkID(), networkID)
			}
		}
	}

	return nil
}

// Encode writes the header and the fields of the schema, in order, and signs
// the result with priv.
func (s *Schema) Encode(priv *ecdsa.PrivateKey, values ...interface{}) (RawMessage, error) {
	return s.EncodeNetwork(DefaultNetworkID, priv, values...)
}

// EncodeNetwork is Encode with an explicit network id.
func (s *Schema) EncodeNetwork(networkID uint8, priv *ecdsa.PrivateKey, values ...interface{}) (RawMessage, error) {
	if len(values) != s.Layout.Len() {
		return RawMessage{}, fmt.Errorf("%s: %d values for %d fields", s.Name, len(values), s.Layout.Len())
	}

	fixedEnd := HeaderSize + int(s.Layout.Size())
	buf := make([]byte, fixedEnd, fixedEnd+SignatureSize)
	writeHeader(buf, networkID, s.Class, s.Type)

	var err error
	for i, v := range values {
		f, from, to := s.Layout.Field(i)
		buf, err = writeField(buf, f, HeaderSize+from, HeaderSize+to, v)
		if err != nil {
			return RawMessage{}, fmt.Errorf("%s: %w", s.Name, err)
		}
	}

	if err := s.checkNestedNetwork(buf); err != nil {
		return RawMessage{}, err
	}

	return sign(buf, priv)
}

// Decode checks raw and reads every field, in order.
func (s *Schema) Decode(raw RawMessage) ([]interface{}, error) {
	if err := s.Check(raw); err != nil {
		return nil, err
	}
	return s.read(raw), nil
}

// read assumes raw passed Check.
func (s *Schema) read(raw RawMessage) []interface{} {
	values := make([]interface{}, s.Layout.Len())
	for i := range values {
		f, from, to := s.Layout.Field(i)
		values[i] = readField(raw.buf, f, HeaderSize+from, HeaderSize+to)
	}
	return values
}
