package messages

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"github.com/mosaicnetworks/bftnode/src/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ugorji/go/codec"
)

func TestSummary(t *testing.T) {
	key := genKey(t)
	last := hash(7)

	status, err := NewStatus(42, 1000, last, key)
	require.NoError(t, err)

	s, err := Summarize(status.Raw())
	require.NoError(t, err)

	assert.Equal(t, "Status", s.Name)
	assert.Equal(t, TypeStatus, s.Type)
	assert.Equal(t, status.Raw().Len(), s.Length)
	assert.Equal(t, uint32(42), s.Fields["validator"])
	assert.Equal(t, last.Hex(), s.Fields["last_hash"])

	out, err := s.Marshal()
	require.NoError(t, err)

	var decoded map[string]interface{}
	jh := &codec.JsonHandle{}
	jh.MapType = reflect.TypeOf(map[string]interface{}(nil))
	dec := codec.NewDecoder(bytes.NewReader(out), jh)
	require.NoError(t, dec.Decode(&decoded))

	assert.Equal(t, "Status", decoded["name"])
	assert.Equal(t, status.Raw().Hash().Hex(), decoded["hash"])
	fields, ok := decoded["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, last.Hex(), fields["last_hash"])
}

func TestSummaryOfBlock(t *testing.T) {
	key := genKey(t)
	header := NewBlockHeader(3, time.Now(), hash(1), hash(2), hash(3))

	pc, err := NewPrecommit(1, 3, 0, hash(4), header.Hash(), key)
	require.NoError(t, err)

	block, err := NewBlock(header, []Precommit{pc}, nil, key)
	require.NoError(t, err)

	s, err := Summarize(block.Raw())
	require.NoError(t, err)

	precommits, ok := s.Fields["precommits"].([]interface{})
	require.True(t, ok)
	require.Len(t, precommits, 1)
	assert.Equal(t, "Precommit", precommits[0].(*Summary).Name)

	out, err := s.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), header.StateHash.Hex())
}

func TestSummaryOfUnknownType(t *testing.T) {
	key := genKey(t)

	schema := &Schema{
		Name:   "Custom",
		Class:  9,
		Type:   1,
		Layout: NewLayout(Field{Name: "note", Kind: KindText}),
	}
	raw, err := schema.Encode(key, "hello")
	require.NoError(t, err)

	s, err := Summarize(raw)
	require.NoError(t, err)
	assert.Equal(t, "Unknown", s.Name)
	assert.Nil(t, s.Fields)

	_, err = Decode(raw)
	assertMalformed(t, err)
}

func TestCustomSchemaRoundTrip(t *testing.T) {
	key := genKey(t)
	inner, err := StatusSchema.EncodeNetwork(17, key, uint32(5), uint64(6), hash(7))
	require.NoError(t, err)

	schema := &Schema{
		Name:  "Everything",
		Class: 3,
		Type:  3,
		Layout: NewLayout(
			Field{Name: "flag", Kind: KindBool},
			Field{Name: "small", Kind: KindUint8},
			Field{Name: "port", Kind: KindUint16},
			Field{Name: "offset", Kind: KindInt64},
			Field{Name: "name", Kind: KindText},
			Field{Name: "blob", Kind: KindBytes},
			Field{Name: "shorts", Kind: KindUint16s},
			Field{Name: "chunks", Kind: KindByteSeqs},
			Field{Name: "inner", Kind: KindMessage, Schema: StatusSchema},
			Field{Name: "hashes", Kind: KindHashes},
		),
	}

	values := []interface{}{
		true,
		uint8(9),
		uint16(8080),
		int64(-7),
		"naïve",
		[]byte{0xde, 0xad},
		[]uint16{1, 2, 3},
		[][]byte{{1}, {2, 3}},
		inner,
		[]crypto.Hash{hash(1)},
	}

	raw, err := schema.EncodeNetwork(17, key, values...)
	require.NoError(t, err)
	assert.Equal(t, uint8(17), raw.NetworkID())
	assert.Equal(t, ProtocolVersion, raw.Version())
	assert.True(t, raw.Verify(&key.PublicKey))

	got, err := schema.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, values, got)

	_, err = schema.Encode(key, values[:3]...)
	assert.Error(t, err)
}
