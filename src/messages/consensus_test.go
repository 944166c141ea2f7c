package messages

import (
	"crypto/ecdsa"
	"net"
	"testing"
	"time"

	"github.com/mosaicnetworks/bftnode/src/crypto"
	"github.com/mosaicnetworks/bftnode/src/crypto/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := keys.GenerateECDSAKey()
	require.NoError(t, err)
	return key
}

func hash(b ...byte) crypto.Hash {
	return crypto.SHA256(b)
}

// transmit simulates the network: the bytes are copied into a fresh
// RawMessage and decoded from scratch.
func transmit(t *testing.T, raw RawMessage) Message {
	t.Helper()
	m, err := DecodeBytes(append([]byte{}, raw.Bytes()...))
	require.NoError(t, err)
	return m
}

func TestConnect(t *testing.T) {
	addr, err := net.ResolveTCPAddr("tcp", "18.34.3.4:7777")
	require.NoError(t, err)
	now := time.Now()
	key := genKey(t)

	connect, err := NewConnect(&key.PublicKey, addr, now, key)
	require.NoError(t, err)

	c := transmit(t, connect.Raw()).(Connect)

	assert.Equal(t, keys.FromPublicKey(&key.PublicKey), keys.FromPublicKey(c.PubKey()))
	assert.Equal(t, addr.String(), c.Addr().String())
	assert.True(t, now.Equal(c.Time()))
	assert.True(t, c.Verify(&key.PublicKey))
	assert.True(t, c.VerifySelf())
}

func TestPropose(t *testing.T) {
	validator := uint32(123123)
	height := uint64(123123123)
	round := uint32(321321312)
	now := time.Now()
	prevHash := hash(1, 2, 3)
	txs := []crypto.Hash{hash(1), hash(2), hash(2)}
	key := genKey(t)

	propose, err := NewPropose(validator, height, round, now, prevHash, txs, key)
	require.NoError(t, err)

	p := transmit(t, propose.Raw()).(Propose)

	assert.Equal(t, validator, p.Validator())
	assert.Equal(t, height, p.Height())
	assert.Equal(t, round, p.Round())
	assert.True(t, now.Equal(p.Time()))
	assert.Equal(t, prevHash, p.PrevHash())
	require.Len(t, p.Transactions(), 3)
	assert.Equal(t, txs[0], p.Transactions()[0])
	assert.Equal(t, txs[1], p.Transactions()[1])
	assert.Equal(t, txs[2], p.Transactions()[2])
	assert.Equal(t, p.Transactions()[1], p.Transactions()[2])
	assert.True(t, p.Verify(&key.PublicKey))
}

func TestProposeWithoutTransactions(t *testing.T) {
	key := genKey(t)

	propose, err := NewPropose(1, 2, 3, time.Now(), hash(), nil, key)
	require.NoError(t, err)

	p := transmit(t, propose.Raw()).(Propose)
	assert.Empty(t, p.Transactions())
	assert.Equal(t, ProposeSchema.MinSize(), p.Raw().Len())
}

func TestPrevote(t *testing.T) {
	propose := hash(1, 2, 3)
	key := genKey(t)

	prevote, err := NewPrevote(123123, 123123123, 321321312, propose, 654345, key)
	require.NoError(t, err)

	p := transmit(t, prevote.Raw()).(Prevote)

	assert.Equal(t, uint32(123123), p.Validator())
	assert.Equal(t, uint64(123123123), p.Height())
	assert.Equal(t, uint32(321321312), p.Round())
	assert.Equal(t, propose, p.ProposeHash())
	assert.Equal(t, uint32(654345), p.LockedRound())
	assert.True(t, p.Verify(&key.PublicKey))
}

func TestPrecommit(t *testing.T) {
	propose := hash(1, 2, 3)
	block := hash(3, 2, 1)
	key := genKey(t)

	precommit, err := NewPrecommit(123123, 123123123, 321321312, propose, block, key)
	require.NoError(t, err)

	p := transmit(t, precommit.Raw()).(Precommit)

	assert.Equal(t, uint32(123123), p.Validator())
	assert.Equal(t, uint64(123123123), p.Height())
	assert.Equal(t, uint32(321321312), p.Round())
	assert.Equal(t, propose, p.ProposeHash())
	assert.Equal(t, block, p.BlockHash())
	assert.True(t, p.Verify(&key.PublicKey))
}

func TestStatus(t *testing.T) {
	last := hash(3, 2, 1)
	key := genKey(t)

	status, err := NewStatus(123123, 123123123, last, key)
	require.NoError(t, err)

	s := transmit(t, status.Raw()).(Status)

	assert.Equal(t, uint32(123123), s.Validator())
	assert.Equal(t, uint64(123123123), s.Height())
	assert.Equal(t, last, s.LastHash())
	assert.True(t, s.Verify(&key.PublicKey))
	assert.Equal(t, status, s)
}

func TestBlock(t *testing.T) {
	key := genKey(t)

	header := NewBlockHeader(500, time.Now(), hash(1), hash(2), hash(3))

	var precommits []Precommit
	for _, p := range []struct {
		validator     uint32
		height        uint64
		round         uint32
		propose, blck crypto.Hash
	}{
		{123, 15, 25, hash(1, 2, 3), hash(3, 2, 1)},
		{13, 25, 35, hash(4, 2, 3), hash(3, 3, 1)},
		{323, 15, 25, hash(1, 1, 3), hash(5, 2, 1)},
	} {
		pc, err := NewPrecommit(p.validator, p.height, p.round, p.propose, p.blck, key)
		require.NoError(t, err)
		precommits = append(precommits, pc)
	}

	var transactions []RawMessage
	for _, s := range []struct {
		validator uint32
		height    uint64
		last      crypto.Hash
	}{
		{1, 2, hash()},
		{2, 4, hash(2)},
		{4, 7, hash(3)},
	} {
		st, err := NewStatus(s.validator, s.height, s.last, key)
		require.NoError(t, err)
		transactions = append(transactions, st.Raw())
	}

	block, err := NewBlock(header, precommits, transactions, key)
	require.NoError(t, err)

	b := transmit(t, block.Raw()).(Block)

	assert.Equal(t, header, b.Header())
	assert.Equal(t, header.Hash(), b.Hash())
	assert.Equal(t, precommits, b.Precommits())
	assert.Equal(t, transactions, b.Transactions())
	assert.True(t, b.Verify(&key.PublicKey))

	// precommits are for other heights
	assert.Equal(t, 0, b.VerifyPrecommits(func(uint32) *ecdsa.PublicKey { return &key.PublicKey }))
}

func TestBlockVerifyPrecommits(t *testing.T) {
	k1, k2 := genKey(t), genKey(t)
	pubs := map[uint32]*ecdsa.PublicKey{1: &k1.PublicKey, 2: &k2.PublicKey}
	lookup := func(v uint32) *ecdsa.PublicKey { return pubs[v] }

	header := NewBlockHeader(7, time.Now(), hash(1), hash(2), hash(3))

	p1, err := NewPrecommit(1, 7, 0, hash(9), header.Hash(), k1)
	require.NoError(t, err)
	p2, err := NewPrecommit(2, 7, 0, hash(9), header.Hash(), k2)
	require.NoError(t, err)
	forged, err := NewPrecommit(2, 7, 0, hash(9), header.Hash(), k1)
	require.NoError(t, err)

	good, err := NewBlock(header, []Precommit{p1, p2}, nil, k1)
	require.NoError(t, err)
	assert.Equal(t, -1, good.VerifyPrecommits(lookup))
	assert.Empty(t, good.Transactions())

	bad, err := NewBlock(header, []Precommit{p1, forged}, nil, k1)
	require.NoError(t, err)
	assert.Equal(t, 1, bad.VerifyPrecommits(lookup))
}

func TestRequestBlock(t *testing.T) {
	key := genKey(t)
	now := time.Now()

	request, err := NewRequestBlock(&key.PublicKey, &key.PublicKey, now, 1, key)
	require.NoError(t, err)

	r := transmit(t, request.Raw()).(RequestBlock)

	assert.Equal(t, keys.FromPublicKey(&key.PublicKey), keys.FromPublicKey(r.From()))
	assert.Equal(t, keys.FromPublicKey(&key.PublicKey), keys.FromPublicKey(r.To()))
	assert.Equal(t, uint64(1), r.Height())
	assert.True(t, now.Equal(r.Time()))
	assert.True(t, r.Verify(&key.PublicKey))
	assert.True(t, r.VerifySelf())
}

func TestSignatureIntegrity(t *testing.T) {
	key := genKey(t)
	other := genKey(t)

	propose, err := NewPropose(1, 2, 3, time.Now(), hash(1), []crypto.Hash{hash(2)}, key)
	require.NoError(t, err)
	raw := propose.Raw()

	assert.True(t, raw.Verify(&key.PublicKey))
	assert.False(t, raw.Verify(&other.PublicKey))
	assert.False(t, raw.Verify(nil))

	signed := raw.Len() - SignatureSize
	for i := 0; i < signed; i++ {
		b := append([]byte{}, raw.Bytes()...)
		b[i] ^= 0x01

		mutated, err := NewRawMessage(b)
		if err != nil {
			// the header no longer describes the buffer
			continue
		}
		assert.False(t, mutated.Verify(&key.PublicKey), "mutation at byte %d", i)
	}

	// signature trailer
	b := append([]byte{}, raw.Bytes()...)
	b[len(b)-1] ^= 0x01
	mutated, err := NewRawMessage(b)
	require.NoError(t, err)
	assert.False(t, mutated.Verify(&key.PublicKey))
}

func TestSigningIsDeterministic(t *testing.T) {
	key := genKey(t)

	s1, err := NewStatus(1, 2, hash(3), key)
	require.NoError(t, err)
	s2, err := NewStatus(1, 2, hash(3), key)
	require.NoError(t, err)

	assert.True(t, s1.Raw().Equal(s2.Raw()))
	assert.Equal(t, s1.Raw().Hash(), s2.Raw().Hash())
}

func TestVerifyShortBuffers(t *testing.T) {
	key := genKey(t)

	assert.False(t, RawMessage{}.Verify(&key.PublicKey))
	assert.False(t, RawMessage{buf: make([]byte, MinMessageSize-1)}.Verify(&key.PublicKey))
	assert.NotPanics(t, func() {
		RawMessage{buf: []byte{1, 2}}.Verify(&key.PublicKey)
	})
}

func TestDecodeRejectsMalformed(t *testing.T) {
	key := genKey(t)

	propose, err := NewPropose(1, 2, 3, time.Now(), hash(1), []crypto.Hash{hash(2), hash(3)}, key)
	require.NoError(t, err)
	good := propose.Raw().Bytes()

	// truncated
	_, err = NewRawMessage(good[:len(good)-1])
	assertMalformed(t, err)

	// too short for any envelope
	_, err = NewRawMessage(good[:HeaderSize])
	assertMalformed(t, err)

	// unsupported version
	b := append([]byte{}, good...)
	b[versionOffset] = ProtocolVersion + 1
	_, err = NewRawMessage(b)
	assertMalformed(t, err)

	// transactions segment past the end of the body
	_, from, _ := ProposeSchema.Layout.Field(5)
	b = append([]byte{}, good...)
	slot := b[HeaderSize+from : HeaderSize+from+SegmentSize]
	offset, length := getSegment(slot)
	putSegment(slot, offset, length+crypto.HashSize)
	_, err = DecodeBytes(b)
	assertMalformed(t, err)

	// transactions length not a multiple of a hash
	b = append([]byte{}, good...)
	slot = b[HeaderSize+from : HeaderSize+from+SegmentSize]
	putSegment(slot, offset, length-1)
	_, err = DecodeBytes(b)
	assertMalformed(t, err)

	// envelope of the right type but without room for the body
	b = make([]byte, MinMessageSize)
	writeHeader(b, DefaultNetworkID, ClassConsensus, TypePropose)
	le.PutUint32(b[lengthOffset:], uint32(len(b)))
	_, err = DecodeBytes(b)
	assertMalformed(t, err)

	// unknown type
	le.PutUint16(b[typeOffset:], 99)
	_, err = DecodeBytes(b)
	assertMalformed(t, err)

	// wrong typed decoder
	raw, err := NewRawMessage(good)
	require.NoError(t, err)
	_, err = DecodeStatus(raw)
	assertMalformed(t, err)
}

func TestBlockRejectsForeignPrecommit(t *testing.T) {
	key := genKey(t)
	header := NewBlockHeader(1, time.Now(), hash(1), hash(2), hash(3))

	pc, err := NewPrecommit(1, 1, 0, hash(1), header.Hash(), key)
	require.NoError(t, err)
	st, err := NewStatus(1, 1, hash(1), key)
	require.NoError(t, err)

	block, err := NewBlock(header, []Precommit{pc}, []RawMessage{st.Raw()}, key)
	require.NoError(t, err)

	// swap the precommit and transaction segment pointers so that a Status
	// sits where a Precommit is expected
	b := append([]byte{}, block.Raw().Bytes()...)
	_, pFrom, _ := BlockSchema.Layout.Field(1)
	_, tFrom, _ := BlockSchema.Layout.Field(2)
	ps := append([]byte{}, b[HeaderSize+pFrom:HeaderSize+pFrom+SegmentSize]...)
	ts := append([]byte{}, b[HeaderSize+tFrom:HeaderSize+tFrom+SegmentSize]...)
	copy(b[HeaderSize+pFrom:], ts)
	copy(b[HeaderSize+tFrom:], ps)

	_, err = DecodeBytes(b)
	assertMalformed(t, err)
}

func TestBlockTransactionsMatch(t *testing.T) {
	key := genKey(t)

	var txs []RawMessage
	for i := uint32(0); i < 3; i++ {
		st, err := NewStatus(i, uint64(i), hash(byte(i)), key)
		require.NoError(t, err)
		txs = append(txs, st.Raw())
	}

	header := NewBlockHeader(2, time.Now(), hash(1), TxHash(txs), hash(3))

	block, err := NewBlock(header, nil, txs, key)
	require.NoError(t, err)
	assert.True(t, transmit(t, block.Raw()).(Block).TransactionsMatch())

	// same header, one transaction missing
	short, err := NewBlock(header, nil, txs[:2], key)
	require.NoError(t, err)
	assert.False(t, short.TransactionsMatch())

	// same transactions, other order
	swapped, err := NewBlock(header, nil, []RawMessage{txs[1], txs[0], txs[2]}, key)
	require.NoError(t, err)
	assert.False(t, swapped.TransactionsMatch())

	empty, err := NewBlock(NewBlockHeader(2, time.Now(), hash(1), TxHash(nil), hash(3)), nil, nil, key)
	require.NoError(t, err)
	assert.True(t, empty.TransactionsMatch())
	assert.Equal(t, crypto.SHA256(nil), TxHash(nil))
}

func TestBlockRejectsMessagesFromOtherNetwork(t *testing.T) {
	const otherNetwork = DefaultNetworkID + 7

	key := genKey(t)
	header := NewBlockHeader(1, time.Now(), hash(1), TxHash(nil), hash(3))

	raw, err := PrecommitSchema.EncodeNetwork(otherNetwork, key, uint32(1), uint64(1), uint32(0), hash(1), header.Hash())
	require.NoError(t, err)
	foreign, err := DecodePrecommit(raw)
	require.NoError(t, err)

	// a block follows the network of its precommits
	block, err := NewBlock(header, []Precommit{foreign}, nil, key)
	require.NoError(t, err)
	assert.Equal(t, uint8(otherNetwork), block.Raw().NetworkID())

	_, err = BlockSchema.Encode(key, header, []RawMessage{foreign.Raw()}, []RawMessage{})
	assertMalformed(t, err)

	// rewriting the outer network id does not smuggle the precommit in
	b := append([]byte{}, block.Raw().Bytes()...)
	b[0] = DefaultNetworkID
	_, err = DecodeBytes(b)
	assertMalformed(t, err)

	// transactions are held to the same rule
	local, err := NewPrecommit(1, 1, 0, hash(1), header.Hash(), key)
	require.NoError(t, err)
	st, err := StatusSchema.EncodeNetwork(otherNetwork, key, uint32(1), uint64(1), hash(1))
	require.NoError(t, err)
	_, err = NewBlock(header, []Precommit{local}, []RawMessage{st}, key)
	assertMalformed(t, err)
}
