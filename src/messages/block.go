package messages

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/mosaicnetworks/bftnode/src/crypto"
)

// Block bundles a committed block header with the precommits that justify it
// and the raw transactions it contains. The envelope is signed by whoever
// assembled it; each precommit carries its own validator signature.
type Block struct {
	raw          RawMessage
	header       BlockHeader
	precommits   []Precommit
	transactions []RawMessage
}

// NewBlock signs a block with the key of its assembler. The block is written
// for the network of its precommits, or DefaultNetworkID when there are none.
func NewBlock(header BlockHeader, precommits []Precommit, transactions []RawMessage, priv *ecdsa.PrivateKey) (Block, error) {
	networkID := DefaultNetworkID
	raws := make([]RawMessage, len(precommits))
	for i, p := range precommits {
		raws[i] = p.Raw()
		networkID = p.Raw().NetworkID()
	}
	if transactions == nil {
		transactions = []RawMessage{}
	}

	raw, err := BlockSchema.EncodeNetwork(networkID, priv, header, raws, transactions)
	if err != nil {
		return Block{}, err
	}
	return DecodeBlock(raw)
}

// DecodeBlock ...
func DecodeBlock(raw RawMessage) (Block, error) {
	v, err := BlockSchema.Decode(raw)
	if err != nil {
		return Block{}, err
	}

	rawPrecommits := v[1].([]RawMessage)
	precommits := make([]Precommit, len(rawPrecommits))
	for i, r := range rawPrecommits {
		p, err := DecodePrecommit(r)
		if err != nil {
			return Block{}, fmt.Errorf("Block: precommit %d: %w", i, err)
		}
		precommits[i] = p
	}

	return Block{
		raw:          raw,
		header:       v[0].(BlockHeader),
		precommits:   precommits,
		transactions: v[2].([]RawMessage),
	}, nil
}

// Raw ...
func (m Block) Raw() RawMessage { return m.raw }

// Header ...
func (m Block) Header() BlockHeader { return m.header }

// Height is the height of the block header.
func (m Block) Height() uint64 { return m.header.Height }

// Precommits returns the precommits, in order.
func (m Block) Precommits() []Precommit {
	res := make([]Precommit, len(m.precommits))
	copy(res, m.precommits)
	return res
}

// Transactions returns the raw transactions, in order.
func (m Block) Transactions() []RawMessage {
	res := make([]RawMessage, len(m.transactions))
	copy(res, m.transactions)
	return res
}

// Verify checks the signature of the envelope only.
func (m Block) Verify(pub *ecdsa.PublicKey) bool { return m.raw.Verify(pub) }

// VerifyPrecommits checks that every precommit is signed by the key that
// pubKey returns for its validator and that it commits to this block's
// height. It returns the index of the first invalid precommit, or -1.
func (m Block) VerifyPrecommits(pubKey func(validator uint32) *ecdsa.PublicKey) int {
	for i, p := range m.precommits {
		if p.Height() != m.header.Height || !p.Verify(pubKey(p.Validator())) {
			return i
		}
	}
	return -1
}

// TransactionsMatch reports whether the header's TxHash commits to the
// transactions carried by the block.
func (m Block) TransactionsMatch() bool {
	return TxHash(m.transactions) == m.header.TxHash
}

// TxHash is the SHA256 of the concatenated hashes of txs, in order.
func TxHash(txs []RawMessage) crypto.Hash {
	data := make([]byte, 0, len(txs)*crypto.HashSize)
	for _, tx := range txs {
		h := tx.Hash()
		data = append(data, h[:]...)
	}
	return crypto.SHA256(data)
}

// Hash is the hash of the block header.
func (m Block) Hash() crypto.Hash {
	return m.header.Hash()
}
