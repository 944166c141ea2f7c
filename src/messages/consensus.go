package messages

import (
	"crypto/ecdsa"
	"net"
	"time"

	"github.com/mosaicnetworks/bftnode/src/crypto"
)

// Message is a typed, decoded view of a RawMessage.
type Message interface {
	Raw() RawMessage
	Verify(pub *ecdsa.PublicKey) bool
}

var (
	// ConnectSchema ...
	ConnectSchema = &Schema{
		Name:  "Connect",
		Class: ClassConsensus,
		Type:  TypeConnect,
		Layout: NewLayout(
			Field{Name: "pub_key", Kind: KindPublicKey},
			Field{Name: "addr", Kind: KindSocketAddr},
			Field{Name: "time", Kind: KindTime},
		),
	}

	// StatusSchema ...
	StatusSchema = &Schema{
		Name:  "Status",
		Class: ClassConsensus,
		Type:  TypeStatus,
		Layout: NewLayout(
			Field{Name: "validator", Kind: KindUint32},
			Field{Name: "height", Kind: KindUint64},
			Field{Name: "last_hash", Kind: KindHash},
		),
	}

	// ProposeSchema ...
	ProposeSchema = &Schema{
		Name:  "Propose",
		Class: ClassConsensus,
		Type:  TypePropose,
		Layout: NewLayout(
			Field{Name: "validator", Kind: KindUint32},
			Field{Name: "height", Kind: KindUint64},
			Field{Name: "round", Kind: KindUint32},
			Field{Name: "time", Kind: KindTime},
			Field{Name: "prev_hash", Kind: KindHash},
			Field{Name: "transactions", Kind: KindHashes},
		),
	}

	// PrevoteSchema ...
	PrevoteSchema = &Schema{
		Name:  "Prevote",
		Class: ClassConsensus,
		Type:  TypePrevote,
		Layout: NewLayout(
			Field{Name: "validator", Kind: KindUint32},
			Field{Name: "height", Kind: KindUint64},
			Field{Name: "round", Kind: KindUint32},
			Field{Name: "propose_hash", Kind: KindHash},
			Field{Name: "locked_round", Kind: KindUint32},
		),
	}

	// PrecommitSchema ...
	PrecommitSchema = &Schema{
		Name:  "Precommit",
		Class: ClassConsensus,
		Type:  TypePrecommit,
		Layout: NewLayout(
			Field{Name: "validator", Kind: KindUint32},
			Field{Name: "height", Kind: KindUint64},
			Field{Name: "round", Kind: KindUint32},
			Field{Name: "propose_hash", Kind: KindHash},
			Field{Name: "block_hash", Kind: KindHash},
		),
	}

	// BlockSchema carries precommits that must themselves be Precommit
	// envelopes, and transactions of any type.
	BlockSchema = &Schema{
		Name:  "Block",
		Class: ClassConsensus,
		Type:  TypeBlock,
		Layout: NewLayout(
			Field{Name: "block", Kind: KindBlockHeader},
			Field{Name: "precommits", Kind: KindMessages, Schema: PrecommitSchema},
			Field{Name: "transactions", Kind: KindMessages},
		),
	}

	// RequestBlockSchema ...
	RequestBlockSchema = &Schema{
		Name:  "RequestBlock",
		Class: ClassConsensus,
		Type:  TypeRequestBlock,
		Layout: NewLayout(
			Field{Name: "from", Kind: KindPublicKey},
			Field{Name: "to", Kind: KindPublicKey},
			Field{Name: "time", Kind: KindTime},
			Field{Name: "height", Kind: KindUint64},
		),
	}
)

var consensusSchemas = map[uint16]*Schema{
	TypeConnect:      ConnectSchema,
	TypeStatus:       StatusSchema,
	TypePropose:      ProposeSchema,
	TypePrevote:      PrevoteSchema,
	TypePrecommit:    PrecommitSchema,
	TypeBlock:        BlockSchema,
	TypeRequestBlock: RequestBlockSchema,
}

// SchemaFor returns the schema registered for a class and type.
func SchemaFor(class, typ uint16) (*Schema, bool) {
	if class != ClassConsensus {
		return nil, false
	}
	s, ok := consensusSchemas[typ]
	return s, ok
}

/*******************************************************************************
Connect
*******************************************************************************/

// Connect announces the public key and listening address of a node.
type Connect struct {
	raw    RawMessage
	pubKey *ecdsa.PublicKey
	addr   *net.TCPAddr
	time   time.Time
}

// NewConnect ...
func NewConnect(pubKey *ecdsa.PublicKey, addr *net.TCPAddr, t time.Time, priv *ecdsa.PrivateKey) (Connect, error) {
	raw, err := ConnectSchema.Encode(priv, pubKey, addr, t)
	if err != nil {
		return Connect{}, err
	}
	return DecodeConnect(raw)
}

// DecodeConnect ...
func DecodeConnect(raw RawMessage) (Connect, error) {
	v, err := ConnectSchema.Decode(raw)
	if err != nil {
		return Connect{}, err
	}
	return Connect{
		raw:    raw,
		pubKey: v[0].(*ecdsa.PublicKey),
		addr:   v[1].(*net.TCPAddr),
		time:   v[2].(time.Time),
	}, nil
}

// Raw ...
func (m Connect) Raw() RawMessage { return m.raw }

// PubKey ...
func (m Connect) PubKey() *ecdsa.PublicKey { return m.pubKey }

// Addr ...
func (m Connect) Addr() *net.TCPAddr { return m.addr }

// Time ...
func (m Connect) Time() time.Time { return m.time }

// Verify ...
func (m Connect) Verify(pub *ecdsa.PublicKey) bool { return m.raw.Verify(pub) }

// VerifySelf checks the signature against the key carried by the message.
func (m Connect) VerifySelf() bool { return m.raw.Verify(m.pubKey) }

/*******************************************************************************
Status
*******************************************************************************/

// Status announces the height and last block hash of a validator.
type Status struct {
	raw       RawMessage
	validator uint32
	height    uint64
	lastHash  crypto.Hash
}

// NewStatus ...
func NewStatus(validator uint32, height uint64, lastHash crypto.Hash, priv *ecdsa.PrivateKey) (Status, error) {
	raw, err := StatusSchema.Encode(priv, validator, height, lastHash)
	if err != nil {
		return Status{}, err
	}
	return DecodeStatus(raw)
}

// DecodeStatus ...
func DecodeStatus(raw RawMessage) (Status, error) {
	v, err := StatusSchema.Decode(raw)
	if err != nil {
		return Status{}, err
	}
	return Status{
		raw:       raw,
		validator: v[0].(uint32),
		height:    v[1].(uint64),
		lastHash:  v[2].(crypto.Hash),
	}, nil
}

// Raw ...
func (m Status) Raw() RawMessage { return m.raw }

// Validator ...
func (m Status) Validator() uint32 { return m.validator }

// Height ...
func (m Status) Height() uint64 { return m.height }

// LastHash ...
func (m Status) LastHash() crypto.Hash { return m.lastHash }

// Verify ...
func (m Status) Verify(pub *ecdsa.PublicKey) bool { return m.raw.Verify(pub) }

/*******************************************************************************
Propose
*******************************************************************************/

// Propose is a leader's proposal for a round.
type Propose struct {
	raw          RawMessage
	validator    uint32
	height       uint64
	round        uint32
	time         time.Time
	prevHash     crypto.Hash
	transactions []crypto.Hash
}

// NewPropose ...
func NewPropose(validator uint32, height uint64, round uint32, t time.Time,
	prevHash crypto.Hash, transactions []crypto.Hash, priv *ecdsa.PrivateKey) (Propose, error) {

	if transactions == nil {
		transactions = []crypto.Hash{}
	}
	raw, err := ProposeSchema.Encode(priv, validator, height, round, t, prevHash, transactions)
	if err != nil {
		return Propose{}, err
	}
	return DecodePropose(raw)
}

// DecodePropose ...
func DecodePropose(raw RawMessage) (Propose, error) {
	v, err := ProposeSchema.Decode(raw)
	if err != nil {
		return Propose{}, err
	}
	return Propose{
		raw:          raw,
		validator:    v[0].(uint32),
		height:       v[1].(uint64),
		round:        v[2].(uint32),
		time:         v[3].(time.Time),
		prevHash:     v[4].(crypto.Hash),
		transactions: v[5].([]crypto.Hash),
	}, nil
}

// Raw ...
func (m Propose) Raw() RawMessage { return m.raw }

// Validator ...
func (m Propose) Validator() uint32 { return m.validator }

// Height ...
func (m Propose) Height() uint64 { return m.height }

// Round ...
func (m Propose) Round() uint32 { return m.round }

// Time ...
func (m Propose) Time() time.Time { return m.time }

// PrevHash ...
func (m Propose) PrevHash() crypto.Hash { return m.prevHash }

// Transactions returns the hashes of the proposed transactions, in order.
func (m Propose) Transactions() []crypto.Hash {
	res := make([]crypto.Hash, len(m.transactions))
	copy(res, m.transactions)
	return res
}

// Verify ...
func (m Propose) Verify(pub *ecdsa.PublicKey) bool { return m.raw.Verify(pub) }

/*******************************************************************************
Prevote
*******************************************************************************/

// Prevote is the first-phase vote for a proposal.
type Prevote struct {
	raw         RawMessage
	validator   uint32
	height      uint64
	round       uint32
	proposeHash crypto.Hash
	lockedRound uint32
}

// NewPrevote ...
func NewPrevote(validator uint32, height uint64, round uint32, proposeHash crypto.Hash,
	lockedRound uint32, priv *ecdsa.PrivateKey) (Prevote, error) {

	raw, err := PrevoteSchema.Encode(priv, validator, height, round, proposeHash, lockedRound)
	if err != nil {
		return Prevote{}, err
	}
	return DecodePrevote(raw)
}

// DecodePrevote ...
func DecodePrevote(raw RawMessage) (Prevote, error) {
	v, err := PrevoteSchema.Decode(raw)
	if err != nil {
		return Prevote{}, err
	}
	return Prevote{
		raw:         raw,
		validator:   v[0].(uint32),
		height:      v[1].(uint64),
		round:       v[2].(uint32),
		proposeHash: v[3].(crypto.Hash),
		lockedRound: v[4].(uint32),
	}, nil
}

// Raw ...
func (m Prevote) Raw() RawMessage { return m.raw }

// Validator ...
func (m Prevote) Validator() uint32 { return m.validator }

// Height ...
func (m Prevote) Height() uint64 { return m.height }

// Round ...
func (m Prevote) Round() uint32 { return m.round }

// ProposeHash ...
func (m Prevote) ProposeHash() crypto.Hash { return m.proposeHash }

// LockedRound ...
func (m Prevote) LockedRound() uint32 { return m.lockedRound }

// Verify ...
func (m Prevote) Verify(pub *ecdsa.PublicKey) bool { return m.raw.Verify(pub) }

/*******************************************************************************
Precommit
*******************************************************************************/

// Precommit is the second-phase vote, committing to a block.
type Precommit struct {
	raw         RawMessage
	validator   uint32
	height      uint64
	round       uint32
	proposeHash crypto.Hash
	blockHash   crypto.Hash
}

// NewPrecommit ...
func NewPrecommit(validator uint32, height uint64, round uint32, proposeHash crypto.Hash,
	blockHash crypto.Hash, priv *ecdsa.PrivateKey) (Precommit, error) {

	raw, err := PrecommitSchema.Encode(priv, validator, height, round, proposeHash, blockHash)
	if err != nil {
		return Precommit{}, err
	}
	return DecodePrecommit(raw)
}

// DecodePrecommit ...
func DecodePrecommit(raw RawMessage) (Precommit, error) {
	v, err := PrecommitSchema.Decode(raw)
	if err != nil {
		return Precommit{}, err
	}
	return Precommit{
		raw:         raw,
		validator:   v[0].(uint32),
		height:      v[1].(uint64),
		round:       v[2].(uint32),
		proposeHash: v[3].(crypto.Hash),
		blockHash:   v[4].(crypto.Hash),
	}, nil
}

// Raw ...
func (m Precommit) Raw() RawMessage { return m.raw }

// Validator ...
func (m Precommit) Validator() uint32 { return m.validator }

// Height ...
func (m Precommit) Height() uint64 { return m.height }

// Round ...
func (m Precommit) Round() uint32 { return m.round }

// ProposeHash ...
func (m Precommit) ProposeHash() crypto.Hash { return m.proposeHash }

// BlockHash ...
func (m Precommit) BlockHash() crypto.Hash { return m.blockHash }

// Verify ...
func (m Precommit) Verify(pub *ecdsa.PublicKey) bool { return m.raw.Verify(pub) }

/*******************************************************************************
RequestBlock
*******************************************************************************/

// RequestBlock asks a peer for the block at a given height.
type RequestBlock struct {
	raw    RawMessage
	from   *ecdsa.PublicKey
	to     *ecdsa.PublicKey
	time   time.Time
	height uint64
}

// NewRequestBlock ...
func NewRequestBlock(from, to *ecdsa.PublicKey, t time.Time, height uint64, priv *ecdsa.PrivateKey) (RequestBlock, error) {
	raw, err := RequestBlockSchema.Encode(priv, from, to, t, height)
	if err != nil {
		return RequestBlock{}, err
	}
	return DecodeRequestBlock(raw)
}

// DecodeRequestBlock ...
func DecodeRequestBlock(raw RawMessage) (RequestBlock, error) {
	v, err := RequestBlockSchema.Decode(raw)
	if err != nil {
		return RequestBlock{}, err
	}
	return RequestBlock{
		raw:    raw,
		from:   v[0].(*ecdsa.PublicKey),
		to:     v[1].(*ecdsa.PublicKey),
		time:   v[2].(time.Time),
		height: v[3].(uint64),
	}, nil
}

// Raw ...
func (m RequestBlock) Raw() RawMessage { return m.raw }

// From ...
func (m RequestBlock) From() *ecdsa.PublicKey { return m.from }

// To ...
func (m RequestBlock) To() *ecdsa.PublicKey { return m.to }

// Time ...
func (m RequestBlock) Time() time.Time { return m.time }

// Height ...
func (m RequestBlock) Height() uint64 { return m.height }

// Verify ...
func (m RequestBlock) Verify(pub *ecdsa.PublicKey) bool { return m.raw.Verify(pub) }

// VerifySelf checks the signature against the sender key.
func (m RequestBlock) VerifySelf() bool { return m.raw.Verify(m.from) }
