package peers

import (
	"crypto/ecdsa"
	"strings"

	"github.com/mosaicnetworks/bftnode/src/common"
	"github.com/mosaicnetworks/bftnode/src/crypto/keys"
)

// Peer is a validator of the network.
type Peer struct {
	ID        uint32 `json:"id"`
	NetAddr   string `json:"net_addr"`
	PubKeyHex string `json:"pub_key"`
	Moniker   string `json:"moniker,omitempty"`

	pubKey *ecdsa.PublicKey
}

// NewPeer creates a Peer from the public key of the validator.
func NewPeer(id uint32, pub *ecdsa.PublicKey, netAddr, moniker string) *Peer {
	return &Peer{
		ID:        id,
		NetAddr:   netAddr,
		PubKeyHex: keys.PublicKeyHex(pub),
		Moniker:   moniker,
		pubKey:    pub,
	}
}

// PubKeyString returns the upper-case version of PubKeyHex. It is used for
// indexing in maps with string keys.
func (p *Peer) PubKeyString() string {
	return "0X" + strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(p.PubKeyHex)), "0X")
}

// PubKeyBytes returns the compressed public key.
func (p *Peer) PubKeyBytes() ([]byte, error) {
	return common.DecodeFromString(p.PubKeyHex)
}

// PubKey returns the parsed public key of the peer.
func (p *Peer) PubKey() (*ecdsa.PublicKey, error) {
	if p.pubKey != nil {
		return p.pubKey, nil
	}

	pub, err := keys.PublicKeyFromHex(p.PubKeyHex)
	if err != nil {
		return nil, err
	}
	p.pubKey = pub
	return pub, nil
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, peer uint32) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.ID != peer {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
