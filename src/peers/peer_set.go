package peers

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/mosaicnetworks/bftnode/src/crypto"
	"github.com/mosaicnetworks/bftnode/src/crypto/keys"
)

// PeerSet is a set of Peers forming a consensus network. It is immutable;
// WithNewPeer and WithRemovedPeer return modified copies.
type PeerSet struct {
	Peers    []*Peer          `json:"peers"`
	ByPubKey map[string]*Peer `json:"-"`
	ByID     map[uint32]*Peer `json:"-"`

	//cached values
	hash          *crypto.Hash
	superMajority *int
	trustCount    *int
}

/* Constructors */

// NewPeerSet creates a new PeerSet from a list of Peers. Peers are sorted by
// ID. It fails if an ID or a public key appears twice, or if a public key
// cannot be parsed.
func NewPeerSet(peers []*Peer) (*PeerSet, error) {
	peerSet := &PeerSet{
		ByPubKey: make(map[string]*Peer),
		ByID:     make(map[uint32]*Peer),
	}

	sorted := make([]*Peer, len(peers))
	copy(sorted, peers)
	sort.Sort(ByID(sorted))

	for _, peer := range sorted {
		if _, err := peer.PubKey(); err != nil {
			return nil, fmt.Errorf("peer %d: %v", peer.ID, err)
		}
		if _, ok := peerSet.ByID[peer.ID]; ok {
			return nil, fmt.Errorf("duplicate peer id %d", peer.ID)
		}
		if _, ok := peerSet.ByPubKey[peer.PubKeyString()]; ok {
			return nil, fmt.Errorf("duplicate public key %s", peer.PubKeyString())
		}
		peerSet.ByPubKey[peer.PubKeyString()] = peer
		peerSet.ByID[peer.ID] = peer
	}

	peerSet.Peers = sorted

	return peerSet, nil
}

// NewPeerSetFromPeerSliceBytes creates a new PeerSet from a peerSlice in Bytes format
func NewPeerSetFromPeerSliceBytes(peerSliceBytes []byte) (*PeerSet, error) {
	peers := []*Peer{}

	dec := json.NewDecoder(bytes.NewReader(peerSliceBytes))
	if err := dec.Decode(&peers); err != nil {
		return nil, err
	}

	return NewPeerSet(peers)
}

// WithNewPeer returns a new PeerSet with a list of peers including the new
// one. A peer whose ID is already present replaces the old entry.
func (peerSet *PeerSet) WithNewPeer(peer *Peer) (*PeerSet, error) {
	_, peers := ExcludePeer(peerSet.Peers, peer.ID)
	return NewPeerSet(append(peers, peer))
}

// WithRemovedPeer returns a new PeerSet with a list of peers excluding the
// provided one
func (peerSet *PeerSet) WithRemovedPeer(id uint32) *PeerSet {
	_, peers := ExcludePeer(peerSet.Peers, id)
	newPeerSet, _ := NewPeerSet(peers)
	return newPeerSet
}

/* Lookups */

// PubKey returns the public key of a validator, or nil if id is unknown.
func (peerSet *PeerSet) PubKey(id uint32) *ecdsa.PublicKey {
	peer, ok := peerSet.ByID[id]
	if !ok {
		return nil
	}
	pub, _ := peer.PubKey()
	return pub
}

// ByKey returns the peer that owns a public key.
func (peerSet *PeerSet) ByKey(pub *ecdsa.PublicKey) (*Peer, bool) {
	if pub == nil {
		return nil, false
	}
	peer, ok := peerSet.ByPubKey[keys.PublicKeyHex(pub)]
	return peer, ok
}

/* ToSlice Methods */

// PubKeys returns the PeerSet's slice of public keys
func (peerSet *PeerSet) PubKeys() []string {
	res := []string{}

	for _, peer := range peerSet.Peers {
		res = append(res, peer.PubKeyString())
	}

	return res
}

// IDs returns the PeerSet's slice of IDs
func (peerSet *PeerSet) IDs() []uint32 {
	res := []uint32{}

	for _, peer := range peerSet.Peers {
		res = append(res, peer.ID)
	}

	return res
}

/* Utilities */

// Len returns the number of Peers in the PeerSet
func (peerSet *PeerSet) Len() int {
	return len(peerSet.ByPubKey)
}

// Hash uniquely identifies a PeerSet. It is the SHA256 of the IDs and
// compressed public keys of its peers, in ID order.
func (peerSet *PeerSet) Hash() crypto.Hash {
	if peerSet.hash == nil {
		var buf bytes.Buffer
		for _, p := range peerSet.Peers {
			pub, _ := p.PubKey()
			buf.Write([]byte{byte(p.ID), byte(p.ID >> 8), byte(p.ID >> 16), byte(p.ID >> 24)})
			buf.Write(keys.FromPublicKey(pub))
		}
		hash := crypto.SHA256(buf.Bytes())
		peerSet.hash = &hash
	}
	return *peerSet.hash
}

// Hex is the hexadecimal representation of Hash
func (peerSet *PeerSet) Hex() string {
	return peerSet.Hash().Hex()
}

// Marshal marshals the peerset
func (peerSet *PeerSet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(peerSet.Peers); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SuperMajority return the number of peers that forms a strong majortiy (+2/3)
// in the PeerSet
func (peerSet *PeerSet) SuperMajority() int {
	if peerSet.superMajority == nil {
		val := 2*peerSet.Len()/3 + 1
		peerSet.superMajority = &val
	}
	return *peerSet.superMajority
}

// TrustCount calculates the Trust Count for a peerset
func (peerSet *PeerSet) TrustCount() int {
	if peerSet.trustCount == nil {
		val := 0
		if len(peerSet.Peers) > 1 {
			val = int(math.Ceil(float64(peerSet.Len()) / float64(3)))
		}
		peerSet.trustCount = &val
	}
	return *peerSet.trustCount
}

// ByID implements sort.Interface for Peers based on the ID field.
type ByID []*Peer

func (a ByID) Len() int           { return len(a) }
func (a ByID) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ByID) Less(i, j int) bool { return a[i].ID < a[j].ID }
