package node

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/mosaicnetworks/bftnode/src/crypto/keys"
	"github.com/mosaicnetworks/bftnode/src/peers"
)

// Validator struct holds information about the validator for a node
type Validator struct {
	Key     *ecdsa.PrivateKey
	Moniker string

	id       uint32
	pubBytes []byte
	pubHex   string
}

// NewValidator looks up the validator ID of key in the peer-set.
func NewValidator(key *ecdsa.PrivateKey, moniker string, peerSet *peers.PeerSet) (*Validator, error) {
	peer, ok := peerSet.ByKey(&key.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key %s is not in the peer-set", keys.PublicKeyHex(&key.PublicKey))
	}

	return &Validator{
		Key:     key,
		Moniker: moniker,
		id:      peer.ID,
	}, nil
}

// ID returns the validator ID
func (v *Validator) ID() uint32 {
	return v.id
}

// PublicKey returns the public half of Key.
func (v *Validator) PublicKey() *ecdsa.PublicKey {
	return &v.Key.PublicKey
}

// PublicKeyBytes returns the validator's public key as a byte array
func (v *Validator) PublicKeyBytes() []byte {
	if len(v.pubBytes) == 0 {
		v.pubBytes = keys.FromPublicKey(&v.Key.PublicKey)
	}
	return v.pubBytes
}

// PublicKeyHex returns the validator's public key as a hex string
func (v *Validator) PublicKeyHex() string {
	if len(v.pubHex) == 0 {
		v.pubHex = keys.PublicKeyHex(&v.Key.PublicKey)
	}
	return v.pubHex
}
