// Package peers defines the validators of a network and the files that list
// them.
//
// A peer is identified by its validator ID, the number that consensus messages
// carry in their validator field, and by its secp256k1 public key, with which
// it signs every message. A peer also lists the network address where it can
// be reached by other peers.
//
// Upon starting up, a node expects to find a peers.json file in its data
// directory. Its order is irrelevant; IDs are explicit and must be unique.
package peers
