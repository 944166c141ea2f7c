package store

import (
	"github.com/mosaicnetworks/bftnode/src/crypto"
	"github.com/mosaicnetworks/bftnode/src/messages"
)

// Store is an interface for backend stores.
type Store interface {
	// Put inserts a message and returns its hash. Inserting a message twice
	// yields a KeyAlreadyExists error.
	Put(raw messages.RawMessage) (crypto.Hash, error)
	// Get returns a message by hash.
	Get(hash crypto.Hash) (messages.RawMessage, error)
	// Has reports whether a message is in the store.
	Has(hash crypto.Hash) bool
	// Len returns the number of messages inserted so far.
	Len() int
	// Since returns the messages inserted after position skip, in insertion
	// order. Use -1 to start from the beginning.
	Since(skip int) ([]messages.RawMessage, error)
	// SetBlock indexes a committed block by height.
	SetBlock(block messages.Block) error
	// GetBlock returns the block committed at height.
	GetBlock(height uint64) (messages.Block, error)
	// LastBlockHeight returns the height of the highest block, and false if
	// there is none.
	LastBlockHeight() (uint64, bool)
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database.
	StorePath() string
}
