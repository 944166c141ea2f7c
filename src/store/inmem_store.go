package store

import (
	"strconv"
	"sync"

	cm "github.com/mosaicnetworks/bftnode/src/common"
	"github.com/mosaicnetworks/bftnode/src/crypto"
	"github.com/mosaicnetworks/bftnode/src/messages"
)

// InmemStore implements the Store interface in memory. The ordered log is a
// rolling window of cacheSize to 2*cacheSize entries, so Since fails with a
// TooLate error for positions that have been rolled out. Lookups by hash are
// not affected by the window.
type InmemStore struct {
	sync.RWMutex
	cacheSize  int
	messages   map[crypto.Hash]messages.RawMessage
	log        *cm.RollingIndex //position => hash
	blocks     map[uint64]messages.Block
	lastHeight uint64
	hasBlocks  bool
	closed     bool
}

// NewInmemStore creates a new InmemStore whose ordered log keeps at least
// cacheSize entries.
func NewInmemStore(cacheSize int) *InmemStore {
	return &InmemStore{
		cacheSize: cacheSize,
		messages:  make(map[crypto.Hash]messages.RawMessage),
		log:       cm.NewRollingIndex("MessageLog", cacheSize),
		blocks:    make(map[uint64]messages.Block),
	}
}

// CacheSize returns the size of the log window.
func (s *InmemStore) CacheSize() int {
	return s.cacheSize
}

// Put implements the Store interface.
func (s *InmemStore) Put(raw messages.RawMessage) (crypto.Hash, error) {
	hash := raw.Hash()

	s.Lock()
	defer s.Unlock()

	if s.closed {
		return hash, cm.NewStoreErr("InmemStore", cm.Closed, "")
	}
	if _, ok := s.messages[hash]; ok {
		return hash, cm.NewStoreErr("Messages", cm.KeyAlreadyExists, hash.Hex())
	}

	s.messages[hash] = raw
	s.log.Append(hash)

	return hash, nil
}

// Get implements the Store interface.
func (s *InmemStore) Get(hash crypto.Hash) (messages.RawMessage, error) {
	s.RLock()
	defer s.RUnlock()

	raw, ok := s.messages[hash]
	if !ok {
		return messages.RawMessage{}, cm.NewStoreErr("Messages", cm.KeyNotFound, hash.Hex())
	}
	return raw, nil
}

// Has implements the Store interface.
func (s *InmemStore) Has(hash crypto.Hash) bool {
	s.RLock()
	defer s.RUnlock()

	_, ok := s.messages[hash]
	return ok
}

// Len implements the Store interface.
func (s *InmemStore) Len() int {
	s.RLock()
	defer s.RUnlock()

	return s.log.LastIndex() + 1
}

// Since implements the Store interface.
func (s *InmemStore) Since(skip int) ([]messages.RawMessage, error) {
	s.RLock()
	defer s.RUnlock()

	items, err := s.log.Since(skip)
	if err != nil {
		return nil, err
	}

	res := make([]messages.RawMessage, len(items))
	for i, item := range items {
		res[i] = s.messages[item.(crypto.Hash)]
	}
	return res, nil
}

// SetBlock implements the Store interface.
func (s *InmemStore) SetBlock(block messages.Block) error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return cm.NewStoreErr("InmemStore", cm.Closed, "")
	}

	height := block.Height()
	if _, ok := s.blocks[height]; ok {
		return cm.NewStoreErr("Blocks", cm.KeyAlreadyExists, strconv.FormatUint(height, 10))
	}

	s.blocks[height] = block
	if !s.hasBlocks || height > s.lastHeight {
		s.lastHeight = height
		s.hasBlocks = true
	}
	return nil
}

// GetBlock implements the Store interface.
func (s *InmemStore) GetBlock(height uint64) (messages.Block, error) {
	s.RLock()
	defer s.RUnlock()

	block, ok := s.blocks[height]
	if !ok {
		return messages.Block{}, cm.NewStoreErr("Blocks", cm.KeyNotFound, strconv.FormatUint(height, 10))
	}
	return block, nil
}

// LastBlockHeight implements the Store interface.
func (s *InmemStore) LastBlockHeight() (uint64, bool) {
	s.RLock()
	defer s.RUnlock()

	return s.lastHeight, s.hasBlocks
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	s.markClosed()
	return nil
}

// markClosed reports whether this call closed the store.
func (s *InmemStore) markClosed() bool {
	s.Lock()
	defer s.Unlock()

	was := s.closed
	s.closed = true
	return !was
}

func (s *InmemStore) isClosed() bool {
	s.RLock()
	defer s.RUnlock()
	return s.closed
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
