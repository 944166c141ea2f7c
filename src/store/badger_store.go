package store

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger"
	cm "github.com/mosaicnetworks/bftnode/src/common"
	"github.com/mosaicnetworks/bftnode/src/crypto"
	"github.com/mosaicnetworks/bftnode/src/messages"
	"github.com/sirupsen/logrus"
)

const (
	messagePrefix = "msg"
	logPrefix     = "seq"
	blockPrefix   = "block"
)

// BadgerStore implements the Store interface with a Badger database. All
// reads are served by an InmemStore which is populated from the database when
// the store is loaded.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string
	logger     *logrus.Entry
}

// NewBadgerStore opens a Badger database in path and loads any messages and
// blocks it already contains.
func NewBadgerStore(cacheSize int, path string, logger *logrus.Entry) (*BadgerStore, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true).
		WithLogger(logger.WithField("ns", "badger"))

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore: NewInmemStore(cacheSize),
		db:         handle,
		path:       path,
		logger:     logger,
	}

	if err := store.load(); err != nil {
		handle.Close()
		return nil, err
	}

	return store, nil
}

// LoadBadgerStore opens an existing database. It fails if path does not
// exist.
func LoadBadgerStore(cacheSize int, path string, logger *logrus.Entry) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return NewBadgerStore(cacheSize, path, logger)
}

// LoadOrCreateBadgerStore opens the database in path, creating the directory
// if needed.
func LoadOrCreateBadgerStore(cacheSize int, path string, logger *logrus.Entry) (*BadgerStore, error) {
	store, err := LoadBadgerStore(cacheSize, path, logger)
	if err == nil {
		return store, nil
	}

	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}
	return NewBadgerStore(cacheSize, path, logger)
}

/*******************************************************************************
Keys
*******************************************************************************/

func messageKey(hash crypto.Hash) []byte {
	return []byte(fmt.Sprintf("%s_%s", messagePrefix, hash.Hex()))
}

func logKey(pos int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", logPrefix, pos))
}

func blockKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%s_%020d", blockPrefix, height))
}

/*******************************************************************************
Store interface
*******************************************************************************/

// Put implements the Store interface. The message is written to the database
// before it becomes visible in memory.
func (s *BadgerStore) Put(raw messages.RawMessage) (crypto.Hash, error) {
	hash := raw.Hash()
	if s.inmemStore.isClosed() {
		return hash, cm.NewStoreErr("BadgerStore", cm.Closed, "")
	}
	if s.inmemStore.Has(hash) {
		return hash, cm.NewStoreErr("Messages", cm.KeyAlreadyExists, hash.Hex())
	}

	if err := s.dbPutMessage(s.inmemStore.Len(), hash, raw); err != nil {
		return hash, err
	}

	return s.inmemStore.Put(raw)
}

// Get implements the Store interface.
func (s *BadgerStore) Get(hash crypto.Hash) (messages.RawMessage, error) {
	return s.inmemStore.Get(hash)
}

// Has implements the Store interface.
func (s *BadgerStore) Has(hash crypto.Hash) bool {
	return s.inmemStore.Has(hash)
}

// Len implements the Store interface.
func (s *BadgerStore) Len() int {
	return s.inmemStore.Len()
}

// Since implements the Store interface. Positions rolled out of the memory
// window are read back from the database.
func (s *BadgerStore) Since(skip int) ([]messages.RawMessage, error) {
	res, err := s.inmemStore.Since(skip)
	if err != nil && cm.IsStore(err, cm.TooLate) {
		return s.dbSince(skip)
	}
	return res, err
}

// SetBlock implements the Store interface.
func (s *BadgerStore) SetBlock(block messages.Block) error {
	if s.inmemStore.isClosed() {
		return cm.NewStoreErr("BadgerStore", cm.Closed, "")
	}
	if _, err := s.inmemStore.GetBlock(block.Height()); err == nil {
		return cm.NewStoreErr("Blocks", cm.KeyAlreadyExists, fmt.Sprint(block.Height()))
	}

	if err := s.dbSet(blockKey(block.Height()), block.Raw().Bytes()); err != nil {
		return err
	}

	return s.inmemStore.SetBlock(block)
}

// GetBlock implements the Store interface.
func (s *BadgerStore) GetBlock(height uint64) (messages.Block, error) {
	return s.inmemStore.GetBlock(height)
}

// LastBlockHeight implements the Store interface.
func (s *BadgerStore) LastBlockHeight() (uint64, bool) {
	return s.inmemStore.LastBlockHeight()
}

// Close implements the Store interface. Only the first call closes the
// database.
func (s *BadgerStore) Close() error {
	if !s.inmemStore.markClosed() {
		return nil
	}
	return s.db.Close()
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

/*******************************************************************************
DB Methods
*******************************************************************************/

func (s *BadgerStore) dbPutMessage(pos int, hash crypto.Hash, raw messages.RawMessage) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set(messageKey(hash), raw.Bytes()); err != nil {
		return err
	}
	if err := tx.Set(logKey(pos), hash.Bytes()); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *BadgerStore) dbSet(key, val []byte) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set(key, val); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *BadgerStore) dbGetMessage(txn *badger.Txn, hash crypto.Hash) (messages.RawMessage, error) {
	item, err := txn.Get(messageKey(hash))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return messages.RawMessage{}, cm.NewStoreErr("DB", cm.KeyNotFound, hash.Hex())
		}
		return messages.RawMessage{}, err
	}

	data, err := item.ValueCopy(nil)
	if err != nil {
		return messages.RawMessage{}, err
	}

	return messages.NewRawMessage(data)
}

// iterateLog calls fn with every hash of the ordered log whose position is
// greater than skip.
func (s *BadgerStore) iterateLog(txn *badger.Txn, skip int, fn func(hash crypto.Hash) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	prefix := []byte(logPrefix + "_")
	for it.Seek(logKey(skip + 1)); it.ValidForPrefix(prefix); it.Next() {
		var hash crypto.Hash
		err := it.Item().Value(func(data []byte) error {
			h, err := crypto.HashFromBytes(data)
			hash = h
			return err
		})
		if err != nil {
			return err
		}
		if err := fn(hash); err != nil {
			return err
		}
	}
	return nil
}

func (s *BadgerStore) dbSince(skip int) ([]messages.RawMessage, error) {
	res := []messages.RawMessage{}

	err := s.db.View(func(txn *badger.Txn) error {
		return s.iterateLog(txn, skip, func(hash crypto.Hash) error {
			raw, err := s.dbGetMessage(txn, hash)
			if err != nil {
				return err
			}
			res = append(res, raw)
			return nil
		})
	})

	return res, err
}

// load replays the database into the InmemStore.
func (s *BadgerStore) load() error {
	return s.db.View(func(txn *badger.Txn) error {
		err := s.iterateLog(txn, -1, func(hash crypto.Hash) error {
			raw, err := s.dbGetMessage(txn, hash)
			if err != nil {
				return err
			}
			_, err = s.inmemStore.Put(raw)
			return err
		})
		if err != nil {
			return err
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(blockPrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			raw, err := messages.NewRawMessage(data)
			if err != nil {
				return err
			}
			block, err := messages.DecodeBlock(raw)
			if err != nil {
				return err
			}
			if err := s.inmemStore.SetBlock(block); err != nil {
				return err
			}
		}

		s.logger.WithFields(logrus.Fields{
			"messages": s.inmemStore.Len(),
			"path":     s.path,
		}).Debug("Loaded store")

		return nil
	})
}
