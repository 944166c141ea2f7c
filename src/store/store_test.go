package store

import (
	"crypto/ecdsa"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mosaicnetworks/bftnode/src/common"
	"github.com/mosaicnetworks/bftnode/src/crypto"
	"github.com/mosaicnetworks/bftnode/src/crypto/keys"
	"github.com/mosaicnetworks/bftnode/src/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *ecdsa.PrivateKey {
	key, err := keys.GenerateECDSAKey()
	require.NoError(t, err)
	return key
}

func testStatuses(t *testing.T, key *ecdsa.PrivateKey, n int) []messages.RawMessage {
	res := make([]messages.RawMessage, n)
	for i := 0; i < n; i++ {
		s, err := messages.NewStatus(0, uint64(i), crypto.SHA256([]byte{byte(i)}), key)
		require.NoError(t, err)
		res[i] = s.Raw()
	}
	return res
}

func testBlock(t *testing.T, key *ecdsa.PrivateKey, height uint64) messages.Block {
	header := messages.NewBlockHeader(height, time.Unix(1500000000, 0), crypto.SHA256(nil), crypto.SHA256(nil), crypto.SHA256(nil))

	pc, err := messages.NewPrecommit(0, height, 1, crypto.SHA256([]byte("propose")), header.Hash(), key)
	require.NoError(t, err)

	block, err := messages.NewBlock(header, []messages.Precommit{pc}, nil, key)
	require.NoError(t, err)
	return block
}

// testStore runs the behaviour shared by every Store implementation.
func testStore(t *testing.T, store Store) {
	key := testKey(t)
	msgs := testStatuses(t, key, 5)

	for _, m := range msgs {
		hash, err := store.Put(m)
		require.NoError(t, err)
		assert.Equal(t, m.Hash(), hash)
	}
	assert.Equal(t, len(msgs), store.Len())

	_, err := store.Put(msgs[2])
	assert.True(t, common.IsStore(err, common.KeyAlreadyExists))
	assert.Equal(t, len(msgs), store.Len())

	for _, m := range msgs {
		assert.True(t, store.Has(m.Hash()))
		got, err := store.Get(m.Hash())
		require.NoError(t, err)
		assert.True(t, m.Equal(got))
	}

	_, err = store.Get(crypto.SHA256([]byte("missing")))
	assert.True(t, common.IsStore(err, common.KeyNotFound))
	assert.False(t, store.Has(crypto.SHA256([]byte("missing"))))

	since, err := store.Since(1)
	require.NoError(t, err)
	require.Len(t, since, 3)
	for i, m := range since {
		assert.True(t, msgs[i+2].Equal(m))
	}

	_, ok := store.LastBlockHeight()
	assert.False(t, ok)

	b1 := testBlock(t, key, 1)
	b3 := testBlock(t, key, 3)
	require.NoError(t, store.SetBlock(b3))
	require.NoError(t, store.SetBlock(b1))
	assert.True(t, common.IsStore(store.SetBlock(b1), common.KeyAlreadyExists))

	last, ok := store.LastBlockHeight()
	assert.True(t, ok)
	assert.Equal(t, uint64(3), last)

	got, err := store.GetBlock(1)
	require.NoError(t, err)
	assert.Equal(t, b1.Hash(), got.Hash())

	_, err = store.GetBlock(2)
	assert.True(t, common.IsStore(err, common.KeyNotFound))
}

func TestInmemStore(t *testing.T) {
	store := NewInmemStore(10)
	testStore(t, store)

	require.NoError(t, store.Close())
	_, err := store.Put(testStatuses(t, testKey(t), 1)[0])
	assert.True(t, common.IsStore(err, common.Closed))
}

func TestInmemStoreRolling(t *testing.T) {
	store := NewInmemStore(2)
	msgs := testStatuses(t, testKey(t), 6)
	for _, m := range msgs {
		_, err := store.Put(m)
		require.NoError(t, err)
	}

	_, err := store.Since(-1)
	assert.True(t, common.IsStore(err, common.TooLate))

	since, err := store.Since(3)
	require.NoError(t, err)
	assert.Len(t, since, 2)

	// lookups by hash survive the window
	assert.True(t, store.Has(msgs[0].Hash()))
}

func tempDir(t *testing.T) string {
	dir := filepath.Join(t.TempDir(), "badger")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func TestBadgerStore(t *testing.T) {
	dir := tempDir(t)

	store, err := NewBadgerStore(10, dir, common.NewTestEntry(t, common.TestLogLevel))
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, dir, store.StorePath())
	testStore(t, store)
}

func TestBadgerStoreReload(t *testing.T) {
	dir := tempDir(t)
	logger := common.NewTestEntry(t, common.TestLogLevel)
	key := testKey(t)
	msgs := testStatuses(t, key, 6)

	store, err := NewBadgerStore(2, dir, logger)
	require.NoError(t, err)
	for _, m := range msgs {
		_, err := store.Put(m)
		require.NoError(t, err)
	}
	require.NoError(t, store.SetBlock(testBlock(t, key, 7)))

	// rolled out of memory, served from the database
	since, err := store.Since(-1)
	require.NoError(t, err)
	require.Len(t, since, len(msgs))
	for i, m := range since {
		assert.True(t, msgs[i].Equal(m))
	}

	require.NoError(t, store.Close())

	store, err = LoadBadgerStore(2, dir, logger)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, len(msgs), store.Len())
	for _, m := range msgs {
		assert.True(t, store.Has(m.Hash()))
	}

	since, err = store.Since(4)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.True(t, msgs[5].Equal(since[0]))

	last, ok := store.LastBlockHeight()
	assert.True(t, ok)
	assert.Equal(t, uint64(7), last)
}

func TestLoadBadgerStoreMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")

	_, err := LoadBadgerStore(10, dir, nil)
	assert.Error(t, err)

	store, err := LoadOrCreateBadgerStore(10, dir, common.NewTestEntry(t, common.TestLogLevel))
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
	require.NoError(t, store.Close())

	require.NoError(t, store.Close())
	_, err = store.Put(testStatuses(t, testKey(t), 1)[0])
	assert.True(t, common.IsStore(err, common.Closed))
}
