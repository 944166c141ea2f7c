package peers

import (
	"crypto/ecdsa"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/mosaicnetworks/bftnode/src/crypto/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPeers(t *testing.T, n int) ([]*Peer, []*ecdsa.PrivateKey) {
	peers := []*Peer{}
	privs := []*ecdsa.PrivateKey{}
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		require.NoError(t, err)
		// reverse order to exercise sorting
		id := uint32(n - 1 - i)
		peers = append(peers, NewPeer(id, &key.PublicKey, fmt.Sprintf("127.0.0.1:%d", 1337+id), fmt.Sprintf("peer%d", id)))
		privs = append(privs, key)
	}
	return peers, privs
}

func TestPeerSet(t *testing.T) {
	peers, privs := testPeers(t, 4)

	ps, err := NewPeerSet(peers)
	require.NoError(t, err)

	assert.Equal(t, 4, ps.Len())
	assert.Equal(t, []uint32{0, 1, 2, 3}, ps.IDs())
	assert.Equal(t, 3, ps.SuperMajority())
	assert.Equal(t, 2, ps.TrustCount())

	for i, p := range peers {
		assert.Equal(t, &privs[i].PublicKey, ps.PubKey(p.ID))

		byKey, ok := ps.ByKey(&privs[i].PublicKey)
		require.True(t, ok)
		assert.Equal(t, p.ID, byKey.ID)
	}

	assert.Nil(t, ps.PubKey(99))
	_, ok := ps.ByKey(nil)
	assert.False(t, ok)
}

func TestPeerSetRejectsDuplicates(t *testing.T) {
	peers, _ := testPeers(t, 2)

	dupID := &Peer{ID: peers[0].ID, PubKeyHex: peers[1].PubKeyHex}
	_, err := NewPeerSet([]*Peer{peers[0], dupID})
	assert.Error(t, err)

	dupKey := &Peer{ID: 42, PubKeyHex: peers[0].PubKeyHex}
	_, err = NewPeerSet([]*Peer{peers[0], dupKey})
	assert.Error(t, err)

	bad := &Peer{ID: 7, PubKeyHex: "0XBEEF"}
	_, err = NewPeerSet([]*Peer{bad})
	assert.Error(t, err)
}

func TestPeerSetUpdates(t *testing.T) {
	peers, _ := testPeers(t, 3)
	ps, err := NewPeerSet(peers[:2])
	require.NoError(t, err)

	ps2, err := ps.WithNewPeer(peers[2])
	require.NoError(t, err)
	assert.Equal(t, 2, ps.Len())
	assert.Equal(t, 3, ps2.Len())
	assert.NotEqual(t, ps.Hash(), ps2.Hash())

	ps3 := ps2.WithRemovedPeer(peers[2].ID)
	assert.Equal(t, ps.Hash(), ps3.Hash())
	assert.Equal(t, ps.Hex(), ps3.Hex())
}

func TestJSONPeerSet(t *testing.T) {
	dir, err := ioutil.TempDir("", "bftnode")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	store := NewJSONPeerSet(dir)
	assert.Equal(t, filepath.Join(dir, "peers.json"), store.Path())

	// Try a read, should get nothing
	_, err = store.PeerSet()
	assert.Error(t, err)

	peers, privs := testPeers(t, 3)
	require.NoError(t, store.Write(peers))

	peerSet, err := store.PeerSet()
	require.NoError(t, err)
	require.Equal(t, 3, peerSet.Len())

	for i, p := range peers {
		got := peerSet.ByID[p.ID]
		require.NotNil(t, got)
		assert.Equal(t, p.NetAddr, got.NetAddr)
		assert.Equal(t, p.Moniker, got.Moniker)
		assert.Equal(t, p.PubKeyString(), got.PubKeyString())

		pub, err := got.PubKey()
		require.NoError(t, err)
		assert.Equal(t, keys.FromPublicKey(&privs[i].PublicKey), keys.FromPublicKey(pub))
	}
}

func TestJSONPeerSetLowerCaseKeys(t *testing.T) {
	dir := t.TempDir()
	key, err := keys.GenerateECDSAKey()
	require.NoError(t, err)

	hex := fmt.Sprintf("0x%x", keys.FromPublicKey(&key.PublicKey))
	content := fmt.Sprintf(`[{"id":5,"net_addr":"10.0.0.1:1337","pub_key":"%s"}]`, hex)
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "peers.json"), []byte(content), 0644))

	peerSet, err := NewJSONPeerSet(dir).PeerSet()
	require.NoError(t, err)

	p, ok := peerSet.ByKey(&key.PublicKey)
	require.True(t, ok)
	assert.Equal(t, uint32(5), p.ID)
}
