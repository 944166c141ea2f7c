package node

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/mosaicnetworks/bftnode/src/common"
	"github.com/mosaicnetworks/bftnode/src/config"
	"github.com/mosaicnetworks/bftnode/src/crypto"
	"github.com/mosaicnetworks/bftnode/src/messages"
	"github.com/mosaicnetworks/bftnode/src/net"
	"github.com/mosaicnetworks/bftnode/src/peers"
	"github.com/mosaicnetworks/bftnode/src/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initNodes creates n nodes connected by in-memory transports. seed, if not
// nil, may fill the store of each node before it is created.
func initNodes(t *testing.T, n int, seed func(i int, privs []*ecdsa.PrivateKey, s store.Store)) ([]*Node, []*ecdsa.PrivateKey, *peers.PeerSet) {
	transports := make([]*net.InmemTransport, n)
	for i := 0; i < n; i++ {
		_, transports[i] = net.NewInmemTransport("")
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				transports[i].Connect(transports[j].LocalAddr(), transports[j])
			}
		}
	}

	privs, peerSet := initPeers(t, n, func(i int) string { return transports[i].LocalAddr() })

	nodes := make([]*Node, n)
	for i := 0; i < n; i++ {
		conf := config.NewTestConfig(t, common.TestLogLevel)
		conf.StatusTimeout = 20 * time.Millisecond

		validator, err := NewValidator(privs[i], peerSet.ByID[uint32(i)].Moniker, peerSet)
		require.NoError(t, err)

		s := store.NewInmemStore(conf.CacheSize)
		if seed != nil {
			seed(i, privs, s)
		}

		nodes[i] = NewNode(conf, validator, peerSet, s, transports[i])
	}

	return nodes, privs, peerSet
}

func runNodes(nodes []*Node) {
	for _, n := range nodes {
		n.RunAsync(context.Background())
	}
}

func shutdownNodes(nodes []*Node) {
	for _, n := range nodes {
		n.Shutdown()
	}
}

func committedBlock(t *testing.T, privs []*ecdsa.PrivateKey, height uint64, prev crypto.Hash) messages.Block {
	header := messages.NewBlockHeader(height, time.Now(), prev, messages.TxHash(nil), crypto.Hash{})

	precommits := []messages.Precommit{}
	for i, key := range privs {
		pc, err := messages.NewPrecommit(uint32(i), height, 0, crypto.SHA256(prev.Bytes()), header.Hash(), key)
		require.NoError(t, err)
		precommits = append(precommits, pc)
	}

	block, err := messages.NewBlock(header, precommits, nil, privs[0])
	require.NoError(t, err)
	return block
}

func TestValidator(t *testing.T) {
	privs, peerSet := initPeers(t, 2, func(i int) string { return "" })

	v, err := NewValidator(privs[1], "node1", peerSet)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v.ID())
	assert.Equal(t, peerSet.ByID[1].PubKeyString(), v.PublicKeyHex())

	other, _ := initPeers(t, 1, func(i int) string { return "" })
	_, err = NewValidator(other[0], "", peerSet)
	assert.Error(t, err)
}

func TestNodeBlockSync(t *testing.T) {
	var b1 messages.Block

	// node 0 starts with two committed blocks
	nodes, _, _ := initNodes(t, 3, func(i int, privs []*ecdsa.PrivateKey, s store.Store) {
		if i != 0 {
			return
		}
		b0 := committedBlock(t, privs, 0, crypto.Hash{})
		b1 = committedBlock(t, privs, 1, b0.Hash())
		require.NoError(t, s.SetBlock(b0))
		require.NoError(t, s.SetBlock(b1))
	})
	assert.Equal(t, uint64(2), nodes[0].Height())
	assert.Equal(t, uint64(0), nodes[1].Height())

	runNodes(nodes)
	defer shutdownNodes(nodes)

	for _, n := range nodes[1:] {
		s := n.GetStore()
		require.Eventually(t, func() bool {
			last, ok := s.LastBlockHeight()
			return ok && last == 1
		}, 5*time.Second, 10*time.Millisecond)

		got, err := s.GetBlock(1)
		require.NoError(t, err)
		assert.Equal(t, b1.Hash(), got.Hash())
	}

	shutdownNodes(nodes)
	for _, n := range nodes {
		assert.Equal(t, Shutdown, n.GetState())
		assert.Equal(t, uint64(2), n.Height())
	}
}

func TestNodeTransactionRelay(t *testing.T) {
	nodes, privs, _ := initNodes(t, 3, nil)
	runNodes(nodes)
	defer shutdownNodes(nodes)

	tx := testTransaction(t, privs[0], "payload")
	nodes[0].SubmitTx(tx)

	for _, n := range nodes {
		s := n.GetStore()
		require.Eventually(t, func() bool {
			return s.Has(tx.Hash())
		}, 5*time.Second, 10*time.Millisecond)
	}
}

func TestNodeShutdownClosesCollaborators(t *testing.T) {
	nodes, _, _ := initNodes(t, 2, nil)
	runNodes(nodes)

	nodes[0].Shutdown()

	select {
	case <-nodes[0].Done():
	case <-time.After(time.Second):
		t.Fatal("node did not stop")
	}

	_, ok := <-nodes[0].trans.Events()
	for ok {
		_, ok = <-nodes[0].trans.Events()
	}

	_, err := nodes[0].GetStore().Put(testTransaction(t, nodes[0].validator.Key, "late"))
	assert.True(t, common.IsStore(err, common.Closed))

	// idempotent
	nodes[0].Shutdown()
	nodes[1].Shutdown()
}

func TestNodeContextCancel(t *testing.T) {
	nodes, _, _ := initNodes(t, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- nodes[0].Run(ctx) }()

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, Shutdown, nodes[0].GetState())
}

func TestNodeStats(t *testing.T) {
	var b0 messages.Block

	nodes, _, peerSet := initNodes(t, 2, func(i int, privs []*ecdsa.PrivateKey, s store.Store) {
		if i == 0 {
			b0 = committedBlock(t, privs, 0, crypto.Hash{})
			require.NoError(t, s.SetBlock(b0))
		}
	})
	defer shutdownNodes(nodes)

	stats := nodes[0].GetStats()
	assert.Equal(t, "0", stats["id"])
	assert.Equal(t, "Enabled", stats["state"])
	assert.Equal(t, "0", stats["last_block_height"])
	assert.Equal(t, "2", stats["num_peers"])
	assert.Equal(t, nodes[0].trans.AdvertiseAddr(), stats["addr"])
	assert.Equal(t, "0", stats["dropped_events"])

	assert.Equal(t, "-1", nodes[1].GetStats()["last_block_height"])

	block, err := nodes[0].GetBlock(0)
	require.NoError(t, err)
	assert.Equal(t, b0.Hash(), block.Hash())

	_, err = nodes[1].GetBlock(0)
	assert.True(t, common.IsStore(err, common.KeyNotFound))

	assert.Equal(t, peerSet.Peers, nodes[1].GetPeers())
}

func TestNodeShutdownBeforeRun(t *testing.T) {
	nodes, privs, _ := initNodes(t, 1, nil)
	n := nodes[0]

	stopped := make(chan struct{})
	go func() {
		n.Shutdown()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown blocked on a node that was never run")
	}

	assert.Equal(t, Shutdown, n.GetState())
	select {
	case <-n.Done():
	default:
		t.Fatal("Done should be closed")
	}

	status, err := messages.NewStatus(0, 0, crypto.Hash{}, privs[0])
	require.NoError(t, err)
	_, err = n.GetStore().Put(status.Raw())
	assert.True(t, common.IsStore(err, common.Closed))

	assert.Equal(t, ErrNodeStarted, n.Run(context.Background()))

	// a second Shutdown returns at once
	n.Shutdown()
}
