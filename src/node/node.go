package node

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/mosaicnetworks/bftnode/src/config"
	"github.com/mosaicnetworks/bftnode/src/events"
	"github.com/mosaicnetworks/bftnode/src/messages"
	"github.com/mosaicnetworks/bftnode/src/net"
	"github.com/mosaicnetworks/bftnode/src/peers"
	"github.com/mosaicnetworks/bftnode/src/store"
	"github.com/sirupsen/logrus"
)

// ErrNodeStarted is returned by Run when the node was already started or shut
// down.
var ErrNodeStarted = errors.New("node already started")

// Node defines a bftnode node
type Node struct {
	state

	conf   *config.Config
	logger *logrus.Entry

	validator *Validator
	peers     *peers.PeerSet
	store     store.Store
	trans     net.Transport

	sender   *events.NodeSender
	receiver *events.NodeReceiver
	timer    *events.Timer
	handler  *Handler

	cancel     context.CancelFunc
	started    bool
	cancelLock sync.Mutex
	shutdownCh chan struct{}
}

// NewNode is a factory method that returns a Node instance
func NewNode(conf *config.Config,
	validator *Validator,
	peerSet *peers.PeerSet,
	store store.Store,
	trans net.Transport,
) *Node {
	logger := conf.Logger().WithFields(logrus.Fields{
		"this_id": validator.ID(),
		"moniker": validator.Moniker,
	})

	sender, receiver := events.NewNodeChannelWithBacklog(conf.ChannelCapacity, conf.MaxBacklog, logger.WithField("ns", "channel"))

	node := &Node{
		conf:       conf,
		logger:     logger,
		validator:  validator,
		peers:      peerSet,
		store:      store,
		trans:      trans,
		sender:     sender,
		receiver:   receiver,
		timer:      events.NewTimer(receiver.Timeout, conf.ChannelCapacity, logger.WithField("ns", "timer")),
		shutdownCh: make(chan struct{}),
	}

	node.handler = NewHandler(conf,
		validator,
		peerSet,
		store,
		sender,
		events.DefaultSystemState{Addr: trans.AdvertiseAddr()},
		logger,
	)
	node.handler.st = &node.state
	node.handler.onShutdown = node.stop

	return node
}

// RunAsync calls Run as a separate goroutine
func (n *Node) RunAsync(ctx context.Context) {
	go n.Run(ctx)
}

// Run starts the collaborators of the node and processes events until the
// node is shut down or ctx is cancelled. The transport, the timer and the
// store are closed when Run returns.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n.cancelLock.Lock()
	if n.started {
		n.cancelLock.Unlock()
		return ErrNodeStarted
	}
	n.started = true
	n.cancel = cancel
	n.cancelLock.Unlock()

	defer close(n.shutdownCh)

	n.goFunc(n.trans.Listen)
	n.goFunc(n.timer.Run)
	n.goFunc(func() {
		if err := net.Pump(ctx, n.receiver.Network, n.trans, n.logger.WithField("ns", "pump")); err != nil && err != context.Canceled {
			n.logger.WithError(err).Error("Network pump")
		}
	})

	n.logger.WithFields(logrus.Fields{
		"addr":   n.trans.AdvertiseAddr(),
		"peers":  n.peers.Len(),
		"height": n.handler.Height(),
	}).Info("Starting node")

	n.handler.Start()

	aggregator := events.NewAggregator(n.timer.C(), n.trans.Events(), n.receiver.API)
	err := aggregator.Run(ctx, n.handler)

	n.setState(Shutdown)
	n.cleanup()

	if err == context.Canceled {
		return nil
	}
	return err
}

func (n *Node) cleanup() {
	n.receiver.Close()
	n.timer.Shutdown()
	if err := n.trans.Close(); err != nil {
		n.logger.WithError(err).Error("Closing transport")
	}

	n.waitRoutines()

	if err := n.store.Close(); err != nil {
		n.logger.WithError(err).Error("Closing store")
	}

	n.logger.Debug("Node stopped")
}

// stop cancels the context of Run.
func (n *Node) stop() {
	n.cancelLock.Lock()
	defer n.cancelLock.Unlock()

	if n.cancel != nil {
		n.cancel()
	}
}

// SubmitTx submits a transaction to the node. It is stored and relayed to
// every peer.
func (n *Node) SubmitTx(tx messages.RawMessage) {
	n.sender.PostEvent(events.ExternalMessage{Kind: events.Transaction, Transaction: tx})
}

// AddPeer gives the node a new address for a validator.
func (n *Node) AddPeer(addr string, peer *peers.Peer) error {
	pub, err := peer.PubKey()
	if err != nil {
		return err
	}
	n.sender.PostEvent(events.ExternalMessage{Kind: events.PeerAdd, Addr: addr, PubKey: pub})
	return nil
}

// SetEnabled turns the Status broadcast on or off.
func (n *Node) SetEnabled(enabled bool) {
	n.sender.PostEvent(events.ExternalMessage{Kind: events.Enable, Enabled: enabled})
}

// Shutdown asks the event loop to stop and waits for Run to return.
// A node that was never run is closed directly.
func (n *Node) Shutdown() {
	n.cancelLock.Lock()
	if n.getState() == Shutdown {
		n.cancelLock.Unlock()
		return
	}
	if !n.started {
		n.started = true
		n.setState(Shutdown)
		n.cancelLock.Unlock()

		n.cleanup()
		close(n.shutdownCh)
		return
	}
	n.cancelLock.Unlock()

	n.sender.PostEvent(events.ExternalMessage{Kind: events.Shutdown})
	<-n.shutdownCh
}

// Done is closed when Run returns.
func (n *Node) Done() <-chan struct{} {
	return n.shutdownCh
}

// GetState returns the state of the node.
func (n *Node) GetState() State {
	return n.getState()
}

// GetStore returns the message store.
func (n *Node) GetStore() store.Store {
	return n.store
}

// Height returns the height of the next block. It is only safe to call once
// the node has stopped.
func (n *Node) Height() uint64 {
	return n.handler.Height()
}

// GetStats returns a snapshot of the node's counters. It is safe to call
// while the node is running.
func (n *Node) GetStats() map[string]string {
	lastBlock := "-1"
	if h, ok := n.store.LastBlockHeight(); ok {
		lastBlock = strconv.FormatUint(h, 10)
	}

	return map[string]string{
		"id":                strconv.FormatUint(uint64(n.validator.ID()), 10),
		"moniker":           n.validator.Moniker,
		"state":             n.getState().String(),
		"last_block_height": lastBlock,
		"num_messages":      strconv.Itoa(n.store.Len()),
		"num_peers":         strconv.Itoa(n.peers.Len()),
		"network_id":        strconv.Itoa(int(n.conf.NetworkID)),
		"addr":              n.trans.AdvertiseAddr(),
		"dropped_events":    strconv.FormatUint(n.sender.Dropped(), 10),
	}
}

// GetBlock returns the committed block at height.
func (n *Node) GetBlock(height uint64) (messages.Block, error) {
	return n.store.GetBlock(height)
}

// GetPeers returns the validators of the network, ordered by ID.
func (n *Node) GetPeers() []*peers.Peer {
	return n.peers.Peers
}
