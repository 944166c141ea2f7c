package node

import (
	"crypto/ecdsa"
	"net"

	cm "github.com/mosaicnetworks/bftnode/src/common"
	"github.com/mosaicnetworks/bftnode/src/config"
	"github.com/mosaicnetworks/bftnode/src/crypto"
	"github.com/mosaicnetworks/bftnode/src/events"
	"github.com/mosaicnetworks/bftnode/src/messages"
	"github.com/mosaicnetworks/bftnode/src/peers"
	"github.com/mosaicnetworks/bftnode/src/store"
	"github.com/sirupsen/logrus"
)

// Handler is the EventHandler of a node. All its methods run on the event
// loop; it is not safe for concurrent use.
type Handler struct {
	conf      *config.Config
	validator *Validator
	peers     *peers.PeerSet
	store     store.Store
	sender    *events.NodeSender
	system    events.SystemStateProvider
	logger    *logrus.Entry

	st *state

	// addresses announced with Connect, by validator ID
	addrs map[uint32]string

	// height of the next block, and hash of the last one
	height   uint64
	lastHash crypto.Hash

	onShutdown func()
}

// NewHandler creates a Handler whose chain state is restored from the blocks
// already in the store.
func NewHandler(conf *config.Config,
	validator *Validator,
	peerSet *peers.PeerSet,
	store store.Store,
	sender *events.NodeSender,
	system events.SystemStateProvider,
	logger *logrus.Entry,
) *Handler {
	h := &Handler{
		conf:      conf,
		validator: validator,
		peers:     peerSet,
		store:     store,
		sender:    sender,
		system:    system,
		logger:    logger,
		st:        &state{},
		addrs:     make(map[uint32]string),
	}

	if last, ok := store.LastBlockHeight(); ok {
		if block, err := store.GetBlock(last); err == nil {
			h.height = last + 1
			h.lastHash = block.Hash()
		}
	}

	return h
}

// Height returns the height of the next block.
func (h *Handler) Height() uint64 {
	return h.height
}

// Start announces the node to its peers and arms the status timer.
func (h *Handler) Start() {
	h.connectPeers()
	h.scheduleStatus()
}

// HandleEvent implements the events.EventHandler interface.
func (h *Handler) HandleEvent(e events.Event) {
	if h.st.getState() == Shutdown {
		return
	}

	switch e.Kind {
	case events.NetworkEventKind:
		h.handleNetworkEvent(e.Network)
	case events.TimeoutEventKind:
		h.handleTimeout(e.Timeout)
	case events.APIEventKind:
		h.handleAPI(e.API)
	}
}

/*******************************************************************************
Network
*******************************************************************************/

func (h *Handler) handleNetworkEvent(ev events.NetworkEvent) {
	switch ev.Type {
	case events.MessageReceived:
		h.handleMessage(ev.Addr, ev.Message)
	case events.PeerConnected, events.PeerDisconnected:
		h.logger.WithField("peer", ev.Addr).Debug(ev.Type.String())
	case events.UnableConnectToPeer:
		h.logger.WithFields(logrus.Fields{
			"peer":    ev.Addr,
			"message": ev.Message,
		}).Warn("Unable to connect to peer")
	}
}

func (h *Handler) handleMessage(from string, raw messages.RawMessage) {
	logger := h.logger.WithFields(logrus.Fields{
		"from":    from,
		"message": raw,
	})

	if raw.NetworkID() != h.conf.NetworkID {
		logger.WithField("network_id", raw.NetworkID()).Warn("Dropping message from another network")
		return
	}

	if raw.Class() != messages.ClassConsensus {
		h.storeTransaction(raw, logger)
		return
	}

	msg, err := messages.Decode(raw)
	if err != nil {
		logger.WithError(err).Warn("Dropping malformed message")
		return
	}

	if !h.authenticate(msg) {
		logger.Warn("Dropping unauthenticated message")
		return
	}

	// Connect, Status and RequestBlock are repeated verbatim and are not kept.
	switch m := msg.(type) {
	case messages.Connect:
		h.handleConnect(m)
		return
	case messages.Status:
		h.handleStatus(m)
		return
	case messages.RequestBlock:
		h.handleRequestBlock(m)
		return
	}

	if block, ok := msg.(messages.Block); ok && !h.extendsChain(block) {
		return
	}

	if _, err := h.store.Put(raw); err != nil {
		if cm.IsStore(err, cm.KeyAlreadyExists) {
			logger.Debug("Duplicate message")
		} else {
			logger.WithError(err).Error("Storing message")
		}
		return
	}

	if block, ok := msg.(messages.Block); ok {
		h.handleBlock(block)
	}
}

// authenticate checks that msg is signed by a member of the peer-set.
func (h *Handler) authenticate(msg messages.Message) bool {
	switch m := msg.(type) {
	case messages.Connect:
		_, ok := h.peers.ByKey(m.PubKey())
		return ok && m.VerifySelf()
	case messages.Status:
		return m.Verify(h.peers.PubKey(m.Validator()))
	case messages.Propose:
		return m.Verify(h.peers.PubKey(m.Validator()))
	case messages.Prevote:
		return m.Verify(h.peers.PubKey(m.Validator()))
	case messages.Precommit:
		return m.Verify(h.peers.PubKey(m.Validator()))
	case messages.Block:
		return m.TransactionsMatch() && h.justified(m)
	case messages.RequestBlock:
		_, ok := h.peers.ByKey(m.From())
		return ok && m.VerifySelf()
	default:
		return false
	}
}

func (h *Handler) handleConnect(m messages.Connect) {
	peer, _ := h.peers.ByKey(m.PubKey())
	addr := m.Addr().String()

	h.logger.WithFields(logrus.Fields{
		"peer": peer.ID,
		"addr": addr,
	}).Debug("Connect")

	h.addrs[peer.ID] = addr
}

func (h *Handler) handleStatus(m messages.Status) {
	if m.Height() <= h.height {
		return
	}

	peer := h.peers.ByID[m.Validator()]

	h.logger.WithFields(logrus.Fields{
		"peer":         peer.ID,
		"peer_height":  m.Height(),
		"local_height": h.height,
	}).Debug("Peer is ahead, requesting block")

	pub, _ := peer.PubKey()
	h.requestBlock(peer, pub)
}

func (h *Handler) requestBlock(peer *peers.Peer, pub *ecdsa.PublicKey) {
	raw, err := h.encode(messages.RequestBlockSchema,
		h.validator.PublicKey(), pub, h.system.CurrentTime(), h.height)
	if err != nil {
		h.logger.WithError(err).Error("Encoding RequestBlock")
		return
	}
	h.sender.SendTo(h.peerAddr(peer), raw)
}

// justified checks that a block carries valid precommits for its hash from a
// super-majority of distinct validators, and that one of them signed the block.
func (h *Handler) justified(m messages.Block) bool {
	if m.VerifyPrecommits(h.peers.PubKey) != -1 {
		return false
	}

	hash := m.Hash()
	signers := make(map[uint32]bool)
	for _, p := range m.Precommits() {
		if p.BlockHash() != hash {
			return false
		}
		signers[p.Validator()] = true
	}
	if len(signers) < h.peers.SuperMajority() {
		return false
	}

	for id := range signers {
		if m.Verify(h.peers.PubKey(id)) {
			return true
		}
	}
	return false
}

// extendsChain reports whether m is the next block on top of the local tip.
// Later blocks are requested again once a Status shows the peer is still
// ahead.
func (h *Handler) extendsChain(m messages.Block) bool {
	logger := h.logger.WithFields(logrus.Fields{
		"block_height": m.Height(),
		"local_height": h.height,
	})

	if m.Height() != h.height {
		logger.Debug("Ignoring block at unexpected height")
		return false
	}

	if m.Header().PrevHash != h.lastHash {
		logger.WithFields(logrus.Fields{
			"prev_hash": m.Header().PrevHash,
			"last_hash": h.lastHash,
		}).Warn("Dropping block that does not extend the chain")
		return false
	}

	return true
}

// handleBlock commits a block that extends the chain.
func (h *Handler) handleBlock(m messages.Block) {
	if err := h.store.SetBlock(m); err != nil {
		h.logger.WithError(err).Error("Storing block")
		return
	}

	h.height++
	h.lastHash = m.Hash()

	h.logger.WithFields(logrus.Fields{
		"height": m.Height(),
		"hash":   h.lastHash,
		"txs":    len(m.Transactions()),
	}).Info("Committed block")
}

func (h *Handler) handleRequestBlock(m messages.RequestBlock) {
	if !keysEqual(m.To(), h.validator.PublicKey()) {
		h.logger.Debug("RequestBlock addressed to another node")
		return
	}

	peer, _ := h.peers.ByKey(m.From())

	block, err := h.store.GetBlock(m.Height())
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"peer":   peer.ID,
			"height": m.Height(),
		}).Debug("Requested block not found")
		return
	}

	h.sender.SendTo(h.peerAddr(peer), block.Raw())
}

func (h *Handler) storeTransaction(raw messages.RawMessage, logger *logrus.Entry) bool {
	if _, err := h.store.Put(raw); err != nil {
		if cm.IsStore(err, cm.KeyAlreadyExists) {
			logger.Debug("Duplicate transaction")
		} else {
			logger.WithError(err).Error("Storing transaction")
		}
		return false
	}
	return true
}

/*******************************************************************************
Timeouts
*******************************************************************************/

func (h *Handler) handleTimeout(t events.NodeTimeout) {
	switch t.Kind {
	case events.StatusTimeout:
		h.broadcastStatus()
		h.scheduleStatus()
	default:
		h.logger.WithFields(logrus.Fields{
			"kind":   t.Kind,
			"height": t.Height,
			"round":  t.Round,
		}).Debug("Ignoring timeout")
	}
}

func (h *Handler) scheduleStatus() {
	h.sender.AddTimeout(
		events.NodeTimeout{Kind: events.StatusTimeout, Height: h.height},
		h.system.CurrentTime().Add(h.conf.StatusTimeout),
	)
}

func (h *Handler) broadcastStatus() {
	if h.st.getState() != Enabled {
		return
	}

	raw, err := h.encode(messages.StatusSchema, h.validator.ID(), h.height, h.lastHash)
	if err != nil {
		h.logger.WithError(err).Error("Encoding Status")
		return
	}
	h.broadcast(raw)
}

/*******************************************************************************
API
*******************************************************************************/

func (h *Handler) handleAPI(m events.ExternalMessage) {
	switch m.Kind {
	case events.Transaction:
		logger := h.logger.WithField("transaction", m.Transaction)
		if m.Transaction.NetworkID() != h.conf.NetworkID {
			logger.Warn("Rejecting transaction for another network")
			return
		}
		if h.storeTransaction(m.Transaction, logger) {
			h.broadcast(m.Transaction)
		}
	case events.PeerAdd:
		h.addPeer(m.Addr, m.PubKey)
	case events.Enable:
		if m.Enabled {
			h.st.setState(Enabled)
		} else {
			h.st.setState(Disabled)
		}
		h.logger.WithField("state", h.st.getState()).Info("Node state changed")
	case events.Shutdown:
		h.shutdown()
	}
}

// addPeer records a new address for a validator and sends it a Connect.
func (h *Handler) addPeer(addr string, pub *ecdsa.PublicKey) {
	peer, ok := h.peers.ByKey(pub)
	if !ok {
		h.logger.WithField("addr", addr).Warn("Ignoring PeerAdd for unknown public key")
		return
	}

	h.addrs[peer.ID] = addr
	if raw, ok := h.connectMessage(); ok {
		h.sender.SendTo(addr, raw)
	}
}

func (h *Handler) shutdown() {
	h.logger.Debug("Shutting down")

	h.st.setState(Shutdown)
	h.sender.ShutdownNetwork()

	if h.onShutdown != nil {
		h.onShutdown()
	}
}

/*******************************************************************************
Helpers
*******************************************************************************/

func (h *Handler) encode(schema *messages.Schema, values ...interface{}) (messages.RawMessage, error) {
	return schema.EncodeNetwork(h.conf.NetworkID, h.validator.Key, values...)
}

// connectMessage builds the Connect announcing our listen address. Nodes
// whose address is not an IPv4 socket address do not announce themselves.
func (h *Handler) connectMessage() (messages.RawMessage, bool) {
	addr, err := net.ResolveTCPAddr("tcp", h.system.ListenAddress())
	if err != nil || addr.IP.To4() == nil {
		h.logger.WithField("addr", h.system.ListenAddress()).Debug("Listen address cannot be announced")
		return messages.RawMessage{}, false
	}

	raw, err := h.encode(messages.ConnectSchema, h.validator.PublicKey(), addr, h.system.CurrentTime())
	if err != nil {
		h.logger.WithError(err).Error("Encoding Connect")
		return messages.RawMessage{}, false
	}
	return raw, true
}

func (h *Handler) connectPeers() {
	raw, ok := h.connectMessage()
	if !ok {
		return
	}
	h.broadcast(raw)
}

func (h *Handler) broadcast(raw messages.RawMessage) {
	for _, p := range h.peers.Peers {
		if p.ID == h.validator.ID() {
			continue
		}
		h.sender.SendTo(h.peerAddr(p), raw)
	}
}

func (h *Handler) peerAddr(p *peers.Peer) string {
	if addr, ok := h.addrs[p.ID]; ok {
		return addr
	}
	return p.NetAddr
}

func keysEqual(a, b *ecdsa.PublicKey) bool {
	if a == nil || b == nil {
		return false
	}
	return a.X.Cmp(b.X) == 0 && a.Y.Cmp(b.Y) == 0
}
