package net

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/mosaicnetworks/bftnode/src/events"
	"github.com/mosaicnetworks/bftnode/src/messages"
)

// NewInmemAddr returns a new in-memory addr with
// a randomly generate UUID as the ID.
func NewInmemAddr() string {
	return generateUUID()
}

// generateUUID is used to generate a random UUID.
func generateUUID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%12x",
		buf[0:4],
		buf[4:6],
		buf[6:8],
		buf[8:10],
		buf[10:16])
}

// InmemTransport Implements the Transport interface, to allow nodes to be
// tested in-memory without going over a network. Messages are copied on
// delivery, as they would be by a real network.
type InmemTransport struct {
	sync.RWMutex
	eventCh   chan events.NetworkEvent
	localAddr string
	peers     map[string]*InmemTransport
	timeout   time.Duration
	shutdown  bool
}

// NewInmemTransport is used to initialize a new transport
// and generates a random local address if none is specified
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		eventCh:   make(chan events.NetworkEvent, 16),
		localAddr: addr,
		peers:     make(map[string]*InmemTransport),
		timeout:   50 * time.Millisecond,
	}
	return addr, trans
}

// Listen implements the Transport interface. Routes are set up with Connect.
func (i *InmemTransport) Listen() {}

// Events implements the Transport interface.
func (i *InmemTransport) Events() <-chan events.NetworkEvent {
	return i.eventCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Send implements the Transport interface.
func (i *InmemTransport) Send(target string, raw messages.RawMessage) error {
	i.RLock()
	peer, ok := i.peers[target]
	shutdown := i.shutdown
	i.RUnlock()

	if shutdown {
		return ErrTransportShutdown
	}

	var err error
	if !ok {
		err = fmt.Errorf("failed to connect to peer: %v", target)
	} else {
		err = peer.deliver(events.NetworkEvent{
			Type:    events.MessageReceived,
			Addr:    i.localAddr,
			Message: raw,
		}, i.timeout)
	}

	if err != nil {
		i.deliver(events.NetworkEvent{
			Type:    events.UnableConnectToPeer,
			Addr:    target,
			Message: raw,
		}, i.timeout)
	}
	return err
}

// deliver copies the message into a fresh envelope and queues the event.
func (i *InmemTransport) deliver(ev events.NetworkEvent, timeout time.Duration) error {
	if !ev.Message.IsZero() {
		copied, err := messages.NewRawMessage(ev.Message.Bytes())
		if err != nil {
			return err
		}
		ev.Message = copied
	}

	i.RLock()
	defer i.RUnlock()

	if i.shutdown {
		return ErrTransportShutdown
	}

	select {
	case i.eventCh <- ev:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("send timed out")
	}
}

// Connect is used to connect this transport to another transport for a given
// peer name. This allows for local routing.
func (i *InmemTransport) Connect(peer string, trans *InmemTransport) {
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = trans
}

// Disconnect implements the Transport interface. It removes the route to the
// peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close implements the Transport interface. It closes the event channel.
func (i *InmemTransport) Close() error {
	i.Lock()
	defer i.Unlock()

	if !i.shutdown {
		i.shutdown = true
		i.peers = make(map[string]*InmemTransport)
		close(i.eventCh)
	}
	return nil
}
