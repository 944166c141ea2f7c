package net

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/mosaicnetworks/bftnode/src/events"
	"github.com/mosaicnetworks/bftnode/src/messages"
	"github.com/sirupsen/logrus"
)

const (
	bufSize = 64 * 1024

	// DefaultMaxMessageSize bounds inbound frames.
	DefaultMaxMessageSize = 16 * 1024 * 1024

	eventBufferSize = 128
)

/*
NetworkTransport sends signed messages over a StreamLayer. Connections are
one-way: the dialer writes frames and the acceptor reads them and publishes
them as MessageReceived events. Replies travel over the connection the
responder dials back.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	inbound     map[net.Conn]struct{}
	inboundLock sync.Mutex

	eventCh chan events.NetworkEvent

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex
	wg           sync.WaitGroup

	stream StreamLayer

	timeout        time.Duration
	maxMessageSize int
}

type netConn struct {
	target string
	conn   net.Conn
	w      *bufio.Writer
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

// NewNetworkTransport creates a new network transport with the given stream
// layer. The maxPool controls how many connections we will pool (per target).
// The timeout is used to apply I/O deadlines to outbound writes.
func NewNetworkTransport(
	stream StreamLayer,
	maxPool int,
	timeout time.Duration,
	maxMessageSize int,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}

	return &NetworkTransport{
		connPool:       make(map[string][]*netConn),
		inbound:        make(map[net.Conn]struct{}),
		eventCh:        make(chan events.NetworkEvent, eventBufferSize),
		logger:         logger,
		maxPool:        maxPool,
		shutdownCh:     make(chan struct{}),
		stream:         stream,
		timeout:        timeout,
		maxMessageSize: maxMessageSize,
	}
}

// Close stops the transport. It waits for inbound connection handlers to
// return before closing the event channel.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	if n.shutdown {
		n.shutdownLock.Unlock()
		return nil
	}
	n.shutdown = true
	close(n.shutdownCh)
	n.shutdownLock.Unlock()

	err := n.stream.Close()

	n.inboundLock.Lock()
	for c := range n.inbound {
		c.Close()
	}
	n.inboundLock.Unlock()

	n.connPoolLock.Lock()
	for target, conns := range n.connPool {
		for _, c := range conns {
			c.Release()
		}
		delete(n.connPool, target)
	}
	n.connPoolLock.Unlock()

	n.wg.Wait()
	close(n.eventCh)

	return err
}

// Events implements the Transport interface.
func (n *NetworkTransport) Events() <-chan events.NetworkEvent {
	return n.eventCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	addr := n.stream.Addr()

	if addr != nil {
		return addr.String()
	}

	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// track registers a goroutine that may publish events. It returns false once
// the transport is shut down.
func (n *NetworkTransport) track() bool {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()
	if n.shutdown {
		return false
	}
	n.wg.Add(1)
	return true
}

func (n *NetworkTransport) emit(ev events.NetworkEvent) {
	if !n.track() {
		return
	}
	defer n.wg.Done()

	select {
	case n.eventCh <- ev:
	case <-n.shutdownCh:
	}
}

// getPooledConn is used to grab a pooled connection.
func (n *NetworkTransport) getPooledConn(target string) *netConn {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns, ok := n.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *netConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	n.connPool[target] = conns[:num-1]
	return conn
}

// dial opens a new connection to target.
func (n *NetworkTransport) dial(target string) (*netConn, error) {
	conn, err := n.stream.Dial(target, n.timeout)
	if err != nil {
		return nil, err
	}

	return &netConn{
		target: target,
		conn:   conn,
		w:      bufio.NewWriterSize(conn, bufSize),
	}, nil
}

// returnConn returns a connection back to the pool.
func (n *NetworkTransport) returnConn(conn *netConn) {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	key := conn.target
	conns := n.connPool[key]

	if !n.IsShutdown() && len(conns) < n.maxPool {
		n.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}

// Send implements the Transport interface. A pooled connection that fails is
// discarded and the write is retried once on a fresh connection.
func (n *NetworkTransport) Send(target string, raw messages.RawMessage) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	err := n.send(target, raw)
	if err != nil {
		n.logger.WithError(err).WithField("target", target).Debug("Send failed")
		n.emit(events.NetworkEvent{
			Type:    events.UnableConnectToPeer,
			Addr:    target,
			Message: raw,
		})
	}
	return err
}

func (n *NetworkTransport) send(target string, raw messages.RawMessage) error {
	if conn := n.getPooledConn(target); conn != nil {
		if err := n.write(conn, raw); err == nil {
			n.returnConn(conn)
			return nil
		}
	}

	conn, err := n.dial(target)
	if err != nil {
		return err
	}
	if err := n.write(conn, raw); err != nil {
		return err
	}
	n.returnConn(conn)
	return nil
}

// write sends one frame and releases the connection on failure.
func (n *NetworkTransport) write(conn *netConn, raw messages.RawMessage) error {
	if n.timeout > 0 {
		conn.conn.SetWriteDeadline(time.Now().Add(n.timeout))
	}
	if err := writeFrame(conn.w, raw.Bytes()); err != nil {
		conn.Release()
		return err
	}
	return nil
}

// Disconnect implements the Transport interface.
func (n *NetworkTransport) Disconnect(target string) {
	n.connPoolLock.Lock()
	conns := n.connPool[target]
	delete(n.connPool, target)
	n.connPoolLock.Unlock()

	for _, c := range conns {
		c.Release()
	}
}

// Listen opens the stream and handles incoming connections.
func (n *NetworkTransport) Listen() {
	if !n.track() {
		return
	}
	defer n.wg.Done()

	for {
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		if !n.track() {
			conn.Close()
			return
		}
		go n.handleConn(conn)
	}
}

// handleConn reads frames from an inbound connection for its lifespan.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	defer n.wg.Done()

	n.inboundLock.Lock()
	n.inbound[conn] = struct{}{}
	if n.IsShutdown() {
		conn.Close()
	}
	n.inboundLock.Unlock()

	addr := conn.RemoteAddr().String()

	defer func() {
		n.inboundLock.Lock()
		delete(n.inbound, conn)
		n.inboundLock.Unlock()
		conn.Close()
		n.emit(events.NetworkEvent{Type: events.PeerDisconnected, Addr: addr})
	}()

	n.emit(events.NetworkEvent{Type: events.PeerConnected, Addr: addr})

	r := bufio.NewReaderSize(conn, bufSize)

	for {
		payload, err := readFrame(r, n.maxMessageSize)
		if err != nil {
			switch {
			case n.IsShutdown(), err == io.EOF:
			case errors.Is(err, ErrMessageTooLarge):
				n.logger.WithError(err).WithField("from", addr).Warn("Dropping connection")
			default:
				n.logger.WithError(err).WithField("from", addr).Debug("Connection closed")
			}
			return
		}

		raw, err := messages.NewRawMessage(payload)
		if err != nil {
			n.logger.WithError(err).WithField("from", addr).Warn("Discarding malformed frame")
			continue
		}

		n.emit(events.NetworkEvent{
			Type:    events.MessageReceived,
			Addr:    addr,
			Message: raw,
		})
	}
}
