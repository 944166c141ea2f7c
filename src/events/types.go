package events

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/mosaicnetworks/bftnode/src/messages"
)

// NetworkEventType ...
type NetworkEventType uint8

const (
	// MessageReceived carries an inbound message.
	MessageReceived NetworkEventType = iota
	// PeerConnected is emitted when a connection with a peer is established.
	PeerConnected
	// PeerDisconnected is emitted when a connection with a peer is lost.
	PeerDisconnected
	// UnableConnectToPeer is emitted when a message could not be delivered.
	UnableConnectToPeer
)

func (t NetworkEventType) String() string {
	switch t {
	case MessageReceived:
		return "MessageReceived"
	case PeerConnected:
		return "PeerConnected"
	case PeerDisconnected:
		return "PeerDisconnected"
	case UnableConnectToPeer:
		return "UnableConnectToPeer"
	default:
		return fmt.Sprintf("NetworkEventType(%d)", uint8(t))
	}
}

// NetworkEvent is produced by the transport.
type NetworkEvent struct {
	Type    NetworkEventType
	Addr    string
	Message messages.RawMessage
}

// NetworkRequestType ...
type NetworkRequestType uint8

const (
	// SendMessage asks the transport to deliver Message to Addr.
	SendMessage NetworkRequestType = iota
	// DisconnectWithPeer asks the transport to drop its connection to Addr.
	DisconnectWithPeer
	// ShutdownNetwork asks the transport to stop.
	ShutdownNetwork
)

func (t NetworkRequestType) String() string {
	switch t {
	case SendMessage:
		return "SendMessage"
	case DisconnectWithPeer:
		return "DisconnectWithPeer"
	case ShutdownNetwork:
		return "Shutdown"
	default:
		return fmt.Sprintf("NetworkRequestType(%d)", uint8(t))
	}
}

// NetworkRequest is consumed by the transport.
type NetworkRequest struct {
	Type    NetworkRequestType
	Addr    string
	Message messages.RawMessage
}

// TimeoutKind ...
type TimeoutKind uint8

const (
	// StatusTimeout triggers the periodic Status gossip.
	StatusTimeout TimeoutKind = iota
	// RoundTimeout ends a consensus round.
	RoundTimeout
	// RequestTimeout expires an outstanding request.
	RequestTimeout
	// PeerExchangeTimeout triggers a peer exchange.
	PeerExchangeTimeout
)

func (k TimeoutKind) String() string {
	switch k {
	case StatusTimeout:
		return "Status"
	case RoundTimeout:
		return "Round"
	case RequestTimeout:
		return "Request"
	case PeerExchangeTimeout:
		return "PeerExchange"
	default:
		return fmt.Sprintf("TimeoutKind(%d)", uint8(k))
	}
}

// NodeTimeout is delivered to the reactor when a scheduled timeout fires. The
// handler decides whether it is still relevant.
type NodeTimeout struct {
	Kind   TimeoutKind
	Height uint64
	Round  uint32
}

// TimeoutRequest schedules Timeout to fire at At.
type TimeoutRequest struct {
	At      time.Time
	Timeout NodeTimeout
}

// ExternalMessageKind ...
type ExternalMessageKind uint8

const (
	// Transaction submits a transaction to the node.
	Transaction ExternalMessageKind = iota
	// PeerAdd registers a peer address and key.
	PeerAdd
	// Enable switches consensus participation on or off.
	Enable
	// Shutdown stops the node.
	Shutdown
)

func (k ExternalMessageKind) String() string {
	switch k {
	case Transaction:
		return "Transaction"
	case PeerAdd:
		return "PeerAdd"
	case Enable:
		return "Enable"
	case Shutdown:
		return "Shutdown"
	default:
		return fmt.Sprintf("ExternalMessageKind(%d)", uint8(k))
	}
}

// ExternalMessage is posted by the local API.
type ExternalMessage struct {
	Kind ExternalMessageKind
	// Transaction
	Transaction messages.RawMessage
	// PeerAdd
	Addr   string
	PubKey *ecdsa.PublicKey
	// Enable
	Enabled bool
}

// EventKind tags the variant held by an Event.
type EventKind uint8

const (
	// NetworkEventKind ...
	NetworkEventKind EventKind = iota
	// TimeoutEventKind ...
	TimeoutEventKind
	// APIEventKind ...
	APIEventKind
)

func (k EventKind) String() string {
	switch k {
	case NetworkEventKind:
		return "Network"
	case TimeoutEventKind:
		return "Timeout"
	case APIEventKind:
		return "Api"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is what the reactor consumes. Only the member matching Kind is set.
type Event struct {
	Kind    EventKind
	Network NetworkEvent
	Timeout NodeTimeout
	API     ExternalMessage
}

// NewNetworkEvent ...
func NewNetworkEvent(e NetworkEvent) Event {
	return Event{Kind: NetworkEventKind, Network: e}
}

// NewTimeoutEvent ...
func NewTimeoutEvent(t NodeTimeout) Event {
	return Event{Kind: TimeoutEventKind, Timeout: t}
}

// NewAPIEvent ...
func NewAPIEvent(m ExternalMessage) Event {
	return Event{Kind: APIEventKind, API: m}
}

// EventHandler is implemented by the reactor.
type EventHandler interface {
	HandleEvent(Event)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(Event)

// HandleEvent implements EventHandler.
func (f EventHandlerFunc) HandleEvent(e Event) {
	f(e)
}

// SystemStateProvider gives the handler access to its environment.
type SystemStateProvider interface {
	ListenAddress() string
	CurrentTime() time.Time
}

// DefaultSystemState uses the wall clock.
type DefaultSystemState struct {
	Addr string
}

// ListenAddress ...
func (s DefaultSystemState) ListenAddress() string {
	return s.Addr
}

// CurrentTime ...
func (s DefaultSystemState) CurrentTime() time.Time {
	return time.Now()
}
