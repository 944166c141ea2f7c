package net

import (
	"errors"

	"github.com/mosaicnetworks/bftnode/src/events"
	"github.com/mosaicnetworks/bftnode/src/messages"
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrMessageTooLarge is returned for frames exceeding the maximum size.
	ErrMessageTooLarge = errors.New("message too large")
)

// Transport provides an interface for network transports to allow a node to
// communicate with other nodes.
type Transport interface {

	// Listen accepts inbound connections until the transport is closed.
	Listen()

	// Events returns the stream of inbound messages and connection changes.
	// It is closed by Close.
	Events() <-chan events.NetworkEvent

	// Send delivers a message to the node listening at target. A failure is
	// also reported as an UnableConnectToPeer event.
	Send(target string, raw messages.RawMessage) error

	// Disconnect releases the connections held for target.
	Disconnect(target string)

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
