package net

import (
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	errNotAdvertisable = errors.New("local bind address is not advertisable")
	errNotTCP          = errors.New("local address is not a TCP address")
)

// StreamLayer is the listener and dialer a NetworkTransport runs on.
type StreamLayer interface {
	net.Listener

	Dial(address string, timeout time.Duration) (net.Conn, error)

	// AdvertiseAddr is the address peers should dial.
	AdvertiseAddr() string
}

// tcpStreamLayer is a StreamLayer over plain TCP. Addr reports the advertised
// address rather than the bound one.
type tcpStreamLayer struct {
	*net.TCPListener
	advertise *net.TCPAddr
}

func (t *tcpStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", address, timeout)
}

func (t *tcpStreamLayer) Addr() net.Addr {
	return t.advertise
}

func (t *tcpStreamLayer) AdvertiseAddr() string {
	return t.advertise.String()
}

// advertiseAddr picks the address announced to peers: advertise when set,
// the bound address otherwise. It must be a routable TCP address.
func advertiseAddr(bound net.Addr, advertise string) (*net.TCPAddr, error) {
	addr := bound
	if advertise != "" {
		resolved, err := net.ResolveTCPAddr("tcp", advertise)
		if err != nil {
			return nil, err
		}
		addr = resolved
	}

	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, errNotTCP
	}
	if tcpAddr.IP.IsUnspecified() {
		return nil, errNotAdvertisable
	}
	return tcpAddr, nil
}

// NewTCPTransport listens on bindAddr and returns a NetworkTransport over it.
// advertise overrides the address given to peers, for when bindAddr is not
// routable.
func NewTCPTransport(
	bindAddr string,
	advertise string,
	maxPool int,
	timeout time.Duration,
	maxMessageSize int,
	logger *logrus.Entry,
) (*NetworkTransport, error) {

	list, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	addr, err := advertiseAddr(list.Addr(), advertise)
	if err != nil {
		list.Close()
		return nil, err
	}

	stream := &tcpStreamLayer{
		TCPListener: list.(*net.TCPListener),
		advertise:   addr,
	}

	return NewNetworkTransport(stream, maxPool, timeout, maxMessageSize, logger), nil
}
