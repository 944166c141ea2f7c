package events

import (
	"sync"
	"time"

	"github.com/mosaicnetworks/bftnode/src/messages"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultCapacity is the default size of every NodeChannel queue.
	DefaultCapacity = 1024
	// DefaultMaxBacklog is the default number of items a queue holds once its
	// channel is full. Further items are dropped.
	DefaultMaxBacklog = 64 * 1024
)

// queue is the sending half of one bounded channel. When the channel is full,
// up to maxBacklog items are kept in a backlog that a single flusher goroutine
// forwards in order.
type queue[T any] struct {
	name       string
	ch         chan T
	done       <-chan struct{}
	maxBacklog int
	logger     *logrus.Entry

	mu       sync.Mutex
	backlog  []T
	flushing bool
	dropped  uint64
}

func (q *queue[T]) push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-q.done:
		q.drop(item, "Receiver closed, dropping item")
		return
	default:
	}

	if len(q.backlog) == 0 {
		select {
		case q.ch <- item:
			return
		default:
		}
	}

	if len(q.backlog) >= q.maxBacklog {
		q.drop(item, "Queue backlog full, dropping item")
		return
	}

	q.backlog = append(q.backlog, item)
	if !q.flushing {
		q.flushing = true
		go q.flush()
	}
}

func (q *queue[T]) flush() {
	for {
		q.mu.Lock()
		if len(q.backlog) == 0 {
			q.flushing = false
			q.mu.Unlock()
			return
		}
		item := q.backlog[0]
		q.mu.Unlock()

		select {
		case q.ch <- item:
			q.mu.Lock()
			q.backlog = q.backlog[1:]
			q.mu.Unlock()
		case <-q.done:
			q.mu.Lock()
			dropped := q.backlog
			q.backlog = nil
			q.flushing = false
			for _, d := range dropped {
				q.drop(d, "Receiver closed, dropping item")
			}
			q.mu.Unlock()
			return
		}
	}
}

func (q *queue[T]) backlogLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

func (q *queue[T]) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// drop must be called with mu held.
func (q *queue[T]) drop(item T, msg string) {
	q.dropped++
	q.logger.WithFields(logrus.Fields{
		"queue":   q.name,
		"item":    item,
		"dropped": q.dropped,
	}).Error(msg)
}

// NodeSender is the producer side of a NodeChannel. It is safe for concurrent
// use and its methods never block.
type NodeSender struct {
	timeout *queue[TimeoutRequest]
	network *queue[NetworkRequest]
	api     *queue[ExternalMessage]
}

// NodeReceiver is the consumer side of a NodeChannel. Each channel must be
// read by a single goroutine.
type NodeReceiver struct {
	Timeout <-chan TimeoutRequest
	Network <-chan NetworkRequest
	API     <-chan ExternalMessage

	done      chan struct{}
	closeOnce sync.Once
}

// NewNodeChannel creates the timeout, network-request and API queues, each
// with the given capacity and DefaultMaxBacklog.
func NewNodeChannel(capacity int, logger *logrus.Entry) (*NodeSender, *NodeReceiver) {
	return NewNodeChannelWithBacklog(capacity, DefaultMaxBacklog, logger)
}

// NewNodeChannelWithBacklog is NewNodeChannel with an explicit bound on the
// backlog of each queue. A non-positive maxBacklog selects DefaultMaxBacklog.
func NewNodeChannelWithBacklog(capacity, maxBacklog int, logger *logrus.Entry) (*NodeSender, *NodeReceiver) {
	if capacity < 0 {
		capacity = 0
	}
	if maxBacklog <= 0 {
		maxBacklog = DefaultMaxBacklog
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	done := make(chan struct{})
	timeoutCh := make(chan TimeoutRequest, capacity)
	networkCh := make(chan NetworkRequest, capacity)
	apiCh := make(chan ExternalMessage, capacity)

	sender := &NodeSender{
		timeout: &queue[TimeoutRequest]{name: "timeout", ch: timeoutCh, done: done, maxBacklog: maxBacklog, logger: logger},
		network: &queue[NetworkRequest]{name: "network", ch: networkCh, done: done, maxBacklog: maxBacklog, logger: logger},
		api:     &queue[ExternalMessage]{name: "api", ch: apiCh, done: done, maxBacklog: maxBacklog, logger: logger},
	}

	receiver := &NodeReceiver{
		Timeout: timeoutCh,
		Network: networkCh,
		API:     apiCh,
		done:    done,
	}

	return sender, receiver
}

// SendTo schedules the delivery of raw to the peer at addr.
func (s *NodeSender) SendTo(addr string, raw messages.RawMessage) {
	s.network.push(NetworkRequest{Type: SendMessage, Addr: addr, Message: raw})
}

// Disconnect asks the transport to drop its connection to addr.
func (s *NodeSender) Disconnect(addr string) {
	s.network.push(NetworkRequest{Type: DisconnectWithPeer, Addr: addr})
}

// ShutdownNetwork asks the transport to stop.
func (s *NodeSender) ShutdownNetwork() {
	s.network.push(NetworkRequest{Type: ShutdownNetwork})
}

// AddTimeout schedules timeout to fire at the given time.
func (s *NodeSender) AddTimeout(timeout NodeTimeout, at time.Time) {
	s.timeout.push(TimeoutRequest{At: at, Timeout: timeout})
}

// PostEvent submits an external message to the reactor.
func (s *NodeSender) PostEvent(m ExternalMessage) {
	s.api.push(m)
}

// Backlog returns the number of items waiting for room in the queues.
func (s *NodeSender) Backlog() int {
	return s.timeout.backlogLen() + s.network.backlogLen() + s.api.backlogLen()
}

// Dropped returns the number of items discarded because a backlog was full or
// the receiver was closed.
func (s *NodeSender) Dropped() uint64 {
	return s.timeout.droppedCount() + s.network.droppedCount() + s.api.droppedCount()
}

// Close stops the delivery of items. Items still in the backlog, and items
// sent afterwards, are logged and dropped. The channels are not closed.
func (r *NodeReceiver) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

// Done is closed by Close.
func (r *NodeReceiver) Done() <-chan struct{} {
	return r.done
}
