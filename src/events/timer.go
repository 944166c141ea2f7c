package events

import (
	"container/heap"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Timer turns a queue of TimeoutRequests into a stream of NodeTimeouts, each
// delivered once its requested time has passed. Timeouts are never
// cancelled; the handler discards the stale ones.
type Timer struct {
	requests <-chan TimeoutRequest
	out      chan NodeTimeout

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	logger *logrus.Entry
}

// NewTimer creates a Timer reading requests. The output channel has the given
// capacity and is closed when Run returns.
func NewTimer(requests <-chan TimeoutRequest, capacity int, logger *logrus.Entry) *Timer {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Timer{
		requests:   requests,
		out:        make(chan NodeTimeout, capacity),
		shutdownCh: make(chan struct{}),
		logger:     logger,
	}
}

// C is the stream of fired timeouts.
func (t *Timer) C() <-chan NodeTimeout {
	return t.out
}

// Run processes requests until Shutdown is called, or until the request
// queue is closed and every pending timeout has fired.
func (t *Timer) Run() {
	defer close(t.out)

	var (
		pending  timeoutHeap
		seq      uint64
		requests = t.requests
		timer    = time.NewTimer(time.Hour)
		armed    bool
	)
	timer.Stop()

	rearm := func() {
		if armed && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		armed = false
		if len(pending) > 0 {
			timer.Reset(time.Until(pending[0].At))
			armed = true
		}
	}

	for {
		if requests == nil && len(pending) == 0 {
			return
		}

		var timerC <-chan time.Time
		if armed {
			timerC = timer.C
		}

		select {
		case req, ok := <-requests:
			if !ok {
				requests = nil
				continue
			}
			seq++
			heap.Push(&pending, scheduled{TimeoutRequest: req, seq: seq})
			rearm()
		case <-timerC:
			armed = false
			now := time.Now()
			for len(pending) > 0 && !pending[0].At.After(now) {
				s := heap.Pop(&pending).(scheduled)
				t.logger.WithFields(logrus.Fields{
					"kind":   s.Timeout.Kind,
					"height": s.Timeout.Height,
					"round":  s.Timeout.Round,
				}).Debug("Timeout fired")
				select {
				case t.out <- s.Timeout:
				case <-t.shutdownCh:
					return
				}
			}
			rearm()
		case <-t.shutdownCh:
			timer.Stop()
			return
		}
	}
}

// Shutdown stops Run. Pending timeouts are discarded.
func (t *Timer) Shutdown() {
	t.shutdownOnce.Do(func() {
		close(t.shutdownCh)
	})
}

type scheduled struct {
	TimeoutRequest
	seq uint64
}

// timeoutHeap orders requests by time, then by arrival.
type timeoutHeap []scheduled

func (h timeoutHeap) Len() int { return len(h) }

func (h timeoutHeap) Less(i, j int) bool {
	if h[i].At.Equal(h[j].At) {
		return h[i].seq < h[j].seq
	}
	return h[i].At.Before(h[j].At)
}

func (h timeoutHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timeoutHeap) Push(x interface{}) {
	*h = append(*h, x.(scheduled))
}

func (h *timeoutHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
