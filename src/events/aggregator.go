package events

import (
	"context"
	"errors"
)

// ErrStreamDone is returned by Next once every source is closed and drained.
var ErrStreamDone = errors.New("all event sources are closed")

// PollResult is the outcome of one Poll cycle.
type PollResult uint8

const (
	// NotReady means no source had an item.
	NotReady PollResult = iota
	// Ready means an Event was produced.
	Ready
	// Done means every source is closed.
	Done
)

// Aggregator merges the timeout, network and API sources. It is not safe for
// concurrent use; a single reactor goroutine owns it.
type Aggregator struct {
	timeout <-chan NodeTimeout
	network <-chan NetworkEvent
	api     <-chan ExternalMessage

	// items received by a blocking Next while a higher priority source
	// might also have been ready
	pendingNetwork *NetworkEvent
	pendingAPI     *ExternalMessage
}

// NewAggregator ...
func NewAggregator(timeout <-chan NodeTimeout, network <-chan NetworkEvent, api <-chan ExternalMessage) *Aggregator {
	return &Aggregator{
		timeout: timeout,
		network: network,
		api:     api,
	}
}

// Poll runs one non-blocking cycle: the first ready source, in the order
// timeout, network, API, produces the Event. A closed source is skipped from
// then on.
func (a *Aggregator) Poll() (Event, PollResult) {
	if a.timeout != nil {
		select {
		case t, ok := <-a.timeout:
			if ok {
				return NewTimeoutEvent(t), Ready
			}
			a.timeout = nil
		default:
		}
	}

	if a.pendingNetwork != nil {
		e := *a.pendingNetwork
		a.pendingNetwork = nil
		return NewNetworkEvent(e), Ready
	}
	if a.network != nil {
		select {
		case e, ok := <-a.network:
			if ok {
				return NewNetworkEvent(e), Ready
			}
			a.network = nil
		default:
		}
	}

	if a.pendingAPI != nil {
		m := *a.pendingAPI
		a.pendingAPI = nil
		return NewAPIEvent(m), Ready
	}
	if a.api != nil {
		select {
		case m, ok := <-a.api:
			if ok {
				return NewAPIEvent(m), Ready
			}
			a.api = nil
		default:
		}
	}

	if a.done() {
		return Event{}, Done
	}
	return Event{}, NotReady
}

func (a *Aggregator) done() bool {
	return a.timeout == nil && a.network == nil && a.api == nil &&
		a.pendingNetwork == nil && a.pendingAPI == nil
}

// Next returns the next Event, waiting until a source is ready. It returns
// ErrStreamDone once all sources are closed, or the context error.
func (a *Aggregator) Next(ctx context.Context) (Event, error) {
	for {
		e, res := a.Poll()
		switch res {
		case Ready:
			return e, nil
		case Done:
			return Event{}, ErrStreamDone
		}

		// Nil channels block forever, so closed sources drop out of the
		// select. Lower priority items are parked and go through Poll again.
		select {
		case t, ok := <-a.timeout:
			if ok {
				return NewTimeoutEvent(t), nil
			}
			a.timeout = nil
		case n, ok := <-a.network:
			if ok {
				a.pendingNetwork = &n
			} else {
				a.network = nil
			}
		case m, ok := <-a.api:
			if ok {
				a.pendingAPI = &m
			} else {
				a.api = nil
			}
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Run feeds every Event to handler until the stream ends, returning nil, or
// the context is cancelled, returning its error.
func (a *Aggregator) Run(ctx context.Context, handler EventHandler) error {
	for {
		e, err := a.Next(ctx)
		if err == ErrStreamDone {
			return nil
		}
		if err != nil {
			return err
		}
		handler.HandleEvent(e)
	}
}
