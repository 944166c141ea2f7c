// Package events merges the inputs of a node into a single ordered stream for
// its reactor goroutine, and provides the queues other goroutines use to feed
// that stream.
//
// Three sources feed the Aggregator: timeouts, network events and external
// (API) messages. When more than one source is ready the Aggregator always
// emits in the order timeout, network, API. The stream ends once all three
// sources are closed.
//
// NewNodeChannel creates the queues. The NodeSender side never blocks its
// caller: when a queue is full the item is handed to a background flusher that
// preserves FIFO order. Once the NodeReceiver is closed, queued and future
// items are logged and dropped.
package events
