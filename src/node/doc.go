// Package node wires the collaborators of a validator around a single event
// loop.
//
// A Node owns a transport, a timer, a message store and a NodeChannel. The
// transport's events, the fired timeouts and the external API messages are
// merged by an events.Aggregator and handed, one at a time, to a Handler. The
// Handler never blocks: everything it wants done, such as sending a message or
// scheduling a timeout, goes back through the NodeSender.
//
// The Handler authenticates inbound consensus messages against the peer set,
// stores them, keeps peers informed of the local height with periodic Status
// messages, and serves and fetches committed blocks. It does not run the
// consensus algorithm itself.
package node
