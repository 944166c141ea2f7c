// Package store keeps the messages a node has accepted.
//
// Messages are content-addressed by the SHA256 of their encoding and kept in
// arrival order, so that peers which fall behind can be served the tail of the
// log. Committed blocks are additionally indexed by height to answer
// RequestBlock messages.
//
// InmemStore holds everything in memory and bounds the ordered log with a
// rolling window. BadgerStore wraps an InmemStore and persists every write to a
// Badger database, from which it can be reloaded after a restart.
package store
