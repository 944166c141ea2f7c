// Package net implements the transports that carry signed messages between
// nodes.
//
// A Transport delivers outbound messages with Send and reports inbound
// messages, and connection changes, as events.NetworkEvent values on the
// channel returned by Events. There are two implementations:
//
// - Inmem: in-memory transport used only for testing
//
// - TCP: one-way length-delimited frames over plain TCP
//
// # TCP
//
// Every frame is a little-endian u32 length followed by the encoded message.
// Outbound connections are pooled per target. Inbound frames larger than the
// configured maximum close the connection; frames that do not carry a valid
// envelope are logged and skipped.
//
// The TCP transport is suitable when nodes are in the same local network, or
// when users are able to configure their connections appropriately to avoid NAT
// issues. BindAddr is the IP:PORT the transport listens on, and the optional
// AdvertiseAddr is the address other nodes should use to reach it.
//
// Pump connects the network-request queue of a node to a Transport.
package net
