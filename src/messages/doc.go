// Package messages implements the signed binary envelope exchanged by nodes and
// the catalogue of consensus messages built on top of it.
//
// An encoded message is one contiguous buffer:
//
//	header | fixed fields | variable region | signature
//
// The header is 10 bytes: network id (u8), protocol version (u8), message
// class (u16), message type (u16) and the total length of the buffer (u32).
// Fixed fields are stored inline at offsets known from the message Schema.
// Variable-size fields (text, byte arrays, numeric arrays, nested messages and
// sequences of those) are stored inline as an 8-byte segment pointer
// (offset u32, length u32) whose payload lives in the variable region. All
// integers are little-endian. The 64-byte signature trailer covers every
// preceding byte.
//
// Untrusted bytes enter the package through NewRawMessage, which validates the
// envelope, and are turned into typed values by the Decode functions, which
// validate every field before reading it. Structural problems are reported as
// errors wrapping ErrMalformed; authenticity is checked separately with
// Verify.
package messages
