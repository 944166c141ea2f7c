// Package keys implements the public key cryptography used to sign and verify
// node messages.
//
// Every validator owns a secp256k1 key-pair. Public keys travel on the wire in
// their 33-byte compressed form, and signatures are fixed 64-byte R||S values
// computed deterministically (RFC6979) over the SHA256 digest of the signed
// bytes. Because the curve is the one used by Bitcoin and Ethereum, existing
// keys from those ecosystems can operate a node.
package keys
