// Package config defines the configuration for a bftnode node.
//
// Regardless of how the node is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package. On top of these options, the node relies on a data
// directory, defined by Config.DataDir, where it expects to find a few
// additional files:
//
//	priv_key   // a plain text file containing the hex private key (cf. bftnode keygen).
//	peers.json // a JSON file listing the validators of the network.
package config
