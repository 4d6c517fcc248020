// Package conv collects small helpers used to normalise JSON-RPC values
// exchanged with upstream servers.
package conv
