// Package policy derives how the relay talks HTTP to a backend: the
// scheme and certificate verification mode for a port, and the default
// headers (backend auth merged with target declared headers).
package policy
