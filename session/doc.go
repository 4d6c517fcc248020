// Package session runs the MCP client side of an upstream connection over a
// JSON-RPC transport: it performs the initialize handshake, exposes typed
// calls and ties the transport lifetime to a context.
package session
