// Package bridge relays the client side of an upstream MCP session to the
// downstream peer that the connection was opened for.
//
// Sampling and root listing requests are forwarded and answered with the
// peer's result; a peer protocol error is returned unchanged while any other
// failure becomes an internal error. Notifications are forwarded best effort:
// a failure is logged and never reaches the upstream session.
package bridge
