// Package peer provides downstream peers for the relay: a Client talking
// back to the downstream MCP client over the transport its request arrived
// on, and Detached for connections opened without a downstream client.
package peer
