// Package mcprelay wires the upstream side of an MCP gateway.
//
// A Relay loads target definitions into a configuration store and keeps one
// connection pool per listener. Pools connect targets lazily over SSE, stdio or
// an OpenAPI described REST API and relay server initiated traffic back to the
// downstream peer.
//
// Example:
//
//	relay, _ := mcprelay.New(ctx, &mcprelay.Options{Config: "relay.yaml"})
//	tools, _ := relay.Tools(ctx, "default", peer.Detached{})
//
// The cmd/mcprelay command exposes the same operations from the command line.
package mcprelay
