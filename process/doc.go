// Package process runs a local MCP server as a child process and speaks
// newline delimited JSON-RPC over its stdin and stdout.
//
// The child is bound to the context passed to Start: cancelling it, or calling
// Close, kills the process and fails pending requests.
package process
